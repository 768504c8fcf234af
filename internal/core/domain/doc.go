// Package domain defines the core domain models for the mailbox store.
//
// Domain models are plain value objects without any IO dependencies.
// This package contains:
//
//   - Mailbox: per-account container of items
//   - Folder, Mountpoint, SearchFolder, Tag: container objects
//   - Message, Blob: content objects
//   - Volume: blob storage volume metadata
//   - Errors: coded domain errors, including the "already exists" outcome
//     that makes redo replay idempotent
package domain
