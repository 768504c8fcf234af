// Package wal provides the redo log for the mailbox store.
//
// Every state-mutating operation is appended to the log before it is
// acknowledged, grouped into transactions that end with a commit or abort
// control record. After a crash the log is replayed to bring the store back
// to a consistent state.
//
// Features:
//
//   - Versioned records: fields introduced in later format versions are
//     written only when the record's version allows them
//   - Payload channel: large blobs travel inline after the fixed fields and
//     are streamed on write and skipped by length on read
//   - Transactions: ids are ULIDs; a Tracker records which are still open
//   - Rollover: segments roll over by size or age, ending with a Checkpoint
//     of the open transaction ids and a SHA-256 trailer
//   - Compaction: old segments are removed or archived once no transaction
//     they hold can still resolve in a segment that would be lost
//
// Segment file:
//
//	wal-<segment-id>.log
//	[magic:8 "MBXREDO\x01"][major:2][minor:2][sequence:8][created:8][node:2+n]
//	[Record]*
//	[checksum:32 SHA-256 of all bytes above] (finalized segments only)
//
// Record wire format:
//
//	[kind:4][major:2][minor:2][txn:16][target:4][timestamp:8][fields...][payloadLen:4][payload...]
//
// All integers are big-endian. Fields have no outer length, so a record
// whose kind is not registered cannot be skipped; such a record is fatal.
package wal
