// Package buildinfo provides build information for the redolog binaries.
//
// Values are injected via ldflags:
//
//   - Version: Semantic version (e.g., "1.0.0")
//   - Commit: Git commit hash
//   - BuildTime: Build timestamp
//
// When they are not, Commit and BuildTime fall back to the VCS stamp the
// Go toolchain embeds, and GoVersion is always the runtime's.
package buildinfo
