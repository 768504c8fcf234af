// Package command provides the redolog-cli command definitions.
//
// This package defines all CLI commands using urfave/cli/v2:
//
//   - root.go: Root command, global flags, config merging
//   - dump.go: List the records of a log directory
//   - verify.go: Check segment trailers and classify transactions
//   - recover.go: Offline recovery of a data directory
//   - compact.go: Remove or archive old segments
//   - server.go: status and checkpoint against a running server
//   - version.go: Build information
//
// Offline commands (dump, verify, recover, compact) work on local
// directories and must not run against a directory a server has open.
// Commands follow a consistent pattern of parsing flags, calling the
// storage packages or the server, and formatting output.
package command
