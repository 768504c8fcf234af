// Package main provides the entry point for redolog-server.
//
// The server owns one data directory: a mailbox store and the redo log
// that keeps it consistent. On start it replays the log into the store,
// then serves:
//
//   - GET /healthz, GET /metrics
//   - GET /v1/wal/status, POST /v1/wal/checkpoint
//
// Usage:
//
//	redolog-server [flags]
//	redolog-server --config /path/to/config.yaml
//
// Changes to log.level in the config file apply without a restart.
package main
