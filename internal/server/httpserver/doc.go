// Package httpserver provides the operations HTTP endpoint of the redo
// log server.
//
// Routes:
//
//   - GET /healthz: 200 while the log writer is usable, 503 once it failed
//   - GET /metrics: Prometheus exposition
//   - GET /v1/wal/status: active segment, recovery and file-movement state
//   - POST /v1/wal/checkpoint: sync the store and compact the log
//
// Every route runs behind Recover, RequestID and AccessLog; the /v1 routes
// are also rate limited per client.
package httpserver
