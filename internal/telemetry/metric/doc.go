// Package metric provides Prometheus metrics for the redo log server.
//
//   - prometheus.go: registry, HTTP handler and the hook implementations
//     for the log writer, recovery and file operations
//   - collector.go: scrape-time collector for log writer status
//
// Metrics are exposed at /metrics in Prometheus format.
package metric
