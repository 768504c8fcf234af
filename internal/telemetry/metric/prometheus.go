package metric

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yndnr/redolog-go/internal/infra/fileops"
	"github.com/yndnr/redolog-go/internal/storage/recovery"
	"github.com/yndnr/redolog-go/internal/storage/wal"
)

const namespace = "redolog"

// Registry holds all application metrics. It implements wal.MetricsHook,
// recovery.MetricsHook and fileops.MetricsHook.
type Registry struct {
	registry *prometheus.Registry
	kindName func(wal.Kind) string

	// Log writer
	WALRecords      *prometheus.CounterVec
	WALBytes        prometheus.Counter
	WALPayloadBytes prometheus.Counter
	WALRollovers    prometheus.Counter
	WALSyncDuration prometheus.Histogram
	WALOpenTxns     prometheus.Gauge

	// Recovery
	RecoveryOps      *prometheus.CounterVec
	RecoveryDuration prometheus.Gauge
	RecoveryRuns     *prometheus.CounterVec

	// File operations
	FileOpsRequests *prometheus.CounterVec
	FileOpsResults  *prometheus.CounterVec
	FileOpsBytes    prometheus.Counter
}

// Option configures a Registry.
type Option func(*Registry)

// WithKindNames labels log metrics with the operation names of reg
// instead of numeric kinds.
func WithKindNames(reg *wal.Registry) Option {
	return func(r *Registry) {
		if reg != nil {
			r.kindName = reg.Name
		}
	}
}

// NewRegistry creates a registry with the Go runtime and process
// collectors and every application metric registered.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		kindName: wal.Kind.String,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.WALRecords = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "wal",
		Name:      "records_total",
		Help:      "Records appended to the log, by kind",
	}, []string{"kind"})
	r.WALBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "wal",
		Name:      "write_bytes_total",
		Help:      "Bytes appended to the log, payloads included",
	})
	r.WALPayloadBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "wal",
		Name:      "payload_bytes_total",
		Help:      "Payload bytes appended to the log",
	})
	r.WALRollovers = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "wal",
		Name:      "rollovers_total",
		Help:      "Segments finalized",
	})
	r.WALSyncDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "wal",
		Name:      "sync_duration_seconds",
		Help:      "Segment fsync latency",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
	})
	r.WALOpenTxns = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "wal",
		Name:      "open_transactions",
		Help:      "Transactions begun and not yet resolved",
	})

	r.RecoveryOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "recovery",
		Name:      "operations_total",
		Help:      "Operations seen by recovery, by kind and outcome",
	}, []string{"kind", "outcome"})
	r.RecoveryDuration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "recovery",
		Name:      "duration_seconds",
		Help:      "Duration of the last recovery",
	})
	r.RecoveryRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "recovery",
		Name:      "runs_total",
		Help:      "Recoveries run, by result",
	}, []string{"result"})

	r.FileOpsRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "fileops",
		Name:      "requests_total",
		Help:      "File operations requested, by op",
	}, []string{"op"})
	r.FileOpsResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "fileops",
		Name:      "completed_total",
		Help:      "File operations completed, by op and result",
	}, []string{"op", "result"})
	r.FileOpsBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "fileops",
		Name:      "bytes_total",
		Help:      "Bytes copied by file operations",
	})

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.WALRecords, r.WALBytes, r.WALPayloadBytes, r.WALRollovers, r.WALSyncDuration, r.WALOpenTxns,
		r.RecoveryOps, r.RecoveryDuration, r.RecoveryRuns,
		r.FileOpsRequests, r.FileOpsResults, r.FileOpsBytes,
	)
	return r
}

var (
	globalOnce sync.Once
	global     *Registry
)

// Global returns the process-wide registry.
func Global() *Registry {
	globalOnce.Do(func() { global = NewRegistry() })
	return global
}

// Handler returns the /metrics handler of the global registry.
func Handler() http.Handler {
	return Global().Handler()
}

// Handler returns an HTTP handler for this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Registerer returns the underlying registerer for components that
// register their own collectors.
func (r *Registry) Registerer() prometheus.Registerer { return r.registry }

// MustRegister registers additional collectors.
func (r *Registry) MustRegister(cs ...prometheus.Collector) {
	r.registry.MustRegister(cs...)
}

func (r *Registry) ObserveAppend(kind wal.Kind, bytes, payloadBytes int64) {
	r.WALRecords.WithLabelValues(r.kindName(kind)).Inc()
	r.WALBytes.Add(float64(bytes))
	if payloadBytes > 0 {
		r.WALPayloadBytes.Add(float64(payloadBytes))
	}
}

func (r *Registry) ObserveSync(elapsed time.Duration) {
	r.WALSyncDuration.Observe(elapsed.Seconds())
}

func (r *Registry) ObserveRollover(uint64, int64) {
	r.WALRollovers.Inc()
}

func (r *Registry) SetOpenTxns(n int) {
	r.WALOpenTxns.Set(float64(n))
}

func (r *Registry) ObserveReplay(kind wal.Kind, outcome recovery.Outcome) {
	r.RecoveryOps.WithLabelValues(r.kindName(kind), string(outcome)).Inc()
}

func (r *Registry) ObserveRecovery(elapsed time.Duration, err error) {
	r.RecoveryDuration.Set(elapsed.Seconds())
	result := "clean"
	switch {
	case errors.Is(err, recovery.ErrUncleanRecovery):
		result = "unclean"
	case err != nil:
		result = "failed"
	}
	r.RecoveryRuns.WithLabelValues(result).Inc()
}

func (r *Registry) ObserveRequest(op fileops.Op) {
	r.FileOpsRequests.WithLabelValues(op.String()).Inc()
}

func (r *Registry) ObserveComplete(op fileops.Op, bytes int64, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.FileOpsResults.WithLabelValues(op.String(), result).Inc()
	if bytes > 0 {
		r.FileOpsBytes.Add(float64(bytes))
	}
}

var (
	_ wal.MetricsHook      = (*Registry)(nil)
	_ recovery.MetricsHook = (*Registry)(nil)
	_ fileops.MetricsHook  = (*Registry)(nil)
)
