package wal

import "time"

// MetricsHook receives log observations. Implementations must be safe for
// concurrent use.
type MetricsHook interface {
	ObserveAppend(kind Kind, bytes int64, payloadBytes int64)
	ObserveSync(elapsed time.Duration)
	ObserveRollover(seq uint64, bytes int64)
	SetOpenTxns(n int)
}

// NoopMetrics is used when no metrics hook is provided.
type NoopMetrics struct{}

func (NoopMetrics) ObserveAppend(Kind, int64, int64) {}
func (NoopMetrics) ObserveSync(time.Duration)        {}
func (NoopMetrics) ObserveRollover(uint64, int64)    {}
func (NoopMetrics) SetOpenTxns(int)                  {}
