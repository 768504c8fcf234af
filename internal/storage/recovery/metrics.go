package recovery

import (
	"time"

	"github.com/yndnr/redolog-go/internal/storage/wal"
)

// Outcome classifies what replay did with one operation.
type Outcome string

const (
	OutcomeApplied        Outcome = "applied"
	OutcomeAlreadyApplied Outcome = "already_applied"
	OutcomeDeferred       Outcome = "deferred"
	OutcomeSkipped        Outcome = "skipped"
	OutcomeFailed         Outcome = "failed"
)

// MetricsHook receives replay observations.
type MetricsHook interface {
	ObserveReplay(kind wal.Kind, outcome Outcome)
	ObserveRecovery(elapsed time.Duration, err error)
}

// NoopMetrics is used when no metrics hook is provided.
type NoopMetrics struct{}

func (NoopMetrics) ObserveReplay(wal.Kind, Outcome)      {}
func (NoopMetrics) ObserveRecovery(time.Duration, error) {}
