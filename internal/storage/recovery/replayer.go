package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/yndnr/redolog-go/internal/core/domain"
	"github.com/yndnr/redolog-go/internal/core/service"
	"github.com/yndnr/redolog-go/internal/storage/wal"
	"github.com/yndnr/redolog-go/internal/telemetry/logger"
)

// Option configures a Replayer.
type Option func(*Replayer)

// WithLogger sets the replayer's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Replayer) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics sets the metrics hook.
func WithMetrics(m MetricsHook) Option {
	return func(r *Replayer) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithMaxPayloadSize bounds the payload length the reader accepts.
func WithMaxPayloadSize(n int64) Option {
	return func(r *Replayer) {
		if n > 0 {
			r.maxPayload = n
		}
	}
}

// WithDeferredWorkers sets how many goroutines DrainDeferred uses.
// Operations on the same target always run on the same worker, in log
// order.
func WithDeferredWorkers(n int) Option {
	return func(r *Replayer) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithBlobRegistry shares a blob registry with the replayer.
func WithBlobRegistry(b *service.BlobRegistry) Option {
	return func(r *Replayer) {
		if b != nil {
			r.env.Blobs = b
		}
	}
}

// Transactions counts transactions by their final state.
type Transactions struct {
	Committed  int
	Aborted    int
	Incomplete int
}

// Result summarizes a recovery.
type Result struct {
	Segments     int
	Records      int
	Checkpoints  int
	Transactions Transactions

	Applied        int
	AlreadyApplied int
	Deferred       int
	Skipped        int

	// TornTail is set when the newest segment ended in an incomplete
	// record.
	TornTail *wal.Position

	Duration time.Duration
}

// opRef locates one logged operation without holding its fields.
type opRef struct {
	pos  wal.Position
	kind wal.Kind
}

type txnEntry struct {
	state wal.TxnState
	ops   []opRef
}

// Replayer recovers a store from a log directory. A Replayer runs once;
// it is not safe for concurrent use, except that DrainDeferred may run
// while the store serves live traffic.
type Replayer struct {
	dir        string
	reg        *wal.Registry
	env        *service.Env
	logger     *slog.Logger
	metrics    MetricsHook
	maxPayload int64
	workers    int

	reader     *wal.Reader
	classified bool
	txns       map[wal.TxnID]*txnEntry
	commits    []wal.TxnID // commit order
	result     Result

	mu       sync.Mutex
	deferred []*deferredOp
}

type deferredOp struct {
	rec  *wal.Record
	name string
}

// New creates a replayer for the log in dir. store may be nil when only
// Classify is used.
func New(dir string, reg *wal.Registry, store service.Store, opts ...Option) *Replayer {
	r := &Replayer{
		dir:        dir,
		reg:        reg,
		env:        service.NewEnv(store),
		logger:     slog.Default(),
		metrics:    NoopMetrics{},
		maxPayload: wal.DefaultMaxPayloadSize,
		workers:    1,
		txns:       make(map[wal.TxnID]*txnEntry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Env returns the environment operations are applied in. Its blob
// registry holds every blob replayed so far.
func (r *Replayer) Env() *service.Env { return r.env }

// Classify runs Pass 1. Any error means the transaction ledger cannot be
// trusted and nothing may be applied.
func (r *Replayer) Classify(ctx context.Context) (Result, error) {
	if r.classified {
		return r.result, nil
	}
	reader, err := wal.OpenReader(r.dir, r.reg,
		wal.WithMaxPayloadSize(r.maxPayload),
		wal.WithReaderLogger(r.logger))
	if err != nil {
		return r.result, fmt.Errorf("recovery: open log: %w", err)
	}
	r.reader = reader

	scan, err := reader.Scan(ctx, r.classify)
	r.result.Segments = scan.Segments
	r.result.Records = scan.Records
	r.result.TornTail = scan.TornTail
	if err != nil {
		return r.result, fmt.Errorf("recovery: pass 1: %w", err)
	}

	for _, t := range r.txns {
		switch t.state {
		case wal.TxnCommitted:
			r.result.Transactions.Committed++
		case wal.TxnAborted:
			r.result.Transactions.Aborted++
		default:
			r.result.Transactions.Incomplete++
		}
	}
	r.classified = true

	r.logger.Info("recovery pass 1 complete",
		"segments", r.result.Segments,
		"records", r.result.Records,
		"committed", r.result.Transactions.Committed,
		"aborted", r.result.Transactions.Aborted,
		"incomplete", r.result.Transactions.Incomplete)
	return r.result, nil
}

func (r *Replayer) classify(rec *wal.Record) error {
	corrupt := func(msg string) error {
		return &wal.CorruptionError{
			Segment: rec.Pos.Segment,
			Offset:  rec.Pos.Offset,
			Err:     fmt.Errorf("%w: %s", wal.ErrCorrupted, msg),
		}
	}

	switch rec.Kind {
	case wal.KindCheckpoint:
		r.result.Checkpoints++
		return nil
	case wal.KindCommitTxn, wal.KindAbortTxn:
		t := r.txns[rec.TxnID]
		if t == nil {
			// Its operations were in compacted segments, or it logged none.
			t = &txnEntry{}
			r.txns[rec.TxnID] = t
		}
		if t.state.IsResolved() {
			return corrupt("transaction " + rec.TxnID.String() + " resolved twice")
		}
		if rec.Kind == wal.KindCommitTxn {
			t.state = wal.TxnCommitted
			r.commits = append(r.commits, rec.TxnID)
		} else {
			t.state = wal.TxnAborted
		}
		return nil
	}

	t := r.txns[rec.TxnID]
	if t == nil {
		t = &txnEntry{state: wal.TxnOpen}
		r.txns[rec.TxnID] = t
	}
	if t.state.IsResolved() {
		return corrupt("operation logged after " + rec.TxnID.String() + " was " + t.state.String())
	}
	t.ops = append(t.ops, opRef{pos: rec.Pos, kind: rec.Kind})
	return nil
}

// Run runs both passes. It returns an *ApplyError when an operation
// fails in a way replay cannot treat as already applied; the store then
// holds every transaction committed before the failing one.
//
// Cancellation is honored between transactions.
func (r *Replayer) Run(ctx context.Context) (res Result, err error) {
	start := time.Now()
	defer func() {
		r.result.Duration = time.Since(start)
		res = r.result
		r.metrics.ObserveRecovery(r.result.Duration, err)
	}()

	if r.env.Store == nil {
		return r.result, ErrNoStore
	}
	if _, err := r.Classify(ctx); err != nil {
		return r.result, err
	}

	// Operations of transactions that never committed.
	for _, t := range r.txns {
		if t.state == wal.TxnCommitted {
			continue
		}
		for _, op := range t.ops {
			r.result.Skipped++
			r.metrics.ObserveReplay(op.kind, OutcomeSkipped)
		}
	}

	// Commit order matches apply order for transactions sharing a target:
	// the executor holds a target's lock from first append to commit.
	for _, id := range r.commits {
		if err := ctx.Err(); err != nil {
			return r.result, fmt.Errorf("%w: %w", ErrUncleanRecovery, err)
		}
		if err := r.replayTxn(ctx, id, r.txns[id]); err != nil {
			r.logger.Error("recovery stopped", "error", err)
			return r.result, err
		}
	}

	r.logger.Info("recovery pass 2 complete",
		"applied", r.result.Applied,
		"already_applied", r.result.AlreadyApplied,
		"deferred", r.result.Deferred,
		"skipped", r.result.Skipped)
	return r.result, nil
}

func (r *Replayer) replayTxn(ctx context.Context, id wal.TxnID, t *txnEntry) error {
	for _, ref := range t.ops {
		rec, err := r.reader.ReadAt(ref.pos)
		if err != nil {
			return r.applyError(id, ref, err)
		}
		spec, _ := r.reg.Lookup(rec.Kind)
		if spec.Deferred {
			r.mu.Lock()
			r.deferred = append(r.deferred, &deferredOp{rec: rec, name: spec.Name})
			r.mu.Unlock()
			r.result.Deferred++
			r.metrics.ObserveReplay(rec.Kind, OutcomeDeferred)
			continue
		}

		outcome, err := r.apply(ctx, rec, spec.Name)
		if err != nil {
			return r.applyError(id, ref, err)
		}
		if outcome == OutcomeApplied {
			r.result.Applied++
		} else {
			r.result.AlreadyApplied++
		}
	}
	return nil
}

// apply runs one operation's Redo and classifies the result.
func (r *Replayer) apply(ctx context.Context, rec *wal.Record, name string) (Outcome, error) {
	op, ok := rec.Op.(service.Redoable)
	if !ok {
		r.metrics.ObserveReplay(rec.Kind, OutcomeFailed)
		return OutcomeFailed, fmt.Errorf("%w: %s", ErrNotRedoable, name)
	}
	ctx = logger.WithAttrs(ctx, "kind", name, "txn_id", rec.TxnID.String())
	err := op.Redo(ctx, r.env, rec)
	switch {
	case err == nil:
		r.metrics.ObserveReplay(rec.Kind, OutcomeApplied)
		return OutcomeApplied, nil
	case domain.IsAlreadyApplied(err):
		r.logger.InfoContext(ctx, "operation already applied",
			"segment", rec.Pos.Segment,
			"offset", rec.Pos.Offset,
			"detail", err.Error())
		r.metrics.ObserveReplay(rec.Kind, OutcomeAlreadyApplied)
		return OutcomeAlreadyApplied, nil
	default:
		r.metrics.ObserveReplay(rec.Kind, OutcomeFailed)
		return OutcomeFailed, err
	}
}

func (r *Replayer) applyError(id wal.TxnID, ref opRef, err error) error {
	return &ApplyError{
		Segment: ref.pos.Segment,
		Offset:  ref.pos.Offset,
		TxnID:   id,
		Kind:    ref.kind,
		Name:    r.reg.Name(ref.kind),
		Err:     err,
	}
}

// PendingDeferred returns the number of queued deferred operations.
func (r *Replayer) PendingDeferred() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.deferred)
}

// DrainDeferred applies the deferred queue. Operations on one target run
// in log order; different targets may run in parallel. Failures are
// collected rather than stopping the drain, since deferred work does not
// affect consistency.
func (r *Replayer) DrainDeferred(ctx context.Context) (applied int, err error) {
	r.mu.Lock()
	queue := r.deferred
	r.deferred = nil
	r.mu.Unlock()
	if len(queue) == 0 {
		return 0, nil
	}

	lanes := make([][]*deferredOp, r.workers)
	for _, op := range queue {
		lane := int(uint32(op.rec.Target) % uint32(r.workers))
		lanes[lane] = append(lanes[lane], op)
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		errs  []error
		count int
	)
	for _, lane := range lanes {
		if len(lane) == 0 {
			continue
		}
		wg.Add(1)
		go func(ops []*deferredOp) {
			defer wg.Done()
			for _, op := range ops {
				if ctx.Err() != nil {
					mu.Lock()
					errs = append(errs, ctx.Err())
					mu.Unlock()
					return
				}
				_, err := r.apply(ctx, op.rec, op.name)
				mu.Lock()
				if err != nil {
					errs = append(errs, &ApplyError{
						Segment: op.rec.Pos.Segment,
						Offset:  op.rec.Pos.Offset,
						TxnID:   op.rec.TxnID,
						Kind:    op.rec.Kind,
						Name:    op.name,
						Err:     err,
					})
				} else {
					count++
				}
				mu.Unlock()
			}
		}(lane)
	}
	wg.Wait()

	r.logger.Info("deferred operations drained", "applied", count, "failed", len(errs))
	return count, errors.Join(errs...)
}

// Close releases the log files. Deferred operations still queued are
// dropped.
func (r *Replayer) Close() error {
	r.mu.Lock()
	r.deferred = nil
	r.mu.Unlock()
	if r.reader == nil {
		return nil
	}
	err := r.reader.Close()
	r.reader = nil
	return err
}
