package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/yndnr/redolog-go/internal/storage/wal"
	"github.com/yndnr/redolog-go/internal/telemetry/logger"
)

// LogWriter is the part of wal.Writer the executor needs.
type LogWriter interface {
	Begin() wal.TxnID
	Append(rec *wal.Record) (wal.Position, error)
	Commit(id wal.TxnID, kind wal.Kind) (wal.Position, error)
	Abort(id wal.TxnID, kind wal.Kind) (wal.Position, error)
}

// Step is one operation of a transaction.
type Step struct {
	Target  int32
	Op      Redoable
	Payload *wal.Payload
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithExecutorLogger sets the executor's logger.
func WithExecutorLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithBlobRegistry shares a blob registry with the executor.
func WithBlobRegistry(b *BlobRegistry) ExecutorOption {
	return func(e *Executor) {
		if b != nil {
			e.env.Blobs = b
		}
	}
}

// targetStripes is the number of locks targets are hashed onto.
const targetStripes = 64

// Executor logs mutations and applies them to a Store.
//
// A transaction holds the locks of all its targets from its first append
// until its commit or abort record is written. Transactions on a shared
// target therefore commit in the order they applied, which is the order
// recovery replays them in.
type Executor struct {
	log    LogWriter
	env    *Env
	logger *slog.Logger

	targets [targetStripes]sync.Mutex
}

// NewExecutor creates an executor writing to log and applying to store.
func NewExecutor(log LogWriter, store Store, opts ...ExecutorOption) *Executor {
	e := &Executor{
		log:    log,
		env:    NewEnv(store),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Env returns the environment operations are applied in.
func (e *Executor) Env() *Env { return e.env }

// Execute logs and applies a single operation in its own transaction.
func (e *Executor) Execute(ctx context.Context, target int32, op Redoable, payload *wal.Payload) (wal.TxnID, error) {
	return e.Run(ctx, Step{Target: target, Op: op, Payload: payload})
}

// Run logs and applies steps as one transaction. Each step is appended
// before it is applied. When a step fails the transaction is aborted and
// the error returned; steps already applied are not undone, and recovery
// skips them because the transaction never commits.
//
// The commit record carries the kind of the first step, the abort record
// the kind of the step that failed.
func (e *Executor) Run(ctx context.Context, steps ...Step) (wal.TxnID, error) {
	if len(steps) == 0 {
		return wal.TxnID{}, errors.New("service: empty transaction")
	}
	unlock := e.lockTargets(steps)
	defer unlock()

	id := e.log.Begin()
	first := steps[0].Op.Kind()
	ctx = logger.WithAttrs(ctx, "txn_id", id.String())

	for _, st := range steps {
		kind := st.Op.Kind()
		if err := ctx.Err(); err != nil {
			return id, e.abort(ctx, id, kind, err)
		}
		rec := wal.NewRecord(id, st.Target, st.Op).WithPayload(st.Payload)
		pos, err := e.log.Append(rec)
		if err != nil {
			return id, e.abort(ctx, id, kind, fmt.Errorf("append %s: %w", kind, err))
		}
		rec.Pos = pos
		if err := st.Op.Redo(ctx, e.env, rec); err != nil {
			return id, e.abort(ctx, id, kind, fmt.Errorf("apply %s: %w", kind, err))
		}
	}

	if _, err := e.log.Commit(id, first); err != nil {
		return id, fmt.Errorf("commit %s: %w", id, err)
	}
	return id, nil
}

// lockTargets locks the stripes of every step target in ascending order.
// wal.WildcardTarget takes every stripe.
func (e *Executor) lockTargets(steps []Step) func() {
	var held []int
	for _, st := range steps {
		if st.Target == wal.WildcardTarget {
			held = held[:0]
			for i := range e.targets {
				held = append(held, i)
			}
			break
		}
		held = append(held, int(uint32(st.Target)%targetStripes))
	}
	slices.Sort(held)
	held = slices.Compact(held)
	for _, i := range held {
		e.targets[i].Lock()
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			e.targets[held[i]].Unlock()
		}
	}
}

func (e *Executor) abort(ctx context.Context, id wal.TxnID, kind wal.Kind, cause error) error {
	if _, err := e.log.Abort(id, kind); err != nil {
		e.logger.ErrorContext(ctx, "abort failed",
			slog.String("kind", kind.String()),
			slog.Any("error", err))
		return errors.Join(cause, err)
	}
	e.logger.DebugContext(ctx, "transaction aborted",
		slog.String("kind", kind.String()),
		slog.Any("error", cause))
	return cause
}
