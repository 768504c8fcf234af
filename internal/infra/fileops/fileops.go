package fileops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/spaolacci/murmur3"
	"golang.org/x/time/rate"
)

var (
	// ErrDenied is returned for requests made after DenyFutureOperations.
	ErrDenied = errors.New("fileops: operations denied")

	ErrInvalidRequest = errors.New("fileops: invalid request")
)

// Op is a file operation.
type Op uint8

const (
	OpCopy Op = iota + 1
	OpCopyReadOnly
	OpLink
	OpMove
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpCopy:
		return "copy"
	case OpCopyReadOnly:
		return "copy_read_only"
	case OpLink:
		return "link"
	case OpMove:
		return "move"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Request is one file operation. Dst is unused by OpDelete.
type Request struct {
	Op  Op
	Src string
	Dst string
}

func (r Request) validate() error {
	switch r.Op {
	case OpCopy, OpCopyReadOnly, OpLink, OpMove:
		if r.Src == "" || r.Dst == "" {
			return fmt.Errorf("%w: %s needs a source and a destination", ErrInvalidRequest, r.Op)
		}
	case OpDelete:
		if r.Src == "" {
			return fmt.Errorf("%w: delete needs a path", ErrInvalidRequest)
		}
	default:
		return fmt.Errorf("%w: op %d", ErrInvalidRequest, r.Op)
	}
	return nil
}

// Callback is called when a request finishes. It runs on a goroutine of
// its own, so it may Submit further requests; callbacks of one lane are
// not ordered with each other. A request counts as pending until its
// callback returns.
type Callback func(req Request, err error)

// MetricsHook receives file operation observations.
type MetricsHook interface {
	ObserveRequest(op Op)
	ObserveComplete(op Op, bytes int64, err error)
}

// NoopMetrics is used when no metrics hook is provided.
type NoopMetrics struct{}

func (NoopMetrics) ObserveRequest(Op)                {}
func (NoopMetrics) ObserveComplete(Op, int64, error) {}

// Config configures the service.
type Config struct {
	// Workers is the number of lanes.
	Workers int

	// QueueSize bounds each lane. Submit blocks when the lane is full.
	QueueSize int

	// MaxRateBytesPerSec throttles copied bytes. Zero disables throttling.
	MaxRateBytesPerSec int64

	Logger  *slog.Logger
	Metrics MetricsHook
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Workers:   4,
		QueueSize: 256,
	}
}

// Stats holds the request counters.
type Stats struct {
	Requested int64
	Completed int64
	Failed    int64
	Pending   int64
}

type task struct {
	req  Request
	cb   Callback
	done chan error // nil for async requests
}

// Service runs file operations on a pool of lanes. It is safe for
// concurrent use.
type Service struct {
	cfg     Config
	logger  *slog.Logger
	metrics MetricsHook
	limiter *rate.Limiter
	burst   int

	lanes []chan *task
	wg    sync.WaitGroup
	cbs   sync.WaitGroup

	requested atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64

	// mu is held for reading across a send to a lane, so Close cannot
	// close a lane under a sender.
	mu     sync.RWMutex
	closed bool
	denied atomic.Bool

	pmu     sync.Mutex
	pending int64
	idle    chan struct{} // closed while nothing is pending
}

// New creates the service and starts its workers.
func New(cfg Config) *Service {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NoopMetrics{}
	}

	s := &Service{
		cfg:     cfg,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		lanes:   make([]chan *task, cfg.Workers),
		idle:    make(chan struct{}),
	}
	close(s.idle)

	if cfg.MaxRateBytesPerSec > 0 {
		// A 1MB burst keeps the rate smooth; slower limits use the rate.
		s.burst = 1 << 20
		if int64(s.burst) > cfg.MaxRateBytesPerSec {
			s.burst = int(cfg.MaxRateBytesPerSec)
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.MaxRateBytesPerSec), s.burst)
	}

	for i := range s.lanes {
		s.lanes[i] = make(chan *task, cfg.QueueSize)
		s.wg.Add(1)
		go s.worker(s.lanes[i])
	}
	return s
}

func (s *Service) lane(path string) chan *task {
	return s.lanes[murmur3.Sum32([]byte(path))%uint32(len(s.lanes))]
}

// Submit queues req and returns without waiting. cb, if not nil, is
// called when the request finishes.
func (s *Service) Submit(req Request, cb Callback) error {
	return s.enqueue(&task{req: req, cb: cb})
}

func (s *Service) enqueue(t *task) error {
	if err := t.req.validate(); err != nil {
		return err
	}
	if s.denied.Load() {
		return ErrDenied
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrDenied
	}

	s.pmu.Lock()
	if s.pending == 0 {
		s.idle = make(chan struct{})
	}
	s.pending++
	s.pmu.Unlock()

	s.requested.Add(1)
	s.metrics.ObserveRequest(t.req.Op)
	s.lane(t.req.Src) <- t
	return nil
}

// do submits req and waits for it. If ctx ends first the request still
// runs to completion and ctx's error is returned.
func (s *Service) do(ctx context.Context, req Request) error {
	t := &task{req: req, done: make(chan error, 1)}
	if err := s.enqueue(t); err != nil {
		return err
	}
	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Copy copies src to dst.
func (s *Service) Copy(ctx context.Context, src, dst string) error {
	return s.do(ctx, Request{Op: OpCopy, Src: src, Dst: dst})
}

// CopyReadOnly copies src to dst and makes dst read-only.
func (s *Service) CopyReadOnly(ctx context.Context, src, dst string) error {
	return s.do(ctx, Request{Op: OpCopyReadOnly, Src: src, Dst: dst})
}

// Link hard-links dst to src, copying when the two are on different
// devices.
func (s *Service) Link(ctx context.Context, src, dst string) error {
	return s.do(ctx, Request{Op: OpLink, Src: src, Dst: dst})
}

// Move renames src to dst, copying and removing across devices.
func (s *Service) Move(ctx context.Context, src, dst string) error {
	return s.do(ctx, Request{Op: OpMove, Src: src, Dst: dst})
}

// Delete removes path. A missing file is not an error.
func (s *Service) Delete(ctx context.Context, path string) error {
	return s.do(ctx, Request{Op: OpDelete, Src: path})
}

// WaitForCompletion blocks until no request is pending or ctx ends.
func (s *Service) WaitForCompletion(ctx context.Context) error {
	s.pmu.Lock()
	idle := s.idle
	s.pmu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DenyFutureOperations makes every later request fail with ErrDenied.
// Queued requests still run.
func (s *Service) DenyFutureOperations() {
	if !s.denied.Swap(true) {
		s.logger.Info("file operations denied", "pending", s.Stats().Pending)
	}
}

// Stats returns the request counters.
func (s *Service) Stats() Stats {
	s.pmu.Lock()
	pending := s.pending
	s.pmu.Unlock()
	return Stats{
		Requested: s.requested.Load(),
		Completed: s.completed.Load(),
		Failed:    s.failed.Load(),
		Pending:   pending,
	}
}

// Close denies further requests, runs what is queued and stops the
// workers.
func (s *Service) Close() error {
	s.DenyFutureOperations()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for _, l := range s.lanes {
		close(l)
	}
	s.mu.Unlock()
	s.wg.Wait()
	s.cbs.Wait()
	return nil
}

func (s *Service) worker(lane <-chan *task) {
	defer s.wg.Done()
	for t := range lane {
		n, err := s.execute(t.req)
		if err != nil {
			s.failed.Add(1)
			s.logger.Warn("file operation failed",
				"op", t.req.Op.String(),
				"src", t.req.Src,
				"dst", t.req.Dst,
				"error", err)
		}
		s.metrics.ObserveComplete(t.req.Op, n, err)
		if t.done != nil {
			t.done <- err
		}
		s.completed.Add(1)

		if t.cb == nil {
			s.finish()
			continue
		}
		// Off the worker: a callback that submits to this lane while it is
		// full would otherwise wait on itself.
		s.cbs.Add(1)
		go func(t *task, err error) {
			defer s.cbs.Done()
			defer s.finish()
			t.cb(t.req, err)
		}(t, err)
	}
}

func (s *Service) finish() {
	s.pmu.Lock()
	s.pending--
	if s.pending == 0 {
		close(s.idle)
	}
	s.pmu.Unlock()
}
