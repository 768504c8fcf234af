package shutdown

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Option configures a Handler.
type Option func(*Handler)

// WithLogger logs each hook as it runs.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

type hook struct {
	name string
	fn   func(context.Context) error
}

// Handler runs registered hooks once the process is asked to stop.
type Handler struct {
	timeout time.Duration
	logger  *slog.Logger

	mu    sync.Mutex
	hooks []hook

	cause     chan error
	causeOnce sync.Once
	done      chan struct{}
}

// NewHandler returns a handler whose hooks share timeout.
func NewHandler(timeout time.Duration, opts ...Option) *Handler {
	h := &Handler{
		timeout: timeout,
		logger:  slog.New(slog.DiscardHandler),
		cause:   make(chan error, 1),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// OnShutdown registers fn under name. Hooks run last-registered first, so
// a component registered after its dependencies is stopped before them.
func (h *Handler) OnShutdown(name string, fn func(context.Context) error) {
	h.mu.Lock()
	h.hooks = append(h.hooks, hook{name: name, fn: fn})
	h.mu.Unlock()
}

// Trigger requests shutdown from inside the process. cause, if non-nil,
// is returned by Wait. Calls after the first are ignored.
func (h *Handler) Trigger(cause error) {
	h.causeOnce.Do(func() { h.cause <- cause })
}

// Wait blocks until SIGINT, SIGTERM, Trigger or the end of ctx, then runs
// the hooks. Every hook runs even if an earlier one fails; the returned
// error joins the trigger cause with each hook failure.
func (h *Handler) Wait(ctx context.Context) error {
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	var cause error
	select {
	case <-sigCtx.Done():
		h.logger.Info("shutdown requested", "reason", context.Cause(sigCtx))
	case cause = <-h.cause:
		h.logger.Info("shutdown requested", "reason", cause)
	}
	stop()

	hookCtx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	h.mu.Lock()
	hooks := append([]hook(nil), h.hooks...)
	h.mu.Unlock()

	errs := []error{cause}
	for i := len(hooks) - 1; i >= 0; i-- {
		hk := hooks[i]
		start := time.Now()
		err := hk.fn(hookCtx)
		h.logger.Debug("shutdown hook finished", "hook", hk.name, "duration", time.Since(start), "error", err)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", hk.name, err))
		}
	}

	close(h.done)
	return errors.Join(errs...)
}

// Done is closed once Wait has run every hook.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}
