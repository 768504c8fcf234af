package httpserver

import (
	"log/slog"
	"net/http"
	"slices"

	"github.com/yndnr/redolog-go/internal/server/httpserver/handler"
)

// RouterConfig selects what NewRouter serves.
type RouterConfig struct {
	Engine handler.Engine

	// Metrics serves /metrics. Nil leaves the route unregistered.
	Metrics http.Handler

	Logger *slog.Logger

	// RateLimit caps requests per second per client on /v1. Zero
	// disables it.
	RateLimit int

	EnableAccessLog bool
}

// DefaultRouterConfig returns the router settings the server starts with.
func DefaultRouterConfig() *RouterConfig {
	return &RouterConfig{RateLimit: 100, EnableAccessLog: true}
}

// NewRouter mounts the health, metrics and /v1 admin routes. Health checks and
// metrics are never rate limited.
func NewRouter(cfg *RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	h := handler.New(cfg.Engine, log)

	base := []Middleware{RequestID(), Recover(log)}
	if cfg.EnableAccessLog {
		base = append(base, AccessLog(log))
	}
	admin := slices.Clip(base)
	if cfg.RateLimit > 0 {
		admin = append(admin, RateLimit(cfg.RateLimit))
	}

	mux := http.NewServeMux()
	mux.Handle("GET /healthz", Chain(h, base...))
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", Chain(cfg.Metrics, base...))
	}
	v1 := Chain(h, admin...)
	for _, route := range []string{"GET /v1/wal/status", "POST /v1/wal/checkpoint"} {
		mux.Handle(route, v1)
	}
	return mux
}
