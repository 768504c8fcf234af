// Package shutdown coordinates graceful process shutdown.
//
// A Handler waits for SIGINT, SIGTERM or an explicit Trigger, then runs
// named hooks in reverse order of registration under one deadline:
//
//	h := shutdown.NewHandler(30*time.Second, shutdown.WithLogger(log))
//	h.OnShutdown("storage", func(context.Context) error { return engine.Close() })
//	err := h.Wait(ctx)
package shutdown
