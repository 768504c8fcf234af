package shutdown

import (
	"context"
	"errors"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"
)

func TestHandler_HooksRunInReverse(t *testing.T) {
	h := NewHandler(time.Second)

	var order []string
	for _, name := range []string{"storage", "config-watcher", "http"} {
		h.OnShutdown(name, func(context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	h.Trigger(nil)
	if err := h.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if got := strings.Join(order, ","); got != "http,config-watcher,storage" {
		t.Errorf("order = %s, want http,config-watcher,storage", got)
	}
}

func TestHandler_Done(t *testing.T) {
	h := NewHandler(time.Second)
	select {
	case <-h.Done():
		t.Fatal("Done closed before Wait")
	default:
	}

	h.Trigger(nil)
	if err := h.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	select {
	case <-h.Done():
	default:
		t.Error("Done not closed after Wait")
	}
}

func TestHandler_TriggerCause(t *testing.T) {
	h := NewHandler(time.Second)
	listenErr := errors.New("address in use")

	ran := false
	h.OnShutdown("storage", func(context.Context) error {
		ran = true
		return nil
	})

	h.Trigger(listenErr)
	h.Trigger(errors.New("ignored"))

	err := h.Wait(context.Background())
	if !errors.Is(err, listenErr) {
		t.Errorf("Wait() = %v, want %v", err, listenErr)
	}
	if strings.Contains(err.Error(), "ignored") {
		t.Errorf("second Trigger leaked into %v", err)
	}
	if !ran {
		t.Error("hook did not run after Trigger")
	}
}

func TestHandler_HookErrorsJoined(t *testing.T) {
	h := NewHandler(time.Second)
	errClose := errors.New("close failed")

	var ran []string
	h.OnShutdown("storage", func(context.Context) error {
		ran = append(ran, "storage")
		return nil
	})
	h.OnShutdown("http", func(context.Context) error {
		ran = append(ran, "http")
		return errClose
	})

	h.Trigger(nil)
	err := h.Wait(context.Background())
	if !errors.Is(err, errClose) {
		t.Fatalf("Wait() = %v, want %v", err, errClose)
	}
	if !strings.Contains(err.Error(), "http: close failed") {
		t.Errorf("error %q does not name the hook", err)
	}
	if len(ran) != 2 {
		t.Errorf("ran = %v, want both hooks", ran)
	}
}

func TestHandler_HookDeadline(t *testing.T) {
	h := NewHandler(50 * time.Millisecond)
	h.OnShutdown("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	h.Trigger(nil)
	start := time.Now()
	err := h.Wait(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() = %v, want deadline exceeded", err)
	}
	if d := time.Since(start); d > 2*time.Second {
		t.Errorf("Wait took %v", d)
	}
}

func TestHandler_ParentContext(t *testing.T) {
	h := NewHandler(time.Second)
	ran := false
	h.OnShutdown("storage", func(context.Context) error {
		ran = true
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := h.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if !ran {
		t.Error("hook did not run after parent cancel")
	}
}

func TestHandler_Signal(t *testing.T) {
	h := NewHandler(time.Second)
	ran := make(chan struct{})
	h.OnShutdown("storage", func(context.Context) error {
		close(ran)
		return nil
	})

	errCh := make(chan error, 1)
	go func() { errCh <- h.Wait(context.Background()) }()

	// Let Wait install its signal handler before the signal is sent.
	time.Sleep(50 * time.Millisecond)
	if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("kill: %v", err)
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Wait() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not return after SIGTERM")
	}
	select {
	case <-ran:
	default:
		t.Error("hook did not run")
	}
}

func TestHandler_ConcurrentRegistration(t *testing.T) {
	h := NewHandler(time.Second)

	var mu sync.Mutex
	count := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.OnShutdown("worker", func(context.Context) error {
				mu.Lock()
				count++
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	h.Trigger(nil)
	if err := h.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if count != 50 {
		t.Errorf("ran %d hooks, want 50", count)
	}
}
