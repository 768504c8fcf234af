package confloader

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// startWatcher watches a fresh config file and collects changed paths.
func startWatcher(t *testing.T, opts ...WatcherOption) (string, *Watcher, <-chan string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "redolog.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: info\n"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	opts = append([]WatcherOption{WithWatcherLogger(slog.New(slog.DiscardHandler))}, opts...)
	w, err := NewWatcher(opts...)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	t.Cleanup(func() { w.Stop() })
	if err := w.Watch(path); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	changed := make(chan string, 16)
	w.OnChange(func(p string) { changed <- p })
	w.StartAsync()
	// Let the event loop start.
	time.Sleep(50 * time.Millisecond)
	return path, w, changed
}

func TestWatcher_FileChange(t *testing.T) {
	path, _, changed := startWatcher(t, WithDebounce(0))

	if err := os.WriteFile(path, []byte("log:\n  level: debug\n"), 0600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	abs, _ := filepath.Abs(path)
	select {
	case got := <-changed:
		if got != abs {
			t.Errorf("changed path = %q, want %q", got, abs)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no change reported")
	}
}

func TestWatcher_RenameIntoPlace(t *testing.T) {
	path, _, changed := startWatcher(t, WithDebounce(0))

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte("log:\n  level: warn\n"), 0600); err != nil {
		t.Fatalf("write temp: %v", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatalf("rename: %v", err)
	}

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("rename over the config file not reported")
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	path, _, changed := startWatcher(t, WithDebounce(0))

	other := filepath.Join(filepath.Dir(path), "notes.txt")
	if err := os.WriteFile(other, []byte("x"), 0600); err != nil {
		t.Fatalf("write other: %v", err)
	}

	select {
	case got := <-changed:
		t.Errorf("change reported for %q", got)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_Debounce(t *testing.T) {
	path, _, changed := startWatcher(t, WithDebounce(200*time.Millisecond))

	for _, level := range []string{"debug", "warn", "error"} {
		if err := os.WriteFile(path, []byte("log:\n  level: "+level+"\n"), 0600); err != nil {
			t.Fatalf("rewrite config: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("no change reported")
	}
	select {
	case <-changed:
		t.Error("burst of writes reported more than once")
	case <-time.After(400 * time.Millisecond):
	}
}

func TestWatcher_CallbacksRegisteredLate(t *testing.T) {
	path, w, _ := startWatcher(t, WithDebounce(0))

	var mu sync.Mutex
	calls := 0
	done := make(chan struct{}, 16)
	for range 2 {
		w.OnChange(func(string) {
			mu.Lock()
			calls++
			mu.Unlock()
			done <- struct{}{}
		})
	}

	if err := os.WriteFile(path, []byte("log:\n  level: error\n"), 0600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	for range 2 {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("late callback not called")
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if calls < 2 {
		t.Errorf("calls = %d, want at least 2", calls)
	}
}

func TestWatcher_WatchMissingDir(t *testing.T) {
	w, err := NewWatcher(WithWatcherLogger(slog.New(slog.DiscardHandler)))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()

	if err := w.Watch(filepath.Join(t.TempDir(), "absent", "redolog.yaml")); err == nil {
		t.Error("Watch() in a missing directory succeeded")
	}
}

func TestWatcher_StopTwice(t *testing.T) {
	_, w, _ := startWatcher(t)
	if err := w.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}
