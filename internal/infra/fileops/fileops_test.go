package fileops

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newService(t *testing.T, mutate func(*Config)) *Service {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Workers = 3
	if mutate != nil {
		mutate(&cfg)
	}
	s := New(cfg)
	t.Cleanup(func() { s.Close() })
	return s
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0640); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(%s): %v", path, err)
	}
	return b
}

func TestService_SyncOperations(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := newService(t, nil)
	data := []byte("segment contents")
	src := filepath.Join(dir, "src")
	writeFile(t, src, data)

	t.Run("copy", func(t *testing.T) {
		dst := filepath.Join(dir, "copy", "dst")
		if err := s.Copy(ctx, src, dst); err != nil {
			t.Fatalf("Copy: %v", err)
		}
		if got := readFile(t, dst); !bytes.Equal(got, data) {
			t.Errorf("copy = %q, want %q", got, data)
		}
	})

	t.Run("copy read-only", func(t *testing.T) {
		dst := filepath.Join(dir, "ro")
		if err := s.CopyReadOnly(ctx, src, dst); err != nil {
			t.Fatalf("CopyReadOnly: %v", err)
		}
		info, err := os.Stat(dst)
		if err != nil {
			t.Fatalf("Stat: %v", err)
		}
		if perm := info.Mode().Perm(); perm != readOnlyPerm {
			t.Errorf("perm = %o, want %o", perm, readOnlyPerm)
		}
	})

	t.Run("link", func(t *testing.T) {
		dst := filepath.Join(dir, "link")
		if err := s.Link(ctx, src, dst); err != nil {
			t.Fatalf("Link: %v", err)
		}
		if got := readFile(t, dst); !bytes.Equal(got, data) {
			t.Errorf("link = %q, want %q", got, data)
		}
	})

	t.Run("move", func(t *testing.T) {
		from := filepath.Join(dir, "moving")
		writeFile(t, from, data)
		dst := filepath.Join(dir, "archive", "moved")
		if err := s.Move(ctx, from, dst); err != nil {
			t.Fatalf("Move: %v", err)
		}
		if _, err := os.Stat(from); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("source still exists: %v", err)
		}
		if got := readFile(t, dst); !bytes.Equal(got, data) {
			t.Errorf("moved = %q, want %q", got, data)
		}
	})

	t.Run("delete", func(t *testing.T) {
		path := filepath.Join(dir, "doomed")
		writeFile(t, path, data)
		if err := s.Delete(ctx, path); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if err := s.Delete(ctx, path); err != nil {
			t.Fatalf("Delete missing: %v", err)
		}
	})

	t.Run("missing source", func(t *testing.T) {
		err := s.Copy(ctx, filepath.Join(dir, "nope"), filepath.Join(dir, "x"))
		if !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("Copy error = %v, want %v", err, os.ErrNotExist)
		}
	})
}

func TestService_InvalidRequest(t *testing.T) {
	s := newService(t, nil)
	tests := []Request{
		{Op: OpCopy, Src: "a"},
		{Op: OpDelete},
		{Op: Op(99), Src: "a", Dst: "b"},
	}
	for _, req := range tests {
		if err := s.Submit(req, nil); !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("Submit(%+v) = %v, want %v", req, err, ErrInvalidRequest)
		}
	}
	if st := s.Stats(); st.Requested != 0 {
		t.Errorf("Requested = %d, want 0", st.Requested)
	}
}

func TestService_AsyncBatch(t *testing.T) {
	dir := t.TempDir()
	s := newService(t, nil)

	const n = 20
	var (
		mu   sync.Mutex
		done []string
	)
	cb := func(req Request, err error) {
		if err != nil {
			t.Errorf("%s %s: %v", req.Op, req.Src, err)
		}
		mu.Lock()
		done = append(done, req.Dst)
		mu.Unlock()
	}
	if err := os.MkdirAll(filepath.Join(dir, "src"), 0750); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	for i := 0; i < n; i++ {
		src := filepath.Join(dir, "src", string(rune('a'+i)))
		writeFile(t, src, []byte{byte(i)})
		if err := s.Submit(Request{Op: OpMove, Src: src, Dst: filepath.Join(dir, "dst", filepath.Base(src))}, cb); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.WaitForCompletion(ctx); err != nil {
		t.Fatalf("WaitForCompletion: %v", err)
	}

	mu.Lock()
	got := len(done)
	mu.Unlock()
	if got != n {
		t.Errorf("callbacks = %d, want %d", got, n)
	}
	want := Stats{Requested: n, Completed: n}
	if st := s.Stats(); st != want {
		t.Errorf("Stats = %+v, want %+v", st, want)
	}
}

func TestService_SamePathInOrder(t *testing.T) {
	dir := t.TempDir()
	s := newService(t, func(c *Config) { c.Workers = 8 })
	src := filepath.Join(dir, "blob")
	dst := filepath.Join(dir, "copy")
	writeFile(t, src, []byte("blob"))

	var copyErr error
	if err := s.Submit(Request{Op: OpCopy, Src: src, Dst: dst}, func(_ Request, err error) { copyErr = err }); err != nil {
		t.Fatalf("Submit copy: %v", err)
	}
	if err := s.Submit(Request{Op: OpDelete, Src: src}, nil); err != nil {
		t.Fatalf("Submit delete: %v", err)
	}
	if err := s.WaitForCompletion(context.Background()); err != nil {
		t.Fatalf("WaitForCompletion: %v", err)
	}
	if copyErr != nil {
		t.Fatalf("copy ran after delete: %v", copyErr)
	}
	if got := readFile(t, dst); string(got) != "blob" {
		t.Errorf("copy = %q", got)
	}
}

func TestService_CallbackSubmits(t *testing.T) {
	dir := t.TempDir()
	s := newService(t, func(c *Config) {
		c.Workers = 1
		c.QueueSize = 1
	})

	const n = 4
	var (
		mu   sync.Mutex
		ran  int
		errs []error
	)
	counted := func(Request, error) {
		mu.Lock()
		ran++
		mu.Unlock()
	}
	// Every follow-up lands on the single lane while it holds at most one
	// queued request.
	fanOut := func(Request, error) {
		for i := 0; i < n; i++ {
			path := filepath.Join(dir, "missing", string(rune('a'+i)))
			if err := s.Submit(Request{Op: OpDelete, Src: path}, counted); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}
	}
	if err := s.Submit(Request{Op: OpDelete, Src: filepath.Join(dir, "first")}, fanOut); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.WaitForCompletion(ctx); err != nil {
		t.Fatalf("WaitForCompletion: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(errs) != 0 {
		t.Fatalf("Submit from callback: %v", errs)
	}
	if ran != n {
		t.Errorf("follow-up callbacks = %d, want %d", ran, n)
	}
	want := Stats{Requested: n + 1, Completed: n + 1}
	if st := s.Stats(); st != want {
		t.Errorf("Stats = %+v, want %+v", st, want)
	}
}

func TestService_DenyFutureOperations(t *testing.T) {
	dir := t.TempDir()
	s := newService(t, nil)
	s.DenyFutureOperations()

	err := s.Delete(context.Background(), filepath.Join(dir, "x"))
	if !errors.Is(err, ErrDenied) {
		t.Fatalf("Delete error = %v, want %v", err, ErrDenied)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := s.Submit(Request{Op: OpDelete, Src: "x"}, nil); !errors.Is(err, ErrDenied) {
		t.Fatalf("Submit after Close = %v, want %v", err, ErrDenied)
	}
}

func TestService_Throttled(t *testing.T) {
	dir := t.TempDir()
	s := newService(t, func(c *Config) { c.MaxRateBytesPerSec = 64 << 10 })
	data := bytes.Repeat([]byte("x"), 32<<10)
	src := filepath.Join(dir, "src")
	writeFile(t, src, data)

	if err := s.Copy(context.Background(), src, filepath.Join(dir, "dst")); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if got := readFile(t, filepath.Join(dir, "dst")); !bytes.Equal(got, data) {
		t.Errorf("copied %d bytes, want %d", len(got), len(data))
	}
}

type recordingMetrics struct {
	mu       sync.Mutex
	requests map[Op]int
	bytes    int64
}

func (m *recordingMetrics) ObserveRequest(op Op) {
	m.mu.Lock()
	m.requests[op]++
	m.mu.Unlock()
}

func (m *recordingMetrics) ObserveComplete(_ Op, n int64, _ error) {
	m.mu.Lock()
	m.bytes += n
	m.mu.Unlock()
}

func TestService_Metrics(t *testing.T) {
	dir := t.TempDir()
	m := &recordingMetrics{requests: make(map[Op]int)}
	s := newService(t, func(c *Config) { c.Metrics = m })
	src := filepath.Join(dir, "src")
	writeFile(t, src, []byte("12345"))

	if err := s.Copy(context.Background(), src, filepath.Join(dir, "dst")); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if err := s.Delete(context.Background(), src); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.requests[OpCopy] != 1 || m.requests[OpDelete] != 1 {
		t.Errorf("requests = %v", m.requests)
	}
	if m.bytes != 5 {
		t.Errorf("bytes = %d, want 5", m.bytes)
	}
}
