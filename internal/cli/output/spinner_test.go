package output

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer is a bytes.Buffer safe for the spinner goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSpinner_Success(t *testing.T) {
	var buf syncBuffer
	s := NewSpinner(&buf, "replaying")
	s.Start()
	time.Sleep(150 * time.Millisecond)
	s.Success("recovery complete")

	out := buf.String()
	if !strings.Contains(out, "replaying") {
		t.Errorf("output missing message: %q", out)
	}
	if !strings.HasSuffix(out, "✓ recovery complete\n") {
		t.Errorf("output = %q, want success line last", out)
	}

	// Nothing is drawn once stopped.
	n := len(buf.String())
	time.Sleep(150 * time.Millisecond)
	s.Fail("ignored")
	if len(buf.String()) != n {
		t.Error("spinner wrote after Success")
	}
}

func TestSpinner_Fail(t *testing.T) {
	var buf syncBuffer
	s := NewSpinner(&buf, "working")
	s.Start()
	s.Fail("recovery failed")
	if !strings.HasSuffix(buf.String(), "✗ recovery failed\n") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestSpinner_StopWithoutStart(t *testing.T) {
	var buf syncBuffer
	s := NewSpinner(&buf, "idle")
	s.Stop()
	s.Stop()
	if buf.String() != "\r\033[K" {
		t.Errorf("output = %q, want one clear", buf.String())
	}
}
