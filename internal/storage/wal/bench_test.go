package wal

import (
	"bytes"
	"fmt"
	"testing"
)

func benchWriter(b *testing.B, mode SyncMode) *Writer {
	b.Helper()
	cfg := DefaultConfig(b.TempDir(), testRegistry())
	cfg.NodeID = "bench"
	cfg.SyncMode = mode
	cfg.MaxSegmentAge = -1
	cfg.MaxFileSize = 64 << 20
	w, err := NewWriter(cfg)
	if err != nil {
		b.Fatalf("NewWriter: %v", err)
	}
	b.Cleanup(func() { w.Close() })
	return w
}

// BenchmarkAppend measures one operation record per iteration.
func BenchmarkAppend(b *testing.B) {
	w := benchWriter(b, SyncModeBatch)
	id := w.Begin()
	op := &noteOp{Title: "Inbox/Archive", Count: 3, Tags: []string{"a", "b"}, Owner: "me"}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := w.Append(NewRecord(id, 7, op)); err != nil {
			b.Fatalf("Append: %v", err)
		}
	}
}

// BenchmarkTransaction measures a begin, append and commit cycle, with
// the commit waiting for disk in sync mode.
func BenchmarkTransaction(b *testing.B) {
	for _, mode := range []SyncMode{SyncModeBatch, SyncModeSync} {
		b.Run(string(mode), func(b *testing.B) {
			w := benchWriter(b, mode)
			op := &noteOp{Title: "t", Owner: "me"}

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				id := w.Begin()
				if _, err := w.Append(NewRecord(id, 7, op)); err != nil {
					b.Fatalf("Append: %v", err)
				}
				if _, err := w.Commit(id, kindNote); err != nil {
					b.Fatalf("Commit: %v", err)
				}
			}
		})
	}
}

// BenchmarkAppendPayload measures records carrying message bodies.
func BenchmarkAppendPayload(b *testing.B) {
	for _, size := range []int{1 << 10, 64 << 10} {
		b.Run(fmt.Sprintf("%dKB", size>>10), func(b *testing.B) {
			w := benchWriter(b, SyncModeBatch)
			id := w.Begin()
			body := bytes.Repeat([]byte("x"), size)

			b.SetBytes(int64(size))
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				rec := NewRecord(id, 7, &noteOp{Title: "m"}).WithPayload(NewBytesPayload(body))
				if _, err := w.Append(rec); err != nil {
					b.Fatalf("Append: %v", err)
				}
			}
		})
	}
}

// BenchmarkScan measures reading back committed transactions.
func BenchmarkScan(b *testing.B) {
	for _, n := range []int{1000, 10000} {
		b.Run(fmt.Sprintf("txns=%d", n), func(b *testing.B) {
			dir := b.TempDir()
			cfg := DefaultConfig(dir, testRegistry())
			cfg.NodeID = "bench"
			cfg.SyncMode = SyncModeBatch
			cfg.MaxSegmentAge = -1
			w, err := NewWriter(cfg)
			if err != nil {
				b.Fatalf("NewWriter: %v", err)
			}
			for i := 0; i < n; i++ {
				id := w.Begin()
				w.Append(NewRecord(id, 7, &noteOp{Title: "t", Owner: "me"}))
				w.Commit(id, kindNote)
			}
			if err := w.Close(); err != nil {
				b.Fatalf("Close: %v", err)
			}

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				r, err := OpenReader(dir, testRegistry())
				if err != nil {
					b.Fatalf("OpenReader: %v", err)
				}
				res, err := r.Scan(b.Context(), func(*Record) error { return nil })
				r.Close()
				if err != nil {
					b.Fatalf("Scan: %v", err)
				}
				if res.Records < 2*n {
					b.Fatalf("Records = %d, want at least %d", res.Records, 2*n)
				}
			}
		})
	}
}
