package wal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

// buildSegments writes one segment per step, rolling after each.
func buildSegments(t *testing.T, dir string, steps ...func(w *Writer)) {
	t.Helper()
	w := newTestWriter(t, dir, nil)
	for _, step := range steps {
		step(w)
		if err := w.Roll(); err != nil {
			t.Fatalf("Roll: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func commitNote(t *testing.T, w *Writer, title string) {
	t.Helper()
	id := w.Begin()
	appendNote(t, w, id, title)
	if _, err := w.Commit(id, kindNote); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func TestCompactor_RemovesResolvedSegments(t *testing.T) {
	dir := t.TempDir()
	var straddler TxnID
	buildSegments(t, dir,
		func(w *Writer) { commitNote(t, w, "s1") },
		func(w *Writer) { straddler = w.Begin(); appendNote(t, w, straddler, "s2") },
		func(w *Writer) { commitNote(t, w, "s3") },
		func(w *Writer) {
			if _, err := w.Commit(straddler, kindNote); err != nil {
				t.Fatalf("Commit: %v", err)
			}
		},
	)

	c := NewCompactor(dir, testRegistry(), WithRetainCount(1))
	res, err := c.Compact(context.Background(), 100)
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if len(res.Removed) != 4 || res.BlockedBy != nil {
		t.Fatalf("Removed = %v, BlockedBy = %v; want 4 segments removed", res.Removed, res.BlockedBy)
	}
	if n, _ := c.FileCount(); n != 1 {
		t.Fatalf("FileCount = %d, want 1", n)
	}
}

func TestCompactor_StopsAtUnresolvedTransaction(t *testing.T) {
	dir := t.TempDir()
	var open TxnID
	buildSegments(t, dir,
		func(w *Writer) { commitNote(t, w, "s1") },
		func(w *Writer) { open = w.Begin(); appendNote(t, w, open, "s2") },
		func(w *Writer) { commitNote(t, w, "s3") },
	)
	// open stays in every later checkpoint.

	c := NewCompactor(dir, testRegistry(), WithRetainCount(1))
	res, err := c.Compact(context.Background(), 3)
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if len(res.Removed) != 1 || res.Removed[0] != 1 {
		t.Fatalf("Removed = %v, want [1]", res.Removed)
	}
	if res.BlockedBy == nil || *res.BlockedBy != open {
		t.Fatalf("BlockedBy = %v, want %s", res.BlockedBy, open)
	}
	if _, err := os.Stat(filepath.Join(dir, FormatSegmentFilename(2))); err != nil {
		t.Fatalf("segment 2 removed: %v", err)
	}
}

func TestCompactor_RespectsRetainCountAndCut(t *testing.T) {
	dir := t.TempDir()
	buildSegments(t, dir,
		func(w *Writer) { commitNote(t, w, "a") },
		func(w *Writer) { commitNote(t, w, "b") },
		func(w *Writer) { commitNote(t, w, "c") },
	)

	c := NewCompactor(dir, testRegistry(), WithRetainCount(3))
	res, err := c.Compact(context.Background(), 100)
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	// 4 segments on disk, 3 retained.
	if len(res.Removed) != 1 {
		t.Fatalf("Removed = %v, want one segment", res.Removed)
	}

	res, err = NewCompactor(dir, testRegistry(), WithRetainCount(1)).Compact(context.Background(), 3)
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if len(res.Removed) != 1 || res.Removed[0] != 2 {
		t.Fatalf("Removed = %v, want [2]", res.Removed)
	}
}

type recordingMover struct {
	moved   []string
	deleted []string
}

func (m *recordingMover) Move(ctx context.Context, src, dst string) error {
	m.moved = append(m.moved, dst)
	return osMover{}.Move(ctx, src, dst)
}

func (m *recordingMover) Delete(ctx context.Context, path string) error {
	m.deleted = append(m.deleted, path)
	return osMover{}.Delete(ctx, path)
}

func TestCompactor_ArchivesThroughMover(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(t.TempDir(), "archive")
	buildSegments(t, dir,
		func(w *Writer) { commitNote(t, w, "a") },
		func(w *Writer) { commitNote(t, w, "b") },
	)

	m := &recordingMover{}
	c := NewCompactor(dir, testRegistry(), WithRetainCount(1), WithArchiveDir(archive), WithFileMover(m))
	res, err := c.Compact(context.Background(), 100)
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if len(res.Removed) != 2 || len(m.moved) != 2 || len(m.deleted) != 0 {
		t.Fatalf("Removed = %v, moved = %v, deleted = %v", res.Removed, m.moved, m.deleted)
	}
	if _, err := os.Stat(filepath.Join(archive, FormatSegmentFilename(1))); err != nil {
		t.Fatalf("archived segment missing: %v", err)
	}
	if err := VerifyTrailerChecksum(filepath.Join(archive, FormatSegmentFilename(2))); err != nil {
		t.Fatalf("archived segment damaged: %v", err)
	}
}

func TestCompactor_SizeHelpers(t *testing.T) {
	dir := t.TempDir()
	buildSegments(t, dir, func(w *Writer) { commitNote(t, w, "a") })

	c := NewCompactor(dir, testRegistry())
	total, err := c.TotalSize()
	if err != nil || total == 0 {
		t.Fatalf("TotalSize = %d, %v", total, err)
	}
	if !c.NeedsCompaction(total - 1) {
		t.Fatal("NeedsCompaction(total-1) = false")
	}
	if c.NeedsCompaction(total) {
		t.Fatal("NeedsCompaction(total) = true")
	}

	missing := NewCompactor(filepath.Join(dir, "nope"), testRegistry())
	if n, err := missing.FileCount(); err != nil || n != 0 {
		t.Fatalf("FileCount = %d, %v; want 0, nil", n, err)
	}
}
