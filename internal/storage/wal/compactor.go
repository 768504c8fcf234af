package wal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// DefaultRetainCount is the default number of segments kept after
// compaction.
const DefaultRetainCount = 3

// FileMover removes or relocates segment files.
type FileMover interface {
	Move(ctx context.Context, src, dst string) error
	Delete(ctx context.Context, path string) error
}

type osMover struct{}

func (osMover) Move(_ context.Context, src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), DefaultDirPerm); err != nil {
		return err
	}
	return os.Rename(src, dst)
}

func (osMover) Delete(_ context.Context, path string) error {
	return os.Remove(path)
}

// Compactor removes segments that recovery no longer needs.
type Compactor struct {
	walDir      string
	archiveDir  string
	retainCount int
	maxPayload  int64
	reg         *Registry
	mover       FileMover
	logger      *slog.Logger
}

// CompactorOption configures the Compactor.
type CompactorOption func(*Compactor)

// WithRetainCount sets the number of segments to retain.
func WithRetainCount(count int) CompactorOption {
	return func(c *Compactor) {
		if count > 0 {
			c.retainCount = count
		}
	}
}

// WithArchiveDir moves compacted segments into dir instead of deleting
// them.
func WithArchiveDir(dir string) CompactorOption {
	return func(c *Compactor) {
		c.archiveDir = dir
	}
}

// WithFileMover routes file removal through m.
func WithFileMover(m FileMover) CompactorOption {
	return func(c *Compactor) {
		if m != nil {
			c.mover = m
		}
	}
}

// WithCompactorLogger sets the compactor's logger.
func WithCompactorLogger(l *slog.Logger) CompactorOption {
	return func(c *Compactor) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithCompactorMaxPayload sets the payload limit used while scanning.
func WithCompactorMaxPayload(n int64) CompactorOption {
	return func(c *Compactor) {
		if n > 0 {
			c.maxPayload = n
		}
	}
}

// NewCompactor creates a compactor for the log in walDir.
func NewCompactor(walDir string, reg *Registry, opts ...CompactorOption) *Compactor {
	c := &Compactor{
		walDir:      walDir,
		retainCount: DefaultRetainCount,
		maxPayload:  DefaultMaxPayloadSize,
		reg:         reg,
		mover:       osMover{},
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CompactResult reports what Compact did.
type CompactResult struct {
	Removed    []uint64
	BytesFreed int64

	// BlockedBy is set when a transaction open across a segment boundary
	// stopped compaction early.
	BlockedBy *TxnID
}

// Compact removes finalized segments with a sequence below before,
// oldest first, keeping at least retainCount segments. The store must
// already hold the effects of every transaction committed in them.
//
// Compaction stops at the first segment whose trailing Checkpoint lists
// a transaction that is not resolved in a later segment, or that has no
// Checkpoint at all.
func (c *Compactor) Compact(ctx context.Context, before uint64) (CompactResult, error) {
	var res CompactResult

	r, err := OpenReader(c.walDir, c.reg,
		WithMaxPayloadSize(c.maxPayload),
		WithReaderLogger(c.logger),
	)
	if err != nil {
		return res, err
	}
	segs := r.Segments()

	limit := len(segs) - c.retainCount
	n := 0
	for n < limit && segs[n].Finalized && segs[n].Sequence < before {
		n++
	}
	if n == 0 {
		r.Close()
		return res, nil
	}

	resolvedIn := make(map[TxnID]uint64)
	if _, err := r.Scan(ctx, func(rec *Record) error {
		if rec.Kind == KindCommitTxn || rec.Kind == KindAbortTxn {
			resolvedIn[rec.TxnID] = rec.Pos.Segment
		}
		return nil
	}); err != nil {
		r.Close()
		return res, err
	}

	cut := 0
scan:
	for i := 0; i < n; i++ {
		cp, err := r.LastCheckpoint(segs[i].Sequence)
		if err != nil {
			r.Close()
			return res, err
		}
		if cp == nil {
			c.logger.Warn("segment has no checkpoint, compaction stopped", "segment", segs[i].Sequence)
			break
		}
		for _, id := range cp.Open {
			if seq, ok := resolvedIn[id]; !ok || seq <= segs[i].Sequence {
				blocked := id
				res.BlockedBy = &blocked
				break scan
			}
		}
		cut = i + 1
	}
	r.Close()

	var errs []error
	for _, seg := range segs[:cut] {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := c.remove(ctx, seg); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", seg.Path, err))
			break
		}
		res.Removed = append(res.Removed, seg.Sequence)
		res.BytesFreed += seg.Size
	}

	if len(res.Removed) > 0 {
		c.logger.Info("compacted wal",
			"removed", len(res.Removed),
			"first", res.Removed[0],
			"last", res.Removed[len(res.Removed)-1],
			"bytes", res.BytesFreed,
		)
	}
	if len(errs) > 0 {
		return res, fmt.Errorf("wal: compaction: %w", errors.Join(errs...))
	}
	return res, nil
}

func (c *Compactor) remove(ctx context.Context, seg SegmentInfo) error {
	if c.archiveDir != "" {
		return c.mover.Move(ctx, seg.Path, filepath.Join(c.archiveDir, filepath.Base(seg.Path)))
	}
	return c.mover.Delete(ctx, seg.Path)
}

// NeedsCompaction returns true if the total log size exceeds threshold.
func (c *Compactor) NeedsCompaction(threshold int64) bool {
	totalSize, _ := c.TotalSize()
	return totalSize > threshold
}

// TotalSize returns the total size of all segment files in bytes.
func (c *Compactor) TotalSize() (int64, error) {
	segs, err := listSegments(c.walDir)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, s := range segs {
		total += s.Size
	}
	return total, nil
}

// FileCount returns the number of segment files.
func (c *Compactor) FileCount() (int, error) {
	segs, err := listSegments(c.walDir)
	if err != nil {
		return 0, err
	}
	return len(segs), nil
}
