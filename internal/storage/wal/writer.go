package wal

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Default configuration values.
const (
	DefaultSyncInterval        = time.Second
	DefaultMaxFileSize   int64 = 64 << 20 // 64MB
	DefaultMaxSegmentAge       = time.Hour
)

// SyncMode defines how the log syncs to disk.
type SyncMode string

const (
	// SyncModeSync fsyncs before Commit and Abort return.
	SyncModeSync SyncMode = "sync"
	// SyncModeBatch fsyncs on a timer.
	SyncModeBatch SyncMode = "batch"
)

// Config configures the log writer.
type Config struct {
	Dir    string
	NodeID string

	SyncMode     SyncMode
	SyncInterval time.Duration

	// MaxFileSize and MaxSegmentAge trigger rollover. A negative age
	// disables age-based rollover.
	MaxFileSize   int64
	MaxSegmentAge time.Duration

	MaxPayloadSize int64

	Registry *Registry
	Tracker  *Tracker
	Logger   *slog.Logger
	Metrics  MetricsHook
}

// DefaultConfig returns the default writer configuration.
func DefaultConfig(dir string, reg *Registry) Config {
	return Config{
		Dir:            dir,
		SyncMode:       SyncModeSync,
		SyncInterval:   DefaultSyncInterval,
		MaxFileSize:    DefaultMaxFileSize,
		MaxSegmentAge:  DefaultMaxSegmentAge,
		MaxPayloadSize: DefaultMaxPayloadSize,
		Registry:       reg,
	}
}

func applyDefaults(cfg *Config) {
	if cfg.SyncMode == "" {
		cfg.SyncMode = SyncModeSync
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = DefaultSyncInterval
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	if cfg.MaxSegmentAge == 0 {
		cfg.MaxSegmentAge = DefaultMaxSegmentAge
	}
	if cfg.MaxPayloadSize <= 0 {
		cfg.MaxPayloadSize = DefaultMaxPayloadSize
	}
	if cfg.Tracker == nil {
		cfg.Tracker = NewTracker()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NoopMetrics{}
	}
}

// segment is the file currently being appended to.
type segment struct {
	seq     uint64
	path    string
	file    *os.File
	created time.Time

	// Guarded by Writer.mu.
	size     int64
	records  int
	inflight map[int64]int64 // reserved offset -> end

	syncMu sync.Mutex
	synced int64
	closed bool // written with both Writer.mu and syncMu held
}

func (s *segment) inflightBelow(end int64) bool {
	for off := range s.inflight {
		if off < end {
			return true
		}
	}
	return false
}

// watermark is the offset below which every reserved record is written.
func (s *segment) watermark() int64 {
	w := s.size
	for off := range s.inflight {
		if off < w {
			w = off
		}
	}
	return w
}

// Writer appends records to the active segment.
//
// Appends reserve their byte range under a short lock and then write it
// with WriteAt, so a record streaming a large payload does not hold up
// records queued behind it. Rollover is exclusive: it waits for every
// reserved write to finish, snapshots the open transactions, and admits
// no new reservation until the next segment is open.
type Writer struct {
	cfg     Config
	reg     *Registry
	tracker *Tracker
	logger  *slog.Logger
	metrics MetricsHook

	mu      sync.Mutex
	cond    *sync.Cond
	cur     *segment
	rolling bool
	closed  bool
	failed  error

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewWriter opens the log in cfg.Dir. If the newest segment was not
// finalized (the previous process crashed), it is truncated to its last
// whole record and sealed, and transactions left open by the previous
// process are aborted in the new segment.
func NewWriter(cfg Config) (*Writer, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("wal: dir is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("wal: registry is required")
	}
	switch cfg.SyncMode {
	case "", SyncModeSync, SyncModeBatch:
	default:
		return nil, fmt.Errorf("wal: invalid sync mode %q", cfg.SyncMode)
	}
	if err := os.MkdirAll(cfg.Dir, DefaultDirPerm); err != nil {
		return nil, fmt.Errorf("wal: create dir: %w", err)
	}

	applyDefaults(&cfg)

	w := &Writer{
		cfg:     cfg,
		reg:     cfg.Registry,
		tracker: cfg.Tracker,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		stopCh:  make(chan struct{}),
	}
	w.cond = sync.NewCond(&w.mu)

	if err := w.reopen(); err != nil {
		return nil, err
	}

	if w.cfg.SyncMode == SyncModeBatch || w.cfg.MaxSegmentAge > 0 {
		w.wg.Add(1)
		go w.run()
	}
	return w, nil
}

// Tracker returns the transaction tracker the writer stamps records with.
func (w *Writer) Tracker() *Tracker { return w.tracker }

// Begin starts a transaction.
func (w *Writer) Begin() TxnID { return w.tracker.Begin() }

// Append logs one operation of an open transaction and returns its
// position. It does not wait for the record to reach disk.
func (w *Writer) Append(rec *Record) (Position, error) {
	if rec == nil || rec.Op == nil {
		return Position{}, ErrMissingOp
	}
	kind := rec.Op.Kind()
	if kind.IsControl() {
		return Position{}, ErrControlKind
	}
	if _, ok := w.reg.Lookup(kind); !ok {
		return Position{}, fmt.Errorf("%w: tag %d", ErrUnknownKind, uint32(kind))
	}
	if rec.TxnID.IsZero() {
		return Position{}, fmt.Errorf("%w: zero id", ErrTxnUnknown)
	}
	if n := rec.Payload.Len(); n > w.cfg.MaxPayloadSize {
		return Position{}, fmt.Errorf("%w: %d bytes, limit %d", ErrPayloadTooLarge, n, w.cfg.MaxPayloadSize)
	}
	id := rec.TxnID
	return w.append(rec, func() error { return w.tracker.NoteOperation(id) }, false)
}

// Commit logs the commit record of id. kind is the kind of the
// transaction's operation, kept for diagnostics.
func (w *Writer) Commit(id TxnID, kind Kind) (Position, error) {
	return w.resolve(id, true, &CommitTxn{Committed: kind})
}

// Abort logs the abort record of id.
func (w *Writer) Abort(id TxnID, kind Kind) (Position, error) {
	return w.resolve(id, false, &AbortTxn{Aborted: kind})
}

func (w *Writer) resolve(id TxnID, commit bool, op Op) (Position, error) {
	rec := NewRecord(id, WildcardTarget, op)
	return w.append(rec, func() error {
		return w.tracker.Resolve(id, commit)
	}, w.cfg.SyncMode == SyncModeSync)
}

func (w *Writer) append(rec *Record, hook func() error, durable bool) (Position, error) {
	prefix, err := encodeRecord(rec)
	if err != nil {
		return Position{}, err
	}
	total := int64(len(prefix)) + rec.Payload.Len()

	seg, off, err := w.reserve(total, hook)
	if err != nil {
		return Position{}, err
	}
	err = writeRecordAt(seg.file, off, prefix, rec.Payload)
	w.complete(seg, off, err)
	if err != nil {
		return Position{}, err
	}

	w.metrics.ObserveAppend(rec.Kind, total, rec.Payload.Len())
	pos := Position{Segment: seg.seq, Offset: off}
	if durable {
		if err := w.syncThrough(seg, off+total); err != nil {
			return pos, err
		}
	}
	return pos, nil
}

func writeRecordAt(f *os.File, off int64, prefix []byte, p *Payload) error {
	if _, err := f.WriteAt(prefix, off); err != nil {
		return fmt.Errorf("wal: write record: %w", err)
	}
	if p.Len() == 0 {
		return nil
	}
	if _, err := p.writeTo(io.NewOffsetWriter(f, off+int64(len(prefix)))); err != nil {
		return fmt.Errorf("wal: write payload: %w", err)
	}
	return nil
}

// reserve assigns n bytes of the active segment. hook runs in the same
// critical section, so tracker state always matches what has been
// reserved.
func (w *Writer) reserve(n int64, hook func() error) (*segment, int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for w.rolling {
		w.cond.Wait()
	}
	if err := w.usableLocked(); err != nil {
		return nil, 0, err
	}
	if w.cur.records > 0 && w.cur.size+n > w.cfg.MaxFileSize {
		if err := w.rolloverLocked(); err != nil {
			return nil, 0, err
		}
	}
	if hook != nil {
		if err := hook(); err != nil {
			return nil, 0, err
		}
	}

	seg := w.cur
	off := seg.size
	seg.size += n
	seg.records++
	seg.inflight[off] = off + n
	return seg, off, nil
}

func (w *Writer) complete(seg *segment, off int64, err error) {
	w.mu.Lock()
	delete(seg.inflight, off)
	if err != nil {
		w.failLocked(err)
	}
	w.mu.Unlock()
	w.cond.Broadcast()
}

// failLocked makes every later append fail. A partially written record
// cannot be taken back, so the log is only safe to use again after a
// restart seals it.
func (w *Writer) failLocked(err error) {
	if w.failed == nil {
		w.failed = err
		w.logger.Error("wal writer failed", "segment", w.cur.seq, "error", err)
	}
}

func (w *Writer) usableLocked() error {
	if w.closed {
		return ErrClosed
	}
	if w.failed != nil {
		return fmt.Errorf("wal: writer failed: %w", w.failed)
	}
	return nil
}

// syncThrough returns once every byte of seg below end is on disk.
// Concurrent callers share one fsync.
func (w *Writer) syncThrough(seg *segment, end int64) error {
	w.mu.Lock()
	for !seg.closed && seg.inflightBelow(end) {
		w.cond.Wait()
	}
	if seg.closed {
		w.mu.Unlock()
		return nil
	}
	if w.failed != nil {
		w.mu.Unlock()
		return fmt.Errorf("wal: writer failed: %w", w.failed)
	}
	mark := seg.watermark()
	w.mu.Unlock()

	seg.syncMu.Lock()
	defer seg.syncMu.Unlock()
	if seg.closed || seg.synced >= end {
		return nil
	}
	start := time.Now()
	if err := seg.file.Sync(); err != nil {
		return fmt.Errorf("wal: sync: %w", err)
	}
	w.metrics.ObserveSync(time.Since(start))
	if mark > seg.synced {
		seg.synced = mark
	}
	return nil
}

// Sync flushes everything appended so far to disk.
func (w *Writer) Sync() error {
	w.mu.Lock()
	for w.rolling {
		w.cond.Wait()
	}
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	seg, end := w.cur, w.cur.size
	w.mu.Unlock()
	return w.syncThrough(seg, end)
}

// Roll finalizes the active segment and starts the next one. It is a
// no-op when the active segment holds no records.
func (w *Writer) Roll() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for w.rolling {
		w.cond.Wait()
	}
	if err := w.usableLocked(); err != nil {
		return err
	}
	if w.cur.records == 0 {
		return nil
	}
	return w.rolloverLocked()
}

func (w *Writer) rollIfAged() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for w.rolling {
		w.cond.Wait()
	}
	if w.usableLocked() != nil || w.cfg.MaxSegmentAge <= 0 {
		return nil
	}
	if w.cur.records == 0 || time.Since(w.cur.created) < w.cfg.MaxSegmentAge {
		return nil
	}
	return w.rolloverLocked()
}

func (w *Writer) rolloverLocked() error {
	w.rolling = true
	defer func() {
		w.rolling = false
		w.cond.Broadcast()
	}()

	for len(w.cur.inflight) > 0 {
		w.cond.Wait()
	}
	if w.failed != nil {
		return fmt.Errorf("wal: writer failed: %w", w.failed)
	}

	old := w.cur
	if err := w.finalize(old, w.tracker.SnapshotOpen()); err != nil {
		w.failLocked(err)
		return err
	}
	next, err := w.createSegment(old.seq + 1)
	if err != nil {
		w.failLocked(err)
		return err
	}
	w.cur = next

	w.logger.Info("segment rolled over",
		"segment", old.seq,
		"next", next.seq,
		"bytes", old.size,
		"records", old.records,
	)
	w.metrics.ObserveRollover(old.seq, old.size)
	return nil
}

// finalize appends a Checkpoint of open and the checksum trailer, then
// closes seg. No write to seg may be in flight.
func (w *Writer) finalize(seg *segment, open []TxnID) error {
	buf, err := encodeRecord(NewRecord(TxnID{}, WildcardTarget, &Checkpoint{Open: open}))
	if err != nil {
		return err
	}
	if _, err := seg.file.WriteAt(buf, seg.size); err != nil {
		return fmt.Errorf("wal: write checkpoint: %w", err)
	}
	seg.size += int64(len(buf))
	seg.records++

	seg.syncMu.Lock()
	defer seg.syncMu.Unlock()

	if err := seg.file.Sync(); err != nil {
		return fmt.Errorf("wal: sync: %w", err)
	}
	sum, err := hashSection(seg.file, seg.size)
	if err != nil {
		return err
	}
	if _, err := seg.file.WriteAt(sum, seg.size); err != nil {
		return fmt.Errorf("wal: write checksum: %w", err)
	}
	if err := seg.file.Sync(); err != nil {
		return fmt.Errorf("wal: sync: %w", err)
	}
	if err := seg.file.Close(); err != nil {
		return fmt.Errorf("wal: close: %w", err)
	}
	seg.closed = true
	seg.synced = seg.size
	return nil
}

func (w *Writer) createSegment(seq uint64) (*segment, error) {
	path := filepath.Join(w.cfg.Dir, FormatSegmentFilename(seq))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, DefaultFilePerm)
	if err != nil {
		return nil, fmt.Errorf("wal: open segment: %w", err)
	}

	now := time.Now()
	hdr := SegmentHeader{
		Version:  CurrentVersion,
		Sequence: seq,
		Created:  now,
		NodeID:   w.cfg.NodeID,
	}
	buf := hdr.encode()
	if _, err := file.WriteAt(buf, 0); err != nil {
		file.Close()
		return nil, fmt.Errorf("wal: write header: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return nil, fmt.Errorf("wal: sync: %w", err)
	}
	if err := syncDir(w.cfg.Dir); err != nil {
		file.Close()
		return nil, err
	}

	return &segment{
		seq:      seq,
		path:     path,
		file:     file,
		created:  now,
		size:     int64(len(buf)),
		synced:   int64(len(buf)),
		inflight: make(map[int64]int64),
	}, nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("wal: open dir: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("wal: sync dir: %w", err)
	}
	return nil
}

// reopen positions the writer after the existing segments.
func (w *Writer) reopen() error {
	infos, err := listSegments(w.cfg.Dir)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		seg, err := w.createSegment(1)
		if err != nil {
			return err
		}
		w.cur = seg
		return nil
	}

	r, err := OpenReader(w.cfg.Dir, w.reg,
		WithMaxPayloadSize(w.cfg.MaxPayloadSize),
		WithReaderLogger(w.logger),
	)
	if err != nil {
		return err
	}
	st, err := inspectTail(r)
	r.Close()
	if err != nil {
		return err
	}

	nextSeq := st.last.Sequence + 1
	switch {
	case st.last.Finalized:
	case !st.headerOK:
		// Nothing usable was written; reuse the sequence number.
		if err := os.Remove(st.last.Path); err != nil {
			return fmt.Errorf("wal: remove empty segment: %w", err)
		}
		nextSeq = st.last.Sequence
	default:
		if err := w.seal(st); err != nil {
			return err
		}
	}

	seg, err := w.createSegment(nextSeq)
	if err != nil {
		return err
	}
	w.cur = seg

	if len(st.dangling) == 0 {
		return nil
	}
	for _, id := range st.openIDs() {
		rec := NewRecord(id, WildcardTarget, &AbortTxn{Aborted: st.dangling[id]})
		if _, err := w.append(rec, nil, false); err != nil {
			return err
		}
	}
	w.logger.Warn("aborted transactions left open by previous run",
		"count", len(st.dangling),
		"segment", seg.seq,
	)
	return w.Sync()
}

type tailState struct {
	last     SegmentInfo
	headerOK bool
	end      int64
	dangling map[TxnID]Kind
}

func (st *tailState) openIDs() []TxnID {
	ids := make([]TxnID, 0, len(st.dangling))
	for id := range st.dangling {
		ids = append(ids, id)
	}
	sortTxnIDs(ids)
	return ids
}

// inspectTail finds the transactions that were open when the previous
// process stopped: those in the newest finalized checkpoint, plus those
// with operations in an unfinalized newest segment, minus those resolved
// there.
func inspectTail(r *Reader) (*tailState, error) {
	segs := r.Segments()
	st := &tailState{
		last:     segs[len(segs)-1],
		dangling: make(map[TxnID]Kind),
	}
	_, st.headerOK = r.Header(st.last.Sequence)

	base := len(segs) - 1
	if !st.last.Finalized {
		base--
	}
	if base >= 0 {
		cp, err := r.LastCheckpoint(segs[base].Sequence)
		if err != nil {
			return nil, err
		}
		if cp != nil {
			for _, id := range cp.Open {
				st.dangling[id] = KindUnknown
			}
		}
	}
	if st.last.Finalized || !st.headerOK {
		return st, nil
	}

	st.end = st.last.Size
	res, err := r.ScanSegment(st.last.Sequence, func(rec *Record) error {
		switch rec.Op.(type) {
		case *CommitTxn, *AbortTxn:
			delete(st.dangling, rec.TxnID)
		case *Checkpoint:
		default:
			if _, ok := st.dangling[rec.TxnID]; !ok {
				st.dangling[rec.TxnID] = rec.Kind
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if res.TornTail != nil {
		st.end = res.TornTail.Offset
	}
	return st, nil
}

// seal truncates an unfinalized segment to its last whole record and
// finalizes it.
func (w *Writer) seal(st *tailState) error {
	f, err := os.OpenFile(st.last.Path, os.O_RDWR, DefaultFilePerm)
	if err != nil {
		return fmt.Errorf("wal: open segment: %w", err)
	}
	if err := f.Truncate(st.end); err != nil {
		f.Close()
		return fmt.Errorf("wal: truncate segment: %w", err)
	}
	seg := &segment{
		seq:      st.last.Sequence,
		path:     st.last.Path,
		file:     f,
		size:     st.end,
		inflight: make(map[int64]int64),
	}
	if err := w.finalize(seg, st.openIDs()); err != nil {
		f.Close()
		return err
	}
	w.logger.Warn("sealed unfinalized segment",
		"segment", seg.seq,
		"dropped_bytes", st.last.Size-st.end,
		"open_txns", len(st.dangling),
	)
	return nil
}

func (w *Writer) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if w.cfg.SyncMode == SyncModeBatch {
				if err := w.Sync(); err != nil && !errors.Is(err, ErrClosed) {
					w.logger.Error("wal sync failed", "error", err)
				}
			}
			if err := w.rollIfAged(); err != nil {
				w.logger.Error("wal age rollover failed", "error", err)
			}
			w.metrics.SetOpenTxns(w.tracker.OpenCount())
		case <-w.stopCh:
			return
		}
	}
}

// Status describes the active segment.
type Status struct {
	Segment        uint64
	SegmentSize    int64
	SegmentRecords int
	SegmentCreated time.Time
	OpenTxns       int
	SyncMode       SyncMode
	Err            error
}

// Status returns the writer's current state.
func (w *Writer) Status() Status {
	w.mu.Lock()
	st := Status{
		Segment:        w.cur.seq,
		SegmentSize:    w.cur.size,
		SegmentRecords: w.cur.records,
		SegmentCreated: w.cur.created,
		SyncMode:       w.cfg.SyncMode,
		Err:            w.failed,
	}
	w.mu.Unlock()
	st.OpenTxns = w.tracker.OpenCount()
	return st
}

// Close finalizes the active segment. Transactions still open are listed
// in its Checkpoint and aborted by the next NewWriter.
func (w *Writer) Close() error {
	w.mu.Lock()
	for w.rolling {
		w.cond.Wait()
	}
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.stopCh)
	w.mu.Unlock()

	w.wg.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()
	for len(w.cur.inflight) > 0 {
		w.cond.Wait()
	}
	if w.cur.closed {
		return nil
	}
	if w.failed != nil {
		w.cur.file.Close()
		return fmt.Errorf("wal: writer failed: %w", w.failed)
	}
	return w.finalize(w.cur, w.tracker.SnapshotOpen())
}

// abandon stops the writer without finalizing, as a crash would.
func (w *Writer) abandon() {
	w.mu.Lock()
	w.closed = true
	close(w.stopCh)
	w.mu.Unlock()
	w.wg.Wait()
	w.cur.file.Close()
}
