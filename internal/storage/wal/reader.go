package wal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

const readBufferSize = 64 << 10

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithMaxPayloadSize sets the largest payload length the reader accepts.
// Longer declarations are corruption.
func WithMaxPayloadSize(n int64) ReaderOption {
	return func(r *Reader) {
		if n > 0 {
			r.maxPayload = n
		}
	}
}

// WithReaderLogger sets the reader's logger.
func WithReaderLogger(l *slog.Logger) ReaderOption {
	return func(r *Reader) {
		if l != nil {
			r.logger = l
		}
	}
}

// ScanResult summarizes a scan.
type ScanResult struct {
	Segments int
	Records  int

	// TornTail is the position of an incomplete record at the end of the
	// newest segment, if one was found. Records from there on are ignored.
	TornTail *Position
}

type readSegment struct {
	info      SegmentInfo
	file      *os.File
	header    SegmentHeader
	bodyStart int64
	dataLen   int64
	tornHead  bool
}

// Reader reads records from the segments of a log directory. Segment files
// stay open until Close, so payloads of records it returned remain readable
// until then. A Reader is not safe for concurrent scans.
type Reader struct {
	dir        string
	reg        *Registry
	maxPayload int64
	logger     *slog.Logger

	segs  []*readSegment
	bySeq map[uint64]*readSegment
}

// OpenReader opens every segment in dir and validates the segment chain:
// sequences must be contiguous and only the newest segment may lack a
// trailer.
func OpenReader(dir string, reg *Registry, opts ...ReaderOption) (*Reader, error) {
	if reg == nil {
		return nil, fmt.Errorf("wal: registry is required")
	}
	r := &Reader{
		dir:        dir,
		reg:        reg,
		maxPayload: DefaultMaxPayloadSize,
		logger:     slog.Default(),
		bySeq:      make(map[uint64]*readSegment),
	}
	for _, opt := range opts {
		opt(r)
	}

	infos, err := listSegments(dir)
	if err != nil {
		return nil, err
	}
	for i, info := range infos {
		if i > 0 && info.Sequence != infos[i-1].Sequence+1 {
			r.Close()
			return nil, &CorruptionError{
				Segment: info.Sequence,
				Err:     fmt.Errorf("%w: segment %d missing", ErrCorrupted, infos[i-1].Sequence+1),
			}
		}
		seg, err := r.openSegment(info, i == len(infos)-1)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.segs = append(r.segs, seg)
		r.bySeq[seg.info.Sequence] = seg
	}
	return r, nil
}

func (r *Reader) openSegment(info SegmentInfo, newest bool) (*readSegment, error) {
	f, err := os.Open(info.Path)
	if err != nil {
		return nil, fmt.Errorf("wal: open segment: %w", err)
	}
	fail := func(off int64, err error) (*readSegment, error) {
		f.Close()
		return nil, &CorruptionError{Segment: info.Sequence, Offset: off, Err: err}
	}

	closed, dataLen, err := verifyChecksumTrailer(f, info.Size)
	mismatch := errors.Is(err, errChecksumMismatch)
	if err != nil && !mismatch {
		return fail(0, err)
	}
	info.Finalized = closed
	if !closed && !newest {
		if mismatch {
			return fail(info.Size-ChecksumSize, fmt.Errorf("%w: %w", ErrCorrupted, errChecksumMismatch))
		}
		return fail(info.Size, errMissingTrailer)
	}

	seg := &readSegment{info: info, file: f, dataLen: dataLen}
	d := NewDecoder(bufio.NewReader(io.NewSectionReader(f, 0, dataLen)), CurrentVersion)
	seg.header, err = decodeSegmentHeader(d)
	switch {
	case err == nil:
	case !closed && errors.Is(err, io.ErrUnexpectedEOF):
		// Crashed while creating the segment.
		seg.tornHead = true
		return seg, nil
	default:
		return fail(0, err)
	}
	if seg.header.Sequence != info.Sequence {
		return fail(0, fmt.Errorf("%w: header sequence %d", ErrCorrupted, seg.header.Sequence))
	}
	seg.bodyStart = d.Consumed()

	// A finalized segment whose trailer no longer matches must not be
	// mistaken for a torn tail and sealed over.
	if mismatch && r.sealedBody(seg, info.Size-ChecksumSize) {
		return fail(info.Size-ChecksumSize, fmt.Errorf("%w: %w", ErrCorrupted, errChecksumMismatch))
	}
	return seg, nil
}

// sealedBody reports whether the bytes of s up to end decode as whole
// records and the last of them is a Checkpoint ending exactly at end. That
// is the shape the writer leaves just before the checksum trailer.
func (r *Reader) sealedBody(s *readSegment, end int64) bool {
	if end <= s.bodyStart {
		return false
	}
	body := &readSegment{info: s.info, file: s.file, header: s.header, bodyStart: s.bodyStart, dataLen: end}
	br := bufio.NewReaderSize(io.NewSectionReader(s.file, s.bodyStart, end-s.bodyStart), readBufferSize)
	d := NewDecoder(br, s.header.Version)
	last := KindUnknown
	for {
		rec, err := r.readRecord(body, d, br, s.bodyStart+d.Consumed())
		if err == io.EOF {
			return last == KindCheckpoint && s.bodyStart+d.Consumed() == end
		}
		if err != nil {
			return false
		}
		last = rec.Kind
	}
}

// Segments returns the segments the reader holds, oldest first.
func (r *Reader) Segments() []SegmentInfo {
	out := make([]SegmentInfo, len(r.segs))
	for i, s := range r.segs {
		out[i] = s.info
	}
	return out
}

// Header returns the header of segment seq.
func (r *Reader) Header(seq uint64) (SegmentHeader, bool) {
	s, ok := r.bySeq[seq]
	if !ok || s.tornHead {
		return SegmentHeader{}, false
	}
	return s.header, true
}

// Scan calls fn for every record of every segment in log order. It stops
// at the first error from fn, at corruption, or when ctx is done.
func (r *Reader) Scan(ctx context.Context, fn func(*Record) error) (ScanResult, error) {
	var res ScanResult
	for _, s := range r.segs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := r.scan(s, fn, &res); err != nil {
			return res, err
		}
	}
	return res, nil
}

// ScanSegment calls fn for every record of segment seq.
func (r *Reader) ScanSegment(seq uint64, fn func(*Record) error) (ScanResult, error) {
	var res ScanResult
	s, ok := r.bySeq[seq]
	if !ok {
		return res, fmt.Errorf("wal: no segment %d", seq)
	}
	err := r.scan(s, fn, &res)
	return res, err
}

func (r *Reader) scan(s *readSegment, fn func(*Record) error, res *ScanResult) error {
	res.Segments++
	if s.tornHead {
		res.TornTail = &Position{Segment: s.info.Sequence}
		r.logger.Warn("segment header incomplete", "segment", s.info.Sequence)
		return nil
	}

	br := bufio.NewReaderSize(io.NewSectionReader(s.file, s.bodyStart, s.dataLen-s.bodyStart), readBufferSize)
	d := NewDecoder(br, s.header.Version)
	for {
		start := s.bodyStart + d.Consumed()
		rec, err := r.readRecord(s, d, br, start)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if !s.info.Finalized && isTornRecord(rec, err) {
				res.TornTail = &Position{Segment: s.info.Sequence, Offset: start}
				r.logger.Warn("torn record at end of log",
					"segment", s.info.Sequence,
					"offset", start,
					"dropped_bytes", s.dataLen-start,
				)
				return nil
			}
			return &CorruptionError{Segment: s.info.Sequence, Offset: start, Err: err}
		}
		res.Records++
		if err := fn(rec); err != nil {
			return err
		}
	}
}

// isTornRecord reports whether a decode failure looks like an append that
// never completed: a short read, or a reserved region that is still zero.
func isTornRecord(rec *Record, err error) bool {
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, ErrTruncated) {
		return true
	}
	return rec != nil && rec.Kind == KindUnknown && rec.Version == Version{}
}

// readRecord decodes the record at start and skips over its payload.
func (r *Reader) readRecord(s *readSegment, d *Decoder, br *bufio.Reader, start int64) (*Record, error) {
	rec, err := decodeRecord(d, r.reg)
	if err != nil {
		return rec, err
	}
	n, err := readPayloadLength(d, r.maxPayload)
	if err != nil {
		return rec, err
	}

	payloadOff := s.bodyStart + d.Consumed()
	if n > 0 {
		if payloadOff+n > s.dataLen {
			return rec, fmt.Errorf("%w: payload of %d bytes overruns segment", ErrTruncated, n)
		}
		skipped, err := skipPayload(br, n)
		d.n += skipped
		if err != nil {
			return rec, err
		}
		rec.Payload = &Payload{
			src: s.file,
			off: payloadOff,
			n:   n,
			ref: &PayloadRef{Segment: s.info.Sequence, Offset: payloadOff, Length: n},
		}
	}
	rec.Pos = Position{Segment: s.info.Sequence, Offset: start}
	rec.Size = s.bodyStart + d.Consumed() - start
	return rec, nil
}

// ReadAt decodes the single record at pos.
func (r *Reader) ReadAt(pos Position) (*Record, error) {
	s, ok := r.bySeq[pos.Segment]
	if !ok || s.tornHead {
		return nil, fmt.Errorf("wal: no segment %d", pos.Segment)
	}
	if pos.Offset < s.bodyStart || pos.Offset >= s.dataLen {
		return nil, &CorruptionError{Segment: pos.Segment, Offset: pos.Offset, Err: fmt.Errorf("%w: offset out of range", ErrCorrupted)}
	}
	br := bufio.NewReader(io.NewSectionReader(s.file, pos.Offset, s.dataLen-pos.Offset))
	d := NewDecoder(br, s.header.Version)
	// Offsets inside readRecord are relative to bodyStart.
	d.n = pos.Offset - s.bodyStart
	rec, err := r.readRecord(s, d, br, pos.Offset)
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	if err != nil {
		return nil, &CorruptionError{Segment: pos.Segment, Offset: pos.Offset, Err: err}
	}
	return rec, nil
}

// LastCheckpoint returns the last Checkpoint record of segment seq, or nil
// if the segment has none.
func (r *Reader) LastCheckpoint(seq uint64) (*Checkpoint, error) {
	var last *Checkpoint
	_, err := r.ScanSegment(seq, func(rec *Record) error {
		if cp, ok := rec.Op.(*Checkpoint); ok {
			last = cp
		}
		return nil
	})
	return last, err
}

// Close closes every segment file. Payloads of records read through r
// are unreadable afterwards.
func (r *Reader) Close() error {
	var errs []error
	for _, s := range r.segs {
		if err := s.file.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.segs = nil
	r.bySeq = nil
	return errors.Join(errs...)
}
