package wal

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

const (
	maxPayloadField = math.MaxUint32

	// DefaultMaxPayloadSize is the default ceiling on a declared payload
	// length. Longer declarations are rejected before any byte is read.
	DefaultMaxPayloadSize int64 = 256 << 20
)

// PayloadRef addresses payload bytes inside a segment file.
type PayloadRef struct {
	Segment uint64
	Offset  int64
	Length  int64
}

// Payload is an optional blob carried after a record's fields.
//
// On write it is either an in-memory buffer or a byte range of an open
// source that is streamed into the segment without being buffered. On read
// it is a byte range of the segment file; the file stays open for as long
// as the Reader that produced the payload.
type Payload struct {
	data []byte
	src  io.ReaderAt
	off  int64
	n    int64
	ref  *PayloadRef
}

// NewBytesPayload wraps an in-memory buffer.
func NewBytesPayload(b []byte) *Payload {
	return &Payload{data: b, n: int64(len(b))}
}

// NewSectionPayload describes n bytes of src starting at off.
func NewSectionPayload(src io.ReaderAt, off, n int64) *Payload {
	return &Payload{src: src, off: off, n: n}
}

// Len returns the payload length. A nil payload has length 0.
func (p *Payload) Len() int64 {
	if p == nil {
		return 0
	}
	return p.n
}

// Ref returns the on-disk location of a payload that was read from a
// segment.
func (p *Payload) Ref() (PayloadRef, bool) {
	if p == nil || p.ref == nil {
		return PayloadRef{}, false
	}
	return *p.ref, true
}

// Reader returns a reader over exactly Len bytes.
func (p *Payload) Reader() io.Reader {
	if p == nil {
		return bytes.NewReader(nil)
	}
	if p.src == nil {
		return bytes.NewReader(p.data)
	}
	return io.NewSectionReader(p.src, p.off, p.n)
}

// Bytes reads the whole payload into memory.
func (p *Payload) Bytes() ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	if p.src == nil {
		return p.data, nil
	}
	buf := make([]byte, p.n)
	if _, err := io.ReadFull(p.Reader(), buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShortPayload, err)
	}
	return buf, nil
}

// writeTo streams exactly Len bytes into w.
func (p *Payload) writeTo(w io.Writer) (int64, error) {
	if p.Len() == 0 {
		return 0, nil
	}
	n, err := io.CopyN(w, p.Reader(), p.n)
	if err == io.EOF {
		err = fmt.Errorf("%w: wrote %d of %d bytes", ErrShortPayload, n, p.n)
	}
	return n, err
}

// readPayloadLength reads the 4-byte payload length and checks it against
// limit before anything else is read.
func readPayloadLength(d *Decoder, limit int64) (int64, error) {
	n := int64(d.Uint32())
	if err := d.Err(); err != nil {
		return 0, err
	}
	if limit > 0 && n > limit {
		return n, fmt.Errorf("%w: declared %d bytes, limit %d", ErrPayloadTooLarge, n, limit)
	}
	return n, nil
}

// skipPayload advances r past n payload bytes. A short skip means the
// segment ends inside the payload.
func skipPayload(r *bufio.Reader, n int64) (int64, error) {
	var skipped int64
	for skipped < n {
		step := n - skipped
		if step > math.MaxInt32 {
			step = math.MaxInt32
		}
		k, err := r.Discard(int(step))
		skipped += int64(k)
		if err != nil {
			return skipped, fmt.Errorf("%w: skipped %d of %d payload bytes", ErrTruncated, skipped, n)
		}
	}
	return skipped, nil
}

// SkipRecordPayload reads a payload length from r and discards that many
// bytes. It returns the total bytes consumed (length field included). It
// needs no knowledge of the record kind.
func SkipRecordPayload(r *bufio.Reader, limit int64) (int64, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return 0, fmt.Errorf("%w: payload length: %v", ErrTruncated, err)
	}
	n := int64(binary.BigEndian.Uint32(lenBuf[:]))
	if limit > 0 && n > limit {
		return 4, fmt.Errorf("%w: declared %d bytes, limit %d", ErrPayloadTooLarge, n, limit)
	}
	skipped, err := skipPayload(r, n)
	return 4 + skipped, err
}
