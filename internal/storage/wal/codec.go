package wal

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"unicode/utf8"
)

// Decoder limits. A length or count above these is treated as corruption
// rather than trusted for an allocation.
const (
	MaxStringLen   = math.MaxUint16
	MaxLongStrLen  = 16 << 20
	MaxArrayCount  = 1 << 20
	txnIDSize      = 16
	recordHeadSize = 4 + 2 + 2 + txnIDSize + 4 + 8
)

var errStringTooLong = errors.New("wal: string too long")

// Encoder writes the fixed-width, big-endian field encoding into memory.
// Errors are sticky: after the first failure every call is a no-op and
// Err reports it.
type Encoder struct {
	buf     bytes.Buffer
	version Version
	scratch [8]byte
	err     error
}

// NewEncoder returns an encoder producing fields for version v.
func NewEncoder(v Version) *Encoder {
	return &Encoder{version: v}
}

// Version returns the version being encoded.
func (e *Encoder) Version() Version { return e.version }

// AtLeast reports whether fields introduced at major.minor are written.
func (e *Encoder) AtLeast(major, minor uint16) bool {
	return e.version.AtLeast(major, minor)
}

// Err returns the first encoding error.
func (e *Encoder) Err() error { return e.err }

// Len returns the number of bytes encoded so far.
func (e *Encoder) Len() int { return e.buf.Len() }

// Encoded returns the encoded bytes.
func (e *Encoder) Encoded() []byte { return e.buf.Bytes() }

// Fail records err unless an error is already recorded.
func (e *Encoder) Fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

func (e *Encoder) Uint8(v uint8) {
	if e.err == nil {
		e.buf.WriteByte(v)
	}
}

func (e *Encoder) Int8(v int8) { e.Uint8(uint8(v)) }

func (e *Encoder) Bool(v bool) {
	if v {
		e.Uint8(1)
	} else {
		e.Uint8(0)
	}
}

func (e *Encoder) Uint16(v uint16) {
	if e.err == nil {
		binary.BigEndian.PutUint16(e.scratch[:2], v)
		e.buf.Write(e.scratch[:2])
	}
}

func (e *Encoder) Int16(v int16) { e.Uint16(uint16(v)) }

func (e *Encoder) Uint32(v uint32) {
	if e.err == nil {
		binary.BigEndian.PutUint32(e.scratch[:4], v)
		e.buf.Write(e.scratch[:4])
	}
}

func (e *Encoder) Int32(v int32) { e.Uint32(uint32(v)) }

func (e *Encoder) Uint64(v uint64) {
	if e.err == nil {
		binary.BigEndian.PutUint64(e.scratch[:8], v)
		e.buf.Write(e.scratch[:8])
	}
}

func (e *Encoder) Int64(v int64) { e.Uint64(uint64(v)) }

// String writes a UTF-8 string with a 2-byte length prefix.
func (e *Encoder) String(s string) {
	if len(s) > MaxStringLen {
		e.Fail(fmt.Errorf("%w: %d bytes", errStringTooLong, len(s)))
		return
	}
	e.Uint16(uint16(len(s)))
	if e.err == nil {
		e.buf.WriteString(s)
	}
}

// LongString writes a UTF-8 string with a 4-byte length prefix.
func (e *Encoder) LongString(s string) {
	if len(s) > MaxLongStrLen {
		e.Fail(fmt.Errorf("%w: %d bytes", errStringTooLong, len(s)))
		return
	}
	e.Uint32(uint32(len(s)))
	if e.err == nil {
		e.buf.WriteString(s)
	}
}

// Raw writes b without a prefix.
func (e *Encoder) Raw(b []byte) {
	if e.err == nil {
		e.buf.Write(b)
	}
}

// Int32s writes a count-prefixed array.
func (e *Encoder) Int32s(vs []int32) {
	e.count(len(vs))
	for _, v := range vs {
		e.Int32(v)
	}
}

// Strings writes a count-prefixed array of strings.
func (e *Encoder) Strings(vs []string) {
	e.count(len(vs))
	for _, v := range vs {
		e.String(v)
	}
}

// TxnIDs writes a count-prefixed array of transaction ids.
func (e *Encoder) TxnIDs(ids []TxnID) {
	e.count(len(ids))
	for _, id := range ids {
		e.Raw(id[:])
	}
}

func (e *Encoder) count(n int) {
	if n > MaxArrayCount {
		e.Fail(fmt.Errorf("wal: array of %d elements exceeds limit", n))
		return
	}
	e.Uint32(uint32(n))
}

// Decoder reads the field encoding produced by Encoder. Like Encoder its
// error is sticky; getters return zero values once it has failed.
type Decoder struct {
	r       io.Reader
	version Version
	n       int64
	scratch [8]byte
	err     error
}

// NewDecoder returns a decoder reading fields of version v from r.
func NewDecoder(r io.Reader, v Version) *Decoder {
	return &Decoder{r: r, version: v}
}

// Version returns the version being decoded.
func (d *Decoder) Version() Version { return d.version }

// AtLeast reports whether fields introduced at major.minor are present.
func (d *Decoder) AtLeast(major, minor uint16) bool {
	return d.version.AtLeast(major, minor)
}

// Err returns the first decoding error. A short read inside a field is
// reported as io.ErrUnexpectedEOF.
func (d *Decoder) Err() error { return d.err }

// Consumed returns the number of bytes read.
func (d *Decoder) Consumed() int64 { return d.n }

// Fail records err unless an error is already recorded.
func (d *Decoder) Fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

func (d *Decoder) read(p []byte) bool {
	if d.err != nil {
		return false
	}
	n, err := io.ReadFull(d.r, p)
	d.n += int64(n)
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		d.err = err
		return false
	}
	return true
}

func (d *Decoder) Uint8() uint8 {
	if !d.read(d.scratch[:1]) {
		return 0
	}
	return d.scratch[0]
}

func (d *Decoder) Int8() int8 { return int8(d.Uint8()) }

func (d *Decoder) Bool() bool {
	b := d.Uint8()
	if b > 1 {
		d.Fail(fmt.Errorf("%w: bool byte %d", ErrCorrupted, b))
		return false
	}
	return b == 1
}

func (d *Decoder) Uint16() uint16 {
	if !d.read(d.scratch[:2]) {
		return 0
	}
	return binary.BigEndian.Uint16(d.scratch[:2])
}

func (d *Decoder) Int16() int16 { return int16(d.Uint16()) }

func (d *Decoder) Uint32() uint32 {
	if !d.read(d.scratch[:4]) {
		return 0
	}
	return binary.BigEndian.Uint32(d.scratch[:4])
}

func (d *Decoder) Int32() int32 { return int32(d.Uint32()) }

func (d *Decoder) Uint64() uint64 {
	if !d.read(d.scratch[:8]) {
		return 0
	}
	return binary.BigEndian.Uint64(d.scratch[:8])
}

func (d *Decoder) Int64() int64 { return int64(d.Uint64()) }

// String reads a string with a 2-byte length prefix.
func (d *Decoder) String() string {
	return d.str(int(d.Uint16()))
}

// LongString reads a string with a 4-byte length prefix.
func (d *Decoder) LongString() string {
	n := d.Uint32()
	if n > MaxLongStrLen {
		d.Fail(fmt.Errorf("%w: string length %d", ErrCorrupted, n))
		return ""
	}
	return d.str(int(n))
}

func (d *Decoder) str(n int) string {
	if d.err != nil || n == 0 {
		return ""
	}
	b := make([]byte, n)
	if !d.read(b) {
		return ""
	}
	if !utf8.Valid(b) {
		d.Fail(fmt.Errorf("%w: invalid utf-8 string", ErrCorrupted))
		return ""
	}
	return string(b)
}

// Raw fills p.
func (d *Decoder) Raw(p []byte) {
	d.read(p)
}

// Int32s reads a count-prefixed array.
func (d *Decoder) Int32s() []int32 {
	n := d.count()
	if n == 0 {
		return nil
	}
	out := make([]int32, 0, min(n, 1024))
	for i := 0; i < n && d.err == nil; i++ {
		out = append(out, d.Int32())
	}
	return out
}

// Strings reads a count-prefixed array of strings.
func (d *Decoder) Strings() []string {
	n := d.count()
	if n == 0 {
		return nil
	}
	out := make([]string, 0, min(n, 1024))
	for i := 0; i < n && d.err == nil; i++ {
		out = append(out, d.String())
	}
	return out
}

// TxnIDs reads a count-prefixed array of transaction ids.
func (d *Decoder) TxnIDs() []TxnID {
	n := d.count()
	if n == 0 {
		return nil
	}
	out := make([]TxnID, 0, min(n, 1024))
	for i := 0; i < n && d.err == nil; i++ {
		var id TxnID
		d.Raw(id[:])
		out = append(out, id)
	}
	return out
}

func (d *Decoder) count() int {
	n := d.Uint32()
	if n > MaxArrayCount {
		d.Fail(fmt.Errorf("%w: array count %d", ErrCorrupted, n))
		return 0
	}
	return int(n)
}
