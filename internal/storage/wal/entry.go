package wal

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"
)

// File format constants.
const (
	FilePrefix      = "wal-"
	FileExtension   = ".log"
	MagicBytes      = "MBXREDO\x01"
	MagicBytesSize  = 8
	ChecksumSize    = 32
	DefaultFilePerm = 0600
	DefaultDirPerm  = 0750
)

// WildcardTarget is the target id of operations that apply to a set of
// mailboxes, or to the server as a whole.
const WildcardTarget int32 = -1

// Errors for WAL operations.
var (
	ErrCorrupted          = errors.New("wal: corrupted segment")
	ErrTruncated          = errors.New("wal: truncated record")
	ErrUnknownKind        = errors.New("wal: unknown record kind")
	ErrUnsupportedVersion = errors.New("wal: unsupported format version")
	ErrPayloadTooLarge    = errors.New("wal: payload exceeds size limit")
	ErrShortPayload       = errors.New("wal: payload shorter than declared length")
	ErrClosed             = errors.New("wal: writer is closed")
	ErrControlKind        = errors.New("wal: control kinds are written by Commit, Abort and rollover")
	ErrMissingOp          = errors.New("wal: record has no operation")
)

// CorruptionError locates a record that could not be read.
type CorruptionError struct {
	Segment uint64
	Offset  int64
	Err     error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("wal: segment %d offset %d: %v", e.Segment, e.Offset, e.Err)
}

func (e *CorruptionError) Unwrap() error { return e.Err }

// Kind is the stable numeric tag of an operation type. Tags are never
// reused or renumbered.
type Kind uint32

// Reserved control kinds.
const (
	KindUnknown    Kind = 0
	KindCheckpoint Kind = 1
	KindCommitTxn  Kind = 2
	KindAbortTxn   Kind = 3
)

// IsControl reports whether k is one of the reserved control kinds.
func (k Kind) IsControl() bool {
	return k == KindCheckpoint || k == KindCommitTxn || k == KindAbortTxn
}

func (k Kind) String() string {
	switch k {
	case KindCheckpoint:
		return "Checkpoint"
	case KindCommitTxn:
		return "CommitTxn"
	case KindAbortTxn:
		return "AbortTxn"
	default:
		return fmt.Sprintf("kind-%d", uint32(k))
	}
}

// Op is the kind-specific part of a record. Implementations encode and
// decode their fields honoring the version of the Encoder or Decoder;
// fields a version does not carry must be set to their defaults on decode.
type Op interface {
	Kind() Kind
	EncodeFields(e *Encoder)
	DecodeFields(d *Decoder)
}

// Header is the fixed envelope in front of every record.
type Header struct {
	Kind      Kind
	Version   Version
	TxnID     TxnID
	Target    int32
	Timestamp int64 // Unix milliseconds
}

// Position addresses a record within the log.
type Position struct {
	Segment uint64
	Offset  int64
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Segment, p.Offset)
}

// Record is one operation as appended to or read from the log.
type Record struct {
	Header
	Op      Op
	Payload *Payload

	// Pos and Size are set when the record is read back.
	Pos  Position
	Size int64
}

// NewRecord creates a record for op in transaction txn against target.
func NewRecord(txn TxnID, target int32, op Op) *Record {
	return &Record{
		Header: Header{
			Kind:      op.Kind(),
			Version:   CurrentVersion,
			TxnID:     txn,
			Target:    target,
			Timestamp: time.Now().UnixMilli(),
		},
		Op: op,
	}
}

// WithPayload attaches p and returns the record.
func (r *Record) WithPayload(p *Payload) *Record {
	r.Payload = p
	return r
}

// encodeRecord encodes everything up to and including the payload length.
// The payload bytes themselves are streamed separately.
func encodeRecord(r *Record) ([]byte, error) {
	if r == nil || r.Op == nil {
		return nil, ErrMissingOp
	}
	if r.Kind == KindUnknown {
		r.Kind = r.Op.Kind()
	}
	if r.Kind != r.Op.Kind() {
		return nil, fmt.Errorf("wal: header kind %d does not match op kind %d", r.Kind, r.Op.Kind())
	}
	if !r.Version.Supported() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedVersion, r.Version)
	}

	e := NewEncoder(r.Version)
	e.Uint32(uint32(r.Kind))
	e.Uint16(r.Version.Major)
	e.Uint16(r.Version.Minor)
	e.Raw(r.TxnID[:])
	e.Int32(r.Target)
	e.Int64(r.Timestamp)
	r.Op.EncodeFields(e)

	plen := r.Payload.Len()
	if plen > maxPayloadField {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, plen)
	}
	e.Uint32(uint32(plen))
	if err := e.Err(); err != nil {
		return nil, fmt.Errorf("wal: encode %s: %w", r.Kind, err)
	}
	return e.Encoded(), nil
}

// decodeRecord decodes one envelope and its fields from d, stopping at
// the payload length. It returns io.EOF only when d is exhausted before
// the first byte of the record.
func decodeRecord(d *Decoder, reg *Registry) (*Record, error) {
	var head [recordHeadSize]byte
	start := d.Consumed()
	d.Raw(head[:1])
	if err := d.Err(); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) && d.Consumed() == start {
			return nil, io.EOF
		}
		return nil, err
	}
	d.Raw(head[1:])
	if err := d.Err(); err != nil {
		return nil, err
	}

	hd := NewDecoder(bytes.NewReader(head[:]), CurrentVersion)
	rec := &Record{}
	rec.Kind = Kind(hd.Uint32())
	rec.Version.Major = hd.Uint16()
	rec.Version.Minor = hd.Uint16()
	hd.Raw(rec.TxnID[:])
	rec.Target = hd.Int32()
	rec.Timestamp = hd.Int64()

	if rec.Kind == KindUnknown {
		return rec, fmt.Errorf("%w: tag 0", ErrUnknownKind)
	}
	op, err := reg.New(rec.Kind)
	if err != nil {
		return rec, err
	}
	if !rec.Version.Supported() {
		return rec, fmt.Errorf("%w: %s (%s)", ErrUnsupportedVersion, rec.Version, reg.Name(rec.Kind))
	}

	d.version = rec.Version
	op.DecodeFields(d)
	if err := d.Err(); err != nil {
		return rec, err
	}
	rec.Op = op
	return rec, nil
}
