package wal

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
)

func encodeFull(t *testing.T, rec *Record) []byte {
	t.Helper()
	prefix, err := encodeRecord(rec)
	if err != nil {
		t.Fatalf("encodeRecord: %v", err)
	}
	var buf bytes.Buffer
	buf.Write(prefix)
	if _, err := rec.Payload.writeTo(&buf); err != nil {
		t.Fatalf("writeTo: %v", err)
	}
	return buf.Bytes()
}

func TestRecord_RoundTripAllVersions(t *testing.T) {
	reg := testRegistry()
	for _, v := range []Version{Version10, Version11, Version12, Version13, Version14} {
		t.Run(v.String(), func(t *testing.T) {
			id := NewTracker().Begin()
			in := &noteOp{Title: "héllo", Count: -3, Tags: []string{"a", "b"}, Owner: defaultOwner}
			if v.AtLeast(1, 2) {
				in.Owner = "alice"
			}
			rec := NewRecord(id, 42, in)
			rec.Version = v

			d := NewDecoder(bytes.NewReader(encodeFull(t, rec)), CurrentVersion)
			got, err := decodeRecord(d, reg)
			if err != nil {
				t.Fatalf("decodeRecord: %v", err)
			}
			if got.Header != rec.Header {
				t.Fatalf("Header = %+v, want %+v", got.Header, rec.Header)
			}
			if !reflect.DeepEqual(got.Op, in) {
				t.Fatalf("Op = %+v, want %+v", got.Op, in)
			}
		})
	}
}

func TestRecord_ForwardDefault(t *testing.T) {
	rec := NewRecord(NewTracker().Begin(), 1, &noteOp{Title: "t", Owner: "dropped"})
	rec.Version = Version11

	d := NewDecoder(bytes.NewReader(encodeFull(t, rec)), CurrentVersion)
	got, err := decodeRecord(d, testRegistry())
	if err != nil {
		t.Fatalf("decodeRecord: %v", err)
	}
	if owner := got.Op.(*noteOp).Owner; owner != defaultOwner {
		t.Fatalf("Owner = %q, want %q", owner, defaultOwner)
	}
	if got.Version != Version11 {
		t.Fatalf("Version = %s, want %s", got.Version, Version11)
	}
}

func TestRecord_UnknownKindIsFatal(t *testing.T) {
	rec := NewRecord(NewTracker().Begin(), 1, &noteOp{Title: "t"})
	data := encodeFull(t, rec)

	empty := MustRegistry()
	_, err := decodeRecord(NewDecoder(bytes.NewReader(data), CurrentVersion), empty)
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("err = %v, want ErrUnknownKind", err)
	}
}

func TestRecord_UnsupportedVersion(t *testing.T) {
	rec := NewRecord(NewTracker().Begin(), 1, &noteOp{Title: "t"})
	data := encodeFull(t, rec)
	data[6], data[7] = 0, 9 // minor

	_, err := decodeRecord(NewDecoder(bytes.NewReader(data), CurrentVersion), testRegistry())
	if !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("err = %v, want ErrUnsupportedVersion", err)
	}

	rec.Version = Version{2, 0}
	if _, err := encodeRecord(rec); !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("encode err = %v, want ErrUnsupportedVersion", err)
	}
}

func TestRecord_CleanEOF(t *testing.T) {
	rec := NewRecord(NewTracker().Begin(), 1, &noteOp{Title: "t"})
	data := encodeFull(t, rec)

	d := NewDecoder(bytes.NewReader(data), CurrentVersion)
	if _, err := decodeRecord(d, testRegistry()); err != nil {
		t.Fatalf("decodeRecord: %v", err)
	}
	if n, err := readPayloadLength(d, 0); err != nil || n != 0 {
		t.Fatalf("readPayloadLength = %d, %v; want 0, nil", n, err)
	}
	if _, err := decodeRecord(d, testRegistry()); err != io.EOF {
		t.Fatalf("err = %v, want io.EOF", err)
	}
}

func TestRecord_TruncatedFields(t *testing.T) {
	rec := NewRecord(NewTracker().Begin(), 1, &noteOp{Title: "a long enough title"})
	data := encodeFull(t, rec)

	d := NewDecoder(bytes.NewReader(data[:recordHeadSize+5]), CurrentVersion)
	if _, err := decodeRecord(d, testRegistry()); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("err = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestPayload_SkipWithoutDecodingFields(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 10000)
	rec := NewRecord(NewTracker().Begin(), 1, &noteOp{Title: "blob"}).WithPayload(NewBytesPayload(payload))
	prefix, err := encodeRecord(rec)
	if err != nil {
		t.Fatalf("encodeRecord: %v", err)
	}
	fieldsEnd := len(prefix) - 4

	var stream bytes.Buffer
	stream.Write(prefix[fieldsEnd:])
	stream.Write(payload)
	stream.WriteString("NEXT")

	br := bufio.NewReader(&stream)
	n, err := SkipRecordPayload(br, DefaultMaxPayloadSize)
	if err != nil {
		t.Fatalf("SkipRecordPayload: %v", err)
	}
	if n != 4+10000 {
		t.Fatalf("consumed = %d, want %d", n, 4+10000)
	}
	rest, _ := io.ReadAll(br)
	if string(rest) != "NEXT" {
		t.Fatalf("rest = %q, want %q", rest, "NEXT")
	}
}

func TestPayload_OversizedLengthRejectedBeforeRead(t *testing.T) {
	var stream bytes.Buffer
	stream.Write([]byte{0x00, 0x10, 0x00, 0x00}) // 1 MiB declared, nothing follows
	br := bufio.NewReader(&stream)

	n, err := SkipRecordPayload(br, 1024)
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("err = %v, want ErrPayloadTooLarge", err)
	}
	if n != 4 {
		t.Fatalf("consumed = %d, want 4", n)
	}
}

func TestPayload_ShortSkipIsTruncation(t *testing.T) {
	var stream bytes.Buffer
	stream.Write([]byte{0, 0, 0, 100})
	stream.Write(make([]byte, 40))

	_, err := SkipRecordPayload(bufio.NewReader(&stream), 0)
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("err = %v, want ErrTruncated", err)
	}
}

func TestPayload_SectionStreamsExactLength(t *testing.T) {
	src := strings.NewReader("0123456789abcdef")
	p := NewSectionPayload(src, 4, 6)

	var buf bytes.Buffer
	n, err := p.writeTo(&buf)
	if err != nil {
		t.Fatalf("writeTo: %v", err)
	}
	if n != 6 || buf.String() != "456789" {
		t.Fatalf("wrote %d %q, want 6 %q", n, buf.String(), "456789")
	}

	short := NewSectionPayload(src, 12, 10)
	if _, err := short.writeTo(io.Discard); !errors.Is(err, ErrShortPayload) {
		t.Fatalf("err = %v, want ErrShortPayload", err)
	}
}

func TestPayload_NilIsEmpty(t *testing.T) {
	var p *Payload
	if p.Len() != 0 {
		t.Fatalf("Len = %d, want 0", p.Len())
	}
	if _, ok := p.Ref(); ok {
		t.Fatal("nil payload has a ref")
	}
	b, err := p.Bytes()
	if err != nil || b != nil {
		t.Fatalf("Bytes = %v, %v; want nil, nil", b, err)
	}
}

func TestDecoder_Limits(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	d := NewDecoder(&buf, CurrentVersion)
	if got := d.Strings(); got != nil {
		t.Fatalf("Strings = %v, want nil", got)
	}
	if !errors.Is(d.Err(), ErrCorrupted) {
		t.Fatalf("err = %v, want ErrCorrupted", d.Err())
	}

	d = NewDecoder(bytes.NewReader([]byte{2}), CurrentVersion)
	d.Bool()
	if !errors.Is(d.Err(), ErrCorrupted) {
		t.Fatalf("bool err = %v, want ErrCorrupted", d.Err())
	}

	d = NewDecoder(bytes.NewReader([]byte{0, 2, 0xC3, 0x28}), CurrentVersion)
	d.String()
	if !errors.Is(d.Err(), ErrCorrupted) {
		t.Fatalf("utf8 err = %v, want ErrCorrupted", d.Err())
	}
}

func TestEncoder_StringTooLong(t *testing.T) {
	e := NewEncoder(CurrentVersion)
	e.String(strings.Repeat("x", MaxStringLen+1))
	if e.Err() == nil {
		t.Fatal("expected error for oversized string")
	}
	e.Uint32(1)
	if e.Len() != 0 {
		t.Fatalf("Len = %d after failure, want 0", e.Len())
	}
}

func TestVersion_Ordering(t *testing.T) {
	tests := []struct {
		v    Version
		want bool
	}{
		{Version{0, 9}, false},
		{Version10, true},
		{Version14, true},
		{Version{1, 5}, false},
		{Version{2, 0}, false},
	}
	for _, tt := range tests {
		if got := tt.v.Supported(); got != tt.want {
			t.Errorf("%s.Supported() = %v, want %v", tt.v, got, tt.want)
		}
	}
	if Version12.Compare(Version11) != 1 || Version11.Compare(Version12) != -1 || Version13.Compare(Version13) != 0 {
		t.Fatal("Compare ordering wrong")
	}
}

func TestRegistry_RejectsDuplicatesAndReserved(t *testing.T) {
	spec := KindSpec{Kind: kindNote, Name: "Note", New: func() Op { return &noteOp{} }}
	if _, err := NewRegistry(spec, spec); err == nil {
		t.Fatal("expected duplicate error")
	}
	if _, err := NewRegistry(KindSpec{Kind: KindCommitTxn, Name: "x", New: spec.New}); err == nil {
		t.Fatal("expected reserved error")
	}
	reg := testRegistry()
	if _, err := reg.New(Kind(9999)); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("New(9999) err = %v, want ErrUnknownKind", err)
	}
	if got := reg.Kinds(); len(got) != 4 || got[0] != KindCheckpoint || got[3] != kindNote {
		t.Fatalf("Kinds = %v", got)
	}
}

func TestControlOps_RoundTrip(t *testing.T) {
	tr := NewTracker()
	a, b := tr.Begin(), tr.Begin()
	ops := []Op{
		&Checkpoint{Open: []TxnID{a, b}},
		&CommitTxn{Committed: kindNote},
		&AbortTxn{Aborted: kindNote},
	}
	for _, op := range ops {
		rec := NewRecord(a, WildcardTarget, op)
		d := NewDecoder(bytes.NewReader(encodeFull(t, rec)), CurrentVersion)
		got, err := decodeRecord(d, testRegistry())
		if err != nil {
			t.Fatalf("%s: decodeRecord: %v", op.Kind(), err)
		}
		if !reflect.DeepEqual(got.Op, op) {
			t.Fatalf("%s: Op = %+v, want %+v", op.Kind(), got.Op, op)
		}
		if got.Target != WildcardTarget {
			t.Fatalf("%s: Target = %d, want %d", op.Kind(), got.Target, WildcardTarget)
		}
	}
}
