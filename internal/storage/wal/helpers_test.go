package wal

import (
	"os"
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const kindNote Kind = 100

// noteOp is a small operation with one version-gated field.
type noteOp struct {
	Title string
	Count int32
	Tags  []string
	Owner string // added in 1.2
}

const defaultOwner = "nobody"

func (*noteOp) Kind() Kind { return kindNote }

func (o *noteOp) EncodeFields(e *Encoder) {
	e.String(o.Title)
	e.Int32(o.Count)
	e.Strings(o.Tags)
	if e.AtLeast(1, 2) {
		e.String(o.Owner)
	}
}

func (o *noteOp) DecodeFields(d *Decoder) {
	o.Title = d.String()
	o.Count = d.Int32()
	o.Tags = d.Strings()
	if d.AtLeast(1, 2) {
		o.Owner = d.String()
	} else {
		o.Owner = defaultOwner
	}
}

func testRegistry() *Registry {
	return MustRegistry(KindSpec{
		Kind: kindNote,
		Name: "Note",
		New:  func() Op { return &noteOp{} },
	})
}

func newTestWriter(t *testing.T, dir string, mutate func(*Config)) *Writer {
	t.Helper()
	cfg := DefaultConfig(dir, testRegistry())
	cfg.NodeID = "n1"
	cfg.MaxSegmentAge = -1
	if mutate != nil {
		mutate(&cfg)
	}
	w, err := NewWriter(cfg)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	return w
}

func openTestReader(t *testing.T, dir string) *Reader {
	t.Helper()
	r, err := OpenReader(dir, testRegistry())
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func appendNote(t *testing.T, w *Writer, id TxnID, title string) Position {
	t.Helper()
	pos, err := w.Append(NewRecord(id, 7, &noteOp{Title: title, Owner: "me"}))
	if err != nil {
		t.Fatalf("Append(%s): %v", title, err)
	}
	return pos
}

func collect(t *testing.T, r *Reader) ([]*Record, ScanResult) {
	t.Helper()
	var recs []*Record
	res, err := r.Scan(t.Context(), func(rec *Record) error {
		recs = append(recs, rec)
		return nil
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	return recs, res
}

func appendBytes(t *testing.T, path string, b []byte) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	if _, err := f.Write(b); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
