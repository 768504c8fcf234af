package wal

import "sort"

// Checkpoint is written at the end of every finalized segment. It lists
// the transactions that were open when the segment was closed. Recovery
// does not rely on it; the compactor uses it to find segments that are
// still needed.
type Checkpoint struct {
	Open []TxnID
}

func (*Checkpoint) Kind() Kind { return KindCheckpoint }

func (c *Checkpoint) EncodeFields(e *Encoder) {
	e.TxnIDs(c.Open)
}

func (c *Checkpoint) DecodeFields(d *Decoder) {
	c.Open = d.TxnIDs()
}

// CommitTxn ends a transaction successfully.
type CommitTxn struct {
	Committed Kind // kind of the transaction's first operation
}

func (*CommitTxn) Kind() Kind { return KindCommitTxn }

func (c *CommitTxn) EncodeFields(e *Encoder) {
	e.Uint32(uint32(c.Committed))
}

func (c *CommitTxn) DecodeFields(d *Decoder) {
	c.Committed = Kind(d.Uint32())
}

// AbortTxn ends a transaction without effect.
type AbortTxn struct {
	Aborted Kind
}

func (*AbortTxn) Kind() Kind { return KindAbortTxn }

func (a *AbortTxn) EncodeFields(e *Encoder) {
	e.Uint32(uint32(a.Aborted))
}

func (a *AbortTxn) DecodeFields(d *Decoder) {
	a.Aborted = Kind(d.Uint32())
}

func controlSpecs() []KindSpec {
	return []KindSpec{
		{Kind: KindCheckpoint, Name: "Checkpoint", New: func() Op { return &Checkpoint{} }},
		{Kind: KindCommitTxn, Name: "CommitTxn", New: func() Op { return &CommitTxn{} }},
		{Kind: KindAbortTxn, Name: "AbortTxn", New: func() Op { return &AbortTxn{} }},
	}
}

func sortTxnIDs(ids []TxnID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].Compare(ids[j]) < 0 })
}
