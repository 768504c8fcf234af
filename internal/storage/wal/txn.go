package wal

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Transaction tracker errors. Both indicate a caller bug and are returned
// rather than ignored.
var (
	ErrTxnUnknown  = errors.New("wal: unknown transaction")
	ErrTxnResolved = errors.New("wal: transaction already resolved")
)

// TxnID identifies a transaction. It is a ULID: 48 bits of millisecond
// time followed by 80 bits of monotonic entropy.
type TxnID [txnIDSize]byte

// String returns the canonical 26-character ULID text.
func (id TxnID) String() string {
	return ulid.ULID(id).String()
}

// IsZero reports whether id is unset.
func (id TxnID) IsZero() bool {
	return id == TxnID{}
}

// Compare orders ids by creation time, then entropy.
func (id TxnID) Compare(o TxnID) int {
	return bytes.Compare(id[:], o[:])
}

// Time returns the creation time encoded in id.
func (id TxnID) Time() time.Time {
	return ulid.Time(ulid.ULID(id).Time())
}

// ParseTxnID parses the text form produced by String.
func ParseTxnID(s string) (TxnID, error) {
	u, err := ulid.ParseStrict(s)
	if err != nil {
		return TxnID{}, fmt.Errorf("wal: parse txn id %q: %w", s, err)
	}
	return TxnID(u), nil
}

// idSource hands out strictly increasing ids.
type idSource struct {
	mu      sync.Mutex
	entropy io.Reader
}

func newIDSource() *idSource {
	return &idSource{entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (s *idSource) next(now time.Time) TxnID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return TxnID(ulid.MustNew(ulid.Timestamp(now), s.entropy))
}

// TxnState is the lifecycle state of a transaction.
type TxnState uint8

const (
	TxnUnknown TxnState = iota
	// TxnBegun has an id but no logged operation yet.
	TxnBegun
	TxnOpen
	TxnCommitted
	TxnAborted
)

func (s TxnState) String() string {
	switch s {
	case TxnBegun:
		return "begun"
	case TxnOpen:
		return "open"
	case TxnCommitted:
		return "committed"
	case TxnAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// IsResolved reports whether s is terminal.
func (s TxnState) IsResolved() bool {
	return s == TxnCommitted || s == TxnAborted
}

// DefaultResolvedHistory is how many resolved ids a Tracker remembers in
// order to tell a second resolution apart from an unknown id.
const DefaultResolvedHistory = 4096

// Tracker assigns transaction ids and tracks which are open. It is safe
// for concurrent use. The Writer calls NoteOperation and Resolve while it
// holds its append lock, so a snapshot taken during rollover matches the
// segment contents exactly.
type Tracker struct {
	ids *idSource
	now func() time.Time

	mu     sync.RWMutex
	active map[TxnID]TxnState // begun or open

	resolved     map[TxnID]TxnState
	resolvedFIFO []TxnID
	history      int
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		ids:      newIDSource(),
		now:      time.Now,
		active:   make(map[TxnID]TxnState),
		resolved: make(map[TxnID]TxnState),
		history:  DefaultResolvedHistory,
	}
}

// Begin returns a fresh transaction id.
func (t *Tracker) Begin() TxnID {
	id := t.ids.next(t.now())
	t.mu.Lock()
	t.active[id] = TxnBegun
	t.mu.Unlock()
	return id
}

// NoteOperation records that an operation of transaction id was logged,
// which makes the transaction open.
func (t *Tracker) NoteOperation(id TxnID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkLocked(id); err != nil {
		return err
	}
	t.active[id] = TxnOpen
	return nil
}

// Check returns the error NoteOperation or Resolve would return for id,
// without changing anything.
func (t *Tracker) Check(id TxnID) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.checkLocked(id)
}

func (t *Tracker) checkLocked(id TxnID) error {
	if _, ok := t.active[id]; ok {
		return nil
	}
	if s, ok := t.resolved[id]; ok {
		return fmt.Errorf("%w: %s is %s", ErrTxnResolved, id, s)
	}
	return fmt.Errorf("%w: %s", ErrTxnUnknown, id)
}

// Resolve moves id to committed or aborted.
func (t *Tracker) Resolve(id TxnID, committed bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkLocked(id); err != nil {
		return err
	}
	delete(t.active, id)

	state := TxnAborted
	if committed {
		state = TxnCommitted
	}
	t.resolved[id] = state
	t.resolvedFIFO = append(t.resolvedFIFO, id)
	if len(t.resolvedFIFO) > t.history {
		delete(t.resolved, t.resolvedFIFO[0])
		t.resolvedFIFO = t.resolvedFIFO[1:]
	}
	return nil
}

// State returns the state of id. Resolved ids that have aged out of the
// history report TxnUnknown.
func (t *Tracker) State(id TxnID) TxnState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if s, ok := t.active[id]; ok {
		return s
	}
	return t.resolved[id]
}

// SnapshotOpen returns the open transaction ids in ascending order.
// Transactions that have begun but logged nothing are not included.
func (t *Tracker) SnapshotOpen() []TxnID {
	t.mu.RLock()
	out := make([]TxnID, 0, len(t.active))
	for id, s := range t.active {
		if s == TxnOpen {
			out = append(out, id)
		}
	}
	t.mu.RUnlock()
	sortTxnIDs(out)
	return out
}

// OpenCount returns the number of open transactions.
func (t *Tracker) OpenCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, s := range t.active {
		if s == TxnOpen {
			n++
		}
	}
	return n
}
