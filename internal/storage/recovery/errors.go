package recovery

import (
	"errors"
	"fmt"

	"github.com/yndnr/redolog-go/internal/storage/wal"
)

var (
	// ErrUncleanRecovery marks a recovery that stopped before applying
	// every committed transaction.
	ErrUncleanRecovery = errors.New("recovery: unclean recovery")

	// ErrNotRedoable is returned for a logged kind that cannot apply
	// itself.
	ErrNotRedoable = errors.New("recovery: operation cannot be replayed")

	// ErrNoStore is returned when replay is requested without a store.
	ErrNoStore = errors.New("recovery: no target store")
)

// ApplyError reports the operation Pass 2 stopped at, with what is needed
// to replay it by hand.
type ApplyError struct {
	Segment uint64
	Offset  int64
	TxnID   wal.TxnID
	Kind    wal.Kind
	Name    string
	Err     error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("recovery: apply %s (txn %s) at segment %d offset %d: %v",
		e.Name, e.TxnID, e.Segment, e.Offset, e.Err)
}

func (e *ApplyError) Unwrap() []error { return []error{ErrUncleanRecovery, e.Err} }
