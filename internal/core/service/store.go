package service

import (
	"context"
	"io"

	"github.com/yndnr/redolog-go/internal/core/domain"
)

// Store is the target the redo log applies operations to.
//
// Creates report domain.ErrAlreadyExists when an equivalent object is
// already present and domain.ErrIdentityConflict when a different object
// holds the same id. Deletes of an absent object report
// domain.ErrAlreadyDeleted. Replay treats the first and last as success.
type Store interface {
	// CreateMailbox creates a mailbox and its root folder.
	CreateMailbox(ctx context.Context, mb *domain.Mailbox) error

	// GetMailbox returns a copy of the mailbox.
	GetMailbox(ctx context.Context, id int32) (*domain.Mailbox, error)

	// UpdateMailbox applies fn to the mailbox under the store's lock.
	UpdateMailbox(ctx context.Context, id int32, fn func(*domain.Mailbox) error) error

	// DeleteMailbox deletes a mailbox with all of its items.
	DeleteMailbox(ctx context.Context, id int32) error

	// CreateItem creates an item. Its parent folder must exist.
	CreateItem(ctx context.Context, it *domain.Item) error

	// GetItem returns a copy of an item.
	GetItem(ctx context.Context, mailbox, id int32) (*domain.Item, error)

	// UpdateItem applies fn to an item under the store's lock. fn must be
	// safe to apply twice.
	UpdateItem(ctx context.Context, mailbox, id int32, fn func(*domain.Item) error) error

	// DeleteItem deletes an item, and a container's contents with it.
	DeleteItem(ctx context.Context, mailbox, id int32) error

	// ListItems calls fn for every item of a mailbox in id order until fn
	// returns false.
	ListItems(ctx context.Context, mailbox int32, fn func(*domain.Item) bool) error

	// PutBlob stores size bytes from r on the current primary volume.
	// Storing content whose digest is already present returns the
	// existing blob.
	PutBlob(ctx context.Context, digest string, r io.Reader, size int64) (domain.BlobRef, error)

	// OpenBlob opens a stored blob.
	OpenBlob(ctx context.Context, ref domain.BlobRef) (io.ReadCloser, error)

	CreateVolume(ctx context.Context, v *domain.Volume) error
	GetVolume(ctx context.Context, id int16) (*domain.Volume, error)
	UpdateVolume(ctx context.Context, id int16, fn func(*domain.Volume) error) error
	DeleteVolume(ctx context.Context, id int16) error

	// SetCurrentVolume makes id the volume new data of type t goes to.
	SetCurrentVolume(ctx context.Context, t domain.VolumeType, id int16) error

	// CurrentVolume returns the current volume of type t, or 0.
	CurrentVolume(ctx context.Context, t domain.VolumeType) (int16, error)
}
