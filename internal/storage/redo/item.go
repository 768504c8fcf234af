package redo

import (
	"context"
	"fmt"
	"slices"

	"github.com/yndnr/redolog-go/internal/core/domain"
	"github.com/yndnr/redolog-go/internal/core/service"
	"github.com/yndnr/redolog-go/internal/storage/wal"
)

// NoConversation is the conversation id of messages logged before 1.2.
const NoConversation int32 = -1

// CreateMessage delivers a message into a folder. The content travels
// as the record payload, or, for a message delivered to several
// mailboxes, is stored once by StoreIncomingBlob and referenced here by
// BlobPath with an empty payload.
type CreateMessage struct {
	ID             int32    `json:"id"`
	FolderID       int32    `json:"folder_id"`
	Flags          int32    `json:"flags"`
	Tags           []string `json:"tags,omitempty"`
	Date           int64    `json:"date"`
	Digest         string   `json:"digest"`
	Size           int64    `json:"size"`
	BlobPath       string   `json:"blob_path,omitempty"`
	ConversationID int32    `json:"conversation_id"` // 1.2
}

func (*CreateMessage) Kind() wal.Kind { return KindCreateMessage }

func (o *CreateMessage) EncodeFields(e *wal.Encoder) {
	e.Int32(o.ID)
	e.Int32(o.FolderID)
	e.Int32(o.Flags)
	e.Strings(o.Tags)
	e.Int64(o.Date)
	e.String(o.Digest)
	e.Int64(o.Size)
	e.String(o.BlobPath)
	if e.AtLeast(1, 2) {
		e.Int32(o.ConversationID)
	}
}

func (o *CreateMessage) DecodeFields(d *wal.Decoder) {
	o.ID = d.Int32()
	o.FolderID = d.Int32()
	o.Flags = d.Int32()
	o.Tags = d.Strings()
	o.Date = d.Int64()
	o.Digest = d.String()
	o.Size = d.Int64()
	o.BlobPath = d.String()
	o.ConversationID = NoConversation
	if d.AtLeast(1, 2) {
		o.ConversationID = d.Int32()
	}
}

func (o *CreateMessage) Redo(ctx context.Context, env *service.Env, rec *wal.Record) error {
	it := &domain.Item{
		ID:             o.ID,
		Type:           domain.ItemTypeMessage,
		CreatedBy:      creator(rec),
		Mailbox:        rec.Target,
		FolderID:       o.FolderID,
		Flags:          o.Flags,
		Tags:           slices.Clone(o.Tags),
		RGB:            domain.NoRGB,
		Date:           o.Date,
		Digest:         o.Digest,
		Size:           o.Size,
		ConversationID: o.ConversationID,
	}

	switch {
	case rec.Payload.Len() > 0:
		ref, err := env.Store.PutBlob(ctx, o.Digest, rec.Payload.Reader(), rec.Payload.Len())
		if err != nil {
			return fmt.Errorf("store blob: %w", err)
		}
		if o.BlobPath != "" {
			env.Blobs.Register(o.BlobPath, ref)
		}
		it.BlobPath = ref.Path
	case o.BlobPath != "":
		ref, ok := env.Blobs.Lookup(o.BlobPath)
		if !ok {
			// Without the blob the message can only already exist.
			if _, err := env.Store.GetItem(ctx, rec.Target, o.ID); err != nil {
				return fmt.Errorf("%w: %s", ErrMissingBlob, o.BlobPath)
			}
			return env.Store.CreateItem(ctx, it)
		}
		it.BlobPath = ref.Path
	}
	return env.Store.CreateItem(ctx, it)
}

// StoreIncomingBlob stores the content of a message delivered to
// several mailboxes once. It applies to every mailbox in MailboxIDs and
// is logged with the wildcard target.
type StoreIncomingBlob struct {
	Path       string  `json:"path"`
	Digest     string  `json:"digest"`
	Size       int64   `json:"size"`
	MailboxIDs []int32 `json:"mailbox_ids"`
}

func (*StoreIncomingBlob) Kind() wal.Kind { return KindStoreIncomingBlob }

func (o *StoreIncomingBlob) EncodeFields(e *wal.Encoder) {
	e.LongString(o.Path)
	e.String(o.Digest)
	e.Int64(o.Size)
	e.Int32s(o.MailboxIDs)
}

func (o *StoreIncomingBlob) DecodeFields(d *wal.Decoder) {
	o.Path = d.LongString()
	o.Digest = d.String()
	o.Size = d.Int64()
	o.MailboxIDs = d.Int32s()
}

func (o *StoreIncomingBlob) Redo(ctx context.Context, env *service.Env, rec *wal.Record) error {
	if _, ok := env.Blobs.Lookup(o.Path); ok {
		return domain.ErrAlreadyExists.Detailf("blob %s", o.Path)
	}
	if n := rec.Payload.Len(); n != o.Size {
		return domain.ErrInvalidArgument.Detailf("blob %s: payload is %d bytes, want %d", o.Path, n, o.Size)
	}
	ref, err := env.Store.PutBlob(ctx, o.Digest, rec.Payload.Reader(), o.Size)
	if err != nil {
		return fmt.Errorf("store blob: %w", err)
	}
	env.Blobs.Register(o.Path, ref)
	return nil
}

// RenameItem renames an item and moves it into FolderID.
type RenameItem struct {
	ID       int32  `json:"id"`
	FolderID int32  `json:"folder_id"`
	Name     string `json:"name"`
}

func (*RenameItem) Kind() wal.Kind { return KindRenameItem }

func (o *RenameItem) EncodeFields(e *wal.Encoder) {
	e.Int32(o.ID)
	e.Int32(o.FolderID)
	e.String(o.Name)
}

func (o *RenameItem) DecodeFields(d *wal.Decoder) {
	o.ID = d.Int32()
	o.FolderID = d.Int32()
	o.Name = d.String()
}

func (o *RenameItem) Redo(ctx context.Context, env *service.Env, rec *wal.Record) error {
	return gone(env.Store.UpdateItem(ctx, rec.Target, o.ID, func(it *domain.Item) error {
		it.Name = o.Name
		it.FolderID = o.FolderID
		return nil
	}))
}

// MoveItems moves items into TargetFolder.
type MoveItems struct {
	IDs          []int32 `json:"ids"`
	TargetFolder int32   `json:"target_folder"`

	// Constraint is the client's target constraint, evaluated when the
	// move was requested. It is kept for auditing only.
	Constraint string `json:"constraint,omitempty"` // 1.4
}

func (*MoveItems) Kind() wal.Kind { return KindMoveItems }

func (o *MoveItems) EncodeFields(e *wal.Encoder) {
	e.Int32s(o.IDs)
	e.Int32(o.TargetFolder)
	if e.AtLeast(1, 4) {
		e.String(o.Constraint)
	}
}

func (o *MoveItems) DecodeFields(d *wal.Decoder) {
	o.IDs = d.Int32s()
	o.TargetFolder = d.Int32()
	o.Constraint = ""
	if d.AtLeast(1, 4) {
		o.Constraint = d.String()
	}
}

func (o *MoveItems) Redo(ctx context.Context, env *service.Env, rec *wal.Record) error {
	return each(o.IDs, func(id int32) error {
		return env.Store.UpdateItem(ctx, rec.Target, id, func(it *domain.Item) error {
			it.FolderID = o.TargetFolder
			return nil
		})
	})
}

// AlterItemTag adds or removes a tag on items.
type AlterItemTag struct {
	IDs []int32 `json:"ids"`
	Tag string  `json:"tag"`
	Add bool    `json:"add"`
}

func (*AlterItemTag) Kind() wal.Kind { return KindAlterItemTag }

func (o *AlterItemTag) EncodeFields(e *wal.Encoder) {
	e.Int32s(o.IDs)
	e.String(o.Tag)
	e.Bool(o.Add)
}

func (o *AlterItemTag) DecodeFields(d *wal.Decoder) {
	o.IDs = d.Int32s()
	o.Tag = d.String()
	o.Add = d.Bool()
}

func (o *AlterItemTag) Redo(ctx context.Context, env *service.Env, rec *wal.Record) error {
	return each(o.IDs, func(id int32) error {
		return env.Store.UpdateItem(ctx, rec.Target, id, func(it *domain.Item) error {
			if o.Add {
				if !it.HasTag(o.Tag) {
					it.Tags = append(it.Tags, o.Tag)
				}
			} else {
				it.Tags = removeTag(it.Tags, o.Tag)
			}
			return nil
		})
	})
}

func removeTag(tags []string, tag string) []string {
	return slices.DeleteFunc(tags, func(t string) bool { return t == tag })
}

// ColorItem sets the color of items.
type ColorItem struct {
	IDs   []int32 `json:"ids"`
	Color int8    `json:"color"`
	RGB   int32   `json:"rgb"` // 1.3
}

func (*ColorItem) Kind() wal.Kind { return KindColorItem }

func (o *ColorItem) EncodeFields(e *wal.Encoder) {
	e.Int32s(o.IDs)
	e.Int8(o.Color)
	if e.AtLeast(1, 3) {
		e.Int32(o.RGB)
	}
}

func (o *ColorItem) DecodeFields(d *wal.Decoder) {
	o.IDs = d.Int32s()
	o.Color = d.Int8()
	o.RGB = domain.NoRGB
	if d.AtLeast(1, 3) {
		o.RGB = d.Int32()
	}
}

func (o *ColorItem) Redo(ctx context.Context, env *service.Env, rec *wal.Record) error {
	return each(o.IDs, func(id int32) error {
		return env.Store.UpdateItem(ctx, rec.Target, id, func(it *domain.Item) error {
			it.Color = o.Color
			it.RGB = o.RGB
			return nil
		})
	})
}

// SetItemDate changes an item's date.
type SetItemDate struct {
	ID   int32 `json:"id"`
	Date int64 `json:"date"`
}

func (*SetItemDate) Kind() wal.Kind { return KindSetItemDate }

func (o *SetItemDate) EncodeFields(e *wal.Encoder) {
	e.Int32(o.ID)
	e.Int64(o.Date)
}

func (o *SetItemDate) DecodeFields(d *wal.Decoder) {
	o.ID = d.Int32()
	o.Date = d.Int64()
}

func (o *SetItemDate) Redo(ctx context.Context, env *service.Env, rec *wal.Record) error {
	return gone(env.Store.UpdateItem(ctx, rec.Target, o.ID, func(it *domain.Item) error {
		it.Date = o.Date
		return nil
	}))
}

// LockItem locks an item for editing.
type LockItem struct {
	ID    int32  `json:"id"`
	Owner string `json:"owner"` // 1.4
}

func (*LockItem) Kind() wal.Kind { return KindLockItem }

func (o *LockItem) EncodeFields(e *wal.Encoder) {
	e.Int32(o.ID)
	if e.AtLeast(1, 4) {
		e.String(o.Owner)
	}
}

func (o *LockItem) DecodeFields(d *wal.Decoder) {
	o.ID = d.Int32()
	o.Owner = ""
	if d.AtLeast(1, 4) {
		o.Owner = d.String()
	}
}

// Redo records the lock. The owner was checked when the lock was taken,
// so replay overwrites whatever lock the item carries.
func (o *LockItem) Redo(ctx context.Context, env *service.Env, rec *wal.Record) error {
	return gone(env.Store.UpdateItem(ctx, rec.Target, o.ID, func(it *domain.Item) error {
		it.Locked = true
		it.LockOwner = o.Owner
		return nil
	}))
}

// UnlockItem releases an item lock.
type UnlockItem struct {
	ID int32 `json:"id"`
}

func (*UnlockItem) Kind() wal.Kind { return KindUnlockItem }

func (o *UnlockItem) EncodeFields(e *wal.Encoder) { e.Int32(o.ID) }

func (o *UnlockItem) DecodeFields(d *wal.Decoder) { o.ID = d.Int32() }

func (o *UnlockItem) Redo(ctx context.Context, env *service.Env, rec *wal.Record) error {
	return gone(env.Store.UpdateItem(ctx, rec.Target, o.ID, func(it *domain.Item) error {
		it.Locked = false
		it.LockOwner = ""
		return nil
	}))
}

// DeleteItems deletes items.
type DeleteItems struct {
	IDs []int32 `json:"ids"`
}

func (*DeleteItems) Kind() wal.Kind { return KindDeleteItems }

func (o *DeleteItems) EncodeFields(e *wal.Encoder) { e.Int32s(o.IDs) }

func (o *DeleteItems) DecodeFields(d *wal.Decoder) { o.IDs = d.Int32s() }

func (o *DeleteItems) Redo(ctx context.Context, env *service.Env, rec *wal.Record) error {
	return each(o.IDs, func(id int32) error {
		return env.Store.DeleteItem(ctx, rec.Target, id)
	})
}

// IndexItems adds items to the search index. It is deferred during
// recovery.
type IndexItems struct {
	IDs []int32 `json:"ids"`
}

func (*IndexItems) Kind() wal.Kind { return KindIndexItems }

func (o *IndexItems) EncodeFields(e *wal.Encoder) { e.Int32s(o.IDs) }

func (o *IndexItems) DecodeFields(d *wal.Decoder) { o.IDs = d.Int32s() }

func (o *IndexItems) Redo(ctx context.Context, env *service.Env, rec *wal.Record) error {
	return each(o.IDs, func(id int32) error {
		return env.Store.UpdateItem(ctx, rec.Target, id, func(it *domain.Item) error {
			it.Indexed = true
			return nil
		})
	})
}
