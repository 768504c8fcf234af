package redo

import (
	"context"

	"github.com/yndnr/redolog-go/internal/core/domain"
	"github.com/yndnr/redolog-go/internal/core/service"
	"github.com/yndnr/redolog-go/internal/storage/wal"
)

// CreateMailbox creates the target mailbox for an account.
type CreateMailbox struct {
	AccountID   string `json:"account_id"`
	AccountName string `json:"account_name"` // 1.2
}

func (*CreateMailbox) Kind() wal.Kind { return KindCreateMailbox }

func (o *CreateMailbox) EncodeFields(e *wal.Encoder) {
	e.String(o.AccountID)
	if e.AtLeast(1, 2) {
		e.String(o.AccountName)
	}
}

func (o *CreateMailbox) DecodeFields(d *wal.Decoder) {
	o.AccountID = d.String()
	o.AccountName = ""
	if d.AtLeast(1, 2) {
		o.AccountName = d.String()
	}
}

// Redo creates the mailbox. A mailbox with the same id owned by another
// account is an identity conflict.
func (o *CreateMailbox) Redo(ctx context.Context, env *service.Env, rec *wal.Record) error {
	return env.Store.CreateMailbox(ctx, &domain.Mailbox{
		ID:          rec.Target,
		AccountID:   o.AccountID,
		AccountName: o.AccountName,
		CreatedAt:   rec.Timestamp,
		NextItemID:  domain.FirstUserID,
	})
}

// DeleteMailbox deletes the target mailbox and everything in it.
type DeleteMailbox struct {
	AccountID string `json:"account_id"`
}

func (*DeleteMailbox) Kind() wal.Kind { return KindDeleteMailbox }

func (o *DeleteMailbox) EncodeFields(e *wal.Encoder) { e.String(o.AccountID) }

func (o *DeleteMailbox) DecodeFields(d *wal.Decoder) { o.AccountID = d.String() }

func (o *DeleteMailbox) Redo(ctx context.Context, env *service.Env, rec *wal.Record) error {
	return gone(env.Store.DeleteMailbox(ctx, rec.Target))
}

// ReindexMailbox rebuilds the search index of the target mailbox. It is
// deferred during recovery.
type ReindexMailbox struct {
	// Types limits the rebuild to items of these types. Empty means all.
	Types []string `json:"types,omitempty"`
}

func (*ReindexMailbox) Kind() wal.Kind { return KindReindexMailbox }

func (o *ReindexMailbox) EncodeFields(e *wal.Encoder) { e.Strings(o.Types) }

func (o *ReindexMailbox) DecodeFields(d *wal.Decoder) { o.Types = d.Strings() }

// Redo marks the selected items indexed and stamps the mailbox with the
// record time as its index generation.
func (o *ReindexMailbox) Redo(ctx context.Context, env *service.Env, rec *wal.Record) error {
	var ids []int32
	err := env.Store.ListItems(ctx, rec.Target, func(it *domain.Item) bool {
		if o.selects(it.Type) {
			ids = append(ids, it.ID)
		}
		return true
	})
	if err != nil {
		return gone(err)
	}
	for _, id := range ids {
		err := gone(env.Store.UpdateItem(ctx, rec.Target, id, func(it *domain.Item) error {
			it.Indexed = true
			return nil
		}))
		if err != nil && !domain.IsAlreadyApplied(err) {
			return err
		}
	}
	return gone(env.Store.UpdateMailbox(ctx, rec.Target, func(mb *domain.Mailbox) error {
		if rec.Timestamp > mb.IndexGeneration {
			mb.IndexGeneration = rec.Timestamp
		}
		return nil
	}))
}

func (o *ReindexMailbox) selects(t domain.ItemType) bool {
	if len(o.Types) == 0 {
		return true
	}
	for _, name := range o.Types {
		if name == t.String() {
			return true
		}
	}
	return false
}
