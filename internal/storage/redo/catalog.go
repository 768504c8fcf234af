package redo

import (
	"errors"

	"github.com/yndnr/redolog-go/internal/core/domain"
	"github.com/yndnr/redolog-go/internal/core/service"
	"github.com/yndnr/redolog-go/internal/storage/wal"
)

// Operation kinds.
const (
	KindCreateMailbox  wal.Kind = 10
	KindDeleteMailbox  wal.Kind = 11
	KindReindexMailbox wal.Kind = 12

	KindCreateFolder      wal.Kind = 20
	KindDeleteFolder      wal.Kind = 21
	KindModifyFolder      wal.Kind = 22
	KindCreateMountpoint  wal.Kind = 23
	KindCreateSavedSearch wal.Kind = 24
	KindModifySavedSearch wal.Kind = 25
	KindCreateTag         wal.Kind = 26
	KindDeleteTag         wal.Kind = 27

	KindCreateMessage     wal.Kind = 30
	KindStoreIncomingBlob wal.Kind = 31
	KindRenameItem        wal.Kind = 32
	KindMoveItems         wal.Kind = 33
	KindAlterItemTag      wal.Kind = 34
	KindColorItem         wal.Kind = 35
	KindSetItemDate       wal.Kind = 36
	KindLockItem          wal.Kind = 37
	KindUnlockItem        wal.Kind = 38
	KindDeleteItems       wal.Kind = 39
	KindIndexItems        wal.Kind = 40

	KindFixCalendarItemTZ        wal.Kind = 50
	KindDismissCalendarItemAlarm wal.Kind = 51
	KindSnoozeCalendarItemAlarm  wal.Kind = 52
	KindICalReply                wal.Kind = 53

	KindCreateVolume     wal.Kind = 60
	KindModifyVolume     wal.Kind = 61
	KindDeleteVolume     wal.Kind = 62
	KindSetCurrentVolume wal.Kind = 63
)

var specs = []wal.KindSpec{
	{Kind: KindCreateMailbox, Name: "CreateMailbox", New: func() wal.Op { return &CreateMailbox{} }},
	{Kind: KindDeleteMailbox, Name: "DeleteMailbox", New: func() wal.Op { return &DeleteMailbox{} }, IsDelete: true},
	{Kind: KindReindexMailbox, Name: "ReindexMailbox", New: func() wal.Op { return &ReindexMailbox{} }, Deferred: true},

	{Kind: KindCreateFolder, Name: "CreateFolder", New: func() wal.Op { return &CreateFolder{} }},
	{Kind: KindDeleteFolder, Name: "DeleteFolder", New: func() wal.Op { return &DeleteFolder{} }, IsDelete: true},
	{Kind: KindModifyFolder, Name: "ModifyFolder", New: func() wal.Op { return &ModifyFolder{} }},
	{Kind: KindCreateMountpoint, Name: "CreateMountpoint", New: func() wal.Op { return &CreateMountpoint{} }},
	{Kind: KindCreateSavedSearch, Name: "CreateSavedSearch", New: func() wal.Op { return &CreateSavedSearch{} }},
	{Kind: KindModifySavedSearch, Name: "ModifySavedSearch", New: func() wal.Op { return &ModifySavedSearch{} }},
	{Kind: KindCreateTag, Name: "CreateTag", New: func() wal.Op { return &CreateTag{} }},
	{Kind: KindDeleteTag, Name: "DeleteTag", New: func() wal.Op { return &DeleteTag{} }, IsDelete: true},

	{Kind: KindCreateMessage, Name: "CreateMessage", New: func() wal.Op { return &CreateMessage{} }},
	{Kind: KindStoreIncomingBlob, Name: "StoreIncomingBlob", New: func() wal.Op { return &StoreIncomingBlob{} }},
	{Kind: KindRenameItem, Name: "RenameItem", New: func() wal.Op { return &RenameItem{} }},
	{Kind: KindMoveItems, Name: "MoveItems", New: func() wal.Op { return &MoveItems{} }},
	{Kind: KindAlterItemTag, Name: "AlterItemTag", New: func() wal.Op { return &AlterItemTag{} }},
	{Kind: KindColorItem, Name: "ColorItem", New: func() wal.Op { return &ColorItem{} }},
	{Kind: KindSetItemDate, Name: "SetItemDate", New: func() wal.Op { return &SetItemDate{} }},
	{Kind: KindLockItem, Name: "LockItem", New: func() wal.Op { return &LockItem{} }},
	{Kind: KindUnlockItem, Name: "UnlockItem", New: func() wal.Op { return &UnlockItem{} }},
	{Kind: KindDeleteItems, Name: "DeleteItems", New: func() wal.Op { return &DeleteItems{} }, IsDelete: true},
	{Kind: KindIndexItems, Name: "IndexItems", New: func() wal.Op { return &IndexItems{} }, Deferred: true},

	{Kind: KindFixCalendarItemTZ, Name: "FixCalendarItemTZ", New: func() wal.Op { return &FixCalendarItemTZ{} }},
	{Kind: KindDismissCalendarItemAlarm, Name: "DismissCalendarItemAlarm", New: func() wal.Op { return &DismissCalendarItemAlarm{} }},
	{Kind: KindSnoozeCalendarItemAlarm, Name: "SnoozeCalendarItemAlarm", New: func() wal.Op { return &SnoozeCalendarItemAlarm{} }},
	{Kind: KindICalReply, Name: "ICalReply", New: func() wal.Op { return &ICalReply{} }},

	{Kind: KindCreateVolume, Name: "CreateVolume", New: func() wal.Op { return &CreateVolume{} }},
	{Kind: KindModifyVolume, Name: "ModifyVolume", New: func() wal.Op { return &ModifyVolume{} }},
	{Kind: KindDeleteVolume, Name: "DeleteVolume", New: func() wal.Op { return &DeleteVolume{} }, IsDelete: true},
	{Kind: KindSetCurrentVolume, Name: "SetCurrentVolume", New: func() wal.Op { return &SetCurrentVolume{} }},
}

var registry = wal.MustRegistry(specs...)

// Registry returns the kind table of every mailbox operation.
func Registry() *wal.Registry { return registry }

// Specs returns a copy of the catalog rows.
func Specs() []wal.KindSpec {
	out := make([]wal.KindSpec, len(specs))
	copy(out, specs)
	return out
}

// ErrMissingBlob is returned when a message references a delivered blob
// that was never stored.
var ErrMissingBlob = errors.New("redo: referenced blob was not delivered")

// creator returns the fingerprint stored on items rec creates.
func creator(rec *wal.Record) string {
	if rec.TxnID.IsZero() {
		return ""
	}
	return rec.TxnID.String()
}

// gone maps the store's not-found errors on a modification to "already
// deleted": the store reflects a later delete of the object.
func gone(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrNoSuchItem),
		errors.Is(err, domain.ErrNoSuchFolder),
		errors.Is(err, domain.ErrNoSuchTag),
		errors.Is(err, domain.ErrNoSuchMailbox),
		errors.Is(err, domain.ErrNoSuchVolume):
		return domain.ErrAlreadyDeleted.WithCause(err)
	default:
		return err
	}
}

// each applies fn to every id. Ids already gone are skipped; the result
// is "already applied" only when no id changed anything.
func each(ids []int32, fn func(id int32) error) error {
	applied := 0
	for _, id := range ids {
		err := gone(fn(id))
		if err == nil {
			applied++
			continue
		}
		if !domain.IsAlreadyApplied(err) {
			return err
		}
	}
	if applied == 0 && len(ids) > 0 {
		return domain.ErrAlreadyDeleted.Detailf("none of %d items changed", len(ids))
	}
	return nil
}

var _ = []service.Redoable{
	&CreateMailbox{}, &DeleteMailbox{}, &ReindexMailbox{},
	&CreateFolder{}, &DeleteFolder{}, &ModifyFolder{}, &CreateMountpoint{},
	&CreateSavedSearch{}, &ModifySavedSearch{}, &CreateTag{}, &DeleteTag{},
	&CreateMessage{}, &StoreIncomingBlob{}, &RenameItem{}, &MoveItems{},
	&AlterItemTag{}, &ColorItem{}, &SetItemDate{}, &LockItem{}, &UnlockItem{},
	&DeleteItems{}, &IndexItems{},
	&FixCalendarItemTZ{}, &DismissCalendarItemAlarm{}, &SnoozeCalendarItemAlarm{}, &ICalReply{},
	&CreateVolume{}, &ModifyVolume{}, &DeleteVolume{}, &SetCurrentVolume{},
}
