package redo

import (
	"context"

	"github.com/yndnr/redolog-go/internal/core/domain"
	"github.com/yndnr/redolog-go/internal/core/service"
	"github.com/yndnr/redolog-go/internal/storage/wal"
)

// Colors are gated: the palette index arrived in 1.1, RGB in 1.3.
func encodeColor(e *wal.Encoder, color int8, rgb int32) {
	if e.AtLeast(1, 1) {
		e.Int8(color)
	}
	if e.AtLeast(1, 3) {
		e.Int32(rgb)
	}
}

func decodeColor(d *wal.Decoder) (int8, int32) {
	color, rgb := domain.ColorDefault, domain.NoRGB
	if d.AtLeast(1, 1) {
		color = d.Int8()
	}
	if d.AtLeast(1, 3) {
		rgb = d.Int32()
	}
	return color, rgb
}

// CreateFolder creates a folder under ParentID.
type CreateFolder struct {
	FolderID int32  `json:"folder_id"`
	ParentID int32  `json:"parent_id"`
	Name     string `json:"name"`
	View     uint8  `json:"view"`
	Flags    int32  `json:"flags"`
	Color    int8   `json:"color"` // 1.1
	RGB      int32  `json:"rgb"`   // 1.3
	URL      string `json:"url"`   // 1.3
}

func (*CreateFolder) Kind() wal.Kind { return KindCreateFolder }

func (o *CreateFolder) EncodeFields(e *wal.Encoder) {
	e.Int32(o.FolderID)
	e.Int32(o.ParentID)
	e.String(o.Name)
	e.Uint8(o.View)
	e.Int32(o.Flags)
	encodeColor(e, o.Color, o.RGB)
	if e.AtLeast(1, 3) {
		e.String(o.URL)
	}
}

func (o *CreateFolder) DecodeFields(d *wal.Decoder) {
	o.FolderID = d.Int32()
	o.ParentID = d.Int32()
	o.Name = d.String()
	o.View = d.Uint8()
	o.Flags = d.Int32()
	o.Color, o.RGB = decodeColor(d)
	o.URL = ""
	if d.AtLeast(1, 3) {
		o.URL = d.String()
	}
}

func (o *CreateFolder) Redo(ctx context.Context, env *service.Env, rec *wal.Record) error {
	return env.Store.CreateItem(ctx, &domain.Item{
		ID:        o.FolderID,
		Type:      domain.ItemTypeFolder,
		CreatedBy: creator(rec),
		Mailbox:   rec.Target,
		FolderID:  o.ParentID,
		Name:      o.Name,
		View:      o.View,
		Flags:     o.Flags,
		Color:     o.Color,
		RGB:       o.RGB,
		URL:       o.URL,
		Date:      rec.Timestamp,
	})
}

// DeleteFolder deletes a folder and its contents.
type DeleteFolder struct {
	FolderID int32 `json:"folder_id"`
}

func (*DeleteFolder) Kind() wal.Kind { return KindDeleteFolder }

func (o *DeleteFolder) EncodeFields(e *wal.Encoder) { e.Int32(o.FolderID) }

func (o *DeleteFolder) DecodeFields(d *wal.Decoder) { o.FolderID = d.Int32() }

func (o *DeleteFolder) Redo(ctx context.Context, env *service.Env, rec *wal.Record) error {
	return gone(env.Store.DeleteItem(ctx, rec.Target, o.FolderID))
}

// ModifyFolder renames, moves or re-points a folder.
type ModifyFolder struct {
	FolderID int32  `json:"folder_id"`
	ParentID int32  `json:"parent_id"`
	Name     string `json:"name"`
	Flags    int32  `json:"flags"`
	URL      string `json:"url"` // 1.3
}

func (*ModifyFolder) Kind() wal.Kind { return KindModifyFolder }

func (o *ModifyFolder) EncodeFields(e *wal.Encoder) {
	e.Int32(o.FolderID)
	e.Int32(o.ParentID)
	e.String(o.Name)
	e.Int32(o.Flags)
	if e.AtLeast(1, 3) {
		e.String(o.URL)
	}
}

func (o *ModifyFolder) DecodeFields(d *wal.Decoder) {
	o.FolderID = d.Int32()
	o.ParentID = d.Int32()
	o.Name = d.String()
	o.Flags = d.Int32()
	o.URL = ""
	if d.AtLeast(1, 3) {
		o.URL = d.String()
	}
}

func (o *ModifyFolder) Redo(ctx context.Context, env *service.Env, rec *wal.Record) error {
	return gone(env.Store.UpdateItem(ctx, rec.Target, o.FolderID, func(it *domain.Item) error {
		if it.Type != domain.ItemTypeFolder {
			return domain.ErrWrongItemType.Detailf("item %d is a %s", it.ID, it.Type)
		}
		it.FolderID = o.ParentID
		it.Name = o.Name
		it.Flags = o.Flags
		it.URL = o.URL
		return nil
	}))
}

// CreateMountpoint creates a link to a folder in another account's
// mailbox.
type CreateMountpoint struct {
	ID             int32  `json:"id"`
	ParentID       int32  `json:"parent_id"`
	Name           string `json:"name"`
	OwnerAccountID string `json:"owner_account_id"`
	RemoteID       int32  `json:"remote_id"`
	View           uint8  `json:"view"`
	Color          int8   `json:"color"`    // 1.1
	RGB            int32  `json:"rgb"`      // 1.3
	Reminder       bool   `json:"reminder"` // 1.3
}

func (*CreateMountpoint) Kind() wal.Kind { return KindCreateMountpoint }

func (o *CreateMountpoint) EncodeFields(e *wal.Encoder) {
	e.Int32(o.ID)
	e.Int32(o.ParentID)
	e.String(o.Name)
	e.String(o.OwnerAccountID)
	e.Int32(o.RemoteID)
	e.Uint8(o.View)
	encodeColor(e, o.Color, o.RGB)
	if e.AtLeast(1, 3) {
		e.Bool(o.Reminder)
	}
}

func (o *CreateMountpoint) DecodeFields(d *wal.Decoder) {
	o.ID = d.Int32()
	o.ParentID = d.Int32()
	o.Name = d.String()
	o.OwnerAccountID = d.String()
	o.RemoteID = d.Int32()
	o.View = d.Uint8()
	o.Color, o.RGB = decodeColor(d)
	o.Reminder = false
	if d.AtLeast(1, 3) {
		o.Reminder = d.Bool()
	}
}

func (o *CreateMountpoint) Redo(ctx context.Context, env *service.Env, rec *wal.Record) error {
	return env.Store.CreateItem(ctx, &domain.Item{
		ID:             o.ID,
		Type:           domain.ItemTypeMountpoint,
		CreatedBy:      creator(rec),
		Mailbox:        rec.Target,
		FolderID:       o.ParentID,
		Name:           o.Name,
		OwnerAccountID: o.OwnerAccountID,
		RemoteID:       o.RemoteID,
		View:           o.View,
		Color:          o.Color,
		RGB:            o.RGB,
		Reminder:       o.Reminder,
		Date:           rec.Timestamp,
	})
}

// CreateSavedSearch creates a search folder.
type CreateSavedSearch struct {
	ID       int32  `json:"id"`
	ParentID int32  `json:"parent_id"`
	Name     string `json:"name"`
	Query    string `json:"query"`
	Types    string `json:"types"`
	SortBy   string `json:"sort_by"`
	Flags    int32  `json:"flags"`
	Color    int8   `json:"color"` // 1.1
	RGB      int32  `json:"rgb"`   // 1.3
}

func (*CreateSavedSearch) Kind() wal.Kind { return KindCreateSavedSearch }

func (o *CreateSavedSearch) EncodeFields(e *wal.Encoder) {
	e.Int32(o.ID)
	e.Int32(o.ParentID)
	e.String(o.Name)
	e.LongString(o.Query)
	e.String(o.Types)
	e.String(o.SortBy)
	e.Int32(o.Flags)
	encodeColor(e, o.Color, o.RGB)
}

func (o *CreateSavedSearch) DecodeFields(d *wal.Decoder) {
	o.ID = d.Int32()
	o.ParentID = d.Int32()
	o.Name = d.String()
	o.Query = d.LongString()
	o.Types = d.String()
	o.SortBy = d.String()
	o.Flags = d.Int32()
	o.Color, o.RGB = decodeColor(d)
}

func (o *CreateSavedSearch) Redo(ctx context.Context, env *service.Env, rec *wal.Record) error {
	return env.Store.CreateItem(ctx, &domain.Item{
		ID:        o.ID,
		Type:      domain.ItemTypeSearchFolder,
		CreatedBy: creator(rec),
		Mailbox:   rec.Target,
		FolderID:  o.ParentID,
		Name:      o.Name,
		Query:     o.Query,
		Types:     o.Types,
		SortBy:    o.SortBy,
		Flags:     o.Flags,
		Color:     o.Color,
		RGB:       o.RGB,
		Date:      rec.Timestamp,
	})
}

// ModifySavedSearch replaces a search folder's query.
type ModifySavedSearch struct {
	ID     int32  `json:"id"`
	Query  string `json:"query"`
	Types  string `json:"types"`
	SortBy string `json:"sort_by"`
}

func (*ModifySavedSearch) Kind() wal.Kind { return KindModifySavedSearch }

func (o *ModifySavedSearch) EncodeFields(e *wal.Encoder) {
	e.Int32(o.ID)
	e.LongString(o.Query)
	e.String(o.Types)
	e.String(o.SortBy)
}

func (o *ModifySavedSearch) DecodeFields(d *wal.Decoder) {
	o.ID = d.Int32()
	o.Query = d.LongString()
	o.Types = d.String()
	o.SortBy = d.String()
}

func (o *ModifySavedSearch) Redo(ctx context.Context, env *service.Env, rec *wal.Record) error {
	return gone(env.Store.UpdateItem(ctx, rec.Target, o.ID, func(it *domain.Item) error {
		if it.Type != domain.ItemTypeSearchFolder {
			return domain.ErrWrongItemType.Detailf("item %d is a %s", it.ID, it.Type)
		}
		it.Query = o.Query
		it.Types = o.Types
		it.SortBy = o.SortBy
		return nil
	}))
}

// CreateTag defines a tag.
type CreateTag struct {
	ID    int32  `json:"id"`
	Name  string `json:"name"`
	Color int8   `json:"color"` // 1.1
	RGB   int32  `json:"rgb"`   // 1.3
}

func (*CreateTag) Kind() wal.Kind { return KindCreateTag }

func (o *CreateTag) EncodeFields(e *wal.Encoder) {
	e.Int32(o.ID)
	e.String(o.Name)
	encodeColor(e, o.Color, o.RGB)
}

func (o *CreateTag) DecodeFields(d *wal.Decoder) {
	o.ID = d.Int32()
	o.Name = d.String()
	o.Color, o.RGB = decodeColor(d)
}

func (o *CreateTag) Redo(ctx context.Context, env *service.Env, rec *wal.Record) error {
	return env.Store.CreateItem(ctx, &domain.Item{
		ID:        o.ID,
		Type:      domain.ItemTypeTag,
		CreatedBy: creator(rec),
		Mailbox:   rec.Target,
		FolderID:  domain.UnknownID,
		Name:      o.Name,
		Color:     o.Color,
		RGB:       o.RGB,
		Date:      rec.Timestamp,
	})
}

// DeleteTag deletes a tag definition and removes the tag from every item.
type DeleteTag struct {
	ID int32 `json:"id"`
}

func (*DeleteTag) Kind() wal.Kind { return KindDeleteTag }

func (o *DeleteTag) EncodeFields(e *wal.Encoder) { e.Int32(o.ID) }

func (o *DeleteTag) DecodeFields(d *wal.Decoder) { o.ID = d.Int32() }

func (o *DeleteTag) Redo(ctx context.Context, env *service.Env, rec *wal.Record) error {
	tag, err := env.Store.GetItem(ctx, rec.Target, o.ID)
	if err != nil {
		return gone(err)
	}
	if tag.Type != domain.ItemTypeTag {
		return domain.ErrWrongItemType.Detailf("item %d is a %s", tag.ID, tag.Type)
	}

	var tagged []int32
	err = env.Store.ListItems(ctx, rec.Target, func(it *domain.Item) bool {
		if it.HasTag(tag.Name) {
			tagged = append(tagged, it.ID)
		}
		return true
	})
	if err != nil {
		return err
	}
	for _, id := range tagged {
		err := gone(env.Store.UpdateItem(ctx, rec.Target, id, func(it *domain.Item) error {
			it.Tags = removeTag(it.Tags, tag.Name)
			return nil
		}))
		if err != nil && !domain.IsAlreadyApplied(err) {
			return err
		}
	}
	return gone(env.Store.DeleteItem(ctx, rec.Target, o.ID))
}
