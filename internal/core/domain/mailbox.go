package domain

import (
	"slices"
	"strings"
)

// Well-known mailbox and item identifiers.
const (
	// UnknownID marks an unset mailbox or item id.
	UnknownID int32 = -1

	// RootFolderID is the id of every mailbox's root folder.
	RootFolderID int32 = 1

	// FirstUserID is the lowest id assigned to user-created items.
	FirstUserID int32 = 256
)

// ItemType classifies an item within a mailbox.
type ItemType uint8

const (
	ItemTypeUnknown ItemType = iota
	ItemTypeFolder
	ItemTypeSearchFolder
	ItemTypeMountpoint
	ItemTypeTag
	ItemTypeMessage
	ItemTypeAppointment
	ItemTypeTask
	ItemTypeDocument
	ItemTypeContact
)

var itemTypeNames = map[ItemType]string{
	ItemTypeUnknown:      "unknown",
	ItemTypeFolder:       "folder",
	ItemTypeSearchFolder: "search",
	ItemTypeMountpoint:   "mountpoint",
	ItemTypeTag:          "tag",
	ItemTypeMessage:      "message",
	ItemTypeAppointment:  "appointment",
	ItemTypeTask:         "task",
	ItemTypeDocument:     "document",
	ItemTypeContact:      "contact",
}

// String returns the lowercase name of the type.
func (t ItemType) String() string {
	if s, ok := itemTypeNames[t]; ok {
		return s
	}
	return "unknown"
}

// IsContainer reports whether items of this type can hold other items.
func (t ItemType) IsContainer() bool {
	return t == ItemTypeFolder || t == ItemTypeSearchFolder || t == ItemTypeMountpoint
}

// IsCalendar reports whether items of this type carry calendar data.
func (t ItemType) IsCalendar() bool {
	return t == ItemTypeAppointment || t == ItemTypeTask
}

// Color values. ColorDefault leaves the client default in effect.
const (
	ColorDefault int8  = 0
	NoRGB        int32 = -1
)

// Mailbox is one account's container of items.
type Mailbox struct {
	ID          int32  `json:"id"`
	AccountID   string `json:"account_id"`
	AccountName string `json:"account_name,omitempty"`
	CreatedAt   int64  `json:"created_at"`

	// NextItemID is the next id handed out for user-created items.
	NextItemID int32 `json:"next_item_id"`

	// IndexGeneration increases on every full reindex.
	IndexGeneration int64 `json:"index_generation"`
}

// Validate checks required mailbox fields.
func (m *Mailbox) Validate() error {
	if m.ID <= 0 {
		return ErrMailboxValidation.Detailf("invalid mailbox id %d", m.ID)
	}
	if m.AccountID == "" {
		return ErrMailboxValidation.WithDetails("account id is required")
	}
	return nil
}

// CalendarReply records one attendee reply to a calendar item.
type CalendarReply struct {
	Attendee     string `json:"attendee"`
	PartStat     string `json:"partstat"`
	Sequence     int32  `json:"sequence"`
	RecurrenceID string `json:"recurrence_id,omitempty"`
	Comment      string `json:"comment,omitempty"`
	Timestamp    int64  `json:"ts"`
}

// Item is any addressable object inside a mailbox. Type-specific
// fields are left zero when they do not apply.
type Item struct {
	ID       int32    `json:"id"`
	Type     ItemType `json:"type"`
	Mailbox  int32    `json:"mailbox"`
	FolderID int32    `json:"folder_id"`
	Name     string   `json:"name,omitempty"`
	Flags    int32    `json:"flags,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Color    int8     `json:"color,omitempty"`
	RGB      int32    `json:"rgb"`
	Date     int64    `json:"date,omitempty"`

	// CreatedBy is the id of the transaction that created the item. It
	// never changes, unlike the name and parent.
	CreatedBy string `json:"created_by,omitempty"`

	// Content.
	Size           int64  `json:"size,omitempty"`
	Digest         string `json:"digest,omitempty"`
	BlobPath       string `json:"blob_path,omitempty"`
	ConversationID int32  `json:"conversation_id,omitempty"`
	Indexed        bool   `json:"indexed,omitempty"`

	// Containers.
	View uint8  `json:"view,omitempty"`
	URL  string `json:"url,omitempty"`

	// Search folders.
	Query  string `json:"query,omitempty"`
	Types  string `json:"types,omitempty"`
	SortBy string `json:"sort_by,omitempty"`

	// Mountpoints.
	OwnerAccountID string `json:"owner_account_id,omitempty"`
	RemoteID       int32  `json:"remote_id,omitempty"`
	Reminder       bool   `json:"reminder,omitempty"`

	// Locking.
	LockOwner string `json:"lock_owner,omitempty"`
	Locked    bool   `json:"locked,omitempty"`

	// Calendar.
	TZID             string          `json:"tzid,omitempty"`
	TZOffsetMillis   int64           `json:"tz_offset_ms,omitempty"`
	AlarmDismissedAt int64           `json:"alarm_dismissed_at,omitempty"`
	AlarmSnoozeUntil int64           `json:"alarm_snooze_until,omitempty"`
	Replies          []CalendarReply `json:"replies,omitempty"`
}

// Validate checks the fields every item must carry.
func (it *Item) Validate() error {
	if it.ID <= 0 {
		return ErrItemValidation.Detailf("invalid item id %d", it.ID)
	}
	if it.Type == ItemTypeUnknown {
		return ErrItemValidation.WithDetails("item type is required")
	}
	if (it.Type.IsContainer() || it.Type == ItemTypeTag) && strings.TrimSpace(it.Name) == "" {
		return ErrItemValidation.Detailf("%s %d requires a name", it.Type, it.ID)
	}
	return nil
}

// SameIdentity reports whether o describes the same object as it, i.e.
// whether creating o on top of it is a duplicate rather than a clash.
// Only attributes that never change after creation are compared: a
// replayed create meets items that were renamed or moved since.
func (it *Item) SameIdentity(o *Item) bool {
	if it.ID != o.ID || it.Type != o.Type {
		return false
	}
	if it.CreatedBy != "" && o.CreatedBy != "" {
		return it.CreatedBy == o.CreatedBy
	}
	if it.Type == ItemTypeMessage || it.Type == ItemTypeDocument {
		return it.Digest == o.Digest
	}
	return true
}

// HasTag reports whether the item carries the named tag.
func (it *Item) HasTag(tag string) bool {
	return slices.Contains(it.Tags, tag)
}

// Clone returns a deep copy of the item.
func (it *Item) Clone() *Item {
	c := *it
	c.Tags = slices.Clone(it.Tags)
	c.Replies = slices.Clone(it.Replies)
	return &c
}

// VolumeType identifies what a volume stores.
type VolumeType uint8

const (
	VolumeTypePrimary   VolumeType = 1
	VolumeTypeSecondary VolumeType = 2
	VolumeTypeIndex     VolumeType = 10
)

// String returns the volume type name.
func (t VolumeType) String() string {
	switch t {
	case VolumeTypePrimary:
		return "primary"
	case VolumeTypeSecondary:
		return "secondary"
	case VolumeTypeIndex:
		return "index"
	default:
		return "unknown"
	}
}

// DefaultCompressionThreshold is the blob size above which a compressing
// volume compresses blobs.
const DefaultCompressionThreshold int64 = 4096

// Volume describes one blob or index storage location.
type Volume struct {
	ID                   int16      `json:"id"`
	Type                 VolumeType `json:"type"`
	Name                 string     `json:"name"`
	Path                 string     `json:"path"`
	CompressBlobs        bool       `json:"compress_blobs"`
	CompressionThreshold int64      `json:"compression_threshold"`
}

// Validate checks required volume fields.
func (v *Volume) Validate() error {
	if v.ID <= 0 {
		return ErrInvalidArgument.Detailf("invalid volume id %d", v.ID)
	}
	if v.Name == "" || v.Path == "" {
		return ErrInvalidArgument.WithDetails("volume name and path are required")
	}
	switch v.Type {
	case VolumeTypePrimary, VolumeTypeSecondary, VolumeTypeIndex:
	default:
		return ErrInvalidArgument.Detailf("invalid volume type %d", v.Type)
	}
	return nil
}

// BlobRef is a handle to a blob held by the store.
type BlobRef struct {
	Volume int16  `json:"volume"`
	Path   string `json:"path"`
	Digest string `json:"digest"`
	Size   int64  `json:"size"`
}
