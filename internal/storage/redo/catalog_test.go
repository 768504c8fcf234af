package redo

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/yndnr/redolog-go/internal/core/domain"
	"github.com/yndnr/redolog-go/internal/storage/wal"
)

var allVersions = []wal.Version{wal.Version10, wal.Version11, wal.Version12, wal.Version13, wal.Version14}

// samples returns one fully populated value of every kind.
func samples() []wal.Op {
	return []wal.Op{
		&CreateMailbox{AccountID: "acct-1", AccountName: "alice@example.com"},
		&DeleteMailbox{AccountID: "acct-1"},
		&ReindexMailbox{Types: []string{"message", "contact"}},
		&CreateFolder{FolderID: 300, ParentID: 1, Name: "Work", View: 2, Flags: 4, Color: 3, RGB: 0x336699, URL: "https://feeds.example.com/a"},
		&DeleteFolder{FolderID: 300},
		&ModifyFolder{FolderID: 300, ParentID: 1, Name: "Job", Flags: 1, URL: "https://feeds.example.com/b"},
		&CreateMountpoint{ID: 301, ParentID: 1, Name: "Shared", OwnerAccountID: "acct-2", RemoteID: 257, View: 1, Color: 5, RGB: 0xff0000, Reminder: true},
		&CreateSavedSearch{ID: 302, ParentID: 1, Name: "Unread", Query: "is:unread", Types: "message", SortBy: "dateDesc", Flags: 2, Color: 1, RGB: 0x00ff00},
		&ModifySavedSearch{ID: 302, Query: "is:flagged", Types: "conversation", SortBy: "dateAsc"},
		&CreateTag{ID: 64, Name: "urgent", Color: 6, RGB: 0x0000ff},
		&DeleteTag{ID: 64},
		&CreateMessage{ID: 303, FolderID: 2, Flags: 1, Tags: []string{"urgent"}, Date: 1700000000000, Digest: "abc", Size: 10, BlobPath: "/spool/1", ConversationID: 900},
		&StoreIncomingBlob{Path: "/spool/1", Digest: "abc", Size: 10, MailboxIDs: []int32{1, 2, 3}},
		&RenameItem{ID: 303, FolderID: 2, Name: "renamed"},
		&MoveItems{IDs: []int32{303, 304}, TargetFolder: 300, Constraint: "-t"},
		&AlterItemTag{IDs: []int32{303}, Tag: "urgent", Add: true},
		&ColorItem{IDs: []int32{303}, Color: 2, RGB: 0x123456},
		&SetItemDate{ID: 303, Date: 1700000001000},
		&LockItem{ID: 303, Owner: "acct-9"},
		&UnlockItem{ID: 303},
		&DeleteItems{IDs: []int32{303, 304}},
		&IndexItems{IDs: []int32{303}},
		&FixCalendarItemTZ{ID: 400, TZID: "Europe/Berlin", OffsetMillis: 3600000},
		&DismissCalendarItemAlarm{ID: 400, DismissedAt: 1700000002000},
		&SnoozeCalendarItemAlarm{ID: 400, Until: 1700000003000},
		&ICalReply{ID: 400, Attendee: "bob@example.com", PartStat: "ACCEPTED", Sequence: 2, RecurrenceID: "20240101T100000Z", Comment: "see you"},
		&CreateVolume{volumeFields{ID: 1, Type: 1, Name: "p1", Path: "/data/p1", CompressBlobs: true, CompressionThreshold: 1 << 20}},
		&ModifyVolume{volumeFields{ID: 1, Type: 1, Name: "p1", Path: "/data/p1b", CompressionThreshold: 8192}},
		&DeleteVolume{ID: 1},
		&SetCurrentVolume{Type: 1, ID: 1},
	}
}

// atVersion returns what decoding op's encoding under v yields: fields
// introduced after v take their defaults.
func atVersion(op wal.Op, v wal.Version) wal.Op {
	before := func(major, minor uint16) bool { return !v.AtLeast(major, minor) }
	switch o := op.(type) {
	case *CreateMailbox:
		if before(1, 2) {
			o.AccountName = ""
		}
	case *CreateFolder:
		if before(1, 1) {
			o.Color = domain.ColorDefault
		}
		if before(1, 3) {
			o.RGB, o.URL = domain.NoRGB, ""
		}
	case *ModifyFolder:
		if before(1, 3) {
			o.URL = ""
		}
	case *CreateMountpoint:
		if before(1, 1) {
			o.Color = domain.ColorDefault
		}
		if before(1, 3) {
			o.RGB, o.Reminder = domain.NoRGB, false
		}
	case *CreateSavedSearch:
		if before(1, 1) {
			o.Color = domain.ColorDefault
		}
		if before(1, 3) {
			o.RGB = domain.NoRGB
		}
	case *CreateTag:
		if before(1, 1) {
			o.Color = domain.ColorDefault
		}
		if before(1, 3) {
			o.RGB = domain.NoRGB
		}
	case *CreateMessage:
		if before(1, 2) {
			o.ConversationID = NoConversation
		}
	case *MoveItems:
		if before(1, 4) {
			o.Constraint = ""
		}
	case *ColorItem:
		if before(1, 3) {
			o.RGB = domain.NoRGB
		}
	case *LockItem:
		if before(1, 4) {
			o.Owner = ""
		}
	case *ICalReply:
		if before(1, 2) {
			o.Comment = ""
		}
	case *CreateVolume:
		if before(1, 4) {
			o.CompressionThreshold = domain.DefaultCompressionThreshold
		}
	case *ModifyVolume:
		if before(1, 4) {
			o.CompressionThreshold = domain.DefaultCompressionThreshold
		}
	}
	return op
}

func TestCatalog_CoversEveryKind(t *testing.T) {
	seen := make(map[wal.Kind]bool)
	for _, op := range samples() {
		seen[op.Kind()] = true
	}
	for _, spec := range Specs() {
		if !seen[spec.Kind] {
			t.Errorf("no sample for %s", spec.Name)
		}
		if got := spec.New().Kind(); got != spec.Kind {
			t.Errorf("%s constructor makes kind %d, want %d", spec.Name, got, spec.Kind)
		}
	}
	if got, want := len(Registry().Kinds()), len(Specs())+3; got != want {
		t.Errorf("registry has %d kinds, want %d", got, want)
	}
}

func TestCatalog_RoundTrip(t *testing.T) {
	reg := Registry()
	for _, v := range allVersions {
		for i := range samples() {
			op := samples()[i]
			name := reg.Name(op.Kind())
			t.Run(v.String()+"/"+name, func(t *testing.T) {
				e := wal.NewEncoder(v)
				op.EncodeFields(e)
				if err := e.Err(); err != nil {
					t.Fatalf("encode: %v", err)
				}

				got, err := reg.New(op.Kind())
				if err != nil {
					t.Fatal(err)
				}
				d := wal.NewDecoder(bytes.NewReader(e.Encoded()), v)
				got.DecodeFields(d)
				if err := d.Err(); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if d.Consumed() != int64(e.Len()) {
					t.Errorf("decoded %d of %d bytes", d.Consumed(), e.Len())
				}

				want := atVersion(samples()[i], v)
				if !reflect.DeepEqual(got, want) {
					t.Errorf("decoded %+v, want %+v", got, want)
				}
			})
		}
	}
}

func TestCatalog_Flags(t *testing.T) {
	deferred := map[wal.Kind]bool{KindReindexMailbox: true, KindIndexItems: true}
	deletes := map[wal.Kind]bool{
		KindDeleteMailbox: true, KindDeleteFolder: true, KindDeleteTag: true,
		KindDeleteItems: true, KindDeleteVolume: true,
	}
	for _, spec := range Specs() {
		if spec.Deferred != deferred[spec.Kind] {
			t.Errorf("%s Deferred = %v, want %v", spec.Name, spec.Deferred, deferred[spec.Kind])
		}
		if spec.IsDelete != deletes[spec.Kind] {
			t.Errorf("%s IsDelete = %v, want %v", spec.Name, spec.IsDelete, deletes[spec.Kind])
		}
	}
}
