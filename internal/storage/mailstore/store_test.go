package mailstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/yndnr/redolog-go/internal/core/domain"
	"github.com/yndnr/redolog-go/internal/storage/kv"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	engine := kv.NewMemoryEngine()
	t.Cleanup(func() { engine.Close() })
	return New(engine, WithBlobDir(t.TempDir()))
}

func mustMailbox(t *testing.T, s *Store, id int32) {
	t.Helper()
	if err := s.CreateMailbox(context.Background(), &domain.Mailbox{ID: id, AccountID: "acct"}); err != nil {
		t.Fatalf("CreateMailbox: %v", err)
	}
}

func folder(mbox, id, parent int32, name string) *domain.Item {
	return &domain.Item{ID: id, Type: domain.ItemTypeFolder, Mailbox: mbox, FolderID: parent, Name: name}
}

func createdBy(it *domain.Item, txn string) *domain.Item {
	it.CreatedBy = txn
	return it
}

func TestCreateMailbox(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustMailbox(t, s, 7)

	mb, err := s.GetMailbox(ctx, 7)
	if err != nil {
		t.Fatalf("GetMailbox: %v", err)
	}
	if mb.NextItemID != domain.FirstUserID {
		t.Errorf("NextItemID = %d, want %d", mb.NextItemID, domain.FirstUserID)
	}
	root, err := s.GetItem(ctx, 7, domain.RootFolderID)
	if err != nil || root.Name != RootFolderName {
		t.Fatalf("root folder = %+v, %v", root, err)
	}

	err = s.CreateMailbox(ctx, &domain.Mailbox{ID: 7, AccountID: "acct"})
	if !errors.Is(err, domain.ErrAlreadyExists) {
		t.Errorf("duplicate CreateMailbox = %v, want ErrAlreadyExists", err)
	}
	err = s.CreateMailbox(ctx, &domain.Mailbox{ID: 7, AccountID: "other"})
	if !errors.Is(err, domain.ErrIdentityConflict) {
		t.Errorf("conflicting CreateMailbox = %v, want ErrIdentityConflict", err)
	}
	if _, err := s.GetMailbox(ctx, 8); !errors.Is(err, domain.ErrNoSuchMailbox) {
		t.Errorf("GetMailbox(8) = %v, want ErrNoSuchMailbox", err)
	}
}

func TestCreateItem(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustMailbox(t, s, 1)

	created := folder(1, 300, domain.RootFolderID, "Work")
	created.CreatedBy = "txn-a"
	if err := s.CreateItem(ctx, created); err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	mb, _ := s.GetMailbox(ctx, 1)
	if mb.NextItemID != 301 {
		t.Errorf("NextItemID = %d, want 301", mb.NextItemID)
	}

	tests := []struct {
		name string
		item *domain.Item
		want error
	}{
		{"same creator", createdBy(folder(1, 300, domain.RootFolderID, "Work"), "txn-a"), domain.ErrAlreadyExists},
		{"same creator, since renamed", createdBy(folder(1, 300, 400, "Old"), "txn-a"), domain.ErrAlreadyExists},
		{"other creator", createdBy(folder(1, 300, domain.RootFolderID, "Work"), "txn-b"), domain.ErrIdentityConflict},
		{"other type", &domain.Item{ID: 300, Type: domain.ItemTypeTag, Mailbox: 1, Name: "Work"}, domain.ErrIdentityConflict},
		{"missing parent", folder(1, 301, 999, "Lost"), domain.ErrNoSuchFolder},
		{"missing mailbox", folder(2, 301, domain.RootFolderID, "X"), domain.ErrNoSuchMailbox},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.CreateItem(ctx, tt.item); !errors.Is(err, tt.want) {
				t.Errorf("CreateItem = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestUpdateItem(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustMailbox(t, s, 1)
	s.CreateItem(ctx, folder(1, 300, domain.RootFolderID, "A"))

	err := s.UpdateItem(ctx, 1, 300, func(it *domain.Item) error {
		it.Name = "B"
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}
	if it, _ := s.GetItem(ctx, 1, 300); it.Name != "B" {
		t.Errorf("Name = %q, want B", it.Name)
	}

	err = s.UpdateItem(ctx, 1, 300, func(it *domain.Item) error {
		it.FolderID = 999
		return nil
	})
	if !errors.Is(err, domain.ErrNoSuchFolder) {
		t.Errorf("move to missing folder = %v, want ErrNoSuchFolder", err)
	}
	err = s.UpdateItem(ctx, 1, 300, func(it *domain.Item) error {
		it.Type = domain.ItemTypeTag
		return nil
	})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("type change = %v, want ErrInvalidArgument", err)
	}
	err = s.UpdateItem(ctx, 1, 999, func(*domain.Item) error { return nil })
	if !errors.Is(err, domain.ErrNoSuchItem) {
		t.Errorf("update missing = %v, want ErrNoSuchItem", err)
	}
}

func TestDeleteItem_Subtree(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustMailbox(t, s, 1)
	s.CreateItem(ctx, folder(1, 300, domain.RootFolderID, "A"))
	s.CreateItem(ctx, folder(1, 301, 300, "B"))
	s.CreateItem(ctx, &domain.Item{ID: 302, Type: domain.ItemTypeMessage, Mailbox: 1, FolderID: 301})
	s.CreateItem(ctx, &domain.Item{ID: 303, Type: domain.ItemTypeMessage, Mailbox: 1, FolderID: domain.RootFolderID})

	if err := s.DeleteItem(ctx, 1, 300); err != nil {
		t.Fatalf("DeleteItem: %v", err)
	}
	var left []int32
	s.ListItems(ctx, 1, func(it *domain.Item) bool {
		left = append(left, it.ID)
		return true
	})
	if len(left) != 2 || left[0] != domain.RootFolderID || left[1] != 303 {
		t.Errorf("remaining items = %v, want [1 303]", left)
	}
	if err := s.DeleteItem(ctx, 1, 300); !errors.Is(err, domain.ErrAlreadyDeleted) {
		t.Errorf("second DeleteItem = %v, want ErrAlreadyDeleted", err)
	}
	if err := s.DeleteItem(ctx, 1, domain.RootFolderID); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("delete root = %v, want ErrInvalidArgument", err)
	}
}

func TestDeleteMailbox(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustMailbox(t, s, 1)
	mustMailbox(t, s, 2)
	s.CreateItem(ctx, folder(1, 300, domain.RootFolderID, "A"))

	if err := s.DeleteMailbox(ctx, 1); err != nil {
		t.Fatalf("DeleteMailbox: %v", err)
	}
	if _, err := s.GetItem(ctx, 1, 300); !errors.Is(err, domain.ErrNoSuchItem) {
		t.Errorf("item survived mailbox delete: %v", err)
	}
	if _, err := s.GetItem(ctx, 2, domain.RootFolderID); err != nil {
		t.Errorf("other mailbox affected: %v", err)
	}
	if err := s.DeleteMailbox(ctx, 1); !errors.Is(err, domain.ErrAlreadyDeleted) {
		t.Errorf("second DeleteMailbox = %v, want ErrAlreadyDeleted", err)
	}
}

func TestVolumes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	v := &domain.Volume{ID: 1, Type: domain.VolumeTypePrimary, Name: "p1", Path: t.TempDir()}

	if err := s.CreateVolume(ctx, v); err != nil {
		t.Fatalf("CreateVolume: %v", err)
	}
	if err := s.CreateVolume(ctx, v); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Errorf("duplicate CreateVolume = %v, want ErrAlreadyExists", err)
	}
	if err := s.SetCurrentVolume(ctx, domain.VolumeTypeIndex, 1); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("SetCurrentVolume wrong type = %v, want ErrInvalidArgument", err)
	}
	if err := s.SetCurrentVolume(ctx, domain.VolumeTypePrimary, 1); err != nil {
		t.Fatalf("SetCurrentVolume: %v", err)
	}
	if cur, _ := s.CurrentVolume(ctx, domain.VolumeTypePrimary); cur != 1 {
		t.Errorf("CurrentVolume = %d, want 1", cur)
	}
	if err := s.DeleteVolume(ctx, 1); !errors.Is(err, domain.ErrVolumeInUse) {
		t.Errorf("delete current volume = %v, want ErrVolumeInUse", err)
	}

	s.SetCurrentVolume(ctx, domain.VolumeTypePrimary, 0)
	if err := s.DeleteVolume(ctx, 1); err != nil {
		t.Fatalf("DeleteVolume: %v", err)
	}
	if err := s.DeleteVolume(ctx, 1); !errors.Is(err, domain.ErrAlreadyDeleted) {
		t.Errorf("second DeleteVolume = %v, want ErrAlreadyDeleted", err)
	}
}

func TestPutBlob(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	vol := &domain.Volume{ID: 3, Type: domain.VolumeTypePrimary, Name: "p", Path: t.TempDir()}
	s.CreateVolume(ctx, vol)
	s.SetCurrentVolume(ctx, domain.VolumeTypePrimary, 3)

	data := []byte("Subject: hi\r\n\r\nbody")
	digest := Digest(data)

	ref, err := s.PutBlob(ctx, digest, bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("PutBlob: %v", err)
	}
	if ref.Volume != 3 || ref.Size != int64(len(data)) || ref.Digest != digest {
		t.Errorf("ref = %+v", ref)
	}

	again, err := s.PutBlob(ctx, digest, bytes.NewReader(nil), int64(len(data)))
	if err != nil || again != ref {
		t.Errorf("second PutBlob = %+v, %v; want %+v", again, err, ref)
	}

	rc, err := s.OpenBlob(ctx, ref)
	if err != nil {
		t.Fatalf("OpenBlob: %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if !bytes.Equal(got, data) {
		t.Errorf("blob = %q, want %q", got, data)
	}

	_, err = s.PutBlob(ctx, Digest([]byte("other")), bytes.NewReader(data), int64(len(data)))
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("digest mismatch = %v, want ErrInvalidArgument", err)
	}
	_, err = s.PutBlob(ctx, "", bytes.NewReader(data[:3]), int64(len(data)))
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("short blob = %v, want ErrInvalidArgument", err)
	}
}

func TestPutBlob_Encrypted(t *testing.T) {
	ctx := context.Background()
	c, err := NewBlobCipher("blob secret")
	if err != nil {
		t.Fatalf("NewBlobCipher: %v", err)
	}
	engine := kv.NewMemoryEngine()
	t.Cleanup(func() { engine.Close() })
	s := New(engine, WithBlobDir(t.TempDir()), WithBlobCipher(c))

	data := []byte("Subject: secret\r\n\r\nplans")
	ref, err := s.PutBlob(ctx, "", bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("PutBlob: %v", err)
	}
	if ref.Digest != Digest(data) || ref.Size != int64(len(data)) {
		t.Errorf("ref = %+v", ref)
	}

	onDisk, err := os.ReadFile(ref.Path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if bytes.Contains(onDisk, []byte("plans")) {
		t.Error("blob file holds plaintext")
	}

	rc, err := s.OpenBlob(ctx, ref)
	if err != nil {
		t.Fatalf("OpenBlob: %v", err)
	}
	got, _ := io.ReadAll(rc)
	rc.Close()
	if !bytes.Equal(got, data) {
		t.Errorf("blob = %q, want %q", got, data)
	}

	// A ref naming another digest must not open this file.
	wrong := ref
	wrong.Digest = Digest([]byte("other"))
	if _, err := s.OpenBlob(ctx, wrong); !errors.Is(err, domain.ErrStorageError) {
		t.Errorf("OpenBlob(wrong digest) = %v, want ErrStorageError", err)
	}
}

func TestPutBlob_EncryptedChunks(t *testing.T) {
	ctx := context.Background()
	c, err := NewBlobCipher("blob secret")
	if err != nil {
		t.Fatalf("NewBlobCipher: %v", err)
	}
	engine := kv.NewMemoryEngine()
	t.Cleanup(func() { engine.Close() })
	s := New(engine, WithBlobDir(t.TempDir()), WithBlobCipher(c))

	data := bytes.Repeat([]byte("0123456789abcdef"), 3*blobChunkSize/16+1)
	ref, err := s.PutBlob(ctx, Digest(data), bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("PutBlob: %v", err)
	}
	readAll := func(ref domain.BlobRef) ([]byte, error) {
		rc, err := s.OpenBlob(ctx, ref)
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	got, err := readAll(ref)
	if err != nil {
		t.Fatalf("read blob: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("blob is %d bytes, want %d", len(got), len(data))
	}

	wrong := ref
	wrong.Digest = Digest([]byte("other"))
	if _, err := readAll(wrong); !errors.Is(err, domain.ErrStorageError) {
		t.Errorf("read with wrong digest = %v, want ErrStorageError", err)
	}

	// Dropping the last chunk leaves a file whose chunks all open but
	// whose end is not a final chunk.
	onDisk, err := os.ReadFile(ref.Path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	chunk := 4 + blobChunkSize + c.Overhead()
	if err := os.WriteFile(ref.Path, onDisk[:3*chunk], 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := readAll(ref); !errors.Is(err, domain.ErrStorageError) {
		t.Errorf("read truncated blob = %v, want ErrStorageError", err)
	}
}

func TestPutBlob_EncryptedEmpty(t *testing.T) {
	ctx := context.Background()
	c, err := NewBlobCipher("blob secret")
	if err != nil {
		t.Fatalf("NewBlobCipher: %v", err)
	}
	engine := kv.NewMemoryEngine()
	t.Cleanup(func() { engine.Close() })
	s := New(engine, WithBlobDir(t.TempDir()), WithBlobCipher(c))

	ref, err := s.PutBlob(ctx, "", bytes.NewReader(nil), 0)
	if err != nil {
		t.Fatalf("PutBlob: %v", err)
	}
	rc, err := s.OpenBlob(ctx, ref)
	if err != nil {
		t.Fatalf("OpenBlob: %v", err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil || len(got) != 0 {
		t.Errorf("ReadAll = %q, %v; want empty", got, err)
	}
}
