package mailstore

import (
	"context"
	"encoding/json"

	"github.com/yndnr/redolog-go/internal/core/domain"
	"github.com/yndnr/redolog-go/internal/storage/kv"
)

// CreateItem creates it in its mailbox. Apart from tags, items need an
// existing container as parent.
func (s *Store) CreateItem(ctx context.Context, it *domain.Item) error {
	if err := it.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	mb, err := s.GetMailbox(ctx, it.Mailbox)
	if err != nil {
		return err
	}

	existing, err := s.getItem(ctx, it.Mailbox, it.ID)
	switch {
	case err == nil:
		if existing.SameIdentity(it) {
			return domain.ErrAlreadyExists.Detailf("%s %d in mailbox %d", it.Type, it.ID, it.Mailbox)
		}
		return domain.ErrIdentityConflict.Detailf("item %d in mailbox %d is %s %q, not %s %q",
			it.ID, it.Mailbox, existing.Type, existing.Name, it.Type, it.Name)
	case !domain.IsDomainError(err, domain.ErrNoSuchItem.Code):
		return err
	}

	if it.Type != domain.ItemTypeTag {
		if err := s.checkFolder(ctx, it.Mailbox, it.FolderID); err != nil {
			return err
		}
	}

	muts := make([]kv.Mutation, 0, 2)
	m, err := put(itemKey(it.Mailbox, it.ID), it)
	if err != nil {
		return err
	}
	muts = append(muts, m)
	if it.ID >= mb.NextItemID {
		mb.NextItemID = it.ID + 1
		m, err := put(mailboxKey(mb.ID), mb)
		if err != nil {
			return err
		}
		muts = append(muts, m)
	}
	return s.apply(ctx, muts...)
}

func (s *Store) checkFolder(ctx context.Context, mailbox, id int32) error {
	parent, err := s.getItem(ctx, mailbox, id)
	if err != nil {
		if domain.IsDomainError(err, domain.ErrNoSuchItem.Code) {
			return domain.ErrNoSuchFolder.Detailf("folder %d in mailbox %d", id, mailbox)
		}
		return err
	}
	if !parent.Type.IsContainer() {
		return domain.ErrWrongItemType.Detailf("item %d is a %s, not a folder", id, parent.Type)
	}
	return nil
}

func (s *Store) getItem(ctx context.Context, mailbox, id int32) (*domain.Item, error) {
	var it domain.Item
	notFound := domain.ErrNoSuchItem.Detailf("item %d in mailbox %d", id, mailbox)
	if err := s.getJSON(ctx, itemKey(mailbox, id), &it, notFound); err != nil {
		return nil, err
	}
	return &it, nil
}

// GetItem returns an item.
func (s *Store) GetItem(ctx context.Context, mailbox, id int32) (*domain.Item, error) {
	return s.getItem(ctx, mailbox, id)
}

// UpdateItem applies fn to an item. The id, type and mailbox of an item
// cannot change; a new parent folder must exist.
func (s *Store) UpdateItem(ctx context.Context, mailbox, id int32, fn func(*domain.Item) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, err := s.getItem(ctx, mailbox, id)
	if err != nil {
		return err
	}
	before := it.Clone()
	if err := fn(it); err != nil {
		return err
	}
	if it.ID != before.ID || it.Type != before.Type || it.Mailbox != before.Mailbox {
		return domain.ErrInvalidArgument.Detailf("item %d: identity fields cannot change", id)
	}
	if it.FolderID != before.FolderID && it.Type != domain.ItemTypeTag {
		if it.ID == domain.RootFolderID {
			return domain.ErrInvalidArgument.WithDetails("root folder cannot move")
		}
		if err := s.checkFolder(ctx, mailbox, it.FolderID); err != nil {
			return err
		}
	}
	return s.putJSON(ctx, itemKey(mailbox, id), it)
}

// DeleteItem deletes an item. Deleting a container deletes everything
// below it.
func (s *Store) DeleteItem(ctx context.Context, mailbox, id int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, err := s.getItem(ctx, mailbox, id)
	if err != nil {
		if domain.IsDomainError(err, domain.ErrNoSuchItem.Code) {
			return domain.ErrAlreadyDeleted.Detailf("item %d in mailbox %d", id, mailbox)
		}
		return err
	}
	if id == domain.RootFolderID {
		return domain.ErrInvalidArgument.WithDetails("root folder cannot be deleted")
	}

	muts := []kv.Mutation{kv.Del(itemKey(mailbox, id))}
	if it.Type.IsContainer() {
		children := make(map[int32][]int32)
		err := s.scanItems(ctx, mailbox, func(c *domain.Item) bool {
			if c.ID != c.FolderID && c.Type != domain.ItemTypeTag {
				children[c.FolderID] = append(children[c.FolderID], c.ID)
			}
			return true
		})
		if err != nil {
			return err
		}
		queue := children[id]
		for len(queue) > 0 {
			c := queue[0]
			queue = queue[1:]
			muts = append(muts, kv.Del(itemKey(mailbox, c)))
			queue = append(queue, children[c]...)
		}
	}
	return s.apply(ctx, muts...)
}

// ListItems calls fn for every item of the mailbox in id order.
func (s *Store) ListItems(ctx context.Context, mailbox int32, fn func(*domain.Item) bool) error {
	if _, err := s.GetMailbox(ctx, mailbox); err != nil {
		return err
	}
	return s.scanItems(ctx, mailbox, fn)
}

func (s *Store) scanItems(ctx context.Context, mailbox int32, fn func(*domain.Item) bool) error {
	var decodeErr error
	err := s.kv.Scan(ctx, itemPrefix(mailbox), func(_, value []byte) bool {
		var it domain.Item
		if err := json.Unmarshal(value, &it); err != nil {
			decodeErr = err
			return false
		}
		return fn(&it)
	})
	if err == nil {
		err = decodeErr
	}
	if err != nil {
		return domain.ErrStorageError.WithCause(err)
	}
	return nil
}
