package mailstore

import (
	"context"
	"errors"

	"github.com/yndnr/redolog-go/internal/core/domain"
	"github.com/yndnr/redolog-go/internal/storage/kv"
)

// CreateMailbox creates mb and its root folder.
func (s *Store) CreateMailbox(ctx context.Context, mb *domain.Mailbox) error {
	if err := mb.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var existing domain.Mailbox
	err := s.getJSON(ctx, mailboxKey(mb.ID), &existing, domain.ErrNoSuchMailbox)
	switch {
	case err == nil:
		if existing.AccountID == mb.AccountID {
			return domain.ErrAlreadyExists.Detailf("mailbox %d", mb.ID)
		}
		return domain.ErrIdentityConflict.Detailf("mailbox %d belongs to account %s, not %s",
			mb.ID, existing.AccountID, mb.AccountID)
	case !errors.Is(err, domain.ErrNoSuchMailbox):
		return err
	}

	created := *mb
	if created.NextItemID < domain.FirstUserID {
		created.NextItemID = domain.FirstUserID
	}
	root := &domain.Item{
		ID:       domain.RootFolderID,
		Type:     domain.ItemTypeFolder,
		Mailbox:  mb.ID,
		FolderID: domain.RootFolderID,
		Name:     RootFolderName,
		RGB:      domain.NoRGB,
		Date:     mb.CreatedAt,
	}

	m1, err := put(mailboxKey(mb.ID), &created)
	if err != nil {
		return err
	}
	m2, err := put(itemKey(mb.ID, root.ID), root)
	if err != nil {
		return err
	}
	return s.apply(ctx, m1, m2)
}

// GetMailbox returns the mailbox.
func (s *Store) GetMailbox(ctx context.Context, id int32) (*domain.Mailbox, error) {
	var mb domain.Mailbox
	if err := s.getJSON(ctx, mailboxKey(id), &mb, domain.ErrNoSuchMailbox.Detailf("mailbox %d", id)); err != nil {
		return nil, err
	}
	return &mb, nil
}

// UpdateMailbox applies fn to the mailbox.
func (s *Store) UpdateMailbox(ctx context.Context, id int32, fn func(*domain.Mailbox) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mb, err := s.GetMailbox(ctx, id)
	if err != nil {
		return err
	}
	if err := fn(mb); err != nil {
		return err
	}
	if mb.ID != id {
		return domain.ErrInvalidArgument.Detailf("mailbox id changed from %d to %d", id, mb.ID)
	}
	return s.putJSON(ctx, mailboxKey(id), mb)
}

// DeleteMailbox removes the mailbox and all of its items. Blobs stay;
// other mailboxes may share them.
func (s *Store) DeleteMailbox(ctx context.Context, id int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.GetMailbox(ctx, id); err != nil {
		if domain.IsDomainError(err, domain.ErrNoSuchMailbox.Code) {
			return domain.ErrAlreadyDeleted.Detailf("mailbox %d", id)
		}
		return err
	}

	muts := []kv.Mutation{kv.Del(mailboxKey(id))}
	err := s.kv.Scan(ctx, itemPrefix(id), func(key, _ []byte) bool {
		muts = append(muts, kv.Del(key))
		return true
	})
	if err != nil {
		return domain.ErrStorageError.WithCause(err)
	}
	return s.apply(ctx, muts...)
}
