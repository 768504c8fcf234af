package mailstore

import (
	"context"
	"errors"
	"strconv"

	"github.com/yndnr/redolog-go/internal/core/domain"
	"github.com/yndnr/redolog-go/internal/storage/kv"
)

// CreateVolume registers v. A volume with the same id, type and path is
// a duplicate; any other volume under the id is a conflict.
func (s *Store) CreateVolume(ctx context.Context, v *domain.Volume) error {
	if err := v.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.GetVolume(ctx, v.ID)
	switch {
	case err == nil:
		if existing.Type == v.Type && existing.Path == v.Path {
			return domain.ErrAlreadyExists.Detailf("volume %d", v.ID)
		}
		return domain.ErrIdentityConflict.Detailf("volume %d is %s at %s", v.ID, existing.Type, existing.Path)
	case !errors.Is(err, domain.ErrNoSuchVolume):
		return err
	}
	return s.putJSON(ctx, volumeKey(v.ID), v)
}

// GetVolume returns a volume.
func (s *Store) GetVolume(ctx context.Context, id int16) (*domain.Volume, error) {
	var v domain.Volume
	if err := s.getJSON(ctx, volumeKey(id), &v, domain.ErrNoSuchVolume.Detailf("volume %d", id)); err != nil {
		return nil, err
	}
	return &v, nil
}

// UpdateVolume applies fn to a volume.
func (s *Store) UpdateVolume(ctx context.Context, id int16, fn func(*domain.Volume) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.GetVolume(ctx, id)
	if err != nil {
		return err
	}
	typ := v.Type
	if err := fn(v); err != nil {
		return err
	}
	if v.ID != id {
		return domain.ErrInvalidArgument.Detailf("volume id changed from %d to %d", id, v.ID)
	}
	if err := v.Validate(); err != nil {
		return err
	}
	if v.Type != typ {
		cur, err := s.currentVolume(ctx, typ)
		if err != nil {
			return err
		}
		if cur == id {
			return domain.ErrVolumeInUse.Detailf("volume %d is the current %s volume", id, typ)
		}
	}
	return s.putJSON(ctx, volumeKey(id), v)
}

// DeleteVolume removes a volume that is not current.
func (s *Store) DeleteVolume(ctx context.Context, id int16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.GetVolume(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNoSuchVolume) {
			return domain.ErrAlreadyDeleted.Detailf("volume %d", id)
		}
		return err
	}
	cur, err := s.currentVolume(ctx, v.Type)
	if err != nil {
		return err
	}
	if cur == id {
		return domain.ErrVolumeInUse.Detailf("volume %d is the current %s volume", id, v.Type)
	}
	return s.apply(ctx, kv.Del(volumeKey(id)))
}

// SetCurrentVolume makes id the current volume of type t. Id 0 clears
// the current volume.
func (s *Store) SetCurrentVolume(ctx context.Context, t domain.VolumeType, id int16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == 0 {
		return s.apply(ctx, kv.Del(currentVolumeKey(uint8(t))))
	}
	v, err := s.GetVolume(ctx, id)
	if err != nil {
		return err
	}
	if v.Type != t {
		return domain.ErrInvalidArgument.Detailf("volume %d is a %s volume, not %s", id, v.Type, t)
	}
	return s.apply(ctx, kv.Put(currentVolumeKey(uint8(t)), []byte(strconv.Itoa(int(id)))))
}

// CurrentVolume returns the current volume of type t, or 0.
func (s *Store) CurrentVolume(ctx context.Context, t domain.VolumeType) (int16, error) {
	return s.currentVolume(ctx, t)
}

func (s *Store) currentVolume(ctx context.Context, t domain.VolumeType) (int16, error) {
	raw, err := s.kv.Get(ctx, currentVolumeKey(uint8(t)))
	if err != nil {
		if errors.Is(err, kv.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, domain.ErrStorageError.WithCause(err)
	}
	id, err := strconv.ParseInt(string(raw), 10, 16)
	if err != nil {
		return 0, domain.ErrStorageError.WithCause(err)
	}
	return int16(id), nil
}
