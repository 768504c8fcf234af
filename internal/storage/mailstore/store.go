package mailstore

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/yndnr/redolog-go/internal/core/domain"
	"github.com/yndnr/redolog-go/internal/core/service"
	"github.com/yndnr/redolog-go/internal/storage/kv"
	"github.com/yndnr/redolog-go/pkg/crypto/adaptive"
)

// RootFolderName is the name of every mailbox's root folder.
const RootFolderName = "USER_ROOT"

var _ service.Store = (*Store)(nil)

// Store implements service.Store over a kv.Engine.
type Store struct {
	kv      kv.Engine
	blobDir string
	cipher  adaptive.Cipher
	logger  *slog.Logger

	// Serializes every mutation.
	mu sync.Mutex
}

// Option configures the Store.
type Option func(*Store)

// WithBlobDir sets where blobs go while no primary volume is current.
func WithBlobDir(dir string) Option {
	return func(s *Store) {
		s.blobDir = dir
	}
}

// WithBlobCipher encrypts blob files at rest with c.
func WithBlobCipher(c adaptive.Cipher) Option {
	return func(s *Store) {
		s.cipher = c
	}
}

// NewBlobCipher derives the blob cipher for an encryption secret.
func NewBlobCipher(secret string) (adaptive.Cipher, error) {
	key, err := adaptive.DeriveKey(secret, "blobs")
	if err != nil {
		return nil, err
	}
	return adaptive.New(key)
}

// WithLogger sets the store's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a store over engine.
func New(engine kv.Engine, opts ...Option) *Store {
	s := &Store{
		kv:     engine,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync makes every applied mutation durable.
func (s *Store) Sync() error {
	return s.kv.Sync()
}

// getJSON loads key into v. It returns notFound when the key is absent.
func (s *Store) getJSON(ctx context.Context, key []byte, v any, notFound error) error {
	raw, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, kv.ErrKeyNotFound) {
			return notFound
		}
		return domain.ErrStorageError.WithCause(err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return domain.ErrStorageError.WithCause(err)
	}
	return nil
}

func put(key []byte, v any) (kv.Mutation, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return kv.Mutation{}, domain.ErrStorageError.WithCause(err)
	}
	return kv.Put(key, raw), nil
}

func (s *Store) apply(ctx context.Context, muts ...kv.Mutation) error {
	if err := s.kv.Apply(ctx, muts); err != nil {
		return domain.ErrStorageError.WithCause(err)
	}
	return nil
}

func (s *Store) putJSON(ctx context.Context, key []byte, v any) error {
	m, err := put(key, v)
	if err != nil {
		return err
	}
	return s.apply(ctx, m)
}
