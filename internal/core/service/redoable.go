package service

import (
	"context"
	"sync"

	"github.com/yndnr/redolog-go/internal/core/domain"
	"github.com/yndnr/redolog-go/internal/storage/wal"
)

// Redoable is a logged operation that can apply itself to a Store.
//
// Redo runs both on the live path, right after the operation is logged,
// and during recovery. It must treat "already applied" as success by
// returning an error for which domain.IsAlreadyApplied is true, or nil.
type Redoable interface {
	wal.Op
	Redo(ctx context.Context, env *Env, rec *wal.Record) error
}

// Env is what an operation sees while it applies.
type Env struct {
	Store Store
	Blobs *BlobRegistry
}

// NewEnv returns an Env over store with an empty blob registry.
func NewEnv(store Store) *Env {
	return &Env{Store: store, Blobs: NewBlobRegistry()}
}

// BlobRegistry maps the spool path a blob was delivered from to the blob
// stored for it, so messages delivered to several mailboxes store the
// content once.
type BlobRegistry struct {
	mu    sync.Mutex
	blobs map[string]domain.BlobRef
}

// NewBlobRegistry returns an empty registry.
func NewBlobRegistry() *BlobRegistry {
	return &BlobRegistry{blobs: make(map[string]domain.BlobRef)}
}

// Register records ref under path. A path registers once; later calls
// keep the first ref.
func (r *BlobRegistry) Register(path string, ref domain.BlobRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.blobs[path]; !ok {
		r.blobs[path] = ref
	}
}

// Lookup returns the blob registered under path.
func (r *BlobRegistry) Lookup(path string) (domain.BlobRef, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, ok := r.blobs[path]
	return ref, ok
}

// Len returns the number of registered blobs.
func (r *BlobRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.blobs)
}
