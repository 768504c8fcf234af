package kv

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"

	"github.com/yndnr/redolog-go/pkg/cmap"
)

// MemoryEngine is a non-durable Engine backed by a sharded map. The
// outer lock makes Apply atomic with respect to readers.
type MemoryEngine struct {
	mu     sync.RWMutex
	data   *cmap.Map[[]byte]
	closed atomic.Bool
}

// NewMemoryEngine returns an empty in-memory engine.
func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{data: cmap.New[[]byte]()}
}

func (e *MemoryEngine) Get(ctx context.Context, key []byte) ([]byte, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.data.Get(string(key))
	if !ok {
		return nil, ErrKeyNotFound
	}
	return bytes.Clone(v), nil
}

func (e *MemoryEngine) Set(ctx context.Context, key, value []byte) error {
	return e.Apply(ctx, []Mutation{Put(key, value)})
}

func (e *MemoryEngine) Delete(ctx context.Context, key []byte) error {
	return e.Apply(ctx, []Mutation{Del(key)})
}

func (e *MemoryEngine) Apply(ctx context.Context, muts []Mutation) error {
	if e.closed.Load() {
		return ErrClosed
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, m := range muts {
		if m.Delete {
			e.data.Delete(string(m.Key))
		} else {
			e.data.Set(string(m.Key), bytes.Clone(m.Value))
		}
	}
	return nil
}

func (e *MemoryEngine) Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error {
	if e.closed.Load() {
		return ErrClosed
	}
	type kv struct {
		k string
		v []byte
	}
	var hits []kv
	e.mu.RLock()
	e.data.SortedRange(string(prefix), func(k string, v []byte) bool {
		hits = append(hits, kv{k, bytes.Clone(v)})
		return true
	})
	e.mu.RUnlock()

	for _, h := range hits {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !fn([]byte(h.k), h.v) {
			break
		}
	}
	return nil
}

func (e *MemoryEngine) Sync() error { return nil }

func (e *MemoryEngine) GC(ctx context.Context) (uint64, error) { return 0, nil }

func (e *MemoryEngine) Stats(ctx context.Context) (*Stats, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var size uint64
	e.data.Range(func(k string, v []byte) bool {
		size += uint64(len(k) + len(v))
		return true
	})
	return &Stats{TotalKeys: uint64(e.data.Len()), TotalSize: size}, nil
}

func (e *MemoryEngine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	e.data.Clear()
	return nil
}
