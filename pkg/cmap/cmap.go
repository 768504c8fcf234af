package cmap

import (
	"sort"
	"strings"
	"sync"

	"github.com/spaolacci/murmur3"
)

// DefaultShardCount is the shard count New uses.
const DefaultShardCount = 16

// Map is a concurrent map from string keys to V.
type Map[V any] struct {
	shards []*shard[V]
	mask   uint64
}

type shard[V any] struct {
	mu    sync.RWMutex
	items map[string]V
}

// New returns a map with DefaultShardCount shards.
func New[V any]() *Map[V] {
	return NewWithShards[V](DefaultShardCount)
}

// NewWithShards returns a map with n shards. n is rounded up to a power
// of two; values below one select DefaultShardCount.
func NewWithShards[V any](n int) *Map[V] {
	if n < 1 {
		n = DefaultShardCount
	}
	size := 1
	for size < n {
		size <<= 1
	}
	m := &Map[V]{
		shards: make([]*shard[V], size),
		mask:   uint64(size - 1),
	}
	for i := range m.shards {
		m.shards[i] = &shard[V]{items: make(map[string]V)}
	}
	return m
}

func (m *Map[V]) shardFor(key string) *shard[V] {
	return m.shards[murmur3.Sum64([]byte(key))&m.mask]
}

// ShardCount returns the number of shards.
func (m *Map[V]) ShardCount() int { return len(m.shards) }

func (m *Map[V]) Get(key string) (V, bool) {
	s := m.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok
}

func (m *Map[V]) Set(key string, v V) {
	s := m.shardFor(key)
	s.mu.Lock()
	s.items[key] = v
	s.mu.Unlock()
}

// Delete removes key and reports whether it was present.
func (m *Map[V]) Delete(key string) bool {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[key]
	delete(s.items, key)
	return ok
}

// Update replaces the value of key with fn's result under the shard
// lock. fn receives the current value and whether it exists; returning
// keep=false deletes the key.
func (m *Map[V]) Update(key string, fn func(old V, exists bool) (v V, keep bool)) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.items[key]
	v, keep := fn(old, ok)
	if keep {
		s.items[key] = v
	} else {
		delete(s.items, key)
	}
}

// Len returns the number of keys.
func (m *Map[V]) Len() int {
	n := 0
	for _, s := range m.shards {
		s.mu.RLock()
		n += len(s.items)
		s.mu.RUnlock()
	}
	return n
}

// Clear removes every key.
func (m *Map[V]) Clear() {
	for _, s := range m.shards {
		s.mu.Lock()
		clear(s.items)
		s.mu.Unlock()
	}
}

// Range calls fn for every entry in no particular order until fn
// returns false. Each shard is read-locked while it is visited, so fn
// must not modify the map.
func (m *Map[V]) Range(fn func(key string, v V) bool) {
	for _, s := range m.shards {
		s.mu.RLock()
		for k, v := range s.items {
			if !fn(k, v) {
				s.mu.RUnlock()
				return
			}
		}
		s.mu.RUnlock()
	}
}

type entry[V any] struct {
	key string
	v   V
}

// SortedRange calls fn in key order for the entries whose key starts
// with prefix. It works on a snapshot, so fn may modify the map.
func (m *Map[V]) SortedRange(prefix string, fn func(key string, v V) bool) {
	var hits []entry[V]
	m.Range(func(k string, v V) bool {
		if strings.HasPrefix(k, prefix) {
			hits = append(hits, entry[V]{k, v})
		}
		return true
	})
	sort.Slice(hits, func(i, j int) bool { return hits[i].key < hits[j].key })
	for _, h := range hits {
		if !fn(h.key, h.v) {
			return
		}
	}
}
