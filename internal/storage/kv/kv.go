// Package kv provides the embedded key-value engines the mailbox store
// persists to: Badger, Pebble and an in-memory engine for tests and
// tooling.
package kv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Common errors
var (
	ErrKeyNotFound = errors.New("kv: key not found")
	ErrClosed      = errors.New("kv: engine closed")
)

// Engine names accepted by Open.
const (
	EngineBadger = "badger"
	EnginePebble = "pebble"
	EngineMemory = "memory"
)

// Engine defines the interface for embedded key-value storage.
//
// Implementations are safe for concurrent use. Apply commits its
// mutations atomically.
type Engine interface {
	// Get retrieves a value by key.
	// Returns ErrKeyNotFound if key doesn't exist.
	Get(ctx context.Context, key []byte) ([]byte, error)

	// Set stores a key-value pair.
	Set(ctx context.Context, key, value []byte) error

	// Delete removes a key.
	Delete(ctx context.Context, key []byte) error

	// Apply commits a batch of mutations atomically.
	Apply(ctx context.Context, muts []Mutation) error

	// Scan iterates over keys with a given prefix in key order.
	// Callback returns false to stop iteration.
	Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error

	// Sync makes every acknowledged write durable.
	Sync() error

	// GC triggers garbage collection (for LSM-based engines).
	// Returns bytes reclaimed.
	GC(ctx context.Context) (uint64, error)

	// Stats returns storage statistics (size, keys count, etc.).
	Stats(ctx context.Context) (*Stats, error)

	// Close gracefully shuts down the engine.
	Close() error
}

// Mutation is one write of a batch. Delete removes Key; otherwise Key is
// set to Value.
type Mutation struct {
	Key    []byte
	Value  []byte
	Delete bool
}

// Put returns a set mutation.
func Put(key, value []byte) Mutation { return Mutation{Key: key, Value: value} }

// Del returns a delete mutation.
func Del(key []byte) Mutation { return Mutation{Key: key, Delete: true} }

// Stats contains storage engine statistics.
type Stats struct {
	// TotalKeys is the approximate number of keys.
	TotalKeys uint64

	// TotalSize is the total disk usage in bytes.
	TotalSize uint64

	// LSMSize is the LSM tree size (for Badger/Pebble).
	LSMSize uint64

	// ValueLogSize is the value log size (for Badger).
	ValueLogSize uint64

	// LastGCTime is the last GC run timestamp (Unix milliseconds).
	LastGCTime int64

	// GCBytesReclaimed is the total bytes reclaimed by GC.
	GCBytesReclaimed uint64
}

// Config configures an embedded KV engine.
type Config struct {
	// Engine specifies the engine type ("badger", "pebble", "memory").
	// Default: "badger"
	Engine string

	// Dir is the storage directory.
	Dir string

	// SyncWrites fsyncs every committed write.
	SyncWrites bool

	// EncryptionSecret, if set, encrypts Badger data at rest with a key
	// derived from it. The storage engine also seals blobs with it.
	EncryptionSecret string

	// Badger-specific configuration
	Badger BadgerConfig
}

// BadgerConfig contains Badger-specific tuning parameters.
type BadgerConfig struct {
	// GCInterval is the interval between automatic GC runs.
	// Default: 10m
	GCInterval time.Duration

	// GCThreshold is the GC discard ratio threshold (0.0-1.0).
	// Default: 0.5 (run GC when 50% of data is stale)
	GCThreshold float64

	// CacheSize is the block cache size in bytes.
	// Default: 64MB
	CacheSize int64

	// IndexCacheSize is the index cache size in bytes. Encryption
	// requires it to be non-zero.
	// Default: 16MB
	IndexCacheSize int64

	// ValueLogFileSize is the max value log file size in bytes.
	// Default: 256MB
	ValueLogFileSize int64

	// NumMemtables is the number of memtables.
	// Default: 2
	NumMemtables int
}

// DefaultConfig returns the default KV configuration.
func DefaultConfig(dir string) Config {
	return Config{
		Engine:     EngineBadger,
		Dir:        dir,
		SyncWrites: true,
		Badger:     DefaultBadgerConfig(),
	}
}

// DefaultBadgerConfig returns the default Badger configuration.
func DefaultBadgerConfig() BadgerConfig {
	return BadgerConfig{
		GCInterval:       10 * time.Minute,
		GCThreshold:      0.5,
		CacheSize:        64 << 20,
		IndexCacheSize:   16 << 20,
		ValueLogFileSize: 256 << 20,
		NumMemtables:     2,
	}
}

// Open opens the engine named by cfg.Engine.
func Open(cfg Config, logger *slog.Logger) (Engine, error) {
	switch cfg.Engine {
	case "", EngineBadger:
		return NewBadgerEngine(cfg, logger)
	case EnginePebble:
		return NewPebbleEngine(cfg, logger)
	case EngineMemory:
		return NewMemoryEngine(), nil
	default:
		return nil, fmt.Errorf("kv: unknown engine %q", cfg.Engine)
	}
}

// prefixEnd returns the smallest key greater than every key with the
// given prefix, or nil if there is none.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
