package kv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/redolog-go/pkg/crypto/adaptive"
)

// EncryptionKeySize is the size of the derived Badger key (AES-256).
const EncryptionKeySize = adaptive.KeySize

// DeriveEncryptionKey derives the Badger encryption key from a secret.
func DeriveEncryptionKey(secret string) ([]byte, error) {
	key, err := adaptive.DeriveKey(secret, "badger")
	if err != nil {
		return nil, fmt.Errorf("kv: %w", err)
	}
	return key, nil
}

// BadgerEngine is an Engine backed by Badger v3. A background loop runs
// value log GC every BadgerConfig.GCInterval.
type BadgerEngine struct {
	db     *badger.DB
	tuning BadgerConfig
	log    *slog.Logger

	lastGC    atomic.Int64 // unix millis
	reclaimed atomic.Uint64

	closed atomic.Bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewBadgerEngine opens (creating if needed) a Badger database in cfg.Dir.
func NewBadgerEngine(cfg Config, log *slog.Logger) (*BadgerEngine, error) {
	if cfg.Dir == "" {
		return nil, errors.New("badger: dir is required")
	}
	if log == nil {
		log = slog.Default()
	}
	tuning := cfg.Badger
	if tuning.GCInterval <= 0 {
		tuning = DefaultBadgerConfig()
	}

	opts := badger.DefaultOptions(cfg.Dir).
		WithLogger(badgerLog{log}).
		WithBlockCacheSize(tuning.CacheSize).
		WithIndexCacheSize(tuning.IndexCacheSize).
		WithValueLogFileSize(tuning.ValueLogFileSize).
		WithNumMemtables(tuning.NumMemtables).
		WithSyncWrites(cfg.SyncWrites)

	if cfg.EncryptionSecret != "" {
		key, err := DeriveEncryptionKey(cfg.EncryptionSecret)
		if err != nil {
			return nil, err
		}
		opts = opts.WithEncryptionKey(key)
		// Badger refuses encrypted databases without an index cache.
		if opts.IndexCacheSize <= 0 {
			opts = opts.WithIndexCacheSize(16 << 20)
		}
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open %s: %w", cfg.Dir, err)
	}

	e := &BadgerEngine{
		db:     db,
		tuning: tuning,
		log:    log,
		done:   make(chan struct{}),
	}
	e.wg.Add(1)
	go e.runGC(tuning.GCInterval)

	log.Info("badger engine opened",
		"dir", cfg.Dir,
		"encrypted", cfg.EncryptionSecret != "",
		"sync_writes", cfg.SyncWrites,
		"gc_interval", tuning.GCInterval)
	return e, nil
}

func (e *BadgerEngine) Get(_ context.Context, key []byte) ([]byte, error) {
	var out []byte
	err := e.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrKeyNotFound
		}
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	return out, err
}

func (e *BadgerEngine) Set(ctx context.Context, key, value []byte) error {
	return e.Apply(ctx, []Mutation{Put(key, value)})
}

func (e *BadgerEngine) Delete(ctx context.Context, key []byte) error {
	return e.Apply(ctx, []Mutation{Del(key)})
}

// Apply commits muts in one Badger transaction. Batches too large for a
// single transaction fail with badger.ErrTxnTooBig.
func (e *BadgerEngine) Apply(_ context.Context, muts []Mutation) error {
	return e.db.Update(func(txn *badger.Txn) error {
		for _, m := range muts {
			if m.Delete {
				if err := txn.Delete(m.Key); err != nil {
					return err
				}
				continue
			}
			if err := txn.Set(m.Key, m.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

func (e *BadgerEngine) Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error {
	return e.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{
			PrefetchValues: true,
			PrefetchSize:   64,
			Prefix:         prefix,
		})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if !fn(item.KeyCopy(nil), v) {
				return nil
			}
		}
		return nil
	})
}

func (e *BadgerEngine) Sync() error { return e.db.Sync() }

// GC rewrites value log files until Badger reports nothing left to
// reclaim or ctx ends. The returned byte count is the shrink of the value
// log, which is approximate.
func (e *BadgerEngine) GC(ctx context.Context) (uint64, error) {
	began := time.Now()
	_, before := e.db.Size()

	runs := 0
	for ctx.Err() == nil {
		err := e.db.RunValueLogGC(e.tuning.GCThreshold)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("badger: value log gc: %w", err)
		}
		runs++
	}

	_, after := e.db.Size()
	var freed uint64
	if after < before {
		freed = uint64(before - after)
	}
	e.lastGC.Store(time.Now().UnixMilli())
	e.reclaimed.Add(freed)

	e.log.Debug("badger gc finished", "runs", runs, "reclaimed", freed, "took", time.Since(began))
	return freed, nil
}

// Stats reports on-disk sizes. Badger has no cheap key count, so
// TotalKeys stays zero.
func (e *BadgerEngine) Stats(context.Context) (*Stats, error) {
	lsm, vlog := e.db.Size()
	return &Stats{
		TotalSize:        uint64(lsm + vlog),
		LSMSize:          uint64(lsm),
		ValueLogSize:     uint64(vlog),
		LastGCTime:       e.lastGC.Load(),
		GCBytesReclaimed: e.reclaimed.Load(),
	}, nil
}

func (e *BadgerEngine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	close(e.done)
	e.wg.Wait()
	if err := e.db.Close(); err != nil {
		return fmt.Errorf("badger: close: %w", err)
	}
	e.log.Info("badger engine closed")
	return nil
}

// RegisterMetrics exposes the engine's sizes and GC progress on reg.
// Values are read at scrape time. Registering a second engine on the same
// registry is an error.
func (e *BadgerEngine) RegisterMetrics(reg prometheus.Registerer) error {
	return reg.Register(badgerCollector{e})
}

var (
	badgerLSMDesc = prometheus.NewDesc("redolog_badger_lsm_size_bytes",
		"Badger LSM tree size in bytes.", nil, nil)
	badgerVlogDesc = prometheus.NewDesc("redolog_badger_value_log_size_bytes",
		"Badger value log size in bytes.", nil, nil)
	badgerLastGCDesc = prometheus.NewDesc("redolog_badger_last_gc_timestamp_seconds",
		"Unix time of the last completed value log GC.", nil, nil)
	badgerReclaimedDesc = prometheus.NewDesc("redolog_badger_gc_reclaimed_bytes_total",
		"Bytes reclaimed by value log GC.", nil, nil)
)

type badgerCollector struct{ e *BadgerEngine }

func (c badgerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- badgerLSMDesc
	ch <- badgerVlogDesc
	ch <- badgerLastGCDesc
	ch <- badgerReclaimedDesc
}

func (c badgerCollector) Collect(ch chan<- prometheus.Metric) {
	if c.e.closed.Load() {
		return
	}
	lsm, vlog := c.e.db.Size()
	ch <- prometheus.MustNewConstMetric(badgerLSMDesc, prometheus.GaugeValue, float64(lsm))
	ch <- prometheus.MustNewConstMetric(badgerVlogDesc, prometheus.GaugeValue, float64(vlog))
	ch <- prometheus.MustNewConstMetric(badgerLastGCDesc, prometheus.GaugeValue, float64(c.e.lastGC.Load())/1000)
	ch <- prometheus.MustNewConstMetric(badgerReclaimedDesc, prometheus.CounterValue, float64(c.e.reclaimed.Load()))
}

func (e *BadgerEngine) runGC(every time.Duration) {
	defer e.wg.Done()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-e.done:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			if _, err := e.GC(ctx); err != nil {
				e.log.Warn("badger periodic gc failed", "error", err)
			}
			cancel()
		}
	}
}

// badgerLog routes Badger's printf-style logging into slog. Badger is
// chatty at info level, so its info lines are logged at debug.
type badgerLog struct{ l *slog.Logger }

func (b badgerLog) Errorf(f string, args ...any) {
	b.l.Error(trimNL(fmt.Sprintf(f, args...)), "component", "badger")
}
func (b badgerLog) Warningf(f string, args ...any) {
	b.l.Warn(trimNL(fmt.Sprintf(f, args...)), "component", "badger")
}
func (b badgerLog) Infof(f string, args ...any) {
	b.l.Debug(trimNL(fmt.Sprintf(f, args...)), "component", "badger")
}
func (b badgerLog) Debugf(f string, args ...any) {
	b.l.Debug(trimNL(fmt.Sprintf(f, args...)), "component", "badger")
}

func trimNL(s string) string {
	for len(s) > 0 && s[len(s)-1] == '\n' {
		s = s[:len(s)-1]
	}
	return s
}
