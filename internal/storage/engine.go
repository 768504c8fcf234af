package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/yndnr/redolog-go/internal/core/service"
	"github.com/yndnr/redolog-go/internal/infra/fileops"
	"github.com/yndnr/redolog-go/internal/storage/kv"
	"github.com/yndnr/redolog-go/internal/storage/mailstore"
	"github.com/yndnr/redolog-go/internal/storage/recovery"
	"github.com/yndnr/redolog-go/internal/storage/redo"
	"github.com/yndnr/redolog-go/internal/storage/wal"
	"github.com/yndnr/redolog-go/internal/telemetry/metric"
)

// Default configuration values.
const (
	DefaultCheckpointInterval = time.Minute
	DefaultDeferredWorkers    = 4
	DefaultKVDir              = "kv"
	DefaultWALDir             = "wal"
	DefaultBlobDir            = "blobs"
)

// Config configures the storage engine.
type Config struct {
	// DataDir is the base directory for all storage files.
	DataDir string

	// KV configures the engine behind the mailbox store.
	KV kv.Config

	// WAL configures the log writer. Registry defaults to the operation
	// catalog.
	WAL wal.Config

	// CheckpointInterval is the interval between automatic checkpoints.
	// Zero disables the loop.
	CheckpointInterval time.Duration

	// RetainCount and ArchiveDir configure compaction.
	RetainCount int
	ArchiveDir  string

	// DrainDeferred applies deferred operations in the background after
	// recovery. When false they are dropped.
	DrainDeferred   bool
	DeferredWorkers int

	// FileOps configures the service that deletes or archives segments.
	FileOps fileops.Config

	// Metrics, if set, receives log, recovery and file metrics.
	Metrics *metric.Registry

	Logger *slog.Logger
}

// DefaultConfig returns the default storage configuration.
func DefaultConfig(dataDir string) Config {
	reg := redo.Registry()
	return Config{
		DataDir:            dataDir,
		KV:                 kv.DefaultConfig(filepath.Join(dataDir, DefaultKVDir)),
		WAL:                wal.DefaultConfig(filepath.Join(dataDir, DefaultWALDir), reg),
		CheckpointInterval: DefaultCheckpointInterval,
		RetainCount:        wal.DefaultRetainCount,
		DrainDeferred:      true,
		DeferredWorkers:    DefaultDeferredWorkers,
		FileOps:            fileops.DefaultConfig(),
		Logger:             slog.Default(),
	}
}

// Engine is a mailbox store kept consistent by a redo log.
type Engine struct {
	cfg    Config
	logger *slog.Logger

	kv        kv.Engine
	store     *mailstore.Store
	blobs     *service.BlobRegistry
	wal       *wal.Writer
	exec      *service.Executor
	replayer  *recovery.Replayer
	compactor *wal.Compactor
	files     *fileops.Service

	recovered recovery.Result

	// Checkpoints serialize; compaction waits for the deferred drain.
	ckptMu   sync.Mutex
	drainMu  sync.Mutex
	draining bool

	drainCancel context.CancelFunc
	stopCh      chan struct{}
	wg          sync.WaitGroup
	closeOnce   sync.Once
	closeErr    error
}

// Open opens the store, recovers it from the log and opens the log for
// writing. It fails with recovery.ErrUncleanRecovery when a committed
// transaction could not be replayed; nothing is written to the log in
// that case.
func Open(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("storage: data_dir is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.WAL.Registry == nil {
		cfg.WAL.Registry = redo.Registry()
	}
	if cfg.WAL.Dir == "" {
		cfg.WAL.Dir = filepath.Join(cfg.DataDir, DefaultWALDir)
	}
	if cfg.KV.Dir == "" {
		cfg.KV.Dir = filepath.Join(cfg.DataDir, DefaultKVDir)
	}
	if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
		return nil, fmt.Errorf("storage: create data dir: %w", err)
	}

	e := &Engine{
		cfg:    cfg,
		logger: cfg.Logger,
		blobs:  service.NewBlobRegistry(),
		stopCh: make(chan struct{}),
	}

	engine, err := kv.Open(cfg.KV, cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("storage: open kv: %w", err)
	}
	e.kv = engine
	if b, ok := engine.(*kv.BadgerEngine); ok && cfg.Metrics != nil {
		if err := b.RegisterMetrics(cfg.Metrics.Registerer()); err != nil {
			e.logger.Warn("badger metrics not registered", "error", err)
		}
	}
	storeOpts := []mailstore.Option{
		mailstore.WithBlobDir(filepath.Join(cfg.DataDir, DefaultBlobDir)),
		mailstore.WithLogger(cfg.Logger),
	}
	if cfg.KV.EncryptionSecret != "" {
		c, err := mailstore.NewBlobCipher(cfg.KV.EncryptionSecret)
		if err != nil {
			engine.Close()
			return nil, fmt.Errorf("storage: blob cipher: %w", err)
		}
		storeOpts = append(storeOpts, mailstore.WithBlobCipher(c))
	}
	e.store = mailstore.New(engine, storeOpts...)

	if err := e.recover(ctx); err != nil {
		e.kv.Close()
		return nil, err
	}

	walCfg := cfg.WAL
	walCfg.Logger = cfg.Logger
	if cfg.Metrics != nil {
		walCfg.Metrics = cfg.Metrics
	}
	w, err := wal.NewWriter(walCfg)
	if err != nil {
		e.replayer.Close()
		e.kv.Close()
		return nil, fmt.Errorf("storage: open wal: %w", err)
	}
	e.wal = w
	e.exec = service.NewExecutor(w, e.store,
		service.WithExecutorLogger(cfg.Logger),
		service.WithBlobRegistry(e.blobs),
	)

	fcfg := cfg.FileOps
	fcfg.Logger = cfg.Logger
	if cfg.Metrics != nil {
		fcfg.Metrics = cfg.Metrics
		cfg.Metrics.MustRegister(metric.NewWALCollector(w.Status))
	}
	e.files = fileops.New(fcfg)
	e.compactor = wal.NewCompactor(walCfg.Dir, walCfg.Registry,
		wal.WithFileMover(e.files),
		wal.WithArchiveDir(cfg.ArchiveDir),
		wal.WithRetainCount(cfg.RetainCount),
		wal.WithCompactorLogger(cfg.Logger),
		wal.WithCompactorMaxPayload(walCfg.MaxPayloadSize),
	)

	e.startDrain()
	if cfg.CheckpointInterval > 0 {
		e.wg.Add(1)
		go e.checkpointLoop()
	}
	return e, nil
}

func (e *Engine) recover(ctx context.Context) error {
	opts := []recovery.Option{
		recovery.WithLogger(e.logger),
		recovery.WithMaxPayloadSize(e.cfg.WAL.MaxPayloadSize),
		recovery.WithDeferredWorkers(e.cfg.DeferredWorkers),
		recovery.WithBlobRegistry(e.blobs),
	}
	if e.cfg.Metrics != nil {
		opts = append(opts, recovery.WithMetrics(e.cfg.Metrics))
	}
	e.replayer = recovery.New(e.cfg.WAL.Dir, e.cfg.WAL.Registry, e.store, opts...)

	res, err := e.replayer.Run(ctx)
	e.recovered = res
	if err != nil {
		e.replayer.Close()
		return fmt.Errorf("storage: %w", err)
	}
	if err := e.store.Sync(); err != nil {
		e.replayer.Close()
		return fmt.Errorf("storage: sync after recovery: %w", err)
	}
	return nil
}

// startDrain applies the deferred queue in the background, or drops it.
func (e *Engine) startDrain() {
	if e.replayer.PendingDeferred() == 0 || !e.cfg.DrainDeferred {
		if n := e.replayer.PendingDeferred(); n > 0 {
			e.logger.Warn("dropping deferred operations", "count", n)
		}
		e.replayer.Close()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.drainCancel = cancel
	e.drainMu.Lock()
	e.draining = true
	e.drainMu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer cancel()
		n, err := e.replayer.DrainDeferred(ctx)
		if err != nil {
			e.logger.Error("deferred operations failed", "applied", n, "error", err)
		}
		e.replayer.Close()
		e.drainMu.Lock()
		e.draining = false
		e.drainMu.Unlock()
	}()
}

// Draining reports whether deferred operations are still being applied.
func (e *Engine) Draining() bool {
	e.drainMu.Lock()
	defer e.drainMu.Unlock()
	return e.draining
}

// Executor returns the live write path.
func (e *Engine) Executor() *service.Executor { return e.exec }

// Store returns the mailbox store.
func (e *Engine) Store() *mailstore.Store { return e.store }

// Recovered returns what startup recovery did.
func (e *Engine) Recovered() recovery.Result { return e.recovered }

// Status returns the log writer's status.
func (e *Engine) Status() wal.Status { return e.wal.Status() }

// FileStats returns counters of the file-movement service.
func (e *Engine) FileStats() fileops.Stats { return e.files.Stats() }

// Checkpoint makes the store durable and compacts every finalized segment
// before the active one. Compaction is skipped while deferred operations
// still read from the log.
func (e *Engine) Checkpoint(ctx context.Context) (wal.CompactResult, error) {
	e.ckptMu.Lock()
	defer e.ckptMu.Unlock()

	if err := e.store.Sync(); err != nil {
		return wal.CompactResult{}, fmt.Errorf("storage: sync store: %w", err)
	}
	if e.Draining() {
		e.logger.Debug("compaction skipped while deferred operations drain")
		return wal.CompactResult{}, nil
	}
	st := e.wal.Status()
	if st.Err != nil {
		return wal.CompactResult{}, fmt.Errorf("storage: wal failed: %w", st.Err)
	}
	res, err := e.compactor.Compact(ctx, st.Segment)
	if err != nil {
		return res, err
	}
	if res.BlockedBy != nil {
		e.logger.Debug("compaction blocked by open transaction", "txn_id", res.BlockedBy.String())
	}
	return res, nil
}

// checkpointLoop runs periodic checkpoints.
func (e *Engine) checkpointLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.CheckpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if _, err := e.Checkpoint(ctx); err != nil {
				e.logger.Error("checkpoint failed", "error", err)
			}
			cancel()

		case <-e.stopCh:
			return
		}
	}
}

// Close stops background work and closes the log, then the store.
// Deferred operations not yet applied are dropped.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.logger.Info("shutting down storage engine")

		close(e.stopCh)
		if e.drainCancel != nil {
			e.drainCancel()
		}
		e.wg.Wait()

		var errs []error
		if err := e.wal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close wal: %w", err))
		}
		if err := e.files.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close fileops: %w", err))
		}
		if err := e.store.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("sync store: %w", err))
		}
		if err := e.kv.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close kv: %w", err))
		}
		e.closeErr = errors.Join(errs...)
	})
	return e.closeErr
}
