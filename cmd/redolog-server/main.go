package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/yndnr/redolog-go/internal/infra/buildinfo"
	"github.com/yndnr/redolog-go/internal/infra/confloader"
	"github.com/yndnr/redolog-go/internal/infra/fileops"
	"github.com/yndnr/redolog-go/internal/infra/shutdown"
	"github.com/yndnr/redolog-go/internal/infra/tlsroots"
	"github.com/yndnr/redolog-go/internal/server/config"
	"github.com/yndnr/redolog-go/internal/server/httpserver"
	"github.com/yndnr/redolog-go/internal/storage"
	"github.com/yndnr/redolog-go/internal/storage/redo"
	"github.com/yndnr/redolog-go/internal/storage/wal"
	"github.com/yndnr/redolog-go/internal/telemetry/logger"
	"github.com/yndnr/redolog-go/internal/telemetry/metric"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		addr        = flag.String("addr", "", "Override server.http.addr")
		dataDir     = flag.String("data-dir", "", "Override storage.data_dir")
		logLevel    = flag.String("log-level", "", "Override log.level")
	)
	flag.Parse()

	overrides := make(map[string]any)
	for key, v := range map[string]string{
		"server.http.addr": *addr,
		"storage.data_dir": *dataDir,
		"log.level":        *logLevel,
	} {
		if v != "" {
			overrides[key] = v
		}
	}

	if *showVersion {
		fmt.Printf("redolog-server %s\n", buildinfo.String())
		return nil
	}

	cfg, err := loadConfig(*configFile, overrides)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	log.Info("starting redolog-server",
		"version", buildinfo.Version,
		"commit", buildinfo.Commit,
		"config", *configFile,
		"config_values", config.Sanitize(cfg))

	metrics := metric.NewRegistry(metric.WithKindNames(redo.Registry()))

	storageCfg, err := storageConfig(cfg, log.Slog(), metrics)
	if err != nil {
		return err
	}

	var keyPair *tlsroots.KeyPair
	if cfg.Server.HTTP.TLSCertFile != "" {
		keyPair, err = tlsroots.LoadKeyPair(cfg.Server.HTTP.TLSCertFile, cfg.Server.HTTP.TLSKeyFile, log.Slog())
		if err != nil {
			return err
		}
	}

	// Recovery runs inside Open; the HTTP server starts only afterwards.
	engine, err := storage.Open(context.Background(), storageCfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}

	router := httpserver.NewRouter(&httpserver.RouterConfig{
		Engine:          engine,
		Metrics:         metrics.Handler(),
		Logger:          log.Slog(),
		RateLimit:       httpserver.DefaultRouterConfig().RateLimit,
		EnableAccessLog: true,
	})
	var serverOpts []httpserver.ServerOption
	if keyPair != nil {
		serverOpts = append(serverOpts, httpserver.WithTLS(keyPair.ServerConfig()))
	}
	httpServer := httpserver.New(cfg.Server.HTTP.Addr, router, serverOpts...)

	shutdownHandler := shutdown.NewHandler(cfg.Server.ShutdownTimeout, shutdown.WithLogger(log.Slog()))

	// Hooks run in reverse order: HTTP first, then the watchers, then
	// storage.
	shutdownHandler.OnShutdown("storage", func(context.Context) error {
		log.Info("closing storage engine")
		return engine.Close()
	})

	if *configFile != "" {
		watcher, err := watchConfig(*configFile, overrides, log)
		if err != nil {
			log.Warn("config hot reload disabled", "error", err)
		} else {
			shutdownHandler.OnShutdown("config-watcher", func(context.Context) error {
				return watcher.Stop()
			})
		}
	}

	shutdownHandler.OnShutdown("http", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return httpServer.Shutdown(ctx)
	})

	if keyPair != nil {
		if err := keyPair.Watch(); err != nil {
			log.Warn("certificate hot reload disabled", "error", err)
		}
		shutdownHandler.OnShutdown("tls-watcher", func(context.Context) error {
			return keyPair.Stop()
		})
	}

	go func() {
		log.Info("HTTP server listening", "addr", cfg.Server.HTTP.Addr, "tls", httpServer.TLS())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
			shutdownHandler.Trigger(fmt.Errorf("http server: %w", err))
		}
	}()

	log.Info("server started, press Ctrl+C to stop")
	if err := shutdownHandler.Wait(context.Background()); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	log.Info("server stopped gracefully")
	return nil
}

// loadConfig layers the file, REDOLOG_ environment variables and flag
// overrides over the defaults.
func loadConfig(configFile string, overrides map[string]any) (*config.ServerConfig, error) {
	cfg := config.Default()

	loader := confloader.NewLoader(
		confloader.WithConfigFile(configFile),
		confloader.WithOverrides(overrides),
		confloader.WithStrict(),
	)
	if err := loader.Load(cfg); err != nil {
		return nil, err
	}

	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// initLogger initializes the structured logger and makes it the default.
func initLogger(cfg *config.ServerConfig) (logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	if err != nil {
		return nil, err
	}
	logger.SetDefault(log)
	return log, nil
}

// storageConfig maps the server configuration onto the storage engine.
func storageConfig(cfg *config.ServerConfig, log *slog.Logger, metrics *metric.Registry) (storage.Config, error) {
	sc := storage.DefaultConfig(cfg.Storage.DataDir)
	sc.Logger = log
	sc.Metrics = metrics

	sc.KV.Engine = cfg.Storage.Engine
	sc.KV.SyncWrites = cfg.Storage.SyncWrites
	sc.KV.EncryptionSecret = cfg.Storage.EncryptionKey
	sc.CheckpointInterval = cfg.Storage.CheckpointInterval

	nodeID, err := config.ResolveNodeID(cfg)
	if err != nil {
		return sc, fmt.Errorf("resolve node id: %w", err)
	}
	sc.WAL.Dir = cfg.WAL.Dir
	sc.WAL.NodeID = nodeID
	sc.WAL.SyncMode = wal.SyncMode(cfg.WAL.SyncMode)
	sc.WAL.SyncInterval = cfg.WAL.SyncInterval
	sc.WAL.MaxFileSize = cfg.WAL.MaxSegmentSize
	sc.WAL.MaxSegmentAge = cfg.WAL.MaxSegmentAge
	sc.WAL.MaxPayloadSize = cfg.WAL.MaxPayloadSize
	sc.RetainCount = cfg.WAL.RetainCount
	sc.ArchiveDir = cfg.WAL.ArchiveDir

	sc.DrainDeferred = cfg.Recovery.DrainDeferred
	sc.DeferredWorkers = cfg.Recovery.DeferredWorkers

	sc.FileOps = fileops.DefaultConfig()
	sc.FileOps.Workers = cfg.FileOps.Workers
	sc.FileOps.MaxRateBytesPerSec = int64(cfg.FileOps.MaxRateMBps) << 20
	return sc, nil
}

// watchConfig reloads log.level when the config file changes. Other
// settings need a restart.
func watchConfig(path string, overrides map[string]any, log logger.Logger) (*confloader.Watcher, error) {
	watcher, err := confloader.NewWatcher(
		confloader.WithWatcherLogger(log.Slog()),
	)
	if err != nil {
		return nil, err
	}
	if err := watcher.Watch(path); err != nil {
		watcher.Stop()
		return nil, err
	}

	watcher.OnChange(func(string) {
		next, err := loadConfig(path, overrides)
		if err != nil {
			log.Warn("ignoring invalid configuration change", "error", err)
			return
		}
		if next.Log.Level != logger.GetLevel() {
			logger.SetLevel(next.Log.Level)
			log.Info("log level changed", "level", next.Log.Level)
		}
	})
	watcher.StartAsync()
	return watcher, nil
}
