package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Verify validates the configuration and fills in derived defaults.
func Verify(cfg *ServerConfig) error {
	if err := verifyServer(&cfg.Server); err != nil {
		return err
	}
	if err := verifyStorage(&cfg.Storage); err != nil {
		return err
	}
	if err := verifyWAL(&cfg.WAL, cfg.Storage.DataDir); err != nil {
		return err
	}
	if cfg.Recovery.DeferredWorkers < 1 {
		return errors.New("recovery.deferred_workers must be at least 1")
	}
	if cfg.FileOps.Workers < 1 {
		return errors.New("fileops.workers must be at least 1")
	}
	if cfg.FileOps.MaxRateMBps < 0 {
		return errors.New("fileops.max_rate_mbps must not be negative")
	}
	return verifyLog(&cfg.Log)
}

func verifyServer(cfg *ServerSection) error {
	if (cfg.HTTP.TLSCertFile == "") != (cfg.HTTP.TLSKeyFile == "") {
		return errors.New("server.http.tls_cert_file and tls_key_file must be set together")
	}
	if cfg.ShutdownTimeout <= 0 {
		return errors.New("server.shutdown_timeout must be positive")
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	if cfg.DataDir == "" {
		return errors.New("storage.data_dir is required")
	}

	// Check if data directory exists or can be created
	if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
		return errors.New("cannot create data directory: " + err.Error())
	}

	switch cfg.Engine {
	case "badger", "pebble", "memory":
	default:
		return fmt.Errorf("storage.engine %q is not one of badger, pebble, memory", cfg.Engine)
	}
	if cfg.EncryptionKey != "" && cfg.Engine != "badger" {
		return errors.New("storage.encryption_key is only supported by the badger engine")
	}
	if cfg.CheckpointInterval < 0 {
		return errors.New("storage.checkpoint_interval must not be negative")
	}
	return nil
}

func verifyWAL(cfg *WALSection, dataDir string) error {
	if cfg.Dir == "" {
		cfg.Dir = filepath.Join(dataDir, "wal")
	}
	switch cfg.SyncMode {
	case "sync", "batch":
	default:
		return fmt.Errorf("wal.sync_mode %q is not one of sync, batch", cfg.SyncMode)
	}
	if cfg.SyncMode == "batch" && cfg.SyncInterval <= 0 {
		return errors.New("wal.sync_interval must be positive in batch mode")
	}
	if cfg.MaxSegmentSize < 1<<20 {
		return errors.New("wal.max_segment_size must be at least 1MB")
	}
	if cfg.MaxPayloadSize <= 0 {
		return errors.New("wal.max_payload_size must be positive")
	}
	if cfg.RetainCount < 1 {
		return errors.New("wal.retain_count must be at least 1")
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	switch strings.ToLower(cfg.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", cfg.Level)
	}
	switch strings.ToLower(cfg.Format) {
	case "json", "text", "console":
	default:
		return fmt.Errorf("log.format %q is not one of json, text", cfg.Format)
	}
	return nil
}
