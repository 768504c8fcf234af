package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.HTTP.Addr != DefaultHTTPAddr {
		t.Errorf("HTTP.Addr = %q, want %q", cfg.Server.HTTP.Addr, DefaultHTTPAddr)
	}

	// Check storage defaults
	if cfg.Storage.DataDir != DefaultDataDir {
		t.Errorf("DataDir = %q, want %q", cfg.Storage.DataDir, DefaultDataDir)
	}
	if cfg.Storage.Engine != DefaultEngine {
		t.Errorf("Engine = %q, want %q", cfg.Storage.Engine, DefaultEngine)
	}
	if !cfg.Storage.SyncWrites {
		t.Error("SyncWrites should be enabled by default")
	}

	// Check wal defaults
	if cfg.WAL.SyncMode != DefaultSyncMode {
		t.Errorf("SyncMode = %q, want %q", cfg.WAL.SyncMode, DefaultSyncMode)
	}
	if cfg.WAL.SyncInterval != DefaultSyncInterval {
		t.Errorf("SyncInterval = %v, want %v", cfg.WAL.SyncInterval, DefaultSyncInterval)
	}
	if cfg.WAL.RetainCount != DefaultRetainCount {
		t.Errorf("RetainCount = %d, want %d", cfg.WAL.RetainCount, DefaultRetainCount)
	}

	if cfg.Recovery.DeferredWorkers != DefaultDeferredWorkers {
		t.Errorf("DeferredWorkers = %d, want %d", cfg.Recovery.DeferredWorkers, DefaultDeferredWorkers)
	}

	// Check log defaults
	if cfg.Log.Level != DefaultLogLevel {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, DefaultLogLevel)
	}
	if cfg.Log.Format != DefaultLogFormat {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, DefaultLogFormat)
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"", ""},
		{"passphrase-for-data", "***REDACTED***"},
		{"hex:00112233445566778899aabbccddeeff", "hex:001...eff"},
		{"base64:c2VjcmV0", "base64:c2V...mV0"},
	}
	for _, tt := range tests {
		cfg := Default()
		cfg.Storage.EncryptionKey = tt.key
		got := Sanitize(cfg)
		if got.Storage.EncryptionKey != tt.want {
			t.Errorf("Sanitize(%q) key = %q, want %q", tt.key, got.Storage.EncryptionKey, tt.want)
		}
		if cfg.Storage.EncryptionKey != tt.key {
			t.Errorf("Sanitize modified its input: %q", cfg.Storage.EncryptionKey)
		}
		if got.Storage.DataDir != cfg.Storage.DataDir {
			t.Errorf("DataDir = %q, want %q", got.Storage.DataDir, cfg.Storage.DataDir)
		}
	}
}

func validConfig(t *testing.T) *ServerConfig {
	t.Helper()
	cfg := Default()
	cfg.Storage.DataDir = t.TempDir()
	return cfg
}

func TestVerify_ValidConfig(t *testing.T) {
	cfg := validConfig(t)
	if err := Verify(cfg); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if want := filepath.Join(cfg.Storage.DataDir, "wal"); cfg.WAL.Dir != want {
		t.Errorf("WAL.Dir = %q, want %q", cfg.WAL.Dir, want)
	}
}

func TestVerify_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ServerConfig)
		want   string
	}{
		{"empty data dir", func(c *ServerConfig) { c.Storage.DataDir = "" }, "storage.data_dir"},
		{"unknown engine", func(c *ServerConfig) { c.Storage.Engine = "bolt" }, "storage.engine"},
		{"key without badger", func(c *ServerConfig) {
			c.Storage.Engine = "pebble"
			c.Storage.EncryptionKey = "secret"
		}, "encryption_key"},
		{"sync mode", func(c *ServerConfig) { c.WAL.SyncMode = "never" }, "wal.sync_mode"},
		{"batch without interval", func(c *ServerConfig) {
			c.WAL.SyncMode = "batch"
			c.WAL.SyncInterval = 0
		}, "wal.sync_interval"},
		{"tiny segments", func(c *ServerConfig) { c.WAL.MaxSegmentSize = 4096 }, "wal.max_segment_size"},
		{"retain count", func(c *ServerConfig) { c.WAL.RetainCount = 0 }, "wal.retain_count"},
		{"deferred workers", func(c *ServerConfig) { c.Recovery.DeferredWorkers = 0 }, "recovery.deferred_workers"},
		{"fileops workers", func(c *ServerConfig) { c.FileOps.Workers = 0 }, "fileops.workers"},
		{"half tls", func(c *ServerConfig) { c.Server.HTTP.TLSCertFile = "cert.pem" }, "tls"},
		{"shutdown timeout", func(c *ServerConfig) { c.Server.ShutdownTimeout = 0 }, "server.shutdown_timeout"},
		{"log level", func(c *ServerConfig) { c.Log.Level = "loud" }, "log.level"},
		{"log format", func(c *ServerConfig) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := Verify(cfg)
			if err == nil {
				t.Fatal("Verify() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Verify() = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestVerify_CreateDataDir(t *testing.T) {
	cfg := validConfig(t)
	newDir := filepath.Join(cfg.Storage.DataDir, "subdir", "data")
	cfg.Storage.DataDir = newDir

	if err := Verify(cfg); err != nil {
		t.Errorf("Verify failed: %v", err)
	}

	if _, err := os.Stat(newDir); os.IsNotExist(err) {
		t.Error("Data directory should have been created")
	}
}

func TestVerify_KeepsExplicitWALDir(t *testing.T) {
	cfg := validConfig(t)
	cfg.WAL.Dir = "/srv/wal"
	cfg.WAL.SyncMode = "batch"
	cfg.WAL.SyncInterval = 10 * time.Millisecond
	if err := Verify(cfg); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if cfg.WAL.Dir != "/srv/wal" {
		t.Errorf("WAL.Dir = %q, want /srv/wal", cfg.WAL.Dir)
	}
}

func TestResolveNodeID(t *testing.T) {
	cfg := Default()
	cfg.WAL.NodeID = "node-1"
	id, err := ResolveNodeID(cfg)
	if err != nil || id != "node-1" {
		t.Fatalf("ResolveNodeID() = %q, %v, want node-1", id, err)
	}

	cfg.WAL.NodeID = ""
	id, err = ResolveNodeID(cfg)
	if err != nil {
		t.Fatalf("ResolveNodeID() error = %v", err)
	}
	if id == "" {
		t.Error("ResolveNodeID() returned an empty id")
	}
}

func TestGenerateNodeID(t *testing.T) {
	a, err := generateNodeID()
	if err != nil {
		t.Fatalf("generateNodeID() error = %v", err)
	}
	b, _ := generateNodeID()
	if a == b {
		t.Error("generated ids should differ")
	}
	if !strings.HasPrefix(a, "rlnode-") || len(a) != len("rlnode-")+16 {
		t.Errorf("id = %q, want rlnode-<16 hex>", a)
	}
}
