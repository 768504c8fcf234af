package config

import "time"

// ServerConfig is the root configuration for redolog-server.
type ServerConfig struct {
	Server   ServerSection   `koanf:"server"`
	Storage  StorageSection  `koanf:"storage"`
	WAL      WALSection      `koanf:"wal"`
	Recovery RecoverySection `koanf:"recovery"`
	FileOps  FileOpsSection  `koanf:"fileops"`
	Log      LogSection      `koanf:"log"`
}

// ServerSection configures server endpoints.
type ServerSection struct {
	HTTP HTTPConfig `koanf:"http"`

	// ShutdownTimeout bounds the shutdown hooks taken together.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// HTTPConfig configures the ops HTTP server.
type HTTPConfig struct {
	Addr        string `koanf:"addr"`
	TLSCertFile string `koanf:"tls_cert_file"`
	TLSKeyFile  string `koanf:"tls_key_file"`
}

// StorageSection configures the target store.
type StorageSection struct {
	DataDir string `koanf:"data_dir"`

	// Engine is badger, pebble or memory.
	Engine     string `koanf:"engine"`
	SyncWrites bool   `koanf:"sync_writes"`

	// EncryptionKey enables encryption at rest of Badger data and blob
	// files. Separate 32-byte keys are derived from it with HKDF-SHA256.
	EncryptionKey string `koanf:"encryption_key"`

	// CheckpointInterval is how often the store is synced and the log
	// compacted. Zero disables the loop.
	CheckpointInterval time.Duration `koanf:"checkpoint_interval"`
}

// WALSection configures the redo log.
type WALSection struct {
	// Dir defaults to <data_dir>/wal.
	Dir    string `koanf:"dir"`
	NodeID string `koanf:"node_id"`

	// SyncMode is sync or batch.
	SyncMode     string        `koanf:"sync_mode"`
	SyncInterval time.Duration `koanf:"sync_interval"`

	MaxSegmentSize int64         `koanf:"max_segment_size"`
	MaxSegmentAge  time.Duration `koanf:"max_segment_age"`
	MaxPayloadSize int64         `koanf:"max_payload_size"`

	RetainCount int    `koanf:"retain_count"`
	ArchiveDir  string `koanf:"archive_dir"`
}

// RecoverySection configures startup recovery.
type RecoverySection struct {
	// DrainDeferred runs deferred operations in the background once
	// recovery completes.
	DrainDeferred   bool `koanf:"drain_deferred"`
	DeferredWorkers int  `koanf:"deferred_workers"`
}

// FileOpsSection configures the file operation service.
type FileOpsSection struct {
	Workers     int `koanf:"workers"`
	MaxRateMBps int `koanf:"max_rate_mbps"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
