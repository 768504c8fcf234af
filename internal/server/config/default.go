package config

import "time"

// Default configuration values.
const (
	DefaultHTTPAddr        = "127.0.0.1:5080"
	DefaultShutdownTimeout = 30 * time.Second

	DefaultDataDir            = "/var/lib/redolog-server/data"
	DefaultEngine             = "badger"
	DefaultCheckpointInterval = time.Minute

	DefaultSyncMode       = "sync"
	DefaultSyncInterval   = 100 * time.Millisecond
	DefaultMaxSegmentSize = 64 << 20
	DefaultMaxSegmentAge  = time.Hour
	DefaultMaxPayloadSize = 256 << 20
	DefaultRetainCount    = 3

	DefaultDeferredWorkers = 4
	DefaultFileOpsWorkers  = 4

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			HTTP: HTTPConfig{
				Addr: DefaultHTTPAddr,
			},
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Storage: StorageSection{
			DataDir:            DefaultDataDir,
			Engine:             DefaultEngine,
			SyncWrites:         true,
			CheckpointInterval: DefaultCheckpointInterval,
		},
		WAL: WALSection{
			SyncMode:       DefaultSyncMode,
			SyncInterval:   DefaultSyncInterval,
			MaxSegmentSize: DefaultMaxSegmentSize,
			MaxSegmentAge:  DefaultMaxSegmentAge,
			MaxPayloadSize: DefaultMaxPayloadSize,
			RetainCount:    DefaultRetainCount,
		},
		Recovery: RecoverySection{
			DrainDeferred:   true,
			DeferredWorkers: DefaultDeferredWorkers,
		},
		FileOps: FileOpsSection{
			Workers: DefaultFileOpsWorkers,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
