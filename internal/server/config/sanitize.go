package config

import "github.com/yndnr/redolog-go/internal/telemetry/logger"

// Sanitize returns a copy of cfg that is safe to log. The copy is shallow;
// only secret fields differ.
func Sanitize(cfg *ServerConfig) *ServerConfig {
	out := *cfg
	out.Storage.EncryptionKey = logger.Redact(out.Storage.EncryptionKey)
	return &out
}
