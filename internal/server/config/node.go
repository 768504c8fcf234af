package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
)

// ResolveNodeID returns wal.node_id, falling back to the host name and
// then to a random id.
func ResolveNodeID(cfg *ServerConfig) (string, error) {
	if cfg.WAL.NodeID != "" {
		return cfg.WAL.NodeID, nil
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host, nil
	}
	return generateNodeID()
}

// generateNodeID generates a unique node identifier.
//
// Format: rlnode-<16 hex chars> (e.g., "rlnode-a1b2c3d4e5f67890")
func generateNodeID() (string, error) {
	buf := make([]byte, 8) // 8 bytes = 16 hex chars
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return "rlnode-" + hex.EncodeToString(buf), nil
}
