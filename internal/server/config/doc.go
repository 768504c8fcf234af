// Package config provides the redolog-server configuration.
//
// This package defines the server configuration structure and validation:
//
//   - spec.go: ServerConfig struct definition
//   - default.go: Default configuration values
//   - verify.go: Validation (enumerations, ranges, directory creation)
//   - sanitize.go: Log sanitization (hide sensitive values)
//   - node.go: node id resolution
//
// Configuration is loaded via internal/infra/confloader and supports
// multiple sources: files, environment variables, and flags.
package config
