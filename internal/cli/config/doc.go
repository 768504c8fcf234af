// Package config provides the redolog-cli configuration file.
//
//   - spec.go: CLIConfig struct (~/.redolog/cli.yaml)
//   - loader.go: Loading, saving and merging with env and flags
//
// Precedence, highest first: command-line flags, REDOLOG_* environment
// variables, the config file, built-in defaults.
package config
