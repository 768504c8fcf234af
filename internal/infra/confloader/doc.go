// Package confloader loads layered configuration with koanf.
//
// Sources, later ones overriding earlier:
//
//  1. Defaults set on the target struct by the caller
//  2. A YAML configuration file
//  3. Environment variables (REDOLOG_ prefix, "__" separates nested keys)
//  4. Maps loaded by the caller, typically command-line flags
//
// Watcher reports changes to configuration files via fsnotify so a
// running server can reload the settings that are safe to change live.
package confloader
