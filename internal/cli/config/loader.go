package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"
)

// Environment variables read by Merge.
const (
	EnvServer  = "REDOLOG_SERVER"
	EnvOutput  = "REDOLOG_OUTPUT"
	EnvDataDir = "REDOLOG_DATA_DIR"
	EnvWALDir  = "REDOLOG_WAL_DIR"
	EnvEngine  = "REDOLOG_ENGINE"
)

// DefaultConfigPath returns the default CLI config file path.
func DefaultConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".redolog", "cli.yaml")
}

// Load loads CLI configuration from file. A missing file yields the
// defaults.
func Load(path string) (*CLIConfig, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Servers == nil {
		cfg.Servers = make(map[string]string)
	}
	if cfg.CurrentServer != "" {
		if _, ok := cfg.Servers[cfg.CurrentServer]; !ok {
			return nil, fmt.Errorf("parse %s: current_server %q is not in servers", path, cfg.CurrentServer)
		}
	}
	return cfg, nil
}

// Save saves CLI configuration to file with owner-only permissions.
func Save(cfg *CLIConfig, path string) error {
	if path == "" {
		path = DefaultConfigPath()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".cli-*.yaml")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Merge overrides cfg with REDOLOG_* environment variables, then with
// flags. Flag keys are the long flag names: server, output, data-dir,
// wal-dir and engine. Empty values are ignored.
func Merge(cfg *CLIConfig, env map[string]string, flags map[string]string) *CLIConfig {
	out := *cfg

	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}

	set(&out.DefaultOutput, env[EnvOutput])
	set(&out.DataDir, env[EnvDataDir])
	set(&out.WALDir, env[EnvWALDir])
	set(&out.Engine, env[EnvEngine])
	if v := strings.TrimSpace(env[EnvServer]); v != "" {
		out.DefaultServer = v
		out.CurrentServer = ""
	}

	set(&out.DefaultOutput, flags["output"])
	set(&out.DataDir, flags["data-dir"])
	set(&out.WALDir, flags["wal-dir"])
	set(&out.Engine, flags["engine"])
	if v := strings.TrimSpace(flags["server"]); v != "" {
		if _, ok := out.Servers[v]; ok {
			out.CurrentServer = v
		} else {
			out.DefaultServer = v
			out.CurrentServer = ""
		}
	}

	if out.WALDir == "" && out.DataDir != "" {
		out.WALDir = filepath.Join(out.DataDir, "wal")
	}
	return &out
}

// Environ collects the REDOLOG_* variables Merge reads from the process
// environment.
func Environ() map[string]string {
	env := make(map[string]string)
	for _, k := range []string{EnvServer, EnvOutput, EnvDataDir, EnvWALDir, EnvEngine} {
		if v, ok := os.LookupEnv(k); ok {
			env[k] = v
		}
	}
	return env
}
