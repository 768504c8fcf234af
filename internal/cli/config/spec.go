package config

// CLIConfig is the configuration for redolog-cli.
type CLIConfig struct {
	// DefaultServer is used when no named server is selected.
	DefaultServer string `yaml:"default_server"`
	DefaultOutput string `yaml:"default_output"` // table, json, yaml

	// DataDir and WALDir are the local directories offline commands
	// operate on. WALDir defaults to <data_dir>/wal.
	DataDir string `yaml:"data_dir,omitempty"`
	WALDir  string `yaml:"wal_dir,omitempty"`
	Engine  string `yaml:"engine,omitempty"`

	// Servers maps a short name to a server URL.
	Servers map[string]string `yaml:"servers,omitempty"`

	// CurrentServer names the entry of Servers in use.
	CurrentServer string `yaml:"current_server,omitempty"`
}

// Default returns the default CLI configuration.
func Default() *CLIConfig {
	return &CLIConfig{
		DefaultServer: "http://localhost:5080",
		DefaultOutput: "table",
		Engine:        "badger",
		Servers:       make(map[string]string),
	}
}

// ServerURL returns the URL of the selected server.
func (c *CLIConfig) ServerURL() string {
	if c.CurrentServer != "" {
		if u, ok := c.Servers[c.CurrentServer]; ok && u != "" {
			return u
		}
	}
	return c.DefaultServer
}
