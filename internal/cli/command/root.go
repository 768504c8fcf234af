package command

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/redolog-go/internal/cli/config"
	"github.com/yndnr/redolog-go/internal/cli/connection"
	"github.com/yndnr/redolog-go/internal/cli/output"
	"github.com/yndnr/redolog-go/internal/infra/buildinfo"
	"github.com/yndnr/redolog-go/internal/infra/tlsroots"
	"github.com/yndnr/redolog-go/internal/telemetry/logger"
)

const (
	metaConfig = "config"
	metaLogger = "logger"
)

// App creates the CLI application.
func App() *cli.App {
	app := &cli.App{
		Name:    "redolog-cli",
		Usage:   "Inspect, verify and recover mailbox redo logs",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			DumpCommand(),
			VerifyCommand(),
			RecoverCommand(),
			CompactCommand(),
			StatusCommand(),
			HealthCommand(),
			CheckpointCommand(),
			VersionCommand(),
		},
		Before: before,
	}

	return app
}

// before loads the CLI config file and the logger into the app metadata.
func before(c *cli.Context) error {
	if c.App.Metadata == nil {
		c.App.Metadata = make(map[string]any)
	}

	fileCfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	flags := make(map[string]string)
	for _, name := range []string{"server", "output", "data-dir", "wal-dir", "engine"} {
		if c.IsSet(name) {
			flags[name] = c.String(name)
		}
	}
	merged := config.Merge(fileCfg, config.Environ(), flags)
	if _, err := output.ParseFormat(merged.DefaultOutput); err != nil {
		return cli.Exit(err.Error(), 2)
	}
	c.App.Metadata[metaConfig] = merged

	level := "warn"
	if c.Bool("verbose") {
		level = "debug"
	}
	log, err := logger.New(logger.Config{Level: level, Format: "text", Output: errWriter(c)})
	if err != nil {
		return err
	}
	c.App.Metadata[metaLogger] = log
	return nil
}

// globalFlags returns the global CLI flags. Defaults live in the CLI
// config, so flags here only override when set.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "CLI config file (default ~/.redolog/cli.yaml)",
		},
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "Server address or a name from the config's servers",
		},
		&cli.StringFlag{
			Name:    "ca-cert",
			Usage:   "PEM file or directory of CA certificates trusted for https servers",
			EnvVars: []string{"REDOLOG_CA_CERT"},
		},
		&cli.StringFlag{
			Name:    "data-dir",
			Aliases: []string{"D"},
			Usage:   "Server data directory (offline commands)",
		},
		&cli.StringFlag{
			Name:    "wal-dir",
			Aliases: []string{"d"},
			Usage:   "Log directory (default <data-dir>/wal)",
		},
		&cli.StringFlag{
			Name:  "engine",
			Usage: "KV engine of the data directory: badger, pebble",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "Show wide output (more columns)",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "Enable verbose output",
		},
	}
}

// GlobalFlags is the resolved global configuration of one invocation.
type GlobalFlags struct {
	Server  string
	DataDir string
	WALDir  string
	Engine  string

	Output output.Format
	Wide   bool

	Verbose bool
}

// ParseGlobalFlags resolves the global flags against the CLI config.
func ParseGlobalFlags(c *cli.Context) *GlobalFlags {
	cfg, ok := c.App.Metadata[metaConfig].(*config.CLIConfig)
	if !ok {
		cfg = config.Merge(config.Default(), nil, map[string]string{
			"server":   c.String("server"),
			"output":   c.String("output"),
			"data-dir": c.String("data-dir"),
			"wal-dir":  c.String("wal-dir"),
			"engine":   c.String("engine"),
		})
	}
	format, err := output.ParseFormat(cfg.DefaultOutput)
	if err != nil {
		format = output.FormatTable
	}
	return &GlobalFlags{
		Server:  cfg.ServerURL(),
		DataDir: cfg.DataDir,
		WALDir:  cfg.WALDir,
		Engine:  cfg.Engine,
		Output:  format,
		Wide:    c.Bool("wide"),
		Verbose: c.Bool("verbose"),
	}
}

// requireWALDir returns the log directory or a usage error.
func requireWALDir(flags *GlobalFlags) (string, error) {
	if flags.WALDir == "" {
		return "", cli.Exit("a log directory is required (--wal-dir or --data-dir)", 2)
	}
	return flags.WALDir, nil
}

// getLogger returns the invocation's logger.
func getLogger(c *cli.Context) logger.Logger {
	if l, ok := c.App.Metadata[metaLogger].(logger.Logger); ok {
		return l
	}
	return logger.Default()
}

// EnsureConnected returns an HTTP client for the selected server.
func EnsureConnected(c *cli.Context) (*connection.HTTPClient, error) {
	flags := ParseGlobalFlags(c)
	if flags.Server == "" {
		return nil, cli.Exit("no server configured (--server)", 2)
	}
	var opts []connection.ClientOption
	if ca := c.String("ca-cert"); ca != "" {
		tlsCfg, err := tlsroots.ClientConfig(ca)
		if err != nil {
			return nil, cli.Exit(err.Error(), 2)
		}
		opts = append(opts, connection.WithTLSConfig(tlsCfg))
	}
	return connection.NewHTTPClient(flags.Server, opts...), nil
}

// render writes data in the selected output format.
func render(c *cli.Context, data any) error {
	flags := ParseGlobalFlags(c)
	return output.NewFormatter(flags.Output, flags.Wide).Format(outWriter(c), data)
}

func outWriter(c *cli.Context) io.Writer {
	if c.App.Writer != nil {
		return c.App.Writer
	}
	return os.Stdout
}

func errWriter(c *cli.Context) io.Writer {
	if c.App.ErrWriter != nil {
		return c.App.ErrWriter
	}
	return os.Stderr
}

// interactive reports whether progress output should be drawn.
func interactive(c *cli.Context) bool {
	f, ok := errWriter(c).(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

// PrintError prints an error message to stderr.
func PrintError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}
