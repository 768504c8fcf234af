package command

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/redolog-go/internal/cli/output"
	"github.com/yndnr/redolog-go/internal/storage"
	"github.com/yndnr/redolog-go/internal/storage/kv"
	"github.com/yndnr/redolog-go/internal/storage/mailstore"
	"github.com/yndnr/redolog-go/internal/storage/recovery"
	"github.com/yndnr/redolog-go/internal/storage/redo"
)

// RecoverCommand returns the recover command.
func RecoverCommand() *cli.Command {
	return &cli.Command{
		Name:  "recover",
		Usage: "Replay the log into the store of a data directory",
		Description: "Runs full recovery offline. The log itself is left untouched; the\n" +
			"server seals its tail on the next start.",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Replay into an empty in-memory store instead of the data directory",
			},
			&cli.BoolFlag{
				Name:  "skip-deferred",
				Usage: "Do not apply deferred operations (reindexing)",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Parallel lanes for deferred operations",
				Value: 4,
			},
			&cli.StringFlag{
				Name:    "encryption-key",
				Usage:   "Secret the store's encryption key is derived from",
				EnvVars: []string{"REDOLOG_STORAGE__ENCRYPTION_KEY"},
			},
		},
		Action: recoverStore,
	}
}

// RecoverReport is the output of recover.
type RecoverReport struct {
	Segments        int    `json:"segments"`
	Records         int    `json:"records"`
	Committed       int    `json:"committed"`
	Aborted         int    `json:"aborted"`
	Incomplete      int    `json:"incomplete"`
	Applied         int    `json:"applied"`
	AlreadyApplied  int    `json:"already_applied"`
	Skipped         int    `json:"skipped"`
	Deferred        int    `json:"deferred"`
	DeferredApplied int    `json:"deferred_applied"`
	TornTail        string `json:"torn_tail,omitempty"`
	DurationMS      int64  `json:"duration_ms"`
	DryRun          bool   `json:"dry_run"`
	Error           string `json:"error,omitempty"`
}

func recoverStore(c *cli.Context) error {
	flags := ParseGlobalFlags(c)
	dryRun := c.Bool("dry-run")
	if flags.DataDir == "" && !dryRun {
		return cli.Exit("a data directory is required (--data-dir)", 2)
	}
	walDir, err := requireWALDir(flags)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log := getLogger(c).Slog()

	kvCfg := kv.DefaultConfig(filepath.Join(flags.DataDir, storage.DefaultKVDir))
	kvCfg.Engine = flags.Engine
	kvCfg.EncryptionSecret = c.String("encryption-key")
	blobDir := filepath.Join(flags.DataDir, storage.DefaultBlobDir)
	if dryRun {
		kvCfg.Engine = kv.EngineMemory
		tmp, err := os.MkdirTemp("", "redolog-recover-*")
		if err != nil {
			return err
		}
		defer os.RemoveAll(tmp)
		blobDir = tmp
	}

	eng, err := kv.Open(kvCfg, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	storeOpts := []mailstore.Option{mailstore.WithBlobDir(blobDir), mailstore.WithLogger(log)}
	if kvCfg.EncryptionSecret != "" {
		bc, err := mailstore.NewBlobCipher(kvCfg.EncryptionSecret)
		if err != nil {
			eng.Close()
			return fmt.Errorf("blob cipher: %w", err)
		}
		storeOpts = append(storeOpts, mailstore.WithBlobCipher(bc))
	}
	store := mailstore.New(eng, storeOpts...)

	rp := recovery.New(walDir, redo.Registry(), store,
		recovery.WithLogger(log),
		recovery.WithDeferredWorkers(c.Int("workers")),
	)

	var spin *output.Spinner
	if interactive(c) {
		spin = output.NewSpinner(errWriter(c), "replaying "+walDir)
		spin.Start()
	}

	report := RecoverReport{DryRun: dryRun}
	res, runErr := rp.Run(ctx)
	var drainErr error
	if runErr == nil && !c.Bool("skip-deferred") {
		report.DeferredApplied, drainErr = rp.DrainDeferred(ctx)
	}
	closeErr := errors.Join(rp.Close(), store.Sync(), eng.Close())

	fillRecoverReport(&report, res)
	switch {
	case runErr != nil:
		report.Error = runErr.Error()
	case drainErr != nil:
		report.Error = drainErr.Error()
	case closeErr != nil:
		report.Error = closeErr.Error()
	}

	if spin != nil {
		if report.Error != "" {
			spin.Fail("recovery failed")
		} else {
			spin.Success("recovery complete")
		}
	}
	if err := render(c, report); err != nil {
		return err
	}

	switch {
	case runErr != nil:
		return cli.Exit(fmt.Sprintf("unclean recovery: %v", runErr), 1)
	case drainErr != nil:
		return cli.Exit(fmt.Sprintf("deferred operations failed: %v", drainErr), 1)
	case closeErr != nil:
		return cli.Exit(fmt.Sprintf("close store: %v", closeErr), 1)
	}
	return nil
}

func fillRecoverReport(report *RecoverReport, res recovery.Result) {
	report.Segments = res.Segments
	report.Records = res.Records
	report.Committed = res.Transactions.Committed
	report.Aborted = res.Transactions.Aborted
	report.Incomplete = res.Transactions.Incomplete
	report.Applied = res.Applied
	report.AlreadyApplied = res.AlreadyApplied
	report.Skipped = res.Skipped
	report.Deferred = res.Deferred
	report.DurationMS = res.Duration.Milliseconds()
	if res.TornTail != nil {
		report.TornTail = res.TornTail.String()
	}
}
