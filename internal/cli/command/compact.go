package command

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/redolog-go/internal/infra/fileops"
	"github.com/yndnr/redolog-go/internal/storage/redo"
	"github.com/yndnr/redolog-go/internal/storage/wal"
)

// CompactCommand returns the compact command.
func CompactCommand() *cli.Command {
	return &cli.Command{
		Name:  "compact",
		Usage: "Delete or archive finalized segments the store no longer needs",
		Description: "Only run compact after the store holds every committed transaction\n" +
			"of the removed segments, e.g. after a successful recover.",
		Flags: []cli.Flag{
			&cli.Uint64Flag{
				Name:  "before",
				Usage: "Only remove segments with a lower sequence (default: all finalized)",
			},
			&cli.IntFlag{
				Name:  "retain",
				Usage: "Number of newest segments always kept",
				Value: wal.DefaultRetainCount,
			},
			&cli.StringFlag{
				Name:  "archive-dir",
				Usage: "Move segments here instead of deleting them",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "File operation workers",
				Value: fileops.DefaultConfig().Workers,
			},
		},
		Action: compactLog,
	}
}

// CompactReport is the output of compact.
type CompactReport struct {
	Removed    []uint64 `json:"removed"`
	BytesFreed int64    `json:"bytes_freed" table:"bytes"`
	Archived   bool     `json:"archived"`
	BlockedBy  string   `json:"blocked_by,omitempty"`
	Remaining  int      `json:"remaining"`
	Failed     int64    `json:"failed_file_ops" table:"wide"`
}

func compactLog(c *cli.Context) error {
	flags := ParseGlobalFlags(c)
	dir, err := requireWALDir(flags)
	if err != nil {
		return err
	}
	if c.Int("retain") < 1 {
		return cli.Exit("--retain must be at least 1", 2)
	}

	before := uint64(math.MaxUint64)
	if c.IsSet("before") {
		before = c.Uint64("before")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log := getLogger(c).Slog()
	files := fileops.New(fileops.Config{
		Workers: c.Int("workers"),
		Logger:  log,
	})

	opts := []wal.CompactorOption{
		wal.WithFileMover(files),
		wal.WithRetainCount(c.Int("retain")),
		wal.WithCompactorLogger(log),
	}
	archive := c.String("archive-dir")
	if archive != "" {
		opts = append(opts, wal.WithArchiveDir(archive))
	}
	cp := wal.NewCompactor(dir, redo.Registry(), opts...)

	res, err := cp.Compact(ctx, before)
	closeErr := files.Close()
	if err = errors.Join(err, closeErr); err != nil {
		return fmt.Errorf("compact: %w", err)
	}

	report := CompactReport{
		Removed:    res.Removed,
		BytesFreed: res.BytesFreed,
		Archived:   archive != "",
		Failed:     files.Stats().Failed,
	}
	if report.Removed == nil {
		report.Removed = []uint64{}
	}
	if res.BlockedBy != nil {
		report.BlockedBy = res.BlockedBy.String()
	}
	if n, err := cp.FileCount(); err == nil {
		report.Remaining = n
	}
	return render(c, report)
}
