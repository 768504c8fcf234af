package command

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/yndnr/redolog-go/internal/cli/connection"
)

// StatusCommand returns the status command.
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "Show the log status of a running server",
		Action: serverStatus,
	}
}

// HealthCommand returns the health command. It exits 1 when the server
// reports itself unhealthy.
func HealthCommand() *cli.Command {
	return &cli.Command{
		Name:   "health",
		Usage:  "Check whether a running server can write its log",
		Action: serverHealth,
	}
}

// CheckpointCommand returns the checkpoint command.
func CheckpointCommand() *cli.Command {
	return &cli.Command{
		Name:   "checkpoint",
		Usage:  "Ask a running server to checkpoint and compact its log",
		Action: serverCheckpoint,
	}
}

func serverStatus(c *cli.Context) error {
	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	st, err := client.WALStatus(ctx)
	if err != nil {
		return err
	}

	flags := ParseGlobalFlags(c)
	if flags.Output.Machine() {
		return render(c, st)
	}

	w := outWriter(c)
	fmt.Fprintf(w, "Log Status\n")
	fmt.Fprintf(w, "==========\n\n")
	if st.Healthy {
		fmt.Fprintf(w, "Health:          ok\n")
	} else {
		fmt.Fprintf(w, "Health:          failed: %s\n", st.Error)
	}
	fmt.Fprintf(w, "Sync Mode:       %s\n", st.SyncMode)
	fmt.Fprintf(w, "Open Txns:       %d\n", st.OpenTxns)
	fmt.Fprintf(w, "Segment:         %d (%d records, %s)\n", st.Segment.Sequence, st.Segment.Records, humanize.IBytes(uint64(st.Segment.Bytes)))
	if !st.Segment.CreatedAt.IsZero() {
		fmt.Fprintf(w, "Segment Opened:  %s\n", humanize.Time(st.Segment.CreatedAt))
	}
	fmt.Fprintf(w, "\nRecovery\n")
	fmt.Fprintf(w, "  Committed:     %d\n", st.Recovery.Committed)
	fmt.Fprintf(w, "  Applied:       %d (%d already applied)\n", st.Recovery.Applied, st.Recovery.AlreadyApplied)
	fmt.Fprintf(w, "  Skipped:       %d\n", st.Recovery.Skipped)
	fmt.Fprintf(w, "  Deferred:      %d", st.Recovery.Deferred)
	if st.Recovery.Draining {
		fmt.Fprintf(w, " (draining)")
	}
	fmt.Fprintln(w)
	if st.Recovery.TornTail != "" {
		fmt.Fprintf(w, "  Torn Tail:     %s\n", st.Recovery.TornTail)
	}
	fmt.Fprintf(w, "  Duration:      %dms\n", st.Recovery.DurationMS)
	if flags.Wide {
		fmt.Fprintf(w, "\nFile Operations\n")
		fmt.Fprintf(w, "  Completed:     %d/%d (%d failed, %d pending)\n",
			st.FileOps.Completed, st.FileOps.Requested, st.FileOps.Failed, st.FileOps.Pending)
	}
	return nil
}

func serverHealth(c *cli.Context) error {
	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	h, err := client.Health(ctx)
	var apiErr *connection.APIError
	if err != nil && !(errors.As(err, &apiErr) && apiErr.Status == http.StatusServiceUnavailable) {
		return err
	}
	if rerr := render(c, h); rerr != nil {
		return rerr
	}
	if h.Status != "healthy" {
		return cli.Exit("", 1)
	}
	return nil
}

func serverCheckpoint(c *cli.Context) error {
	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	result, err := client.Checkpoint(ctx)
	if err != nil {
		return err
	}
	return render(c, result)
}
