package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/redolog-go/internal/storage/redo"
	"github.com/yndnr/redolog-go/internal/storage/wal"
)

// DumpCommand returns the dump command.
func DumpCommand() *cli.Command {
	return &cli.Command{
		Name:  "dump",
		Usage: "List the records of a log directory",
		Flags: []cli.Flag{
			&cli.Uint64Flag{
				Name:  "segment",
				Usage: "Only list records of this segment sequence",
			},
			&cli.StringFlag{
				Name:  "txn",
				Usage: "Only list records of this transaction id",
			},
			&cli.StringFlag{
				Name:  "kind",
				Usage: "Only list records of this kind name (e.g. CreateFolder)",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Stop after this many records (0 for all)",
			},
		},
		Action: dumpRecords,
	}
}

// RecordRow is one record as listed by dump.
type RecordRow struct {
	Segment uint64 `json:"segment"`
	Offset  int64  `json:"offset"`
	TxnID   string `json:"txn_id"`
	Kind    string `json:"kind"`
	Target  int32  `json:"target"`
	Time    string `json:"time"`
	Payload int64  `json:"payload"`
	Size    int64  `json:"size" table:"wide"`
	Version string `json:"version" table:"wide"`
}

var errLimitReached = errors.New("limit reached")

func dumpRecords(c *cli.Context) error {
	flags := ParseGlobalFlags(c)
	dir, err := requireWALDir(flags)
	if err != nil {
		return err
	}

	reg := redo.Registry()
	filter, err := newRecordFilter(c, reg)
	if err != nil {
		return err
	}

	r, err := wal.OpenReader(dir, reg, wal.WithReaderLogger(getLogger(c).Slog()))
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer r.Close()

	limit := c.Int("limit")
	rows := make([]RecordRow, 0)
	collect := func(rec *wal.Record) error {
		if !filter.match(rec) {
			return nil
		}
		rows = append(rows, recordRow(reg, rec))
		if limit > 0 && len(rows) >= limit {
			return errLimitReached
		}
		return nil
	}

	var res wal.ScanResult
	if seq := c.Uint64("segment"); c.IsSet("segment") {
		res, err = r.ScanSegment(seq, collect)
	} else {
		res, err = r.Scan(context.Background(), collect)
	}
	if err != nil && !errors.Is(err, errLimitReached) {
		return fmt.Errorf("scan log: %w", err)
	}
	if res.TornTail != nil {
		fmt.Fprintf(errWriter(c), "note: log ends in an incomplete record at %s\n", res.TornTail)
	}

	return render(c, rows)
}

type recordFilter struct {
	txn     wal.TxnID
	hasTxn  bool
	kind    wal.Kind
	hasKind bool
}

func newRecordFilter(c *cli.Context, reg *wal.Registry) (*recordFilter, error) {
	f := &recordFilter{}
	if s := c.String("txn"); s != "" {
		id, err := wal.ParseTxnID(s)
		if err != nil {
			return nil, cli.Exit(fmt.Sprintf("invalid --txn: %v", err), 2)
		}
		f.txn, f.hasTxn = id, true
	}
	if name := c.String("kind"); name != "" {
		for _, k := range kindsByName(reg) {
			if strings.EqualFold(reg.Name(k), name) {
				f.kind, f.hasKind = k, true
				break
			}
		}
		if !f.hasKind {
			return nil, cli.Exit(fmt.Sprintf("unknown --kind %q", name), 2)
		}
	}
	return f, nil
}

func (f *recordFilter) match(rec *wal.Record) bool {
	if f.hasTxn && rec.TxnID != f.txn {
		return false
	}
	if f.hasKind && rec.Kind != f.kind {
		return false
	}
	return true
}

// kindsByName lists the control kinds and every registered kind.
func kindsByName(reg *wal.Registry) []wal.Kind {
	kinds := []wal.Kind{wal.KindCheckpoint, wal.KindCommitTxn, wal.KindAbortTxn}
	return append(kinds, reg.Kinds()...)
}

func recordRow(reg *wal.Registry, rec *wal.Record) RecordRow {
	return RecordRow{
		Segment: rec.Pos.Segment,
		Offset:  rec.Pos.Offset,
		TxnID:   rec.TxnID.String(),
		Kind:    reg.Name(rec.Kind),
		Target:  rec.Target,
		Time:    time.UnixMilli(rec.Timestamp).UTC().Format("2006-01-02T15:04:05.000Z"),
		Payload: rec.Payload.Len(),
		Size:    rec.Size,
		Version: rec.Version.String(),
	}
}
