package command

import (
	"path/filepath"
	"strconv"
	"testing"

	"github.com/yndnr/redolog-go/internal/storage"
	"github.com/yndnr/redolog-go/internal/storage/wal"
)

func smallSegments(cfg *storage.Config) {
	cfg.WAL.MaxFileSize = 1024
}

func TestCompact_Archive(t *testing.T) {
	dataDir := t.TempDir()
	writeLog(t, dataDir, 40, smallSegments)
	walDir := filepath.Join(dataDir, storage.DefaultWALDir)
	archive := filepath.Join(t.TempDir(), "archive")

	before, err := wal.ListSegments(walDir)
	if err != nil {
		t.Fatal(err)
	}

	out, err := runApp(t, "--wal-dir", walDir, "-o", "json", "compact", "--retain", "1", "--archive-dir", archive)
	if err != nil {
		t.Fatalf("compact: %v", err)
	}

	var report CompactReport
	decodeOutput(t, out, &report)
	if got, want := len(report.Removed), len(before)-1; got != want {
		t.Errorf("Removed = %d, want %d", got, want)
	}
	if !report.Archived {
		t.Error("Archived = false")
	}
	if report.Remaining != 1 {
		t.Errorf("Remaining = %d, want 1", report.Remaining)
	}
	if report.BytesFreed <= 0 {
		t.Errorf("BytesFreed = %d, want > 0", report.BytesFreed)
	}

	archived, err := filepath.Glob(filepath.Join(archive, wal.FilePrefix+"*"+wal.FileExtension))
	if err != nil {
		t.Fatal(err)
	}
	if len(archived) != len(report.Removed) {
		t.Errorf("archived files = %d, want %d", len(archived), len(report.Removed))
	}
}

func TestCompact_Before(t *testing.T) {
	dataDir := t.TempDir()
	writeLog(t, dataDir, 40, smallSegments)
	walDir := filepath.Join(dataDir, storage.DefaultWALDir)

	segs, err := wal.ListSegments(walDir)
	if err != nil {
		t.Fatal(err)
	}
	first := strconv.FormatUint(segs[0].Sequence, 10)

	out, err := runApp(t, "--wal-dir", walDir, "-o", "json", "compact", "--retain", "1", "--before", first)
	if err != nil {
		t.Fatalf("compact: %v", err)
	}

	var report CompactReport
	decodeOutput(t, out, &report)
	if len(report.Removed) != 0 {
		t.Errorf("Removed = %v, want none", report.Removed)
	}
	if report.Remaining != len(segs) {
		t.Errorf("Remaining = %d, want %d", report.Remaining, len(segs))
	}
}

func TestCompact_RetainValidation(t *testing.T) {
	_, err := runApp(t, "--wal-dir", t.TempDir(), "compact", "--retain", "0")
	if err == nil {
		t.Fatal("compact --retain 0 should fail")
	}
}
