package command

import (
	"testing"

	"github.com/yndnr/redolog-go/internal/infra/buildinfo"
)

func TestVersion(t *testing.T) {
	out, err := runApp(t, "-o", "json", "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	var info buildinfo.Info
	decodeOutput(t, out, &info)
	if info.Version != buildinfo.Version {
		t.Errorf("Version = %q, want %q", info.Version, buildinfo.Version)
	}
	if info.GoVersion == "" {
		t.Error("GoVersion is empty")
	}
}
