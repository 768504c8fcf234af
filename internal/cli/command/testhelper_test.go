package command

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/redolog-go/internal/core/domain"
	"github.com/yndnr/redolog-go/internal/server/httpserver/handler"
	"github.com/yndnr/redolog-go/internal/storage"
	"github.com/yndnr/redolog-go/internal/storage/kv"
	"github.com/yndnr/redolog-go/internal/storage/redo"
)

const testMailbox int32 = 9

// mockServer creates a test HTTP server with custom handlers.
type mockServer struct {
	*httptest.Server
	handlers map[string]http.HandlerFunc
}

// newMockServer creates a new mock server.
func newMockServer() *mockServer {
	m := &mockServer{
		handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Find handler by path prefix match
		for pattern, handler := range m.handlers {
			if strings.HasPrefix(r.URL.Path, pattern) {
				handler(w, r)
				return
			}
		}
		http.NotFound(w, r)
	}))
	return m
}

// handle registers a handler for a path pattern.
func (m *mockServer) handle(pattern string, handler http.HandlerFunc) {
	m.handlers[pattern] = handler
}

// jsonResponse writes data in the server's envelope.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(handler.NewResponse("req-test", data))
}

// errorResponse writes an error envelope.
func errorResponse(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(handler.NewErrorResponse("req-test", code, message, nil))
}

// runApp runs the CLI with args and returns what it wrote to stdout.
// A missing config file keeps the user's ~/.redolog out of the test.
func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := App()
	app.Writer = &out
	app.ErrWriter = &errOut
	app.ExitErrHandler = func(*cli.Context, error) {}

	full := append([]string{"redolog-cli", "--config", filepath.Join(t.TempDir(), "cli.yaml")}, args...)
	err := app.Run(full)
	if errOut.Len() > 0 {
		t.Logf("stderr: %s", errOut.String())
	}
	return out.String(), err
}

// decodeOutput unmarshals JSON command output into v.
func decodeOutput(t *testing.T, out string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(out), v); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
}

// writeLog creates a data directory holding a pebble store and a closed
// log with one mailbox and n folders, one transaction each.
func writeLog(t *testing.T, dataDir string, n int, mutate func(*storage.Config)) {
	t.Helper()
	cfg := storage.DefaultConfig(dataDir)
	cfg.KV.Engine = kv.EnginePebble
	cfg.KV.SyncWrites = false
	cfg.WAL.NodeID = "cli-test"
	cfg.WAL.MaxSegmentAge = -1
	cfg.CheckpointInterval = 0
	if mutate != nil {
		mutate(&cfg)
	}

	e, err := storage.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	ctx := context.Background()
	if _, err := e.Executor().Execute(ctx, testMailbox, &redo.CreateMailbox{AccountID: "acct-9"}, nil); err != nil {
		t.Fatalf("Execute(CreateMailbox): %v", err)
	}
	for i := 0; i < n; i++ {
		op := &redo.CreateFolder{
			FolderID: domain.FirstUserID + int32(i),
			ParentID: domain.RootFolderID,
			Name:     "folder",
			RGB:      domain.NoRGB,
		}
		if _, err := e.Executor().Execute(ctx, testMailbox, op, nil); err != nil {
			t.Fatalf("Execute(CreateFolder): %v", err)
		}
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
