package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"mercator-hq/backlog/pkg/cli"
	"mercator-hq/backlog/pkg/history"
	"mercator-hq/backlog/pkg/transport"
)

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func resetFlags() {
	verbose = false
	apiKey = ""
	runFlags.listenAddress, runFlags.logLevel, runFlags.dryRun = "", "", false
	submitFlags.file, submitFlags.message, submitFlags.fingerprint, submitFlags.server = "", "", "", ""
	submitFlags.classifiers, submitFlags.attachments = nil, nil
	submitFlags.attributes = map[string]string{}
	submitFlags.flush = false
	statusFlags.format, statusFlags.records = "text", false
	flushFlags.server, flushFlags.quiet = "", false
	clearFlags.yes = false
	historyFlags.recordID, historyFlags.outcome, historyFlags.format = "", "", "text"
	historyFlags.since, historyFlags.limit, historyFlags.offset = 0, history.DefaultQueryLimit, 0
}

// submissionServer records every submitted payload.
type submissionServer struct {
	*httptest.Server
	mu       sync.Mutex
	payloads []string
	queries  []string
	status   int
}

func newSubmissionServer(t *testing.T, status int) *submissionServer {
	s := &submissionServer{status: status}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.payloads = append(s.payloads, string(body))
		s.queries = append(s.queries, r.URL.RawQuery)
		s.mu.Unlock()
		w.WriteHeader(s.status)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *submissionServer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payloads)
}

// writeConfig writes a config rooted in a temp dir and returns its path.
func writeConfig(t *testing.T, url, extra string) string {
	t.Helper()
	dir := t.TempDir()
	content := fmt.Sprintf(`database:
  path: %q
  max_record_count: 10
  deduplication: "default|message"
transport:
  url: %q
history:
  backend: sqlite
  sqlite:
    path: %q
server:
  enabled: false
telemetry:
  logging:
    level: error
%s`, filepath.Join(dir, "reports"), url, filepath.Join(dir, "history.db"), extra)

	path := filepath.Join(dir, "backlog.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	return path
}

func statusOf(t *testing.T, cfgPath string) storeStatus {
	t.Helper()
	out, err := execute(t, "status", "--config", cfgPath, "--format", "json")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	var s storeStatus
	if err := json.Unmarshal([]byte(out), &s); err != nil {
		t.Fatalf("Expected JSON status, got %q: %v", out, err)
	}
	return s
}

func TestLifecycle(t *testing.T) {
	sink := newSubmissionServer(t, http.StatusOK)
	cfgPath := writeConfig(t, sink.URL, "")

	for _, msg := range []string{"disk full", "disk full", "nil map write"} {
		out, err := execute(t, "submit", "--config", cfgPath, "--message", msg, "--classifier", "panic")
		if err != nil {
			t.Fatalf("submit failed: %v", err)
		}
		if !strings.HasPrefix(out, "Stored record ") {
			t.Errorf("Unexpected submit output %q", out)
		}
	}

	status := statusOf(t, cfgPath)
	if status.Records != 2 {
		t.Errorf("Expected 2 records after dedup, got %d", status.Records)
	}
	if status.Duplicates != 3 {
		t.Errorf("Expected 3 reports, got %d", status.Duplicates)
	}
	if status.Bytes == 0 || status.MaxRecords != 10 || !status.WithinLimits {
		t.Errorf("Unexpected status %+v", status)
	}

	out, err := execute(t, "status", "--config", cfgPath, "--records", "--format", "csv")
	if err != nil {
		t.Fatalf("status --records failed: %v", err)
	}
	if lines := strings.Split(strings.TrimSpace(out), "\n"); len(lines) != 3 {
		t.Errorf("Expected header and 2 rows, got %q", out)
	}

	out, err = execute(t, "flush", "--config", cfgPath, "--quiet")
	if err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if !strings.Contains(out, "Delivered 2 of 2 records") {
		t.Errorf("Unexpected flush output %q", out)
	}
	if sink.count() != 2 {
		t.Errorf("Expected 2 submissions, got %d", sink.count())
	}
	if status := statusOf(t, cfgPath); status.Records != 0 {
		t.Errorf("Expected empty store after flush, got %d", status.Records)
	}

	out, err = execute(t, "history", "--config", cfgPath, "--format", "json")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	var attempts []history.Attempt
	if err := json.Unmarshal([]byte(out), &attempts); err != nil {
		t.Fatalf("Expected JSON history, got %q: %v", out, err)
	}
	if len(attempts) != 2 {
		t.Fatalf("Expected 2 attempts, got %d", len(attempts))
	}
	for _, a := range attempts {
		if a.Outcome != "success" || a.Mode != "flush" {
			t.Errorf("Unexpected attempt %+v", a)
		}
	}
}

func TestSubmit_DuplicateParam(t *testing.T) {
	sink := newSubmissionServer(t, http.StatusOK)
	cfgPath := writeConfig(t, sink.URL, "")

	for i := 0; i < 2; i++ {
		if _, err := execute(t, "submit", "--config", cfgPath, "--message", "same"); err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	}
	out, err := execute(t, "submit", "--config", cfgPath, "--message", "same", "--flush")
	if err != nil {
		t.Fatalf("submit --flush failed: %v", err)
	}
	if !strings.Contains(out, "duplicates: 3") || !strings.Contains(out, "Delivered 1 of 1") {
		t.Errorf("Unexpected output %q", out)
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.queries) != 1 || !strings.Contains(sink.queries[0], transport.DuplicateParam+"=3") {
		t.Errorf("Expected one submission carrying the duplicate count, got %q", sink.queries)
	}
}

func TestSubmit_FromFile(t *testing.T) {
	cfgPath := writeConfig(t, "", "")
	report := filepath.Join(t.TempDir(), "crash.json")
	content := `{"uuid":"7b0b3c4e-9f51-4c39-8f0e-0a6f3f1f2d11","message":"from file","stackTrace":[{"funcName":"main.main"}]}`
	if err := os.WriteFile(report, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	out, err := execute(t, "submit", "--config", cfgPath, "--file", report)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if !strings.Contains(out, "7b0b3c4e-9f51-4c39-8f0e-0a6f3f1f2d11") {
		t.Errorf("Expected record to keep the report UUID, got %q", out)
	}
}

func TestSubmit_RequiresContent(t *testing.T) {
	cfgPath := writeConfig(t, "", "")
	if _, err := execute(t, "submit", "--config", cfgPath); err == nil {
		t.Error("Expected submit without a message to fail")
	}
}

func TestFlush_RequiresTransport(t *testing.T) {
	cfgPath := writeConfig(t, "", "")
	_, err := execute(t, "flush", "--config", cfgPath)
	if cli.ExitCode(err) != cli.ExitConfig {
		t.Errorf("Expected config exit code, got %d (%v)", cli.ExitCode(err), err)
	}
}

func TestFlush_FailuresAreRecorded(t *testing.T) {
	sink := newSubmissionServer(t, http.StatusBadRequest)
	cfgPath := writeConfig(t, sink.URL, "")

	if _, err := execute(t, "submit", "--config", cfgPath, "--message", "rejected"); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	out, err := execute(t, "flush", "--config", cfgPath, "--quiet")
	if err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if !strings.Contains(out, "Delivered 0 of 1 records") {
		t.Errorf("Unexpected flush output %q", out)
	}

	out, err = execute(t, "history", "--config", cfgPath, "--outcome", "failure", "--format", "csv")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if !strings.Contains(out, ",400,") {
		t.Errorf("Expected status code 400 in history, got %q", out)
	}
}

func TestClear(t *testing.T) {
	cfgPath := writeConfig(t, "", "")
	if _, err := execute(t, "submit", "--config", cfgPath, "--message", "one"); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	if _, err := execute(t, "clear", "--config", cfgPath); err == nil {
		t.Error("Expected clear without --yes to fail")
	}
	if status := statusOf(t, cfgPath); status.Records != 1 {
		t.Fatalf("Expected record to survive, got %d", status.Records)
	}

	out, err := execute(t, "clear", "--config", cfgPath, "--yes")
	if err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if !strings.HasPrefix(out, "Deleted 1 records") {
		t.Errorf("Unexpected clear output %q", out)
	}
	if status := statusOf(t, cfgPath); status.Records != 0 {
		t.Errorf("Expected empty store, got %d", status.Records)
	}
}

func TestHistory_Disabled(t *testing.T) {
	cfgPath := writeConfig(t, "", "")
	content, _ := os.ReadFile(cfgPath)
	content = bytes.Replace(content, []byte("  backend: sqlite"), []byte("  enabled: false\n  backend: sqlite"), 1)
	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	_, err := execute(t, "history", "--config", cfgPath)
	if cli.ExitCode(err) != cli.ExitConfig {
		t.Errorf("Expected config exit code, got %d (%v)", cli.ExitCode(err), err)
	}
}

func TestHistory_InvalidFlags(t *testing.T) {
	cfgPath := writeConfig(t, "", "")
	if _, err := execute(t, "history", "--config", cfgPath, "--outcome", "maybe"); err == nil {
		t.Error("Expected unknown outcome to fail")
	}
	if _, err := execute(t, "history", "--config", cfgPath, "--format", "xml"); err == nil {
		t.Error("Expected unknown format to fail")
	}
}

func TestRun_DryRun(t *testing.T) {
	cfgPath := writeConfig(t, "", "")
	out, err := execute(t, "run", "--config", cfgPath, "--dry-run")
	if err != nil {
		t.Fatalf("run --dry-run failed: %v", err)
	}
	if !strings.Contains(out, "Configuration valid") {
		t.Errorf("Unexpected output %q", out)
	}

	_, err = execute(t, "run", "--config", cfgPath, "--dry-run", "--log-level", "loud")
	if cli.ExitCode(err) != cli.ExitConfig {
		t.Errorf("Expected config exit code for bad log level, got %d (%v)", cli.ExitCode(err), err)
	}
}

func TestInvalidConfig(t *testing.T) {
	cfgPath := writeConfig(t, "", "delivery:\n  retry_limit: -1\n")
	_, err := execute(t, "status", "--config", cfgPath)
	if cli.ExitCode(err) != cli.ExitConfig {
		t.Errorf("Expected config exit code, got %d (%v)", cli.ExitCode(err), err)
	}

	_, err = execute(t, "status", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	if cli.ExitCode(err) != cli.ExitConfig {
		t.Errorf("Expected config exit code for missing file, got %d (%v)", cli.ExitCode(err), err)
	}
}
