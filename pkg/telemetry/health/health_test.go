package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name            string
		timeout         time.Duration
		expectedTimeout time.Duration
	}{
		{"default timeout", 0, 5 * time.Second},
		{"custom timeout", 10 * time.Second, 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := New(tt.timeout)
			if checker.checkTimeout != tt.expectedTimeout {
				t.Errorf("expected timeout %v, got %v", tt.expectedTimeout, checker.checkTimeout)
			}
			if len(checker.Names()) != 0 {
				t.Errorf("expected 0 checks, got %d", len(checker.Names()))
			}
		})
	}
}

func TestReadiness(t *testing.T) {
	tests := []struct {
		name     string
		checks   map[string]CheckFunc
		expected string
		failing  []string
	}{
		{
			name:     "no checks",
			checks:   nil,
			expected: StatusReady,
		},
		{
			name: "all healthy",
			checks: map[string]CheckFunc{
				"database":  func(context.Context) error { return nil },
				"transport": func(context.Context) error { return nil },
			},
			expected: StatusReady,
		},
		{
			name: "one failing",
			checks: map[string]CheckFunc{
				"database":  func(context.Context) error { return nil },
				"transport": func(context.Context) error { return errors.New("down") },
			},
			expected: StatusDegraded,
			failing:  []string{"transport"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := New(time.Second)
			for name, check := range tt.checks {
				checker.Register(name, check)
			}

			status := checker.Readiness(context.Background())
			if status.Status != tt.expected {
				t.Errorf("Expected status %q, got %q", tt.expected, status.Status)
			}
			if len(status.Checks) != len(tt.checks) {
				t.Errorf("Expected %d results, got %d", len(tt.checks), len(status.Checks))
			}

			var failing []string
			for name, result := range status.Checks {
				if result.Status != StatusOK {
					failing = append(failing, name)
				}
			}
			sort.Strings(failing)
			if len(failing) != len(tt.failing) {
				t.Fatalf("Expected failing %v, got %v", tt.failing, failing)
			}
			for i := range failing {
				if failing[i] != tt.failing[i] {
					t.Errorf("Expected failing %v, got %v", tt.failing, failing)
				}
			}
		})
	}
}

func TestReadiness_Timeout(t *testing.T) {
	checker := New(20 * time.Millisecond)
	checker.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return nil
	})

	status := checker.Readiness(context.Background())
	result := status.Checks["slow"]
	if result.Status != StatusUnhealthy {
		t.Errorf("Expected unhealthy, got %q", result.Status)
	}
	if result.Message != ErrCheckTimeout.Error() {
		t.Errorf("Expected timeout message, got %q", result.Message)
	}
}

func TestDirCheck(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	ctx := context.Background()
	if err := DirCheck(dir)(ctx); err != nil {
		t.Errorf("Expected directory to pass, got %v", err)
	}
	if err := DirCheck(file)(ctx); err == nil {
		t.Error("Expected regular file to fail")
	}
	if err := DirCheck(filepath.Join(dir, "missing"))(ctx); err == nil {
		t.Error("Expected missing directory to fail")
	}
}

func TestCapacityCheck(t *testing.T) {
	ctx := context.Background()
	usage := int64(10)
	read := func() int64 { return usage }

	if err := CapacityCheck("records", read, 0)(ctx); err != nil {
		t.Errorf("Expected zero limit to pass, got %v", err)
	}
	if err := CapacityCheck("records", read, 10)(ctx); err != nil {
		t.Errorf("Expected usage at limit to pass, got %v", err)
	}
	usage = 11
	if err := CapacityCheck("records", read, 10)(ctx); err == nil {
		t.Error("Expected usage above limit to fail")
	}
}

func TestFailureCheck(t *testing.T) {
	ctx := context.Background()
	n := 2
	check := FailureCheck(func() int { return n }, 3)

	if err := check(ctx); err != nil {
		t.Errorf("Expected 2 failures to pass, got %v", err)
	}
	n = 3
	if err := check(ctx); err == nil {
		t.Error("Expected 3 failures to fail")
	}
}

func TestMount(t *testing.T) {
	checker := New(time.Second)
	checker.Register("database", func(context.Context) error { return errors.New("gone") })

	mux := http.NewServeMux()
	Mount(mux, checker, VersionInfo{Version: "1.2.3", Commit: "abc"})

	tests := []struct {
		method string
		path   string
		code   int
	}{
		{http.MethodGet, LivenessPath, http.StatusOK},
		{http.MethodHead, LivenessPath, http.StatusOK},
		{http.MethodGet, ReadinessPath, http.StatusServiceUnavailable},
		{http.MethodGet, VersionPath, http.StatusOK},
		{http.MethodPost, LivenessPath, http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.code {
				t.Errorf("Expected status %d, got %d", tt.code, rec.Code)
			}
		})
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, VersionPath, nil))
	var info VersionInfo
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	if info.Version != "1.2.3" || info.GoVersion == "" {
		t.Errorf("Unexpected version info: %+v", info)
	}
}
