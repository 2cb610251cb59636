package cli

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestProgress(buf *bytes.Buffer) *SimpleProgress {
	p := NewProgressReporter(buf).(*SimpleProgress)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	calls := 0
	p.now = func() time.Time {
		calls++
		return start.Add(time.Duration(calls) * time.Second)
	}
	return p
}

func TestSimpleProgress(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := newTestProgress(buf)

	progress.Start(4)
	progress.Increment(false)
	progress.Increment(true)
	progress.Finish()

	output := buf.String()
	if !strings.Contains(output, "Flushing:") {
		t.Errorf("Expected output to contain 'Flushing:', got %q", output)
	}
	if !strings.Contains(output, "2/4 records, 1 failed") {
		t.Errorf("Expected final counts in output, got %q", output)
	}
	if !strings.HasSuffix(output, "\n") {
		t.Error("Expected Finish() to end the line")
	}
}

func TestSimpleProgress_GrowsTotal(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := newTestProgress(buf)

	progress.Start(1)
	progress.Increment(false)
	progress.Increment(false)

	if progress.total != 2 {
		t.Errorf("Expected total to follow current, got %d", progress.total)
	}
}

func TestSimpleProgress_ZeroTotal(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := newTestProgress(buf)

	progress.Start(0)
	progress.Finish()

	if buf.String() != "\n" {
		t.Errorf("Expected only a newline, got %q", buf.String())
	}
}

func TestSimpleProgress_Error(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf)

	progress.Start(10)
	progress.Error(fmt.Errorf("test error"))

	output := buf.String()
	if !strings.Contains(output, "Error: test error") {
		t.Errorf("Expected error output, got %q", output)
	}
}

func TestSimpleProgress_Concurrent(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf).(*SimpleProgress)
	progress.Start(100)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				progress.Increment(j%2 == 0)
			}
		}()
	}
	wg.Wait()

	if progress.current != 100 {
		t.Errorf("Expected 100 increments, got %d", progress.current)
	}
	if progress.failed != 50 {
		t.Errorf("Expected 50 failures, got %d", progress.failed)
	}
}
