package logging

import (
	"path/filepath"
	"strings"
	"testing"
)

// TestDiagnosticLogAppendAndTail verifies basic append/read behavior.
func TestDiagnosticLogAppendAndTail(t *testing.T) {
	log := NewDiagnosticLog(filepath.Join(t.TempDir(), "logs", "diagnostics.log"))

	if err := log.Append("worker exited with code 1"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := log.AppendLines([]string{"line a", "line b"}); err != nil {
		t.Fatalf("AppendLines() error = %v", err)
	}

	tail, err := log.Tail(10)
	if err != nil {
		t.Fatalf("Tail() error = %v", err)
	}
	if len(tail) != 3 {
		t.Fatalf("tail len = %d, want 3", len(tail))
	}
	if !strings.Contains(tail[0], "worker exited with code 1") {
		t.Fatalf("tail[0] = %q", tail[0])
	}
	if !strings.Contains(tail[2], "line b") {
		t.Fatalf("tail[2] = %q", tail[2])
	}
}

// TestDiagnosticLogTailMissingFile checks empty result before first append.
func TestDiagnosticLogTailMissingFile(t *testing.T) {
	log := NewDiagnosticLog(filepath.Join(t.TempDir(), "diagnostics.log"))

	tail, err := log.Tail(5)
	if err != nil {
		t.Fatalf("Tail() error = %v", err)
	}
	if tail != nil {
		t.Fatalf("tail = %v, want nil", tail)
	}
}

// TestDiagnosticLogTrimsPastCeiling verifies the 500-line retention.
func TestDiagnosticLogTrimsPastCeiling(t *testing.T) {
	log := NewDiagnosticLog(filepath.Join(t.TempDir(), "diagnostics.log"))

	// Each entry is ~1 KiB so a few hundred appends cross the ceiling.
	filler := strings.Repeat("x", 1024)
	for i := 0; i < 600; i++ {
		if err := log.Append(filler); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	tail, err := log.Tail(1000)
	if err != nil {
		t.Fatalf("Tail() error = %v", err)
	}
	if len(tail) > 500 {
		t.Fatalf("retained lines = %d, want <= 500", len(tail))
	}
	if len(tail) == 0 {
		t.Fatal("expected retained lines after trim")
	}
}
