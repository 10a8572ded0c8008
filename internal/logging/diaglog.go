package logging

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	// diagSizeCeiling triggers a trim once the log grows past it.
	diagSizeCeiling = 512 * 1024
	// diagKeepLines is how many trailing lines survive a trim.
	diagKeepLines = 500
)

// DiagnosticLog is an append-only log file for worker output tails and
// setup sessions. Past a size ceiling only the last ~500 lines are kept.
type DiagnosticLog struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// NewDiagnosticLog creates a diagnostic log writing to path.
func NewDiagnosticLog(path string) *DiagnosticLog {
	return &DiagnosticLog{path: path, now: time.Now}
}

// Append writes one timestamped entry, creating the file on first use.
func (l *DiagnosticLog) Append(entry string) error {
	return l.AppendLines([]string{entry})
}

// AppendLines writes a timestamped block of lines atomically with
// respect to other appenders in this process.
func (l *DiagnosticLog) AppendLines(lines []string) error {
	if len(lines) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	stamp := l.now().UTC().Format(time.RFC3339)
	var b strings.Builder
	for _, line := range lines {
		fmt.Fprintf(&b, "[%s] %s\n", stamp, strings.TrimRight(line, "\n"))
	}

	_, writeErr := f.WriteString(b.String())
	closeErr := f.Close()
	if writeErr != nil {
		return writeErr
	}
	if closeErr != nil {
		return closeErr
	}

	return l.trimLocked()
}

// Tail returns up to n trailing lines of the log.
func (l *DiagnosticLog) Tail(n int) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	lines := splitLines(data)
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// trimLocked rewrites the file keeping the trailing lines once the
// size ceiling is exceeded. Caller holds the mutex.
func (l *DiagnosticLog) trimLocked() error {
	info, err := os.Stat(l.path)
	if err != nil || info.Size() <= diagSizeCeiling {
		return nil
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		return err
	}

	lines := splitLines(data)
	if len(lines) > diagKeepLines {
		lines = lines[len(lines)-diagKeepLines:]
	}

	tmp := l.path + ".tmp"
	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, l.path)
}

// splitLines splits file content dropping a trailing empty element.
func splitLines(data []byte) []string {
	trimmed := bytes.TrimRight(data, "\n")
	if len(trimmed) == 0 {
		return nil
	}
	return strings.Split(string(trimmed), "\n")
}
