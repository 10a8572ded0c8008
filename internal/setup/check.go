package setup

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"auto-transcriber/internal/domain"
)

// Checker validates the runtime, worker scripts, and required
// filesystem paths.
type Checker struct {
	dataRoot string
	scripts  []string

	lookPath   func(string) (string, error)
	stat       func(string) (os.FileInfo, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
}

// NewChecker builds a checker using real OS dependencies. scripts are
// the worker script paths that must exist on disk.
func NewChecker(dataRoot string, scripts []string) *Checker {
	return &Checker{
		dataRoot:   dataRoot,
		scripts:    scripts,
		lookPath:   exec.LookPath,
		stat:       os.Stat,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
	}
}

// Run executes all startup checks and returns a combined report.
func (c *Checker) Run() domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkRuntime(),
		c.checkDataRoot(),
	}
	for _, script := range c.scripts {
		items = append(items, c.checkScript(script))
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkRuntime verifies a usable Python interpreter exists.
func (c *Checker) checkRuntime() domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "runtime",
		Name: "Python runtime",
	}

	runtime := ResolveRuntime(c.dataRoot, c.lookPath, c.stat)
	if runtime == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "No compatible Python interpreter found."
		item.Hint = "Run setup to download a self-contained runtime."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Found at %s", runtime)
	return item
}

// checkScript verifies one worker script is on disk.
func (c *Checker) checkScript(path string) domain.DiagnosticItem {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	item := domain.DiagnosticItem{
		ID:   "script_" + name,
		Name: filepath.Base(path),
	}

	info, err := c.stat(path)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		if errors.Is(err, os.ErrNotExist) {
			item.Message = fmt.Sprintf("Worker script missing: %s", path)
		} else {
			item.Message = fmt.Sprintf("Cannot access worker script: %s", path)
		}
		item.Hint = "Reinstall the application to restore bundled scripts."
		return item
	}
	if info.IsDir() {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Worker script path is a directory: %s", path)
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Found at %s", path)
	return item
}

// checkDataRoot validates data directory existence and write access.
func (c *Checker) checkDataRoot() domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "data_root",
		Name: "Data directory",
	}

	if strings.TrimSpace(c.dataRoot) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Data directory is not configured."
		return item
	}

	if err := c.mkdirAll(c.dataRoot, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create data directory: %s", c.dataRoot)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(c.dataRoot, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Data directory is not writable: %s", c.dataRoot)
		item.Hint = "Adjust permissions so transcripts and logs can be written."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", c.dataRoot)
	return item
}

// NewCheckerForTests creates a checker with injectable dependencies.
func NewCheckerForTests(
	dataRoot string,
	scripts []string,
	lookPath func(string) (string, error),
	stat func(string) (os.FileInfo, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
) *Checker {
	return &Checker{
		dataRoot:   dataRoot,
		scripts:    scripts,
		lookPath:   lookPath,
		stat:       stat,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
	}
}
