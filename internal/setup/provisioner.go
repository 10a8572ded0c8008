// Package setup provisions the Python runtime and ML environment the
// transcription workers need. Provisioning is a one-shot, cancellable
// background operation whose progress is observable.
package setup

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"auto-transcriber/internal/domain"
	"auto-transcriber/internal/logging"
	"auto-transcriber/internal/procio"
)

// ErrSetupInProgress is returned when a second setup is started while
// one is still running.
var ErrSetupInProgress = errors.New("setup already in progress")

const (
	// Progress is a fraction in [0,1]. Runtime download occupies the
	// 1-5% band; the installer owns the rest so the long dependency
	// install dominates the bar.
	downloadPhaseStart = 0.01
	downloadPhaseEnd   = 0.05

	smokeTestTimeout = 2 * time.Minute
)

// Paths locates everything the provisioner touches on disk.
type Paths struct {
	DataRoot        string
	InstallerScript string
	ModelsDir       string
	SetupLog        string
}

// Provisioner drives environment setup and tracks its state.
type Provisioner struct {
	paths    Paths
	runner   procio.Runner
	onState  func(domain.SetupState)
	log      *zap.Logger
	setupLog *logging.DiagnosticLog

	resolveRuntime func() string
	installRuntime func(ctx context.Context, onProgress func(frac float64)) (string, error)

	mu     sync.RWMutex
	state  domain.SetupState
	cancel context.CancelFunc
}

// New creates a provisioner using the real network and filesystem.
// onState may be nil; when set it receives every state change.
func New(paths Paths, runner procio.Runner, onState func(domain.SetupState), log *zap.Logger) *Provisioner {
	p := &Provisioner{
		paths:   paths,
		runner:  runner,
		onState: onState,
		log:     log,
	}
	if paths.SetupLog != "" {
		p.setupLog = logging.NewDiagnosticLog(paths.SetupLog)
	}
	p.resolveRuntime = func() string {
		return ResolveRuntime(paths.DataRoot, exec.LookPath, os.Stat)
	}
	p.installRuntime = func(ctx context.Context, onProgress func(frac float64)) (string, error) {
		return InstallRuntime(ctx, http.DefaultClient, paths.DataRoot, onProgress)
	}
	return p
}

// State returns a snapshot of the provisioning state.
func (p *Provisioner) State() domain.SetupState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// NeedsSetup reports whether the environment is missing or broken. A
// resolvable runtime that cannot import the ML dependency set still
// needs setup.
func (p *Provisioner) NeedsSetup(ctx context.Context) bool {
	runtime := p.resolveRuntime()
	if runtime == "" {
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, smokeTestTimeout)
	defer cancel()

	code, err := p.runner.Run(ctx, procio.ProcessSpec{
		Name: runtime,
		Args: []string{"-c", "import torch, torchaudio, gigaam"},
		Env:  procio.BaseEnv(),
	}, nil)
	return err != nil || code != 0
}

// Start begins provisioning in the background. completion may be nil;
// when set it is invoked exactly once with the outcome. Only one
// setup can run at a time.
func (p *Provisioner) Start(completion func(ok bool)) error {
	p.mu.Lock()
	if p.state.InProgress {
		p.mu.Unlock()
		return ErrSetupInProgress
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.state = domain.SetupState{InProgress: true, Status: "starting"}
	p.mu.Unlock()
	p.notify()

	go p.run(ctx, cancel, completion)
	return nil
}

// Cancel aborts a running setup, killing the active subprocess. No-op
// when idle.
func (p *Provisioner) Cancel() {
	p.mu.RLock()
	cancel := p.cancel
	p.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

func (p *Provisioner) run(ctx context.Context, cancel context.CancelFunc, completion func(ok bool)) {
	defer cancel()

	err := p.provision(ctx)

	p.mu.Lock()
	p.cancel = nil
	switch {
	case err == nil:
		p.state = domain.SetupState{Progress: 1.0, Status: "complete"}
	case ctx.Err() != nil:
		// Keep the progress already reached; the 0 reset is reserved
		// for hard failure.
		p.state = domain.SetupState{Progress: p.state.Progress, Status: "cancelled"}
	default:
		p.state = domain.SetupState{Status: err.Error()}
	}
	p.mu.Unlock()
	p.notify()

	if err != nil {
		p.log.Warn("environment setup failed", zap.Error(err))
	} else {
		p.log.Info("environment setup complete")
	}
	if completion != nil {
		completion(err == nil)
	}
}

func (p *Provisioner) provision(ctx context.Context) error {
	if _, err := os.Stat(p.paths.InstallerScript); err != nil {
		return fmt.Errorf("installer script missing: %s", p.paths.InstallerScript)
	}

	runtime := p.resolveRuntime()
	if runtime == "" {
		p.setState(downloadPhaseStart, "downloading_python")
		installed, err := p.installRuntime(ctx, func(frac float64) {
			p.setState(downloadPhaseStart+frac*(downloadPhaseEnd-downloadPhaseStart), "downloading_python")
		})
		if err != nil {
			return fmt.Errorf("install runtime: %w", err)
		}
		runtime = installed
	}

	p.setState(downloadPhaseEnd, "installing")
	return p.runInstaller(ctx, runtime)
}

// runInstaller executes the environment installer script and follows
// its progress stream.
func (p *Provisioner) runInstaller(ctx context.Context, runtime string) error {
	var lastError string

	code, err := p.runner.Run(ctx, procio.ProcessSpec{
		Name: runtime,
		Args: []string{
			p.paths.InstallerScript,
			"--python", runtime,
			"--models-dir", p.paths.ModelsDir,
		},
		Env: procio.BaseEnv(),
	}, func(line []byte) {
		p.appendLog(string(line))

		ev, ok := procio.ParseEvent(line)
		if !ok {
			// Plain installer output becomes status text without
			// moving the numeric progress.
			if text := strings.TrimSpace(string(line)); text != "" {
				p.setState(0, text)
			}
			return
		}
		if ev.Error != "" {
			lastError = ev.Error
			return
		}
		if ev.Progress != nil {
			status := ev.Status
			if status == "" {
				status = ev.Step
			}
			// Installer progress is a 0-1 fraction within its own phase.
			scaled := downloadPhaseEnd + *ev.Progress*(1-downloadPhaseEnd)
			p.setState(scaled, status)
		}
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("run installer: %w", err)
	}
	if code != 0 {
		if lastError != "" {
			return errors.New(lastError)
		}
		return fmt.Errorf("installer exited with code %d", code)
	}
	return nil
}

// setState advances progress monotonically while setup is running.
func (p *Provisioner) setState(progress float64, status string) {
	p.mu.Lock()
	if !p.state.InProgress {
		p.mu.Unlock()
		return
	}
	if progress > p.state.Progress {
		p.state.Progress = progress
	}
	if status != "" {
		p.state.Status = status
	}
	p.mu.Unlock()
	p.notify()
}

func (p *Provisioner) notify() {
	if p.onState == nil {
		return
	}
	p.onState(p.State())
}

func (p *Provisioner) appendLog(line string) {
	if p.setupLog == nil || line == "" {
		return
	}
	if err := p.setupLog.Append(line); err != nil {
		p.log.Debug("append setup log", zap.Error(err))
	}
}

// NewForTests creates a provisioner with injectable runtime resolution
// and installation.
func NewForTests(
	paths Paths,
	runner procio.Runner,
	onState func(domain.SetupState),
	resolveRuntime func() string,
	installRuntime func(ctx context.Context, onProgress func(frac float64)) (string, error),
	log *zap.Logger,
) *Provisioner {
	p := New(paths, runner, onState, log)
	if resolveRuntime != nil {
		p.resolveRuntime = resolveRuntime
	}
	if installRuntime != nil {
		p.installRuntime = installRuntime
	}
	return p
}
