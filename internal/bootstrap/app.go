// Package bootstrap wires the stores, watcher, coordinator, and
// provisioner into a runnable application.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"

	"auto-transcriber/internal/config"
	"auto-transcriber/internal/coordinator"
	"auto-transcriber/internal/domain"
	"auto-transcriber/internal/history"
	"auto-transcriber/internal/logging"
	"auto-transcriber/internal/procio"
	"auto-transcriber/internal/setup"
	"auto-transcriber/internal/watcher"
)

// Env carries environment-derived configuration. Variables are
// prefixed AUTO_TRANSCRIBER_, e.g. AUTO_TRANSCRIBER_DATA_ROOT.
type Env struct {
	DataRoot   string `envconfig:"DATA_ROOT"`
	ScriptsDir string `envconfig:"SCRIPTS_DIR"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadEnv reads the environment and fills in defaults: data under
// ~/.auto-transcriber, worker scripts next to the executable.
func LoadEnv() (Env, error) {
	var env Env
	if err := envconfig.Process("auto_transcriber", &env); err != nil {
		return Env{}, fmt.Errorf("read environment: %w", err)
	}

	if env.DataRoot == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Env{}, fmt.Errorf("resolve user home: %w", err)
		}
		env.DataRoot = filepath.Join(home, ".auto-transcriber")
	}
	if env.ScriptsDir == "" {
		exe, err := os.Executable()
		if err != nil {
			env.ScriptsDir = filepath.Join(env.DataRoot, "scripts")
		} else {
			env.ScriptsDir = filepath.Join(filepath.Dir(exe), "scripts")
		}
	}
	return env, nil
}

// App holds the wired application components.
type App struct {
	Env         Env
	Log         *zap.Logger
	Store       config.Store
	Watcher     *watcher.Watcher
	Coordinator *coordinator.Coordinator
	Provisioner *setup.Provisioner
	History     *history.Store
	Checker     *setup.Checker
	Diag        *logging.DiagnosticLog
}

// New builds the application from the environment.
func New(env Env) (*App, error) {
	if err := os.MkdirAll(env.DataRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	log, err := logging.New(env.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("configure logging: %w", err)
	}

	store := config.NewJSONStore(filepath.Join(env.DataRoot, "settings.json"))
	diag := logging.NewDiagnosticLog(filepath.Join(env.DataRoot, "diagnostics.log"))

	hist, err := history.New(filepath.Join(env.DataRoot, "history.db"), history.DefaultMaxRows)
	if err != nil {
		return nil, fmt.Errorf("open job history: %w", err)
	}

	runner := procio.NewExecRunner()
	modelsDir := filepath.Join(env.DataRoot, "models")
	transcribeScript := filepath.Join(env.ScriptsDir, "transcribe.py")
	installerScript := filepath.Join(env.ScriptsDir, "setup_env.py")
	watcherScript := filepath.Join(env.ScriptsDir, "watcher.py")

	resolveRuntime := func() string {
		return setup.ResolveRuntime(env.DataRoot, exec.LookPath, os.Stat)
	}

	provisioner := setup.New(setup.Paths{
		DataRoot:        env.DataRoot,
		InstallerScript: installerScript,
		ModelsDir:       modelsDir,
		SetupLog:        filepath.Join(env.DataRoot, "setup.log"),
	}, runner, func(state domain.SetupState) {
		if state.InProgress {
			log.Info("setup progress",
				zap.Float64("progress", state.Progress),
				zap.String("status", state.Status),
			)
		}
	}, log)

	coord := coordinator.New(coordinator.Config{
		Store:          store,
		History:        hist,
		Runner:         runner,
		ResolveRuntime: resolveRuntime,
		ScriptPath:     transcribeScript,
		ModelsDir:      modelsDir,
		Diag:           diag,
		Log:            log,
	})

	app := &App{
		Env:         env,
		Log:         log,
		Store:       store,
		Coordinator: coord,
		Provisioner: provisioner,
		History:     hist,
		Checker:     setup.NewChecker(env.DataRoot, []string{transcribeScript, installerScript, watcherScript}),
		Diag:        diag,
	}

	app.Watcher = watcher.New(store, watcher.HelperPaths{
		ResolveRuntime: resolveRuntime,
		Script:         watcherScript,
	}, app.onFileDetected, log)

	return app, nil
}

// onFileDetected hands a new media file to the coordinator and clears
// it from the watcher's detected list once claimed.
func (a *App) onFileDetected(path string) {
	jobs, err := a.Coordinator.Enqueue(path)
	if err != nil {
		a.Log.Warn("enqueue detected file", zap.String("path", path), zap.Error(err))
		return
	}
	if len(jobs) > 0 {
		a.Watcher.RemoveDetectedFile(path)
	}
}

// Run provisions the environment if needed, starts watching, and
// blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	report := a.Checker.Run()
	for _, item := range report.Items {
		if item.Status == domain.DiagnosticStatusFail {
			a.Log.Warn("environment check failed",
				zap.String("check", item.Name),
				zap.String("message", item.Message),
			)
		}
	}

	if a.Provisioner.NeedsSetup(ctx) {
		a.Log.Info("environment setup required")
		if err := a.runSetup(ctx); err != nil {
			return err
		}
	}

	a.Watcher.Start()
	defer a.Watcher.Stop()

	<-ctx.Done()
	a.Coordinator.Wait()
	return a.Close()
}

// runSetup starts provisioning and waits for it to finish.
func (a *App) runSetup(ctx context.Context) error {
	done := make(chan bool, 1)
	if err := a.Provisioner.Start(func(ok bool) { done <- ok }); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		a.Provisioner.Cancel()
		<-done
		return ctx.Err()
	case ok := <-done:
		if !ok {
			return fmt.Errorf("environment setup failed: %s", a.Provisioner.State().Status)
		}
		return nil
	}
}

// Close releases persistent resources.
func (a *App) Close() error {
	return a.History.Close()
}
