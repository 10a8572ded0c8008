package procio

import (
	"context"
	"errors"
	"os/exec"
	"time"
)

// ProcessSpec describes one worker process invocation.
type ProcessSpec struct {
	Name string
	Args []string
	Env  []string
	Dir  string
}

// Runner launches a process and streams its combined output line by
// line. It returns the exit code once the process has run; err is
// non-nil only when the process could not be started or was killed
// before producing an exit code.
type Runner interface {
	Run(ctx context.Context, spec ProcessSpec, onLine func(line []byte)) (int, error)
}

// ExecRunner is the production Runner backed by os/exec. Stdout and
// stderr share one decoder so interleaved protocol lines keep their
// relative order per stream.
type ExecRunner struct{}

// NewExecRunner returns the production runner.
func NewExecRunner() ExecRunner {
	return ExecRunner{}
}

// Run starts the process and blocks until it exits or ctx is
// cancelled. Cancellation kills the process.
func (ExecRunner) Run(ctx context.Context, spec ProcessSpec, onLine func(line []byte)) (int, error) {
	cmd := exec.CommandContext(ctx, spec.Name, spec.Args...)
	cmd.Dir = spec.Dir
	if spec.Env != nil {
		cmd.Env = spec.Env
	}
	cmd.WaitDelay = 5 * time.Second

	var dec *LineDecoder
	if onLine != nil {
		dec = NewLineDecoder(onLine)
		cmd.Stdout = dec
		cmd.Stderr = dec
	}

	err := cmd.Run()
	if dec != nil {
		dec.Flush()
	}
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
		return exitErr.ExitCode(), nil
	}
	if ctx.Err() != nil {
		return -1, ctx.Err()
	}
	return -1, err
}
