package watcher

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"auto-transcriber/internal/procio"
)

// startHelper launches the whole-disk scanning helper and feeds its
// streamed paths through the normal candidate policy. Returns false
// when the helper could not be spawned, so the caller falls back to
// the platform notifier over common directories.
func (w *Watcher) startHelper(ctx context.Context, runtime string) bool {
	wait, err := w.runHelper(ctx, runtime, w.considerHelperPath)
	if err != nil {
		w.log.Warn("whole-disk helper unavailable, falling back", zap.Error(err))
		return false
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := wait(); err != nil && ctx.Err() == nil {
			// Helper died after a successful start. The periodic
			// rescan over common directories keeps working.
			w.log.Warn("whole-disk helper exited", zap.Error(err))
		}
	}()
	return true
}

// considerHelperPath applies the extension/seen-set policy to one path
// streamed by the helper.
func (w *Watcher) considerHelperPath(path string) {
	if path == "" || shouldSkipPath(path) {
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}
	w.consider(path, info.Size(), info.ModTime())
}

// execHelper spawns the disk-wide scanning helper process and decodes
// its stdout as line-delimited JSON {path} events.
func (w *Watcher) execHelper(ctx context.Context, runtime string, onPath func(path string)) (func() error, error) {
	cmd := exec.CommandContext(ctx, runtime, w.helper.Script, "--all-disk")

	dec := procio.NewLineDecoder(func(line []byte) {
		ev, ok := procio.ParseEvent(line)
		if !ok || ev.Path == "" {
			return
		}
		onPath(ev.Path)
	})
	cmd.Stdout = dec
	cmd.Stderr = io.Discard

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	wait := func() error {
		err := cmd.Wait()
		dec.Flush()
		return err
	}
	return wait, nil
}

// shouldSkipPath reports whether any path component is on the
// whole-disk skip list.
func shouldSkipPath(path string) bool {
	for _, part := range strings.Split(filepath.Clean(path), string(filepath.Separator)) {
		if _, skip := skipDirNames[part]; skip {
			return true
		}
	}
	return false
}
