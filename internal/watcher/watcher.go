// Package watcher reports newly appeared media files under configured
// roots, exactly once each, combining platform change notifications
// with a periodic full rescan.
package watcher

import (
	"context"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/bep/debounce"
	jitterbug "github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"

	"auto-transcriber/internal/config"
	"auto-transcriber/internal/domain"
)

const (
	// debounceWindow coalesces a burst of change notifications into one scan.
	debounceWindow = 5 * time.Second
	// rescanInterval drives the periodic full rescan that catches
	// notification gaps on removable and network volumes.
	rescanInterval = 30 * time.Second
)

// HelperPaths locates the optional whole-disk scanning helper process.
// The runtime is resolved at start time so a helper disabled by a
// missing runtime becomes usable once provisioning installs one.
type HelperPaths struct {
	ResolveRuntime func() string
	Script         string
}

// Watcher monitors configured directories for new media files.
type Watcher struct {
	store  config.Store
	log    *zap.Logger
	helper HelperPaths
	onFile func(path string)

	newNotifier func() (Notifier, error)
	runHelper   func(ctx context.Context, runtime string, onPath func(path string)) (func() error, error)
	now         func() time.Time
	debounceFor time.Duration

	mu        sync.RWMutex
	running   bool
	startTime time.Time
	roots     []string
	wholeDisk bool
	exts      map[string]struct{}
	seen      map[string]struct{}
	detected  []string
	notifier  Notifier

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a watcher. onFile is invoked once per newly detected file,
// off the caller's goroutine.
func New(store config.Store, helper HelperPaths, onFile func(path string), log *zap.Logger) *Watcher {
	w := &Watcher{
		store:       store,
		log:         log,
		helper:      helper,
		onFile:      onFile,
		newNotifier: newFSNotifier,
		now:         time.Now,
		debounceFor: debounceWindow,
		seen:        make(map[string]struct{}),
	}
	w.runHelper = w.execHelper
	return w
}

// Start resolves the watch roots and begins monitoring. Calling Start
// while already running stops and restarts cleanly. Never returns an
// error: on failure the watcher degrades to watching nothing.
func (w *Watcher) Start() {
	w.Stop()

	settings, err := w.store.Load()
	if err != nil {
		w.log.Warn("load settings, watching nothing", zap.Error(err))
		settings = domain.Settings{}
	}

	roots, wholeDisk := w.resolveRoots(settings)
	exts := domain.ActiveExtensions(settings.FileTypes)

	ctx, cancel := context.WithCancel(context.Background())

	w.mu.Lock()
	w.running = true
	w.startTime = w.now()
	w.roots = roots
	w.wholeDisk = wholeDisk
	w.exts = exts
	w.seen = make(map[string]struct{})
	w.detected = nil
	w.cancel = cancel
	w.mu.Unlock()

	// Mark pre-existing files as already seen without reporting them.
	// Anything modified at or after start time is left for live scans.
	w.primeSeen(roots)

	helperActive := false
	if wholeDisk && w.helper.ResolveRuntime != nil && w.helper.Script != "" {
		if runtime := w.helper.ResolveRuntime(); runtime != "" {
			helperActive = w.startHelper(ctx, runtime)
		} else {
			w.log.Warn("whole-disk helper has no runtime, falling back")
		}
	}

	if !helperActive {
		notifier, err := w.newNotifier()
		if err != nil {
			w.log.Warn("change notifications unavailable, rescan only", zap.Error(err))
		} else {
			w.mu.Lock()
			w.notifier = notifier
			w.mu.Unlock()
			w.watchRoots(notifier, roots)
			w.wg.Add(1)
			go w.eventLoop(ctx, notifier)
		}
	}

	w.wg.Add(2)
	go w.rescanLoop(ctx)
	go w.configLoop(ctx)

	w.log.Info("watcher started",
		zap.Strings("roots", roots),
		zap.Bool("wholeDisk", wholeDisk),
		zap.Bool("helper", helperActive),
	)
}

// Stop releases all monitoring resources. Safe to call repeatedly.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	cancel := w.cancel
	notifier := w.notifier
	w.cancel = nil
	w.notifier = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if notifier != nil {
		_ = notifier.Close()
	}
	w.wg.Wait()
}

// DetectedFiles returns the reported-but-unclaimed files.
func (w *Watcher) DetectedFiles() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]string, len(w.detected))
	copy(out, w.detected)
	return out
}

// RemoveDetectedFile drops one entry once a caller has acted on it.
func (w *Watcher) RemoveDetectedFile(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, p := range w.detected {
		if p == path {
			w.detected = append(w.detected[:i], w.detected[i+1:]...)
			return
		}
	}
}

// resolveRoots computes the set of accessible roots for the settings.
func (w *Watcher) resolveRoots(settings domain.Settings) (roots []string, wholeDisk bool) {
	if settings.WholeDisk {
		return accessibleOnly(commonUserDirs()), true
	}
	return accessibleOnly(settings.WatchedFolders), false
}

// eventLoop debounces change notifications into rescans and registers
// newly created directories with the notifier.
func (w *Watcher) eventLoop(ctx context.Context, notifier Notifier) {
	defer w.wg.Done()

	debounced := debounce.New(w.debounceFor)
	for {
		select {
		case <-ctx.Done():
			return
		case path, ok := <-notifier.Events():
			if !ok {
				return
			}
			if info, err := os.Stat(path); err == nil && info.IsDir() {
				_ = notifier.Add(path)
			}
			debounced(func() { w.Scan() })
		case err, ok := <-notifier.Errors():
			if !ok {
				return
			}
			w.log.Debug("change notification error", zap.Error(err))
		}
	}
}

// rescanLoop runs the periodic full rescan with a little jitter so
// multiple instances do not hammer shared volumes in lockstep.
func (w *Watcher) rescanLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := jitterbug.New(rescanInterval, &jitterbug.Norm{Stdev: 2 * time.Second})
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Scan()
		}
	}
}

// configLoop reacts to the settings change signal, restarting only
// when a watcher-relevant setting actually changed.
func (w *Watcher) configLoop(ctx context.Context) {
	defer w.wg.Done()

	changes, cancel := w.store.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case <-changes:
			settings, err := w.store.Load()
			if err != nil {
				w.log.Warn("reload settings", zap.Error(err))
				continue
			}

			roots, wholeDisk := w.resolveRoots(settings)
			exts := domain.ActiveExtensions(settings.FileTypes)

			w.mu.RLock()
			changed := wholeDisk != w.wholeDisk ||
				!sameStrings(roots, w.roots) ||
				!sameExts(exts, w.exts)
			w.mu.RUnlock()

			if changed {
				w.log.Info("watcher settings changed, restarting")
				go w.Start()
				return
			}
		}
	}
}

// watchRoots registers every directory under each root.
func (w *Watcher) watchRoots(notifier Notifier, roots []string) {
	for _, root := range roots {
		for _, dir := range subdirectories(root) {
			if err := notifier.Add(dir); err != nil {
				w.log.Debug("watch directory", zap.String("dir", dir), zap.Error(err))
			}
		}
	}
}

// sameStrings compares two root lists ignoring order.
func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

// sameExts compares two extension sets.
func sameExts(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for ext := range a {
		if _, ok := b[ext]; !ok {
			return false
		}
	}
	return true
}

// NewForTests creates a watcher with injectable notifier, helper
// runner, and clock.
func NewForTests(
	store config.Store,
	onFile func(path string),
	newNotifier func() (Notifier, error),
	runHelper func(ctx context.Context, runtime string, onPath func(path string)) (func() error, error),
	now func() time.Time,
	log *zap.Logger,
) *Watcher {
	w := New(store, HelperPaths{}, onFile, log)
	if newNotifier != nil {
		w.newNotifier = newNotifier
	}
	if runHelper != nil {
		w.runHelper = runHelper
		w.helper = HelperPaths{
			ResolveRuntime: func() string { return "python3" },
			Script:         "watcher.py",
		}
	}
	if now != nil {
		w.now = now
	}
	return w
}
