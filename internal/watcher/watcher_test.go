package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"auto-transcriber/internal/domain"
)

// fakeStore is an in-memory settings store with working change signals.
type fakeStore struct {
	mu       sync.Mutex
	settings domain.Settings
	subs     map[int]chan struct{}
	nextID   int
}

func newFakeStore(settings domain.Settings) *fakeStore {
	return &fakeStore{settings: settings, subs: make(map[int]chan struct{})}
}

func (s *fakeStore) Load() (domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings, nil
}

func (s *fakeStore) Save(cfg domain.Settings) error {
	s.mu.Lock()
	s.settings = cfg
	subs := make([]chan struct{}, 0, len(s.subs))
	for _, ch := range s.subs {
		subs = append(subs, ch)
	}
	s.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

func (s *fakeStore) Subscribe() (<-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	ch := make(chan struct{}, 1)
	s.subs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// fakeNotifier is a channel-backed Notifier for driving the event loop.
type fakeNotifier struct {
	mu     sync.Mutex
	added  []string
	events chan string
	errs   chan error
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{
		events: make(chan string, 16),
		errs:   make(chan error, 1),
	}
}

func (n *fakeNotifier) Add(dir string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.added = append(n.added, dir)
	return nil
}

func (n *fakeNotifier) Events() <-chan string { return n.events }
func (n *fakeNotifier) Errors() <-chan error  { return n.errs }
func (n *fakeNotifier) Close() error          { return nil }

// collector records reported file paths.
type collector struct {
	mu    sync.Mutex
	paths []string
}

func (c *collector) add(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths = append(c.paths, path)
}

func (c *collector) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.paths...)
}

func pastClock() func() time.Time {
	start := time.Now().Add(-time.Minute)
	return func() time.Time { return start }
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

// TestScanFiltersByExtension verifies that only files matching the
// configured type filter are reported, each exactly once.
func TestScanFiltersByExtension(t *testing.T) {
	dir := t.TempDir()
	store := newFakeStore(domain.Settings{
		WatchedFolders: []string{dir},
		FileTypes:      domain.FileTypesAudio,
	})
	var got collector

	w := NewForTests(store, got.add, func() (Notifier, error) {
		return newFakeNotifier(), nil
	}, nil, pastClock(), zap.NewNop())
	w.Start()
	defer w.Stop()

	writeFile(t, filepath.Join(dir, "voice.wav"))
	writeFile(t, filepath.Join(dir, "clip.mp4"))

	w.Scan()
	w.Scan()

	paths := got.snapshot()
	if len(paths) != 1 {
		t.Fatalf("reported %v, want exactly the wav file", paths)
	}
	if paths[0] != filepath.Join(dir, "voice.wav") {
		t.Errorf("reported %q, want voice.wav", paths[0])
	}
}

// TestPreexistingFilesNotReported verifies that files modified before
// the watcher started are never reported.
func TestPreexistingFilesNotReported(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "old.wav"))

	store := newFakeStore(domain.Settings{
		WatchedFolders: []string{dir},
		FileTypes:      domain.FileTypesAll,
	})
	var got collector

	futureStart := time.Now().Add(time.Hour)
	w := NewForTests(store, got.add, func() (Notifier, error) {
		return newFakeNotifier(), nil
	}, nil, func() time.Time { return futureStart }, zap.NewNop())
	w.Start()
	defer w.Stop()

	w.Scan()

	if paths := got.snapshot(); len(paths) != 0 {
		t.Errorf("reported %v, want nothing for pre-existing files", paths)
	}
}

// TestModifiedFileReportedAgain verifies that a changed modification
// time produces a fresh report while an unchanged one stays silent.
func TestModifiedFileReportedAgain(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "voice.wav")
	store := newFakeStore(domain.Settings{
		WatchedFolders: []string{dir},
		FileTypes:      domain.FileTypesAudio,
	})
	var got collector

	w := NewForTests(store, got.add, func() (Notifier, error) {
		return newFakeNotifier(), nil
	}, nil, pastClock(), zap.NewNop())
	w.Start()
	defer w.Stop()

	writeFile(t, path)
	w.Scan()
	w.Scan()
	if paths := got.snapshot(); len(paths) != 1 {
		t.Fatalf("reported %v after initial scans, want one report", paths)
	}

	later := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}
	w.Scan()

	if paths := got.snapshot(); len(paths) != 2 {
		t.Errorf("reported %v after mtime change, want a second report", paths)
	}
}

// TestEventTriggersDebouncedScan verifies that a change notification
// leads to a scan after the debounce window.
func TestEventTriggersDebouncedScan(t *testing.T) {
	dir := t.TempDir()
	store := newFakeStore(domain.Settings{
		WatchedFolders: []string{dir},
		FileTypes:      domain.FileTypesAudio,
	})
	var got collector

	notifier := newFakeNotifier()
	w := NewForTests(store, got.add, func() (Notifier, error) {
		return notifier, nil
	}, nil, pastClock(), zap.NewNop())
	w.debounceFor = 10 * time.Millisecond
	w.Start()
	defer w.Stop()

	path := filepath.Join(dir, "voice.wav")
	writeFile(t, path)
	notifier.events <- path

	waitFor(t, func() bool {
		return len(got.snapshot()) == 1
	})
}

// TestDetectedFileRemoval verifies the claim-and-remove flow.
func TestDetectedFileRemoval(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "voice.wav")
	store := newFakeStore(domain.Settings{
		WatchedFolders: []string{dir},
		FileTypes:      domain.FileTypesAll,
	})

	w := NewForTests(store, nil, func() (Notifier, error) {
		return newFakeNotifier(), nil
	}, nil, pastClock(), zap.NewNop())
	w.Start()
	defer w.Stop()

	writeFile(t, path)
	w.Scan()

	if files := w.DetectedFiles(); len(files) != 1 || files[0] != path {
		t.Fatalf("DetectedFiles() = %v, want [%s]", files, path)
	}

	w.RemoveDetectedFile(path)
	if files := w.DetectedFiles(); len(files) != 0 {
		t.Errorf("DetectedFiles() = %v after removal, want empty", files)
	}

	// Removing again is a no-op.
	w.RemoveDetectedFile(path)
}

// TestHelperFailureFallsBack verifies that a helper that cannot be
// spawned degrades to the platform notifier.
func TestHelperFailureFallsBack(t *testing.T) {
	store := newFakeStore(domain.Settings{
		WholeDisk: true,
		FileTypes: domain.FileTypesAll,
	})

	var notifierBuilt bool
	w := NewForTests(store, nil, func() (Notifier, error) {
		notifierBuilt = true
		return newFakeNotifier(), nil
	}, func(ctx context.Context, runtime string, onPath func(path string)) (func() error, error) {
		return nil, errors.New("spawn failed")
	}, pastClock(), zap.NewNop())
	w.Start()
	defer w.Stop()

	if !notifierBuilt {
		t.Error("helper failure did not fall back to the notifier")
	}
}

// TestHelperStreamedPathsFiltered verifies that paths streamed by the
// whole-disk helper pass through the normal candidate policy.
func TestHelperStreamedPathsFiltered(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "voice.wav")
	writeFile(t, good)
	skipped := filepath.Join(dir, "node_modules", "asset.wav")
	if err := os.MkdirAll(filepath.Dir(skipped), 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, skipped)

	store := newFakeStore(domain.Settings{
		WholeDisk: true,
		FileTypes: domain.FileTypesAll,
	})
	var got collector

	w := NewForTests(store, got.add, func() (Notifier, error) {
		t.Error("notifier built despite a working helper")
		return newFakeNotifier(), nil
	}, func(ctx context.Context, runtime string, onPath func(path string)) (func() error, error) {
		onPath(good)
		onPath(skipped)
		onPath(filepath.Join(dir, "missing.wav"))
		return func() error { <-ctx.Done(); return ctx.Err() }, nil
	}, pastClock(), zap.NewNop())
	w.Start()
	defer w.Stop()

	paths := got.snapshot()
	if len(paths) != 1 || paths[0] != good {
		t.Errorf("reported %v, want only %s", paths, good)
	}
}

// TestHelperPicksUpFreshRuntimeOnRestart verifies that a runtime
// installed after construction enables the helper on the next Start,
// without requiring a process restart.
func TestHelperPicksUpFreshRuntimeOnRestart(t *testing.T) {
	store := newFakeStore(domain.Settings{
		WholeDisk: true,
		FileTypes: domain.FileTypesAll,
	})

	var mu sync.Mutex
	runtime := ""
	var spawnedWith []string

	w := NewForTests(store, nil, func() (Notifier, error) {
		return newFakeNotifier(), nil
	}, func(ctx context.Context, rt string, onPath func(path string)) (func() error, error) {
		mu.Lock()
		spawnedWith = append(spawnedWith, rt)
		mu.Unlock()
		return func() error { <-ctx.Done(); return ctx.Err() }, nil
	}, pastClock(), zap.NewNop())
	w.helper.ResolveRuntime = func() string {
		mu.Lock()
		defer mu.Unlock()
		return runtime
	}

	w.Start()
	mu.Lock()
	if len(spawnedWith) != 0 {
		t.Errorf("helper spawned %v with no runtime available", spawnedWith)
	}
	runtime = "/data/python-standalone/python/bin/python3"
	mu.Unlock()

	w.Start()
	defer w.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(spawnedWith) != 1 || spawnedWith[0] != runtime {
		t.Errorf("helper spawned with %v, want the freshly installed runtime", spawnedWith)
	}
}

// TestSettingsChangeRestartsWatcher verifies that saving a new root
// list restarts monitoring over the new roots.
func TestSettingsChangeRestartsWatcher(t *testing.T) {
	dir1 := t.TempDir()
	dir2 := t.TempDir()
	store := newFakeStore(domain.Settings{
		WatchedFolders: []string{dir1},
		FileTypes:      domain.FileTypesAll,
	})
	var got collector

	w := NewForTests(store, got.add, func() (Notifier, error) {
		return newFakeNotifier(), nil
	}, nil, pastClock(), zap.NewNop())
	w.Start()
	defer w.Stop()

	if err := store.Save(domain.Settings{
		WatchedFolders: []string{dir2},
		FileTypes:      domain.FileTypesAll,
	}); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(dir2, "voice.wav")
	writeFile(t, path)

	waitFor(t, func() bool {
		w.Scan()
		for _, p := range got.snapshot() {
			if p == path {
				return true
			}
		}
		return false
	})
}

// TestShouldSkipPath exercises the whole-disk path component filter.
func TestShouldSkipPath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/Users/u/Music/song.wav", false},
		{"/Users/u/project/node_modules/a.wav", true},
		{"/Users/u/.Trash/old.mp3", true},
		{"/Users/u/Library/Caches/x.m4a", true},
		{"/Users/u/Documents/venv-notes/a.wav", false},
	}
	for _, tt := range tests {
		if got := shouldSkipPath(tt.path); got != tt.want {
			t.Errorf("shouldSkipPath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
