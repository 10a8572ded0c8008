package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"auto-transcriber/internal/domain"
)

// TestDefaultSettings verifies baseline defaults are present.
func TestDefaultSettings(t *testing.T) {
	cfg := DefaultSettings()
	if cfg.FileTypes != domain.FileTypesAll {
		t.Fatalf("file types = %q, want all", cfg.FileTypes)
	}
	if cfg.OutputFormat != domain.FormatMarkdown {
		t.Fatalf("format = %q, want md", cfg.OutputFormat)
	}
	if len(cfg.WatchedFolders) == 0 {
		t.Fatal("expected at least one default watched folder")
	}
	if cfg.Quality.ChunkDuration != 20 {
		t.Fatalf("chunk duration = %d, want 20", cfg.Quality.ChunkDuration)
	}
}

// TestJSONStoreLoadMissingReturnsDefaults checks first-run behavior.
func TestJSONStoreLoadMissingReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "settings.json")
	store := NewJSONStore(path)

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.OutputFormat != domain.FormatMarkdown {
		t.Fatalf("format = %q, want md", got.OutputFormat)
	}
}

// TestJSONStoreSaveAndLoadRoundTrip checks persisted settings fidelity.
func TestJSONStoreSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "settings.json")
	store := NewJSONStore(path)
	want := DefaultSettings()
	want.WatchedFolders = []string{"/media/incoming"}
	want.WholeDisk = true
	want.FileTypes = domain.FileTypesAudio
	want.DiarizationEnabled = true
	want.ExpectedSpeakers = 3
	want.OutputFormat = domain.FormatSRT

	if err := store.Save(want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.FileTypes != domain.FileTypesAudio || got.ExpectedSpeakers != 3 {
		t.Fatalf("settings = %+v, want %+v", got, want)
	}
	if len(got.WatchedFolders) != 1 || got.WatchedFolders[0] != "/media/incoming" {
		t.Fatalf("watched folders = %v", got.WatchedFolders)
	}
}

// TestJSONStoreLoadInvalidJSON checks parse error handling.
func TestJSONStoreLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "settings.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("{not-json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	store := NewJSONStore(path)
	if _, err := store.Load(); err == nil {
		t.Fatal("expected json parse error")
	}
}

// TestJSONStoreLoadNormalizesUnknownEnums checks enum fallback on load.
func TestJSONStoreLoadNormalizesUnknownEnums(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	raw := []byte(`{"fileTypes":"everything","outputFormat":"docx"}`)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := NewJSONStore(path).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.FileTypes != domain.FileTypesAll {
		t.Fatalf("file types = %q, want all", got.FileTypes)
	}
	if got.OutputFormat != domain.FormatMarkdown {
		t.Fatalf("format = %q, want md", got.OutputFormat)
	}
	if got.Quality.ChunkDuration == 0 {
		t.Fatal("expected quality defaults to be applied")
	}
}

// TestJSONStoreSubscribeReceivesSaveSignal checks change notification.
func TestJSONStoreSubscribeReceivesSaveSignal(t *testing.T) {
	store := NewJSONStore(filepath.Join(t.TempDir(), "settings.json"))
	ch, cancel := store.Subscribe()
	defer cancel()

	if err := store.Save(DefaultSettings()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected change notification after save")
	}
}

// TestJSONStoreSubscribeCancelStopsSignals checks unsubscription.
func TestJSONStoreSubscribeCancelStopsSignals(t *testing.T) {
	store := NewJSONStore(filepath.Join(t.TempDir(), "settings.json"))
	ch, cancel := store.Subscribe()
	cancel()

	if err := store.Save(DefaultSettings()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	select {
	case <-ch:
		t.Fatal("cancelled subscriber should not be signalled")
	case <-time.After(50 * time.Millisecond):
	}
}

// TestApplyPreset verifies preset substitution and unknown-name error.
func TestApplyPreset(t *testing.T) {
	cfg, err := ApplyPreset(DefaultSettings(), "accurate")
	if err != nil {
		t.Fatalf("ApplyPreset() error = %v", err)
	}
	if cfg.Quality.ChunkDuration != 15 || cfg.Quality.ChunkOverlap != 6 {
		t.Fatalf("quality = %+v, want accurate preset", cfg.Quality)
	}

	if _, err := ApplyPreset(DefaultSettings(), "turbo"); err == nil {
		t.Fatal("expected error for unknown preset")
	}
}
