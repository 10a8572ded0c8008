package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"auto-transcriber/internal/domain"
)

// Store defines persistence operations for app settings plus a
// change-notification signal broadcast on every save.
type Store interface {
	Load() (domain.Settings, error)
	Save(domain.Settings) error
	Subscribe() (<-chan struct{}, func())
}

// JSONStore persists settings in a single JSON file on disk.
type JSONStore struct {
	path string

	mu          sync.Mutex
	nextSub     int
	subscribers map[int]chan struct{}
}

// NewJSONStore creates a JSON-backed settings store.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{
		path:        path,
		subscribers: make(map[int]chan struct{}),
	}
}

// Load reads settings from disk or returns defaults when missing.
func (s *JSONStore) Load() (domain.Settings, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultSettings(), nil
		}

		return domain.Settings{}, err
	}

	var cfg domain.Settings
	if err := json.Unmarshal(data, &cfg); err != nil {
		return domain.Settings{}, err
	}

	return normalize(cfg), nil
}

// Save writes settings as indented JSON and notifies subscribers.
func (s *JSONStore) Save(cfg domain.Settings) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(normalize(cfg), "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return err
	}

	s.broadcast()
	return nil
}

// Subscribe registers for change notifications. The returned cancel
// func releases the subscription; the channel is never closed.
func (s *JSONStore) Subscribe() (<-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan struct{}, 1)
	s.subscribers[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
	return ch, cancel
}

// broadcast signals every subscriber without blocking on slow readers.
func (s *JSONStore) broadcast() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ch := range s.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// normalize clamps unknown enum values back to safe defaults.
func normalize(cfg domain.Settings) domain.Settings {
	switch cfg.FileTypes {
	case domain.FileTypesAudio, domain.FileTypesVideo, domain.FileTypesAll:
	default:
		cfg.FileTypes = domain.FileTypesAll
	}

	switch cfg.OutputFormat {
	case domain.FormatMarkdown, domain.FormatText, domain.FormatJSON,
		domain.FormatSRT, domain.FormatVTT:
	default:
		cfg.OutputFormat = domain.FormatMarkdown
	}

	if cfg.Quality == (domain.QualityParams{}) {
		cfg.Quality = DefaultQuality()
	}
	if cfg.ExpectedSpeakers < 0 {
		cfg.ExpectedSpeakers = 0
	}
	return cfg
}
