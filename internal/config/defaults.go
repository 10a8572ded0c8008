package config

import (
	"fmt"
	"os"
	"path/filepath"

	"auto-transcriber/internal/domain"
)

// DefaultQuality returns the baseline transcription-shaping parameters.
func DefaultQuality() domain.QualityParams {
	return domain.QualityParams{
		ChunkDuration: 20,
		ChunkOverlap:  4,
		MergeGap:      0.8,
		MinSegment:    0.2,
		ExpansionPad:  3,
	}
}

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return domain.Settings{
		WatchedFolders:     []string{filepath.Join(homeDir, "Downloads")},
		WholeDisk:          false,
		FileTypes:          domain.FileTypesAll,
		DiarizationEnabled: false,
		ExpectedSpeakers:   0,
		OutputFormat:       domain.FormatMarkdown,
		Quality:            DefaultQuality(),
		DualTranscription:  false,
		SaveNextToSource:   true,
	}
}

// qualityPresets are named bundles of the five numeric parameters.
var qualityPresets = map[string]domain.QualityParams{
	"fast": {
		ChunkDuration: 30,
		ChunkOverlap:  2,
		MergeGap:      1.0,
		MinSegment:    0.3,
		ExpansionPad:  2,
	},
	"balanced": {
		ChunkDuration: 20,
		ChunkOverlap:  4,
		MergeGap:      0.8,
		MinSegment:    0.2,
		ExpansionPad:  3,
	},
	"accurate": {
		ChunkDuration: 15,
		ChunkOverlap:  6,
		MergeGap:      0.5,
		MinSegment:    0.1,
		ExpansionPad:  5,
	},
}

// PresetNames lists the available quality preset names.
func PresetNames() []string {
	return []string{"fast", "balanced", "accurate"}
}

// ApplyPreset replaces the quality parameters with a named preset.
func ApplyPreset(cfg domain.Settings, name string) (domain.Settings, error) {
	preset, ok := qualityPresets[name]
	if !ok {
		return cfg, fmt.Errorf("unknown quality preset: %s", name)
	}
	cfg.Quality = preset
	return cfg, nil
}
