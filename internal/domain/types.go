package domain

import "time"

// JobStatus tracks the lifecycle of a single transcription job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether a status is final.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// JobStep is the advisory phase tag reported by the worker.
type JobStep string

const (
	JobStepPreparing    JobStep = "preparing"
	JobStepLoadingModel JobStep = "loading_model"
	JobStepDiarizing    JobStep = "diarizing"
	JobStepTranscribing JobStep = "transcribing"
	JobStepSaving       JobStep = "saving"
	JobStepComplete     JobStep = "complete"
)

// KnownStep maps a raw worker step string to the step enum.
// Unknown values are not mapped so a bad tag never overwrites a valid one.
func KnownStep(raw string) (JobStep, bool) {
	switch JobStep(raw) {
	case JobStepPreparing, JobStepLoadingModel, JobStepDiarizing,
		JobStepTranscribing, JobStepSaving, JobStepComplete:
		return JobStep(raw), true
	default:
		return "", false
	}
}

// DiarizationMode is the per-job tri-state diarization override.
type DiarizationMode string

const (
	DiarizationInherit  DiarizationMode = "inherit"
	DiarizationForceOn  DiarizationMode = "on"
	DiarizationForceOff DiarizationMode = "off"
)

// Job is one unit of transcription work. Progress is a fraction in
// [0,1] and only moves forward while the job runs.
type Job struct {
	ID               string          `json:"id"`
	SourceFile       string          `json:"sourceFile"`
	OutputFile       string          `json:"outputFile"`
	Status           JobStatus       `json:"status"`
	Progress         float64         `json:"progress"`
	Step             JobStep         `json:"step,omitempty"`
	Detail           string          `json:"detail,omitempty"`
	ETASeconds       *float64        `json:"etaSeconds,omitempty"`
	StartTime        time.Time       `json:"startTime"`
	EndTime          time.Time       `json:"endTime"`
	Error            string          `json:"error,omitempty"`
	Warnings         []string        `json:"warnings,omitempty"`
	WarningsCount    int             `json:"warningsCount,omitempty"`
	Diarization      DiarizationMode `json:"diarization,omitempty"`
	ResultPreview    string          `json:"resultPreview,omitempty"`
	DetectedSpeakers int             `json:"detectedSpeakers,omitempty"`
}

// OutputFormat selects the transcript file format written by the worker.
type OutputFormat string

const (
	FormatMarkdown OutputFormat = "md"
	FormatText     OutputFormat = "txt"
	FormatJSON     OutputFormat = "json"
	FormatSRT      OutputFormat = "srt"
	FormatVTT      OutputFormat = "vtt"
)

// Extension returns the output filename extension for the format.
func (f OutputFormat) Extension() string {
	switch f {
	case FormatMarkdown, FormatText, FormatJSON, FormatSRT, FormatVTT:
		return "." + string(f)
	default:
		return ".md"
	}
}

// FileTypeFilter restricts which media extensions the watcher reports.
type FileTypeFilter string

const (
	FileTypesAudio FileTypeFilter = "audio"
	FileTypesVideo FileTypeFilter = "video"
	FileTypesAll   FileTypeFilter = "all"
)

var audioExtensions = []string{
	".wav", ".mp3", ".m4a", ".flac", ".ogg", ".oga", ".opus",
	".aac", ".wma", ".amr", ".m4b", ".mp2", ".aiff", ".aif",
}

var videoExtensions = []string{
	".mp4", ".mkv", ".webm", ".mov", ".avi", ".wmv", ".m4v",
}

// ActiveExtensions returns the lowercase extension set for a filter.
func ActiveExtensions(filter FileTypeFilter) map[string]struct{} {
	set := make(map[string]struct{}, len(audioExtensions)+len(videoExtensions))
	if filter == FileTypesAudio || filter == FileTypesAll {
		for _, ext := range audioExtensions {
			set[ext] = struct{}{}
		}
	}
	if filter == FileTypesVideo || filter == FileTypesAll {
		for _, ext := range videoExtensions {
			set[ext] = struct{}{}
		}
	}
	return set
}

// QualityParams are the five numeric transcription-shaping parameters.
type QualityParams struct {
	ChunkDuration int     `json:"chunkDuration"`
	ChunkOverlap  int     `json:"chunkOverlap"`
	MergeGap      float64 `json:"mergeGap"`
	MinSegment    float64 `json:"minSegment"`
	ExpansionPad  int     `json:"expansionPad"`
}

// Settings contains user-selectable runtime configuration.
type Settings struct {
	WatchedFolders     []string       `json:"watchedFolders"`
	WholeDisk          bool           `json:"wholeDisk"`
	FileTypes          FileTypeFilter `json:"fileTypes"`
	DiarizationEnabled bool           `json:"diarizationEnabled"`
	ExpectedSpeakers   int            `json:"expectedSpeakers"`
	OutputFormat       OutputFormat   `json:"outputFormat"`
	Quality            QualityParams  `json:"quality"`
	DualTranscription  bool           `json:"dualTranscription"`
	SaveNextToSource   bool           `json:"saveNextToSource"`
	OutputFolder       string         `json:"outputFolder"`
}

// SetupState describes environment provisioning progress. Progress is
// a fraction in [0,1].
type SetupState struct {
	InProgress bool    `json:"inProgress"`
	Progress   float64 `json:"progress"`
	Status     string  `json:"status"`
}
