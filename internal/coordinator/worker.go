package coordinator

import (
	"strconv"
	"strings"

	"auto-transcriber/internal/domain"
	"auto-transcriber/internal/procio"
)

// tailLimit bounds the retained worker output used for error
// extraction after a failed run.
const tailLimit = 200

// buildWorkerArgs assembles the transcription worker command line.
// Argument order is deterministic so invocations are reproducible in
// logs.
func buildWorkerArgs(script string, job domain.Job, settings domain.Settings, modelsDir string) []string {
	args := []string{script, job.SourceFile, job.OutputFile}

	diarize := job.Diarization == domain.DiarizationForceOn ||
		(job.Diarization == domain.DiarizationInherit && settings.DiarizationEnabled)
	if diarize {
		args = append(args, "--diarize")
		if settings.ExpectedSpeakers > 0 {
			args = append(args, "--speakers", strconv.Itoa(settings.ExpectedSpeakers))
		}
	}
	if modelsDir != "" {
		args = append(args, "--models-dir", modelsDir)
	}

	q := settings.Quality
	args = append(args,
		"--format", string(settings.OutputFormat),
		"--chunk-duration", strconv.Itoa(q.ChunkDuration),
		"--chunk-overlap", strconv.Itoa(q.ChunkOverlap),
		"--merge-gap", strconv.FormatFloat(q.MergeGap, 'g', -1, 64),
		"--min-segment", strconv.FormatFloat(q.MinSegment, 'g', -1, 64),
		"--expansion-pad", strconv.Itoa(q.ExpansionPad),
	)
	return args
}

// outputTail keeps the last tailLimit lines of worker output.
type outputTail struct {
	lines []string
}

func (t *outputTail) add(line string) {
	if line == "" {
		return
	}
	t.lines = append(t.lines, line)
	if len(t.lines) > tailLimit {
		t.lines = t.lines[len(t.lines)-tailLimit:]
	}
}

// errorKeywords mark plain-text lines worth surfacing when a worker
// dies without a structured error event.
var errorKeywords = []string{"error", "exception", "traceback", "failed"}

// extractError derives a human-readable failure reason from the
// retained output: the last structured error event wins, then the
// last keyword-bearing plain line, then the bare exit code.
func extractError(tail *outputTail, exitCode int) string {
	for i := len(tail.lines) - 1; i >= 0; i-- {
		ev, ok := procio.ParseEvent([]byte(tail.lines[i]))
		if ok && ev.Error != "" {
			return ev.Error
		}
	}
	for i := len(tail.lines) - 1; i >= 0; i-- {
		line := tail.lines[i]
		if strings.HasPrefix(strings.TrimSpace(line), "{") {
			continue
		}
		lower := strings.ToLower(line)
		for _, kw := range errorKeywords {
			if strings.Contains(lower, kw) {
				return strings.TrimSpace(line)
			}
		}
	}
	return "process exited with code " + strconv.Itoa(exitCode)
}
