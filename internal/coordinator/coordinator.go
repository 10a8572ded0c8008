// Package coordinator owns the transcription job lifecycle: a FIFO
// queue, one running worker process at a time, and a bounded record of
// finished jobs.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"auto-transcriber/internal/config"
	"auto-transcriber/internal/domain"
	"auto-transcriber/internal/history"
	"auto-transcriber/internal/logging"
	"auto-transcriber/internal/procio"
)

// maxRecentJobs bounds the in-memory finished-job list. The full
// record lives in the history store.
const maxRecentJobs = 10

// ErrNoActiveJob is returned when cancel is requested while idle.
var ErrNoActiveJob = errors.New("no active job")

// Config wires the coordinator's collaborators.
type Config struct {
	Store          config.Store
	History        *history.Store
	Runner         procio.Runner
	ResolveRuntime func() string
	ScriptPath     string
	ModelsDir      string
	Diag           *logging.DiagnosticLog
	Log            *zap.Logger
}

// Coordinator schedules transcription jobs one at a time in arrival
// order.
type Coordinator struct {
	store          config.Store
	history        *history.Store
	runner         procio.Runner
	resolveRuntime func() string
	scriptPath     string
	modelsDir      string
	diag           *logging.DiagnosticLog
	log            *zap.Logger
	events         *EventBus

	newJobID func() string
	now      func() time.Time

	mu        sync.RWMutex
	queue     []*domain.Job
	current   *domain.Job
	recent    []domain.Job
	working   bool
	cancelRun context.CancelFunc
	wg        sync.WaitGroup
}

// New creates an idle coordinator.
func New(cfg Config) *Coordinator {
	return &Coordinator{
		store:          cfg.Store,
		history:        cfg.History,
		runner:         cfg.Runner,
		resolveRuntime: cfg.ResolveRuntime,
		scriptPath:     cfg.ScriptPath,
		modelsDir:      cfg.ModelsDir,
		diag:           cfg.Diag,
		log:            cfg.Log,
		events:         NewEventBus(0),
		newJobID:       uuid.NewString,
		now:            time.Now,
	}
}

// Events exposes the job event stream.
func (c *Coordinator) Events() *EventBus {
	return c.events
}

// Enqueue plans one or two jobs for a source file and appends them to
// the queue. With dual transcription enabled and diarization on, the
// file is transcribed twice: once plain and once with speaker labels.
// Jobs whose output is already queued or running are skipped.
func (c *Coordinator) Enqueue(sourcePath string) ([]domain.Job, error) {
	settings, err := c.store.Load()
	if err != nil {
		return nil, err
	}

	planned := c.planJobs(sourcePath, settings)

	c.mu.Lock()
	accepted := make([]domain.Job, 0, len(planned))
	for _, job := range planned {
		if c.outputBusyLocked(job.OutputFile) {
			continue
		}
		queued := job
		c.queue = append(c.queue, &queued)
		accepted = append(accepted, job)
	}
	kick := len(accepted) > 0 && !c.working
	if kick {
		c.working = true
		c.wg.Add(1)
	}
	c.mu.Unlock()

	for _, job := range accepted {
		c.log.Info("job queued",
			zap.String("jobId", job.ID),
			zap.String("source", job.SourceFile),
			zap.String("diarization", string(job.Diarization)),
		)
		c.events.Publish(Event{Type: EventTypeQueued, Job: job})
	}
	if kick {
		go c.processQueue()
	}
	return accepted, nil
}

// planJobs builds the job records for one source file per settings.
func (c *Coordinator) planJobs(sourcePath string, settings domain.Settings) []domain.Job {
	newJob := func(mode domain.DiarizationMode, diarizedName bool) domain.Job {
		return domain.Job{
			ID:          c.newJobID(),
			SourceFile:  sourcePath,
			OutputFile:  outputPath(sourcePath, settings, diarizedName),
			Status:      domain.JobStatusQueued,
			Diarization: mode,
		}
	}

	if settings.DiarizationEnabled && settings.DualTranscription {
		return []domain.Job{
			newJob(domain.DiarizationForceOff, false),
			newJob(domain.DiarizationForceOn, true),
		}
	}
	if settings.DiarizationEnabled {
		return []domain.Job{newJob(domain.DiarizationForceOn, false)}
	}
	return []domain.Job{newJob(domain.DiarizationForceOff, false)}
}

// outputPath derives the transcript destination for a source file.
func outputPath(sourcePath string, settings domain.Settings, diarized bool) string {
	dir := filepath.Dir(sourcePath)
	if !settings.SaveNextToSource && settings.OutputFolder != "" {
		dir = settings.OutputFolder
	}

	base := filepath.Base(sourcePath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if diarized {
		stem += ".speakers"
	}
	return filepath.Join(dir, stem+settings.OutputFormat.Extension())
}

// outputBusyLocked reports whether an output file is already claimed
// by the running job or a queued one.
func (c *Coordinator) outputBusyLocked(outputFile string) bool {
	if c.current != nil && c.current.OutputFile == outputFile {
		return true
	}
	for _, job := range c.queue {
		if job.OutputFile == outputFile {
			return true
		}
	}
	return false
}

// CancelCurrentJob aborts the running job, killing its worker process.
func (c *Coordinator) CancelCurrentJob() error {
	c.mu.RLock()
	cancel := c.cancelRun
	active := c.current != nil
	c.mu.RUnlock()

	if !active || cancel == nil {
		return ErrNoActiveJob
	}
	cancel()
	return nil
}

// CurrentJob returns a snapshot of the running job, if any.
func (c *Coordinator) CurrentJob() (domain.Job, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return domain.Job{}, false
	}
	return *c.current, true
}

// QueuedJobs returns snapshots of the waiting jobs in queue order.
func (c *Coordinator) QueuedJobs() []domain.Job {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Job, 0, len(c.queue))
	for _, job := range c.queue {
		out = append(out, *job)
	}
	return out
}

// RecentJobs returns finished jobs, newest first.
func (c *Coordinator) RecentJobs() []domain.Job {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.Job(nil), c.recent...)
}

// Wait blocks until the queue drains. Intended for tests and shutdown.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// processQueue runs jobs in arrival order until the queue is empty.
func (c *Coordinator) processQueue() {
	defer c.wg.Done()

	for {
		c.mu.Lock()
		if len(c.queue) == 0 {
			c.working = false
			c.mu.Unlock()
			return
		}
		job := c.queue[0]
		c.queue = c.queue[1:]
		c.current = job
		ctx, cancel := context.WithCancel(context.Background())
		c.cancelRun = cancel
		c.mu.Unlock()

		c.runJob(ctx, job)
		cancel()

		c.mu.Lock()
		finished := *job
		c.current = nil
		c.cancelRun = nil
		c.recent = append([]domain.Job{finished}, c.recent...)
		if len(c.recent) > maxRecentJobs {
			c.recent = c.recent[:maxRecentJobs]
		}
		c.mu.Unlock()

		if c.history != nil {
			if err := c.history.Append(finished); err != nil {
				c.log.Warn("append job history", zap.Error(err))
			}
		}
	}
}

// runJob executes the worker process for one job and applies its
// streamed events. The job pointer is the current job; every update
// re-checks identity so a stale stream cannot touch a later job.
func (c *Coordinator) runJob(ctx context.Context, job *domain.Job) {
	settings, err := c.store.Load()
	if err != nil {
		c.finishJob(job, domain.JobStatusFailed, "load settings: "+err.Error())
		return
	}

	runtime := c.resolveRuntime()
	if runtime == "" {
		c.finishJob(job, domain.JobStatusFailed, "no usable python runtime; run setup first")
		return
	}

	if _, statErr := os.Stat(c.scriptPath); statErr != nil {
		c.finishJob(job, domain.JobStatusFailed, "worker script missing: "+c.scriptPath)
		return
	}
	if job.OutputFile == "" {
		c.finishJob(job, domain.JobStatusFailed, "no output path set")
		return
	}

	c.mu.Lock()
	job.Status = domain.JobStatusRunning
	job.StartTime = c.now()
	started := *job
	c.mu.Unlock()
	c.log.Info("job started",
		zap.String("jobId", started.ID),
		zap.String("source", started.SourceFile),
	)
	c.events.Publish(Event{Type: EventTypeStarted, Job: started})

	tail := &outputTail{}
	jobID := started.ID

	code, runErr := c.runner.Run(ctx, procio.ProcessSpec{
		Name: runtime,
		Args: buildWorkerArgs(c.scriptPath, started, settings, c.modelsDir),
		Env:  procio.BaseEnv(),
	}, func(line []byte) {
		tail.add(string(line))
		ev, ok := procio.ParseEvent(line)
		if !ok {
			return
		}
		switch {
		case ev.Warning != "":
			c.applyWarning(jobID, ev.Warning)
		case ev.WarningsCount != nil:
			c.applyWarningSummary(jobID, *ev.WarningsCount, ev.Warnings)
		case ev.Progress != nil:
			c.applyProgress(jobID, ev)
		}
	})

	switch {
	case ctx.Err() != nil:
		c.finishJob(job, domain.JobStatusCancelled, "")
	case runErr != nil:
		c.finishJob(job, domain.JobStatusFailed, runErr.Error())
	case code != 0:
		reason := extractError(tail, code)
		c.recordFailureOutput(jobID, reason, tail)
		c.finishJob(job, domain.JobStatusFailed, reason)
	default:
		preview, speakers := readResult(job.OutputFile)
		c.mu.Lock()
		job.ResultPreview = preview
		if speakers > 0 {
			job.DetectedSpeakers = speakers
		}
		c.mu.Unlock()
		c.finishJob(job, domain.JobStatusCompleted, "")
	}
}

// finishJob applies the terminal state and publishes the outcome.
func (c *Coordinator) finishJob(job *domain.Job, status domain.JobStatus, errMsg string) {
	c.mu.Lock()
	job.Status = status
	job.EndTime = c.now()
	job.Error = errMsg
	job.ETASeconds = nil
	if status == domain.JobStatusCompleted {
		job.Progress = 1.0
		job.Step = domain.JobStepComplete
	}
	snapshot := *job
	c.mu.Unlock()

	switch status {
	case domain.JobStatusCompleted:
		c.log.Info("job completed", zap.String("jobId", snapshot.ID), zap.String("output", snapshot.OutputFile))
		c.events.Publish(Event{Type: EventTypeCompleted, Job: snapshot})
	case domain.JobStatusCancelled:
		c.log.Info("job cancelled", zap.String("jobId", snapshot.ID))
		c.events.Publish(Event{Type: EventTypeCancelled, Job: snapshot})
	default:
		c.log.Warn("job failed", zap.String("jobId", snapshot.ID), zap.String("error", errMsg))
		c.events.Publish(Event{Type: EventTypeFailed, Job: snapshot, Message: errMsg})
	}
}

// applyProgress folds one progress event into the current job. Updates
// only land while that job is still current, and progress never moves
// backwards.
func (c *Coordinator) applyProgress(jobID string, ev procio.Event) {
	c.mu.Lock()
	if c.current == nil || c.current.ID != jobID {
		c.mu.Unlock()
		return
	}
	if p := clampFraction(*ev.Progress); p > c.current.Progress {
		c.current.Progress = p
	}
	if step, known := domain.KnownStep(ev.Step); known {
		c.current.Step = step
	}
	if ev.Detail != "" {
		c.current.Detail = ev.Detail
	}
	if ev.ETASeconds != nil {
		c.current.ETASeconds = ev.ETASeconds
	}
	snapshot := *c.current
	c.mu.Unlock()

	c.events.Publish(Event{Type: EventTypeProgress, Job: snapshot})
}

// clampFraction confines a worker-reported progress value to [0,1].
func clampFraction(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// applyWarning appends one streamed warning to the current job.
func (c *Coordinator) applyWarning(jobID, warning string) {
	c.mu.Lock()
	if c.current == nil || c.current.ID != jobID {
		c.mu.Unlock()
		return
	}
	c.current.Warnings = append(c.current.Warnings, warning)
	c.current.WarningsCount = len(c.current.Warnings)
	snapshot := *c.current
	c.mu.Unlock()

	c.events.Publish(Event{Type: EventTypeWarning, Job: snapshot, Message: warning})
}

// applyWarningSummary replaces the warning list with the worker's
// final summary and records it durably.
func (c *Coordinator) applyWarningSummary(jobID string, count int, warnings []string) {
	c.mu.Lock()
	if c.current == nil || c.current.ID != jobID {
		c.mu.Unlock()
		return
	}
	c.current.WarningsCount = count
	if len(warnings) > 0 {
		c.current.Warnings = warnings
	}
	recorded := append([]string(nil), c.current.Warnings...)
	c.mu.Unlock()

	if c.diag == nil || len(recorded) == 0 {
		return
	}
	lines := append([]string{fmt.Sprintf("job %s reported %d warning(s):", jobID, count)}, recorded...)
	if err := c.diag.AppendLines(lines); err != nil {
		c.log.Debug("append diagnostic log", zap.Error(err))
	}
}

// recordFailureOutput writes the retained worker output to the
// diagnostic log for postmortem inspection.
func (c *Coordinator) recordFailureOutput(jobID, reason string, tail *outputTail) {
	if c.diag == nil || len(tail.lines) == 0 {
		return
	}
	lines := append([]string{"job " + jobID + " failed: " + reason}, tail.lines...)
	if err := c.diag.AppendLines(lines); err != nil {
		c.log.Debug("append diagnostic log", zap.Error(err))
	}
}

// NewForTests creates a coordinator with a deterministic ID source and
// clock.
func NewForTests(cfg Config, newJobID func() string, now func() time.Time) *Coordinator {
	c := New(cfg)
	if newJobID != nil {
		c.newJobID = newJobID
	}
	if now != nil {
		c.now = now
	}
	return c
}
