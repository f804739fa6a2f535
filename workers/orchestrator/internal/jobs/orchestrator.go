// Package jobs runs import batches as separate worker processes and keeps
// their state in a keyed job registry.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"adimporter/shared/cancel"
	"adimporter/shared/domain/entity/job"
	"adimporter/shared/ingest"
	"adimporter/shared/observability/types"
	"adimporter/shared/utils"
)

// Files inside a job's work directory.
const (
	BatchFileName  = "batch.json"
	ReportFileName = "report.csv"
	StdoutFileName = "stdout.log"
	StderrFileName = "stderr.log"
)

// Config holds the orchestrator settings.
type Config struct {
	WorkDir        string
	DebugTailLines int
}

// StartResult is returned to the caller of Start.
type StartResult struct {
	JobID       string `json:"jobId"`
	RecordCount int    `json:"recordCount"`
}

// View is a polled job, optionally with debug attachments.
type View struct {
	*job.Job
	StdoutTail []string `json:"stdout_tail,omitempty"`
	StderrTail []string `json:"stderr_tail,omitempty"`
	ReportSize *int64   `json:"report_size,omitempty"`
}

// handle tracks a worker this orchestrator spawned itself.
type handle struct {
	proc WorkerProcess
	done chan struct{}
}

// Orchestrator implements Start, Poll and Stop.
type Orchestrator struct {
	cfg     Config
	store   Store
	spawner Spawner
	signal  cancel.Signal
	logger  types.Logger
	metrics types.Metrics

	now   func() time.Time
	newID func() string
	probe func(pid int) bool

	mu      sync.Mutex
	handles map[string]*handle
}

// New creates an Orchestrator.
func New(cfg Config, store Store, spawner Spawner, signal cancel.Signal, logger types.Logger, metrics types.Metrics) *Orchestrator {
	if cfg.DebugTailLines <= 0 {
		cfg.DebugTailLines = 50
	}
	return &Orchestrator{
		cfg:     cfg,
		store:   store,
		spawner: spawner,
		signal:  signal,
		logger:  logger,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
		probe:   processAlive,
		handles: make(map[string]*handle),
	}
}

// Start normalizes batch, registers a job and spawns its worker. The worker
// keeps running after ctx ends.
func (o *Orchestrator) Start(ctx context.Context, batch []byte, debug bool) (*StartResult, error) {
	o.metrics.StartOperation("start")
	defer o.metrics.EndOperation("start")

	records, err := ingest.Normalize(batch)
	if err != nil {
		o.metrics.RecordError("start", "invalid_batch")
		return nil, fmt.Errorf("%w: %w", ErrInvalidBatch, err)
	}

	id := o.newID()
	ctx = types.WithJobID(ctx, id)
	dir := filepath.Join(o.cfg.WorkDir, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}

	data, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("failed to encode batch: %w", err)
	}
	batchPath := filepath.Join(dir, BatchFileName)
	if err := os.WriteFile(batchPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write batch: %w", err)
	}

	now := o.now()
	j := job.New(id, len(records), now)
	j.WorkDir = dir
	j.ReportPath = filepath.Join(dir, ReportFileName)
	if err := o.store.Create(ctx, j); err != nil {
		return nil, fmt.Errorf("failed to register job: %w", err)
	}

	stdoutLog, err := os.Create(filepath.Join(dir, StdoutFileName))
	if err != nil {
		return nil, o.spawnFailed(ctx, id, err)
	}
	stderrLog, err := os.Create(filepath.Join(dir, StderrFileName))
	if err != nil {
		stdoutLog.Close()
		return nil, o.spawnFailed(ctx, id, err)
	}

	spec := SpawnSpec{
		Env: utils.WorkerEnv{
			JobID:        id,
			BatchFile:    batchPath,
			ReportFile:   j.ReportPath,
			WorkDir:      o.cfg.WorkDir,
			StartedAfter: now,
		},
		Stderr: stderrLog,
	}
	if debug {
		spec.Extra = append(spec.Extra, "LOG_LEVEL=debug")
	}

	proc, err := o.spawner.Spawn(ctx, spec)
	if err != nil {
		stdoutLog.Close()
		stderrLog.Close()
		return nil, o.spawnFailed(ctx, id, err)
	}

	if _, err := o.store.Update(ctx, id, func(j *job.Job) error {
		return j.MarkRunning(proc.PID(), o.now())
	}); err != nil {
		o.logger.Error(ctx, "Failed to mark job running", err, types.Fields{"pid": proc.PID()})
	}

	h := &handle{proc: proc, done: make(chan struct{})}
	o.mu.Lock()
	o.handles[id] = h
	o.mu.Unlock()

	go o.relay(context.WithoutCancel(ctx), id, h, stdoutLog, stderrLog)

	o.metrics.RecordSuccess("start")
	o.logger.Info(ctx, "Import job started", types.Fields{
		"pid":     proc.PID(),
		"records": len(records),
		"debug":   debug,
	})

	return &StartResult{JobID: id, RecordCount: len(records)}, nil
}

func (o *Orchestrator) spawnFailed(ctx context.Context, id string, cause error) error {
	o.metrics.RecordError("start", "spawn_failed")
	o.logger.Error(ctx, "Failed to spawn worker", cause, nil)

	if _, err := o.store.Update(ctx, id, func(j *job.Job) error {
		return j.Finish(job.StatusFailed, job.ReasonSpawnFailed, o.now())
	}); err != nil {
		o.logger.Error(ctx, "Failed to mark job failed", err, nil)
	}
	return fmt.Errorf("%w: %w", ErrSpawnFailed, cause)
}

// Poll returns the latest state of a job. A running job whose worker is gone
// is rewritten to failed, or stopped when a stop had been requested.
func (o *Orchestrator) Poll(ctx context.Context, id string, debug bool) (*View, error) {
	ctx = types.WithJobID(ctx, id)

	j, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if j.Status == job.StatusRunning && !o.alive(id, j.PID) {
		j, err = o.reclassify(ctx, id)
		if err != nil {
			return nil, err
		}
	}

	view := &View{Job: j}
	if debug {
		o.attachDebug(ctx, view)
	}
	return view, nil
}

func (o *Orchestrator) reclassify(ctx context.Context, id string) (*job.Job, error) {
	updated, err := o.store.Update(ctx, id, func(j *job.Job) error {
		if j.StopRequested() {
			return j.Finish(job.StatusStopped, job.ReasonStopRequested, o.now())
		}
		return j.Finish(job.StatusFailed, job.ReasonWorkerCrashed, o.now())
	})
	if errors.Is(err, job.ErrAlreadyTerminal) {
		// the relay finished the job in the meantime
		return o.store.Get(ctx, id)
	}
	if err != nil {
		return nil, err
	}

	o.metrics.RecordError("job", updated.Reason)
	o.logger.Warn(ctx, "Worker is gone, job reclassified", types.Fields{
		"status": updated.Status,
		"reason": updated.Reason,
		"pid":    updated.PID,
	})
	return updated, nil
}

func (o *Orchestrator) alive(id string, pid int) bool {
	o.mu.Lock()
	h, ok := o.handles[id]
	o.mu.Unlock()

	if ok {
		select {
		case <-h.done:
			return false
		default:
			return true
		}
	}
	if pid <= 0 {
		return false
	}
	return o.probe(pid)
}

func (o *Orchestrator) attachDebug(ctx context.Context, view *View) {
	dir := view.WorkDir
	if dir == "" {
		return
	}

	var err error
	if view.StdoutTail, err = tailLines(filepath.Join(dir, StdoutFileName), o.cfg.DebugTailLines); err != nil {
		o.logger.Debug(ctx, "Stdout log unavailable", types.Fields{"error": err.Error()})
	}
	if view.StderrTail, err = tailLines(filepath.Join(dir, StderrFileName), o.cfg.DebugTailLines); err != nil {
		o.logger.Debug(ctx, "Stderr log unavailable", types.Fields{"error": err.Error()})
	}
	if view.ReportPath != "" {
		if info, err := os.Stat(view.ReportPath); err == nil {
			size := info.Size()
			view.ReportSize = &size
		}
	}
}

// Stop requests cooperative termination. Stopping a terminal job, or one
// whose stop was already requested, is a no-op: the worker treats repeated
// signals as an escalation and must see exactly one.
func (o *Orchestrator) Stop(ctx context.Context, id string) (*job.Job, error) {
	ctx = types.WithJobID(ctx, id)

	j, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if j.Status.IsTerminal() || j.StopRequested() {
		return j, nil
	}

	now := o.now()
	first := false
	j, err = o.store.Update(ctx, id, func(j *job.Job) error {
		if j.Status.IsTerminal() || j.StopRequested() {
			return nil
		}
		first = true
		j.RequestStop(now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !first {
		return j, nil
	}

	if err := o.signal.Request(ctx, id, now); err != nil {
		o.logger.Error(ctx, "Failed to write cancellation token", err, nil)
	}

	if err := o.terminate(id, j.PID); err != nil {
		o.logger.Warn(ctx, "Direct termination failed, relying on cancellation token", types.Fields{
			"pid":   j.PID,
			"error": err.Error(),
		})
	}

	o.metrics.RecordSuccess("stop")
	o.logger.Info(ctx, "Stop requested", types.Fields{"pid": j.PID})
	return j, nil
}

func (o *Orchestrator) terminate(id string, pid int) error {
	o.mu.Lock()
	h, ok := o.handles[id]
	o.mu.Unlock()

	if ok {
		return h.proc.Signal(syscall.SIGTERM)
	}
	if pid <= 0 {
		return errors.New("no worker pid recorded")
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Signal(syscall.SIGTERM)
}

// Wait blocks until the relay of a job spawned by this orchestrator has
// finished, or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context, id string) error {
	o.mu.Lock()
	h, ok := o.handles[id]
	o.mu.Unlock()
	if !ok {
		return job.ErrJobNotFound
	}

	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func processAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}
