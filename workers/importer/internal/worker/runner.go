// Package worker drives one import batch: it fans records out to the media
// service under bounded concurrency, broadcasts progress events, honors
// cooperative stop requests and writes the CSV report.
package worker

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"adimporter/shared/cancel"
	"adimporter/shared/domain/entity/job"
	"adimporter/shared/events"
	"adimporter/shared/ingest"
	"adimporter/shared/observability/types"

	"adimporter/workers/importer/internal/domain"
)

// Processor imports a single record. It must not panic and must return once
// ctx is done.
type Processor interface {
	Process(ctx context.Context, rec ingest.Record) domain.Outcome
}

// Config holds the runner settings.
type Config struct {
	JobID              string
	ReportPath         string
	RecordConcurrency  int
	RecordTimeout      time.Duration
	ProgressInterval   time.Duration
	HeartbeatInterval  time.Duration
	CancelPollInterval time.Duration
	// StartedAt is the staleness bound for stop requests.
	StartedAt  time.Time
	XLSXReport bool
}

// Result is the terminal state of a run.
type Result struct {
	Status     string
	Counters   job.Counters
	ReportPath string
}

// Runner executes a batch. A Runner is single use.
type Runner struct {
	cfg       Config
	processor Processor
	emitter   events.Emitter
	signal    cancel.Signal
	logger    types.Logger
	metrics   types.Metrics
	pid       int

	stopOnce sync.Once
	stopCh   chan struct{}

	mu       sync.Mutex
	counters job.Counters

	// emitMu orders snapshot-and-emit so published counters never go backwards
	emitMu sync.Mutex
}

// NewRunner creates a runner. signal may be nil when stop requests only
// arrive through Stop.
func NewRunner(
	cfg Config,
	processor Processor,
	emitter events.Emitter,
	signal cancel.Signal,
	logger types.Logger,
	metrics types.Metrics,
) *Runner {
	if cfg.RecordConcurrency < 1 {
		cfg.RecordConcurrency = 1
	}
	if cfg.RecordTimeout <= 0 {
		cfg.RecordTimeout = 3 * time.Minute
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = 2 * time.Second
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 10 * time.Second
	}
	if cfg.CancelPollInterval <= 0 {
		cfg.CancelPollInterval = time.Second
	}
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = time.Now().UTC()
	}
	return &Runner{
		cfg:       cfg,
		processor: processor,
		emitter:   emitter,
		signal:    signal,
		logger:    logger,
		metrics:   metrics,
		pid:       os.Getpid(),
		stopCh:    make(chan struct{}),
	}
}

// Stop sets the cooperative stop flag. Records already running finish; no
// new record starts.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

func (r *Runner) stopped() bool {
	select {
	case <-r.stopCh:
		return true
	default:
		return false
	}
}

// Run processes records and returns once every started record has finished.
// Cancelling ctx aborts in-flight records and stops the run.
func (r *Runner) Run(ctx context.Context, records []ingest.Record) (*Result, error) {
	report, err := NewReport(r.cfg.ReportPath)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.counters = job.Counters{Total: len(records)}
	r.mu.Unlock()

	started := events.New(events.KindStarted, r.cfg.JobID, r.snapshot())
	started.PID = r.pid
	r.emit(ctx, started)
	r.emitSnapshot(ctx, events.KindCount)

	r.logger.Info(ctx, "Import started", types.Fields{
		"records":     len(records),
		"concurrency": r.cfg.RecordConcurrency,
		"report":      report.Path(),
	})

	bgCtx, stopBackground := context.WithCancel(ctx)
	var background sync.WaitGroup
	r.startBackground(bgCtx, &background)

	g := new(errgroup.Group)
	g.SetLimit(r.cfg.RecordConcurrency)
	for _, rec := range records {
		if ctx.Err() != nil {
			r.Stop()
		}
		if r.stopped() {
			break
		}
		g.Go(func() error {
			// the flag may have been set while waiting for a free slot
			if r.stopped() {
				return nil
			}
			o := r.processRecord(ctx, rec)
			r.complete(ctx, report, o)
			return nil
		})
	}
	_ = g.Wait()

	stopBackground()
	background.Wait()

	final := r.snapshot()
	status := events.StatusCompleted
	if r.stopped() && final.Processed < final.Total {
		status = events.StatusStopped
	}

	// the run is over; the last writes must not be lost to a cancelled ctx
	finalCtx := context.WithoutCancel(ctx)

	if err := report.Close(status, final); err != nil {
		r.logger.Error(finalCtx, "Failed to finalize report", err, types.Fields{"report": report.Path()})
	}
	if r.cfg.XLSXReport {
		xlsx := XLSXPath(report.Path())
		if err := WriteXLSX(report.Path(), xlsx); err != nil {
			r.logger.Error(finalCtx, "Failed to write XLSX report", err, types.Fields{"report": xlsx})
		}
	}

	done := events.New(events.KindDone, r.cfg.JobID, final)
	done.Status = status
	done.ReportPath = report.Path()
	r.emit(finalCtx, done)

	r.logger.Info(finalCtx, "Import finished", types.Fields{
		"status":    status,
		"ok":        final.OK,
		"skipped":   final.Skipped,
		"failed":    final.Failed,
		"processed": final.Processed,
		"total":     final.Total,
	})

	return &Result{Status: status, Counters: final, ReportPath: report.Path()}, nil
}

// startBackground launches the progress and heartbeat timers and the stop
// request watcher. None of them ever blocks record processing.
func (r *Runner) startBackground(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.tick(ctx)
	}()

	if r.signal == nil {
		return
	}
	requested := cancel.Watch(ctx, r.signal, r.cfg.JobID, r.cfg.StartedAt, r.cfg.CancelPollInterval, r.logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-requested:
			r.Stop()
		case <-ctx.Done():
		}
	}()
}

func (r *Runner) tick(ctx context.Context) {
	progress := time.NewTicker(r.cfg.ProgressInterval)
	defer progress.Stop()
	heartbeat := time.NewTicker(r.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-progress.C:
			r.emitSnapshot(ctx, events.KindProgress)
		case <-heartbeat.C:
			r.emitSnapshot(ctx, events.KindHeartbeat)
		}
	}
}

// processRecord runs the processor under the per-record deadline. Once the
// deadline passes the runner stops waiting and records a timeout.
func (r *Runner) processRecord(ctx context.Context, rec ingest.Record) domain.Outcome {
	r.metrics.StartOperation("record")
	defer r.metrics.EndOperation("record")
	startTime := time.Now()
	defer func() {
		r.metrics.RecordDuration("record", time.Since(startTime).Seconds())
	}()

	recordCtx, cancelRecord := context.WithTimeout(ctx, r.cfg.RecordTimeout)
	defer cancelRecord()

	result := make(chan domain.Outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				result <- domain.Failed(rec.ID(), "", domain.ReasonInternalError, fmt.Errorf("panic: %v", p))
			}
		}()
		result <- r.processor.Process(recordCtx, rec)
	}()

	select {
	case o := <-result:
		return o
	case <-recordCtx.Done():
		if ctx.Err() != nil {
			return domain.Failed(rec.ID(), "", domain.ReasonInternalError, ctx.Err())
		}
		err := domain.NewDomainError(domain.ErrCodeTimeout, "record processing timed out", recordCtx.Err(), false)
		return domain.Failed(rec.ID(), "", domain.ReasonTimeout, err)
	}
}

// complete folds an outcome into the counters, the report and the event stream.
func (r *Runner) complete(ctx context.Context, report *Report, o domain.Outcome) {
	r.mu.Lock()
	switch o.Status {
	case domain.StatusOK:
		r.counters.OK++
	case domain.StatusSkipped:
		r.counters.Skipped++
	default:
		r.counters.Failed++
	}
	r.counters.Processed++
	r.mu.Unlock()

	fields := types.Fields{
		"ad_id":         o.ID,
		"status":        o.Status,
		"creative_type": o.CreativeType,
		"reason":        o.Reason,
	}
	switch o.Status {
	case domain.StatusOK:
		r.metrics.RecordSuccess("record")
		r.logger.Debug(ctx, "Record imported", fields)
	case domain.StatusSkipped:
		r.metrics.RecordSuccess("record_skipped")
		r.logger.Debug(ctx, "Record skipped", fields)
	default:
		r.metrics.RecordError("record", o.Reason)
		fields["error"] = o.Error
		r.logger.Warn(ctx, "Record failed", fields)
	}

	if err := report.Append(o); err != nil {
		r.logger.Error(ctx, "Failed to append report row", err, types.Fields{"ad_id": o.ID})
	}

	r.emitSnapshot(ctx, events.KindProgress)
}

func (r *Runner) snapshot() job.Counters {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters
}

func (r *Runner) emitSnapshot(ctx context.Context, kind events.Kind) {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()
	r.emit(ctx, events.New(kind, r.cfg.JobID, r.snapshot()))
}

func (r *Runner) emit(ctx context.Context, ev events.Event) {
	if err := r.emitter.Emit(ctx, ev); err != nil {
		r.logger.Warn(ctx, "Failed to emit event", types.Fields{
			"event": ev.Event,
			"error": err.Error(),
		})
	}
}
