package jobs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"adimporter/shared/domain/entity/job"
	"adimporter/shared/events"
	"adimporter/shared/observability/types"
)

const maxLineBytes = 1 << 20

// relay copies the worker's stdout into stdout.log and folds every protocol
// event into the job state. It returns once the worker has exited.
func (o *Orchestrator) relay(ctx context.Context, id string, h *handle, stdoutLog, stderrLog *os.File) {
	defer close(h.done)
	defer stderrLog.Close()
	defer stdoutLog.Close()

	scanner := bufio.NewScanner(h.proc.Stdout())
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	var diagnostics int
	for scanner.Scan() {
		line := scanner.Bytes()
		if _, err := fmt.Fprintf(stdoutLog, "%s\n", line); err != nil {
			o.logger.Warn(ctx, "Failed to write stdout log", types.Fields{"error": err.Error()})
		}

		ev, raw, err := events.Parse(line)
		if err != nil {
			diagnostics++
			o.logger.Debug(ctx, "Worker diagnostic", types.Fields{"line": string(line)})
			continue
		}
		if err := o.applyEvent(ctx, id, ev, raw); err != nil {
			o.logger.Error(ctx, "Failed to apply worker event", err, types.Fields{"event": ev.Event})
		}
	}
	if err := scanner.Err(); err != nil {
		o.logger.Warn(ctx, "Worker stdout relay interrupted", types.Fields{"error": err.Error()})
		// keep the pipe drained so the worker never blocks on a full buffer
		if _, err := io.Copy(stdoutLog, h.proc.Stdout()); err != nil {
			o.logger.Warn(ctx, "Failed to drain worker stdout", types.Fields{"error": err.Error()})
		}
	}

	fields := types.Fields{"pid": h.proc.PID(), "diagnostic_lines": diagnostics}
	if err := h.proc.Wait(); err != nil {
		fields["error"] = err.Error()
		o.logger.Warn(ctx, "Worker exited with error", fields)
		return
	}
	o.logger.Info(ctx, "Worker exited", fields)
}

// applyEvent merges ev into the stored job. The raw payload is kept per kind,
// last write wins; processed counters never move backwards.
func (o *Orchestrator) applyEvent(ctx context.Context, id string, ev *events.Event, raw []byte) error {
	_, err := o.store.Update(ctx, id, func(j *job.Job) error {
		if j.Events == nil {
			j.Events = job.Payloads{}
		}
		j.Events[string(ev.Event)] = append([]byte(nil), raw...)
		j.UpdatedAt = o.now()

		switch ev.Event {
		case events.KindStarted:
			if ev.PID > 0 {
				j.PID = ev.PID
			}
		case events.KindCount:
			j.Total = ev.Total
		case events.KindProgress, events.KindHeartbeat:
			if ev.Processed >= j.Processed {
				j.Counters = ev.Counters
			}
		case events.KindDone:
			j.Counters = ev.Counters
			if ev.ReportPath != "" {
				j.ReportPath = ev.ReportPath
			}
			status, reason := job.StatusDone, ""
			if ev.Status == events.StatusStopped {
				status, reason = job.StatusStopped, job.ReasonStopRequested
			}
			if err := j.Finish(status, reason, o.now()); err != nil && !errors.Is(err, job.ErrAlreadyTerminal) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if ev.Event == events.KindDone {
		o.metrics.RecordSuccess("job_" + ev.Status)
		o.logger.Info(ctx, "Import job finished", types.Fields{
			"status":    ev.Status,
			"ok":        ev.OK,
			"skipped":   ev.Skipped,
			"failed":    ev.Failed,
			"processed": ev.Processed,
			"total":     ev.Total,
		})
	}
	return nil
}
