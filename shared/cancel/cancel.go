// Package cancel carries cooperative cancellation tokens between the
// orchestrator and a running worker. A token is a job id plus the time the
// stop was requested; the worker polls for it and honors only tokens stamped
// at or after its own start, so a token left over from an earlier run with
// the same id is ignored.
package cancel

import (
	"context"
	"time"

	"adimporter/shared/observability"
)

// Signal is an out-of-band cancellation transport.
type Signal interface {
	// Request records a stop request for jobID stamped with at.
	Request(ctx context.Context, jobID string, at time.Time) error

	// Requested returns the stamp of the pending request, if any.
	Requested(ctx context.Context, jobID string) (time.Time, bool, error)
}

// Honored applies the staleness guard.
func Honored(requestedAt, startedAt time.Time) bool {
	return !requestedAt.Before(startedAt)
}

// Watch polls sig every interval and closes the returned channel once an
// honored token for jobID shows up. Transport errors are logged and polling
// continues. The goroutine exits when ctx is done.
func Watch(ctx context.Context, sig Signal, jobID string, startedAt time.Time, interval time.Duration, logger observability.Logger) <-chan struct{} {
	stopped := make(chan struct{})

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			at, ok, err := sig.Requested(ctx, jobID)
			switch {
			case err != nil:
				if ctx.Err() != nil {
					return
				}
				logger.Warn(ctx, "Cancellation poll failed", observability.Fields{"error": err.Error()})
			case ok && Honored(at, startedAt):
				logger.Info(ctx, "Stop requested", observability.Fields{"requested_at": at})
				close(stopped)
				return
			case ok:
				logger.Debug(ctx, "Ignoring stale stop request", observability.Fields{
					"requested_at": at,
					"started_at":   startedAt,
				})
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return stopped
}
