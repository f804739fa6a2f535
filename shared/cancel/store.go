package cancel

import (
	"context"
	"time"

	"adimporter/shared/domain/entity/job"
)

// JobStore is the part of the job registry the store transport needs.
type JobStore interface {
	Get(ctx context.Context, id string) (*job.Job, error)
	Update(ctx context.Context, id string, fn func(*job.Job) error) (*job.Job, error)
}

// StoreSignal keeps tokens in the job registry's stop_requested_at column,
// for deployments where the worker cannot see the orchestrator's disk.
type StoreSignal struct {
	store JobStore
}

// NewStoreSignal creates a StoreSignal.
func NewStoreSignal(store JobStore) *StoreSignal {
	return &StoreSignal{store: store}
}

// Request implements Signal.
func (s *StoreSignal) Request(ctx context.Context, jobID string, at time.Time) error {
	_, err := s.store.Update(ctx, jobID, func(j *job.Job) error {
		j.RequestStop(at)
		return nil
	})
	return err
}

// Requested implements Signal.
func (s *StoreSignal) Requested(ctx context.Context, jobID string) (time.Time, bool, error) {
	j, err := s.store.Get(ctx, jobID)
	if err != nil {
		return time.Time{}, false, err
	}
	if j.StopRequestedAt == nil {
		return time.Time{}, false, nil
	}
	return *j.StopRequestedAt, true, nil
}
