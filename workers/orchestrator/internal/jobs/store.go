package jobs

import (
	"context"
	"errors"
	"sync"

	"adimporter/shared/domain/entity/job"
)

// ErrInvalidBatch is returned by Start when the upload cannot be normalized.
var ErrInvalidBatch = errors.New("invalid batch")

// ErrSpawnFailed is returned by Start when the worker process cannot be started.
var ErrSpawnFailed = errors.New("failed to spawn worker")

// Store is the keyed job registry. repository.JobRepository is the durable
// implementation; MemoryStore serves tests and local runs.
type Store interface {
	Create(ctx context.Context, j *job.Job) error
	Get(ctx context.Context, id string) (*job.Job, error)
	// Update applies fn atomically; an error from fn aborts the write.
	Update(ctx context.Context, id string, fn func(*job.Job) error) (*job.Job, error)
}

// MemoryStore keeps jobs in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*job.Job
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*job.Job)}
}

// Create implements Store.
func (s *MemoryStore) Create(_ context.Context, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[j.ID]; exists {
		return errors.New("job already exists: " + j.ID)
	}
	s.jobs[j.ID] = j.Clone()
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, job.ErrJobNotFound
	}
	return j.Clone(), nil
}

// Update implements Store.
func (s *MemoryStore) Update(_ context.Context, id string, fn func(*job.Job) error) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[id]
	if !ok {
		return nil, job.ErrJobNotFound
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	s.jobs[id] = next
	return next.Clone(), nil
}
