package cancel

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adimporter/shared/domain/entity/job"
	"adimporter/shared/observability/mocks"
)

func TestFileSignal_RequestAndRead(t *testing.T) {
	s := NewFileSignal(t.TempDir())
	ctx := context.Background()

	_, ok, err := s.Requested(ctx, "job-1")
	require.NoError(t, err)
	assert.False(t, ok)

	at := time.Date(2026, 5, 1, 12, 0, 0, 123, time.UTC)
	require.NoError(t, s.Request(ctx, "job-1", at))

	got, ok, err := s.Requested(ctx, "job-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, got.Equal(at))
}

func TestFileSignal_IgnoresTokenForOtherJob(t *testing.T) {
	root := t.TempDir()
	s := NewFileSignal(root)
	ctx := context.Background()

	require.NoError(t, s.Request(ctx, "job-1", time.Now()))
	require.NoError(t, os.MkdirAll(root+"/job-2", 0o755))
	data, err := os.ReadFile(s.Path("job-1"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(s.Path("job-2"), data, 0o644))

	_, ok, err := s.Requested(ctx, "job-2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHonored(t *testing.T) {
	start := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, Honored(start, start))
	assert.True(t, Honored(start.Add(time.Second), start))
	assert.False(t, Honored(start.Add(-time.Second), start))
}

func TestWatch_IgnoresStaleToken(t *testing.T) {
	s := NewFileSignal(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	start := time.Now()
	require.NoError(t, s.Request(ctx, "job-1", start.Add(-time.Hour)))

	stopped := Watch(ctx, s, "job-1", start, 5*time.Millisecond, mocks.NewPermissiveLogger())

	select {
	case <-stopped:
		t.Fatal("stale token must not stop the run")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, s.Request(ctx, "job-1", time.Now()))

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("fresh token was not observed")
	}
}

type memStore struct {
	mu   sync.Mutex
	jobs map[string]*job.Job
}

func (m *memStore) Get(_ context.Context, id string) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, job.ErrJobNotFound
	}
	return j.Clone(), nil
}

func (m *memStore) Update(_ context.Context, id string, fn func(*job.Job) error) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, job.ErrJobNotFound
	}
	if err := fn(j); err != nil {
		return nil, err
	}
	return j.Clone(), nil
}

func TestStoreSignal(t *testing.T) {
	store := &memStore{jobs: map[string]*job.Job{"job-1": job.New("job-1", 1, time.Now())}}
	s := NewStoreSignal(store)
	ctx := context.Background()

	_, ok, err := s.Requested(ctx, "job-1")
	require.NoError(t, err)
	assert.False(t, ok)

	at := time.Now()
	require.NoError(t, s.Request(ctx, "job-1", at))

	got, ok, err := s.Requested(ctx, "job-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, got.Equal(at))

	assert.ErrorIs(t, s.Request(ctx, "missing", at), job.ErrJobNotFound)
}
