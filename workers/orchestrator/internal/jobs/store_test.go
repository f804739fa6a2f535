package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adimporter/shared/domain/entity/job"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Create(ctx, job.New("job-1", 2, time.Now())))
	assert.Error(t, store.Create(ctx, job.New("job-1", 2, time.Now())))

	t.Run("get returns a copy", func(t *testing.T) {
		j, err := store.Get(ctx, "job-1")
		require.NoError(t, err)
		j.Status = job.StatusDone

		again, err := store.Get(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, job.StatusQueued, again.Status)
	})

	t.Run("update applies fn", func(t *testing.T) {
		j, err := store.Update(ctx, "job-1", func(j *job.Job) error {
			return j.MarkRunning(7, time.Now())
		})
		require.NoError(t, err)
		assert.Equal(t, job.StatusRunning, j.Status)
	})

	t.Run("failed update leaves the job untouched", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := store.Update(ctx, "job-1", func(j *job.Job) error {
			j.PID = 99
			return boom
		})
		assert.ErrorIs(t, err, boom)

		j, err := store.Get(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, 7, j.PID)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := store.Get(ctx, "nope")
		assert.ErrorIs(t, err, job.ErrJobNotFound)
		_, err = store.Update(ctx, "nope", func(*job.Job) error { return nil })
		assert.ErrorIs(t, err, job.ErrJobNotFound)
	})
}
