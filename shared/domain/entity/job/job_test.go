package job

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJob_Lifecycle(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	j := New("job-1", 3, now)

	assert.Equal(t, StatusQueued, j.Status)
	assert.Equal(t, 3, j.Total)

	require.NoError(t, j.MarkRunning(1234, now.Add(time.Second)))
	assert.Equal(t, StatusRunning, j.Status)
	assert.Equal(t, 1234, j.PID)

	require.NoError(t, j.Finish(StatusDone, "", now.Add(time.Minute)))
	assert.True(t, j.Status.IsTerminal())

	assert.ErrorIs(t, j.Finish(StatusFailed, ReasonWorkerCrashed, now), ErrAlreadyTerminal)
	assert.ErrorIs(t, j.MarkRunning(1, now), ErrInvalidStateTransition)
	assert.Equal(t, StatusDone, j.Status)
}

func TestJob_FinishRejectsNonTerminal(t *testing.T) {
	j := New("job-1", 1, time.Now())
	assert.ErrorIs(t, j.Finish(StatusRunning, "", time.Now()), ErrInvalidStateTransition)
}

func TestJob_RequestStopKeepsFirstTimestamp(t *testing.T) {
	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	j := New("job-1", 1, first)

	j.RequestStop(first)
	j.RequestStop(first.Add(time.Hour))

	require.True(t, j.StopRequested())
	assert.Equal(t, first, *j.StopRequestedAt)
}

func TestJob_CloneIsDeep(t *testing.T) {
	j := New("job-1", 1, time.Now())
	j.Events["progress"] = json.RawMessage(`{"ok":1}`)
	j.RequestStop(time.Now())

	c := j.Clone()
	c.Events["progress"][2] = 'X'
	*c.StopRequestedAt = time.Time{}

	assert.JSONEq(t, `{"ok":1}`, string(j.Events["progress"]))
	assert.False(t, j.StopRequestedAt.IsZero())
}

func TestPayloads_ScanValue(t *testing.T) {
	p := Payloads{"done": json.RawMessage(`{"status":"completed"}`)}
	v, err := p.Value()
	require.NoError(t, err)

	var out Payloads
	require.NoError(t, out.Scan(v))
	assert.JSONEq(t, `{"status":"completed"}`, string(out["done"]))

	require.NoError(t, out.Scan(nil))
	assert.Empty(t, out)
	assert.Error(t, out.Scan(42))
}
