package events

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adimporter/shared/domain/entity/job"
)

func TestParse_ValidEvents(t *testing.T) {
	tests := []struct {
		name string
		line string
		kind Kind
	}{
		{name: "started", line: `{"event":"started","job_id":"j1","pid":42,"ts":"2026-01-01T00:00:00Z"}`, kind: KindStarted},
		{name: "count", line: `{"event":"count","total":3}`, kind: KindCount},
		{name: "progress", line: `{"event":"progress","ok":1,"skipped":0,"failed":0,"processed":1,"total":3}`, kind: KindProgress},
		{name: "heartbeat", line: `  {"event":"heartbeat","ok":1,"skipped":1,"failed":0,"processed":2,"total":3}  `, kind: KindHeartbeat},
		{name: "done", line: `{"event":"done","status":"stopped","ok":1,"skipped":1,"failed":0,"processed":2,"total":3}`, kind: KindDone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, raw, err := Parse([]byte(tt.line))
			require.NoError(t, err)
			assert.Equal(t, tt.kind, ev.Event)
			assert.JSONEq(t, strings.TrimSpace(tt.line), string(raw))
		})
	}
}

func TestParse_RejectsDiagnostics(t *testing.T) {
	lines := []string{
		"",
		"plain log line",
		`{"level":"info","message":"not an event"}`,
		`{"event":"exploded"}`,
		`{"event":"progress","ok":1}`,
		`{"event":"done","status":"maybe","ok":0,"skipped":0,"failed":0,"processed":0,"total":0}`,
		`{"event":"count","total":-1}`,
		`{"event":"count","total":3`,
	}

	for _, line := range lines {
		_, _, err := Parse([]byte(line))
		assert.True(t, errors.Is(err, ErrNotEvent), "line %q should be a diagnostic, got %v", line, err)
	}
}

func TestWriter_EmitRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	ev := New(KindDone, "j1", job.Counters{OK: 2, Skipped: 1, Processed: 3, Total: 3})
	ev.Status = StatusCompleted
	ev.ReportPath = "/tmp/report.csv"
	require.NoError(t, w.Emit(context.Background(), ev))

	line := buf.String()
	assert.True(t, strings.HasSuffix(line, "\n"))

	parsed, _, err := Parse([]byte(line))
	require.NoError(t, err)
	assert.Equal(t, job.Counters{OK: 2, Skipped: 1, Processed: 3, Total: 3}, parsed.Counters)
	assert.Equal(t, StatusCompleted, parsed.Status)
	assert.Equal(t, "/tmp/report.csv", parsed.ReportPath)
}

func TestWriter_ConcurrentLinesStayWhole(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = w.Emit(context.Background(), New(KindProgress, "j1", job.Counters{Processed: n, Total: 50}))
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 50)
	for _, line := range lines {
		_, _, err := Parse([]byte(line))
		assert.NoError(t, err)
	}
}

type failingEmitter struct{ err error }

func (f failingEmitter) Emit(context.Context, Event) error { return f.err }

func TestMulti_JoinsErrors(t *testing.T) {
	var buf bytes.Buffer
	boom := errors.New("broker down")
	m := Multi{NewWriter(&buf), nil, failingEmitter{err: boom}}

	err := m.Emit(context.Background(), New(KindCount, "j1", job.Counters{Total: 1}))
	assert.ErrorIs(t, err, boom)
	assert.NotEmpty(t, buf.String(), "healthy emitters still receive the event")
}
