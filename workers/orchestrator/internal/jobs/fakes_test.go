package jobs

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"adimporter/shared/cancel"
	"adimporter/shared/domain/entity/job"
	"adimporter/shared/events"
	"adimporter/shared/observability/mocks"
)

// fakeProcess is a worker whose stdout the test writes to.
type fakeProcess struct {
	pid    int
	reader *io.PipeReader
	writer *io.PipeWriter

	mu      sync.Mutex
	signals []os.Signal
}

func newFakeProcess(pid int) *fakeProcess {
	r, w := io.Pipe()
	return &fakeProcess{pid: pid, reader: r, writer: w}
}

func (p *fakeProcess) PID() int          { return p.pid }
func (p *fakeProcess) Stdout() io.Reader { return p.reader }
func (p *fakeProcess) Wait() error       { return nil }

func (p *fakeProcess) Signal(sig os.Signal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signals = append(p.signals, sig)
	return nil
}

func (p *fakeProcess) received() []os.Signal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]os.Signal(nil), p.signals...)
}

func (p *fakeProcess) emit(t *testing.T, ev events.Event) {
	t.Helper()
	data, err := ev.Marshal()
	require.NoError(t, err)
	_, err = p.writer.Write(append(data, '\n'))
	require.NoError(t, err)
}

func (p *fakeProcess) print(t *testing.T, line string) {
	t.Helper()
	_, err := io.WriteString(p.writer, line+"\n")
	require.NoError(t, err)
}

func (p *fakeProcess) exit() { p.writer.Close() }

// fakeSpawner hands out a prepared process or fails.
type fakeSpawner struct {
	proc  *fakeProcess
	err   error
	specs []SpawnSpec
}

func (s *fakeSpawner) Spawn(_ context.Context, spec SpawnSpec) (WorkerProcess, error) {
	s.specs = append(s.specs, spec)
	if s.err != nil {
		return nil, s.err
	}
	return s.proc, nil
}

var errSpawn = errors.New("exec: no such file")

func newTestOrchestrator(t *testing.T, spawner Spawner) (*Orchestrator, *MemoryStore, string) {
	t.Helper()
	dir := t.TempDir()
	store := NewMemoryStore()
	o := New(
		Config{WorkDir: dir, DebugTailLines: 10},
		store,
		spawner,
		cancel.NewFileSignal(dir),
		mocks.NewPermissiveLogger(),
		mocks.NewPermissiveMetrics(),
	)
	o.newID = func() string { return "job-1" }
	return o, store, dir
}

func waitForJob(t *testing.T, o *Orchestrator, id string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, o.Wait(ctx, id))
}

func counters(ok, skipped, failed, total int) job.Counters {
	return job.Counters{OK: ok, Skipped: skipped, Failed: failed, Processed: ok + skipped + failed, Total: total}
}
