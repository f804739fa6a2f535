package jobs

import (
	"context"
	"io"
	"os"
	"os/exec"

	"adimporter/shared/utils"
)

// SpawnSpec describes one worker launch.
type SpawnSpec struct {
	Env utils.WorkerEnv
	// Extra holds additional KEY=value pairs, e.g. a per-job LOG_LEVEL.
	Extra  []string
	Stderr io.Writer
}

// WorkerProcess is a running worker. Stdout must be drained before Wait.
type WorkerProcess interface {
	PID() int
	Stdout() io.Reader
	Signal(sig os.Signal) error
	Wait() error
}

// Spawner starts worker processes.
type Spawner interface {
	Spawn(ctx context.Context, spec SpawnSpec) (WorkerProcess, error)
}

// ExecSpawner runs the worker binary as a child process that inherits the
// orchestrator's environment plus the per-job IMPORT_* variables.
type ExecSpawner struct {
	Binary string
	Args   []string
	// Env is appended after the inherited environment.
	Env []string
}

// Spawn implements Spawner. The child is not bound to ctx; it outlives the
// request that started it.
func (s *ExecSpawner) Spawn(_ context.Context, spec SpawnSpec) (WorkerProcess, error) {
	cmd := exec.Command(s.Binary, s.Args...)
	cmd.Env = append(os.Environ(), s.Env...)
	cmd.Env = append(cmd.Env, spec.Extra...)
	cmd.Env = append(cmd.Env, spec.Env.Environ()...)
	cmd.Stderr = spec.Stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &execProcess{cmd: cmd, stdout: stdout}, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stdout io.Reader
}

func (p *execProcess) PID() int                   { return p.cmd.Process.Pid }
func (p *execProcess) Stdout() io.Reader          { return p.stdout }
func (p *execProcess) Signal(sig os.Signal) error { return p.cmd.Process.Signal(sig) }
func (p *execProcess) Wait() error                { return p.cmd.Wait() }
