package job

// Status is the lifecycle state of an import job.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
	StatusStopped Status = "stopped"
)

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusFailed || s == StatusStopped
}

// Failure reasons recorded on the job.
const (
	ReasonWorkerCrashed = "worker_crashed"
	ReasonStopRequested = "stop_requested"
	ReasonSpawnFailed   = "spawn_failed"
)
