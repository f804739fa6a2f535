// Package job holds the ImportJob entity owned by the orchestrator.
package job

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Counters are the cumulative per-run record tallies.
type Counters struct {
	OK        int `db:"ok" json:"ok"`
	Skipped   int `db:"skipped" json:"skipped"`
	Failed    int `db:"failed" json:"failed"`
	Processed int `db:"processed" json:"processed"`
	Total     int `db:"total" json:"total"`
}

// Payloads keeps the last raw payload per event kind. It is stored as JSONB.
type Payloads map[string]json.RawMessage

// Value implements driver.Valuer.
func (p Payloads) Value() (driver.Value, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p)
}

// Scan implements sql.Scanner.
func (p *Payloads) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*p = Payloads{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported payloads type %T", src)
	}
	out := Payloads{}
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*p = out
	return nil
}

// Job is one batch-processing run.
type Job struct {
	ID              string     `db:"id" json:"jobId"`
	Status          Status     `db:"status" json:"status"`
	Reason          string     `db:"reason" json:"reason,omitempty"`
	PID             int        `db:"pid" json:"pid,omitempty"`
	WorkDir         string     `db:"work_dir" json:"-"`
	ReportPath      string     `db:"report_path" json:"reportPath,omitempty"`
	StopRequestedAt *time.Time `db:"stop_requested_at" json:"stopRequestedAt,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"createdAt"`
	StartedAt       *time.Time `db:"started_at" json:"startedAt,omitempty"`
	FinishedAt      *time.Time `db:"finished_at" json:"finishedAt,omitempty"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updatedAt"`
	Events          Payloads   `db:"events" json:"events"`

	Counters `json:"counters"`
}

// New creates a queued job for a batch of total records.
func New(id string, total int, now time.Time) *Job {
	return &Job{
		ID:        id,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
		Events:    Payloads{},
		Counters:  Counters{Total: total},
	}
}

// MarkRunning moves a queued job to running.
func (j *Job) MarkRunning(pid int, now time.Time) error {
	if j.Status != StatusQueued && j.Status != StatusRunning {
		return ErrInvalidStateTransition
	}
	j.Status = StatusRunning
	j.PID = pid
	if j.StartedAt == nil {
		j.StartedAt = &now
	}
	j.UpdatedAt = now
	return nil
}

// Finish moves the job to a terminal status. Terminal jobs are left as they are.
func (j *Job) Finish(status Status, reason string, now time.Time) error {
	if !status.IsTerminal() {
		return ErrInvalidStateTransition
	}
	if j.Status.IsTerminal() {
		return ErrAlreadyTerminal
	}
	j.Status = status
	j.Reason = reason
	j.FinishedAt = &now
	j.UpdatedAt = now
	return nil
}

// RequestStop records the first stop request.
func (j *Job) RequestStop(now time.Time) {
	if j.StopRequestedAt == nil {
		j.StopRequestedAt = &now
	}
	j.UpdatedAt = now
}

// StopRequested reports whether a stop has been requested.
func (j *Job) StopRequested() bool {
	return j.StopRequestedAt != nil
}

// Clone returns a deep copy so stores can hand out snapshots.
func (j *Job) Clone() *Job {
	c := *j
	c.Events = make(Payloads, len(j.Events))
	for k, v := range j.Events {
		c.Events[k] = append(json.RawMessage(nil), v...)
	}
	if j.StopRequestedAt != nil {
		t := *j.StopRequestedAt
		c.StopRequestedAt = &t
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}
