// Package events defines the line-oriented protocol a worker uses to report
// progress to its orchestrator: one JSON object per line with an "event"
// discriminator. Lines that are not valid events are diagnostics, never
// errors for the stream as a whole.
package events

import (
	"encoding/json"
	"time"

	"adimporter/shared/domain/entity/job"
)

// Kind discriminates events.
type Kind string

const (
	KindStarted   Kind = "started"
	KindCount     Kind = "count"
	KindProgress  Kind = "progress"
	KindHeartbeat Kind = "heartbeat"
	KindDone      Kind = "done"
)

// Terminal statuses carried by a done event.
const (
	StatusCompleted = "completed"
	StatusStopped   = "stopped"
)

// Event is one protocol message.
type Event struct {
	Event      Kind      `json:"event"`
	JobID      string    `json:"job_id,omitempty"`
	PID        int       `json:"pid,omitempty"`
	TS         time.Time `json:"ts"`
	Status     string    `json:"status,omitempty"`
	ReportPath string    `json:"report_path,omitempty"`

	job.Counters
}

// New builds an event of kind stamped with the current time.
func New(kind Kind, jobID string, counters job.Counters) Event {
	return Event{
		Event:    kind,
		JobID:    jobID,
		TS:       time.Now().UTC(),
		Counters: counters,
	}
}

// Marshal encodes the event as a single line without the trailing newline.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
