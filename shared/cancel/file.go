package cancel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// FileName is the token file inside a job's work directory.
const FileName = "cancel.json"

type token struct {
	JobID       string    `json:"job_id"`
	RequestedAt time.Time `json:"requested_at"`
}

// FileSignal stores tokens as <root>/<job_id>/cancel.json.
type FileSignal struct {
	root string
}

// NewFileSignal creates a FileSignal rooted at the jobs work directory.
func NewFileSignal(root string) *FileSignal {
	return &FileSignal{root: root}
}

// Path returns the token path for jobID.
func (s *FileSignal) Path(jobID string) string {
	return filepath.Join(s.root, jobID, FileName)
}

// Request writes the token through a rename so readers never see half a file.
func (s *FileSignal) Request(_ context.Context, jobID string, at time.Time) error {
	data, err := json.Marshal(token{JobID: jobID, RequestedAt: at.UTC()})
	if err != nil {
		return err
	}

	path := s.Path(jobID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return os.Rename(tmp, path)
}

// Requested reads the token. A token tagged with another job id is ignored.
func (s *FileSignal) Requested(_ context.Context, jobID string) (time.Time, bool, error) {
	data, err := os.ReadFile(s.Path(jobID))
	if errors.Is(err, fs.ErrNotExist) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read token: %w", err)
	}

	var t token
	if err := json.Unmarshal(data, &t); err != nil {
		return time.Time{}, false, fmt.Errorf("decode token: %w", err)
	}
	if t.JobID != jobID {
		return time.Time{}, false, nil
	}
	return t.RequestedAt, true, nil
}
