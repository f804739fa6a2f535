package utils

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Environment variables the orchestrator hands to a spawned worker.
const (
	EnvJobID        = "IMPORT_JOB_ID"
	EnvBatchFile    = "IMPORT_BATCH_FILE"
	EnvReportFile   = "IMPORT_REPORT_FILE"
	EnvStartedAfter = "IMPORT_STARTED_AFTER"
	EnvWorkDir      = "IMPORT_WORK_DIR"
)

// GetEnv returns the value of an environment variable or a default value if not set.
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvTime returns the value of an environment variable parsed as RFC3339,
// or defaultValue if not set. A malformed value is an error.
func GetEnvTime(key string, defaultValue time.Time) (time.Time, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}

	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", key, err)
	}
	return t.UTC(), nil
}

// WorkerEnv is the per-job environment of a worker process.
type WorkerEnv struct {
	JobID        string
	BatchFile    string
	ReportFile   string
	WorkDir      string
	StartedAfter time.Time
}

// LoadWorkerEnv reads the worker environment. StartedAfter defaults to now.
func LoadWorkerEnv() (WorkerEnv, error) {
	env := WorkerEnv{
		JobID:      GetEnv(EnvJobID, ""),
		BatchFile:  GetEnv(EnvBatchFile, ""),
		ReportFile: GetEnv(EnvReportFile, ""),
		WorkDir:    GetEnv(EnvWorkDir, ""),
	}

	var missing []string
	if env.JobID == "" {
		missing = append(missing, EnvJobID)
	}
	if env.BatchFile == "" {
		missing = append(missing, EnvBatchFile)
	}
	if env.ReportFile == "" {
		missing = append(missing, EnvReportFile)
	}
	if len(missing) > 0 {
		return WorkerEnv{}, errors.New("missing required environment: " + strings.Join(missing, ", "))
	}

	startedAfter, err := GetEnvTime(EnvStartedAfter, time.Now().UTC())
	if err != nil {
		return WorkerEnv{}, err
	}
	env.StartedAfter = startedAfter

	return env, nil
}

// Environ renders env as KEY=value pairs for exec.Cmd.Env.
func (e WorkerEnv) Environ() []string {
	vars := []string{
		EnvJobID + "=" + e.JobID,
		EnvBatchFile + "=" + e.BatchFile,
		EnvReportFile + "=" + e.ReportFile,
		EnvStartedAfter + "=" + e.StartedAfter.UTC().Format(time.RFC3339Nano),
	}
	if e.WorkDir != "" {
		vars = append(vars, EnvWorkDir+"="+e.WorkDir)
	}
	return vars
}
