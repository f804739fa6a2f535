package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"adimporter/shared/database"
	"adimporter/shared/domain/entity/job"
	"adimporter/shared/observability"
)

const jobsTable = "import_jobs"

var jobColumns = []string{
	"id", "status", "reason", "pid", "work_dir", "report_path",
	"stop_requested_at", "created_at", "started_at", "finished_at", "updated_at",
	"events", "ok", "skipped", "failed", "processed", "total",
}

// JobRepository is the durable import job registry.
type JobRepository struct {
	baseRepository
}

// NewJobRepository creates a JobRepository.
func NewJobRepository(db database.Database, logger observability.Logger, metrics observability.Metrics) *JobRepository {
	return &JobRepository{baseRepository: newBaseRepository(db, logger, metrics, jobsTable)}
}

// Create inserts a new job.
func (r *JobRepository) Create(ctx context.Context, j *job.Job) error {
	start := time.Now()
	values, err := jobValues(j)
	if err != nil {
		return err
	}
	query, args, err := r.qb.Insert(jobsTable).
		Columns(jobColumns...).
		Values(values...).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	_, err = r.db.Execute(ctx, query, args...)
	r.observe("create", start, err)
	if err != nil {
		return fmt.Errorf("create job %s: %w", j.ID, err)
	}
	return nil
}

// Get loads a job by id.
func (r *JobRepository) Get(ctx context.Context, id string) (*job.Job, error) {
	start := time.Now()
	query, args, err := selectJobQuery(r.qb, id, false).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var j job.Job
	err = r.db.Get(ctx, &j, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		r.observe("get", start, nil)
		return nil, job.ErrJobNotFound
	}
	r.observe("get", start, err)
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return &j, nil
}

// Update applies fn to the job under a row lock and writes the result back.
// fn may return an error to abort without writing.
func (r *JobRepository) Update(ctx context.Context, id string, fn func(*job.Job) error) (*job.Job, error) {
	start := time.Now()
	var updated *job.Job

	err := r.db.Transaction(ctx, func(tx database.Transaction) error {
		query, args, err := selectJobQuery(r.qb, id, true).ToSql()
		if err != nil {
			return fmt.Errorf("build query: %w", err)
		}

		var j job.Job
		if err := tx.Get(ctx, &j, query, args...); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return job.ErrJobNotFound
			}
			return err
		}

		if err := fn(&j); err != nil {
			return err
		}

		q, err := updateJobQuery(r.qb, &j)
		if err != nil {
			return err
		}
		query, args, err = q.ToSql()
		if err != nil {
			return fmt.Errorf("build query: %w", err)
		}
		if _, err := tx.Execute(ctx, query, args...); err != nil {
			return err
		}

		updated = &j
		return nil
	})
	r.observe("update", start, err)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func selectJobQuery(qb squirrel.StatementBuilderType, id string, forUpdate bool) squirrel.SelectBuilder {
	q := qb.Select(jobColumns...).
		From(jobsTable).
		Where(squirrel.Eq{"id": id})
	if forUpdate {
		q = q.Suffix("FOR UPDATE")
	}
	return q
}

func updateJobQuery(qb squirrel.StatementBuilderType, j *job.Job) (squirrel.UpdateBuilder, error) {
	values, err := jobValues(j)
	if err != nil {
		return squirrel.UpdateBuilder{}, err
	}
	q := qb.Update(jobsTable)
	// id is the key, never rewritten
	for i, col := range jobColumns[1:] {
		q = q.Set(col, values[i+1])
	}
	return q.Where(squirrel.Eq{"id": j.ID}), nil
}

func jobValues(j *job.Job) ([]interface{}, error) {
	events, err := j.Events.Value()
	if err != nil {
		return nil, fmt.Errorf("encode events of job %s: %w", j.ID, err)
	}
	return []interface{}{
		j.ID, string(j.Status), j.Reason, j.PID, j.WorkDir, j.ReportPath,
		j.StopRequestedAt, j.CreatedAt, j.StartedAt, j.FinishedAt, j.UpdatedAt,
		events, j.OK, j.Skipped, j.Failed, j.Processed, j.Total,
	}, nil
}
