// Package repository persists creatives, creative cards and import jobs in
// PostgreSQL. Statements are built with squirrel and executed through the
// sqlx-backed database wrapper.
package repository

import (
	"time"

	"github.com/Masterminds/squirrel"

	"adimporter/shared/database"
	"adimporter/shared/observability"
)

type baseRepository struct {
	db      database.Database
	logger  observability.Logger
	metrics observability.Metrics
	table   string
	qb      squirrel.StatementBuilderType
}

func newBaseRepository(db database.Database, logger observability.Logger, metrics observability.Metrics, table string) baseRepository {
	return baseRepository{
		db:      db,
		logger:  logger,
		metrics: metrics,
		table:   table,
		qb:      statementBuilder(),
	}
}

func statementBuilder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// observe records the outcome of one repository operation.
func (r *baseRepository) observe(operation string, start time.Time, err error) {
	op := r.table + "_" + operation
	r.metrics.RecordDuration(op, time.Since(start).Seconds())
	if err != nil {
		r.metrics.RecordError(op, "database")
		return
	}
	r.metrics.RecordSuccess(op)
}
