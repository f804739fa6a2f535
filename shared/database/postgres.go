// Package database wraps a PostgreSQL connection pool (sqlx over lib/pq)
// with per-operation metrics. The creative and job repositories are its only
// callers.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"adimporter/shared/config"
	"adimporter/shared/observability"
)

const connectTimeout = 5 * time.Second

// DB is the PostgreSQL Database.
type DB struct {
	queryer
	pool *sqlx.DB
}

// NewPostgres opens the pool described by cfg and fails unless the server
// answers a ping within a few seconds.
func NewPostgres(ctx context.Context, cfg *config.DatabaseConfig, logger observability.Logger, metrics observability.Metrics) (*DB, error) {
	fields := observability.Fields{"host": cfg.Host, "port": cfg.Port, "database": cfg.Database}

	pool, err := sqlx.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	pool.SetMaxOpenConns(cfg.MaxOpenConns)
	pool.SetMaxIdleConns(cfg.MaxIdleConns)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := pool.PingContext(pingCtx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info(ctx, "PostgreSQL connected", fields)
	return &DB{
		queryer: queryer{ext: pool, logger: logger, metrics: metrics},
		pool:    pool,
	}, nil
}

// Transaction commits when fn returns nil and rolls back otherwise. A panic
// in fn rolls back and is re-raised.
func (d *DB) Transaction(ctx context.Context, fn func(tx Transaction) error) (err error) {
	start := time.Now()
	defer func() { d.observe("transaction", start, err) }()

	tx, err := d.pool.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(&queryer{ext: tx, logger: d.logger, metrics: d.metrics}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			d.logger.Error(ctx, "Rollback failed", rbErr, nil)
		}
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (d *DB) Ping(ctx context.Context) error {
	return d.pool.PingContext(ctx)
}

func (d *DB) Close() error {
	return d.pool.Close()
}

// queryer runs statements against the pool or an open transaction.
type queryer struct {
	ext     sqlx.ExtContext
	logger  observability.Logger
	metrics observability.Metrics
}

func (q *queryer) Execute(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	start := time.Now()
	res, err := q.ext.ExecContext(ctx, query, args...)
	q.observe("execute", start, err)
	return res, err
}

func (q *queryer) Get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	start := time.Now()
	err := sqlx.GetContext(ctx, q.ext, dest, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		// a missing row is an answer
		q.observe("get", start, nil)
		return err
	}
	q.observe("get", start, err)
	return err
}

func (q *queryer) Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	start := time.Now()
	err := sqlx.SelectContext(ctx, q.ext, dest, query, args...)
	q.observe("select", start, err)
	return err
}

func (q *queryer) observe(op string, start time.Time, err error) {
	q.metrics.RecordDuration(op, time.Since(start).Seconds())
	if err != nil {
		q.metrics.RecordError(op, "query")
		return
	}
	q.metrics.RecordSuccess(op)
}
