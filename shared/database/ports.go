package database

import (
	"context"
	"database/sql"
)

// Queryer runs statements. The pool and an open transaction both satisfy it,
// so repository helpers can be shared between the two.
type Queryer interface {
	Execute(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	Get(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// Transaction is a Queryer bound to one open transaction.
type Transaction interface {
	Queryer
}

// Database is the connection pool the repositories are built on.
type Database interface {
	Queryer

	// Transaction runs fn in a transaction, rolling back on error or panic.
	Transaction(ctx context.Context, fn func(tx Transaction) error) error
	Ping(ctx context.Context) error
	Close() error
}
