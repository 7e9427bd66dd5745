// Package libdbexec provides a thin executor abstraction over
// database/sql with driver-specific error translation, so store code
// matches on sentinel errors instead of driver error types. Postgres
// backs the server deployment; SQLite backs local single-process mode.
package libdbexec

import (
	"context"
	"database/sql"
	"errors"
)

var (
	ErrNotFound             = errors.New("libdb: not found")
	ErrTxFailed             = errors.New("libdb: transaction failed")
	ErrQueryCanceled        = errors.New("libdb: query canceled")
	ErrUniqueViolation      = errors.New("libdb: unique constraint violation")
	ErrForeignKeyViolation  = errors.New("libdb: foreign key violation")
	ErrNotNullViolation     = errors.New("libdb: not null violation")
	ErrCheckViolation       = errors.New("libdb: check constraint violation")
	ErrConstraintViolation  = errors.New("libdb: constraint violation")
	ErrDeadlockDetected     = errors.New("libdb: deadlock detected")
	ErrSerializationFailure = errors.New("libdb: serialization failure")
	ErrLockNotAvailable     = errors.New("libdb: lock not available")
	ErrDataTruncation       = errors.New("libdb: data truncation")
	ErrNumericOutOfRange    = errors.New("libdb: numeric value out of range")
	ErrInvalidInputSyntax   = errors.New("libdb: invalid input syntax")
	ErrUndefinedColumn      = errors.New("libdb: undefined column")
	ErrUndefinedTable       = errors.New("libdb: undefined table")
)

// QueryRower matches the Scan surface of *sql.Row.
type QueryRower interface {
	Scan(dest ...any) error
}

// Exec is the query surface handed to store code. It is satisfied both
// by direct connections and by open transactions.
type Exec interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) QueryRower
}

// CommitTx finalizes a transaction obtained from WithTransaction.
type CommitTx func(ctx context.Context) error

// ReleaseTx rolls the transaction back unless it was committed; safe to
// defer unconditionally.
type ReleaseTx func() error

// DBManager owns a database connection pool and hands out executors.
type DBManager interface {
	WithoutTransaction() Exec
	WithTransaction(ctx context.Context, onRollback ...func()) (Exec, CommitTx, ReleaseTx, error)
	Close() error
}
