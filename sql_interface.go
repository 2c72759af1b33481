package tkdb

import (
	"context"
	"database/sql"
)

// SqlInterface is the statement surface a Connection runs on - the *sql.DB pool, or the open *sql.Tx
// while a transaction is in progress
type SqlInterface interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

var (
	_ SqlInterface = (*sql.DB)(nil)
	_ SqlInterface = (*sql.Conn)(nil)
	_ SqlInterface = (*sql.Tx)(nil)
	_ SqlInterface = (*Connection)(nil)
)
