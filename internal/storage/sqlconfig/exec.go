package sqlconfig

import (
	"context"
	"database/sql"
)

// Execer is the subset of database/sql shared by *sql.DB and *sql.Tx, so
// the same table code serves both direct reads and transaction-scoped
// writes.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
