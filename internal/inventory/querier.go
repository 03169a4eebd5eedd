package inventory

import (
	"context"
	"database/sql"
)

// querier is the part of *sql.DB and *sql.Tx the Postgres stores use.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type querierKey struct{}

// withTx makes the Postgres stores run their statements on tx for calls made
// with the returned context.
func withTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, querierKey{}, tx)
}

func querierFrom(ctx context.Context, db *sql.DB) querier {
	if tx, ok := ctx.Value(querierKey{}).(*sql.Tx); ok {
		return tx
	}
	return db
}
