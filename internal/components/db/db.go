package db

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	PrepareContext(context.Context, string) (*sql.Stmt, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{
		db: tx,
	}
}

// Exec runs a statement that has no generated query, it is used by the
// migration steps which change the structure of the schema.
func (q *Queries) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return q.db.ExecContext(ctx, query, args...)
}

// QueryInt runs a query returning a single integer.
func (q *Queries) QueryInt(ctx context.Context, query string, args ...any) (int64, error) {
	row := q.db.QueryRowContext(ctx, query, args...)
	var n sql.NullInt64
	err := row.Scan(&n)
	return n.Int64, err
}
