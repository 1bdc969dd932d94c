package pgx

import (
	"context"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// Store implements the graph store and the vector index on PostgreSQL with
// pgvector. All operations are safe for concurrent use; fingerprint
// uniqueness is enforced by the schema, not by application locks.
type Store struct {
	conn pgxIConn
}

// NewWithConnection wraps an existing connection or pool. The connection must
// have the pgvector types registered.
func NewWithConnection(conn pgxIConn) *Store {
	return &Store{conn: conn}
}
