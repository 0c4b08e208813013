package shared

import (
	"context"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is the part of *pgxpool.Pool and pgx.Tx the stores use.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}
