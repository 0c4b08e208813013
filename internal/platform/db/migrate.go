package db

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

//go:embed schema.sql
var schema string

// Statements returns the schema split into individual statements.
func Statements() []string {
	parts := strings.Split(schema, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if stmt := strings.TrimSpace(p); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

// Migrate creates the audit and idempotency tables when missing. Every
// statement is idempotent.
func Migrate(ctx context.Context, db TxBeginner) error {
	return WithTx(ctx, db, func(tx pgx.Tx) error {
		for i, stmt := range Statements() {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("platform/db: migrate statement %d: %w", i+1, err)
			}
		}
		return nil
	})
}
