package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PgRepository reads console_audit_logs.
type PgRepository struct {
	db Querier
}

// NewRepository builds a Postgres backed repository.
func NewRepository(db Querier) *PgRepository {
	return &PgRepository{db: db}
}

// Timeline implements Repository.
func (r *PgRepository) Timeline(ctx context.Context, q Query) ([]TimelineRow, error) {
	sql, args := buildTimelineQuery(q)
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: query timeline: %w", err)
	}
	defer rows.Close()

	out := make([]TimelineRow, 0)
	for rows.Next() {
		var (
			row  TimelineRow
			meta []byte
		)
		if err := rows.Scan(&row.At, &row.Actor, &row.Action, &row.Entity, &row.EntityID, &meta); err != nil {
			return nil, fmt.Errorf("audit: scan timeline: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &row.Meta); err != nil {
				return nil, fmt.Errorf("audit: decode meta: %w", err)
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate timeline: %w", err)
	}
	return out, nil
}

// buildTimelineQuery renders the filtered select. To is inclusive of the whole
// day it names.
func buildTimelineQuery(q Query) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if !q.From.IsZero() {
		add("occurred_at >= $%d", q.From)
	}
	if !q.To.IsZero() {
		add("occurred_at < $%d", q.To.Add(24*time.Hour))
	}
	if q.Actor != "" {
		add("actor = $%d", q.Actor)
	}
	if q.Entity != "" {
		add("entity = $%d", q.Entity)
	}
	if q.EntityID != "" {
		add("entity_id = $%d", q.EntityID)
	}
	if q.Action != "" {
		add("action = $%d", q.Action)
	}

	var b strings.Builder
	b.WriteString("SELECT occurred_at, actor, action, entity, entity_id, meta FROM console_audit_logs")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY occurred_at DESC, id DESC")
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		fmt.Fprintf(&b, " OFFSET $%d", len(args))
	}
	return b.String(), args
}
