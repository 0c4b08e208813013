package shared

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type execCall struct {
	sql  string
	args []any
}

type fakeExecer struct {
	calls []execCall
	err   error
	tag   pgconn.CommandTag
}

func (f *fakeExecer) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	return f.tag, f.err
}

func TestAuditRecordUsesRequestIDAsActor(t *testing.T) {
	db := &fakeExecer{}
	logger := NewAuditLogger(db)
	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-42")

	err := logger.Record(ctx, AuditLog{Action: "rental:extend", Entity: "rental", EntityID: "7", Meta: map[string]any{"days": 10}})
	require.NoError(t, err)
	require.Len(t, db.calls, 1)
	args := db.calls[0].args
	assert.Equal(t, "req-42", args[0])
	assert.Equal(t, "rental:extend", args[1])

	var meta map[string]any
	require.NoError(t, json.Unmarshal(args[4].([]byte), &meta))
	assert.EqualValues(t, 10, meta["days"])
	assert.Nil(t, args[5])
}

func TestAuditRecordValidates(t *testing.T) {
	assert.ErrorIs(t, (*AuditLogger)(nil).Record(context.Background(), AuditLog{}), ErrNotInitialised)
	err := NewAuditLogger(&fakeExecer{}).Record(context.Background(), AuditLog{Action: "rental:cancel"})
	require.Error(t, err)
}

func TestIdempotencyConflict(t *testing.T) {
	db := &fakeExecer{err: &pgconn.PgError{Code: "23505"}}
	store := NewIdempotencyStore(db)

	err := store.CheckAndInsert(context.Background(), "k-1", "rentals.create")
	assert.ErrorIs(t, err, ErrIdempotencyConflict)

	db.err = errors.New("connection reset")
	err = store.CheckAndInsert(context.Background(), "k-1", "rentals.create")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrIdempotencyConflict)

	require.Error(t, store.CheckAndInsert(context.Background(), "", "rentals.create"))
}

func TestIdempotencyCleanup(t *testing.T) {
	db := &fakeExecer{tag: pgconn.NewCommandTag("DELETE 3")}
	store := NewIdempotencyStore(db)
	store.now = func() time.Time { return time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC) }

	n, err := store.Cleanup(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, time.Date(2024, 1, 19, 0, 0, 0, 0, time.UTC), db.calls[0].args[0])
}

func TestPaginationBounds(t *testing.T) {
	p := NewPagination(2, 10, 25)
	assert.Equal(t, 3, p.TotalPages)
	start, end := p.Bounds()
	assert.Equal(t, 10, start)
	assert.Equal(t, 20, end)

	start, end = NewPagination(4, 10, 25).Bounds()
	assert.Equal(t, 25, start)
	assert.Equal(t, 25, end)

	start, end = NewPagination(3, 10, 25).Bounds()
	assert.Equal(t, 20, start)
	assert.Equal(t, 25, end)

	start, end = NewPagination(math.MaxInt, MaxPerPage, 25).Bounds()
	assert.Equal(t, 25, start)
	assert.Equal(t, 25, end)

	start, end = NewPagination(1, 10, 0).Bounds()
	assert.Zero(t, start)
	assert.Zero(t, end)

	assert.Equal(t, MaxPerPage, NewPagination(1, 1000, 5).PerPage)
}
