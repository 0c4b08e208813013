package audit

import (
	"context"
	"errors"
	"strings"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	// MaxExportRows caps CSV exports.
	MaxExportRows = 5000
)

// ErrNotConfigured is returned when no repository is wired, typically because
// Postgres is unavailable.
var ErrNotConfigured = errors.New("audit: repository not configured")

// Repository reads the audit trail.
type Repository interface {
	Timeline(ctx context.Context, q Query) ([]TimelineRow, error)
}

// Service coordinates audit timeline reads.
type Service struct {
	repo Repository
}

// NewService creates a new audit timeline service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of the audit trail, newest first.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s == nil || s.repo == nil {
		return Result{}, ErrNotConfigured
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	q := queryFrom(filters)
	q.Offset = (page - 1) * pageSize
	q.Limit = pageSize + 1

	rows, err := s.repo.Timeline(ctx, q)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	if rows == nil {
		rows = []TimelineRow{}
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export returns every row matching filters, up to MaxExportRows.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	if s == nil || s.repo == nil {
		return nil, ErrNotConfigured
	}
	q := queryFrom(filters)
	q.Limit = MaxExportRows
	return s.repo.Timeline(ctx, q)
}

func queryFrom(f TimelineFilters) Query {
	return Query{
		From:     f.From,
		To:       f.To,
		Actor:    strings.TrimSpace(f.Actor),
		Entity:   strings.TrimSpace(f.Entity),
		EntityID: strings.TrimSpace(f.EntityID),
		Action:   strings.TrimSpace(f.Action),
	}
}
