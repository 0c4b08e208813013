package shared

import "math"

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// MaxPerPage caps the page size accepted from clients.
const MaxPerPage = 200

// NewPagination computes pagination metadata. perPage <= 0 defaults to 50 and
// is capped at MaxPerPage.
func NewPagination(page, perPage, total int) Pagination {
	if perPage <= 0 {
		perPage = 50
	}
	perPage = min(perPage, MaxPerPage)
	if page <= 0 {
		page = 1
	}
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

// Bounds returns the half-open index range of the current page, clamped to
// Total. Pages past the last one yield an empty range.
func (p Pagination) Bounds() (start, end int) {
	if p.PerPage <= 0 || p.Total <= 0 {
		return 0, 0
	}
	switch {
	case p.Page <= 1:
		start = 0
	case p.Page-1 > p.Total/p.PerPage:
		start = p.Total
	default:
		start = min((p.Page-1)*p.PerPage, p.Total)
	}
	end = start + min(p.PerPage, p.Total-start)
	return start, end
}
