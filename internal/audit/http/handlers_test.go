package audithttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/locadora/console/internal/audit"
)

type stubTimelineService struct {
	result      audit.Result
	exportRows  []audit.TimelineRow
	err         error
	lastFilters audit.TimelineFilters
}

func (s *stubTimelineService) Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error) {
	s.lastFilters = filters
	return s.result, s.err
}

func (s *stubTimelineService) Export(ctx context.Context, filters audit.TimelineFilters) ([]audit.TimelineRow, error) {
	s.lastFilters = filters
	return s.exportRows, s.err
}

func newAuditRouter(service *stubTimelineService) http.Handler {
	handler := NewHandler(nil, service)
	handler.now = func() time.Time { return time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC) }
	r := chi.NewRouter()
	r.Route("/api", handler.MountRoutes)
	return r
}

func TestTimelineReturnsRows(t *testing.T) {
	rows := []audit.TimelineRow{{At: time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC), Actor: "req-1", Action: "rental:extend", Entity: "rental", EntityID: "7"}}
	service := &stubTimelineService{result: audit.Result{Rows: rows, Paging: audit.PagingInfo{Page: 1, PageSize: 20}}}
	router := newAuditRouter(service)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/audit?from=2024-03-01&to=2024-03-15&action=rental:extend", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body audit.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Rows, 1)
	assert.Equal(t, "req-1", body.Rows[0].Actor)
	assert.Equal(t, "2024-03-01", service.lastFilters.From.Format("2006-01-02"))
	assert.Equal(t, "rental:extend", service.lastFilters.Action)
}

func TestTimelineDefaultsToLastWeek(t *testing.T) {
	service := &stubTimelineService{}
	router := newAuditRouter(service)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/audit", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2024-03-08", service.lastFilters.From.Format("2006-01-02"))
	assert.Equal(t, "2024-03-15", service.lastFilters.To.Format("2006-01-02"))
}

func TestTimelineRejectsBadFilters(t *testing.T) {
	router := newAuditRouter(&stubTimelineService{})
	cases := map[string]string{
		"to":        "/api/audit?to=15/03/2024",
		"range":     "/api/audit?from=2024-03-10&to=2024-03-01",
		"page":      "/api/audit?page=0",
		"page_size": "/api/audit?page_size=x",
	}
	for field, path := range cases {
		t.Run(field, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), `"`+field+`"`)
		})
	}
}

func TestRentalHistoryScopesToRental(t *testing.T) {
	service := &stubTimelineService{}
	router := newAuditRouter(service)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/audit/rentals/7", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "rental", service.lastFilters.Entity)
	assert.Equal(t, "7", service.lastFilters.EntityID)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/audit/rentals/abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportCSV(t *testing.T) {
	service := &stubTimelineService{exportRows: []audit.TimelineRow{{Actor: "req-1", Action: "rental:cancel", Entity: "rental", EntityID: "8"}}}
	router := newAuditRouter(service)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/audit/export.csv?from=2024-03-01&to=2024-03-05", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/csv"))
	assert.Contains(t, rec.Body.String(), "rental:cancel")
}

func TestTimelineWithoutStorage(t *testing.T) {
	router := newAuditRouter(&stubTimelineService{err: audit.ErrNotConfigured})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/audit", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
