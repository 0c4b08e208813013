package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestMetricsHandlerExposesPrometheusMetrics(t *testing.T) {
	metrics := NewMetrics()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	metrics.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}

	body := rr.Body.String()
	for _, name := range []string{"locadora_working_set_rentals", "locadora_overdue_rentals", "locadora_low_stock_items"} {
		if !strings.Contains(body, name) {
			t.Fatalf("expected body to contain %s, got: %s", name, body)
		}
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	metricsRR := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(metricsRR, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	metricsBody := metricsRR.Body.String()
	if !strings.Contains(metricsBody, "http_requests_total{code=\"418\",route=\"/test\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", metricsBody)
	}
	if !strings.Contains(metricsBody, "http_request_duration_seconds_bucket{route=\"/test\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", metricsBody)
	}
}

func TestRecordTransitionAndRefresh(t *testing.T) {
	metrics := NewMetrics()
	metrics.RecordTransition("extend", OutcomeSuccess)
	metrics.RecordTransition("extend", OutcomeSuccess)
	metrics.RecordTransition("cancel", OutcomeRejected)
	metrics.RecordRefresh(12, nil)
	metrics.Jobs().Track("rentals:overdue_scan").End(nil)
	metrics.Jobs().ObserveScan(3, -1)

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rr.Body.String()

	for _, want := range []string{
		`locadora_rental_transitions_total{kind="extend",outcome="success"} 2`,
		`locadora_rental_transitions_total{kind="cancel",outcome="rejected"} 1`,
		`locadora_working_set_refreshes_total{outcome="success"} 1`,
		`locadora_working_set_rentals 12`,
		`locadora_jobs_total{job="rentals:overdue_scan",status="success"} 1`,
		`locadora_overdue_rentals 3`,
		`locadora_low_stock_items 0`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected metrics to contain %q, got: %s", want, body)
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.RecordTransition("extend", OutcomeSuccess)
	metrics.RecordRefresh(1, nil)
	if metrics.Jobs() != nil {
		t.Fatal("expected nil job metrics")
	}
}
