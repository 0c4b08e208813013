package console

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/locadora/console/internal/platform/httpx"
	"github.com/locadora/console/internal/rental"
	"github.com/locadora/console/internal/rental/collection"
	"github.com/locadora/console/internal/shared"
)

// Handler exposes the rental console JSON API.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the console handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers rental routes. refreshLimit wraps the refresh
// endpoint and may be nil.
func (h *Handler) MountRoutes(r chi.Router, refreshLimit func(http.Handler) http.Handler) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/overdue", h.handleOverdue)
	if refreshLimit != nil {
		r.With(refreshLimit).Post("/refresh", h.handleRefresh)
	} else {
		r.Post("/refresh", h.handleRefresh)
	}
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Post("/return", h.handleConfirmReturn)
		r.Post("/complete-early", h.handleCompleteEarly)
		r.Post("/extend", h.handleExtend)
		r.Post("/cancel", h.handleCancel)
		r.Post("/reactivate", h.handleReactivate)
	})
}

// HandleAlerts serves the alerts feed.
func (h *Handler) HandleAlerts(w http.ResponseWriter, r *http.Request) {
	feed, err := h.service.Alerts(r.Context())
	if err != nil {
		h.fail(w, "alerts feed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, feed)
}

// HandleStatusReport serves the status report of the working set.
func (h *Handler) HandleStatusReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Report(r.Context())
	if err != nil {
		h.fail(w, "status report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := collection.ViewOptions{
		Bucket:     rental.BucketAll,
		Search:     q.Get("q"),
		Sort:       collection.SortField(q.Get("sort")),
		Descending: strings.EqualFold(q.Get("order"), "desc"),
	}
	if raw := q.Get("bucket"); raw != "" {
		bucket, ok := rental.ParseBucket(raw)
		if !ok {
			h.invalidParam(w, "bucket", raw)
			return
		}
		opts.Bucket = bucket
	}
	if !opts.Sort.IsValid() {
		h.invalidParam(w, "sort", string(opts.Sort))
		return
	}
	page, perPage := 1, 0
	for name, dst := range map[string]*int{"page": &page, "per_page": &perPage} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.invalidParam(w, name, raw)
			return
		}
		*dst = n
	}
	rows, err := h.service.List(r.Context(), opts)
	if err != nil {
		h.fail(w, "list rentals", err)
		return
	}
	pagination := shared.NewPagination(page, perPage, len(rows))
	start, end := pagination.Bounds()
	httpx.JSON(w, http.StatusOK, map[string]any{
		"bucket":     opts.Bucket,
		"count":      len(rows),
		"pagination": pagination,
		"rentals":    viewsOf(rows[start:end], h.service.Now()),
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.rentalID(w, r)
	if !ok {
		return
	}
	rec, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get rental", err)
		return
	}
	httpx.JSON(w, http.StatusOK, viewOf(rec, h.service.Now()))
}

func (h *Handler) handleOverdue(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.Overdue(r.Context())
	if err != nil {
		h.fail(w, "list overdue", err)
		return
	}
	now := h.service.Now()
	rows := make([]rentalView, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, viewOf(e.Rental, now))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"count": len(rows), "rentals": rows})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.Refresh(r.Context())
	if err != nil {
		h.fail(w, "refresh working set", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rentals": n, "loaded_at": h.service.Now()})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !h.decode(w, r, &req) {
		return
	}
	start, ok := rental.ParseDate(req.StartDate)
	if !ok {
		respondError(w, &rental.ValidationError{Field: "start_date", Reason: "invalid date"})
		return
	}
	res, err := h.service.Create(r.Context(), req.input(start, r.Header.Get("Idempotency-Key")))
	if err != nil {
		h.fail(w, "create rental", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, h.result(res))
}

func (h *Handler) handleConfirmReturn(w http.ResponseWriter, r *http.Request) {
	var req returnRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	var returnDate *time.Time
	if req.ReturnDate != "" {
		d, ok := rental.ParseDate(req.ReturnDate)
		if !ok {
			respondError(w, &rental.ValidationError{Field: "return_date", Reason: "invalid date"})
			return
		}
		returnDate = &d
	}
	h.transition(w, r, rental.ConfirmReturn(returnDate))
}

func (h *Handler) handleCompleteEarly(w http.ResponseWriter, r *http.Request) {
	var req completeEarlyRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.transition(w, r, rental.CompleteEarly(req.NewFinalValue, req.Abatement, req.Reason))
}

func (h *Handler) handleExtend(w http.ResponseWriter, r *http.Request) {
	var req extendRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.transition(w, r, rental.Extend(req.Days, req.NewTotalValue, req.Abatement, req.Reason))
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	h.transition(w, r, rental.Cancel(req.Reason))
}

func (h *Handler) handleReactivate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, rental.Reactivate())
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, cmd rental.Command) {
	id, ok := h.rentalID(w, r)
	if !ok {
		return
	}
	res, err := h.service.Transition(r.Context(), id, cmd)
	if err != nil {
		h.fail(w, "rental transition", err, slog.Int64("rental_id", id), slog.String("kind", string(cmd.Kind)))
		return
	}
	httpx.JSON(w, http.StatusOK, h.result(res))
}

func (h *Handler) result(res Result) map[string]any {
	out := map[string]any{
		"rental": viewOf(res.Rental, h.service.Now()),
		"bucket": res.Bucket,
	}
	if len(res.Warnings) > 0 {
		out["warnings"] = res.Warnings
	}
	return out
}

func (h *Handler) rentalID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		h.invalidParam(w, "id", raw)
		return 0, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		fields := map[string]string{}
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				fields[fe.Namespace()] = fe.Tag()
			}
		}
		httpx.WriteProblem(w, httpx.ProblemDetail{Title: "Validation Failed", Status: http.StatusBadRequest, Errors: fields})
		return false
	}
	return true
}

func (h *Handler) invalidParam(w http.ResponseWriter, name, value string) {
	httpx.WriteProblem(w, httpx.ProblemDetail{
		Title:  "Validation Failed",
		Status: http.StatusBadRequest,
		Errors: map[string]string{name: "invalid value " + strconv.Quote(value)},
	})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error, attrs ...any) {
	attrs = append(attrs, slog.Any("error", err))
	switch {
	case errors.Is(err, rental.ErrPersistence):
		h.logger.Warn(op, attrs...)
	case errors.Is(err, rental.ErrValidation), errors.Is(err, rental.ErrNotFound),
		errors.Is(err, collection.ErrTransitionInFlight), errors.Is(err, ErrDuplicateRequest):
		h.logger.Debug(op, attrs...)
	default:
		h.logger.Error(op, attrs...)
	}
	respondError(w, err)
}
