package inventory

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/locadora/console/internal/platform/httpx"
	"github.com/locadora/console/internal/rental"
)

// Handler wires HTTP endpoints for stock.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	threshold int
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service, lowStockThreshold int) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New(), threshold: lowStockThreshold}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Get("/low", h.handleLowStock)
	r.Post("/availability", h.handleAvailability)
}

type stockRow struct {
	Item
	LowStock bool `json:"low_stock"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list stock", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	rows := make([]stockRow, 0, len(items))
	for _, item := range items {
		rows = append(rows, stockRow{Item: item, LowStock: item.QuantityTotal > 0 && item.QuantityAvailable <= h.threshold})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": rows, "threshold": h.threshold})
}

func (h *Handler) handleLowStock(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list low stock", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": LowStock(items, h.threshold), "threshold": h.threshold})
}

type availabilityLine struct {
	ModelID  int64 `json:"model_id" validate:"required,gt=0"`
	Quantity int   `json:"quantity" validate:"required,gt=0"`
}

type availabilityRequest struct {
	Lines []availabilityLine `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) handleAvailability(w http.ResponseWriter, r *http.Request) {
	var req availabilityRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		fields := map[string]string{}
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				fields[fe.Namespace()] = fe.Tag()
			}
		}
		httpx.WriteProblem(w, httpx.ProblemDetail{Title: "Validation Failed", Status: http.StatusBadRequest, Errors: fields})
		return
	}
	lines := make([]rental.LineItem, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, rental.LineItem{ModelID: l.ModelID, Quantity: l.Quantity})
	}
	shortfalls, err := h.service.CheckAvailability(r.Context(), lines)
	if err != nil {
		h.logger.Error("check availability", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"available": len(shortfalls) == 0, "shortfalls": shortfalls})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var perr *rental.PersistenceError
	if errors.As(err, &perr) {
		httpx.WriteProblem(w, httpx.ProblemDetail{
			Title:    "Upstream Failure",
			Status:   http.StatusBadGateway,
			Detail:   perr.Error(),
			Upstream: map[string]any{"status": perr.Status, "status_text": perr.StatusText, "data": perr.Data},
		})
		return
	}
	httpx.RespondError(w, err)
}
