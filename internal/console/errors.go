package console

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/locadora/console/internal/inventory"
	"github.com/locadora/console/internal/platform/httpx"
	"github.com/locadora/console/internal/rental"
	"github.com/locadora/console/internal/rental/collection"
)

// translate tags domain errors with the httpx sentinel that selects their
// status code.
func translate(err error) error {
	switch {
	case errors.Is(err, rental.ErrValidation):
		return fmt.Errorf("%w: %w", httpx.ErrValidation, err)
	case errors.Is(err, rental.ErrNotFound):
		return fmt.Errorf("%w: %w", httpx.ErrNotFound, err)
	case errors.Is(err, collection.ErrTransitionInFlight):
		return fmt.Errorf("%w: %w", httpx.ErrConflict, err)
	case errors.Is(err, ErrDuplicateRequest):
		return fmt.Errorf("%w: %w", httpx.ErrDuplicate, err)
	case errors.Is(err, inventory.ErrInsufficientStock):
		return fmt.Errorf("%w: %w", httpx.ErrUnprocessable, err)
	case errors.Is(err, rental.ErrPersistence):
		return fmt.Errorf("%w: %w", httpx.ErrUpstream, err)
	default:
		return err
	}
}

// respondError writes err as a problem document. Validation, stock and backend
// failures carry their structured details.
func respondError(w http.ResponseWriter, err error) {
	var (
		verr *rental.ValidationError
		serr *inventory.ShortfallError
		perr *rental.PersistenceError
	)
	switch {
	case errors.As(err, &verr):
		p := httpx.ProblemDetail{Title: "Validation Failed", Status: http.StatusBadRequest, Detail: verr.Error()}
		if verr.Field != "" {
			p.Errors = map[string]string{verr.Field: verr.Reason}
		}
		httpx.WriteProblem(w, p)
	case errors.As(err, &serr):
		httpx.WriteProblem(w, httpx.ProblemDetail{
			Title:  "Insufficient Stock",
			Status: http.StatusUnprocessableEntity,
			Detail: serr.Error(),
			Data:   serr.Shortfalls,
		})
	case errors.As(err, &perr):
		httpx.WriteProblem(w, httpx.ProblemDetail{
			Title:    "Upstream Failure",
			Status:   http.StatusBadGateway,
			Detail:   perr.Error(),
			Upstream: map[string]any{"status": perr.Status, "status_text": perr.StatusText, "data": perr.Data},
		})
	default:
		httpx.RespondError(w, translate(err))
	}
}
