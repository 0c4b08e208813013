package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/locadora/console/internal/inventory"
	"github.com/locadora/console/internal/observability"
	"github.com/locadora/console/internal/rental"
)

// Client wraps the rental backend's REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// ClientOption customises Client.
type ClientOption func(*Client)

// WithLogger sets the logger used for skipped records.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics counts skipped records.
func WithMetrics(m *observability.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// NewClient constructs a new client. A zero timeout defaults to 15 seconds.
func NewClient(baseURL string, timeout time.Duration, opts ...ClientOption) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ExtendRequest carries an extension.
type ExtendRequest struct {
	Days          int
	NewTotalValue decimal.Decimal
	Abatement     decimal.Decimal
	Reason        string
}

// CompleteEarlyRequest carries an early termination. NewFinalValue is nil when
// the amount owed is unchanged.
type CompleteEarlyRequest struct {
	NewEndDate    time.Time
	ReturnDate    time.Time
	NewFinalValue *decimal.Decimal
	Abatement     decimal.Decimal
	Reason        string
}

// Ping checks if the backend is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// ListRentals returns every rental known to the backend.
func (c *Client) ListRentals(ctx context.Context) ([]rental.Rental, error) {
	var payload []rentalDTO
	if err := c.do(ctx, http.MethodGet, "/locacoes", nil, &payload); err != nil {
		return nil, err
	}
	return c.mapListing("locacoes", payload), nil
}

// ListOverdueRentals returns the backend's view of expired rentals.
func (c *Client) ListOverdueRentals(ctx context.Context) ([]rental.Rental, error) {
	var payload []rentalDTO
	if err := c.do(ctx, http.MethodGet, "/locacoes/vencidas", nil, &payload); err != nil {
		return nil, err
	}
	return c.mapListing("locacoes_vencidas", payload), nil
}

func (c *Client) mapListing(source string, payload []rentalDTO) []rental.Rental {
	rentals, skipped := rentalsFromWire(payload)
	for _, rec := range skipped {
		c.logger.Warn("skipping malformed rental record",
			slog.String("source", source),
			slog.Int64("rental_id", rec.ID),
			slog.Any("error", rec.Err))
		c.metrics.RecordSkippedRecord(source)
	}
	return rentals
}

// CreateRental persists a new rental and returns the stored record.
func (c *Client) CreateRental(ctx context.Context, r rental.Rental) (rental.Rental, error) {
	var payload rentalDTO
	if err := c.do(ctx, http.MethodPost, "/locacoes", createRequestToWire(r), &payload); err != nil {
		return rental.Rental{}, err
	}
	return rentalFromWireChecked(payload)
}

// UpdateStatus changes a rental's stored status. returnDate is sent only when
// set.
func (c *Client) UpdateStatus(ctx context.Context, id int64, status rental.Status, returnDate *time.Time) (rental.Rental, error) {
	body := statusRequest{Status: statusToWire(status)}
	if returnDate != nil {
		body.ReturnDate = formatWireDate(*returnDate)
	}
	var payload rentalDTO
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/locacoes/%d/status", id), body, &payload); err != nil {
		return rental.Rental{}, err
	}
	return rentalFromWireChecked(payload)
}

// Extend persists an extension.
func (c *Client) Extend(ctx context.Context, id int64, in ExtendRequest) (rental.Rental, error) {
	var payload rentalDTO
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/locacoes/%d/prorrogar", id), extendRequestToWire(in), &payload); err != nil {
		return rental.Rental{}, err
	}
	return rentalFromWireChecked(payload)
}

// CompleteEarly persists an early termination.
func (c *Client) CompleteEarly(ctx context.Context, id int64, in CompleteEarlyRequest) (rental.Rental, error) {
	var payload rentalDTO
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/locacoes/%d/finalizar-antecipada", id), completeEarlyRequestToWire(in), &payload); err != nil {
		return rental.Rental{}, err
	}
	return rentalFromWireChecked(payload)
}

// Reactivate re-opens a completed rental.
func (c *Client) Reactivate(ctx context.Context, id int64) (rental.Rental, error) {
	var payload rentalDTO
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/locacoes/%d/reativar", id), struct{}{}, &payload); err != nil {
		return rental.Rental{}, err
	}
	return rentalFromWireChecked(payload)
}

// ListStock returns every inventory item.
func (c *Client) ListStock(ctx context.Context) ([]inventory.Item, error) {
	var payload []stockDTO
	if err := c.do(ctx, http.MethodGet, "/estoque", nil, &payload); err != nil {
		return nil, err
	}
	items := make([]inventory.Item, 0, len(payload))
	for _, dto := range payload {
		items = append(items, stockFromWire(dto))
	}
	return items, nil
}

// ReserveStock decrements an item's available quantity.
func (c *Client) ReserveStock(ctx context.Context, itemID int64, qty int) (inventory.Item, error) {
	return c.adjustStock(ctx, itemID, "reservar", qty)
}

// ReleaseStock increments an item's available quantity.
func (c *Client) ReleaseStock(ctx context.Context, itemID int64, qty int) (inventory.Item, error) {
	return c.adjustStock(ctx, itemID, "liberar", qty)
}

func (c *Client) adjustStock(ctx context.Context, itemID int64, action string, qty int) (inventory.Item, error) {
	var payload stockDTO
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/estoque/%d/%s", itemID, action), stockAdjustRequest{Quantity: qty}, &payload); err != nil {
		return inventory.Item{}, err
	}
	return stockFromWire(payload), nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("backend: encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("backend: build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", requestID(ctx))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &rental.PersistenceError{Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &rental.PersistenceError{Status: resp.StatusCode, StatusText: statusText(resp), Err: err}
	}
	if resp.StatusCode >= 400 {
		return &rental.PersistenceError{Status: resp.StatusCode, StatusText: statusText(resp), Data: decodeErrorBody(raw)}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &rental.PersistenceError{
			Status:     resp.StatusCode,
			StatusText: "malformed response",
			Data:       string(raw),
			Err:        err,
		}
	}
	return nil
}

func requestID(ctx context.Context) string {
	if id := middleware.GetReqID(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}

func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, fmt.Sprintf("%d", resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}

func decodeErrorBody(raw []byte) any {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}
	var data any
	if err := json.Unmarshal(trimmed, &data); err == nil {
		return data
	}
	return string(trimmed)
}

// IsUnreachable reports whether err is a persistence failure that never got an
// HTTP response.
func IsUnreachable(err error) bool {
	var perr *rental.PersistenceError
	return errors.As(err, &perr) && perr.Status == 0
}
