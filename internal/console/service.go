package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/locadora/console/internal/alerts"
	"github.com/locadora/console/internal/backend"
	"github.com/locadora/console/internal/inventory"
	"github.com/locadora/console/internal/observability"
	"github.com/locadora/console/internal/rental"
	"github.com/locadora/console/internal/rental/collection"
	"github.com/locadora/console/internal/shared"
)

// BackendPort is the subset of the rental backend the console drives.
type BackendPort interface {
	ListRentals(ctx context.Context) ([]rental.Rental, error)
	CreateRental(ctx context.Context, r rental.Rental) (rental.Rental, error)
	UpdateStatus(ctx context.Context, id int64, status rental.Status, returnDate *time.Time) (rental.Rental, error)
	Extend(ctx context.Context, id int64, in backend.ExtendRequest) (rental.Rental, error)
	CompleteEarly(ctx context.Context, id int64, in backend.CompleteEarlyRequest) (rental.Rental, error)
	Reactivate(ctx context.Context, id int64) (rental.Rental, error)
}

// StockPort exposes the inventory checks and side effects.
type StockPort interface {
	CheckAvailability(ctx context.Context, lines []rental.LineItem) ([]inventory.Shortfall, error)
	ApplyIntents(ctx context.Context, rentalID int64, intents []rental.InventoryIntent) error
}

// AlertsPort serves and invalidates the alerts feed.
type AlertsPort interface {
	Feed(ctx context.Context, now time.Time) (alerts.Feed, error)
	Invalidate(ctx context.Context)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards rental creation against replays.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

const idempotencyModule = "rentals.create"

// ErrDuplicateRequest is returned when an idempotency key was already used.
var ErrDuplicateRequest = errors.New("console: request already processed")

// Service keeps the working set of rentals and runs lifecycle transitions
// against the backend.
type Service struct {
	backend     BackendPort
	stock       StockPort
	alerts      AlertsPort
	audit       AuditPort
	idempotency IdempotencyPort
	metrics     *observability.Metrics
	logger      *slog.Logger

	working    *collection.Collection
	refreshes  singleflight.Group
	stale      atomic.Bool
	staleAfter time.Duration
	clock      func() time.Time
}

// Option customises Service.
type Option func(*Service)

// WithAudit records transitions in the audit trail.
func WithAudit(audit AuditPort) Option {
	return func(s *Service) { s.audit = audit }
}

// WithIdempotency enables Idempotency-Key handling on creation.
func WithIdempotency(store IdempotencyPort) Option {
	return func(s *Service) { s.idempotency = store }
}

// WithMetrics records transition and refresh outcomes.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

// WithStaleAfter reloads the working set when it is older than d. Zero
// disables age based reloads.
func WithStaleAfter(d time.Duration) Option {
	return func(s *Service) { s.staleAfter = d }
}

// NewService constructs the console service.
func NewService(backend BackendPort, stock StockPort, alerts AlertsPort, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		backend: backend,
		stock:   stock,
		alerts:  alerts,
		logger:  logger,
		working: collection.New(),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the service clock reading.
func (s *Service) Now() time.Time {
	return s.clock()
}

// Refresh reloads the working set from the backend. Concurrent calls share a
// single backend request, which outlives the caller that started it and is
// bounded by the backend client timeout.
func (s *Service) Refresh(ctx context.Context) (int, error) {
	loadCtx := context.WithoutCancel(ctx)
	ch := s.refreshes.DoChan("rentals", func() (interface{}, error) {
		rentals, err := s.backend.ListRentals(loadCtx)
		s.metrics.RecordRefresh(len(rentals), err)
		if err != nil {
			return 0, fmt.Errorf("console: refresh: %w", err)
		}
		s.working.Load(rentals, s.clock())
		s.stale.Store(false)
		s.logger.Debug("working set loaded", slog.Int("rentals", len(rentals)))
		return len(rentals), nil
	})
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return 0, res.Err
		}
		return res.Val.(int), nil
	}
}

// MarkStale forces the next read to reload the working set.
func (s *Service) MarkStale() {
	s.stale.Store(true)
}

// reloadMissing reloads the working set once after a lookup of id missed.
// It reports whether the reload succeeded.
func (s *Service) reloadMissing(ctx context.Context, id int64) bool {
	s.MarkStale()
	if _, err := s.Refresh(ctx); err != nil {
		s.logger.Warn("reload for missing rental", slog.Int64("rental_id", id), slog.Any("error", err))
		return false
	}
	return true
}

func (s *Service) ensureLoaded(ctx context.Context) error {
	loadedAt := s.working.LoadedAt()
	expired := s.staleAfter > 0 && s.clock().Sub(loadedAt) > s.staleAfter
	if !loadedAt.IsZero() && !s.stale.Load() && !expired {
		return nil
	}
	if _, err := s.Refresh(ctx); err != nil {
		if loadedAt.IsZero() {
			return err
		}
		s.logger.Warn("serving previous working set", slog.Time("loaded_at", loadedAt), slog.Any("error", err))
	}
	return nil
}

// List returns the filtered, sorted view of the working set.
func (s *Service) List(ctx context.Context, opts collection.ViewOptions) ([]rental.Rental, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	opts.Now = s.clock()
	return s.working.View(opts), nil
}

// Get returns one rental of the working set.
func (s *Service) Get(ctx context.Context, id int64) (rental.Rental, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return rental.Rental{}, err
	}
	rec, err := s.working.Get(id)
	if errors.Is(err, rental.ErrNotFound) && s.reloadMissing(ctx, id) {
		return s.working.Get(id)
	}
	return rec, err
}

// Overdue returns expired rentals, most overdue first.
func (s *Service) Overdue(ctx context.Context) ([]rental.OverdueEntry, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	now := s.clock()
	return rental.OverdueEntries(s.working.Filter(rental.BucketExpired, now), now), nil
}

// Report summarises the working set.
func (s *Service) Report(ctx context.Context) (rental.StatusReport, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return rental.StatusReport{}, err
	}
	return rental.Summarize(s.working.All(), s.clock()), nil
}

// Alerts returns the alerts feed.
func (s *Service) Alerts(ctx context.Context) (alerts.Feed, error) {
	return s.alerts.Feed(ctx, s.clock())
}

// Result is a persisted rental after a write, with the bucket it now falls in.
// Warnings list side effects that failed after the backend accepted the write.
type Result struct {
	Rental   rental.Rental `json:"rental"`
	Bucket   rental.Bucket `json:"bucket"`
	Warnings []string      `json:"warnings,omitempty"`
}

// CreateInput describes a rental registration request.
type CreateInput struct {
	rental.NewRentalInput
	IdempotencyKey string
}

// Create validates the rental, checks stock, persists it and reserves its
// items.
func (s *Service) Create(ctx context.Context, in CreateInput) (Result, error) {
	out, err := rental.NewRental(in.NewRentalInput)
	if err != nil {
		return Result{}, err
	}
	shortfalls, err := s.stock.CheckAvailability(ctx, out.Rental.Items)
	if err != nil {
		return Result{}, err
	}
	if len(shortfalls) > 0 {
		return Result{}, &inventory.ShortfallError{Shortfalls: shortfalls}
	}

	if in.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, in.IdempotencyKey, idempotencyModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return Result{}, fmt.Errorf("%w: key %s", ErrDuplicateRequest, in.IdempotencyKey)
			}
			return Result{}, fmt.Errorf("console: idempotency: %w", err)
		}
	}

	created, err := s.backend.CreateRental(ctx, out.Rental)
	if err != nil {
		if in.IdempotencyKey != "" && s.idempotency != nil {
			if delErr := s.idempotency.Delete(ctx, in.IdempotencyKey); delErr != nil {
				s.logger.Warn("release idempotency key", slog.String("key", in.IdempotencyKey), slog.Any("error", delErr))
			}
		}
		return Result{}, err
	}

	now := s.clock()
	res := Result{Rental: created, Bucket: rental.Classify(created, now)}
	if err := s.stock.ApplyIntents(ctx, created.ID, out.Intents); err != nil {
		s.logger.Error("reserve stock for new rental", slog.Int64("rental_id", created.ID), slog.Any("error", err))
		res.Warnings = append(res.Warnings, err.Error())
	}
	s.working.Upsert(created)
	s.record(ctx, shared.AuditLog{
		Action:   "rental:create",
		Entity:   "rental",
		EntityID: strconv.FormatInt(created.ID, 10),
		Meta:     map[string]any{"client_id": created.ClientID, "note_number": created.NoteNumber, "agreed_days": created.AgreedDays},
		At:       now,
	})
	s.alerts.Invalidate(ctx)
	return res, nil
}

// Transition runs cmd against rental id. The engine validates it first, then
// the backend persists it and its response replaces the held record. On any
// failure before persistence the working set is untouched.
func (s *Service) Transition(ctx context.Context, id int64, cmd rental.Command) (Result, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return Result{}, err
	}
	kind := string(cmd.Kind)
	err := s.working.Begin(id)
	if errors.Is(err, rental.ErrNotFound) && s.reloadMissing(ctx, id) {
		err = s.working.Begin(id)
	}
	if err != nil {
		if errors.Is(err, collection.ErrTransitionInFlight) {
			s.metrics.RecordTransition(kind, observability.OutcomeConflict)
		}
		return Result{}, err
	}
	defer s.working.End(id)

	now := s.clock()
	before, err := s.working.Get(id)
	if err != nil {
		return Result{}, err
	}
	out, err := s.working.Preview(id, cmd, now)
	if err != nil {
		s.metrics.RecordTransition(kind, observability.OutcomeRejected)
		return Result{}, err
	}

	persisted, err := s.persist(ctx, id, cmd, out)
	if err != nil {
		s.metrics.RecordTransition(kind, observability.OutcomeBackendErr)
		s.logger.Warn("persist transition", slog.Int64("rental_id", id), slog.String("kind", kind), slog.Any("error", err))
		return Result{}, err
	}
	if persisted.ID == 0 {
		persisted = out.Rental
	}
	if err := s.working.Replace(persisted); err != nil {
		s.working.Upsert(persisted)
	}

	res := Result{Rental: persisted, Bucket: rental.Classify(persisted, now)}
	if err := s.stock.ApplyIntents(ctx, id, out.Intents); err != nil {
		s.logger.Error("apply stock intents", slog.Int64("rental_id", id), slog.String("kind", kind), slog.Any("error", err))
		res.Warnings = append(res.Warnings, err.Error())
	}
	meta := map[string]any{"from": string(before.Status), "to": string(persisted.Status)}
	if cmd.Reason != "" {
		meta["reason"] = cmd.Reason
	}
	if cmd.Kind == rental.TransitionExtend {
		meta["days"] = cmd.Days
	}
	s.record(ctx, shared.AuditLog{
		Action:   "rental:" + kind,
		Entity:   "rental",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
		At:       now,
	})
	s.metrics.RecordTransition(kind, observability.OutcomeSuccess)
	s.alerts.Invalidate(ctx)
	return res, nil
}

func (s *Service) persist(ctx context.Context, id int64, cmd rental.Command, out rental.Outcome) (rental.Rental, error) {
	next := out.Rental
	switch cmd.Kind {
	case rental.TransitionConfirmReturn:
		return s.backend.UpdateStatus(ctx, id, rental.StatusCompleted, next.ReturnDate)
	case rental.TransitionCancel:
		return s.backend.UpdateStatus(ctx, id, rental.StatusCancelled, nil)
	case rental.TransitionExtend:
		return s.backend.Extend(ctx, id, backend.ExtendRequest{
			Days:          cmd.Days,
			NewTotalValue: cmd.NewTotalValue,
			Abatement:     cmd.Abatement,
			Reason:        cmd.Reason,
		})
	case rental.TransitionCompleteEarly:
		req := backend.CompleteEarlyRequest{
			NewEndDate:    next.CurrentEndDate,
			NewFinalValue: cmd.NewFinalValue,
			Abatement:     cmd.Abatement,
			Reason:        cmd.Reason,
		}
		if next.ReturnDate != nil {
			req.ReturnDate = *next.ReturnDate
		}
		return s.backend.CompleteEarly(ctx, id, req)
	case rental.TransitionReactivate:
		return s.backend.Reactivate(ctx, id)
	default:
		return rental.Rental{}, fmt.Errorf("console: no persistence for %q", cmd.Kind)
	}
}

func (s *Service) record(ctx context.Context, log shared.AuditLog) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Warn("audit record", slog.String("action", log.Action), slog.Any("error", err))
	}
}
