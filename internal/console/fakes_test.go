package console

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/locadora/console/internal/alerts"
	"github.com/locadora/console/internal/backend"
	"github.com/locadora/console/internal/inventory"
	"github.com/locadora/console/internal/rental"
	"github.com/locadora/console/internal/shared"
)

var testNow = rental.Date(2024, time.January, 20).Add(10 * time.Hour)

func fixedClock() time.Time { return testNow }

func fixtureRentals() []rental.Rental {
	start := rental.Date(2024, time.January, 1)
	end, _ := rental.ComputeEndDate(start, 10)
	overdue := rental.Rental{
		ID:                    7,
		ClientID:              3,
		ClientName:            "Construtora Alfa",
		NoteNumber:            "N-0007",
		StartDate:             start,
		AgreedDays:            10,
		OriginalEndDate:       end,
		CurrentEndDate:        end,
		TotalValue:            decimal.NewFromInt(400),
		AmountPaidAtDelivery:  decimal.NewFromInt(100),
		AmountReceivableFinal: decimal.NewFromInt(300),
		Status:                rental.StatusActive,
		Items: []rental.LineItem{
			{ModelID: 11, ModelName: "Andaime", Quantity: 3, Unit: "un"},
			{ModelID: 12, ModelName: "Betoneira", Quantity: 5, Unit: "un"},
		},
	}

	running := overdue.Clone()
	running.ID = 8
	running.ClientName = "Beatriz Lima"
	running.NoteNumber = "N-0008"
	running.StartDate = rental.Date(2024, time.January, 15)
	running.OriginalEndDate = rental.Date(2024, time.January, 24)
	running.CurrentEndDate = running.OriginalEndDate

	returned := rental.Date(2024, time.January, 5)
	done := overdue.Clone()
	done.ID = 9
	done.ClientName = "Ótica Central"
	done.NoteNumber = "N-0009"
	done.Status = rental.StatusCompleted
	done.ReturnDate = &returned

	return []rental.Rental{overdue, running, done}
}

type fakeBackend struct {
	mu        sync.Mutex
	rentals   map[int64]rental.Rental
	order     []int64
	nextID    int64
	listCalls int
	writes    int
	failWith  error
	gate      chan struct{}
}

func newFakeBackend(rentals []rental.Rental) *fakeBackend {
	b := &fakeBackend{rentals: make(map[int64]rental.Rental), nextID: 100}
	for _, r := range rentals {
		b.rentals[r.ID] = r.Clone()
		b.order = append(b.order, r.ID)
	}
	return b
}

func (b *fakeBackend) ListRentals(ctx context.Context) ([]rental.Rental, error) {
	b.mu.Lock()
	b.listCalls++
	gate := b.gate
	b.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failWith != nil {
		return nil, b.failWith
	}
	out := make([]rental.Rental, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.rentals[id].Clone())
	}
	return out, nil
}

// add stores r as if another console had created it.
func (b *fakeBackend) add(r rental.Rental) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rentals[r.ID] = r.Clone()
	b.order = append(b.order, r.ID)
}

func (b *fakeBackend) CreateRental(ctx context.Context, r rental.Rental) (rental.Rental, error) {
	return b.write(0, func(rental.Rental) rental.Rental {
		b.nextID++
		r.ID = b.nextID
		b.order = append(b.order, r.ID)
		return r
	})
}

func (b *fakeBackend) UpdateStatus(ctx context.Context, id int64, status rental.Status, returnDate *time.Time) (rental.Rental, error) {
	return b.write(id, func(r rental.Rental) rental.Rental {
		r.Status = status
		r.ReturnDate = returnDate
		return r
	})
}

func (b *fakeBackend) Extend(ctx context.Context, id int64, in backend.ExtendRequest) (rental.Rental, error) {
	return b.write(id, func(r rental.Rental) rental.Rental {
		total := in.NewTotalValue
		r.CurrentEndDate = rental.AddDays(r.CurrentEndDate, in.Days)
		r.RevisedTotalValue = &total
		r.Abatement = in.Abatement
		r.AmountReceivableFinal = total.Sub(in.Abatement)
		r.AdjustmentReason = in.Reason
		return r
	})
}

func (b *fakeBackend) CompleteEarly(ctx context.Context, id int64, in backend.CompleteEarlyRequest) (rental.Rental, error) {
	return b.write(id, func(r rental.Rental) rental.Rental {
		returned := in.ReturnDate
		r.Status = rental.StatusCompleted
		r.ReturnDate = &returned
		r.CurrentEndDate = in.NewEndDate
		return r
	})
}

func (b *fakeBackend) Reactivate(ctx context.Context, id int64) (rental.Rental, error) {
	return b.write(id, func(r rental.Rental) rental.Rental {
		r.Status = rental.StatusActive
		r.ReturnDate = nil
		return r
	})
}

func (b *fakeBackend) write(id int64, fn func(rental.Rental) rental.Rental) (rental.Rental, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writes++
	if b.failWith != nil {
		return rental.Rental{}, b.failWith
	}
	current := rental.Rental{}
	if id != 0 {
		var ok bool
		current, ok = b.rentals[id]
		if !ok {
			return rental.Rental{}, &rental.PersistenceError{Status: 404, StatusText: "Not Found"}
		}
	}
	next := fn(current.Clone())
	b.rentals[next.ID] = next.Clone()
	return next, nil
}

type fakeStock struct {
	mu         sync.Mutex
	shortfalls []inventory.Shortfall
	applied    map[int64][]rental.InventoryIntent
	applyErr   error
}

func newFakeStock() *fakeStock {
	return &fakeStock{applied: make(map[int64][]rental.InventoryIntent)}
}

func (s *fakeStock) CheckAvailability(ctx context.Context, lines []rental.LineItem) ([]inventory.Shortfall, error) {
	return s.shortfalls, nil
}

func (s *fakeStock) ApplyIntents(ctx context.Context, rentalID int64, intents []rental.InventoryIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applyErr != nil {
		return s.applyErr
	}
	s.applied[rentalID] = append(s.applied[rentalID], intents...)
	return nil
}

type fakeAlerts struct {
	mu            sync.Mutex
	invalidations int
}

func (a *fakeAlerts) Feed(ctx context.Context, now time.Time) (alerts.Feed, error) {
	return alerts.Feed{GeneratedAt: now, Alerts: []alerts.Alert{}}, nil
}

func (a *fakeAlerts) Invalidate(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.invalidations++
}

type memoryAudit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (a *memoryAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]string
}

func (m *memoryIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys == nil {
		m.keys = make(map[string]string)
	}
	if _, ok := m.keys[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = module
	return nil
}

func (m *memoryIdempotency) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

type harness struct {
	svc     *Service
	backend *fakeBackend
	stock   *fakeStock
	alerts  *fakeAlerts
	audit   *memoryAudit
	idem    *memoryIdempotency
}

func newHarness() *harness {
	h := &harness{
		backend: newFakeBackend(fixtureRentals()),
		stock:   newFakeStock(),
		alerts:  &fakeAlerts{},
		audit:   &memoryAudit{},
		idem:    &memoryIdempotency{},
	}
	h.svc = NewService(h.backend, h.stock, h.alerts, nil,
		WithAudit(h.audit),
		WithIdempotency(h.idem),
		WithClock(fixedClock),
	)
	return h
}
