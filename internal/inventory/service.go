package inventory

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"

	"github.com/locadora/console/internal/rental"
	"github.com/locadora/console/internal/shared"
)

// StockPort abstracts the stock endpoints of the backend.
type StockPort interface {
	ListStock(ctx context.Context) ([]Item, error)
	ReserveStock(ctx context.Context, itemID int64, qty int) (Item, error)
	ReleaseStock(ctx context.Context, itemID int64, qty int) (Item, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates stock checks and adjustments.
type Service struct {
	port   StockPort
	audit  AuditPort
	logger *slog.Logger
}

// NewService builds Service.
func NewService(port StockPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{port: port, audit: audit, logger: logger}
}

// List returns every item.
func (s *Service) List(ctx context.Context) ([]Item, error) {
	items, err := s.port.ListStock(ctx)
	if err != nil {
		return nil, fmt.Errorf("inventory: list stock: %w", err)
	}
	return items, nil
}

// CheckAvailability returns the lines that current stock cannot serve.
// Quantities of repeated models are summed first. An empty result means every
// line fits.
func (s *Service) CheckAvailability(ctx context.Context, lines []rental.LineItem) ([]Shortfall, error) {
	items, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return Shortfalls(items, lines), nil
}

// Shortfalls compares requested lines against a stock snapshot.
func Shortfalls(items []Item, lines []rental.LineItem) []Shortfall {
	stock := make(map[int64]Item, len(items))
	for _, item := range items {
		stock[item.ID] = item
	}
	requested := make(map[int64]int)
	var order []int64
	for _, line := range lines {
		if _, seen := requested[line.ModelID]; !seen {
			order = append(order, line.ModelID)
		}
		requested[line.ModelID] += line.Quantity
	}

	var out []Shortfall
	for _, id := range order {
		item, ok := stock[id]
		if ok && item.QuantityAvailable >= requested[id] {
			continue
		}
		out = append(out, Shortfall{
			ItemID:    id,
			Name:      item.Name,
			Requested: requested[id],
			Available: item.QuantityAvailable,
		})
	}
	return out
}

// Reserve decrements an item's availability.
func (s *Service) Reserve(ctx context.Context, itemID int64, qty int) (Item, error) {
	if qty <= 0 {
		return Item{}, ErrInvalidQuantity
	}
	item, err := s.port.ReserveStock(ctx, itemID, qty)
	if err != nil {
		return Item{}, fmt.Errorf("inventory: reserve item %d: %w", itemID, err)
	}
	if err := item.Validate(); err != nil {
		s.logger.Warn("backend returned stock outside bounds", slog.Int64("item_id", itemID), slog.Any("error", err))
	}
	return item, nil
}

// Release increments an item's availability.
func (s *Service) Release(ctx context.Context, itemID int64, qty int) (Item, error) {
	if qty <= 0 {
		return Item{}, ErrInvalidQuantity
	}
	item, err := s.port.ReleaseStock(ctx, itemID, qty)
	if err != nil {
		return Item{}, fmt.Errorf("inventory: release item %d: %w", itemID, err)
	}
	if err := item.Validate(); err != nil {
		s.logger.Warn("backend returned stock outside bounds", slog.Int64("item_id", itemID), slog.Any("error", err))
	}
	return item, nil
}

// ApplyIntents applies the inventory side effects of a persisted transition.
// When one fails the intents already applied are undone and the error
// returned.
func (s *Service) ApplyIntents(ctx context.Context, rentalID int64, intents []rental.InventoryIntent) error {
	applied := make([]rental.InventoryIntent, 0, len(intents))
	for _, intent := range intents {
		if err := s.apply(ctx, intent); err != nil {
			if rbErr := s.undo(ctx, applied); rbErr != nil {
				err = errors.Join(err, rbErr)
			}
			return fmt.Errorf("inventory: rental %d: %w", rentalID, err)
		}
		applied = append(applied, intent)
	}
	if len(applied) > 0 && s.audit != nil {
		meta := make(map[string]any, len(applied))
		for _, intent := range applied {
			meta[strconv.FormatInt(intent.ModelID, 10)] = fmt.Sprintf("%s:%d", intent.Kind, intent.Quantity)
		}
		if err := s.audit.Record(ctx, shared.AuditLog{
			Action:   "inventory:" + string(applied[0].Kind),
			Entity:   "rental",
			EntityID: strconv.FormatInt(rentalID, 10),
			Meta:     meta,
		}); err != nil {
			s.logger.Warn("audit stock adjustment", slog.Int64("rental_id", rentalID), slog.Any("error", err))
		}
	}
	return nil
}

func (s *Service) apply(ctx context.Context, intent rental.InventoryIntent) error {
	var err error
	switch intent.Kind {
	case rental.IntentReserve:
		_, err = s.Reserve(ctx, intent.ModelID, intent.Quantity)
	case rental.IntentRelease:
		_, err = s.Release(ctx, intent.ModelID, intent.Quantity)
	default:
		err = fmt.Errorf("inventory: unknown intent %q", intent.Kind)
	}
	return err
}

func (s *Service) undo(ctx context.Context, applied []rental.InventoryIntent) error {
	var errs []error
	for i := len(applied) - 1; i >= 0; i-- {
		inverse := applied[i]
		if inverse.Kind == rental.IntentReserve {
			inverse.Kind = rental.IntentRelease
		} else {
			inverse.Kind = rental.IntentReserve
		}
		if err := s.apply(ctx, inverse); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LowStock returns items with at most threshold units available, scarcest
// first. Items with no stock at all are skipped.
func LowStock(items []Item, threshold int) []Item {
	out := make([]Item, 0)
	for _, item := range items {
		if item.QuantityTotal <= 0 {
			continue
		}
		if item.QuantityAvailable <= threshold {
			out = append(out, item)
		}
	}
	slices.SortStableFunc(out, func(a, b Item) int {
		return cmp.Compare(a.QuantityAvailable, b.QuantityAvailable)
	})
	return out
}
