package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/locadora/console/internal/inventory"
	"github.com/locadora/console/internal/rental"
)

// OverdueSource lists rentals the backend considers overdue.
type OverdueSource interface {
	ListOverdueRentals(ctx context.Context) ([]rental.Rental, error)
}

// StockSource lists inventory items.
type StockSource interface {
	ListStock(ctx context.Context) ([]inventory.Item, error)
}

// Service builds and caches the alerts feed.
type Service struct {
	overdue   OverdueSource
	stock     StockSource
	cache     *Cache
	threshold int
	logger    *slog.Logger
}

// NewService constructs the alerts service. cache may be nil.
func NewService(overdue OverdueSource, stock StockSource, cache *Cache, threshold int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{overdue: overdue, stock: stock, cache: cache, threshold: threshold, logger: logger}
}

// Threshold returns the low-stock threshold in units.
func (s *Service) Threshold() int {
	return s.threshold
}

// Feed returns the alerts feed for the business day of now, served from cache
// when the version has not been bumped since it was built. Any cache failure
// degrades to an uncached build.
func (s *Service) Feed(ctx context.Context, now time.Time) (Feed, error) {
	key, err := s.cache.feedKey(ctx, s.threshold, rental.Today(now))
	if err == nil {
		cached, hit, loadErr := s.cache.load(ctx, key)
		if hit {
			return cached, nil
		}
		err = loadErr
	}
	if err != nil {
		s.logger.Warn("alerts cache unavailable, building uncached", slog.Any("error", err))
		key = ""
	}

	feed, err := s.Build(ctx, now)
	if err != nil {
		return Feed{}, err
	}
	if err := s.cache.store(ctx, key, feed); err != nil {
		s.logger.Warn("alerts cache store failed", slog.Any("error", err))
	}
	return feed, nil
}

// Build loads both sources concurrently and derives a fresh feed.
func (s *Service) Build(ctx context.Context, now time.Time) (Feed, error) {
	var (
		overdue []rental.Rental
		stock   []inventory.Item
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := s.overdue.ListOverdueRentals(gctx)
		if err != nil {
			return fmt.Errorf("alerts: overdue rentals: %w", err)
		}
		overdue = rows
		return nil
	})
	g.Go(func() error {
		items, err := s.stock.ListStock(gctx)
		if err != nil {
			return fmt.Errorf("alerts: stock: %w", err)
		}
		stock = items
		return nil
	})
	if err := g.Wait(); err != nil {
		return Feed{}, err
	}
	return Build(overdue, stock, s.threshold, now), nil
}

// Invalidate bumps the cache version so the next Feed rebuilds.
func (s *Service) Invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("alerts cache bump failed", slog.Any("error", err))
	}
}
