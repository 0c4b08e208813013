package alerts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/locadora/console/internal/inventory"
	"github.com/locadora/console/internal/rental"
)

type fakeSources struct {
	mu         sync.Mutex
	rentals    []rental.Rental
	items      []inventory.Item
	err        error
	rentalHits int
	stockHits  int
}

func (f *fakeSources) ListOverdueRentals(ctx context.Context) ([]rental.Rental, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rentalHits++
	return f.rentals, f.err
}

func (f *fakeSources) ListStock(ctx context.Context) ([]inventory.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stockHits++
	return f.items, nil
}

func overdueRental(id int64, endDay int) rental.Rental {
	return rental.Rental{
		ID:             id,
		ClientName:     "Ana Souza",
		NoteNumber:     fmt.Sprintf("N-%03d", id),
		StartDate:      rental.Date(2024, time.January, 1),
		CurrentEndDate: rental.Date(2024, time.January, endDay),
		Status:         rental.StatusActive,
		Items: []rental.LineItem{
			{ModelID: 11, Quantity: 3},
			{ModelID: 13, Quantity: 2},
		},
	}
}

var now = rental.Date(2024, time.January, 20).Add(10 * time.Hour)

func fixtures() *fakeSources {
	returned := rental.Date(2024, time.January, 9)
	done := overdueRental(4, 8)
	done.Status = rental.StatusCompleted
	done.ReturnDate = &returned
	return &fakeSources{
		rentals: []rental.Rental{overdueRental(1, 19), overdueRental(2, 5), overdueRental(3, 17), done, overdueRental(5, 25)},
		items: []inventory.Item{
			{ID: 11, Name: "Andaime", QuantityTotal: 10, QuantityAvailable: 8},
			{ID: 12, Name: "Betoneira", QuantityTotal: 4, QuantityAvailable: 0},
			{ID: 13, Name: "Martelete", QuantityTotal: 6, QuantityAvailable: 2},
		},
	}
}

func TestBuildFeed(t *testing.T) {
	src := fixtures()
	feed := Build(src.rentals, src.items, 2, now)

	assert.Equal(t, 3, feed.OverdueCount)
	assert.Equal(t, 2, feed.LowStockCount)
	require.Len(t, feed.Alerts, 5)

	assert.Equal(t, int64(2), feed.Alerts[0].RentalID)
	assert.Equal(t, 15, feed.Alerts[0].DaysOverdue)
	assert.Equal(t, SeverityCritical, feed.Alerts[0].Severity)
	assert.Equal(t, int64(3), feed.Alerts[1].RentalID)
	assert.Equal(t, SeverityWarning, feed.Alerts[1].Severity)
	assert.Equal(t, int64(1), feed.Alerts[2].RentalID)
	assert.Equal(t, SeverityInfo, feed.Alerts[2].Severity)
	assert.Equal(t, "Ana Souza (5 peças): venceu em 19/01/2024, 1 dia em atraso", feed.Alerts[2].Message)

	untracked := overdueRental(6, 18)
	untracked.Items = nil
	alone := Build([]rental.Rental{untracked}, nil, 2, now)
	require.Len(t, alone.Alerts, 1)
	assert.Equal(t, "Ana Souza: venceu em 18/01/2024, 2 dias em atraso", alone.Alerts[0].Message)

	assert.Equal(t, KindLowStock, feed.Alerts[3].Kind)
	assert.Equal(t, int64(12), feed.Alerts[3].ItemID)
	assert.Equal(t, SeverityCritical, feed.Alerts[3].Severity)
	assert.Equal(t, int64(13), feed.Alerts[4].ItemID)
	assert.Equal(t, SeverityWarning, feed.Alerts[4].Severity)
}

func newTestService(t *testing.T, src *fakeSources) (*Service, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewService(src, src, NewCache(client, time.Minute), 2, nil), client
}

func TestFeedIsCachedUntilInvalidated(t *testing.T) {
	src := fixtures()
	svc, _ := newTestService(t, src)
	ctx := context.Background()

	first, err := svc.Feed(ctx, now)
	require.NoError(t, err)
	second, err := svc.Feed(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, src.rentalHits)
	assert.Equal(t, 1, src.stockHits)
	assert.Equal(t, first.OverdueCount, second.OverdueCount)

	svc.Invalidate(ctx)
	_, err = svc.Feed(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, src.rentalHits)
}

func TestFeedPropagatesSourceError(t *testing.T) {
	src := fixtures()
	src.err = errors.New("backend down")
	svc, _ := newTestService(t, src)

	_, err := svc.Feed(context.Background(), now)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overdue rentals")
}

func TestFeedWithoutCache(t *testing.T) {
	src := fixtures()
	svc := NewService(src, src, nil, 2, nil)

	feed, err := svc.Feed(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 3, feed.OverdueCount)
	svc.Invalidate(context.Background())
}

func TestCacheVersionAndBump(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	cache := NewCache(client, time.Minute)
	ctx := context.Background()

	ver, err := cache.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ver)

	day := rental.Date(2024, time.January, 20)
	key, err := cache.feedKey(ctx, 2, day)
	require.NoError(t, err)
	assert.Equal(t, "alerts:feed:v1:t2:2024-01-20", key)

	require.NoError(t, cache.Bump(ctx))
	key, err = cache.feedKey(ctx, 2, day)
	require.NoError(t, err)
	assert.Equal(t, "alerts:feed:v2:t2:2024-01-20", key)

	_, hit, err := cache.load(ctx, key)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestFeedRebuildsOverCorruptEntry(t *testing.T) {
	src := fixtures()
	svc, client := newTestService(t, src)
	ctx := context.Background()

	key, err := svc.cache.feedKey(ctx, 2, rental.Today(now))
	require.NoError(t, err)
	require.NoError(t, client.Set(ctx, key, "{not json", time.Minute).Err())

	feed, err := svc.Feed(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 3, feed.OverdueCount)
	assert.Equal(t, 1, src.rentalHits)

	_, err = svc.Feed(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, src.rentalHits)
}

func TestFeedBuildsUncachedWhenRedisFails(t *testing.T) {
	src := fixtures()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	svc := NewService(src, src, NewCache(client, time.Minute), 2, nil)

	mr.SetError("ERR redis unavailable")
	feed, err := svc.Feed(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 3, feed.OverdueCount)
	assert.Equal(t, 2, feed.LowStockCount)

	mr.SetError("")
	_, err = svc.Feed(context.Background(), now)
	require.NoError(t, err)
	_, err = svc.Feed(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 2, src.rentalHits)
}

func TestListenForInvalidationIgnoresOwnBumps(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listener := NewCache(client, time.Minute)
	other := NewCache(client, time.Minute)
	got := make(chan int64, 4)
	require.NoError(t, listener.ListenForInvalidation(ctx, func(v int64) { got <- v }))

	require.NoError(t, listener.Bump(ctx))
	require.NoError(t, other.Bump(ctx))

	select {
	case v := <-got:
		assert.Equal(t, int64(2), v)
	case <-time.After(2 * time.Second):
		t.Fatal("bump from another instance not delivered")
	}
	select {
	case v := <-got:
		t.Fatalf("unexpected bump %d", v)
	case <-time.After(100 * time.Millisecond):
	}
}
