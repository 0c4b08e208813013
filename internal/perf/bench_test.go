package perf

import (
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/locadora/console/internal/alerts"
	"github.com/locadora/console/internal/inventory"
	"github.com/locadora/console/internal/rental"
	"github.com/locadora/console/internal/rental/collection"
)

var now = rental.Date(2024, time.March, 15).Add(10 * time.Hour)

func workingSet(n int) []rental.Rental {
	statuses := []rental.Status{rental.StatusActive, rental.StatusActive, rental.StatusCompleted, rental.StatusCancelled}
	out := make([]rental.Rental, 0, n)
	for i := 0; i < n; i++ {
		start := rental.Date(2024, time.January, 1+i%60)
		end := rental.AddDays(start, 7+i%45)
		out = append(out, rental.Rental{
			ID:              int64(i + 1),
			ClientID:        int64(i%300 + 1),
			ClientName:      fmt.Sprintf("Cliente %03d São Paulo", i%300),
			NoteNumber:      fmt.Sprintf("N-%05d", i),
			StartDate:       start,
			AgreedDays:      7 + i%45,
			OriginalEndDate: end,
			CurrentEndDate:  end,
			TotalValue:      decimal.NewFromInt(int64(100 + i%900)),
			Status:          statuses[i%len(statuses)],
			Items:           []rental.LineItem{{ModelID: int64(i%40 + 1), Quantity: 1 + i%5}},
		})
	}
	return out
}

func stock(n int) []inventory.Item {
	out := make([]inventory.Item, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, inventory.Item{ID: int64(i + 1), Name: fmt.Sprintf("Andaime %d", i), QuantityTotal: 20, QuantityAvailable: i % 6})
	}
	return out
}

func BenchmarkCollectionView(b *testing.B) {
	c := collection.New()
	c.Load(workingSet(5000), now)
	opts := collection.ViewOptions{Bucket: rental.BucketExpired, Search: "sao paulo", Sort: collection.SortDaysOverdue, Descending: true, Now: now}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = c.View(opts)
	}
}

func BenchmarkSummarize(b *testing.B) {
	rows := workingSet(5000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = rental.Summarize(rows, now)
	}
}

func BenchmarkBuildAlerts(b *testing.B) {
	rows := workingSet(5000)
	items := stock(200)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = alerts.Build(rows, items, 2, now)
	}
}

func TestViewLatencyBudget(t *testing.T) {
	if testing.Short() {
		t.Skip("latency budget skipped in short mode")
	}
	c := collection.New()
	c.Load(workingSet(5000), now)

	scenarios := []struct {
		name      string
		opts      collection.ViewOptions
		threshold time.Duration
	}{
		{name: "all", opts: collection.ViewOptions{Bucket: rental.BucketAll, Now: now}, threshold: 250 * time.Millisecond},
		{name: "expired sorted", opts: collection.ViewOptions{Bucket: rental.BucketExpired, Sort: collection.SortDaysOverdue, Now: now}, threshold: 250 * time.Millisecond},
		{name: "search", opts: collection.ViewOptions{Bucket: rental.BucketAll, Search: "cliente 042", Sort: collection.SortClient, Now: now}, threshold: 250 * time.Millisecond},
	}

	for _, scenario := range scenarios {
		samples := make([]time.Duration, 0, 20)
		for i := 0; i < 20; i++ {
			start := time.Now()
			_ = c.View(scenario.opts)
			samples = append(samples, time.Since(start))
		}
		if p95 := percentile95(samples); p95 > scenario.threshold {
			t.Fatalf("%s view latency regression: p95=%s threshold=%s", scenario.name, p95, scenario.threshold)
		}
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted[int(float64(len(sorted)-1)*0.95)]
}
