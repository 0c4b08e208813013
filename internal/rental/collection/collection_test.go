package collection

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/locadora/console/internal/rental"
)

func sample(id int64, client, note string, endDay int) rental.Rental {
	start := rental.Date(2024, time.January, 1)
	return rental.Rental{
		ID:                    id,
		ClientID:              id * 10,
		ClientName:            client,
		NoteNumber:            note,
		StartDate:             start,
		AgreedDays:            endDay,
		OriginalEndDate:       rental.Date(2024, time.January, endDay),
		CurrentEndDate:        rental.Date(2024, time.January, endDay),
		TotalValue:            decimal.NewFromInt(100),
		AmountReceivableFinal: decimal.NewFromInt(100),
		Status:                rental.StatusActive,
		Items:                 []rental.LineItem{{ModelID: 1, Quantity: 2}},
	}
}

var now = rental.Date(2024, time.January, 15).Add(9 * time.Hour)

func loaded() *Collection {
	c := New()
	c.Load([]rental.Rental{
		sample(1, "Construtora Ômega", "N-003", 10),
		sample(2, "Ana Souza", "N-001", 20),
		sample(3, "Bruno Lima", "N-002", 5),
		sample(4, "Clínica Vida", "N-004", 30),
	}, now)
	return c
}

func ids(rows []rental.Rental) []int64 {
	out := make([]int64, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ID)
	}
	return out
}

func TestLoadReplacesWorkingSet(t *testing.T) {
	c := loaded()
	require.Equal(t, 4, c.Len())
	assert.Equal(t, now, c.LoadedAt())

	c.Load([]rental.Rental{sample(9, "X", "N-9", 20)}, now)
	assert.Equal(t, []int64{9}, ids(c.All()))

	_, err := c.Get(1)
	assert.ErrorIs(t, err, rental.ErrNotFound)
}

func TestFilterKeepsInsertionOrder(t *testing.T) {
	c := loaded()
	assert.Equal(t, []int64{1, 2, 3, 4}, ids(c.Filter(rental.BucketAll, now)))
	assert.Equal(t, []int64{1, 3}, ids(c.Filter(rental.BucketExpired, now)))
	assert.Equal(t, []int64{2, 4}, ids(c.Filter(rental.BucketActive, now)))
	assert.Empty(t, c.Filter(rental.BucketCompleted, now))
}

func TestApplyTransitionReplacesRecord(t *testing.T) {
	c := loaded()

	out, err := c.ApplyTransition(2, rental.Cancel(""), now)
	require.NoError(t, err)
	assert.Equal(t, rental.StatusCancelled, out.Rental.Status)

	got, err := c.Get(2)
	require.NoError(t, err)
	assert.Equal(t, rental.StatusCancelled, got.Status)
	assert.Equal(t, []int64{2}, ids(c.Filter(rental.BucketCancelled, now)))
}

func TestApplyTransitionFailureLeavesCollectionUntouched(t *testing.T) {
	c := loaded()
	before := c.All()

	_, err := c.ApplyTransition(2, rental.Extend(0, decimal.NewFromInt(10), decimal.Zero, ""), now)
	require.ErrorIs(t, err, rental.ErrValidation)
	assert.Equal(t, before, c.All())

	_, err = c.ApplyTransition(42, rental.Cancel(""), now)
	var nf *rental.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, int64(42), nf.ID)
	assert.Equal(t, before, c.All())
}

func TestPreviewDoesNotMutate(t *testing.T) {
	c := loaded()
	out, err := c.Preview(3, rental.ConfirmReturn(nil), now)
	require.NoError(t, err)
	assert.Equal(t, rental.StatusCompleted, out.Rental.Status)

	got, err := c.Get(3)
	require.NoError(t, err)
	assert.Equal(t, rental.StatusActive, got.Status)
}

func TestReplaceAndUpsert(t *testing.T) {
	c := loaded()

	updated := sample(3, "Bruno Lima", "N-002", 25)
	require.NoError(t, c.Replace(updated))
	got, err := c.Get(3)
	require.NoError(t, err)
	assert.Equal(t, rental.Date(2024, time.January, 25), got.CurrentEndDate)

	assert.ErrorIs(t, c.Replace(sample(77, "Nova", "N-077", 20)), rental.ErrNotFound)

	c.Upsert(sample(77, "Nova", "N-077", 20))
	assert.Equal(t, []int64{1, 2, 3, 4, 77}, ids(c.All()))
}

func TestGetReturnsCopy(t *testing.T) {
	c := loaded()
	got, err := c.Get(1)
	require.NoError(t, err)
	got.Items[0].Quantity = 99

	again, err := c.Get(1)
	require.NoError(t, err)
	assert.Equal(t, 2, again.Items[0].Quantity)
}

func TestBeginEnd(t *testing.T) {
	c := loaded()
	require.NoError(t, c.Begin(1))
	assert.True(t, c.InFlight(1))
	assert.True(t, errors.Is(c.Begin(1), ErrTransitionInFlight))
	require.NoError(t, c.Begin(2))

	c.End(1)
	assert.False(t, c.InFlight(1))
	require.NoError(t, c.Begin(1))

	assert.ErrorIs(t, c.Begin(404), rental.ErrNotFound)
}

func TestBeginIsExclusiveUnderContention(t *testing.T) {
	c := loaded()
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.Begin(4) == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestViewSearchAndSort(t *testing.T) {
	c := loaded()

	assert.Equal(t, []int64{1}, ids(c.View(ViewOptions{Search: "omega", Now: now})))
	assert.Equal(t, []int64{4}, ids(c.View(ViewOptions{Search: "CLINICA", Now: now})))
	assert.Equal(t, []int64{2}, ids(c.View(ViewOptions{Search: "n-001", Now: now})))

	byClient := c.View(ViewOptions{Sort: SortClient, Now: now})
	assert.Equal(t, []int64{2, 3, 4, 1}, ids(byClient))

	byNote := c.View(ViewOptions{Sort: SortNoteNumber, Descending: true, Now: now})
	assert.Equal(t, []int64{4, 1, 3, 2}, ids(byNote))

	overdue := c.View(ViewOptions{Bucket: rental.BucketExpired, Sort: SortDaysOverdue, Descending: true, Now: now})
	assert.Equal(t, []int64{3, 1}, ids(overdue))

	assert.True(t, SortEndDate.IsValid())
	assert.False(t, SortField("price").IsValid())
}
