package alerts

import (
	"fmt"
	"time"

	"github.com/locadora/console/internal/inventory"
	"github.com/locadora/console/internal/rental"
)

// Kind identifies the source of an alert.
type Kind string

const (
	KindOverdue  Kind = "overdue"
	KindLowStock Kind = "low_stock"
)

// Severity ranks alerts for display.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Overdue rentals escalate after these many days.
const (
	warningAfterDays  = 3
	criticalAfterDays = 7
)

// Alert is one notification of the feed.
type Alert struct {
	Kind        Kind     `json:"kind"`
	Severity    Severity `json:"severity"`
	Title       string   `json:"title"`
	Message     string   `json:"message"`
	RentalID    int64    `json:"rental_id,omitempty"`
	ItemID      int64    `json:"item_id,omitempty"`
	DaysOverdue int      `json:"days_overdue,omitempty"`
	Available   *int     `json:"available,omitempty"`
}

// Feed is the alerts payload served to the console.
type Feed struct {
	GeneratedAt   time.Time `json:"generated_at"`
	Threshold     int       `json:"threshold"`
	OverdueCount  int       `json:"overdue_count"`
	LowStockCount int       `json:"low_stock_count"`
	Alerts        []Alert   `json:"alerts"`
}

// Build derives the feed from overdue candidates and a stock snapshot.
// Rentals are re-classified at now, so records the backend still reports as
// overdue but which are no longer expired are dropped.
func Build(rentals []rental.Rental, stock []inventory.Item, threshold int, now time.Time) Feed {
	feed := Feed{GeneratedAt: now, Threshold: threshold, Alerts: make([]Alert, 0)}

	for _, entry := range rental.OverdueEntries(rentals, now) {
		r := entry.Rental
		end := r.CurrentEndDate
		feed.Alerts = append(feed.Alerts, Alert{
			Kind:        KindOverdue,
			Severity:    overdueSeverity(entry.DaysOverdue),
			Title:       fmt.Sprintf("Locação %s em atraso", noteLabel(r)),
			Message:     fmt.Sprintf("%s%s: venceu em %s, %s em atraso", clientLabel(r), piecesLabel(r), rental.FormatDate(&end, "-"), dayLabel(entry.DaysOverdue)),
			RentalID:    r.ID,
			DaysOverdue: entry.DaysOverdue,
		})
		feed.OverdueCount++
	}

	for _, item := range inventory.LowStock(stock, threshold) {
		available := item.QuantityAvailable
		severity := SeverityWarning
		if available == 0 {
			severity = SeverityCritical
		}
		feed.Alerts = append(feed.Alerts, Alert{
			Kind:      KindLowStock,
			Severity:  severity,
			Title:     fmt.Sprintf("Estoque baixo: %s", item.Name),
			Message:   fmt.Sprintf("%d de %d disponíveis", available, item.QuantityTotal),
			ItemID:    item.ID,
			Available: &available,
		})
		feed.LowStockCount++
	}
	return feed
}

func overdueSeverity(days int) Severity {
	switch {
	case days >= criticalAfterDays:
		return SeverityCritical
	case days >= warningAfterDays:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

func noteLabel(r rental.Rental) string {
	if r.NoteNumber != "" {
		return r.NoteNumber
	}
	return fmt.Sprintf("#%d", r.ID)
}

func clientLabel(r rental.Rental) string {
	if r.ClientName != "" {
		return r.ClientName
	}
	return fmt.Sprintf("Cliente #%d", r.ClientID)
}

func piecesLabel(r rental.Rental) string {
	switch n := r.TotalQuantity(); n {
	case 0:
		return ""
	case 1:
		return " (1 peça)"
	default:
		return fmt.Sprintf(" (%d peças)", n)
	}
}

func dayLabel(days int) string {
	if days == 1 {
		return "1 dia"
	}
	return fmt.Sprintf("%d dias", days)
}
