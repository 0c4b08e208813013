package rental

import (
	"time"

	"github.com/shopspring/decimal"
)

// StatusReport aggregates a set of rentals for the status report.
type StatusReport struct {
	GeneratedAt    time.Time        `json:"generated_at"`
	Total          int              `json:"total"`
	ByBucket       map[Bucket]int   `json:"by_bucket"`
	ByStatus       map[Status]int   `json:"by_status"`
	OverdueCount   int              `json:"overdue_count"`
	MaxDaysOverdue int              `json:"max_days_overdue"`
	AmountOwed     decimal.Decimal  `json:"amount_owed"`
	AmountReceived decimal.Decimal  `json:"amount_received"`
	OverdueOwed    decimal.Decimal  `json:"overdue_owed"`
	Formatted      FormattedAmounts `json:"formatted"`
}

// FormattedAmounts carries the report totals rendered as currency.
type FormattedAmounts struct {
	AmountOwed     string `json:"amount_owed"`
	AmountReceived string `json:"amount_received"`
	OverdueOwed    string `json:"overdue_owed"`
}

// Summarize builds a StatusReport. Cancelled rentals are counted under their
// status but contribute nothing to the money totals.
func Summarize(rentals []Rental, now time.Time) StatusReport {
	report := StatusReport{
		GeneratedAt:    now,
		Total:          len(rentals),
		ByBucket:       make(map[Bucket]int),
		ByStatus:       make(map[Status]int),
		AmountOwed:     decimal.Zero,
		AmountReceived: decimal.Zero,
		OverdueOwed:    decimal.Zero,
	}
	for _, r := range rentals {
		report.ByStatus[r.Status]++
		for _, b := range []Bucket{BucketActive, BucketExpired, BucketCompleted, BucketAwaitingReturn, BucketCancelled} {
			if Matches(r, b, now) {
				report.ByBucket[b]++
			}
		}
		if r.Status == StatusCancelled {
			continue
		}
		report.AmountReceived = report.AmountReceived.Add(r.AmountPaidAtDelivery)
		if r.Status == StatusActive {
			report.AmountOwed = report.AmountOwed.Add(r.AmountOwed())
		}
		if days := DaysOverdue(r, now); days > 0 {
			report.OverdueCount++
			report.OverdueOwed = report.OverdueOwed.Add(r.AmountOwed())
			report.MaxDaysOverdue = max(report.MaxDaysOverdue, days)
		}
	}
	report.Formatted = FormattedAmounts{
		AmountOwed:     FormatAmount(report.AmountOwed),
		AmountReceived: FormatAmount(report.AmountReceived),
		OverdueOwed:    FormatAmount(report.OverdueOwed),
	}
	return report
}
