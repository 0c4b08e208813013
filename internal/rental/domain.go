package rental

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// STATUS
// ============================================================================

// Status is the stored lifecycle status of a rental.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// IsValid checks if the status is one of the stored statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanExtend checks if a rental in this status can be extended.
func (s Status) CanExtend() bool {
	return s == StatusActive
}

// CanClose checks if a rental can be returned, completed early or cancelled.
func (s Status) CanClose() bool {
	return s == StatusActive
}

// CanReactivate checks if a rental can be re-opened.
func (s Status) CanReactivate() bool {
	return s == StatusCompleted
}

// ============================================================================
// BUCKETS
// ============================================================================

// Bucket is a derived display/filter classification.
type Bucket string

const (
	BucketAll            Bucket = "all"
	BucketActive         Bucket = "active"
	BucketExpired        Bucket = "expired"
	BucketCompleted      Bucket = "completed"
	BucketAwaitingReturn Bucket = "awaiting_return"
	BucketCancelled      Bucket = "cancelled"
)

// IsValid checks if the bucket is known.
func (b Bucket) IsValid() bool {
	switch b {
	case BucketAll, BucketActive, BucketExpired, BucketCompleted, BucketAwaitingReturn, BucketCancelled:
		return true
	default:
		return false
	}
}

// ============================================================================
// ENTITIES
// ============================================================================

// Client is the customer a rental is registered to.
type Client struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Document string `json:"document,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty"`
}

// LineItem is one equipment model rented under a rental.
type LineItem struct {
	ModelID   int64  `json:"model_id"`
	ModelName string `json:"model_name,omitempty"`
	Quantity  int    `json:"quantity"`
	Unit      string `json:"unit,omitempty"`
}

// Rental is a rental order (locação).
type Rental struct {
	ID         int64  `json:"id"`
	ClientID   int64  `json:"client_id"`
	ClientName string `json:"client_name,omitempty"`
	NoteNumber string `json:"note_number"`

	StartDate       time.Time  `json:"start_date"`
	AgreedDays      int        `json:"agreed_days"`
	OriginalEndDate time.Time  `json:"original_end_date"`
	CurrentEndDate  time.Time  `json:"current_end_date"`
	ReturnDate      *time.Time `json:"return_date,omitempty"`

	TotalValue            decimal.Decimal  `json:"total_value"`
	AmountPaidAtDelivery  decimal.Decimal  `json:"amount_paid_at_delivery"`
	AmountReceivableFinal decimal.Decimal  `json:"amount_receivable_final"`
	RevisedTotalValue     *decimal.Decimal `json:"revised_total_value,omitempty"`
	Abatement             decimal.Decimal  `json:"abatement"`

	Status           Status     `json:"status"`
	AdjustmentReason string     `json:"adjustment_reason,omitempty"`
	ExtensionDate    *time.Time `json:"extension_date,omitempty"`

	Items []LineItem `json:"items"`
}

// Clone returns a deep copy so transitions never alias the caller's record.
func (r Rental) Clone() Rental {
	out := r
	if r.ReturnDate != nil {
		t := *r.ReturnDate
		out.ReturnDate = &t
	}
	if r.ExtensionDate != nil {
		t := *r.ExtensionDate
		out.ExtensionDate = &t
	}
	if r.RevisedTotalValue != nil {
		v := *r.RevisedTotalValue
		out.RevisedTotalValue = &v
	}
	if r.Items != nil {
		out.Items = make([]LineItem, len(r.Items))
		copy(out.Items, r.Items)
	}
	return out
}

// AmountOwed is the figure shown as "amount owed". An extension's revised total
// supersedes the receivable, net of abatement.
func (r Rental) AmountOwed() decimal.Decimal {
	if r.RevisedTotalValue != nil {
		return r.RevisedTotalValue.Sub(r.Abatement)
	}
	return r.AmountReceivableFinal
}

// TotalQuantity sums line quantities.
func (r Rental) TotalQuantity() int {
	total := 0
	for _, item := range r.Items {
		total += item.Quantity
	}
	return total
}

// CheckInvariants verifies the record-level invariants.
func (r Rental) CheckInvariants() error {
	if !r.Status.IsValid() {
		return invalid("status", "unknown status %q", r.Status)
	}
	if !r.StartDate.IsZero() && !r.CurrentEndDate.IsZero() && DateOnly(r.CurrentEndDate).Before(DateOnly(r.StartDate)) {
		return invalid("current_end_date", "must not be before start date")
	}
	switch r.Status {
	case StatusCompleted:
		if r.ReturnDate == nil {
			return invalid("return_date", "completed rental must have a return date")
		}
	case StatusActive:
		if r.ReturnDate != nil {
			return invalid("return_date", "active rental must not have a return date")
		}
	}
	return nil
}

// ============================================================================
// INVENTORY INTENTS
// ============================================================================

// IntentKind names the inventory side effect a transition requires.
type IntentKind string

const (
	IntentReserve IntentKind = "reserve"
	IntentRelease IntentKind = "release"
)

// InventoryIntent is a side effect the caller applies after a transition has
// been persisted.
type InventoryIntent struct {
	Kind     IntentKind `json:"kind"`
	ModelID  int64      `json:"model_id"`
	Quantity int        `json:"quantity"`
}

func intentsFor(kind IntentKind, items []LineItem) []InventoryIntent {
	if len(items) == 0 {
		return nil
	}
	intents := make([]InventoryIntent, 0, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		intents = append(intents, InventoryIntent{Kind: kind, ModelID: item.ModelID, Quantity: item.Quantity})
	}
	return intents
}
