package inventory

import (
	"errors"
	"fmt"
)

// Item is a rentable equipment model and its stock.
type Item struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	Category          string `json:"category,omitempty"`
	QuantityTotal     int    `json:"quantity_total"`
	QuantityAvailable int    `json:"quantity_available"`
}

// Validate checks 0 <= available <= total.
func (i Item) Validate() error {
	if i.QuantityAvailable < 0 {
		return fmt.Errorf("%w: item %d has %d available", ErrNegativeStock, i.ID, i.QuantityAvailable)
	}
	if i.QuantityAvailable > i.QuantityTotal {
		return fmt.Errorf("%w: item %d has %d available of %d", ErrOverRelease, i.ID, i.QuantityAvailable, i.QuantityTotal)
	}
	return nil
}

// Reserve returns the item with qty fewer units available.
func (i Item) Reserve(qty int) (Item, error) {
	if qty <= 0 {
		return i, ErrInvalidQuantity
	}
	if i.QuantityAvailable < qty {
		return i, &ShortfallError{Shortfalls: []Shortfall{{ItemID: i.ID, Name: i.Name, Requested: qty, Available: i.QuantityAvailable}}}
	}
	i.QuantityAvailable -= qty
	return i, nil
}

// Release returns the item with qty more units available.
func (i Item) Release(qty int) (Item, error) {
	if qty <= 0 {
		return i, ErrInvalidQuantity
	}
	if i.QuantityAvailable+qty > i.QuantityTotal {
		return i, fmt.Errorf("%w: item %d would have %d available of %d", ErrOverRelease, i.ID, i.QuantityAvailable+qty, i.QuantityTotal)
	}
	i.QuantityAvailable += qty
	return i, nil
}

// Shortfall describes a line that cannot be served from current stock.
type Shortfall struct {
	ItemID    int64  `json:"item_id"`
	Name      string `json:"name,omitempty"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// ShortfallError is returned when a reservation exceeds availability.
type ShortfallError struct {
	Shortfalls []Shortfall
}

func (e *ShortfallError) Error() string {
	if len(e.Shortfalls) == 1 {
		s := e.Shortfalls[0]
		return fmt.Sprintf("inventory: item %d: requested %d, available %d", s.ItemID, s.Requested, s.Available)
	}
	return fmt.Sprintf("inventory: %d items short", len(e.Shortfalls))
}

// Is matches ErrInsufficientStock.
func (e *ShortfallError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// ErrInsufficientStock triggered when a reservation exceeds available quantity.
var ErrInsufficientStock = errors.New("inventory: insufficient stock")

// ErrNegativeStock triggered when available quantity would drop below zero.
var ErrNegativeStock = errors.New("inventory: negative stock not allowed")

// ErrOverRelease triggered when available quantity would exceed the total.
var ErrOverRelease = errors.New("inventory: available quantity above total")

// ErrInvalidQuantity indicates invalid qty.
var ErrInvalidQuantity = errors.New("inventory: quantity must be positive")
