// Package inventory holds the stock rules shared by checkout, the basket and
// the stock endpoints. It works on plain maps so both storage modes can use it.
package inventory

import (
	"errors"
	"fmt"
)

// Stock status values reported for a variant.
const (
	OutOfStock = "out_of_stock"
	LowStock   = "low_stock"
	InStock    = "in_stock"
)

// DefaultLowThreshold is the low-stock threshold used when a variant has none.
const DefaultLowThreshold = 5

// Movement types recorded in the stock ledger.
const (
	MovementSale         = "sale"
	MovementRestock      = "restock"
	MovementAdjustment   = "adjustment"
	MovementReturn       = "return"
	MovementCancellation = "cancellation"
)

// Line is one requested variant quantity.
type Line struct {
	VariantID string
	Quantity  int
}

var (
	ErrInvalidVariant  = errors.New("invalid product variant id")
	ErrInvalidQuantity = errors.New("invalid quantity")
)

// ShortageError reports a variant that cannot satisfy a line.
type ShortageError struct {
	VariantID string
	Requested int
	Available int
	Unknown   bool
}

func (e *ShortageError) Error() string {
	if e.Unknown {
		return fmt.Sprintf("product variant %s is not in the stock list", e.VariantID)
	}
	return fmt.Sprintf("insufficient stock for product variant %s: requested %d, available %d", e.VariantID, e.Requested, e.Available)
}

// CheckStock verifies that every line can be served from stock. It stops at
// the first offending line.
func CheckStock(stock map[string]int, lines []Line) error {
	for _, l := range lines {
		if l.VariantID == "" {
			return ErrInvalidVariant
		}
		available, ok := stock[l.VariantID]
		if !ok {
			return &ShortageError{VariantID: l.VariantID, Requested: l.Quantity, Unknown: true}
		}
		if l.Quantity < 1 {
			return fmt.Errorf("%w for product variant %s", ErrInvalidQuantity, l.VariantID)
		}
		if available < l.Quantity {
			return &ShortageError{VariantID: l.VariantID, Requested: l.Quantity, Available: available}
		}
	}
	return nil
}

// ApplyOrder returns a copy of stock with every line deducted. Quantities are
// floored at zero and unknown variants are ignored.
func ApplyOrder(stock map[string]int, lines []Line) map[string]int {
	out := make(map[string]int, len(stock))
	for id, qty := range stock {
		out[id] = qty
	}
	for _, l := range lines {
		qty, ok := out[l.VariantID]
		if l.VariantID == "" || !ok {
			continue
		}
		out[l.VariantID] = max(qty-l.Quantity, 0)
	}
	return out
}

// Status classifies a quantity. A negative threshold uses DefaultLowThreshold.
func Status(quantity, lowThreshold int) string {
	if lowThreshold < 0 {
		lowThreshold = DefaultLowThreshold
	}
	switch {
	case quantity <= 0:
		return OutOfStock
	case quantity <= lowThreshold:
		return LowStock
	default:
		return InStock
	}
}

// ValidStatus reports whether s is a known stock status.
func ValidStatus(s string) bool {
	return s == OutOfStock || s == LowStock || s == InStock
}

// ManualMovement reports whether t may be recorded through a manual adjustment.
func ManualMovement(t string) bool {
	return t == MovementRestock || t == MovementAdjustment || t == MovementReturn
}
