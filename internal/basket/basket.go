// Package basket implements the line arithmetic of a shopping basket.
package basket

import "github.com/shopspring/decimal"

// Line is one variant in a basket.
type Line struct {
	VariantID string          `json:"product_variant_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// AddItem adds qty of a variant. An existing line is topped up; qty below one
// leaves the basket unchanged.
func AddItem(lines []Line, variantID, name string, price decimal.Decimal, qty int) []Line {
	if qty < 1 {
		return lines
	}
	out := append([]Line(nil), lines...)
	for i := range out {
		if out[i].VariantID == variantID {
			out[i].Quantity += qty
			return out
		}
	}
	return append(out, Line{VariantID: variantID, Name: name, UnitPrice: price, Quantity: qty})
}

// UpdateQuantity sets the quantity of a variant's line, removing it when qty
// is zero or less. Unknown variants are ignored.
func UpdateQuantity(lines []Line, variantID string, qty int) []Line {
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		if l.VariantID == variantID {
			if qty <= 0 {
				continue
			}
			l.Quantity = qty
		}
		out = append(out, l)
	}
	return out
}

// Subtotal is the sum of unit price times quantity over all lines.
func Subtotal(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(LineTotal(l))
	}
	return total
}

// LineTotal is price times quantity for a single line.
func LineTotal(l Line) decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// TotalQuantity counts units across all lines.
func TotalQuantity(lines []Line) int {
	n := 0
	for _, l := range lines {
		n += l.Quantity
	}
	return n
}
