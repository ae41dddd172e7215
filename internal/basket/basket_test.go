package basket

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddItem(t *testing.T) {
	price := decimal.RequireFromString("19.99")

	lines := AddItem(nil, "var_1", "Phone case", price, 2)
	require.Len(t, lines, 1)

	lines = AddItem(lines, "var_1", "Phone case", price, 3)
	require.Len(t, lines, 1)
	assert.Equal(t, 5, lines[0].Quantity)

	lines = AddItem(lines, "var_2", "Charger", decimal.NewFromInt(10), 1)
	assert.Len(t, lines, 2)

	unchanged := AddItem(lines, "var_3", "Cable", price, 0)
	assert.Equal(t, lines, unchanged)
}

func TestAddItemDoesNotMutateInput(t *testing.T) {
	lines := []Line{{VariantID: "var_1", Quantity: 1}}
	_ = AddItem(lines, "var_1", "", decimal.Zero, 4)
	assert.Equal(t, 1, lines[0].Quantity)
}

func TestUpdateQuantity(t *testing.T) {
	lines := []Line{
		{VariantID: "var_1", Quantity: 1},
		{VariantID: "var_2", Quantity: 2},
	}

	lines = UpdateQuantity(lines, "var_2", 7)
	assert.Equal(t, 7, lines[1].Quantity)

	lines = UpdateQuantity(lines, "var_1", 0)
	require.Len(t, lines, 1)
	assert.Equal(t, "var_2", lines[0].VariantID)

	lines = UpdateQuantity(lines, "var_9", 3)
	assert.Len(t, lines, 1)
}

func TestSubtotal(t *testing.T) {
	lines := []Line{
		{VariantID: "var_1", UnitPrice: decimal.RequireFromString("0.10"), Quantity: 3},
		{VariantID: "var_2", UnitPrice: decimal.RequireFromString("12.50"), Quantity: 2},
	}
	assert.Equal(t, "25.3", Subtotal(lines).String())
	assert.Equal(t, 5, TotalQuantity(lines))
	assert.True(t, Subtotal(nil).IsZero())
}
