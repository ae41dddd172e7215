package inventory

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckStock(t *testing.T) {
	stock := map[string]int{"var_a": 3, "var_b": 0}

	tests := []struct {
		name  string
		lines []Line
		check func(t *testing.T, err error)
	}{
		{
			name:  "all available",
			lines: []Line{{VariantID: "var_a", Quantity: 3}},
			check: func(t *testing.T, err error) { require.NoError(t, err) },
		},
		{
			name:  "missing variant id",
			lines: []Line{{Quantity: 1}},
			check: func(t *testing.T, err error) { require.ErrorIs(t, err, ErrInvalidVariant) },
		},
		{
			name:  "unknown variant",
			lines: []Line{{VariantID: "var_z", Quantity: 1}},
			check: func(t *testing.T, err error) {
				var short *ShortageError
				require.True(t, errors.As(err, &short))
				assert.True(t, short.Unknown)
			},
		},
		{
			name:  "zero quantity",
			lines: []Line{{VariantID: "var_a", Quantity: 0}},
			check: func(t *testing.T, err error) { require.ErrorIs(t, err, ErrInvalidQuantity) },
		},
		{
			name:  "insufficient",
			lines: []Line{{VariantID: "var_a", Quantity: 1}, {VariantID: "var_b", Quantity: 1}},
			check: func(t *testing.T, err error) {
				var short *ShortageError
				require.True(t, errors.As(err, &short))
				assert.Equal(t, "var_b", short.VariantID)
				assert.Equal(t, 0, short.Available)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.check(t, CheckStock(stock, tc.lines))
		})
	}
}

func TestApplyOrderFloorsAtZero(t *testing.T) {
	stock := map[string]int{"var_a": 3, "var_b": 1}
	out := ApplyOrder(stock, []Line{
		{VariantID: "var_a", Quantity: 2},
		{VariantID: "var_b", Quantity: 5},
		{VariantID: "var_missing", Quantity: 1},
	})

	assert.Equal(t, map[string]int{"var_a": 1, "var_b": 0}, out)
	assert.Equal(t, 3, stock["var_a"], "input map must not change")
}

func TestStatus(t *testing.T) {
	assert.Equal(t, OutOfStock, Status(0, 5))
	assert.Equal(t, OutOfStock, Status(-2, 5))
	assert.Equal(t, LowStock, Status(5, 5))
	assert.Equal(t, InStock, Status(6, 5))
	assert.Equal(t, LowStock, Status(4, -1))
	assert.Equal(t, InStock, Status(1, 0))
}
