package services

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCalculateFare(t *testing.T) {
	tests := []struct {
		name        string
		seats       int
		farePerSeat string
		base        string
		tax         string
		total       string
	}{
		{"three seats at 500", 3, "500", "1500.00", "270.00", "1770.00"},
		{"single seat", 1, "1250", "1250.00", "225.00", "1475.00"},
		{"tax rounds half up", 1, "0.25", "0.25", "0.05", "0.30"},
		{"cents survive multiplication", 6, "333.33", "1999.98", "360.00", "2359.98"},
		{"fare rounds to the cent first", 3, "0.105", "0.33", "0.06", "0.39"},
		{"tenths never drift", 3, "0.10", "0.30", "0.05", "0.35"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateFare(tt.seats, decimal.RequireFromString(tt.farePerSeat))
			assert.Equal(t, tt.base, got.Base.StringFixed(2))
			assert.Equal(t, tt.tax, got.Tax.StringFixed(2))
			assert.Equal(t, tt.total, got.Total.StringFixed(2))
		})
	}
}
