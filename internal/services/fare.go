package services

import "github.com/shopspring/decimal"

// TaxRatePercent is the flat tax applied to every fare
const TaxRatePercent = 18

var taxRate = decimal.New(TaxRatePercent, -2)

// Fare is the monetary breakdown of a reservation
type Fare struct {
	Base  decimal.Decimal `json:"base_amount"`
	Tax   decimal.Decimal `json:"tax_amount"`
	Total decimal.Decimal `json:"total_amount"`
}

// CalculateFare computes base, tax and total for seatCount seats at farePerSeat.
// The fare is taken to the cent first; tax rounds half up to the cent.
func CalculateFare(seatCount int, farePerSeat decimal.Decimal) Fare {
	base := farePerSeat.Round(2).Mul(decimal.NewFromInt(int64(seatCount)))
	tax := base.Mul(taxRate).Round(2)
	return Fare{
		Base:  base,
		Tax:   tax,
		Total: base.Add(tax),
	}
}
