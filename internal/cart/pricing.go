package cart

import (
	"optical-pos/internal/models"

	"github.com/shopspring/decimal"
)

// DefaultTaxRate is the sales tax applied when none is configured
var DefaultTaxRate = decimal.RequireFromString("0.08")

// Totals holds the priced amounts of a cart
type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

// CalculateTotals prices items. Tax is rounded half-up to 2 decimals.
func CalculateTotals(items []models.CartItem, taxRate decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.LineTotal())
	}

	tax := subtotal.Mul(taxRate).Round(2)

	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Total:    subtotal.Add(tax),
	}
}
