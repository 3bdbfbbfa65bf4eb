package cart

import (
	"fmt"
	"time"

	"optical-pos/internal/models"

	"github.com/shopspring/decimal"
)

// InvoiceDetails identifies an invoice
type InvoiceDetails struct {
	InvoiceNumber string `json:"invoiceNumber"`
	Date          string `json:"date"`
}

// Invoice is the display/print snapshot shown at checkout, before commit
type Invoice struct {
	InvoiceDetails
	Customer      *models.Customer  `json:"customer,omitempty"`
	Items         []models.CartItem `json:"items"`
	Totals        Totals            `json:"totals"`
	PaymentMethod string            `json:"paymentMethod"`
	IssuedAt      time.Time         `json:"issuedAt"`
}

// InvoiceGenerator builds invoices from session snapshots
type InvoiceGenerator struct {
	taxRate decimal.Decimal
	now     func() time.Time
}

// NewInvoiceGenerator creates a generator. A nil clock uses time.Now.
func NewInvoiceGenerator(taxRate decimal.Decimal, now func() time.Time) *InvoiceGenerator {
	if now == nil {
		now = time.Now
	}
	return &InvoiceGenerator{taxRate: taxRate, now: now}
}

// TaxRate returns the rate used for totals
func (g *InvoiceGenerator) TaxRate() decimal.Decimal {
	return g.taxRate
}

// Generate builds the invoice for snap. It has no side effects.
func (g *InvoiceGenerator) Generate(snap Snapshot, paymentMethod string) (Invoice, error) {
	if paymentMethod == "" {
		paymentMethod = models.PaymentMethodCash
	}
	if !models.IsSupportedPaymentMethod(paymentMethod) {
		return Invoice{}, fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, paymentMethod)
	}
	if len(snap.Items) == 0 {
		return Invoice{}, ErrEmptyCart
	}

	now := g.now()
	return Invoice{
		InvoiceDetails: InvoiceDetails{
			InvoiceNumber: InvoiceNumber(now),
			Date:          now.Format("2006-01-02"),
		},
		Customer:      copyCustomer(snap.Customer),
		Items:         copyItems(snap.Items),
		Totals:        CalculateTotals(snap.Items, g.taxRate),
		PaymentMethod: paymentMethod,
		IssuedAt:      now,
	}, nil
}

// InvoiceNumber formats the last 8 digits of t in epoch milliseconds
func InvoiceNumber(t time.Time) string {
	return fmt.Sprintf("INV-%08d", t.UnixMilli()%100_000_000)
}
