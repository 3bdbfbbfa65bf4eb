package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a frame, lens or accessory in the catalog
type Product struct {
	ID        string          `db:"id" json:"id"`
	Name      string          `db:"name" json:"name"`
	Barcode   string          `db:"barcode" json:"barcode"`
	Price     decimal.Decimal `db:"price" json:"price"`
	Category  string          `db:"category" json:"category"`
	Stock     int             `db:"stock" json:"stock"`
	Reserved  int             `db:"reserved" json:"reserved"`
	ImageURL  *string         `db:"image_url" json:"imageUrl,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// Customer represents a retail customer
type Customer struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Phone     string    `db:"phone" json:"phone"`
	Email     string    `db:"email" json:"email"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Prescription represents an eyeglass prescription issued to a customer
type Prescription struct {
	ID                string    `db:"id" json:"id"`
	CustomerID        string    `db:"customer_id" json:"customerId"`
	RightSphere       float64   `db:"right_sphere" json:"rightSphere"`
	RightCylinder     float64   `db:"right_cylinder" json:"rightCylinder"`
	RightAxis         int       `db:"right_axis" json:"rightAxis"`
	LeftSphere        float64   `db:"left_sphere" json:"leftSphere"`
	LeftCylinder      float64   `db:"left_cylinder" json:"leftCylinder"`
	LeftAxis          int       `db:"left_axis" json:"leftAxis"`
	Addition          float64   `db:"addition" json:"addition"`
	PupillaryDistance float64   `db:"pupillary_distance" json:"pupillaryDistance"`
	Notes             string    `db:"notes" json:"notes"`
	IssuedAt          time.Time `db:"issued_at" json:"issuedAt"`
}

// Sale is one persisted line of a finalized or cancelled checkout
type Sale struct {
	ID            string          `db:"id" json:"id"`
	InvoiceNumber string          `db:"invoice_number" json:"invoiceNumber"`
	ProductID     string          `db:"product_id" json:"productId"`
	Quantity      int             `db:"quantity" json:"quantity"`
	UnitPrice     decimal.Decimal `db:"unit_price" json:"unitPrice"`
	TotalAmount   decimal.Decimal `db:"total_amount" json:"totalAmount"`
	CustomerID    *string         `db:"customer_id" json:"customerId,omitempty"`
	PaymentMethod string          `db:"payment_method" json:"paymentMethod"`
	Status        string          `db:"status" json:"status"`
	CreatedAt     time.Time       `db:"created_at" json:"createdAt"`
}

// CartItem is a product line in a checkout session
type CartItem struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Barcode   string          `json:"barcode"`
	Category  string          `json:"category"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	Quantity  int             `json:"quantity"`
}

// LineTotal returns price times quantity
func (i CartItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// StockAdjustment is a per-product quantity applied by hold, finalize and cancel
type StockAdjustment struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// Sale statuses
const (
	SaleStatusCompleted = "COMPLETED"
	SaleStatusCancelled = "CANCELLED"
)

// Payment methods
const (
	PaymentMethodCash         = "cash"
	PaymentMethodCard         = "card"
	PaymentMethodUPI          = "upi"
	PaymentMethodBankTransfer = "bank_transfer"
	PaymentMethodInsurance    = "insurance"
)

// IsSupportedPaymentMethod reports whether method can be used at checkout
func IsSupportedPaymentMethod(method string) bool {
	switch method {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodUPI,
		PaymentMethodBankTransfer, PaymentMethodInsurance:
		return true
	}
	return false
}

// SaleReceipt is returned when a checkout is finalized
type SaleReceipt struct {
	InvoiceNumber string          `json:"invoiceNumber"`
	Sales         []Sale          `json:"sales"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Tax           decimal.Decimal `json:"tax"`
	Total         decimal.Decimal `json:"total"`
	Customer      *Customer       `json:"customer,omitempty"`
	PaymentMethod string          `json:"paymentMethod"`
	CompletedAt   time.Time       `json:"completedAt"`
}

// CancellationDetails is the snapshot recorded when a checkout is cancelled
type CancellationDetails struct {
	InvoiceNumber string          `json:"invoiceNumber"`
	Items         []CartItem      `json:"items"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	Customer      *Customer       `json:"customer,omitempty"`
	Status        string          `json:"status"`
	Reason        string          `json:"reason"`
	Sales         []Sale          `json:"sales"`
	CancelledAt   time.Time       `json:"cancelledAt"`
}
