package models

import "time"

// Event types
const (
	EventTypeSaleCompleted = "SALE_COMPLETED"
	EventTypeSaleCancelled = "SALE_CANCELLED"
	EventTypeStockChanged  = "STOCK_CHANGED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// SaleCompletedEvent published when a checkout is finalized
type SaleCompletedEvent struct {
	BaseEvent
	InvoiceNumber string         `json:"invoice_number"`
	CustomerID    string         `json:"customer_id,omitempty"`
	PaymentMethod string         `json:"payment_method"`
	TotalAmount   string         `json:"total_amount"`
	Items         []SaleLineData `json:"items"`
}

// SaleCancelledEvent published when an invoiced checkout is cancelled (compensation)
type SaleCancelledEvent struct {
	BaseEvent
	InvoiceNumber string         `json:"invoice_number"`
	CustomerID    string         `json:"customer_id,omitempty"`
	Reason        string         `json:"reason"`
	Items         []SaleLineData `json:"items"`
}

// StockChangedEvent published when stock is set outside of checkout
type StockChangedEvent struct {
	BaseEvent
	ProductID string `json:"product_id"`
	Stock     int    `json:"stock"`
}

// SaleLineData represents a sale line in events
type SaleLineData struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

// ProductIDs returns the product ids referenced by lines
func ProductIDs(lines []SaleLineData) []string {
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	return ids
}
