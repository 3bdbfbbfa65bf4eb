package service

import (
	"context"
	"fmt"
	"time"

	"optical-pos/internal/models"
	"optical-pos/internal/store"
	"optical-pos/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreateSaleRequest is a single sale line recorded outside a checkout session
type CreateSaleRequest struct {
	ProductID     string          `json:"productId" binding:"required"`
	Quantity      int             `json:"quantity" binding:"required,min=1"`
	UnitPrice     decimal.Decimal `json:"unitPrice"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	CustomerID    *string         `json:"customerId,omitempty"`
	Status        string          `json:"status,omitempty"`
	InvoiceNumber string          `json:"invoiceNumber,omitempty"`
	PaymentMethod string          `json:"paymentMethod,omitempty"`
}

// SaleRecords creates and lists sale lines. It never touches stock.
type SaleRecords struct {
	repo   store.Repository
	logger *zap.Logger
}

// NewSaleRecords creates a new sale record service
func NewSaleRecords(repo store.Repository) *SaleRecords {
	return &SaleRecords{repo: repo, logger: util.GetLogger()}
}

// Create records req. Status defaults to COMPLETED and the total to
// unitPrice times quantity.
func (r *SaleRecords) Create(ctx context.Context, req *CreateSaleRequest) (*models.Sale, error) {
	ctx, span := util.StartSpan(ctx, "SaleRecords.Create")
	defer span.End()

	status := req.Status
	if status == "" {
		status = models.SaleStatusCompleted
	}
	if status != models.SaleStatusCompleted && status != models.SaleStatusCancelled {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidSale, status)
	}
	if req.Quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", ErrInvalidSale)
	}
	if req.UnitPrice.IsNegative() || req.TotalAmount.IsNegative() {
		return nil, fmt.Errorf("%w: amounts must not be negative", ErrInvalidSale)
	}
	if req.PaymentMethod != "" && !models.IsSupportedPaymentMethod(req.PaymentMethod) {
		return nil, fmt.Errorf("%w: unsupported payment method %q", ErrInvalidSale, req.PaymentMethod)
	}

	total := req.TotalAmount
	if total.IsZero() {
		total = req.UnitPrice.Mul(decimal.NewFromInt(int64(req.Quantity)))
	}

	sale := &models.Sale{
		ID:            newID(),
		InvoiceNumber: req.InvoiceNumber,
		ProductID:     req.ProductID,
		Quantity:      req.Quantity,
		UnitPrice:     req.UnitPrice,
		TotalAmount:   total,
		CustomerID:    req.CustomerID,
		PaymentMethod: req.PaymentMethod,
		Status:        status,
		CreatedAt:     time.Now().UTC(),
	}

	if err := r.repo.CreateSale(ctx, sale); err != nil {
		util.FailSpan(span, err)
		return nil, fmt.Errorf("failed to create sale: %w", err)
	}

	util.SaleLinesTotal.WithLabelValues(status).Inc()
	r.logger.Info("Sale recorded",
		zap.String("sale_id", sale.ID),
		zap.String("product_id", sale.ProductID),
		zap.String("status", status))
	return sale, nil
}

// List returns sales matching filter, newest first
func (r *SaleRecords) List(ctx context.Context, filter store.SaleFilter) ([]models.Sale, error) {
	ctx, span := util.StartSpan(ctx, "SaleRecords.List")
	defer span.End()

	return r.repo.ListSales(ctx, filter)
}
