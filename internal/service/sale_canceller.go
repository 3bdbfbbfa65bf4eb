package service

import (
	"context"
	"fmt"
	"time"

	"optical-pos/internal/cart"
	"optical-pos/internal/models"
	"optical-pos/internal/store"
	"optical-pos/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	ReasonOperatorCancelled = "cancelled by operator"
	ReasonHoldExpired       = "hold expired"
)

// SaleCanceller reverses an invoiced cart
type SaleCanceller struct {
	repo    store.Repository
	cache   StockCache
	catalog *Catalog
	events  EventPublisher
	logger  *zap.Logger
}

// NewSaleCanceller creates a new sale canceller
func NewSaleCanceller(repo store.Repository, cache StockCache, catalog *Catalog, events EventPublisher) *SaleCanceller {
	return &SaleCanceller{
		repo:    repo,
		cache:   cache,
		catalog: catalog,
		events:  events,
		logger:  util.GetLogger(),
	}
}

// cancelMetricLabel maps a free-text reason onto a bounded label
func cancelMetricLabel(reason string) string {
	if reason == ReasonHoldExpired {
		return "hold_expired"
	}
	return "operator"
}

// Cancel returns held stock and records one CANCELLED sale per line in a
// single repository step. Lines whose product no longer exists are recorded
// but not restocked.
func (c *SaleCanceller) Cancel(ctx context.Context, snap cart.Snapshot, reason string) (*models.CancellationDetails, error) {
	ctx, span := util.StartSpan(ctx, "SaleCanceller.Cancel")
	defer span.End()

	if reason == "" {
		reason = ReasonOperatorCancelled
	}

	if snap.Invoice == nil {
		return nil, fmt.Errorf("%w: session has no invoice", cart.ErrInvalidTransition)
	}
	invoiceNumber := snap.Invoice.InvoiceNumber
	total := snap.Invoice.Totals.Total
	logger := c.logger.With(
		zap.String("session_id", snap.SessionID),
		zap.String("invoice_number", invoiceNumber))

	now := time.Now().UTC()
	details := &models.CancellationDetails{
		InvoiceNumber: invoiceNumber,
		Items:         snap.Items,
		TotalAmount:   total,
		Customer:      snap.Customer,
		Status:        models.SaleStatusCancelled,
		Reason:        reason,
		CancelledAt:   now,
	}

	sales := buildSales(snap, models.SaleStatusCancelled, now)
	skipped, err := c.repo.ReleaseSale(ctx, sales)
	if err != nil {
		util.FailSpan(span, err)
		util.CheckoutFailuresTotal.WithLabelValues("cancel_db_error").Inc()
		logger.Error("Failed to cancel sale", zap.Error(err))
		return nil, fmt.Errorf("failed to cancel sale: %w", err)
	}
	details.Sales = sales

	if len(skipped) > 0 {
		logger.Warn("Skipped restock for missing products", zap.Strings("product_ids", skipped))
	}

	if !snap.Mirrored {
		c.catalog.RefreshLines(ctx, snap.Adjustments())
	} else if err := c.cache.ReleaseStock(ctx, withoutProducts(snap.Adjustments(), skipped)); err != nil {
		util.StockMirrorErrorsTotal.WithLabelValues("release").Inc()
		logger.Warn("Failed to release stock in Redis", zap.Error(err))
	}

	util.SalesCancelledTotal.WithLabelValues(cancelMetricLabel(reason)).Inc()
	util.SaleLinesTotal.WithLabelValues(models.SaleStatusCancelled).Add(float64(len(sales)))

	event := &models.SaleCancelledEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeSaleCancelled,
			Timestamp: now,
		},
		InvoiceNumber: invoiceNumber,
		CustomerID:    customerIDOrEmpty(snap.Customer),
		Reason:        reason,
		Items:         saleLines(snap.Items),
	}
	if err := c.events.PublishSaleCancelled(ctx, event); err != nil {
		logger.Error("Failed to publish SaleCancelled event", zap.Error(err))
	}

	logger.Info("Sale cancelled and stock restored",
		zap.String("reason", reason),
		zap.Int("lines", len(sales)))
	return details, nil
}

func withoutProducts(items []models.StockAdjustment, skip []string) []models.StockAdjustment {
	if len(skip) == 0 {
		return items
	}
	drop := make(map[string]bool, len(skip))
	for _, id := range skip {
		drop[id] = true
	}

	out := make([]models.StockAdjustment, 0, len(items))
	for _, item := range items {
		if !drop[item.ProductID] {
			out = append(out, item)
		}
	}
	return out
}
