package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"optical-pos/internal/cart"
	"optical-pos/internal/models"
	"optical-pos/internal/store"
	"optical-pos/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SaleFinalizer commits an invoiced cart to sale records
type SaleFinalizer struct {
	repo    store.Repository
	cache   StockCache
	catalog *Catalog
	events  EventPublisher
	logger  *zap.Logger
}

// NewSaleFinalizer creates a new sale finalizer
func NewSaleFinalizer(repo store.Repository, cache StockCache, catalog *Catalog, events EventPublisher) *SaleFinalizer {
	return &SaleFinalizer{
		repo:    repo,
		cache:   cache,
		catalog: catalog,
		events:  events,
		logger:  util.GetLogger(),
	}
}

// Finalize records one COMPLETED sale per line and consumes the holds in a
// single repository step
func (f *SaleFinalizer) Finalize(ctx context.Context, snap cart.Snapshot) (*models.SaleReceipt, error) {
	ctx, span := util.StartSpan(ctx, "SaleFinalizer.Finalize")
	defer span.End()

	if snap.Invoice == nil {
		return nil, fmt.Errorf("%w: session has no invoice", cart.ErrInvalidTransition)
	}
	inv := snap.Invoice
	logger := f.logger.With(
		zap.String("session_id", snap.SessionID),
		zap.String("invoice_number", inv.InvoiceNumber))

	now := time.Now().UTC()
	sales := buildSales(snap, models.SaleStatusCompleted, now)

	if err := f.repo.CommitSale(ctx, sales); err != nil {
		util.FailSpan(span, err)
		reason := "db_error"
		if errors.Is(err, store.ErrHoldMismatch) {
			reason = "hold_mismatch"
		}
		util.CheckoutFailuresTotal.WithLabelValues(reason).Inc()
		logger.Error("Failed to finalize sale", zap.Error(err))
		return nil, fmt.Errorf("failed to finalize sale: %w", err)
	}

	if !snap.Mirrored {
		f.catalog.RefreshLines(ctx, snap.Adjustments())
	} else if err := f.cache.CommitStock(ctx, snap.Adjustments()); err != nil {
		util.StockMirrorErrorsTotal.WithLabelValues("commit").Inc()
		logger.Warn("Failed to commit stock in Redis", zap.Error(err))
	}

	util.SalesCompletedTotal.Inc()
	util.SaleLinesTotal.WithLabelValues(models.SaleStatusCompleted).Add(float64(len(sales)))

	event := &models.SaleCompletedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeSaleCompleted,
			Timestamp: now,
		},
		InvoiceNumber: inv.InvoiceNumber,
		CustomerID:    customerIDOrEmpty(snap.Customer),
		PaymentMethod: inv.PaymentMethod,
		TotalAmount:   inv.Totals.Total.StringFixed(2),
		Items:         saleLines(snap.Items),
	}
	if err := f.events.PublishSaleCompleted(ctx, event); err != nil {
		logger.Error("Failed to publish SaleCompleted event", zap.Error(err))
	}

	logger.Info("Sale completed",
		zap.Int("lines", len(sales)),
		zap.String("total", inv.Totals.Total.StringFixed(2)))

	return &models.SaleReceipt{
		InvoiceNumber: inv.InvoiceNumber,
		Sales:         sales,
		Subtotal:      inv.Totals.Subtotal,
		Tax:           inv.Totals.Tax,
		Total:         inv.Totals.Total,
		Customer:      snap.Customer,
		PaymentMethod: inv.PaymentMethod,
		CompletedAt:   now,
	}, nil
}
