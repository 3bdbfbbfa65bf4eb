package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"optical-pos/internal/cart"
	"optical-pos/internal/models"
	"optical-pos/internal/redisclient"
	"optical-pos/internal/store"
	"optical-pos/internal/util"

	"go.uber.org/zap"
)

// StockHolder places checkout holds. The mirror is tried first as a fast
// rejection; the repository hold is authoritative.
type StockHolder struct {
	repo    store.Repository
	cache   StockCache
	catalog *Catalog
	logger  *zap.Logger
}

// NewStockHolder creates a new stock holder
func NewStockHolder(repo store.Repository, cache StockCache, catalog *Catalog) *StockHolder {
	return &StockHolder{
		repo:    repo,
		cache:   cache,
		catalog: catalog,
		logger:  util.GetLogger(),
	}
}

// Hold reserves every line or none. It reports whether the mirror reserved
// the lines too; when it did not, later mirror updates must resync instead.
func (h *StockHolder) Hold(ctx context.Context, items []models.StockAdjustment) (bool, error) {
	ctx, span := util.StartSpan(ctx, "StockHolder.Hold")
	defer span.End()

	start := time.Now()
	defer func() {
		util.StockHoldLatency.Observe(time.Since(start).Seconds())
	}()

	mirrored := true
	ok, err := h.cache.ReserveStock(ctx, items)
	switch {
	case err != nil:
		mirrored = false
		if !errors.Is(err, redisclient.ErrInventoryNotFound) {
			util.StockMirrorErrorsTotal.WithLabelValues("reserve").Inc()
		}
		h.logger.Warn("Redis reservation failed, holding in store only", zap.Error(err))
	case !ok:
		return false, fmt.Errorf("%w: not enough stock to hold cart", cart.ErrStockLimitExceeded)
	}

	if err := h.repo.HoldStock(ctx, items); err != nil {
		util.FailSpan(span, err)
		if mirrored {
			h.compensate(ctx, items)
		}
		switch {
		case errors.Is(err, store.ErrInsufficientStock):
			return false, fmt.Errorf("%w: %v", cart.ErrStockLimitExceeded, err)
		case errors.Is(err, store.ErrNotFound):
			return false, fmt.Errorf("%w: %v", ErrProductNotFound, err)
		}
		return false, fmt.Errorf("failed to hold stock: %w", err)
	}

	return mirrored, nil
}

// compensate undoes a mirror reservation whose store hold failed, then
// resyncs the lines since the mirror disagreed with the store
func (h *StockHolder) compensate(ctx context.Context, items []models.StockAdjustment) {
	if err := h.cache.ReleaseStock(ctx, items); err != nil {
		util.StockMirrorErrorsTotal.WithLabelValues("release").Inc()
		h.logger.Error("Failed to compensate Redis reservation", zap.Error(err))
	}
	h.catalog.RefreshLines(ctx, items)
}

func buildSales(snap cart.Snapshot, status string, at time.Time) []models.Sale {
	var invoiceNumber, paymentMethod string
	if snap.Invoice != nil {
		invoiceNumber = snap.Invoice.InvoiceNumber
		paymentMethod = snap.Invoice.PaymentMethod
	}

	sales := make([]models.Sale, 0, len(snap.Items))
	for _, item := range snap.Items {
		sales = append(sales, models.Sale{
			ID:            newID(),
			InvoiceNumber: invoiceNumber,
			ProductID:     item.ProductID,
			Quantity:      item.Quantity,
			UnitPrice:     item.Price,
			TotalAmount:   item.LineTotal(),
			CustomerID:    snap.CustomerID(),
			PaymentMethod: paymentMethod,
			Status:        status,
			CreatedAt:     at,
		})
	}
	return sales
}

func saleLines(items []models.CartItem) []models.SaleLineData {
	lines := make([]models.SaleLineData, 0, len(items))
	for _, item := range items {
		lines = append(lines, models.SaleLineData{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.Price.StringFixed(2),
		})
	}
	return lines
}

func customerIDOrEmpty(c *models.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}
