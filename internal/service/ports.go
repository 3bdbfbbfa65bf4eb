package service

import (
	"context"

	"optical-pos/internal/models"
	"optical-pos/internal/redisclient"
)

// StockCache mirrors available and reserved counts outside the repository
type StockCache interface {
	ReserveStock(ctx context.Context, items []models.StockAdjustment) (bool, error)
	ReleaseStock(ctx context.Context, items []models.StockAdjustment) error
	CommitStock(ctx context.Context, items []models.StockAdjustment) error
	InitInventory(ctx context.Context, productID string, available, reserved int) error
	GetInventory(ctx context.Context, productID string) (available, reserved int, err error)
	DeleteInventory(ctx context.Context, productID string) error
}

// EventPublisher emits sale and stock events
type EventPublisher interface {
	PublishSaleCompleted(ctx context.Context, event *models.SaleCompletedEvent) error
	PublishSaleCancelled(ctx context.Context, event *models.SaleCancelledEvent) error
	PublishStockChanged(ctx context.Context, event *models.StockChangedEvent) error
}

var (
	_ StockCache     = (*redisclient.Client)(nil)
	_ StockCache     = NoopStockCache{}
	_ EventPublisher = NoopPublisher{}
)

// NoopStockCache is used when Redis is not configured. Reservations always
// pass so the repository decides.
type NoopStockCache struct{}

func (NoopStockCache) ReserveStock(context.Context, []models.StockAdjustment) (bool, error) {
	return true, nil
}

func (NoopStockCache) ReleaseStock(context.Context, []models.StockAdjustment) error { return nil }

func (NoopStockCache) CommitStock(context.Context, []models.StockAdjustment) error { return nil }

func (NoopStockCache) InitInventory(context.Context, string, int, int) error { return nil }

func (NoopStockCache) GetInventory(_ context.Context, productID string) (int, int, error) {
	return 0, 0, redisclient.ErrInventoryNotFound
}

func (NoopStockCache) DeleteInventory(context.Context, string) error { return nil }

// NoopPublisher drops events; used when Kafka is not configured
type NoopPublisher struct{}

func (NoopPublisher) PublishSaleCompleted(context.Context, *models.SaleCompletedEvent) error {
	return nil
}

func (NoopPublisher) PublishSaleCancelled(context.Context, *models.SaleCancelledEvent) error {
	return nil
}

func (NoopPublisher) PublishStockChanged(context.Context, *models.StockChangedEvent) error {
	return nil
}
