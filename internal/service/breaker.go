package service

import (
	"context"
	"errors"
	"time"

	"optical-pos/internal/models"
	"optical-pos/internal/redisclient"
	"optical-pos/internal/util"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// BreakerStockCache guards a StockCache with a circuit breaker so a failing
// Redis is skipped instead of timing out every checkout
type BreakerStockCache struct {
	inner StockCache
	cb    *gobreaker.CircuitBreaker[any]
}

// NewBreakerStockCache wraps inner. The breaker opens after five consecutive
// failures and probes again after timeout.
func NewBreakerStockCache(inner StockCache, timeout time.Duration) *BreakerStockCache {
	logger := util.GetLogger()
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "stock-cache",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// an unmirrored product is an answer, not an outage
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, redisclient.ErrInventoryNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &BreakerStockCache{inner: inner, cb: cb}
}

// State reports the breaker state
func (b *BreakerStockCache) State() gobreaker.State {
	return b.cb.State()
}

func (b *BreakerStockCache) run(fn func() error) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	return err
}

func (b *BreakerStockCache) ReserveStock(ctx context.Context, items []models.StockAdjustment) (bool, error) {
	var ok bool
	err := b.run(func() error {
		var err error
		ok, err = b.inner.ReserveStock(ctx, items)
		return err
	})
	return ok, err
}

func (b *BreakerStockCache) ReleaseStock(ctx context.Context, items []models.StockAdjustment) error {
	return b.run(func() error { return b.inner.ReleaseStock(ctx, items) })
}

func (b *BreakerStockCache) CommitStock(ctx context.Context, items []models.StockAdjustment) error {
	return b.run(func() error { return b.inner.CommitStock(ctx, items) })
}

func (b *BreakerStockCache) InitInventory(ctx context.Context, productID string, available, reserved int) error {
	return b.run(func() error { return b.inner.InitInventory(ctx, productID, available, reserved) })
}

func (b *BreakerStockCache) GetInventory(ctx context.Context, productID string) (int, int, error) {
	var available, reserved int
	err := b.run(func() error {
		var err error
		available, reserved, err = b.inner.GetInventory(ctx, productID)
		return err
	})
	return available, reserved, err
}

func (b *BreakerStockCache) DeleteInventory(ctx context.Context, productID string) error {
	return b.run(func() error { return b.inner.DeleteInventory(ctx, productID) })
}
