package worker

import (
	"context"
	"time"

	"optical-pos/internal/broker"
	"optical-pos/internal/models"
	"optical-pos/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Deduper records processed event ids
type Deduper interface {
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// StockRefresher re-mirrors one product from the store
type StockRefresher interface {
	RefreshStock(ctx context.Context, productID string) error
}

const dedupeTTL = 24 * time.Hour

// InventoryWorker resyncs the stock mirror for products touched by sale and
// stock events, so a mirror update lost by one replica is repaired
type InventoryWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	deduper      Deduper
	refresher    StockRefresher
	logger       *zap.Logger
}

// NewInventoryWorker creates a new inventory worker. consumer may be nil
// when messages are fed through HandleMessage directly.
func NewInventoryWorker(consumer *broker.Consumer, deduper Deduper, refresher StockRefresher) *InventoryWorker {
	w := &InventoryWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		deduper:      deduper,
		refresher:    refresher,
		logger:       util.GetLogger(),
	}

	w.eventHandler.OnSaleCompleted(func(ctx context.Context, e *models.SaleCompletedEvent) error {
		return w.resync(ctx, e.BaseEvent, models.ProductIDs(e.Items))
	})
	w.eventHandler.OnSaleCancelled(func(ctx context.Context, e *models.SaleCancelledEvent) error {
		return w.resync(ctx, e.BaseEvent, models.ProductIDs(e.Items))
	})
	w.eventHandler.OnStockChanged(func(ctx context.Context, e *models.StockChangedEvent) error {
		return w.resync(ctx, e.BaseEvent, []string{e.ProductID})
	})

	return w
}

// HandleMessage processes one Kafka message
func (w *InventoryWorker) HandleMessage(ctx context.Context, msg kafka.Message) error {
	return w.eventHandler.HandleMessage(ctx, msg)
}

func (w *InventoryWorker) resync(ctx context.Context, event models.BaseEvent, productIDs []string) error {
	ctx, span := util.StartSpan(ctx, "InventoryWorker.resync")
	defer span.End()

	if event.EventID != "" {
		first, err := w.deduper.MarkProcessed(ctx, "inventory-worker:"+event.EventID, dedupeTTL)
		if err != nil {
			return err
		}
		if !first {
			w.logger.Debug("Event already processed", zap.String("event_id", event.EventID))
			return nil
		}
	}

	for _, id := range productIDs {
		if err := w.refresher.RefreshStock(ctx, id); err != nil {
			w.logger.Error("Failed to resync stock",
				zap.String("event_id", event.EventID),
				zap.String("product_id", id),
				zap.Error(err))
			return err
		}
	}
	return nil
}

// Start starts the worker
func (w *InventoryWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting inventory worker")
	return w.consumer.StartConsuming(ctx, w.HandleMessage)
}

// Stop stops the worker
func (w *InventoryWorker) Stop() error {
	w.logger.Info("Stopping inventory worker")
	return w.consumer.Close()
}

// HoldExpirer cancels checkouts whose stock hold is older than ttl and
// drops empty sessions nobody has touched
type HoldExpirer interface {
	ExpireStaleHolds(ctx context.Context, ttl time.Duration) int
	ExpireIdleSessions(ttl time.Duration) int
}

// HoldExpiryWorker releases abandoned stock holds and idle sessions on a
// fixed interval
type HoldExpiryWorker struct {
	expirer  HoldExpirer
	ttl      time.Duration
	idleTTL  time.Duration
	interval time.Duration
	logger   *zap.Logger
}

// NewHoldExpiryWorker creates a new hold expiry worker
func NewHoldExpiryWorker(expirer HoldExpirer, ttl, idleTTL, interval time.Duration) *HoldExpiryWorker {
	return &HoldExpiryWorker{
		expirer:  expirer,
		ttl:      ttl,
		idleTTL:  idleTTL,
		interval: interval,
		logger:   util.GetLogger(),
	}
}

// Start sweeps until ctx is done
func (w *HoldExpiryWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting hold expiry worker",
		zap.Duration("ttl", w.ttl),
		zap.Duration("idle_ttl", w.idleTTL),
		zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Hold expiry worker stopped")
			return ctx.Err()
		case <-ticker.C:
			if n := w.expirer.ExpireStaleHolds(ctx, w.ttl); n > 0 {
				w.logger.Info("Released expired stock holds", zap.Int("count", n))
			}
			if n := w.expirer.ExpireIdleSessions(w.idleTTL); n > 0 {
				w.logger.Info("Closed idle sessions", zap.Int("count", n))
			}
		}
	}
}
