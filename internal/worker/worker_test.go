package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"optical-pos/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (d *memoryDeduper) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[key] {
		return false, nil
	}
	d.seen[key] = true
	return true, nil
}

type recordingRefresher struct {
	ids []string
	err error
}

func (r *recordingRefresher) RefreshStock(ctx context.Context, productID string) error {
	if r.err != nil {
		return r.err
	}
	r.ids = append(r.ids, productID)
	return nil
}

func message(t *testing.T, event interface{}) kafka.Message {
	value, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Value: value}
}

func TestInventoryWorker_ResyncsOnce(t *testing.T) {
	refresher := &recordingRefresher{}
	w := NewInventoryWorker(nil, &memoryDeduper{seen: map[string]bool{}}, refresher)
	ctx := context.Background()

	msg := message(t, models.SaleCompletedEvent{
		BaseEvent: models.BaseEvent{EventID: "evt-1", EventType: models.EventTypeSaleCompleted},
		Items: []models.SaleLineData{
			{ProductID: "FR-001", Quantity: 2},
			{ProductID: "LN-001", Quantity: 1},
		},
	})

	require.NoError(t, w.HandleMessage(ctx, msg))
	require.NoError(t, w.HandleMessage(ctx, msg))

	assert.Equal(t, []string{"FR-001", "LN-001"}, refresher.ids)
}

func TestInventoryWorker_StockChanged(t *testing.T) {
	refresher := &recordingRefresher{}
	w := NewInventoryWorker(nil, &memoryDeduper{seen: map[string]bool{}}, refresher)

	require.NoError(t, w.HandleMessage(context.Background(), message(t, models.StockChangedEvent{
		BaseEvent: models.BaseEvent{EventID: "evt-2", EventType: models.EventTypeStockChanged},
		ProductID: "AC-001",
		Stock:     12,
	})))

	assert.Equal(t, []string{"AC-001"}, refresher.ids)
}

func TestInventoryWorker_RefreshError(t *testing.T) {
	boom := errors.New("store unavailable")
	w := NewInventoryWorker(nil, &memoryDeduper{seen: map[string]bool{}}, &recordingRefresher{err: boom})

	err := w.HandleMessage(context.Background(), message(t, models.SaleCancelledEvent{
		BaseEvent: models.BaseEvent{EventID: "evt-3", EventType: models.EventTypeSaleCancelled},
		Items:     []models.SaleLineData{{ProductID: "FR-001", Quantity: 1}},
	}))

	assert.ErrorIs(t, err, boom)
}

type countingExpirer struct {
	calls     atomic.Int32
	idleCalls atomic.Int32
	idleTTL   atomic.Int64
}

func (e *countingExpirer) ExpireStaleHolds(ctx context.Context, ttl time.Duration) int {
	e.calls.Add(1)
	return 1
}

func (e *countingExpirer) ExpireIdleSessions(ttl time.Duration) int {
	e.idleCalls.Add(1)
	e.idleTTL.Store(int64(ttl))
	return 0
}

func TestHoldExpiryWorker_SweepsUntilCancelled(t *testing.T) {
	expirer := &countingExpirer{}
	w := NewHoldExpiryWorker(expirer, time.Minute, time.Hour, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	assert.Eventually(t, func() bool { return expirer.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return expirer.idleCalls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(time.Hour), expirer.idleTTL.Load())

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
