package cart

import (
	"sync"
	"testing"

	"optical-pos/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func product(id string, price int64, stock int) models.Product {
	return models.Product{
		ID:       id,
		Name:     "Frame " + id,
		Barcode:  "BC-" + id,
		Price:    decimal.NewFromInt(price),
		Category: "frames",
		Stock:    stock,
	}
}

func sessionWithCustomer(t *testing.T) *Session {
	s := NewSession("session-1")
	require.NoError(t, s.SetCustomer(&models.Customer{ID: "C1", Name: "Asha"}))
	return s
}

func TestAddItem_RequiresCustomer(t *testing.T) {
	s := NewSession("session-1")

	err := s.AddItem(product("P1", 100, 5))

	assert.ErrorIs(t, err, ErrNoCustomerSelected)
	assert.Empty(t, s.Items())
	assert.Equal(t, StateEmpty, s.State())
}

func TestAddItem_IncrementsExistingLine(t *testing.T) {
	s := sessionWithCustomer(t)
	p := product("P1", 100, 5)

	require.NoError(t, s.AddItem(p))
	require.NoError(t, s.AddItem(p))
	require.NoError(t, s.AddItem(product("P2", 50, 1)))

	items := s.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "P1", items[0].ProductID)
	assert.Equal(t, 2, items[0].Quantity)
	assert.Equal(t, "P2", items[1].ProductID)
	assert.Equal(t, 1, items[1].Quantity)
	assert.Equal(t, StateBuilding, s.State())
}

func TestAddItem_StockLimit(t *testing.T) {
	s := sessionWithCustomer(t)
	p := product("P1", 100, 2)

	require.NoError(t, s.AddItem(p))
	require.NoError(t, s.AddItem(p))
	err := s.AddItem(p)

	assert.ErrorIs(t, err, ErrStockLimitExceeded)
	assert.Equal(t, 2, s.Items()[0].Quantity)
}

func TestAddItem_OutOfStock(t *testing.T) {
	s := sessionWithCustomer(t)

	err := s.AddItem(product("P1", 100, 0))

	assert.ErrorIs(t, err, ErrStockLimitExceeded)
	assert.Empty(t, s.Items())
}

func TestAddItem_UsesLatestStock(t *testing.T) {
	s := sessionWithCustomer(t)

	require.NoError(t, s.AddItem(product("P1", 100, 5)))
	// stock dropped elsewhere since the first add
	err := s.AddItem(product("P1", 100, 1))

	assert.ErrorIs(t, err, ErrStockLimitExceeded)
	assert.Equal(t, 1, s.Items()[0].Quantity)
}

func TestRemoveItem(t *testing.T) {
	s := sessionWithCustomer(t)
	require.NoError(t, s.AddItem(product("P1", 100, 5)))
	require.NoError(t, s.AddItem(product("P2", 50, 5)))

	require.NoError(t, s.RemoveItem("P1"))
	require.NoError(t, s.RemoveItem("missing"))

	items := s.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "P2", items[0].ProductID)
}

func TestUpdateQuantity(t *testing.T) {
	tests := []struct {
		name     string
		quantity int
		stock    int
		wantErr  error
		wantQty  int
	}{
		{name: "within stock", quantity: 3, stock: 5, wantQty: 3},
		{name: "equal to stock", quantity: 5, stock: 5, wantQty: 5},
		{name: "clamped to one", quantity: 0, stock: 5, wantQty: 1},
		{name: "negative clamped", quantity: -4, stock: 5, wantQty: 1},
		{name: "above stock", quantity: 6, stock: 5, wantErr: ErrStockLimitExceeded, wantQty: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := sessionWithCustomer(t)
			require.NoError(t, s.AddItem(product("P1", 100, 5)))

			err := s.UpdateQuantity("P1", tt.quantity, tt.stock)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantQty, s.Items()[0].Quantity)
		})
	}
}

func TestUpdateQuantity_UnknownItem(t *testing.T) {
	s := sessionWithCustomer(t)

	err := s.UpdateQuantity("P9", 2, 10)

	assert.ErrorIs(t, err, ErrItemNotInCart)
}

func TestSetCustomerNil_ClearsCart(t *testing.T) {
	s := sessionWithCustomer(t)
	require.NoError(t, s.AddItem(product("P1", 100, 5)))
	require.NoError(t, s.AddItem(product("P2", 50, 5)))

	require.NoError(t, s.SetCustomer(nil))

	assert.Empty(t, s.Items())
	assert.Nil(t, s.Customer())
	assert.Equal(t, StateEmpty, s.State())
}

func TestSetCustomer_KeepsItems(t *testing.T) {
	s := sessionWithCustomer(t)
	require.NoError(t, s.AddItem(product("P1", 100, 5)))

	require.NoError(t, s.SetCustomer(&models.Customer{ID: "C2"}))

	assert.Len(t, s.Items(), 1)
	assert.Equal(t, "C2", s.Customer().ID)
}

func TestClear(t *testing.T) {
	s := sessionWithCustomer(t)
	require.NoError(t, s.AddItem(product("P1", 100, 5)))

	require.NoError(t, s.Clear())

	assert.Empty(t, s.Items())
	assert.NotNil(t, s.Customer())
}

func TestBeginCheckout_EmptyCart(t *testing.T) {
	s := sessionWithCustomer(t)

	_, err := s.BeginCheckout()

	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestInvoicedSession_RejectsMutations(t *testing.T) {
	s := sessionWithCustomer(t)
	require.NoError(t, s.AddItem(product("P1", 100, 5)))

	snap, err := s.BeginCheckout()
	require.NoError(t, err)

	// frozen while the hold is in flight
	assert.ErrorIs(t, s.AddItem(product("P1", 100, 5)), ErrInvalidTransition)

	s.MarkInvoiced(Invoice{InvoiceDetails: InvoiceDetails{InvoiceNumber: "INV-00000001"}, Items: snap.Items}, true)
	assert.Equal(t, StateInvoiced, s.State())

	assert.ErrorIs(t, s.AddItem(product("P2", 50, 5)), ErrInvalidTransition)
	assert.ErrorIs(t, s.RemoveItem("P1"), ErrInvalidTransition)
	assert.ErrorIs(t, s.UpdateQuantity("P1", 2, 5), ErrInvalidTransition)
	assert.ErrorIs(t, s.Clear(), ErrInvalidTransition)
	assert.ErrorIs(t, s.SetCustomer(nil), ErrInvalidTransition)
	_, err = s.BeginCheckout()
	assert.ErrorIs(t, err, ErrInvalidTransition)

	assert.Len(t, s.Items(), 1)
}

func TestBeginCommit_RequiresInvoiced(t *testing.T) {
	s := sessionWithCustomer(t)
	require.NoError(t, s.AddItem(product("P1", 100, 5)))

	_, err := s.BeginCommit()

	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestBeginCommit_SingleClaim(t *testing.T) {
	s := sessionWithCustomer(t)
	require.NoError(t, s.AddItem(product("P1", 100, 5)))
	_, err := s.BeginCheckout()
	require.NoError(t, err)
	s.MarkInvoiced(Invoice{}, false)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.BeginCommit(); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestAbort_AllowsRetry(t *testing.T) {
	s := sessionWithCustomer(t)
	require.NoError(t, s.AddItem(product("P1", 100, 5)))

	_, err := s.BeginCheckout()
	require.NoError(t, err)
	s.Abort()

	assert.Equal(t, StateBuilding, s.State())
	assert.NoError(t, s.AddItem(product("P1", 100, 5)))
}

func TestFinish_ResetsSession(t *testing.T) {
	s := sessionWithCustomer(t)
	require.NoError(t, s.AddItem(product("P1", 100, 5)))
	_, err := s.BeginCheckout()
	require.NoError(t, err)
	s.MarkInvoiced(Invoice{}, false)
	_, err = s.BeginCommit()
	require.NoError(t, err)

	s.Finish(StateFinalized)

	view := s.View()
	assert.Equal(t, StateEmpty, view.State)
	assert.Empty(t, view.Items)
	assert.Nil(t, view.Customer)
	assert.Nil(t, view.Invoice)
	assert.Equal(t, StateFinalized, view.LastOutcome)
	assert.NotNil(t, view.LastOutcomeAt)
}

func TestSnapshot_IsolatedFromSession(t *testing.T) {
	s := sessionWithCustomer(t)
	require.NoError(t, s.AddItem(product("P1", 100, 5)))

	snap, err := s.BeginCheckout()
	require.NoError(t, err)
	snap.Items[0].Quantity = 99

	assert.Equal(t, 1, s.Items()[0].Quantity)
	assert.Equal(t, []models.StockAdjustment{{ProductID: "P1", Quantity: 1}}, s.snapshotAdjustments())
}

func (s *Session) snapshotAdjustments() []models.StockAdjustment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked().Adjustments()
}

func TestStockBound_RandomSequence(t *testing.T) {
	s := sessionWithCustomer(t)
	stock := 4
	p := product("P1", 10, stock)

	ops := []int{1, 1, 7, 1, 1, 1, 3, 1, 0, 5, 1, 1}
	for _, op := range ops {
		if op == 1 {
			_ = s.AddItem(p)
		} else {
			_ = s.UpdateQuantity("P1", op, stock)
		}
		for _, item := range s.Items() {
			assert.LessOrEqual(t, item.Quantity, stock)
		}
	}

	ids := map[string]bool{}
	for _, item := range s.Items() {
		assert.False(t, ids[item.ProductID], "duplicate line for %s", item.ProductID)
		ids[item.ProductID] = true
	}
}

func TestClose(t *testing.T) {
	s := sessionWithCustomer(t)
	require.NoError(t, s.AddItem(product("P1", 100, 5)))

	_, err := s.BeginCheckout()
	require.NoError(t, err)
	assert.ErrorIs(t, s.Close(), ErrInvalidTransition, "in-flight hold")

	s.MarkInvoiced(Invoice{}, true)
	assert.ErrorIs(t, s.Close(), ErrInvalidTransition, "invoiced")

	_, err = s.BeginCommit()
	require.NoError(t, err)
	s.Finish(StateCancelled)
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Close(), ErrInvalidTransition)
}

func TestClosedSession_RejectsCheckout(t *testing.T) {
	s := sessionWithCustomer(t)
	require.NoError(t, s.AddItem(product("P1", 100, 5)))
	require.NoError(t, s.Close())

	_, err := s.BeginCheckout()
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = s.BeginCommit()
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.ErrorIs(t, s.AddItem(product("P2", 50, 5)), ErrInvalidTransition)
}

func TestSnapshot_CarriesMirroredHold(t *testing.T) {
	s := sessionWithCustomer(t)
	require.NoError(t, s.AddItem(product("P1", 100, 5)))
	_, err := s.BeginCheckout()
	require.NoError(t, err)
	s.MarkInvoiced(Invoice{}, false)

	snap, err := s.BeginCommit()
	require.NoError(t, err)
	assert.False(t, snap.Mirrored)
	s.Abort()

	s.MarkInvoiced(Invoice{}, true)
	snap, err = s.BeginCommit()
	require.NoError(t, err)
	assert.True(t, snap.Mirrored)
}

func TestIdleSince(t *testing.T) {
	s := NewSession("session-2")

	since, idle := s.IdleSince()
	assert.True(t, idle)
	assert.False(t, since.IsZero())

	require.NoError(t, s.SetCustomer(&models.Customer{ID: "C1"}))
	require.NoError(t, s.AddItem(product("P1", 100, 5)))
	_, idle = s.IdleSince()
	assert.False(t, idle, "building cart is not idle")

	require.NoError(t, s.Clear())
	after, idle := s.IdleSince()
	assert.True(t, idle)
	assert.False(t, after.Before(since))
}
