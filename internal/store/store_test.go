package store

import (
	"context"
	"testing"
	"time"

	"optical-pos/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestStore(t *testing.T) *Store {
	if testing.Short() {
		t.Skip("Integration test - requires docker")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("optical_test"),
		postgres.WithUsername("app"),
		postgres.WithPassword("secret"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := NewStore(dsn, 5)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.RunMigrations())
	// second run is a no-op
	require.NoError(t, s.RunMigrations())

	s.db.MustExec(`INSERT INTO products (id, name, barcode, price, category, stock) VALUES
		('FR-001', 'Aviator Classic', '8901000000011', 120.00, 'frames', 5),
		('LN-001', 'Single Vision Lens', '8901000000028', 45.50, 'lenses', 2)`)
	s.db.MustExec(`INSERT INTO customers (id, name, phone) VALUES ('C1', 'Asha Rao', '555-0101')`)
	s.db.MustExec(`INSERT INTO prescriptions (id, customer_id, right_sphere, left_sphere, pupillary_distance)
		VALUES ('RX1', 'C1', -1.25, -1.50, 62.0)`)

	return s
}

func stockOf(t *testing.T, s *Store, id string) (int, int) {
	p, err := s.GetProductByID(context.Background(), id)
	require.NoError(t, err)
	return p.Stock, p.Reserved
}

func saleLine(invoice, productID string, qty int, price string, status string) models.Sale {
	unit := decimal.RequireFromString(price)
	customerID := "C1"
	return models.Sale{
		ID:            uuid.NewString(),
		InvoiceNumber: invoice,
		ProductID:     productID,
		Quantity:      qty,
		UnitPrice:     unit,
		TotalAmount:   unit.Mul(decimal.NewFromInt(int64(qty))),
		CustomerID:    &customerID,
		PaymentMethod: models.PaymentMethodCash,
		Status:        status,
		CreatedAt:     time.Now().UTC(),
	}
}

func TestProductLookups(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	products, err := s.GetProducts(ctx)
	require.NoError(t, err)
	assert.Len(t, products, 2)

	p, err := s.GetProductByBarcode(ctx, "8901000000028")
	require.NoError(t, err)
	assert.Equal(t, "LN-001", p.ID)
	assert.Equal(t, "45.5", p.Price.String())

	_, err = s.GetProductByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHoldCommitRelease(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	err := s.HoldStock(ctx, []models.StockAdjustment{
		{ProductID: "FR-001", Quantity: 2},
		{ProductID: "LN-001", Quantity: 1},
	})
	require.NoError(t, err)

	stock, reserved := stockOf(t, s, "FR-001")
	assert.Equal(t, 3, stock)
	assert.Equal(t, 2, reserved)

	err = s.CommitSale(ctx, []models.Sale{
		saleLine("INV-00000001", "FR-001", 2, "120.00", models.SaleStatusCompleted),
	})
	require.NoError(t, err)

	stock, reserved = stockOf(t, s, "FR-001")
	assert.Equal(t, 3, stock)
	assert.Equal(t, 0, reserved)

	skipped, err := s.ReleaseSale(ctx, []models.Sale{
		saleLine("INV-00000002", "LN-001", 1, "45.50", models.SaleStatusCancelled),
		saleLine("INV-00000002", "GONE-1", 1, "10.00", models.SaleStatusCancelled),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"GONE-1"}, skipped)

	stock, reserved = stockOf(t, s, "LN-001")
	assert.Equal(t, 2, stock)
	assert.Equal(t, 0, reserved)

	sales, err := s.ListSales(ctx, SaleFilter{InvoiceNumber: "INV-00000002"})
	require.NoError(t, err)
	assert.Len(t, sales, 2)
	for _, sale := range sales {
		assert.Equal(t, models.SaleStatusCancelled, sale.Status)
	}
}

func TestHoldStock_AllOrNothing(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	err := s.HoldStock(ctx, []models.StockAdjustment{
		{ProductID: "FR-001", Quantity: 1},
		{ProductID: "LN-001", Quantity: 3},
	})
	assert.ErrorIs(t, err, ErrInsufficientStock)

	stock, reserved := stockOf(t, s, "FR-001")
	assert.Equal(t, 5, stock)
	assert.Equal(t, 0, reserved)

	err = s.HoldStock(ctx, []models.StockAdjustment{{ProductID: "missing", Quantity: 1}})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCommitSale_WithoutHold(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	err := s.CommitSale(ctx, []models.Sale{
		saleLine("INV-00000003", "FR-001", 1, "120.00", models.SaleStatusCompleted),
	})
	assert.ErrorIs(t, err, ErrHoldMismatch)

	// the sale insert rolled back with the failed deduction
	sales, err := s.ListSales(ctx, SaleFilter{InvoiceNumber: "INV-00000003"})
	require.NoError(t, err)
	assert.Empty(t, sales)
}

func TestSetStock(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	p, err := s.SetStock(ctx, "FR-001", 9)
	require.NoError(t, err)
	assert.Equal(t, 9, p.Stock)

	_, err = s.SetStock(ctx, "missing", 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCustomersAndPrescriptions(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	customers, err := s.GetCustomers(ctx)
	require.NoError(t, err)
	require.Len(t, customers, 1)

	c, err := s.GetCustomerByID(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, "Asha Rao", c.Name)

	_, err = s.GetCustomerByID(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)

	rx, err := s.GetPrescriptionsByCustomerID(ctx, "C1")
	require.NoError(t, err)
	require.Len(t, rx, 1)
	assert.Equal(t, -1.25, rx[0].RightSphere)
	assert.Equal(t, 62.0, rx[0].PupillaryDistance)
}
