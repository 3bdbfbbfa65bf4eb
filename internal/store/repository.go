package store

import (
	"context"
	"errors"

	"optical-pos/internal/models"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrHoldMismatch      = errors.New("stock hold does not cover sale")
)

// SaleFilter narrows ListSales; empty fields match everything
type SaleFilter struct {
	InvoiceNumber string
	CustomerID    string
	Limit         int
}

// Repository is the persistence boundary of the checkout service. Multi-line
// stock operations are all-or-nothing.
type Repository interface {
	Ping(ctx context.Context) error
	Close() error

	GetProducts(ctx context.Context) ([]models.Product, error)
	GetProductByID(ctx context.Context, id string) (*models.Product, error)
	GetProductByBarcode(ctx context.Context, barcode string) (*models.Product, error)
	SetStock(ctx context.Context, productID string, stock int) (*models.Product, error)

	// HoldStock moves quantity from stock to reserved for every line, or
	// applies nothing
	HoldStock(ctx context.Context, items []models.StockAdjustment) error
	// CommitSale records completed sales and consumes their holds
	CommitSale(ctx context.Context, sales []models.Sale) error
	// ReleaseSale returns held quantity to stock and records cancelled sales.
	// Products that no longer exist are skipped and returned.
	ReleaseSale(ctx context.Context, sales []models.Sale) ([]string, error)

	CreateSale(ctx context.Context, sale *models.Sale) error
	ListSales(ctx context.Context, filter SaleFilter) ([]models.Sale, error)

	GetCustomers(ctx context.Context) ([]models.Customer, error)
	GetCustomerByID(ctx context.Context, id string) (*models.Customer, error)
	GetPrescriptionsByCustomerID(ctx context.Context, customerID string) ([]models.Prescription, error)
}
