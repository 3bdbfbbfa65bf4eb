package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"optical-pos/internal/models"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string, maxOpenConns int) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if maxOpenConns < 1 {
		maxOpenConns = 25
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// RunMigrations applies the embedded schema migrations
func (s *Store) RunMigrations() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("could not open migrations: %w", err)
	}

	driver, err := postgres.WithInstance(s.db.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProductByBarcode retrieves a product by barcode
func (s *Store) GetProductByBarcode(ctx context.Context, barcode string) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE barcode = $1", barcode)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("barcode %s: %w", barcode, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProducts retrieves all products
func (s *Store) GetProducts(ctx context.Context) ([]models.Product, error) {
	products := []models.Product{}
	err := s.db.SelectContext(ctx, &products, "SELECT * FROM products ORDER BY id")
	return products, err
}

// SetStock overwrites the available stock of a product
func (s *Store) SetStock(ctx context.Context, productID string, stock int) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product,
		"UPDATE products SET stock = $1, updated_at = NOW() WHERE id = $2 RETURNING *",
		stock, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", productID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// HoldStock reserves stock for every line inside one transaction
func (s *Store) HoldStock(ctx context.Context, items []models.StockAdjustment) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, item := range items {
		res, err := tx.ExecContext(ctx,
			"UPDATE products SET stock = stock - $1, reserved = reserved + $1, updated_at = NOW() WHERE id = $2 AND stock >= $1",
			item.Quantity, item.ProductID)
		if err != nil {
			return fmt.Errorf("failed to hold stock for %s: %w", item.ProductID, err)
		}

		if n, _ := res.RowsAffected(); n == 0 {
			var available int
			err := tx.GetContext(ctx, &available, "SELECT stock FROM products WHERE id = $1", item.ProductID)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("product %s: %w", item.ProductID, ErrNotFound)
			}
			if err != nil {
				return err
			}
			return fmt.Errorf("%w: product=%s available=%d requested=%d",
				ErrInsufficientStock, item.ProductID, available, item.Quantity)
		}
	}

	return tx.Commit()
}

// CommitSale converts holds into final deductions and records the sales
func (s *Store) CommitSale(ctx context.Context, sales []models.Sale) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, sale := range sales {
		if _, err := tx.NamedExecContext(ctx, insertSaleQuery, sale); err != nil {
			return fmt.Errorf("failed to create sale for %s: %w", sale.ProductID, err)
		}

		res, err := tx.ExecContext(ctx,
			"UPDATE products SET reserved = reserved - $1, updated_at = NOW() WHERE id = $2 AND reserved >= $1",
			sale.Quantity, sale.ProductID)
		if err != nil {
			return fmt.Errorf("failed to commit stock for %s: %w", sale.ProductID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: product=%s quantity=%d", ErrHoldMismatch, sale.ProductID, sale.Quantity)
		}
	}

	return tx.Commit()
}

// ReleaseSale restores held stock and records cancelled sales
func (s *Store) ReleaseSale(ctx context.Context, sales []models.Sale) ([]string, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var skipped []string
	for _, sale := range sales {
		res, err := tx.ExecContext(ctx,
			"UPDATE products SET stock = stock + $1, reserved = GREATEST(reserved - $1, 0), updated_at = NOW() WHERE id = $2",
			sale.Quantity, sale.ProductID)
		if err != nil {
			return nil, fmt.Errorf("failed to restore stock for %s: %w", sale.ProductID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			skipped = append(skipped, sale.ProductID)
		}
	}

	for _, sale := range sales {
		if _, err := tx.NamedExecContext(ctx, insertSaleQuery, sale); err != nil {
			return nil, fmt.Errorf("failed to record cancelled sale for %s: %w", sale.ProductID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return skipped, nil
}
