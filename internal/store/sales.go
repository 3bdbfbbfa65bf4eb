package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"optical-pos/internal/models"
)

const insertSaleQuery = `
	INSERT INTO sales (id, invoice_number, product_id, quantity, unit_price, total_amount, customer_id, payment_method, status, created_at)
	VALUES (:id, :invoice_number, :product_id, :quantity, :unit_price, :total_amount, :customer_id, :payment_method, :status, :created_at)`

// CreateSale records a single sale line
func (s *Store) CreateSale(ctx context.Context, sale *models.Sale) error {
	_, err := s.db.NamedExecContext(ctx, insertSaleQuery, sale)
	return err
}

// ListSales retrieves sales, newest first
func (s *Store) ListSales(ctx context.Context, filter SaleFilter) ([]models.Sale, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.InvoiceNumber != "" {
		args = append(args, filter.InvoiceNumber)
		where = append(where, fmt.Sprintf("invoice_number = $%d", len(args)))
	}
	if filter.CustomerID != "" {
		args = append(args, filter.CustomerID)
		where = append(where, fmt.Sprintf("customer_id = $%d", len(args)))
	}

	query := "SELECT * FROM sales"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	sales := []models.Sale{}
	err := s.db.SelectContext(ctx, &sales, query, args...)
	return sales, err
}

// GetCustomers retrieves all customers
func (s *Store) GetCustomers(ctx context.Context) ([]models.Customer, error) {
	customers := []models.Customer{}
	err := s.db.SelectContext(ctx, &customers, "SELECT * FROM customers ORDER BY name")
	return customers, err
}

// GetCustomerByID retrieves a customer by ID
func (s *Store) GetCustomerByID(ctx context.Context, id string) (*models.Customer, error) {
	var customer models.Customer
	err := s.db.GetContext(ctx, &customer, "SELECT * FROM customers WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("customer %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

// GetPrescriptionsByCustomerID retrieves prescriptions, most recent first
func (s *Store) GetPrescriptionsByCustomerID(ctx context.Context, customerID string) ([]models.Prescription, error) {
	prescriptions := []models.Prescription{}
	err := s.db.SelectContext(ctx, &prescriptions,
		"SELECT * FROM prescriptions WHERE customer_id = $1 ORDER BY issued_at DESC", customerID)
	return prescriptions, err
}
