package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"optical-pos/internal/models"
	"optical-pos/internal/store"

	"github.com/shopspring/decimal"
)

// Store is an in-memory store.Repository used in dev mode and tests
type Store struct {
	mu            sync.RWMutex
	products      map[string]models.Product
	customers     map[string]models.Customer
	prescriptions map[string][]models.Prescription
	sales         []models.Sale

	failures map[string]error
}

var _ store.Repository = (*Store)(nil)

// New creates an empty store
func New() *Store {
	return &Store{
		products:      make(map[string]models.Product),
		customers:     make(map[string]models.Customer),
		prescriptions: make(map[string][]models.Prescription),
		failures:      make(map[string]error),
	}
}

// NewSeeded creates a store with demo eyewear data
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	products := []models.Product{
		{ID: "FR-001", Name: "Aviator Classic Frame", Barcode: "8901000000011", Price: decimal.RequireFromString("120.00"), Category: "frames", Stock: 8},
		{ID: "FR-002", Name: "Round Acetate Frame", Barcode: "8901000000028", Price: decimal.RequireFromString("95.00"), Category: "frames", Stock: 5},
		{ID: "FR-003", Name: "Kids Flex Frame", Barcode: "8901000000035", Price: decimal.RequireFromString("64.50"), Category: "frames", Stock: 3},
		{ID: "LN-001", Name: "Single Vision Lens Pair", Barcode: "8901000000042", Price: decimal.RequireFromString("45.50"), Category: "lenses", Stock: 40},
		{ID: "LN-002", Name: "Progressive Lens Pair", Barcode: "8901000000059", Price: decimal.RequireFromString("210.00"), Category: "lenses", Stock: 12},
		{ID: "LN-003", Name: "Blue Light Coating", Barcode: "8901000000066", Price: decimal.RequireFromString("30.00"), Category: "lenses", Stock: 25},
		{ID: "CL-001", Name: "Daily Contact Lenses 30pk", Barcode: "8901000000073", Price: decimal.RequireFromString("38.99"), Category: "contacts", Stock: 18},
		{ID: "AC-001", Name: "Microfiber Cleaning Cloth", Barcode: "8901000000080", Price: decimal.RequireFromString("4.99"), Category: "accessories", Stock: 100},
		{ID: "AC-002", Name: "Hard Shell Case", Barcode: "8901000000097", Price: decimal.RequireFromString("12.00"), Category: "accessories", Stock: 0},
	}
	for _, p := range products {
		p.CreatedAt, p.UpdatedAt = now, now
		s.PutProduct(p)
	}

	customers := []models.Customer{
		{ID: "CUST-001", Name: "Asha Rao", Phone: "555-0101", Email: "asha@example.com"},
		{ID: "CUST-002", Name: "Daniel Okafor", Phone: "555-0102", Email: "daniel@example.com"},
		{ID: "CUST-003", Name: "Mei Lin", Phone: "555-0103"},
	}
	for _, c := range customers {
		c.CreatedAt = now
		s.PutCustomer(c)
	}

	s.PutPrescription(models.Prescription{
		ID: "RX-001", CustomerID: "CUST-001",
		RightSphere: -1.25, RightCylinder: -0.50, RightAxis: 180,
		LeftSphere: -1.50, LeftCylinder: -0.25, LeftAxis: 170,
		PupillaryDistance: 62, IssuedAt: now.AddDate(0, -3, 0),
	})
	s.PutPrescription(models.Prescription{
		ID: "RX-002", CustomerID: "CUST-002",
		RightSphere: 1.75, LeftSphere: 2.00, Addition: 1.50,
		PupillaryDistance: 64, Notes: "progressive wearer", IssuedAt: now.AddDate(-1, 0, 0),
	})

	return s
}

// PutProduct inserts or replaces a product
func (s *Store) PutProduct(p models.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

// DeleteProduct removes a product
func (s *Store) DeleteProduct(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.products, id)
}

// PutCustomer inserts or replaces a customer
func (s *Store) PutCustomer(c models.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[c.ID] = c
}

// PutPrescription adds a prescription to its customer
func (s *Store) PutPrescription(rx models.Prescription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prescriptions[rx.CustomerID] = append(s.prescriptions[rx.CustomerID], rx)
}

// FailOn makes the named operation return err until cleared with a nil err
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *Store) failure(op string) error {
	if err, ok := s.failures[op]; ok {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failure("Ping")
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) GetProducts(ctx context.Context) ([]models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure("GetProducts"); err != nil {
		return nil, err
	}

	out := make([]models.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure("GetProductByID"); err != nil {
		return nil, err
	}

	p, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, store.ErrNotFound)
	}
	return &p, nil
}

func (s *Store) GetProductByBarcode(ctx context.Context, barcode string) (*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure("GetProductByBarcode"); err != nil {
		return nil, err
	}

	for _, p := range s.products {
		if p.Barcode == barcode {
			found := p
			return &found, nil
		}
	}
	return nil, fmt.Errorf("barcode %s: %w", barcode, store.ErrNotFound)
}

func (s *Store) SetStock(ctx context.Context, productID string, stock int) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("SetStock"); err != nil {
		return nil, err
	}

	p, ok := s.products[productID]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", productID, store.ErrNotFound)
	}
	p.Stock = stock
	p.UpdatedAt = time.Now().UTC()
	s.products[productID] = p
	return &p, nil
}

// HoldStock validates every line before applying any
func (s *Store) HoldStock(ctx context.Context, items []models.StockAdjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("HoldStock"); err != nil {
		return err
	}

	need := make(map[string]int)
	for _, item := range items {
		p, ok := s.products[item.ProductID]
		if !ok {
			return fmt.Errorf("product %s: %w", item.ProductID, store.ErrNotFound)
		}
		need[item.ProductID] += item.Quantity
		if need[item.ProductID] > p.Stock {
			return fmt.Errorf("%w: product=%s available=%d requested=%d",
				store.ErrInsufficientStock, item.ProductID, p.Stock, need[item.ProductID])
		}
	}

	now := time.Now().UTC()
	for _, item := range items {
		p := s.products[item.ProductID]
		p.Stock -= item.Quantity
		p.Reserved += item.Quantity
		p.UpdatedAt = now
		s.products[item.ProductID] = p
	}
	return nil
}

func (s *Store) CommitSale(ctx context.Context, sales []models.Sale) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("CommitSale"); err != nil {
		return err
	}

	need := make(map[string]int)
	for _, sale := range sales {
		p, ok := s.products[sale.ProductID]
		need[sale.ProductID] += sale.Quantity
		if !ok || need[sale.ProductID] > p.Reserved {
			return fmt.Errorf("%w: product=%s quantity=%d", store.ErrHoldMismatch, sale.ProductID, sale.Quantity)
		}
	}

	now := time.Now().UTC()
	for _, sale := range sales {
		p := s.products[sale.ProductID]
		p.Reserved -= sale.Quantity
		p.UpdatedAt = now
		s.products[sale.ProductID] = p
		s.sales = append(s.sales, sale)
	}
	return nil
}

func (s *Store) ReleaseSale(ctx context.Context, sales []models.Sale) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("ReleaseSale"); err != nil {
		return nil, err
	}

	var skipped []string
	now := time.Now().UTC()
	for _, sale := range sales {
		p, ok := s.products[sale.ProductID]
		if !ok {
			skipped = append(skipped, sale.ProductID)
			continue
		}
		p.Stock += sale.Quantity
		p.Reserved -= sale.Quantity
		if p.Reserved < 0 {
			p.Reserved = 0
		}
		p.UpdatedAt = now
		s.products[sale.ProductID] = p
	}
	s.sales = append(s.sales, sales...)
	return skipped, nil
}

func (s *Store) CreateSale(ctx context.Context, sale *models.Sale) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("CreateSale"); err != nil {
		return err
	}
	s.sales = append(s.sales, *sale)
	return nil
}

// ListSales returns sales newest first
func (s *Store) ListSales(ctx context.Context, filter store.SaleFilter) ([]models.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure("ListSales"); err != nil {
		return nil, err
	}

	out := []models.Sale{}
	for i := len(s.sales) - 1; i >= 0; i-- {
		sale := s.sales[i]
		if filter.InvoiceNumber != "" && sale.InvoiceNumber != filter.InvoiceNumber {
			continue
		}
		if filter.CustomerID != "" && (sale.CustomerID == nil || *sale.CustomerID != filter.CustomerID) {
			continue
		}
		out = append(out, sale)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *Store) GetCustomers(ctx context.Context) ([]models.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure("GetCustomers"); err != nil {
		return nil, err
	}

	out := make([]models.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GetCustomerByID(ctx context.Context, id string) (*models.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure("GetCustomerByID"); err != nil {
		return nil, err
	}

	c, ok := s.customers[id]
	if !ok {
		return nil, fmt.Errorf("customer %s: %w", id, store.ErrNotFound)
	}
	return &c, nil
}

func (s *Store) GetPrescriptionsByCustomerID(ctx context.Context, customerID string) ([]models.Prescription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure("GetPrescriptionsByCustomerID"); err != nil {
		return nil, err
	}

	out := append([]models.Prescription{}, s.prescriptions[customerID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.After(out[j].IssuedAt) })
	return out, nil
}
