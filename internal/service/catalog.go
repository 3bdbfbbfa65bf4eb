package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"optical-pos/internal/models"
	"optical-pos/internal/store"
	"optical-pos/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Availability is the stock view of one product
type Availability struct {
	ProductID string `json:"productId"`
	Available int    `json:"available"`
	Reserved  int    `json:"reserved"`
	Source    string `json:"source"`
}

// Catalog reads products and keeps the stock mirror in step with the repository
type Catalog struct {
	repo     store.Repository
	cache    StockCache
	events   EventPublisher
	logger   *zap.Logger
	barcodes singleflight.Group
}

// NewCatalog creates a new catalog
func NewCatalog(repo store.Repository, cache StockCache, events EventPublisher) *Catalog {
	return &Catalog{
		repo:   repo,
		cache:  cache,
		events: events,
		logger: util.GetLogger(),
	}
}

func productErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrProductNotFound, err)
	}
	return err
}

// ListProducts returns every product
func (c *Catalog) ListProducts(ctx context.Context) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "Catalog.ListProducts")
	defer span.End()

	return c.repo.GetProducts(ctx)
}

// GetProduct returns one product by id
func (c *Catalog) GetProduct(ctx context.Context, productID string) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "Catalog.GetProduct")
	defer span.End()

	p, err := c.repo.GetProductByID(ctx, productID)
	if err != nil {
		return nil, productErr(err)
	}
	return p, nil
}

// FindByBarcode returns the product with barcode. Concurrent scans of the
// same code share one lookup.
func (c *Catalog) FindByBarcode(ctx context.Context, barcode string) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "Catalog.FindByBarcode")
	defer span.End()

	v, err, _ := c.barcodes.Do(barcode, func() (interface{}, error) {
		return c.repo.GetProductByBarcode(ctx, barcode)
	})
	if err != nil {
		return nil, productErr(err)
	}

	p := *v.(*models.Product)
	return &p, nil
}

// Availability prefers the mirror and falls back to the repository
func (c *Catalog) Availability(ctx context.Context, productID string) (*Availability, error) {
	ctx, span := util.StartSpan(ctx, "Catalog.Availability")
	defer span.End()

	available, reserved, err := c.cache.GetInventory(ctx, productID)
	if err == nil {
		return &Availability{ProductID: productID, Available: available, Reserved: reserved, Source: "cache"}, nil
	}

	p, err := c.repo.GetProductByID(ctx, productID)
	if err != nil {
		return nil, productErr(err)
	}
	return &Availability{ProductID: p.ID, Available: p.Stock, Reserved: p.Reserved, Source: "store"}, nil
}

// SetStock overwrites the available stock of a product. This is an admin
// adjustment; checkout never calls it.
func (c *Catalog) SetStock(ctx context.Context, productID string, stock int) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "Catalog.SetStock")
	defer span.End()

	if stock < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidStock, stock)
	}

	p, err := c.repo.SetStock(ctx, productID, stock)
	if err != nil {
		util.FailSpan(span, err)
		return nil, productErr(err)
	}

	c.mirror(ctx, p)

	event := &models.StockChangedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeStockChanged,
			Timestamp: time.Now(),
		},
		ProductID: p.ID,
		Stock:     p.Stock,
	}
	if err := c.events.PublishStockChanged(ctx, event); err != nil {
		c.logger.Error("Failed to publish StockChanged event",
			zap.String("product_id", p.ID),
			zap.Error(err))
	}

	c.logger.Info("Stock updated",
		zap.String("product_id", p.ID),
		zap.Int("stock", p.Stock))
	return p, nil
}

// RefreshStock re-mirrors one product from the repository
func (c *Catalog) RefreshStock(ctx context.Context, productID string) error {
	p, err := c.repo.GetProductByID(ctx, productID)
	if errors.Is(err, store.ErrNotFound) {
		return c.cache.DeleteInventory(ctx, productID)
	}
	if err != nil {
		return err
	}
	return c.cache.InitInventory(ctx, p.ID, p.Stock, p.Reserved)
}

// RefreshLines re-mirrors the products of items, logging failures
func (c *Catalog) RefreshLines(ctx context.Context, items []models.StockAdjustment) {
	for _, item := range items {
		if err := c.RefreshStock(ctx, item.ProductID); err != nil {
			util.StockMirrorErrorsTotal.WithLabelValues("refresh").Inc()
			c.logger.Warn("Failed to resync stock mirror",
				zap.String("product_id", item.ProductID),
				zap.Error(err))
		}
	}
}

// SyncInventoryToRedis mirrors every product
func (c *Catalog) SyncInventoryToRedis(ctx context.Context) error {
	c.logger.Info("Starting inventory sync to Redis")

	products, err := c.repo.GetProducts(ctx)
	if err != nil {
		return fmt.Errorf("failed to get products: %w", err)
	}

	failed := 0
	for i := range products {
		if err := c.cache.InitInventory(ctx, products[i].ID, products[i].Stock, products[i].Reserved); err != nil {
			failed++
			c.logger.Error("Failed to init Redis inventory",
				zap.String("product_id", products[i].ID),
				zap.Error(err))
		}
	}

	c.logger.Info("Inventory sync completed",
		zap.Int("count", len(products)),
		zap.Int("failed", failed))
	return nil
}

func (c *Catalog) mirror(ctx context.Context, p *models.Product) {
	if err := c.cache.InitInventory(ctx, p.ID, p.Stock, p.Reserved); err != nil {
		util.StockMirrorErrorsTotal.WithLabelValues("init").Inc()
		c.logger.Warn("Failed to mirror stock",
			zap.String("product_id", p.ID),
			zap.Error(err))
	}
}
