package redisclient

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"optical-pos/internal/models"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/reserve_stock.lua
var reserveStockScript string

//go:embed scripts/release_stock.lua
var releaseStockScript string

//go:embed scripts/commit_stock.lua
var commitStockScript string

var ErrInventoryNotFound = errors.New("inventory not mirrored")

type Client struct {
	rdb           *redis.Client
	reserveScript *redis.Script
	releaseScript *redis.Script
	commitScript  *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:           rdb,
		reserveScript: redis.NewScript(reserveStockScript),
		releaseScript: redis.NewScript(releaseStockScript),
		commitScript:  redis.NewScript(commitStockScript),
	}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the Redis connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func inventoryKey(productID string) string {
	return "inventory:" + productID
}

func scriptArgs(items []models.StockAdjustment) ([]string, []interface{}) {
	keys := make([]string, 0, len(items))
	args := make([]interface{}, 0, len(items))
	for _, item := range items {
		keys = append(keys, inventoryKey(item.ProductID))
		args = append(args, item.Quantity)
	}
	return keys, args
}

// ReserveStock atomically moves every line from available to reserved.
// Returns false, with nothing applied, if any line lacks stock.
func (c *Client) ReserveStock(ctx context.Context, items []models.StockAdjustment) (bool, error) {
	if len(items) == 0 {
		return true, nil
	}
	keys, args := scriptArgs(items)

	result, err := c.reserveScript.Run(ctx, c.rdb, keys, args...).Int64()
	if err != nil {
		return false, fmt.Errorf("reserve stock script failed: %w", err)
	}

	switch result {
	case 1:
		return true, nil
	case -1:
		return false, ErrInventoryNotFound
	default:
		return false, nil
	}
}

// ReleaseStock atomically returns reserved stock to available (compensation)
func (c *Client) ReleaseStock(ctx context.Context, items []models.StockAdjustment) error {
	if len(items) == 0 {
		return nil
	}
	keys, args := scriptArgs(items)

	if err := c.releaseScript.Run(ctx, c.rdb, keys, args...).Err(); err != nil {
		return fmt.Errorf("release stock script failed: %w", err)
	}
	return nil
}

// CommitStock atomically consumes reservations (final deduction)
func (c *Client) CommitStock(ctx context.Context, items []models.StockAdjustment) error {
	if len(items) == 0 {
		return nil
	}
	keys, args := scriptArgs(items)

	if err := c.commitScript.Run(ctx, c.rdb, keys, args...).Err(); err != nil {
		return fmt.Errorf("commit stock script failed: %w", err)
	}
	return nil
}

// InitInventory overwrites the mirrored counts of a product
func (c *Client) InitInventory(ctx context.Context, productID string, available, reserved int) error {
	key := inventoryKey(productID)

	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, key, "available", available, "reserved", reserved)
	_, err := pipe.Exec(ctx)
	return err
}

// GetInventory retrieves current mirrored counts
func (c *Client) GetInventory(ctx context.Context, productID string) (available, reserved int, err error) {
	result, err := c.rdb.HGetAll(ctx, inventoryKey(productID)).Result()
	if err != nil {
		return 0, 0, err
	}

	if len(result) == 0 {
		return 0, 0, fmt.Errorf("%w: product %s", ErrInventoryNotFound, productID)
	}

	available, err = strconv.Atoi(result["available"])
	if err != nil {
		return 0, 0, fmt.Errorf("bad available count for %s: %w", productID, err)
	}
	reserved, _ = strconv.Atoi(result["reserved"])

	return available, reserved, nil
}

// DeleteInventory drops the mirror of a product
func (c *Client) DeleteInventory(ctx context.Context, productID string) error {
	return c.rdb.Del(ctx, inventoryKey(productID)).Err()
}

// MarkProcessed records an idempotency key. It returns false if the key was
// already recorded.
func (c *Client) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("idempotency:%s", key), "1", ttl).Result()
}
