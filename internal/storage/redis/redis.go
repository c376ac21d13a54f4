package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/TimoDeg/margin-hunter/internal/models"
	"github.com/TimoDeg/margin-hunter/internal/storage"

	"github.com/redis/go-redis/v9"
)

const statusKey = "scraper:status"

type RedisRepo struct {
	client     *redis.Client
	DefaultTTL time.Duration
}

func New(ctx context.Context, address string, db int, defaultTTL time.Duration) (*RedisRepo, error) {
	const op = "storage.redis.New"

	rdb := redis.NewClient(&redis.Options{
		Addr: address,
		DB:   db,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &RedisRepo{
		client:     rdb,
		DefaultTTL: defaultTTL,
	}, nil
}

func (r *RedisRepo) SaveProduct(ctx context.Context, product models.Product) error {
	const op = "storage.redis.SaveProduct"

	data, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	key := fmt.Sprintf("product:%d", product.ID)

	if err := r.client.Set(ctx, key, data, r.DefaultTTL).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *RedisRepo) Product(ctx context.Context, productID int64) (models.Product, error) {
	const op = "storage.redis.Product"

	var product models.Product

	key := fmt.Sprintf("product:%d", productID)

	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return product, storage.ErrProductNotFound
		}
		return product, fmt.Errorf("%s: %w", op, err)
	}

	if err := json.Unmarshal(data, &product); err != nil {
		return product, fmt.Errorf("%s: %w", op, err)
	}

	return product, nil
}

// InvalidateProduct drops the cached copy after an update or delete.
func (r *RedisRepo) InvalidateProduct(ctx context.Context, productID int64) error {
	const op = "storage.redis.InvalidateProduct"

	key := fmt.Sprintf("product:%d", productID)

	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// SetRunStatus mirrors the ingestion run status so other processes can see
// what a standalone scraper run is doing. Best-effort; callers log and move
// on when it fails.
func (r *RedisRepo) SetRunStatus(ctx context.Context, status any) error {
	const op = "storage.redis.SetRunStatus"

	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := r.client.Set(ctx, statusKey, data, 0).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// GetRunStatus returns the mirrored run status as stored, or
// storage.ErrStatusNotFound when no run has been mirrored yet. The caller
// decodes it; this keeps the cache layer ignorant of the runner's types.
func (r *RedisRepo) GetRunStatus(ctx context.Context) ([]byte, error) {
	const op = "storage.redis.GetRunStatus"

	data, err := r.client.Get(ctx, statusKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrStatusNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return data, nil
}

// Close closes the client connection.
func (r *RedisRepo) Close() {
	r.client.Close()
}
