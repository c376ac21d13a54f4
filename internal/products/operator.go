package products

import (
	"context"
	"errors"

	"github.com/TimoDeg/margin-hunter/internal/models"
	"github.com/TimoDeg/margin-hunter/internal/storage"
)

type Cache interface {
	SaveProduct(ctx context.Context, product models.Product) error
	Product(ctx context.Context, productID int64) (models.Product, error)
	InvalidateProduct(ctx context.Context, productID int64) error
}

type Storage interface {
	SaveProduct(ctx context.Context, product models.Product) (int64, error)
	ProductByID(ctx context.Context, productID int64) (models.Product, error)
	UpdateProduct(ctx context.Context, product models.Product) error
	DeleteProduct(ctx context.Context, productID int64) error
}

// Operator combines the persistent store with the read cache. Writes go to
// Postgres and invalidate the cached copy; single-product reads go through
// the cache.
type Operator struct {
	cache   Cache
	storage Storage
}

func New(st Storage, cache Cache) *Operator {
	return &Operator{
		cache:   cache,
		storage: st,
	}
}

func (o *Operator) SaveProduct(ctx context.Context, product models.Product) (int64, error) {
	return o.storage.SaveProduct(ctx, product)
}

func (o *Operator) ProductByID(ctx context.Context, productID int64) (models.Product, error) {
	product, err := o.cache.Product(ctx, productID)
	switch {
	case err == nil:
		return product, nil

	case !errors.Is(err, storage.ErrProductNotFound):
		return models.Product{}, err
	}

	product, err = o.storage.ProductByID(ctx, productID)
	if err != nil {
		return models.Product{}, err
	}

	_ = o.cache.SaveProduct(ctx, product)

	return product, nil
}

func (o *Operator) UpdateProduct(ctx context.Context, product models.Product) error {
	if err := o.storage.UpdateProduct(ctx, product); err != nil {
		return err
	}

	_ = o.cache.InvalidateProduct(ctx, product.ID)

	return nil
}

func (o *Operator) DeleteProduct(ctx context.Context, productID int64) error {
	if err := o.storage.DeleteProduct(ctx, productID); err != nil {
		return err
	}

	_ = o.cache.InvalidateProduct(ctx, productID)

	return nil
}
