package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"catalog/internal/cache"
	"catalog/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// initialGeneration names the listing generation before the first write.
const initialGeneration = "0"

// CachingProductRepository decorates a ProductRepository with a listing
// cache. Only List results are cached: GetByID always reaches the inner
// repository so version checks see the committed row. Every write made
// through the decorator starts a new listing generation; cached listings
// are keyed by generation, so a listing read before a write can never be
// served after it.
type CachingProductRepository struct {
	inner     ProductRepository
	store     cache.Store
	ttl       time.Duration
	namespace string
	log       *zap.Logger
}

var _ ProductRepository = (*CachingProductRepository)(nil)

// NewCachingProductRepository wraps inner. A zero ttl defaults to five
// minutes and an empty namespace to "products".
func NewCachingProductRepository(inner ProductRepository, store cache.Store, ttl time.Duration, namespace string, log *zap.Logger) *CachingProductRepository {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if namespace == "" {
		namespace = "products"
	}
	return &CachingProductRepository{
		inner:     inner,
		store:     store,
		ttl:       ttl,
		namespace: namespace,
		log:       log,
	}
}

func (c *CachingProductRepository) listPrefix() string {
	return c.namespace + ":list:"
}

func (c *CachingProductRepository) listKey(generation string, query ProductQuery) string {
	return c.listPrefix() + generation + ":" + query.CacheKey()
}

func (c *CachingProductRepository) generationKey() string {
	return c.namespace + ":generation"
}

// generationTTL outlives every listing written under a generation.
func (c *CachingProductRepository) generationTTL() time.Duration {
	return max(24*time.Hour, 2*c.ttl)
}

// generation returns the current listing generation. ok is false when the
// store cannot be read, in which case the cache must be bypassed.
func (c *CachingProductRepository) generation(ctx context.Context) (gen string, ok bool) {
	b, err := c.store.Get(ctx, c.generationKey())
	switch {
	case err == nil:
		return string(b), true
	case errors.Is(err, cache.ErrMiss):
		return initialGeneration, true
	}
	c.log.Warn("product cache generation read failed", zap.Error(err))
	return "", false
}

// List serves from the cache when possible and fills it on a miss.
func (c *CachingProductRepository) List(ctx context.Context, query ProductQuery) ([]models.Product, error) {
	gen, ok := c.generation(ctx)
	if !ok {
		return c.inner.List(ctx, query)
	}
	key := c.listKey(gen, query)

	b, err := c.store.Get(ctx, key)
	switch {
	case err == nil:
		var out []models.Product
		if jsonErr := json.Unmarshal(b, &out); jsonErr == nil {
			return out, nil
		}
		c.log.Warn("dropping corrupt cache entry", zap.String("key", key))
	case !errors.Is(err, cache.ErrMiss):
		c.log.Warn("product cache read failed", zap.String("key", key), zap.Error(err))
	}

	out, err := c.inner.List(ctx, query)
	if err != nil {
		return nil, err
	}

	// A write committed during the read; out may predate it.
	if current, ok := c.generation(ctx); !ok || current != gen {
		return out, nil
	}

	if b, err := json.Marshal(out); err == nil {
		if err := c.store.Set(ctx, key, b, c.ttl); err != nil {
			c.log.Warn("product cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return out, nil
}

// GetByID is never cached.
func (c *CachingProductRepository) GetByID(ctx context.Context, id uint) (*models.Product, error) {
	return c.inner.GetByID(ctx, id)
}

// Create inserts through the inner repository and invalidates listings.
func (c *CachingProductRepository) Create(ctx context.Context, product *models.Product) error {
	if err := c.inner.Create(ctx, product); err != nil {
		return err
	}
	c.invalidate(ctx)
	return nil
}

// Update writes through the inner repository and invalidates listings.
func (c *CachingProductRepository) Update(ctx context.Context, product *models.Product) error {
	if err := c.inner.Update(ctx, product); err != nil {
		return err
	}
	c.invalidate(ctx)
	return nil
}

// Delete removes through the inner repository and invalidates listings.
func (c *CachingProductRepository) Delete(ctx context.Context, id uint) error {
	if err := c.inner.Delete(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx)
	return nil
}

// Count is never cached.
func (c *CachingProductRepository) Count(ctx context.Context) (int64, error) {
	return c.inner.Count(ctx)
}

func (c *CachingProductRepository) invalidate(ctx context.Context) {
	if err := c.store.Set(ctx, c.generationKey(), []byte(uuid.NewString()), c.generationTTL()); err != nil {
		c.log.Warn("product cache generation bump failed", zap.Error(err))
	}
	// Listings of older generations are unreachable; drop them to free space.
	if err := c.store.DeletePrefix(ctx, c.listPrefix()); err != nil {
		c.log.Warn("product cache invalidation failed", zap.Error(err))
	}
}
