package repositories

import (
	"context"
	"fmt"
	"math"

	"catalog/internal/models"
)

// SortField is a column the product listing can be ordered by.
type SortField string

const (
	SortByID        SortField = "id"
	SortByName      SortField = "name"
	SortByPrice     SortField = "price"
	SortByCreatedAt SortField = "created_at"
)

// ProductQuery is a normalized product listing request. Filters apply
// first, then ordering, then the page window.
type ProductQuery struct {
	Search  string // Case-insensitive substring of name or description
	InStock *bool  // nil means no stock filter
	SortBy  SortField
	Desc    bool
	Page    int // 1-based
	Limit   int
}

// Offset is the number of filtered, ordered rows skipped before the page.
// It saturates at math.MaxInt, which is past the end of any table.
func (q ProductQuery) Offset() int {
	if q.Page <= 1 || q.Limit <= 0 {
		return 0
	}
	if q.Page-1 > math.MaxInt/q.Limit {
		return math.MaxInt
	}
	return (q.Page - 1) * q.Limit
}

// CacheKey renders the query as a stable string.
func (q ProductQuery) CacheKey() string {
	stock := "any"
	if q.InStock != nil {
		stock = fmt.Sprintf("%t", *q.InStock)
	}
	return fmt.Sprintf("q=%q|stock=%s|sort=%s|desc=%t|page=%d|limit=%d",
		q.Search, stock, q.SortBy, q.Desc, q.Page, q.Limit)
}

// ProductRepository defines the interface for product data access.
type ProductRepository interface {
	List(ctx context.Context, query ProductQuery) ([]models.Product, error)
	GetByID(ctx context.Context, id uint) (*models.Product, error)
	Create(ctx context.Context, product *models.Product) error
	// Update writes product only if the stored version still equals
	// product.Version, and increments the version on success.
	Update(ctx context.Context, product *models.Product) error
	Delete(ctx context.Context, id uint) error
	Count(ctx context.Context) (int64, error)
}
