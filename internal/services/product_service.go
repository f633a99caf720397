package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"catalog/internal/config"
	"catalog/internal/models"
	"catalog/internal/repositories"
	"catalog/internal/storage"

	"go.uber.org/zap"
)

// Listing defaults.
const (
	DefaultPage  = 1
	DefaultLimit = 20
)

// ListParams are the optional listing parameters as received from a
// client. Nil means absent.
type ListParams struct {
	Search    *string
	SortBy    *string
	SortOrder *string
	InStock   *bool
	Page      *int
	Limit     *int
}

// ProductInput carries the writable product fields for create and update.
type ProductInput struct {
	Name        string  `json:"name" validate:"required,max=100"`
	Description string  `json:"description" validate:"max=500"`
	Price       float64 `json:"price" validate:"finite,gte=0.01,lt=1e16"`
	Stock       int     `json:"stock" validate:"gte=0"`
	// Version, when set on update, must equal the stored version.
	Version *int            `json:"version,omitempty"`
	Image   *storage.Upload `json:"-"`
}

// ImageStore persists product images.
type ImageStore interface {
	Validate(u storage.Upload) error
	Save(ctx context.Context, u storage.Upload) (string, error)
	Delete(ref string) (bool, error)
}

// ProductService handles business logic related to products.
type ProductService struct {
	repo     repositories.ProductRepository
	images   ImageStore
	events   EventPublisher
	maxLimit int
	now      func() time.Time
	log      *zap.Logger
}

// NewProductService creates a new ProductService. A nil events publisher
// disables product events.
func NewProductService(repo repositories.ProductRepository, images ImageStore, events EventPublisher, cfg config.PaginationConfig, log *zap.Logger) *ProductService {
	if events == nil {
		events = NopPublisher{}
	}
	return &ProductService{
		repo:     repo,
		images:   images,
		events:   events,
		maxLimit: cfg.MaxLimit,
		now:      time.Now,
		log:      log,
	}
}

// WithClock replaces the time source used for timestamps.
func (s *ProductService) WithClock(now func() time.Time) *ProductService {
	s.now = now
	return s
}

// BuildProductQuery normalizes loosely typed listing parameters. Unknown
// sort keys fall back to ascending id order, page and limit below 1 are
// clamped to 1, a positive maxLimit caps the limit, and page is capped so
// the row offset cannot overflow.
func BuildProductQuery(p ListParams, maxLimit int) repositories.ProductQuery {
	q := repositories.ProductQuery{
		InStock: p.InStock,
		SortBy:  repositories.SortByID,
		Page:    DefaultPage,
		Limit:   DefaultLimit,
	}

	if p.Search != nil && strings.TrimSpace(*p.Search) != "" {
		q.Search = *p.Search
	}

	if p.SortBy != nil {
		switch strings.ToLower(*p.SortBy) {
		case "name":
			q.SortBy = repositories.SortByName
		case "price":
			q.SortBy = repositories.SortByPrice
		case "createdat", "created_at":
			q.SortBy = repositories.SortByCreatedAt
		}
	}
	if q.SortBy != repositories.SortByID && p.SortOrder != nil {
		q.Desc = strings.EqualFold(*p.SortOrder, "desc")
	}

	if p.Page != nil {
		q.Page = max(*p.Page, 1)
	}
	if p.Limit != nil {
		q.Limit = max(*p.Limit, 1)
	}
	if maxLimit > 0 && q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	// Keep (page-1)*limit within int.
	if lastPage := math.MaxInt/q.Limit + 1; q.Page > lastPage {
		q.Page = lastPage
	}
	return q
}

// List returns a filtered, sorted page of products.
func (s *ProductService) List(ctx context.Context, params ListParams) ([]models.Product, error) {
	query := BuildProductQuery(params, s.maxLimit)
	products, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	if products == nil {
		products = []models.Product{}
	}
	return products, nil
}

// GetByID retrieves a single product by its ID.
func (s *ProductService) GetByID(ctx context.Context, id uint) (*models.Product, error) {
	product, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to get product %d: %w", id, err)
	}
	return product, nil
}

// Create validates the input, stores the optional image and inserts the
// product. The image is removed again if the insert fails.
func (s *ProductService) Create(ctx context.Context, in ProductInput) (*models.Product, error) {
	if err := s.validateInput(&in); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	product := &models.Product{
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		Stock:       in.Stock,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if in.Image != nil {
		ref, err := s.saveImage(ctx, *in.Image)
		if err != nil {
			return nil, err
		}
		product.ImageURL = &ref
	}

	if err := s.repo.Create(ctx, product); err != nil {
		if product.HasImage() {
			s.deleteImage(*product.ImageURL)
		}
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	s.log.Info("product created", zap.Uint("product_id", product.ID))
	s.publish(ctx, models.ProductCreated, product)
	return product, nil
}

// Update replaces the writable fields of a product. The write succeeds only
// if nobody committed a change since it was read (and, when in.Version is
// set, only if that version is still current). A replaced image is deleted
// after the new row commits; the new image is deleted if the write fails.
func (s *ProductService) Update(ctx context.Context, id uint, in ProductInput) (*models.Product, error) {
	if err := s.validateInput(&in); err != nil {
		return nil, err
	}

	existing, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Version != nil && *in.Version != existing.Version {
		return nil, ErrProductConflict
	}

	updated := *existing
	updated.Name = in.Name
	updated.Description = in.Description
	updated.Price = in.Price
	updated.Stock = in.Stock
	updated.UpdatedAt = s.now().UTC()

	var newRef string
	if in.Image != nil {
		newRef, err = s.saveImage(ctx, *in.Image)
		if err != nil {
			return nil, err
		}
		updated.ImageURL = &newRef
	}

	if err := s.repo.Update(ctx, &updated); err != nil {
		if newRef != "" {
			s.deleteImage(newRef)
		}
		switch {
		case errors.Is(err, repositories.ErrStaleVersion):
			return nil, ErrProductConflict
		case errors.Is(err, repositories.ErrNotFound):
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to update product %d: %w", id, err)
	}

	if newRef != "" && existing.HasImage() {
		s.deleteImage(*existing.ImageURL)
	}

	s.log.Info("product updated", zap.Uint("product_id", id), zap.Int("version", updated.Version))
	s.publish(ctx, models.ProductUpdated, &updated)
	return &updated, nil
}

// Delete removes a product and then its image. A failure to remove the
// image is logged and does not fail the call.
func (s *ProductService) Delete(ctx context.Context, id uint) error {
	existing, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrProductNotFound
		}
		return fmt.Errorf("failed to delete product %d: %w", id, err)
	}

	if existing.HasImage() {
		s.deleteImage(*existing.ImageURL)
	}

	s.log.Info("product deleted", zap.Uint("product_id", id))
	s.publish(ctx, models.ProductDeleted, existing)
	return nil
}

func (s *ProductService) validateInput(in *ProductInput) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)

	err := validateStruct(in)
	var verr *ValidationError
	if err != nil && !errors.As(err, &verr) {
		return err
	}

	if in.Image != nil {
		if imgErr := s.images.Validate(*in.Image); imgErr != nil {
			if verr == nil {
				verr = newValidationError()
			}
			verr.Errors = append(verr.Errors, imageMessage(imgErr))
		}
	}

	if verr != nil {
		return verr
	}

	// Prices are stored as decimal(18,2).
	in.Price = math.Round(in.Price*100) / 100
	return nil
}

func (s *ProductService) saveImage(ctx context.Context, u storage.Upload) (string, error) {
	ref, err := s.images.Save(ctx, u)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidFile) {
			return "", newValidationError(imageMessage(err))
		}
		return "", fmt.Errorf("failed to upload image: %w", err)
	}
	return ref, nil
}

func (s *ProductService) deleteImage(ref string) {
	deleted, err := s.images.Delete(ref)
	switch {
	case err != nil:
		s.log.Warn("failed to delete product image", zap.String("image_url", ref), zap.Error(err))
	case !deleted:
		s.log.Debug("product image already gone", zap.String("image_url", ref))
	}
}

func (s *ProductService) publish(ctx context.Context, eventType string, p *models.Product) {
	event := models.ProductEvent{
		Type:       eventType,
		ProductID:  p.ID,
		Name:       p.Name,
		Version:    p.Version,
		OccurredAt: s.now().UTC(),
	}
	if err := s.events.PublishProductEvent(ctx, event); err != nil {
		s.log.Warn("failed to publish product event",
			zap.String("type", eventType),
			zap.Uint("product_id", p.ID),
			zap.Error(err))
	}
}

func imageMessage(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, ": "); i >= 0 {
		msg = msg[i+2:]
	}
	return "Invalid image file: " + msg
}
