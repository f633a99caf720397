package models

import "time"

// Product represents a product in the catalog.
type Product struct {
	ID          uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Name        string    `json:"name" gorm:"type:varchar(100);not null" validate:"required,max=100"`
	Description string    `json:"description" gorm:"type:varchar(500);not null;default:''" validate:"max=500"`
	Price       float64   `json:"price" gorm:"type:decimal(18,2);not null;check:chk_products_price,price > 0" validate:"gte=0.01,lt=1e16"`
	Stock       int       `json:"stock" gorm:"not null;check:chk_products_stock,stock >= 0" validate:"gte=0"`
	ImageURL    *string   `json:"image_url" gorm:"type:varchar(255)" validate:"omitempty,max=255"`
	Version     int       `json:"version" gorm:"not null;default:1"` // Optimistic concurrency token
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasImage reports whether the product references a stored image file.
func (p *Product) HasImage() bool {
	return p.ImageURL != nil && *p.ImageURL != ""
}
