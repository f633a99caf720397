package models

import "time"

// Product event types published after a committed write.
const (
	ProductCreated = "product.created"
	ProductUpdated = "product.updated"
	ProductDeleted = "product.deleted"
)

// ProductEvent describes a committed change to a product.
type ProductEvent struct {
	Type       string    `json:"type"`
	ProductID  uint      `json:"product_id"`
	Name       string    `json:"name"`
	Version    int       `json:"version"`
	OccurredAt time.Time `json:"occurred_at"`
}
