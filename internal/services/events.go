package services

import (
	"context"

	"catalog/internal/models"
)

// EventPublisher delivers product events after a committed write.
type EventPublisher interface {
	PublishProductEvent(ctx context.Context, event models.ProductEvent) error
}

// NopPublisher discards events. It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishProductEvent(context.Context, models.ProductEvent) error { return nil }
