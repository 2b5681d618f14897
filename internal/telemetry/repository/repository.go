package repository

import (
	"context"

	"userbot-connect/internal/telemetry/domain"
)

// Repository defines persistence for login events.
type Repository interface {
	Save(ctx context.Context, e *domain.Event) error
	ListByUser(ctx context.Context, userID int64, limit int32) ([]*domain.Event, error)
}
