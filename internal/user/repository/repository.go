package repository

import (
	"context"
	"time"

	"userbot-connect/internal/user/domain"
)

// Repository defines persistence for bot users. Every method other than
// Create and Update writes only the fields it names, so concurrent writers
// touching different fields never undo each other.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	Update(ctx context.Context, u *domain.User) error
	// SetAuthState writes only the auth state tag. Returns domain.ErrNotFound when no row was updated.
	SetAuthState(ctx context.Context, id int64, state domain.AuthState) error
	// SetLanguage writes only the language.
	SetLanguage(ctx context.Context, id int64, language string) error
	// BeginLogin records the shared phone and activation intent and moves the
	// user to awaiting_code.
	BeginLogin(ctx context.Context, id int64, phone string, pendingShare bool) error
	// CompleteLogin marks the user done and, when share activation was pending,
	// activates the subscription until now+ttl. Checking and clearing the
	// pending flag happen in one write. Reports whether activation applied.
	CompleteLogin(ctx context.Context, id int64, now time.Time, ttl time.Duration) (bool, error)
}
