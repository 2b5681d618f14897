package domain

import (
	"errors"
	"time"
)

// User is the bot user record, keyed by Telegram user id.
type User struct {
	ID                     int64
	Username               string
	Language               string
	Phone                  string // E.164; set once a contact is shared
	Status                 UserStatus
	AuthState              AuthState
	PayMode                PayMode
	PendingShareActivation bool // successful login activates the subscription
	ExpiresAt              *time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

// AuthState routes chat input to the right interpretation. It mirrors the
// login progress for display; the login Resolver is authoritative.
type AuthState string

const (
	AuthStateGuest                AuthState = "guest"
	AuthStateAwaitingShareContact AuthState = "awaiting_share_contact"
	AuthStateAwaitingContact      AuthState = "awaiting_contact"
	AuthStateAwaitingCode         AuthState = "awaiting_code"
	AuthStateAwaiting2FA          AuthState = "awaiting_2fa"
	AuthStateDone                 AuthState = "done"
	AuthStateFailed               AuthState = "failed"
)

// Valid reports whether s is a known auth state.
func (s AuthState) Valid() bool {
	switch s {
	case AuthStateGuest, AuthStateAwaitingShareContact, AuthStateAwaitingContact,
		AuthStateAwaitingCode, AuthStateAwaiting2FA, AuthStateDone, AuthStateFailed:
		return true
	}
	return false
}

// AwaitingContact reports whether a shared contact starts a login.
func (s AuthState) AwaitingContact() bool {
	return s == AuthStateAwaitingContact || s == AuthStateAwaitingShareContact
}

type PayMode string

const (
	PayModeShare PayMode = "share"
	PayModePaid  PayMode = "paid"
)

// DefaultLanguage is used for users without a language setting.
const DefaultLanguage = "uz"

// ErrNotFound is returned by lookups that require an existing user.
var ErrNotFound = errors.New("user not found")

// NewGuest returns the record created on a user's first contact with the bot.
func NewGuest(id int64, username, language string, now time.Time) *User {
	if language == "" {
		language = DefaultLanguage
	}
	now = now.UTC()
	return &User{
		ID:        id,
		Username:  username,
		Language:  language,
		Status:    UserStatusDisabled,
		AuthState: AuthStateGuest,
		PayMode:   PayModeShare,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.ID == 0 {
		return errors.New("id is required")
	}
	if u.Status == "" {
		u.Status = UserStatusDisabled
	}
	if u.AuthState == "" {
		u.AuthState = AuthStateGuest
	}
	if !u.AuthState.Valid() {
		return errors.New("unknown auth state " + string(u.AuthState))
	}
	if u.PayMode == "" {
		u.PayMode = PayModeShare
	}
	if u.Language == "" {
		u.Language = DefaultLanguage
	}
	return nil
}

// IsActive reports whether the subscription is active at now.
func (u *User) IsActive(now time.Time) bool {
	if u.Status != UserStatusActive {
		return false
	}
	return u.ExpiresAt == nil || u.ExpiresAt.After(now)
}

// CompleteLogin records a successful login. When share activation was pending
// the subscription becomes active until now+ttl; otherwise status, pay mode and
// expiry are left alone. It reports whether the activation was applied.
func (u *User) CompleteLogin(now time.Time, ttl time.Duration) bool {
	now = now.UTC()
	activated := u.PendingShareActivation
	u.AuthState = AuthStateDone
	u.PendingShareActivation = false
	u.UpdatedAt = now
	if activated {
		expires := now.Add(ttl)
		u.Status = UserStatusActive
		u.PayMode = PayModeShare
		u.ExpiresAt = &expires
	}
	return activated
}
