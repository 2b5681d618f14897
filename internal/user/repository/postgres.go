package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"userbot-connect/internal/user/domain"
)

const userColumns = `id, username, language, phone, status, auth_state, pay_mode,
	pending_share_activation, expires_at, created_at, updated_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a user repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM bot_users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}

// Create persists the user. The user must have ID set; it is the Telegram user id.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO bot_users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		u.ID, nullString(u.Username), u.Language, nullString(u.Phone), string(u.Status),
		string(u.AuthState), string(u.PayMode), u.PendingShareActivation, nullTime(u.ExpiresAt),
		u.CreatedAt, u.UpdatedAt)
	return err
}

// Update overwrites the mutable columns of an existing user. Returns domain.ErrNotFound when no row matched.
func (r *PostgresRepository) Update(ctx context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, `UPDATE bot_users SET
		username = $2, language = $3, phone = $4, status = $5, auth_state = $6, pay_mode = $7,
		pending_share_activation = $8, expires_at = $9, updated_at = $10
		WHERE id = $1`,
		u.ID, nullString(u.Username), u.Language, nullString(u.Phone), string(u.Status),
		string(u.AuthState), string(u.PayMode), u.PendingShareActivation, nullTime(u.ExpiresAt),
		u.UpdatedAt)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

// SetAuthState writes only the auth state tag.
func (r *PostgresRepository) SetAuthState(ctx context.Context, id int64, state domain.AuthState) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE bot_users SET auth_state = $2, updated_at = $3 WHERE id = $1`,
		id, string(state), time.Now().UTC())
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

// SetLanguage writes only the language.
func (r *PostgresRepository) SetLanguage(ctx context.Context, id int64, language string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE bot_users SET language = $2, updated_at = $3 WHERE id = $1`,
		id, language, time.Now().UTC())
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

// BeginLogin stores the shared phone and activation intent and sets awaiting_code.
func (r *PostgresRepository) BeginLogin(ctx context.Context, id int64, phone string, pendingShare bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE bot_users SET
		phone = $2, pending_share_activation = $3, auth_state = $4, updated_at = $5
		WHERE id = $1`,
		id, nullString(phone), pendingShare, string(domain.AuthStateAwaitingCode), time.Now().UTC())
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

// CompleteLogin locks the row, reads the pending flag and applies done plus
// any share activation in the same statement.
func (r *PostgresRepository) CompleteLogin(ctx context.Context, id int64, now time.Time, ttl time.Duration) (bool, error) {
	now = now.UTC()
	var activated bool
	err := r.db.QueryRowContext(ctx, `WITH prev AS (
			SELECT id, pending_share_activation FROM bot_users WHERE id = $1 FOR UPDATE
		)
		UPDATE bot_users u SET
			auth_state = $2,
			pending_share_activation = false,
			status = CASE WHEN prev.pending_share_activation THEN $3 ELSE u.status END,
			pay_mode = CASE WHEN prev.pending_share_activation THEN $4 ELSE u.pay_mode END,
			expires_at = CASE WHEN prev.pending_share_activation THEN $5 ELSE u.expires_at END,
			updated_at = $6
		FROM prev WHERE u.id = prev.id
		RETURNING prev.pending_share_activation`,
		id, string(domain.AuthStateDone), string(domain.UserStatusActive), string(domain.PayModeShare),
		now.Add(ttl), now).Scan(&activated)
	if errors.Is(err, sql.ErrNoRows) {
		return false, domain.ErrNotFound
	}
	if err != nil {
		return false, err
	}
	return activated, nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		u                         domain.User
		username, phone           sql.NullString
		status, authState, payMod string
		expiresAt                 sql.NullTime
	)
	if err := row.Scan(&u.ID, &username, &u.Language, &phone, &status, &authState, &payMod,
		&u.PendingShareActivation, &expiresAt, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Username = username.String
	u.Phone = phone.String
	u.Status = domain.UserStatus(status)
	u.AuthState = domain.AuthState(authState)
	u.PayMode = domain.PayMode(payMod)
	if expiresAt.Valid {
		t := expiresAt.Time
		u.ExpiresAt = &t
	}
	return &u, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
