package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"userbot-connect/internal/telemetry/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an event repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Save inserts the event. Saving an event id twice is a no-op, so replays from
// the broker are safe.
func (r *PostgresRepository) Save(ctx context.Context, e *domain.Event) error {
	meta, err := json.Marshal(metadataOrEmpty(e.Metadata))
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO login_events (id, user_id, event_type, source, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (id) DO NOTHING`,
		e.ID, e.UserID, e.EventType, e.Source, meta, e.CreatedAt)
	return err
}

// Emit implements telemetry.EventEmitter.
func (r *PostgresRepository) Emit(ctx context.Context, e *domain.Event) error {
	if e == nil {
		return nil
	}
	return r.Save(ctx, e)
}

// ListByUser returns the newest events for userID first.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID int64, limit int32) ([]*domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `SELECT id, user_id, event_type, source, metadata, created_at
		FROM login_events WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Event
	for rows.Next() {
		var (
			e    domain.Event
			meta []byte
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.EventType, &e.Source, &meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, err
			}
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func metadataOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
