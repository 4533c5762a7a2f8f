package preview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/FACorreiaa/money-diary/pkg/db"
)

// PostgresStore keeps sessions in moneydiary.preview_sessions so any API
// instance can confirm them.
type PostgresStore struct {
	db db.Querier
}

func NewPostgresStore(q db.Querier) *PostgresStore {
	return &PostgresStore{db: q}
}

func (p *PostgresStore) Put(ctx context.Context, s *Session) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode preview session: %w", err)
	}
	_, err = p.db.Exec(ctx, `
		INSERT INTO moneydiary.preview_sessions (id, user_id, profile_id, account_id, payload, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.UserID, s.ProfileID, s.AccountID, payload, s.CreatedAt, s.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to store preview session: %w", err)
	}
	return nil
}

// Take deletes the row in the same statement that reads it, so two
// concurrent confirms cannot both see it.
func (p *PostgresStore) Take(ctx context.Context, userID uuid.UUID, id string, now time.Time) (*Session, error) {
	var (
		payload   []byte
		expiresAt time.Time
	)
	err := p.db.QueryRow(ctx, `
		DELETE FROM moneydiary.preview_sessions
		WHERE id = $1 AND user_id = $2
		RETURNING payload, expires_at`, id, userID).Scan(&payload, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to take preview session: %w", err)
	}
	if !now.Before(expiresAt) {
		return nil, ErrExpired
	}

	var s Session
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, fmt.Errorf("failed to decode preview session: %w", err)
	}
	return &s, nil
}

func (p *PostgresStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	tag, err := p.db.Exec(ctx, `DELETE FROM moneydiary.preview_sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep preview sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (p *PostgresStore) Count(ctx context.Context, now time.Time) (int, error) {
	var n int
	err := p.db.QueryRow(ctx, `SELECT count(*) FROM moneydiary.preview_sessions WHERE expires_at > $1`, now).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count preview sessions: %w", err)
	}
	return n, nil
}
