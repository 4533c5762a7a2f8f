package normalizer

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/FACorreiaa/money-diary/internal/apperr"
	"github.com/FACorreiaa/money-diary/pkg/db"
)

var ErrIgnoreNotFound = apperr.New(apperr.KindNotFound, "IGNORE_NOT_FOUND", "pattern ignore not found")

// IgnoreStore persists a user's pattern ignores.
type IgnoreStore struct {
	db db.Querier
}

// NewIgnoreStore creates a new ignore store
func NewIgnoreStore(q db.Querier) *IgnoreStore {
	return &IgnoreStore{db: q}
}

// Create stores a new ignore for the user
func (s *IgnoreStore) Create(ctx context.Context, ig PatternIgnore) (*PatternIgnore, error) {
	query := `
		INSERT INTO moneydiary.pattern_ignores (user_id, match_text, description)
		VALUES ($1, $2, $3)
		RETURNING id, user_id, match_text, description, created_at
	`

	var result PatternIgnore
	err := s.db.QueryRow(ctx, query, ig.UserID, ig.MatchText, ig.Description).Scan(
		&result.ID, &result.UserID, &result.MatchText, &result.Description, &result.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert pattern ignore: %w", err)
	}
	return &result, nil
}

// List returns all ignores for a user, oldest first
func (s *IgnoreStore) List(ctx context.Context, userID uuid.UUID) ([]PatternIgnore, error) {
	query := `
		SELECT id, user_id, match_text, description, created_at
		FROM moneydiary.pattern_ignores
		WHERE user_id = $1
		ORDER BY created_at, id
	`

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list pattern ignores: %w", err)
	}
	defer rows.Close()

	ignores := []PatternIgnore{}
	for rows.Next() {
		var ig PatternIgnore
		if err := rows.Scan(&ig.ID, &ig.UserID, &ig.MatchText, &ig.Description, &ig.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pattern ignore: %w", err)
		}
		ignores = append(ignores, ig)
	}
	return ignores, rows.Err()
}

// Delete removes an ignore owned by the user
func (s *IgnoreStore) Delete(ctx context.Context, userID, id uuid.UUID) error {
	query := `DELETE FROM moneydiary.pattern_ignores WHERE id = $1 AND user_id = $2`
	result, err := s.db.Exec(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("delete pattern ignore: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrIgnoreNotFound
	}
	return nil
}
