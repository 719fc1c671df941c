package store

import (
	"context"
	"database/sql"
	"fmt"
)

// TokenStore persists the signed-in user's session token. At most one token
// is stored at a time.
type TokenStore struct {
	db *sql.DB
}

func NewTokenStore(db *sql.DB) *TokenStore {
	return &TokenStore{db: db}
}

func (s *TokenStore) Save(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_tokens (id, token, saved_at) VALUES (1, ?, datetime('now'))
		ON CONFLICT(id) DO UPDATE SET token = excluded.token, saved_at = excluded.saved_at
	`, token)
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// Token returns the stored token, or "" when signed out.
func (s *TokenStore) Token(ctx context.Context) (string, error) {
	var token string
	err := s.db.QueryRowContext(ctx, `SELECT token FROM session_tokens WHERE id = 1`).Scan(&token)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get token: %w", err)
	}
	return token, nil
}

func (s *TokenStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_tokens`); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}
	return nil
}
