package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/brokechef/fridgechef/internal/domain"
)

// GenerationStore records each generation request received by the backend
// and how it finished.
type GenerationStore struct {
	db *sql.DB
}

func NewGenerationStore(db *sql.DB) *GenerationStore {
	return &GenerationStore{db: db}
}

func (s *GenerationStore) Start(ctx context.Context, sessionKey string) (*domain.Generation, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO generations (session_key) VALUES (?)
	`, sessionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create generation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	return s.GetByID(ctx, id)
}

func (s *GenerationStore) Finish(ctx context.Context, id int64, status, message string, recipeCount int) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE generations SET status = ?, message = ?, recipe_count = ?, finished_at = datetime('now')
		WHERE id = ?
	`, status, message, recipeCount, id)
	if err != nil {
		return fmt.Errorf("failed to finish generation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("generation %d: %w", id, domain.ErrNotFound)
	}

	return nil
}

func (s *GenerationStore) GetByID(ctx context.Context, id int64) (*domain.Generation, error) {
	g := &domain.Generation{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, session_key, status, message, recipe_count, created_at, finished_at FROM generations WHERE id = ?
	`, id).Scan(&g.ID, &g.SessionKey, &g.Status, &g.Message, &g.RecipeCount, &g.CreatedAt, &g.FinishedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get generation: %w", err)
	}

	return g, nil
}

func (s *GenerationStore) ListBySession(ctx context.Context, sessionKey string) ([]*domain.Generation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_key, status, message, recipe_count, created_at, finished_at FROM generations
		WHERE session_key = ? ORDER BY id ASC
	`, sessionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to list generations: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("failed to close rows", "error", err)
		}
	}()

	var generations []*domain.Generation
	for rows.Next() {
		g := &domain.Generation{}
		if err := rows.Scan(&g.ID, &g.SessionKey, &g.Status, &g.Message, &g.RecipeCount, &g.CreatedAt, &g.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan generation: %w", err)
		}
		generations = append(generations, g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating generations: %w", err)
	}

	return generations, nil
}
