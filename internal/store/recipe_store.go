package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/brokechef/fridgechef/internal/domain"
)

type RecipeStore struct {
	db *sql.DB
}

func NewRecipeStore(db *sql.DB) *RecipeStore {
	return &RecipeStore{db: db}
}

func (s *RecipeStore) Create(ctx context.Context, in domain.RecipeInput) (*domain.Recipe, error) {
	ingredients, err := encodeList(in.Ingredients)
	if err != nil {
		return nil, err
	}
	tools, err := encodeList(in.Tools)
	if err != nil {
		return nil, err
	}
	steps, err := encodeList(in.Steps)
	if err != nil {
		return nil, err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO recipes (title, duration, ingredients, tools, steps, image_url) VALUES (?, ?, ?, ?, ?, ?)
	`, in.Title, in.Duration, ingredients, tools, steps, in.ImageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create recipe: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID returns the recipe with the given id, or nil if there is none.
func (s *RecipeStore) GetByID(ctx context.Context, id int64) (*domain.Recipe, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, duration, ingredients, tools, steps, image_url, created_at FROM recipes WHERE id = ?
	`, id)

	recipe, err := scanRecipe(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recipe: %w", err)
	}
	return recipe, nil
}

// List returns recipes newest first.
func (s *RecipeStore) List(ctx context.Context, limit, offset int) ([]*domain.Recipe, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, duration, ingredients, tools, steps, image_url, created_at FROM recipes
		ORDER BY id DESC LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipes: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("failed to close rows", "error", err)
		}
	}()

	var recipes []*domain.Recipe
	for rows.Next() {
		recipe, err := scanRecipe(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recipe: %w", err)
		}
		recipes = append(recipes, recipe)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recipes: %w", err)
	}

	return recipes, nil
}

func (s *RecipeStore) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM recipes WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("failed to delete recipe: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("recipe %d: %w", id, domain.ErrNotFound)
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecipe(row scanner) (*domain.Recipe, error) {
	recipe := &domain.Recipe{}
	var ingredients, tools, steps string
	if err := row.Scan(&recipe.ID, &recipe.Title, &recipe.Duration, &ingredients, &tools, &steps, &recipe.ImageURL, &recipe.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(ingredients), &recipe.Ingredients); err != nil {
		return nil, fmt.Errorf("failed to decode ingredients: %w", err)
	}
	if err := json.Unmarshal([]byte(tools), &recipe.Tools); err != nil {
		return nil, fmt.Errorf("failed to decode tools: %w", err)
	}
	if err := json.Unmarshal([]byte(steps), &recipe.Steps); err != nil {
		return nil, fmt.Errorf("failed to decode steps: %w", err)
	}
	return recipe, nil
}

// encodeList stores a string list as a JSON array; nil becomes "[]".
func encodeList(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("failed to encode list: %w", err)
	}
	return string(data), nil
}
