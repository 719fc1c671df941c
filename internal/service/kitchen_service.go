package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/brokechef/fridgechef/internal/domain"
	"github.com/brokechef/fridgechef/internal/events"
	"github.com/brokechef/fridgechef/internal/imagestore"
	"github.com/brokechef/fridgechef/internal/vision"
)

// ErrInvalidRecipe wraps create-recipe validation failures.
var ErrInvalidRecipe = errors.New("invalid recipe")

// ImagePathPrefix is the URL path under which stored recipe images are served.
const ImagePathPrefix = "/upload/recipe/"

// DefaultGenerateTimeout bounds one background vision call.
const DefaultGenerateTimeout = 5 * time.Minute

// recipeRepository is the subset of store.RecipeStore that KitchenService requires.
type recipeRepository interface {
	Create(ctx context.Context, in domain.RecipeInput) (*domain.Recipe, error)
	GetByID(ctx context.Context, id int64) (*domain.Recipe, error)
	List(ctx context.Context, limit, offset int) ([]*domain.Recipe, error)
	Delete(ctx context.Context, id int64) error
}

// generationRepository is the subset of store.GenerationStore that KitchenService requires.
type generationRepository interface {
	Start(ctx context.Context, sessionKey string) (*domain.Generation, error)
	Finish(ctx context.Context, id int64, status, message string, recipeCount int) error
	ListBySession(ctx context.Context, sessionKey string) ([]*domain.Generation, error)
}

type KitchenService struct {
	recipes     recipeRepository
	generations generationRepository
	visionAPI   vision.RecipeGenerator
	images      imagestore.ImageStore
	hub         events.Hub
	timeout     time.Duration
	logger      *slog.Logger

	// mu guards latest and orders hub resets against publishes.
	mu     sync.Mutex
	latest map[string]int64

	wg sync.WaitGroup
}

func NewKitchenService(
	recipes recipeRepository,
	generations generationRepository,
	visionAPI vision.RecipeGenerator,
	images imagestore.ImageStore,
	hub events.Hub,
	timeout time.Duration,
	logger *slog.Logger,
) *KitchenService {
	if timeout <= 0 {
		timeout = DefaultGenerateTimeout
	}
	return &KitchenService{
		recipes:     recipes,
		generations: generations,
		visionAPI:   visionAPI,
		images:      images,
		hub:         hub,
		timeout:     timeout,
		logger:      logger,
		latest:      make(map[string]int64),
	}
}

// Generate records a generation for sessionKey and runs the vision model in
// the background. The terminal event is published to the hub under
// sessionKey when the model finishes. Starting a generation discards any
// unread result for sessionKey, and a generation superseded by a later one
// for the same key never publishes.
func (s *KitchenService) Generate(ctx context.Context, sessionKey string, imageData []byte, mimeType string) (*domain.Generation, error) {
	gen, err := s.start(ctx, sessionKey)
	if err != nil {
		return nil, err
	}
	s.logger.Info("generation accepted", "generation_id", gen.ID, "mime_type", mimeType, "bytes", len(imageData))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		gctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()

		payload := s.runGeneration(gctx, gen.ID, imageData, mimeType)
		s.publish(gctx, sessionKey, gen.ID, payload)
	}()

	return gen, nil
}

// start records a generation and makes it the current one for sessionKey,
// dropping the result of any earlier one still waiting in the hub.
func (s *KitchenService) start(ctx context.Context, sessionKey string) (*domain.Generation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.hub.Reset(ctx, sessionKey); err != nil {
		return nil, fmt.Errorf("failed to reset session events: %w", err)
	}
	gen, err := s.generations.Start(ctx, sessionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to record generation: %w", err)
	}
	s.latest[sessionKey] = gen.ID
	return gen, nil
}

func (s *KitchenService) publish(ctx context.Context, sessionKey string, genID int64, payload domain.EventPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest[sessionKey] != genID {
		s.logger.Info("superseded generation result dropped", "generation_id", genID)
		return
	}
	delete(s.latest, sessionKey)
	if err := s.hub.Publish(ctx, sessionKey, payload); err != nil {
		s.logger.Error("failed to publish generation result", "generation_id", genID, "error", err)
	}
}

func (s *KitchenService) runGeneration(ctx context.Context, genID int64, imageData []byte, mimeType string) domain.EventPayload {
	s.logger.Info("vision generation started", "generation_id", genID)
	result, err := s.visionAPI.GenerateRecipes(ctx, bytes.NewReader(imageData), mimeType)

	var payload domain.EventPayload
	switch {
	case errors.Is(err, vision.ErrNoRecipes):
		s.logger.Warn("vision returned no recipes", "generation_id", genID, "error", err)
		payload = domain.EventPayload{Status: domain.StatusError, Message: "No recipes could be generated from this photo."}
	case err != nil:
		s.logger.Error("vision generation failed", "generation_id", genID, "error", err)
		payload = domain.EventPayload{Status: domain.StatusError, Message: "Failed to generate recipes. Please try again."}
	default:
		// Candidates carry the fridge photo inline until they are saved.
		inline := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(imageData)
		recipes := make([]domain.GeneratedRecipe, len(result.Recipes))
		for i, r := range result.Recipes {
			if r.ImageURL == "" {
				r.ImageURL = inline
			}
			recipes[i] = r
		}
		payload = domain.EventPayload{Status: domain.StatusSuccess, Recipes: recipes}
		s.logger.Info("vision generation complete", "generation_id", genID, "recipes", len(recipes))
	}

	if err := s.generations.Finish(ctx, genID, payload.Status, payload.Message, len(payload.Recipes)); err != nil {
		s.logger.Error("failed to finish generation", "generation_id", genID, "error", err)
	}
	return payload
}

// NextEvent blocks until the next terminal event for sessionKey.
func (s *KitchenService) NextEvent(ctx context.Context, sessionKey string) (domain.EventPayload, error) {
	return s.hub.Next(ctx, sessionKey)
}

func (s *KitchenService) ListGenerations(ctx context.Context, sessionKey string) ([]*domain.Generation, error) {
	return s.generations.ListBySession(ctx, sessionKey)
}

// Wait blocks until background generations have finished.
func (s *KitchenService) Wait() {
	s.wg.Wait()
}

func (s *KitchenService) SaveImage(ctx context.Context, data []byte, mimeType string) (string, error) {
	key, err := s.images.Save(ctx, mimeType, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to save image: %w", err)
	}
	s.logger.Debug("image saved", "key", key, "bytes", len(data))
	return key, nil
}

func (s *KitchenService) OpenImage(ctx context.Context, key string) (io.ReadCloser, string, error) {
	return s.images.Open(ctx, key)
}

func (s *KitchenService) CreateRecipe(ctx context.Context, in domain.RecipeInput) (*domain.Recipe, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, domain.NewUserError(domain.ErrValidation, "Title is required.", ErrInvalidRecipe)
	}
	if in.Duration <= 0 {
		return nil, domain.NewUserError(domain.ErrValidation, "Duration must be a positive number of minutes.", ErrInvalidRecipe)
	}
	recipe, err := s.recipes.Create(ctx, in)
	if err != nil {
		return nil, err
	}
	s.logger.Info("recipe created", "recipe_id", recipe.ID, "title", recipe.Title)
	return recipe, nil
}

func (s *KitchenService) GetRecipe(ctx context.Context, id int64) (*domain.Recipe, error) {
	recipe, err := s.recipes.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get recipe: %w", err)
	}
	if recipe == nil {
		return nil, fmt.Errorf("recipe %d: %w", id, domain.ErrNotFound)
	}
	return recipe, nil
}

func (s *KitchenService) ListRecipes(ctx context.Context, limit, offset int) ([]*domain.Recipe, error) {
	return s.recipes.List(ctx, limit, offset)
}

// DeleteRecipe removes a recipe and, when its image is held by this
// backend, the stored image.
func (s *KitchenService) DeleteRecipe(ctx context.Context, id int64) error {
	recipe, err := s.GetRecipe(ctx, id)
	if err != nil {
		return err
	}
	if err := s.recipes.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete recipe: %w", err)
	}

	if i := strings.Index(recipe.ImageURL, ImagePathPrefix); i >= 0 {
		key := path.Base(recipe.ImageURL[i+len(ImagePathPrefix):])
		if err := s.images.Delete(ctx, key); err != nil {
			s.logger.Error("failed to delete recipe image", "key", key, "error", err)
		}
	}
	return nil
}
