package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brokechef/fridgechef/internal/db"
	"github.com/brokechef/fridgechef/internal/domain"
	"github.com/brokechef/fridgechef/internal/events"
	"github.com/brokechef/fridgechef/internal/logging"
	"github.com/brokechef/fridgechef/internal/store"
	"github.com/brokechef/fridgechef/internal/vision"
)

// stubVision is a minimal RecipeGenerator for tests.
type stubVision struct {
	result *vision.Result
	err    error
}

func (s *stubVision) GenerateRecipes(_ context.Context, _ io.Reader, _ string) (*vision.Result, error) {
	return s.result, s.err
}

// scriptedVision answers each GenerateRecipes call with the next step.
type scriptedVision struct {
	mu    sync.Mutex
	calls int
	steps []func(ctx context.Context) (*vision.Result, error)
}

func (s *scriptedVision) GenerateRecipes(ctx context.Context, _ io.Reader, _ string) (*vision.Result, error) {
	s.mu.Lock()
	step := s.steps[s.calls]
	s.calls++
	s.mu.Unlock()
	return step(ctx)
}

func (s *scriptedVision) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func recipeNamed(title string) func(context.Context) (*vision.Result, error) {
	return func(context.Context) (*vision.Result, error) {
		return &vision.Result{Recipes: []domain.GeneratedRecipe{{Title: title, Duration: 10}}}, nil
	}
}

func gatedRecipe(release <-chan struct{}, title string) func(context.Context) (*vision.Result, error) {
	return func(ctx context.Context) (*vision.Result, error) {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return recipeNamed(title)(ctx)
	}
}

// stubImageStore is a minimal in-memory imagestore.ImageStore for tests.
type stubImageStore struct {
	saved map[string][]byte
	n     int
}

func newStubImageStore() *stubImageStore {
	return &stubImageStore{saved: make(map[string][]byte)}
}

func (s *stubImageStore) Save(_ context.Context, _ string, r io.Reader) (string, error) {
	data, _ := io.ReadAll(r)
	s.n++
	key := fmt.Sprintf("img-%d.jpg", s.n)
	s.saved[key] = data
	return key, nil
}

func (s *stubImageStore) Open(_ context.Context, key string) (io.ReadCloser, string, error) {
	data, ok := s.saved[key]
	if !ok {
		return nil, "", domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), "image/jpeg", nil
}

func (s *stubImageStore) Delete(_ context.Context, key string) error {
	if _, ok := s.saved[key]; !ok {
		return domain.ErrNotFound
	}
	delete(s.saved, key)
	return nil
}

type testEnv struct {
	svc         *KitchenService
	generations *store.GenerationStore
	images      *stubImageStore
}

func newTestService(t *testing.T, v vision.RecipeGenerator) *testEnv {
	t.Helper()
	d, err := db.OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, d.Close()) })

	generations := store.NewGenerationStore(d)
	images := newStubImageStore()
	svc := NewKitchenService(
		store.NewRecipeStore(d),
		generations,
		v,
		images,
		events.NewMemoryHub(),
		time.Minute,
		logging.Discard(),
	)
	t.Cleanup(svc.Wait)
	return &testEnv{svc: svc, generations: generations, images: images}
}

func nextEvent(t *testing.T, svc *KitchenService, key string) domain.EventPayload {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	payload, err := svc.NextEvent(ctx, key)
	require.NoError(t, err)
	return payload
}

func TestGeneratePublishesRecipes(t *testing.T) {
	env := newTestService(t, &stubVision{result: &vision.Result{
		Recipes: []domain.GeneratedRecipe{
			{Title: "Omelette", Duration: 10},
			{Title: "Salad", Duration: 5, ImageURL: "https://images.test/salad.jpg"},
		},
	}})

	gen, err := env.svc.Generate(context.Background(), "tok", []byte{0xFF, 0xD8}, "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "pending", gen.Status)

	payload := nextEvent(t, env.svc, "tok")
	assert.Equal(t, domain.StatusSuccess, payload.Status)
	require.Len(t, payload.Recipes, 2)
	assert.Equal(t, "data:image/jpeg;base64,/9g=", payload.Recipes[0].ImageURL)
	assert.Equal(t, "https://images.test/salad.jpg", payload.Recipes[1].ImageURL)

	env.svc.Wait()
	logged, err := env.svc.ListGenerations(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, logged, 1)
	assert.Equal(t, domain.StatusSuccess, logged[0].Status)
	assert.Equal(t, 2, logged[0].RecipeCount)
	assert.NotNil(t, logged[0].FinishedAt)
}

func TestGenerateVisionFailures(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{name: "no recipes", err: vision.ErrNoRecipes, wantMsg: "No recipes could be generated from this photo."},
		{name: "model error", err: errors.New("ollama returned status 500"), wantMsg: "Failed to generate recipes. Please try again."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestService(t, &stubVision{err: tt.err})

			_, err := env.svc.Generate(context.Background(), "tok", []byte{0xFF}, "image/jpeg")
			require.NoError(t, err)

			payload := nextEvent(t, env.svc, "tok")
			assert.Equal(t, domain.StatusError, payload.Status)
			assert.Equal(t, tt.wantMsg, payload.Message)

			env.svc.Wait()
			logged, err := env.svc.ListGenerations(context.Background(), "tok")
			require.NoError(t, err)
			require.Len(t, logged, 1)
			assert.Equal(t, domain.StatusError, logged[0].Status)
			assert.Equal(t, tt.wantMsg, logged[0].Message)
		})
	}
}

func TestGenerateSurvivesRequestCancel(t *testing.T) {
	env := newTestService(t, &stubVision{result: &vision.Result{
		Recipes: []domain.GeneratedRecipe{{Title: "Omelette", Duration: 10}},
	}})

	ctx, cancel := context.WithCancel(context.Background())
	_, err := env.svc.Generate(ctx, "tok", []byte{0xFF}, "image/jpeg")
	require.NoError(t, err)
	cancel()

	payload := nextEvent(t, env.svc, "tok")
	assert.Equal(t, domain.StatusSuccess, payload.Status)
}

func TestGenerateDiscardsUnreadResult(t *testing.T) {
	release := make(chan struct{})
	env := newTestService(t, &scriptedVision{steps: []func(context.Context) (*vision.Result, error){
		recipeNamed("FromOldPhoto"),
		gatedRecipe(release, "FromNewPhoto"),
	}})
	ctx := context.Background()

	// The first result is published and never read.
	_, err := env.svc.Generate(ctx, "tok", []byte{0xFF}, "image/jpeg")
	require.NoError(t, err)
	env.svc.Wait()

	_, err = env.svc.Generate(ctx, "tok", []byte{0xFF}, "image/jpeg")
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = env.svc.NextEvent(waitCtx, "tok")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	payload := nextEvent(t, env.svc, "tok")
	require.Len(t, payload.Recipes, 1)
	assert.Equal(t, "FromNewPhoto", payload.Recipes[0].Title)
}

func TestGenerateDropsSupersededResult(t *testing.T) {
	release := make(chan struct{})
	v := &scriptedVision{steps: []func(context.Context) (*vision.Result, error){
		gatedRecipe(release, "FromOldPhoto"),
		recipeNamed("FromNewPhoto"),
	}}
	env := newTestService(t, v)
	ctx := context.Background()

	_, err := env.svc.Generate(ctx, "tok", []byte{0xFF}, "image/jpeg")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return v.callCount() == 1 }, 5*time.Second, 5*time.Millisecond)
	_, err = env.svc.Generate(ctx, "tok", []byte{0xFF}, "image/jpeg")
	require.NoError(t, err)

	payload := nextEvent(t, env.svc, "tok")
	require.Len(t, payload.Recipes, 1)
	assert.Equal(t, "FromNewPhoto", payload.Recipes[0].Title)

	// The first generation finishes late and must not reach the stream.
	close(release)
	env.svc.Wait()

	waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = env.svc.NextEvent(waitCtx, "tok")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	logged, err := env.svc.ListGenerations(ctx, "tok")
	require.NoError(t, err)
	require.Len(t, logged, 2)
	for _, g := range logged {
		assert.Equal(t, domain.StatusSuccess, g.Status)
	}
}

func TestGenerateSessionsAreIndependent(t *testing.T) {
	env := newTestService(t, &scriptedVision{steps: []func(context.Context) (*vision.Result, error){
		recipeNamed("Alice"),
		recipeNamed("Bob"),
	}})
	ctx := context.Background()

	_, err := env.svc.Generate(ctx, "tok-a", []byte{0xFF}, "image/jpeg")
	require.NoError(t, err)
	env.svc.Wait()
	_, err = env.svc.Generate(ctx, "tok-b", []byte{0xFF}, "image/jpeg")
	require.NoError(t, err)

	assert.Equal(t, "Alice", nextEvent(t, env.svc, "tok-a").Recipes[0].Title)
	assert.Equal(t, "Bob", nextEvent(t, env.svc, "tok-b").Recipes[0].Title)
}

func TestCreateRecipeValidation(t *testing.T) {
	env := newTestService(t, &stubVision{})
	ctx := context.Background()

	_, err := env.svc.CreateRecipe(ctx, domain.RecipeInput{Title: "  ", Duration: 10})
	assert.ErrorIs(t, err, ErrInvalidRecipe)
	assert.Equal(t, "Title is required.", domain.Message(err, ""))

	_, err = env.svc.CreateRecipe(ctx, domain.RecipeInput{Title: "Soup"})
	assert.ErrorIs(t, err, ErrInvalidRecipe)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCreateGetDeleteRecipe(t *testing.T) {
	env := newTestService(t, &stubVision{})
	ctx := context.Background()

	key, err := env.svc.SaveImage(ctx, []byte("jpeg"), "image/jpeg")
	require.NoError(t, err)

	created, err := env.svc.CreateRecipe(ctx, domain.RecipeInput{
		Title:       " Fridge Frittata ",
		Duration:    25,
		Ingredients: []string{"eggs"},
		ImageURL:    "http://localhost:3000" + ImagePathPrefix + key,
	})
	require.NoError(t, err)
	assert.Equal(t, "Fridge Frittata", created.Title)

	got, err := env.svc.GetRecipe(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	list, err := env.svc.ListRecipes(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, env.svc.DeleteRecipe(ctx, created.ID))
	assert.NotContains(t, env.images.saved, key)

	_, err = env.svc.GetRecipe(ctx, created.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, env.svc.DeleteRecipe(ctx, created.ID), domain.ErrNotFound)
}

func TestOpenImage(t *testing.T) {
	env := newTestService(t, &stubVision{})
	ctx := context.Background()

	key, err := env.svc.SaveImage(ctx, []byte("jpeg"), "image/jpeg")
	require.NoError(t, err)

	rc, mimeType, err := env.svc.OpenImage(ctx, key)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), data)
	assert.Equal(t, "image/jpeg", mimeType)
}
