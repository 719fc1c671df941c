package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/brokechef/fridgechef/internal/vision"
)

type generateRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images"`
	Format string   `json:"format"`
	Stream bool     `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

type Generator struct {
	host   string
	model  string
	client *http.Client
	logger *slog.Logger
}

func NewGenerator(host, model string, logger *slog.Logger) *Generator {
	return &Generator{
		host:   strings.TrimRight(host, "/"),
		model:  model,
		client: &http.Client{},
		logger: logger,
	}
}

func (g *Generator) GenerateRecipes(ctx context.Context, r io.Reader, _ string) (*vision.Result, error) {
	imageData, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}

	payload, err := json.Marshal(generateRequest{
		Model:  g.model,
		Prompt: vision.RecipePrompt,
		Images: []string{base64.StdEncoding.EncodeToString(imageData)},
		Format: "json",
		Stream: false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.host+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call ollama: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			g.logger.Error("failed to close ollama response body", "error", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, bytes.TrimSpace(errBody))
	}

	var body generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	g.logger.Debug("ollama response received", "model", g.model, "chars", len(body.Response))

	recipes, err := vision.ParseRecipes(body.Response)
	if err != nil {
		return nil, err
	}
	return &vision.Result{Recipes: recipes, RawResponse: body.Response}, nil
}
