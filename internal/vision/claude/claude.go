package claude

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/liushuangls/go-anthropic/v2"

	"github.com/brokechef/fridgechef/internal/vision"
)

// maxTokens leaves room for three recipes with full step lists.
const maxTokens = 2048

type Generator struct {
	client *anthropic.Client
	model  string
	logger *slog.Logger
}

type Option func(*options)

type options struct {
	baseURL string
}

// WithBaseURL points the generator at a different Messages API root.
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

func NewGenerator(apiKey, model string, logger *slog.Logger, opts ...Option) *Generator {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	var clientOpts []anthropic.ClientOption
	if o.baseURL != "" {
		clientOpts = append(clientOpts, anthropic.WithBaseURL(o.baseURL))
	}
	return &Generator{
		client: anthropic.NewClient(apiKey, clientOpts...),
		model:  model,
		logger: logger,
	}
}

func (g *Generator) GenerateRecipes(ctx context.Context, r io.Reader, mimeType string) (*vision.Result, error) {
	imageData, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}

	resp, err := g.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(g.model),
		MaxTokens: maxTokens,
		Messages: []anthropic.Message{{
			Role: anthropic.RoleUser,
			Content: []anthropic.MessageContent{
				anthropic.NewImageMessageContent(anthropic.NewMessageContentSource(
					anthropic.MessagesContentSourceTypeBase64,
					normaliseMIME(mimeType),
					imageData,
				)),
				anthropic.NewTextMessageContent(vision.RecipePrompt),
			},
		}},
	})
	if err != nil {
		var apiErr *anthropic.APIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("claude returned %s: %s", apiErr.Type, apiErr.Message)
		}
		return nil, fmt.Errorf("failed to call claude: %w", err)
	}

	var text string
	for _, c := range resp.Content {
		if c.Type == anthropic.MessagesContentTypeText {
			text = c.GetText()
			break
		}
	}
	g.logger.Debug("claude response received", "model", g.model, "chars", len(text))

	recipes, err := vision.ParseRecipes(text)
	if err != nil {
		return nil, err
	}
	return &vision.Result{Recipes: recipes, RawResponse: text}, nil
}

// normaliseMIME maps sniffed MIME types to the values the Messages API
// accepts. Unknown types are sent as jpeg.
func normaliseMIME(mimeType string) string {
	switch mimeType {
	case "image/png", "image/gif", "image/webp":
		return mimeType
	default:
		return "image/jpeg"
	}
}
