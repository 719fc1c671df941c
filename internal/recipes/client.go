// Package recipes is the client for the platform's recipe CRUD and image
// upload endpoints.
package recipes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/brokechef/fridgechef/internal/auth"
	"github.com/brokechef/fridgechef/internal/domain"
)

const maxResponseBody = 1 << 20

// apiError is the error body returned by the CRUD and upload endpoints.
type apiError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type Client struct {
	uploadURL string
	crudURL   string
	tokens    auth.TokenSource
	http      *http.Client
	logger    *slog.Logger
}

func NewClient(uploadURL, crudURL string, tokens auth.TokenSource, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		uploadURL: strings.TrimRight(uploadURL, "/"),
		crudURL:   strings.TrimRight(crudURL, "/"),
		tokens:    tokens,
		http:      &http.Client{Timeout: timeout},
		logger:    logger,
	}
}

// UploadImage stores a recipe image and returns its public URL.
func (c *Client) UploadImage(ctx context.Context, data []byte) (string, error) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := w.CreatePart(h)
	if err != nil {
		return "", fmt.Errorf("failed to create form part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("failed to write form part: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	var out struct {
		ImageURL string `json:"imageUrl"`
	}
	err = c.do(ctx, http.MethodPost, c.uploadURL+"/recipe", w.FormDataContentType(), body, &out, func(status int) string {
		if status == 0 {
			return "Upload failed."
		}
		return fmt.Sprintf("Upload failed: %d %s", status, http.StatusText(status))
	})
	if err != nil {
		return "", err
	}
	if out.ImageURL == "" {
		return "", domain.NewUserError(domain.ErrProtocol, "Upload succeeded but no image key returned.", nil)
	}
	return out.ImageURL, nil
}

// Create persists a recipe and returns its id.
func (c *Client) Create(ctx context.Context, input domain.RecipeInput) (int64, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return 0, fmt.Errorf("failed to encode recipe: %w", err)
	}

	var out struct {
		ID int64 `json:"id"`
	}
	err = c.do(ctx, http.MethodPost, c.crudURL+"/recipes", "application/json", bytes.NewReader(payload), &out, fixed("Failed to create recipe."))
	if err != nil {
		return 0, err
	}
	return out.ID, nil
}

// FindByID loads a persisted recipe.
func (c *Client) FindByID(ctx context.Context, id int64) (*domain.Recipe, error) {
	var out domain.Recipe
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/recipes/%d", c.crudURL, id), "", nil, &out, fixed("Failed to load recipe."))
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func fixed(msg string) func(int) string {
	return func(int) string { return msg }
}

// do sends a request and decodes a JSON response into out. Non-2xx responses
// become a UserError whose message comes from the API error body, or from
// fallback when the body has none.
func (c *Client) do(ctx context.Context, method, url, contentType string, body io.Reader, out any, fallback func(status int) string) error {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if err := auth.Authorize(req, c.tokens); err != nil {
		return domain.NewUserError(domain.ErrNetwork, "Failed to read session token.", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.NewUserError(domain.ErrNetwork, fallback(0), err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Debug("failed to close response body", "url", url, "error", err)
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return domain.NewUserError(domain.ErrNetwork, fallback(resp.StatusCode), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		cause := fmt.Errorf("%s %s: status %d", method, url, resp.StatusCode)
		if resp.StatusCode == http.StatusNotFound {
			cause = fmt.Errorf("%w: %w", cause, domain.ErrNotFound)
		}
		var apiErr apiError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Message != "" {
			return domain.NewUserError(domain.ErrApplication, apiErr.Message, cause)
		}
		return domain.NewUserError(domain.ErrNetwork, fallback(resp.StatusCode), cause)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return domain.NewUserError(domain.ErrProtocol, fallback(resp.StatusCode), fmt.Errorf("invalid response body: %w", err))
	}
	return nil
}
