package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"

	"github.com/brokechef/fridgechef/internal/auth"
	"github.com/brokechef/fridgechef/internal/domain"
)

const (
	uploadFieldName = "file"
	uploadFileName  = "fridge.jpg"
	uploadMIME      = "image/jpeg"

	// maxErrorBody caps how much of an error response is read.
	maxErrorBody = 64 * 1024
)

// errorEnvelope is the JSON error body returned by the generate endpoint.
type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Submit uploads imageBytes to the generate endpoint. It returns nil on any
// 2xx response; the generation result arrives on the event stream.
func (c *Client) Submit(ctx context.Context, imageBytes []byte) error {
	if len(imageBytes) == 0 {
		return domain.ErrEmptyImage
	}

	body, contentType, err := multipartImage(imageBytes)
	if err != nil {
		return fmt.Errorf("failed to build upload body: %w", err)
	}

	req, err := newRequest(ctx, "POST", c.baseURL+"/generate", body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if err := auth.Authorize(req, c.tokens); err != nil {
		return domain.NewUserError(domain.ErrNetwork, "Failed to read session token.", err)
	}

	c.logger.Debug("uploading fridge image", "bytes", len(imageBytes))
	resp, err := c.upload.Do(req)
	if err != nil {
		return domain.NewUserError(domain.ErrNetwork, "Failed to upload fridge image.", fmt.Errorf("%w: %w", domain.ErrUpload, err))
	}
	defer closeWithLog(resp.Body, "upload response", c.logger)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	cause := fmt.Errorf("%w: status %d", domain.ErrUpload, resp.StatusCode)
	if msg := envelopeMessage(raw); msg != "" {
		return domain.NewUserError(domain.ErrApplication, msg, cause)
	}
	return domain.NewUserError(domain.ErrNetwork, fmt.Sprintf("Failed to upload fridge image (%d).", resp.StatusCode), cause)
}

func multipartImage(data []byte) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, uploadFieldName, uploadFileName))
	h.Set("Content-Type", uploadMIME)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return body, w.FormDataContentType(), nil
}

// envelopeMessage extracts error.message from a JSON error body, or "".
func envelopeMessage(raw []byte) string {
	var env errorEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ""
	}
	return strings.TrimSpace(env.Error.Message)
}
