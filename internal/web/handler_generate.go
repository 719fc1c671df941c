package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/brokechef/fridgechef/internal/auth"
	"github.com/brokechef/fridgechef/internal/domain"
	"github.com/brokechef/fridgechef/internal/imagesource"
)

// multipartOverhead is the allowance for form framing on top of the image.
const multipartOverhead = 1 << 20

// generateError is the error body of the generator endpoints.
type generateError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (s *Server) writeGenerateError(w http.ResponseWriter, status int, msg string) {
	var body generateError
	body.Error.Message = msg
	writeJSON(w, status, body, s.logger)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	session := auth.FromRequest(r)
	if session == "" {
		s.writeGenerateError(w, http.StatusUnauthorized, "Please sign in to generate recipes.")
		return
	}

	imageData, status, err := readImageForm(w, r)
	if err != nil {
		s.writeGenerateError(w, status, domain.Message(err, "Failed to read image."))
		return
	}
	mimeType, ok := imagesource.DetectMIME(imageData)
	if !ok {
		s.writeGenerateError(w, http.StatusUnsupportedMediaType, "Unsupported image format.")
		return
	}

	gen, err := s.service.Generate(r.Context(), session, imageData, mimeType)
	if err != nil {
		s.logger.Error("generate failed", "error", err)
		s.writeGenerateError(w, http.StatusInternalServerError, "Failed to start recipe generation.")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int64{"generationId": gen.ID}, s.logger)
}

// readImageForm reads the "file" part of a multipart upload, enforcing the
// image size ceiling. On failure it returns the HTTP status to answer with.
func readImageForm(w http.ResponseWriter, r *http.Request) ([]byte, int, error) {
	r.Body = http.MaxBytesReader(w, r.Body, domain.MaxImageSize+multipartOverhead)
	if err := r.ParseMultipartForm(domain.MaxImageSize); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, http.StatusRequestEntityTooLarge, domain.ErrImageTooLarge
		}
		return nil, http.StatusBadRequest, domain.NewUserError(domain.ErrValidation, "Expected a multipart image upload.", err)
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, http.StatusBadRequest, domain.ErrEmptyImage
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(io.LimitReader(file, domain.MaxImageSize+1))
	if err != nil {
		return nil, http.StatusBadRequest, domain.ErrUnreadable
	}
	if err := imagesource.Validate(data); err != nil {
		if errors.Is(err, domain.ErrImageTooLarge) {
			return nil, http.StatusRequestEntityTooLarge, err
		}
		return nil, http.StatusBadRequest, err
	}
	return data, http.StatusOK, nil
}

// handleEvents streams the session's next terminal event as server-sent
// events. The stream opens with a comment, emits keepalive comments while
// the generation runs and ends after the single data event.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	session := auth.FromRequest(r)
	if session == "" {
		s.writeGenerateError(w, http.StatusUnauthorized, "Please sign in to receive recipes.")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeGenerateError(w, http.StatusInternalServerError, "Streaming unsupported.")
		return
	}
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Debug("clear write deadline failed", "error", err)
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if _, err := io.WriteString(w, ": connected\n\n"); err != nil {
		return
	}
	flusher.Flush()

	ctx := r.Context()
	type next struct {
		payload domain.EventPayload
		err     error
	}
	result := make(chan next, 1)
	go func() {
		payload, err := s.service.NextEvent(ctx, session)
		result <- next{payload, err}
	}()

	ticker := time.NewTicker(s.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case res := <-result:
			payload := res.payload
			if res.err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Error("wait for generation event failed", "error", res.err)
				payload = domain.EventPayload{Status: domain.StatusError, Message: "Recipe generation failed."}
			}
			data, err := json.Marshal(payload)
			if err != nil {
				s.logger.Error("encode event failed", "error", err)
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				s.logger.Error("write event failed", "error", err)
				return
			}
			flusher.Flush()
			return
		}
	}
}

type generationView struct {
	ID          int64      `json:"id"`
	Status      string     `json:"status"`
	Message     string     `json:"message,omitempty"`
	RecipeCount int        `json:"recipeCount"`
	CreatedAt   time.Time  `json:"createdAt"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
}

func (s *Server) handleListGenerations(w http.ResponseWriter, r *http.Request) {
	session := auth.FromRequest(r)
	if session == "" {
		s.writeGenerateError(w, http.StatusUnauthorized, "Please sign in to view generations.")
		return
	}
	gens, err := s.service.ListGenerations(r.Context(), session)
	if err != nil {
		s.logger.Error("list generations failed", "error", err)
		s.writeGenerateError(w, http.StatusInternalServerError, "Failed to list generations.")
		return
	}
	views := make([]generationView, len(gens))
	for i, g := range gens {
		views[i] = generationView{
			ID:          g.ID,
			Status:      g.Status,
			Message:     g.Message,
			RecipeCount: g.RecipeCount,
			CreatedAt:   g.CreatedAt,
			FinishedAt:  g.FinishedAt,
		}
	}
	writeJSON(w, http.StatusOK, views, s.logger)
}
