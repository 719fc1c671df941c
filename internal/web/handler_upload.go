package web

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/brokechef/fridgechef/internal/domain"
	"github.com/brokechef/fridgechef/internal/imagesource"
)

func (s *Server) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	imageData, status, err := readImageForm(w, r)
	if err != nil {
		s.writeAPIError(w, status, codeFor(status), domain.Message(err, "Failed to read image."))
		return
	}
	mimeType, ok := imagesource.DetectMIME(imageData)
	if !ok {
		s.writeAPIError(w, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", "Unsupported image format.")
		return
	}

	key, err := s.service.SaveImage(r.Context(), imageData, mimeType)
	if err != nil {
		s.logger.Error("save image failed", "error", err)
		s.writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to store image.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"imageUrl": imageURL(r, key)}, s.logger)
}

func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	reader, mimeType, err := s.service.OpenImage(r.Context(), key)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("open image failed", "key", key, "error", err)
		}
		http.NotFound(w, r)
		return
	}
	defer closeWithLog(reader, "image reader", s.logger)

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	if _, err := io.Copy(w, reader); err != nil {
		s.logger.Error("write image failed", "key", key, "error", err)
	}
}

// imageURL builds the absolute URL under which the stored image key is
// served, honouring a reverse proxy's X-Forwarded-Proto.
func imageURL(r *http.Request, key string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		scheme = proto
	}
	return scheme + "://" + r.Host + uploadPrefix + "/recipe/" + url.PathEscape(key)
}

// closeWithLog closes c and logs any error, using label to identify the resource.
func closeWithLog(c io.Closer, label string, logger *slog.Logger) {
	if err := c.Close(); err != nil {
		logger.Error("failed to close resource", "label", label, "error", err)
	}
}
