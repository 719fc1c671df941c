// Package local is an imagestore.ImageStore on the local filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/brokechef/fridgechef/internal/domain"
	"github.com/brokechef/fridgechef/internal/imagestore"
)

// formats maps each stored MIME type to the key suffix it is saved under.
var formats = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Store keeps each recipe image in dir as <uuid><ext>. Writes land in a
// temporary file first, so a key never names a partial image.
type Store struct {
	dir    string
	logger *slog.Logger
}

func New(dir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create image directory: %w", err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

func (s *Store) Save(ctx context.Context, mimeType string, r io.Reader) (string, error) {
	ext, ok := formats[mimeType]
	if !ok {
		return "", fmt.Errorf("%w: %q", imagestore.ErrUnsupportedType, mimeType)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create image file: %w", err)
	}
	if err := s.fill(ctx, tmp, r); err != nil {
		s.discard(tmp.Name())
		return "", err
	}

	key := uuid.NewString() + ext
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, key)); err != nil {
		s.discard(tmp.Name())
		return "", fmt.Errorf("failed to store image: %w", err)
	}
	s.logger.Debug("image stored", "key", key, "mime_type", mimeType)
	return key, nil
}

// fill copies r into f and closes f.
func (s *Store) fill(ctx context.Context, f *os.File, r io.Reader) error {
	_, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write image: %w", err)
	}
	return ctx.Err()
}

func (s *Store) Open(_ context.Context, key string) (io.ReadCloser, string, error) {
	path, mimeType, err := s.locate(key)
	if err != nil {
		return nil, "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, "", s.lookupError(key, err)
	}
	return f, mimeType, nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	path, _, err := s.locate(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return s.lookupError(key, err)
	}
	s.logger.Debug("image deleted", "key", key)
	return nil
}

// locate maps a key issued by Save to its file and MIME type. Anything else,
// including keys that try to leave dir, is rejected with ErrInvalidKey.
func (s *Store) locate(key string) (string, string, error) {
	ext := filepath.Ext(key)
	id, ok := strings.CutSuffix(key, ext)
	if !ok || id == "" {
		return "", "", fmt.Errorf("%w: %q", imagestore.ErrInvalidKey, key)
	}
	parsed, err := uuid.Parse(id)
	if err != nil || parsed.String() != id {
		return "", "", fmt.Errorf("%w: %q", imagestore.ErrInvalidKey, key)
	}
	for mimeType, e := range formats {
		if e == ext {
			return filepath.Join(s.dir, key), mimeType, nil
		}
	}
	return "", "", fmt.Errorf("%w: %q", imagestore.ErrInvalidKey, key)
}

func (s *Store) lookupError(key string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("image %s: %w", key, domain.ErrNotFound)
	}
	return fmt.Errorf("image %s: %w", key, err)
}

func (s *Store) discard(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Error("failed to remove partial image", "path", path, "error", err)
	}
}
