// Package imagestore persists recipe images uploaded to the development
// backend.
package imagestore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/brokechef/fridgechef/internal/domain"
)

var (
	// ErrUnsupportedType is returned by Save for a MIME type the store does
	// not keep.
	ErrUnsupportedType = errors.New("unsupported image type")
	// ErrInvalidKey is returned for keys the store could never have issued.
	// It matches domain.ErrNotFound.
	ErrInvalidKey = fmt.Errorf("invalid image key: %w", domain.ErrNotFound)
)

// ImageStore keeps uploaded recipe images under opaque keys. Open returns the
// image's MIME type alongside its contents.
type ImageStore interface {
	Save(ctx context.Context, mimeType string, r io.Reader) (key string, err error)
	Open(ctx context.Context, key string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, key string) error
}
