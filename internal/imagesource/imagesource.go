// Package imagesource supplies the bytes of the photo the user picked and
// checks them before any network call is made.
package imagesource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/brokechef/fridgechef/internal/domain"
)

// Provider returns the bytes of the selected image. Implementations return an
// error wrapping domain.ErrEmptyImage when nothing is selected.
type Provider interface {
	ReadImage(ctx context.Context) ([]byte, error)
}

// File reads the image from a path on disk.
type File string

func (f File) ReadImage(_ context.Context) ([]byte, error) {
	if f == "" {
		return nil, domain.ErrEmptyImage
	}
	fh, err := os.Open(string(f))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnreadable, err)
	}
	return readImage(fh)
}

// readImage reads rc and closes it. A failed close is reported as unreadable,
// since the bytes read may be incomplete.
func readImage(rc io.ReadCloser) (data []byte, err error) {
	defer func() {
		if cerr := rc.Close(); cerr != nil && err == nil {
			data, err = nil, fmt.Errorf("%w: %v", domain.ErrUnreadable, cerr)
		}
	}()

	// Read one byte past the ceiling so oversized files are detected without
	// loading them whole.
	data, err = io.ReadAll(io.LimitReader(rc, domain.MaxImageSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnreadable, err)
	}
	return data, nil
}

// Bytes is an in-memory Provider.
type Bytes []byte

func (b Bytes) ReadImage(context.Context) ([]byte, error) {
	if len(b) == 0 {
		return nil, domain.ErrEmptyImage
	}
	return b, nil
}

// Validate enforces the non-empty and size-ceiling rules.
func Validate(data []byte) error {
	if len(data) == 0 {
		return domain.ErrEmptyImage
	}
	if len(data) > domain.MaxImageSize {
		return domain.ErrImageTooLarge
	}
	return nil
}

// allowedImageTypes is the set of MIME types accepted for uploaded photos.
// net/http.DetectContentType handles JPEG, PNG, and GIF via magic-byte
// sniffing. WebP is detected separately because the WHATWG sniffing
// algorithm does not include a WebP signature.
var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

func isWebP(data []byte) bool {
	return len(data) >= 12 &&
		string(data[0:4]) == "RIFF" &&
		string(data[8:12]) == "WEBP"
}

// DetectMIME returns the sniffed MIME type and true if data is an accepted
// image format, or ("", false) otherwise.
func DetectMIME(data []byte) (string, bool) {
	if isWebP(data) {
		return "image/webp", true
	}
	mime := http.DetectContentType(data)
	if allowedImageTypes[mime] {
		return mime, true
	}
	return "", false
}
