package imagesource

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brokechef/fridgechef/internal/domain"
)

func TestFileReadImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fridge.jpg")
	require.NoError(t, os.WriteFile(path, []byte{0xFF, 0xD8, 0xFF, 0xE0}, 0o600))

	data, err := File(path).ReadImage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xD8, 0xFF, 0xE0}, data)
}

func TestFileReadImage_Missing(t *testing.T) {
	_, err := File(filepath.Join(t.TempDir(), "nope.jpg")).ReadImage(context.Background())
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.ErrorIs(t, err, domain.ErrUnreadable)
}

func TestFileReadImage_NothingSelected(t *testing.T) {
	_, err := File("").ReadImage(context.Background())
	assert.ErrorIs(t, err, domain.ErrEmptyImage)
}

func TestFileReadImage_StopsPastCeiling(t *testing.T) {
	path := filepath.Join(t.TempDir(), "huge.jpg")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte{1}, domain.MaxImageSize+100), 0o600))

	data, err := File(path).ReadImage(context.Background())
	require.NoError(t, err)
	assert.Len(t, data, domain.MaxImageSize+1)
	assert.ErrorIs(t, Validate(data), domain.ErrImageTooLarge)
}

type closeFailer struct {
	io.Reader
	closed bool
}

func (c *closeFailer) Close() error {
	c.closed = true
	return errors.New("input/output error")
}

func TestReadImage_CloseFailure(t *testing.T) {
	rc := &closeFailer{Reader: bytes.NewReader([]byte{0xFF, 0xD8})}

	data, err := readImage(rc)
	assert.True(t, rc.closed)
	assert.Nil(t, data)
	assert.ErrorIs(t, err, domain.ErrUnreadable)
	assert.ErrorContains(t, err, "input/output error")
}

func TestReadImage_ReadFailureWins(t *testing.T) {
	rc := &closeFailer{Reader: iotest.ErrReader(errors.New("disk gone"))}

	_, err := readImage(rc)
	assert.True(t, rc.closed)
	assert.ErrorIs(t, err, domain.ErrUnreadable)
	assert.ErrorContains(t, err, "disk gone")
}

func TestBytesReadImage(t *testing.T) {
	_, err := Bytes(nil).ReadImage(context.Background())
	assert.ErrorIs(t, err, domain.ErrEmptyImage)

	data, err := Bytes("img").ReadImage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("img"), data)
}

func TestValidate(t *testing.T) {
	assert.ErrorIs(t, Validate(nil), domain.ErrEmptyImage)
	assert.ErrorIs(t, Validate(make([]byte, domain.MaxImageSize+1)), domain.ErrImageTooLarge)
	assert.NoError(t, Validate(make([]byte, domain.MaxImageSize)))
	assert.NoError(t, Validate([]byte{1}))
}

func TestDetectMIME(t *testing.T) {
	tests := []struct {
		name         string
		data         []byte
		wantMIME     string
		wantDetected bool
	}{
		{name: "JPEG", data: []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10}, wantMIME: "image/jpeg", wantDetected: true},
		{name: "PNG", data: []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00}, wantMIME: "image/png", wantDetected: true},
		{name: "GIF", data: []byte("GIF89a"), wantMIME: "image/gif", wantDetected: true},
		{name: "WebP", data: append([]byte("RIFF\x00\x00\x00\x00WEBP"), make([]byte, 10)...), wantMIME: "image/webp", wantDetected: true},
		{name: "RIFF but not WebP", data: append([]byte("RIFF\x00\x00\x00\x00WAVE"), make([]byte, 10)...)},
		{name: "PDF disguised as image", data: []byte("%PDF-1.4 malicious content")},
		{name: "empty", data: []byte{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotMIME, gotDetected := DetectMIME(tt.data)
			assert.Equal(t, tt.wantDetected, gotDetected)
			assert.Equal(t, tt.wantMIME, gotMIME)
		})
	}
}
