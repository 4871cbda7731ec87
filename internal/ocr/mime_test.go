package ocr

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/adverant/nexus/supplylist-worker/internal/errors"
)

func TestDetectMimeType(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"pdf", []byte("%PDF-1.7\n..."), "application/pdf"},
		{"png", []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0}, "image/png"},
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0}, "image/jpeg"},
		{"gif", []byte("GIF89a...."), "image/gif"},
		{"tiff le", []byte{'I', 'I', 0x2A, 0x00, 8}, "image/tiff"},
		{"tiff be", []byte{'M', 'M', 0x00, 0x2A, 8}, "image/tiff"},
		{"zip", []byte{'P', 'K', 0x03, 0x04, 0}, "application/zip"},
		{"too short", []byte{0x25}, ""},
		{"text", []byte("hello world"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectMimeType(tt.data))
		})
	}
}

func TestResolveMimeType(t *testing.T) {
	assert.Equal(t, "application/pdf", ResolveMimeType("application/octet-stream", []byte("%PDF-1.4")))
	assert.Equal(t, "image/jpeg", ResolveMimeType("IMAGE/JPG; q=1", []byte("????")))
	assert.Equal(t, "text/plain", ResolveMimeType("text/plain", []byte("plain text")))
}

func TestValidateMimeType(t *testing.T) {
	for mime := range SupportedMimeTypes {
		assert.NoError(t, ValidateMimeType("job", mime), mime)
	}

	err := ValidateMimeType("job-1", "application/zip")
	assert.True(t, stderrors.Is(err, apperrors.ErrUnsupportedFormat))
	assert.Equal(t, apperrors.StatusUnsupportedFormat, apperrors.StatusForError(err))
}
