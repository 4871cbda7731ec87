package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want DocumentStatus
	}{
		{"success", nil, StatusProcessed},
		{"ocr", NewOCRFailedError("j", "documentai", io.EOF), StatusOCRError},
		{"extraction", NewExtractionFailedError("j", 2), StatusExtractionError},
		{"empty", NewEmptyExtractionError("j", 1), StatusEmptyExtraction},
		{"format", NewUnsupportedFormatError("j", "text/plain"), StatusUnsupportedFormat},
		{"wrapped empty", fmt.Errorf("run: %w", NewEmptyExtractionError("j", 0)), StatusEmptyExtraction},
		{"plain", io.ErrUnexpectedEOF, StatusUnknownError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusForError(tt.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewTransportError("generateContent", 503, io.EOF)))
	assert.True(t, IsRetryable(NewMalformedResponseError("no JSON boundaries", nil)))
	assert.False(t, IsRetryable(NewModelUnavailableError("gemini", 3, io.EOF)))
	assert.False(t, IsRetryable(io.EOF))
}

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("page 2: %w", NewModelUnavailableError("gemini", 3, NewTransportError("x", 0, io.EOF)))

	assert.True(t, stderrors.Is(err, ErrModelUnavailable))
	assert.True(t, stderrors.Is(err, ErrTransportFailure))
	assert.True(t, stderrors.Is(err, io.EOF))
	assert.False(t, stderrors.Is(err, ErrEmptyExtraction))
}

func TestToMap(t *testing.T) {
	err := NewUnsupportedFormatError("job-9", "application/zip")

	m := err.ToMap()
	require.Equal(t, "UNSUPPORTED_FORMAT", m["error_code"])
	assert.Equal(t, "job-9", m["job_id"])
	assert.Equal(t, "application/zip", m["mime_type"])
	assert.NotContains(t, m, "cause")
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(NewEmptyExtractionError("j", 0)))
	assert.False(t, IsTerminal(NewOCRFailedError("j", "tesseract", io.EOF)))
}
