package ocr

import (
	"bytes"
	"strings"

	apperrors "github.com/adverant/nexus/supplylist-worker/internal/errors"
)

// SupportedMimeTypes lists the formats the OCR engines accept
var SupportedMimeTypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/png":       true,
	"image/gif":       true,
	"image/tiff":      true,
}

// DetectMimeType detects the actual MIME type from file content magic bytes.
// Drive exports and uploads often arrive as "application/octet-stream".
func DetectMimeType(data []byte) string {
	if len(data) < 4 {
		return ""
	}

	switch {
	case bytes.HasPrefix(data, []byte("%PDF")):
		return "application/pdf"
	case len(data) >= 8 && bytes.HasPrefix(data, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}):
		return "image/png"
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return "image/jpeg"
	case bytes.HasPrefix(data, []byte("GIF87a")), bytes.HasPrefix(data, []byte("GIF89a")):
		return "image/gif"
	case bytes.HasPrefix(data, []byte{0x49, 0x49, 0x2A, 0x00}), bytes.HasPrefix(data, []byte{0x4D, 0x4D, 0x00, 0x2A}):
		return "image/tiff"
	case len(data) > 12 && bytes.HasPrefix(data, []byte("RIFF")) && string(data[8:12]) == "WEBP":
		return "image/webp"
	case bytes.HasPrefix(data, []byte("BM")):
		return "image/bmp"
	case bytes.HasPrefix(data, []byte{0x50, 0x4B, 0x03, 0x04}):
		return "application/zip"
	}

	return ""
}

// ResolveMimeType prefers the sniffed type over the declared one
func ResolveMimeType(declared string, data []byte) string {
	if detected := DetectMimeType(data); detected != "" {
		return detected
	}
	declared = strings.ToLower(strings.TrimSpace(declared))
	if i := strings.IndexByte(declared, ';'); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	if declared == "image/jpg" {
		return "image/jpeg"
	}
	return declared
}

// ValidateMimeType rejects formats no engine can read
func ValidateMimeType(jobID, mimeType string) error {
	if !SupportedMimeTypes[mimeType] {
		return apperrors.NewUnsupportedFormatError(jobID, mimeType)
	}
	return nil
}
