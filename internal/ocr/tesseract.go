/**
 * Tesseract OCR - local engine for offline processing
 *
 * Images only. Each recognised text line becomes a Line whose anchor
 * points into a newline-joined full text, so downstream tagging works
 * the same way it does for Document AI output.
 */

package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"
	"unicode/utf8"

	"github.com/otiai10/gosseract/v2"
	_ "golang.org/x/image/tiff"
)

// TesseractEngine handles OCR using a local Tesseract install
type TesseractEngine struct {
	languages []string
}

// NewTesseractEngine creates an engine for the given traineddata languages
func NewTesseractEngine(languages []string) *TesseractEngine {
	if len(languages) == 0 {
		languages = []string{"fra", "eng"}
	}
	return &TesseractEngine{languages: languages}
}

func (t *TesseractEngine) Name() string { return "tesseract" }

// Process performs line-level OCR on a single image
func (t *TesseractEngine) Process(ctx context.Context, content []byte, mimeType string) (*Document, error) {
	if mimeType == "application/pdf" {
		return nil, fmt.Errorf("tesseract engine cannot read %s, use the documentai provider", mimeType)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	imgCfg, _, err := image.DecodeConfig(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image header: %w", err)
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.languages...); err != nil {
		return nil, fmt.Errorf("failed to set languages: %w", err)
	}
	if err := client.SetImageFromBytes(content); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("tesseract OCR failed: %w", err)
	}

	return linesToDocument(boxes, imgCfg.Width, imgCfg.Height), nil
}

func linesToDocument(boxes []gosseract.BoundingBox, width, height int) *Document {
	var text strings.Builder
	page := Page{
		Dimension: Dimension{Width: float64(width), Height: float64(height), Unit: "pixels"},
	}

	var offset int64
	for _, box := range boxes {
		word := strings.TrimSpace(box.Word)
		if word == "" {
			continue
		}

		start := offset
		end := start + int64(utf8.RuneCountInString(word))
		text.WriteString(word)
		text.WriteByte('\n')
		offset = end + 1

		confidence := box.Confidence / 100
		page.Lines = append(page.Lines, Line{
			TextAnchor:   []TextSegment{{StartIndex: start, EndIndex: end}},
			BoundingPoly: normalizeRect(box.Box, width, height),
			Confidence:   &confidence,
		})
	}

	return &Document{Text: text.String(), Pages: []Page{page}}
}

func normalizeRect(r image.Rectangle, width, height int) []Vertex {
	if width <= 0 || height <= 0 {
		return nil
	}
	w, h := float64(width), float64(height)
	return []Vertex{
		{X: float64(r.Min.X) / w, Y: float64(r.Min.Y) / h},
		{X: float64(r.Max.X) / w, Y: float64(r.Min.Y) / h},
		{X: float64(r.Max.X) / w, Y: float64(r.Max.Y) / h},
		{X: float64(r.Min.X) / w, Y: float64(r.Max.Y) / h},
	}
}
