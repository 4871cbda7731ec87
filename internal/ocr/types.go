// Package ocr turns scanned supply lists into line geometry.
//
// Engines return a Document whose lines point back into the document's
// full text through anchor ranges. Offsets count Unicode code points.
package ocr

import "context"

// Engine performs OCR on one source document
type Engine interface {
	Name() string
	Process(ctx context.Context, content []byte, mimeType string) (*Document, error)
}

// Document is the immutable OCR result for a whole source file
type Document struct {
	Text  string `json:"text"`
	Pages []Page `json:"pages"`
}

// Page holds the lines of one page in reading order
type Page struct {
	Dimension Dimension `json:"dimension"`
	Lines     []Line    `json:"lines"`
}

// Dimension is the page size reported by the engine
type Dimension struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Unit   string  `json:"unit"`
}

// Line is one OCR text line
type Line struct {
	TextAnchor   []TextSegment `json:"textAnchor"`
	BoundingPoly []Vertex      `json:"boundingPoly,omitempty"`
	Confidence   *float64      `json:"confidence,omitempty"`
}

// TextSegment is a [StartIndex, EndIndex) range into Document.Text
type TextSegment struct {
	StartIndex int64 `json:"startIndex"`
	EndIndex   int64 `json:"endIndex"`
}

// Vertex is a normalized (0..1) polygon point
type Vertex struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}
