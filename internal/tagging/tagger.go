// Package tagging converts OCR geometry into a tagged text stream.
//
// Every non-empty OCR line gets a document-wide tag (E1, E2, ...). The model
// cites those tags as evidence and the index maps them back to the page,
// bounding box and confidence of the line.
package tagging

import (
	"fmt"
	"strings"

	"github.com/adverant/nexus/supplylist-worker/internal/ocr"
)

const defaultUnit = "px"

// PageInfo locates a line's page and its size
type PageInfo struct {
	PageNumber int     `json:"page_number"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Unit       string  `json:"unit"`
}

// Element is one tagged OCR line
type Element struct {
	Tag         string       `json:"tag"`
	Text        string       `json:"text"`
	PageInfo    PageInfo     `json:"page_info"`
	BoundingBox []ocr.Vertex `json:"bounding_box"`
	Confidence  *float64     `json:"confidence"`
}

// Index maps a tag to its element
type Index map[string]Element

// Lookup returns the elements for the given tags, skipping unknown ones
func (idx Index) Lookup(tags []string) []Element {
	out := make([]Element, 0, len(tags))
	for _, tag := range tags {
		if el, ok := idx[tag]; ok {
			out = append(out, el)
		}
	}
	return out
}

// TaggedPage is the tagged text of one page
type TaggedPage struct {
	PageNumber int
	Text       string
	Tags       []string
}

// Empty reports whether the page produced no tagged line
func (p TaggedPage) Empty() bool {
	return len(p.Tags) == 0
}

// Result is the tagging of a whole document
type Result struct {
	Text  string
	Index Index
	Pages []TaggedPage
}

// Tag walks pages then lines in order and assigns contiguous tags.
// Anchors always resolve against the full document text.
func Tag(doc *ocr.Document) *Result {
	res := &Result{Index: Index{}}
	if doc == nil {
		return res
	}

	fullText := []rune(doc.Text)
	var all strings.Builder
	next := 1

	for i, page := range doc.Pages {
		info := PageInfo{
			PageNumber: i + 1,
			Width:      page.Dimension.Width,
			Height:     page.Dimension.Height,
			Unit:       page.Dimension.Unit,
		}
		if info.Unit == "" {
			info.Unit = defaultUnit
		}

		tp := TaggedPage{PageNumber: i + 1}
		var pageText strings.Builder

		for _, line := range page.Lines {
			text := normalizeWhitespace(anchorText(fullText, line.TextAnchor))
			if text == "" {
				continue
			}

			tag := fmt.Sprintf("E%d", next)
			next++

			entry := fmt.Sprintf("[%s] %s\n", tag, text)
			pageText.WriteString(entry)
			all.WriteString(entry)

			res.Index[tag] = Element{
				Tag:         tag,
				Text:        text,
				PageInfo:    info,
				BoundingBox: line.BoundingPoly,
				Confidence:  line.Confidence,
			}
			tp.Tags = append(tp.Tags, tag)
		}

		tp.Text = pageText.String()
		res.Pages = append(res.Pages, tp)
	}

	res.Text = all.String()
	return res
}

// anchorText concatenates the anchor ranges, clamping out-of-range offsets
func anchorText(text []rune, segments []ocr.TextSegment) string {
	var b strings.Builder
	n := int64(len(text))
	for _, seg := range segments {
		start, end := seg.StartIndex, seg.EndIndex
		if start < 0 {
			start = 0
		}
		if end > n {
			end = n
		}
		if start >= end {
			continue
		}
		b.WriteString(string(text[start:end]))
	}
	return b.String()
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
