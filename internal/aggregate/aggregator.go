// Package aggregate merges per-page extractions into one document result.
package aggregate

import (
	apperrors "github.com/adverant/nexus/supplylist-worker/internal/errors"
	"github.com/adverant/nexus/supplylist-worker/internal/extraction"
)

// Field is a document-level standardized value
type Field struct {
	CanonicalName string   `json:"canonicalName" yaml:"canonicalName"`
	SourceTags    []string `json:"sourceTags" yaml:"sourceTags"`
}

// Level gathers every textbook seen for one canonical level
type Level struct {
	CanonicalName string                `json:"canonicalName" yaml:"canonicalName"`
	RawName       string                `json:"rawName" yaml:"rawName"`
	SourceTags    []string              `json:"sourceTags" yaml:"sourceTags"`
	Textbooks     []extraction.Textbook `json:"textbooks" yaml:"textbooks"`
}

// Document is the merged result of all pages.
// Levels keep the order in which their canonical name first appeared.
type Document struct {
	School     *Field   `json:"school" yaml:"school"`
	SchoolYear *Field   `json:"schoolYear" yaml:"schoolYear"`
	Levels     []*Level `json:"levels" yaml:"levels"`

	byName map[string]*Level
}

// Level returns the merged level for a canonical name
func (d *Document) Level(canonicalName string) (*Level, bool) {
	if d.byName == nil {
		for _, l := range d.Levels {
			if l.CanonicalName == canonicalName {
				return l, true
			}
		}
		return nil, false
	}
	l, ok := d.byName[canonicalName]
	return l, ok
}

// TotalTextbooks counts textbooks across all levels
func (d *Document) TotalTextbooks() int {
	n := 0
	for _, l := range d.Levels {
		n += len(l.Textbooks)
	}
	return n
}

// Validate flags a document without any textbook as an empty extraction
func (d *Document) Validate(jobID string) error {
	if d.TotalTextbooks() == 0 {
		return apperrors.NewEmptyExtractionError(jobID, len(d.Levels))
	}
	return nil
}

// Aggregate merges pages in order. School and year are first-non-null-wins;
// levels merge by canonical name and keep duplicates.
func Aggregate(pages []*extraction.PageResult) *Document {
	doc := &Document{
		Levels: []*Level{},
		byName: make(map[string]*Level),
	}

	for _, page := range pages {
		if page == nil {
			continue
		}

		if doc.School == nil && page.School != nil && page.School.Canonical != "" {
			doc.School = &Field{CanonicalName: page.School.Canonical, SourceTags: copyTags(page.School.SourceTags)}
		}
		if doc.SchoolYear == nil && page.Year != nil && page.Year.Canonical != "" {
			doc.SchoolYear = &Field{CanonicalName: page.Year.Canonical, SourceTags: copyTags(page.Year.SourceTags)}
		}

		for _, pl := range page.Levels {
			if pl.CanonicalName == "" {
				continue
			}

			level, ok := doc.byName[pl.CanonicalName]
			if !ok {
				level = &Level{
					CanonicalName: pl.CanonicalName,
					RawName:       pl.RawName,
					SourceTags:    []string{},
					Textbooks:     []extraction.Textbook{},
				}
				doc.byName[pl.CanonicalName] = level
				doc.Levels = append(doc.Levels, level)
			}

			level.SourceTags = append(level.SourceTags, pl.SourceTags...)
			level.Textbooks = append(level.Textbooks, pl.Textbooks...)
		}
	}

	return doc
}

func copyTags(tags []string) []string {
	out := make([]string, len(tags))
	copy(out, tags)
	return out
}
