package extraction

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
)

// Textbook kinds. Anything else the model answers maps to KindTextbook.
const (
	KindTextbook   = "manuel"
	KindWorkbook   = "cahier_activites"
	KindReader     = "lecture"
	KindDictionary = "dictionnaire"
	KindAtlas      = "atlas"
)

var knownKinds = map[string]bool{
	KindTextbook:   true,
	KindWorkbook:   true,
	KindReader:     true,
	KindDictionary: true,
	KindAtlas:      true,
}

// Textbook is one validated book of a level
type Textbook struct {
	Title       string   `json:"title" yaml:"title"`
	Subject     *string  `json:"subject" yaml:"subject"`
	Publisher   *string  `json:"publisher" yaml:"publisher"`
	EditionYear *string  `json:"editionYear" yaml:"editionYear"`
	ISBN        *string  `json:"isbn" yaml:"isbn"`
	Kind        string   `json:"kind" yaml:"kind"`
	SourceTags  []string `json:"sourceTags" yaml:"sourceTags"`
}

// Field is a standardized single value with its evidence
type Field struct {
	Raw        string   `json:"raw" yaml:"raw"`
	Canonical  string   `json:"canonical" yaml:"canonical"`
	SourceTags []string `json:"sourceTags" yaml:"sourceTags"`
}

// Level is one grade-level section found on a page
type Level struct {
	RawName       string     `json:"rawName" yaml:"rawName"`
	CanonicalName string     `json:"canonicalName" yaml:"canonicalName"`
	SourceTags    []string   `json:"sourceTags" yaml:"sourceTags"`
	Textbooks     []Textbook `json:"textbooks" yaml:"textbooks"`
}

// PageResult is the standardized extraction of one page
type PageResult struct {
	PageNumber int     `json:"pageNumber" yaml:"pageNumber"`
	School     *Field  `json:"school" yaml:"school"`
	Year       *Field  `json:"schoolYear" yaml:"schoolYear"`
	Levels     []Level `json:"levels" yaml:"levels"`
	// LevelsFailed is set when the integrated call returned no usable answer.
	LevelsFailed  bool `json:"levelsFailed" yaml:"levelsFailed"`
	ModelFailures int  `json:"modelFailures" yaml:"modelFailures"`
}

// TextbookCount returns the number of books on the page
func (p *PageResult) TextbookCount() int {
	n := 0
	for _, l := range p.Levels {
		n += len(l.Textbooks)
	}
	return n
}

// wireString accepts a JSON string or number; anything else reads as null
type wireString struct {
	value *string
}

func (w *wireString) UnmarshalJSON(data []byte) error {
	w.value = nil
	data = bytes.TrimSpace(data)

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		w.value = &s
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		s = n.String()
		w.value = &s
	}
	return nil
}

// text returns the trimmed value, or nil when absent or blank
func (w wireString) text() *string {
	if w.value == nil {
		return nil
	}
	s := strings.TrimSpace(*w.value)
	if s == "" || strings.EqualFold(s, "null") {
		return nil
	}
	return &s
}

type schoolWire struct {
	School     wireString `json:"ecole_unifie"`
	SourceTags []string   `json:"source_tags"`
}

type yearWire struct {
	Year       wireString `json:"annee_scolaire"`
	SourceTags []string   `json:"source_tags"`
}

type bookWire struct {
	Title       wireString `json:"titre_livre"`
	Publisher   wireString `json:"maison_edition"`
	Subject     wireString `json:"matiere"`
	EditionYear wireString `json:"annee_edition"`
	ISBN        wireString `json:"code_livre"`
	Kind        wireString `json:"type_livre"`
	SourceTags  []string   `json:"source_tags"`
}

type levelWire struct {
	RawName    wireString `json:"niveau_brut"`
	SourceTags []string   `json:"niveau_source_tags"`
	Textbooks  []bookWire `json:"manuels"`
}

type levelsWire struct {
	Levels []levelWire `json:"niveaux"`
}

var (
	editionYearPattern = regexp.MustCompile(`\b(1[89]|20)\d{2}\b`)
	isbnStrip          = strings.NewReplacer("-", "", " ", "", "‐", "", "‑", "")
	isbnPattern        = regexp.MustCompile(`^(\d{13}|\d{9}[\dX])$`)
)

// toTextbook validates a wire book; false when it has no title
func (b bookWire) toTextbook() (Textbook, bool) {
	title := b.Title.text()
	if title == nil {
		return Textbook{}, false
	}

	tb := Textbook{
		Title:      *title,
		Subject:    b.Subject.text(),
		Publisher:  b.Publisher.text(),
		Kind:       KindTextbook,
		SourceTags: nonNil(b.SourceTags),
	}

	if year := b.EditionYear.text(); year != nil {
		if m := editionYearPattern.FindString(*year); m != "" {
			tb.EditionYear = &m
		}
	}

	if isbn := b.ISBN.text(); isbn != nil {
		cleaned := strings.ToUpper(isbnStrip.Replace(*isbn))
		if isbnPattern.MatchString(cleaned) {
			tb.ISBN = &cleaned
		}
	}

	if kind := b.Kind.text(); kind != nil {
		k := strings.ToLower(*kind)
		if knownKinds[k] {
			tb.Kind = k
		}
	}

	return tb, true
}

func nonNil(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
