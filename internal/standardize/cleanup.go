package standardize

import (
	"regexp"
	"strings"
	"unicode"
)

var yearRangePattern = regexp.MustCompile(`\d{4}\s*[-/]\s*\d{4}`)

// levelStopWords are generic words of supply-list headings, never part of a level name
var levelStopWords = map[string]bool{
	"manuels":     true,
	"fournitures": true,
	"liste":       true,
	"des":         true,
	"pour":        true,
	"la":          true,
	"classe":      true,
	"de":          true,
	"et":          true,
}

// CleanLevel strips year ranges and heading words from a raw grade level
func CleanLevel(raw string) string {
	text := yearRangePattern.ReplaceAllString(raw, " ")

	words := strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.Is(unicode.Pd, r) || r == ':'
	})

	kept := words[:0]
	for _, w := range words {
		// "CM2," and "(" leave nothing but the name once edge punctuation goes
		w = strings.TrimFunc(w, isEdgePunct)
		if w == "" || levelStopWords[strings.ToLower(w)] {
			continue
		}
		kept = append(kept, w)
	}

	return strings.Join(kept, " ")
}

func isEdgePunct(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSymbol(r)
}
