package aggregate

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/adverant/nexus/supplylist-worker/internal/errors"
	"github.com/adverant/nexus/supplylist-worker/internal/extraction"
)

func book(title string, tags ...string) extraction.Textbook {
	return extraction.Textbook{Title: title, Kind: extraction.KindTextbook, SourceTags: tags}
}

func TestAggregateSinglePageMatchesPage(t *testing.T) {
	page := &extraction.PageResult{
		PageNumber: 1,
		School:     &extraction.Field{Raw: "ecole a", Canonical: "École A", SourceTags: []string{"E1"}},
		Year:       &extraction.Field{Raw: "2024-2025", Canonical: "2024/2025", SourceTags: []string{"E2"}},
		Levels: []extraction.Level{
			{RawName: "cm 2", CanonicalName: "CM2", SourceTags: []string{"E3"}, Textbooks: []extraction.Textbook{book("Pixel", "E4")}},
			{RawName: "ce1", CanonicalName: "CE1", SourceTags: []string{"E5"}, Textbooks: []extraction.Textbook{book("Lecture", "E6")}},
		},
	}

	doc := Aggregate([]*extraction.PageResult{page})

	assert.Equal(t, &Field{CanonicalName: "École A", SourceTags: []string{"E1"}}, doc.School)
	assert.Equal(t, &Field{CanonicalName: "2024/2025", SourceTags: []string{"E2"}}, doc.SchoolYear)
	require.Len(t, doc.Levels, 2)
	for i, pl := range page.Levels {
		assert.Equal(t, pl.CanonicalName, doc.Levels[i].CanonicalName)
		assert.Equal(t, pl.RawName, doc.Levels[i].RawName)
		assert.Equal(t, pl.SourceTags, doc.Levels[i].SourceTags)
		assert.Equal(t, pl.Textbooks, doc.Levels[i].Textbooks)
	}
	assert.NoError(t, doc.Validate("job"))
}

func TestAggregateFirstSchoolWins(t *testing.T) {
	pages := []*extraction.PageResult{
		{PageNumber: 1},
		{PageNumber: 2, School: &extraction.Field{Canonical: "Lycée Victor Hugo", SourceTags: []string{"E4"}}},
		{PageNumber: 3, School: &extraction.Field{Canonical: "Collège Jean Moulin", SourceTags: []string{"E9"}},
			Year: &extraction.Field{Canonical: "2024/2025", SourceTags: []string{"E10"}}},
	}

	doc := Aggregate(pages)

	assert.Equal(t, "Lycée Victor Hugo", doc.School.CanonicalName)
	assert.Equal(t, []string{"E4"}, doc.School.SourceTags)
	assert.Equal(t, "2024/2025", doc.SchoolYear.CanonicalName)
}

func TestAggregateMergesLevelsByCanonicalName(t *testing.T) {
	pages := []*extraction.PageResult{
		{Levels: []extraction.Level{{RawName: "CM2", CanonicalName: "CM2", SourceTags: []string{"E2"},
			Textbooks: []extraction.Textbook{book("Pixel", "E3"), book("Atlas", "E4")}}}},
		{Levels: []extraction.Level{{RawName: "cours moyen 2", CanonicalName: "CM2", SourceTags: []string{"E20", "E2"},
			Textbooks: []extraction.Textbook{book("Pixel", "E21")}}}},
	}

	doc := Aggregate(pages)

	level, ok := doc.Level("CM2")
	require.True(t, ok)
	assert.Equal(t, "CM2", level.RawName)
	assert.Equal(t, []string{"E2", "E20", "E2"}, level.SourceTags)
	require.Len(t, level.Textbooks, 3)
	assert.Equal(t, "Pixel", level.Textbooks[0].Title)
	assert.Equal(t, "Pixel", level.Textbooks[2].Title)
	assert.Equal(t, 3, doc.TotalTextbooks())
}

func TestAggregateDropsLevelsWithoutCanonicalName(t *testing.T) {
	pages := []*extraction.PageResult{
		{Levels: []extraction.Level{{RawName: "", CanonicalName: "", Textbooks: []extraction.Textbook{book("Orphan")}}}},
	}

	doc := Aggregate(pages)

	assert.Empty(t, doc.Levels)
	_, ok := doc.Level("")
	assert.False(t, ok)
}

func TestValidateFlagsEmptyExtraction(t *testing.T) {
	doc := Aggregate([]*extraction.PageResult{
		{Levels: []extraction.Level{{RawName: "CP", CanonicalName: "CP", Textbooks: []extraction.Textbook{}}}},
		nil,
	})

	err := doc.Validate("job-3")

	require.Error(t, err)
	assert.True(t, stderrors.Is(err, apperrors.ErrEmptyExtraction))
	assert.Equal(t, apperrors.StatusEmptyExtraction, apperrors.StatusForError(err))
}

func TestAggregateDoesNotAliasPageTags(t *testing.T) {
	page := &extraction.PageResult{School: &extraction.Field{Canonical: "A", SourceTags: []string{"E1"}}}

	doc := Aggregate([]*extraction.PageResult{page})
	doc.School.SourceTags[0] = "changed"

	assert.Equal(t, "E1", page.School.SourceTags[0])
}
