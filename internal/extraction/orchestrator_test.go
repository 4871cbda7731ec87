package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/supplylist-worker/internal/clients"
	"github.com/adverant/nexus/supplylist-worker/internal/standardize"
)

type scriptedGateway struct {
	school, year, levels string
	failLevels           bool
	payloads             []string
}

func (g *scriptedGateway) Invoke(ctx context.Context, req *clients.InvokeRequest) (json.RawMessage, error) {
	g.payloads = append(g.payloads, req.Payload)

	var answer string
	switch req.Instructions {
	case schoolInstructions:
		answer = g.school
	case yearInstructions:
		answer = g.year
	case levelsInstructions:
		if g.failLevels {
			return nil, errors.New("MODEL_UNAVAILABLE")
		}
		answer = g.levels
	}
	if answer == "" {
		return nil, errors.New("MODEL_UNAVAILABLE")
	}

	raw := json.RawMessage(answer)
	if err := req.Validate(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

type mapStandardizer struct {
	canonical map[string]string
	calls     []string
}

func (m *mapStandardizer) Standardize(ctx context.Context, raw string, et standardize.EntityType) (string, bool) {
	m.calls = append(m.calls, string(et)+":"+raw)
	if raw == "" {
		return "", false
	}
	if c, ok := m.canonical[raw]; ok {
		return c, true
	}
	return raw, true
}

const levelsAnswer = `{
  "niveaux": [
    {
      "niveau_brut": "Liste CM2 2024/2025",
      "niveau_source_tags": ["E3"],
      "manuels": [
        {"titre_livre": "Pixel Maths CM2", "matiere": "Mathématiques", "maison_edition": "Bordas", "annee_edition": 2021, "code_livre": "978-2-04-733812-4", "type_livre": "manuel", "source_tags": ["E4"]},
        {"titre_livre": null, "matiere": "Français", "maison_edition": null, "annee_edition": null, "code_livre": null, "type_livre": null, "source_tags": ["E5"]},
        {"titre_livre": "  Mon cahier d'écriture ", "matiere": "", "maison_edition": "Magnard", "annee_edition": "édition 2019", "code_livre": "12345", "type_livre": "Cahier_Activites", "source_tags": ["E6"]},
        {"titre_livre": "Le Petit Prince", "matiere": null, "maison_edition": "Folio", "annee_edition": null, "code_livre": "2-07-040850-X", "type_livre": "roman", "source_tags": ["E7"]}
      ]
    },
    {"niveau_brut": null, "niveau_source_tags": [], "manuels": []}
  ]
}`

func TestExtractStandardizesAllFields(t *testing.T) {
	gw := &scriptedGateway{
		school: `{"ecole_unifie": "Ecole Jean Moulin", "source_tags": ["E1"]}`,
		year:   `{"annee_scolaire": "2024/2025", "source_tags": ["E2"]}`,
		levels: levelsAnswer,
	}
	std := &mapStandardizer{canonical: map[string]string{
		"Ecole Jean Moulin":   "École Jean Moulin",
		"Liste CM2 2024/2025": "CM2",
	}}
	o := NewOrchestrator(gw, Config{Model: "gemini-test"})

	res := o.Extract(context.Background(), 1, "[E1] Ecole Jean Moulin\n", std)

	require.NotNil(t, res.School)
	assert.Equal(t, Field{Raw: "Ecole Jean Moulin", Canonical: "École Jean Moulin", SourceTags: []string{"E1"}}, *res.School)
	require.NotNil(t, res.Year)
	assert.Equal(t, "2024/2025", res.Year.Canonical)
	assert.Zero(t, res.ModelFailures)
	assert.False(t, res.LevelsFailed)

	require.Len(t, res.Levels, 1)
	level := res.Levels[0]
	assert.Equal(t, "Liste CM2 2024/2025", level.RawName)
	assert.Equal(t, "CM2", level.CanonicalName)
	assert.Equal(t, []string{"E3"}, level.SourceTags)

	require.Len(t, level.Textbooks, 3)
	for _, tb := range level.Textbooks {
		assert.NotEmpty(t, tb.Title)
	}

	pixel := level.Textbooks[0]
	assert.Equal(t, "Pixel Maths CM2", pixel.Title)
	assert.Equal(t, "Mathématiques", *pixel.Subject)
	assert.Equal(t, "2021", *pixel.EditionYear)
	assert.Equal(t, "9782047338124", *pixel.ISBN)
	assert.Equal(t, KindTextbook, pixel.Kind)

	cahier := level.Textbooks[1]
	assert.Equal(t, "Mon cahier d'écriture", cahier.Title)
	assert.Nil(t, cahier.Subject)
	assert.Equal(t, "2019", *cahier.EditionYear)
	assert.Nil(t, cahier.ISBN)
	assert.Equal(t, KindWorkbook, cahier.Kind)

	prince := level.Textbooks[2]
	assert.Equal(t, "207040850X", *prince.ISBN)
	assert.Equal(t, KindTextbook, prince.Kind)

	assert.Equal(t, []string{
		"ecoles:Ecole Jean Moulin",
		"annees_scolaires:2024/2025",
		"niveaux:Liste CM2 2024/2025",
	}, std.calls)
	for _, p := range gw.payloads {
		assert.Equal(t, "[E1] Ecole Jean Moulin\n", p)
	}
}

func TestExtractNullSchoolAndYear(t *testing.T) {
	gw := &scriptedGateway{
		school: `{"ecole_unifie": null, "source_tags": []}`,
		year:   `{"annee_scolaire": null, "source_tags": []}`,
		levels: `{"niveaux": []}`,
	}
	std := &mapStandardizer{}

	res := NewOrchestrator(gw, Config{}).Extract(context.Background(), 2, "[E9] x\n", std)

	assert.Nil(t, res.School)
	assert.Nil(t, res.Year)
	assert.NotNil(t, res.Levels)
	assert.Empty(t, res.Levels)
	assert.False(t, res.LevelsFailed)
	assert.Empty(t, std.calls)
}

func TestExtractFailedCallsYieldEmptyResult(t *testing.T) {
	gw := &scriptedGateway{
		school:     `{"ecole_unifie": "Lycée X", "source_tags": ["E1"]}`,
		failLevels: true,
	}

	res := NewOrchestrator(gw, Config{}).Extract(context.Background(), 1, "[E1] Lycée X\n", &mapStandardizer{})

	require.NotNil(t, res)
	assert.Equal(t, "Lycée X", res.School.Canonical)
	assert.Nil(t, res.Year)
	assert.True(t, res.LevelsFailed)
	assert.Equal(t, 2, res.ModelFailures)
	assert.Empty(t, res.Levels)
}

func TestExtractRejectsWrongShape(t *testing.T) {
	gw := &scriptedGateway{
		school: `{"ecole_unifie": "A", "source_tags": ["E1"]}`,
		year:   `{"annee_scolaire": "2024/2025"}`,
		levels: `{"levels": []}`,
	}

	res := NewOrchestrator(gw, Config{}).Extract(context.Background(), 1, "t", &mapStandardizer{})

	assert.True(t, res.LevelsFailed)
	assert.NotNil(t, res.Year)
	assert.Empty(t, res.Year.SourceTags)
}

func TestPromptsDescribeTagsAndNullFields(t *testing.T) {
	assert.True(t, strings.Contains(levelsInstructions, `"niveau_source_tags"`))
	assert.True(t, strings.Contains(levelsInstructions, "never omit a key"))
	assert.True(t, strings.Contains(levelsInstructions, "only one level title"))
	assert.True(t, strings.Contains(schoolInstructions, `"ecole_unifie"`))
}
