package standardize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanLevel(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"3ème Année Primaire — Liste des Fournitures 2024/2025", "3ème Année Primaire"},
		{"Liste de manuels pour la classe de CM2", "CM2"},
		{"TRONC COMMUN : 2023-2024", "TRONC COMMUN"},
		{"1ère année - Collège", "1ère année Collège"},
		{"Classe et liste", ""},
		{"CE1", "CE1"},
		{"CM2 (2024-2025)", "CM2"},
		{"CM2, liste des fournitures", "CM2"},
		{"Niveau: CE1 / 2024/2025", "Niveau CE1"},
		{"[6ème] - Collège.", "6ème Collège"},
		{"CE1/CE2", "CE1/CE2"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanLevel(tt.raw))
		})
	}
}

func TestCleanedLevelNormalizesForLookup(t *testing.T) {
	got := Normalize(CleanLevel("3ème Année Primaire — Liste des Fournitures 2024/2025"))
	assert.Equal(t, "3ème année primaire", got)
	assert.Equal(t, "cm2", Normalize(CleanLevel("CM2 (2024-2025)")))
	assert.Equal(t, "cm2", Normalize(CleanLevel("CM2, liste des fournitures")))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "lycée victor hugo", Normalize("  Lycée   VICTOR\tHugo \n"))
	assert.Equal(t, "", Normalize(" \t "))
}

func TestNewKnowledgeBase(t *testing.T) {
	kb := NewKnowledgeBase([]Mapping{
		{RawNormalized: "cm2", Canonical: "CM2"},
		{RawNormalized: "Cours Moyen 2", Canonical: "CM2"},
		{RawNormalized: "ce1", Canonical: "CE1"},
	})

	assert.Equal(t, []string{"CE1", "CM2"}, kb.Choices)

	got, ok := kb.Lookup("cours moyen 2")
	assert.True(t, ok)
	assert.Equal(t, "CM2", got)

	_, ok = kb.Lookup("cp")
	assert.False(t, ok)
	assert.True(t, kb.Allows("CE1"))
	assert.False(t, kb.Allows("ce1"))

	empty := NewKnowledgeBase(nil)
	assert.NotNil(t, empty.Choices)
	assert.Empty(t, empty.Choices)
}
