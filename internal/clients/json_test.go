package clients

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{"plain object", `{"a": 1}`, `{"a": 1}`, true},
		{"plain array", ` [1, 2] `, `[1, 2]`, true},
		{"prose prefix", `Here is the JSON: {"ecole_unifie": "Lycée X", "source_tags": ["E1"]}`, `{"ecole_unifie": "Lycée X", "source_tags": ["E1"]}`, true},
		{"code fence", "```json\n{\"niveaux\": []}\n```", `{"niveaux": []}`, true},
		{"braces inside strings", `note: {"titre_livre": "Maths {CM2} [tome 1]"} done`, `{"titre_livre": "Maths {CM2} [tome 1]"}`, true},
		{"escaped quote", `{"t": "say \"}\" now"}`, `{"t": "say \"}\" now"}`, true},
		{"skips non json bracket", `[note] then {"a": [1]}`, `{"a": [1]}`, true},
		{"trailing prose", `{"a": 1} hope this helps {`, `{"a": 1}`, true},
		{"no json", `I could not find anything.`, ``, false},
		{"unbalanced", `{"a": [1, 2}`, ``, false},
		{"empty", `   `, ``, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSON(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.JSONEq(t, tt.want, string(got))
			}
		})
	}
}
