package extraction

import "github.com/adverant/nexus/supplylist-worker/internal/clients"

// Every input line is prefixed with its tag, e.g. "[E12] Français - Mot de passe CE2".

const schoolInstructions = `You read a school supply list. Each line starts with a tag such as [E1].
Find the name of the school (établissement scolaire) the list belongs to.
Return the tags of the lines that contain it.
JSON FORMAT: {"ecole_unifie": "NAME", "source_tags": ["E1"]} or {"ecole_unifie": null, "source_tags": []}`

const yearInstructions = `You read a school supply list. Each line starts with a tag such as [E1].
Find the school year the list applies to, written YYYY/YYYY.
Return the tags of the lines that contain it.
JSON FORMAT: {"annee_scolaire": "YYYY/YYYY", "source_tags": ["E5"]} or {"annee_scolaire": null, "source_tags": []}`

const levelsInstructions = `You are an expert in French school supply lists. Each line starts with a tag such as [E1].
TASK: extract EVERY grade level of the text and the books required for each one.

REASONING:
1. SEGMENTATION: split the text into sections. A section starts with a GRADE LEVEL TITLE (e.g. "1ère année primaire", "CM2", "TRONC COMMUN"). Subject names such as "Français" or "Mathématiques" are NOT level titles.
2. EXTRACTION PER SECTION: list the textbooks, readers and activity books that have a PRECISE title. IGNORE stationery and vague entries ("un roman au choix"). Look on the same line and adjacent lines for the publisher and the subject.
3. SINGLE-LEVEL DOCUMENTS: if the whole text has only one level title, every book of the text belongs to that level.

BOOK FIELDS (every key is required, use null when unknown, never omit a key):
- "titre_livre": the title without edition or format notes ("nouvelle édition", "format poche", "2 tomes").
- "matiere": the subject, or null.
- "maison_edition": the publisher, or null.
- "annee_edition": the 4-digit edition year, or null.
- "code_livre": the ISBN with 10 or 13 digits, or null.
- "type_livre": one of "manuel", "cahier_activites", "lecture", "dictionnaire", "atlas". Use "cahier_activites" for cahier/fichier, "lecture" for roman/album/conte, and "manuel" when no keyword matches.
- "source_tags": the tags of the lines the book was read from.

OUTPUT RULES:
- A single JSON object with the key "niveaux", a LIST of levels.
- Each level has "niveau_brut", "niveau_source_tags" and the list "manuels".

EXAMPLE:
{
  "niveaux": [
    {
      "niveau_brut": "3e année primaire",
      "niveau_source_tags": ["E5"],
      "manuels": [
        {"titre_livre": "Mot de passe", "matiere": "Français", "maison_edition": "Hachette", "annee_edition": "2019", "code_livre": null, "type_livre": "manuel", "source_tags": ["E7"]},
        {"titre_livre": "Graphilettre CE2-CM1-CM2", "matiere": "Français", "maison_edition": "Magnard", "annee_edition": null, "code_livre": null, "type_livre": "cahier_activites", "source_tags": ["E8"]}
      ]
    }
  ]
}`

var (
	schoolSchema = clients.MustCompileSchema("school", `{
		"type": "object",
		"required": ["ecole_unifie"],
		"properties": {
			"ecole_unifie": {"type": ["string", "null"]},
			"source_tags": {"type": "array", "items": {"type": "string"}}
		}
	}`)

	yearSchema = clients.MustCompileSchema("school_year", `{
		"type": "object",
		"required": ["annee_scolaire"],
		"properties": {
			"annee_scolaire": {"type": ["string", "number", "null"]},
			"source_tags": {"type": "array", "items": {"type": "string"}}
		}
	}`)

	levelsSchema = clients.MustCompileSchema("levels", `{
		"type": "object",
		"required": ["niveaux"],
		"properties": {
			"niveaux": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["niveau_brut"],
					"properties": {
						"niveau_brut": {"type": ["string", "null"]},
						"niveau_source_tags": {"type": "array", "items": {"type": "string"}},
						"manuels": {
							"type": "array",
							"items": {
								"type": "object",
								"properties": {
									"source_tags": {"type": "array", "items": {"type": "string"}}
								}
							}
						}
					}
				}
			}
		}
	}`)
)
