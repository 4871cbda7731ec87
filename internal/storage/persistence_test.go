package storage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/supplylist-worker/internal/aggregate"
	"github.com/adverant/nexus/supplylist-worker/internal/extraction"
	"github.com/adverant/nexus/supplylist-worker/internal/ocr"
	"github.com/adverant/nexus/supplylist-worker/internal/tagging"
)

func strPtr(s string) *string { return &s }

func element(tag string, page int) tagging.Element {
	return tagging.Element{
		Tag:         tag,
		Text:        "line " + tag,
		PageInfo:    tagging.PageInfo{PageNumber: page, Width: 1, Height: 1, Unit: "px"},
		BoundingBox: []ocr.Vertex{{X: 0.1, Y: 0.1}, {X: 0.9, Y: 0.2}},
	}
}

func sampleDocument() *aggregate.Document {
	return &aggregate.Document{
		School:     &aggregate.Field{CanonicalName: "École A", SourceTags: []string{"E1"}},
		SchoolYear: &aggregate.Field{CanonicalName: "2024/2025", SourceTags: []string{"E2"}},
		Levels: []*aggregate.Level{{
			CanonicalName: "CM2",
			RawName:       "cm 2",
			SourceTags:    []string{"E3"},
			Textbooks: []extraction.Textbook{
				{Title: "Pixel Maths", Publisher: strPtr("Bordas"), Kind: extraction.KindTextbook, SourceTags: []string{"E4", "E99"}},
			},
		}},
	}
}

func sampleIndex() tagging.Index {
	return tagging.Index{
		"E1": element("E1", 1),
		"E2": element("E2", 1),
		"E3": element("E3", 1),
		"E4": element("E4", 2),
	}
}

func idRow(id int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id"}).AddRow(id)
}

func TestSaveDocumentWritesEntitiesAndLocations(t *testing.T) {
	client, mock := newMockClient(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO schools").WithArgs("École A").WillReturnRows(idRow(1))
	mock.ExpectQuery("INSERT INTO school_years").WithArgs("2024/2025").WillReturnRows(idRow(2))
	mock.ExpectQuery("INSERT INTO levels").WithArgs("CM2").WillReturnRows(idRow(3))
	mock.ExpectQuery("INSERT INTO supply_lists").WithArgs(1, 2, 3, "file-1").WillReturnRows(idRow(10))
	mock.ExpectQuery("INSERT INTO textbooks").
		WithArgs("Pixel Maths", "Bordas", nil, nil, "manuel", nil, 3, "file-1").
		WillReturnRows(idRow(100))
	mock.ExpectExec("INSERT INTO supply_list_textbooks").WithArgs(10, 100).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO source_locations").WithArgs("file-1", LocationSchool, 1, "E1", 1, sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO source_locations").WithArgs("file-1", LocationSchoolYear, 2, "E2", 1, sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectExec("INSERT INTO source_locations").WithArgs("file-1", LocationLevel, 3, "E3", 1, sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(3, 1))
	mock.ExpectExec("INSERT INTO source_locations").WithArgs("file-1", LocationTextbook, 100, "E4", 2, sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(4, 1))
	mock.ExpectCommit()

	result, err := client.SaveDocument(context.Background(), "file-1", sampleDocument(), sampleIndex())

	require.NoError(t, err)
	assert.Equal(t, int64(1), result.SchoolID)
	assert.Equal(t, int64(2), result.SchoolYearID)
	assert.Equal(t, 1, result.Lists)
	assert.Equal(t, 4, result.Locations)
	assert.Empty(t, result.SkippedLevels)
	require.Len(t, result.Textbooks, 1)
	assert.Equal(t, SavedTextbook{ID: 100, Title: "Pixel Maths", Publisher: strPtr("Bordas"), Level: "CM2"}, result.Textbooks[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveDocumentSkipsLevelsWithoutSchool(t *testing.T) {
	client, mock := newMockClient(t)
	doc := sampleDocument()
	doc.School = nil

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO school_years").WithArgs("2024/2025").WillReturnRows(idRow(2))
	mock.ExpectQuery("INSERT INTO levels").WithArgs("CM2").WillReturnRows(idRow(3))
	mock.ExpectExec("INSERT INTO source_locations").WithArgs("file-2", LocationSchoolYear, 2, "E2", 1, sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO source_locations").WithArgs("file-2", LocationLevel, 3, "E3", 1, sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	result, err := client.SaveDocument(context.Background(), "file-2", doc, sampleIndex())

	require.NoError(t, err)
	assert.Zero(t, result.Lists)
	assert.Empty(t, result.Textbooks)
	assert.Equal(t, []string{"CM2"}, result.SkippedLevels)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveDocumentRollsBackOnFailure(t *testing.T) {
	client, mock := newMockClient(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO schools").WillReturnRows(idRow(1))
	mock.ExpectQuery("INSERT INTO school_years").WillReturnRows(idRow(2))
	mock.ExpectQuery("INSERT INTO levels").WillReturnRows(idRow(3))
	mock.ExpectQuery("INSERT INTO supply_lists").WillReturnRows(idRow(10))
	mock.ExpectQuery("INSERT INTO textbooks").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	result, err := client.SaveDocument(context.Background(), "file-3", sampleDocument(), sampleIndex())

	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "Pixel Maths")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveDocumentValidatesInput(t *testing.T) {
	client, _ := newMockClient(t)

	_, err := client.SaveDocument(context.Background(), "", sampleDocument(), nil)
	assert.Error(t, err)

	_, err = client.SaveDocument(context.Background(), "f", nil, nil)
	assert.Error(t, err)
}

func TestSanitizeElementForPostgres(t *testing.T) {
	el := element("Textbook", 1)
	el.Text = "a\x00b\x07c"

	got := sanitizeElementForPostgres(el)
	assert.Equal(t, "ab c", got.Text)
	assert.Equal(t, "a\x00b\x07c", el.Text)

	raw, err := json.Marshal(got)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `\u0000`)
}

func TestSanitizeElementKeepsLiteralEscapeText(t *testing.T) {
	el := element("Textbook", 1)
	el.Text = `C:\u0001\manuel`

	raw, err := json.Marshal(sanitizeElementForPostgres(el))
	require.NoError(t, err)
	require.True(t, json.Valid(raw))

	var back tagging.Element
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, `C:\u0001\manuel`, back.Text)
}
