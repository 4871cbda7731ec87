package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/adverant/nexus/supplylist-worker/internal/aggregate"
	"github.com/adverant/nexus/supplylist-worker/internal/extraction"
	"github.com/adverant/nexus/supplylist-worker/internal/tagging"
)

// Entity types recorded in source_locations
const (
	LocationSchool     = "school"
	LocationSchoolYear = "school_year"
	LocationLevel      = "level"
	LocationTextbook   = "textbook"
)

// SavedTextbook is a textbook row written for a document
type SavedTextbook struct {
	ID        int64   `json:"id" yaml:"id"`
	Title     string  `json:"title" yaml:"title"`
	Publisher *string `json:"publisher" yaml:"publisher"`
	Level     string  `json:"level" yaml:"level"`
}

// SaveResult summarizes what SaveDocument wrote
type SaveResult struct {
	SchoolID      int64           `json:"schoolId" yaml:"schoolId"`
	SchoolYearID  int64           `json:"schoolYearId" yaml:"schoolYearId"`
	Lists         int             `json:"lists" yaml:"lists"`
	Textbooks     []SavedTextbook `json:"textbooks" yaml:"textbooks"`
	Locations     int             `json:"locations" yaml:"locations"`
	SkippedLevels []string        `json:"skippedLevels" yaml:"skippedLevels"`
}

type sourceLocation struct {
	entityType string
	entityID   int64
	element    tagging.Element
}

// SaveDocument writes the aggregated document in a single transaction.
// A level is only turned into a supply list when school, year and level are all known.
func (p *PostgresClient) SaveDocument(ctx context.Context, fileID string, doc *aggregate.Document, index tagging.Index) (*SaveResult, error) {
	if fileID == "" {
		return nil, fmt.Errorf("file ID is required")
	}
	if doc == nil {
		return nil, fmt.Errorf("document is required")
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result := &SaveResult{Textbooks: []SavedTextbook{}, SkippedLevels: []string{}}
	var locations []sourceLocation

	locate := func(entityType string, id int64, tags []string) {
		for _, el := range index.Lookup(tags) {
			locations = append(locations, sourceLocation{entityType: entityType, entityID: id, element: el})
		}
	}

	if doc.School != nil {
		if result.SchoolID, err = getOrCreate(ctx, tx, "schools", doc.School.CanonicalName); err != nil {
			return nil, err
		}
		locate(LocationSchool, result.SchoolID, doc.School.SourceTags)
	}

	if doc.SchoolYear != nil {
		if result.SchoolYearID, err = getOrCreate(ctx, tx, "school_years", doc.SchoolYear.CanonicalName); err != nil {
			return nil, err
		}
		locate(LocationSchoolYear, result.SchoolYearID, doc.SchoolYear.SourceTags)
	}

	for _, level := range doc.Levels {
		levelID, err := getOrCreate(ctx, tx, "levels", level.CanonicalName)
		if err != nil {
			return nil, err
		}
		locate(LocationLevel, levelID, level.SourceTags)

		if result.SchoolID == 0 || result.SchoolYearID == 0 {
			result.SkippedLevels = append(result.SkippedLevels, level.CanonicalName)
			continue
		}

		listID, err := upsertList(ctx, tx, result.SchoolID, result.SchoolYearID, levelID, fileID)
		if err != nil {
			return nil, err
		}
		result.Lists++

		for _, tb := range level.Textbooks {
			if tb.Title == "" {
				continue
			}

			id, err := insertTextbook(ctx, tx, &tb, levelID, fileID)
			if err != nil {
				return nil, err
			}

			if _, err := tx.ExecContext(ctx, `
				INSERT INTO supply_list_textbooks (list_id, textbook_id)
				VALUES ($1, $2)
				ON CONFLICT DO NOTHING
			`, listID, id); err != nil {
				return nil, fmt.Errorf("failed to link textbook %d to list %d: %w", id, listID, err)
			}

			locate(LocationTextbook, id, tb.SourceTags)
			result.Textbooks = append(result.Textbooks, SavedTextbook{
				ID:        id,
				Title:     tb.Title,
				Publisher: tb.Publisher,
				Level:     level.CanonicalName,
			})
		}
	}

	for _, loc := range locations {
		if err := insertLocation(ctx, tx, fileID, loc); err != nil {
			return nil, err
		}
	}
	result.Locations = len(locations)

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit document %s: %w", fileID, err)
	}

	return result, nil
}

// getOrCreate returns the id of a named row, inserting it as pending review when missing.
// table is always one of the package's constant table names.
func getOrCreate(ctx context.Context, tx *sql.Tx, table, name string) (int64, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`, table)

	var id int64
	if err := tx.QueryRowContext(ctx, query, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to get or create %s %q: %w", table, name, err)
	}
	return id, nil
}

func upsertList(ctx context.Context, tx *sql.Tx, schoolID, yearID, levelID int64, fileID string) (int64, error) {
	query := `
		INSERT INTO supply_lists (school_id, school_year_id, level_id, source_file_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (school_id, school_year_id, level_id) DO UPDATE SET
			source_file_id = EXCLUDED.source_file_id
		RETURNING id
	`

	var id int64
	if err := tx.QueryRowContext(ctx, query, schoolID, yearID, levelID, fileID).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to upsert supply list (school=%d, year=%d, level=%d): %w", schoolID, yearID, levelID, err)
	}
	return id, nil
}

func insertTextbook(ctx context.Context, tx *sql.Tx, tb *extraction.Textbook, levelID int64, fileID string) (int64, error) {
	query := `
		INSERT INTO textbooks (title, publisher, edition_year, isbn, kind, subject, level_id, source_file_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	var id int64
	err := tx.QueryRowContext(ctx, query,
		tb.Title,
		nullString(tb.Publisher),
		nullString(tb.EditionYear),
		nullString(tb.ISBN),
		string(tb.Kind),
		nullString(tb.Subject),
		levelID,
		fileID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert textbook %q: %w", tb.Title, err)
	}
	return id, nil
}

func insertLocation(ctx context.Context, tx *sql.Tx, fileID string, loc sourceLocation) error {
	coordinates, err := json.Marshal(sanitizeElementForPostgres(loc.element))
	if err != nil {
		return fmt.Errorf("failed to marshal location %s: %w", loc.element.Tag, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO source_locations (source_file_id, entity_type, entity_id, source_tag, page_number, coordinates)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, fileID, loc.entityType, loc.entityID, loc.element.Tag, loc.element.PageInfo.PageNumber, coordinates)
	if err != nil {
		return fmt.Errorf("failed to save location %s of %s %d: %w", loc.element.Tag, loc.entityType, loc.entityID, err)
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// sanitizeElementForPostgres clears the control characters JSONB rejects once
// escaped: NUL is dropped and other C0 controls become a space. Cleaning runes
// before marshalling leaves literal backslash text untouched.
func sanitizeElementForPostgres(el tagging.Element) tagging.Element {
	el.Text = stripControlRunes(el.Text)
	el.Tag = stripControlRunes(el.Tag)
	el.PageInfo.Unit = stripControlRunes(el.PageInfo.Unit)
	return el
}

func stripControlRunes(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == 0:
			return -1
		case r < 0x20:
			return ' '
		}
		return r
	}, s)
}
