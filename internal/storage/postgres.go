/**
 * PostgreSQL Client for the Supply-List Worker
 *
 * Holds the standardization knowledge base, the per-file processing log
 * and the schema migration.
 */

package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/lib/pq"

	apperrors "github.com/adverant/nexus/supplylist-worker/internal/errors"
	"github.com/adverant/nexus/supplylist-worker/internal/standardize"
)

//go:embed schema.sql
var schemaSQL string

// maxLogMessageLength matches the VARCHAR(255) error_message column
const maxLogMessageLength = 255

// PostgresClient handles database operations
type PostgresClient struct {
	db *sql.DB
}

// DocumentLog is one row of the processing log, keyed by file ID
type DocumentLog struct {
	FileID   string
	FileName string
	MimeType string
	Status   string
	Message  string
}

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(databaseURL string) (*PostgresClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{db: db}, nil
}

// NewPostgresClientFromDB wraps an already opened handle
func NewPostgresClientFromDB(db *sql.DB) *PostgresClient {
	return &PostgresClient{db: db}
}

// Migrate creates the tables the worker needs
func (p *PostgresClient) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// FetchValidated returns the validated mappings of one entity type
func (p *PostgresClient) FetchValidated(ctx context.Context, entityType standardize.EntityType) ([]standardize.Mapping, error) {
	query := `
		SELECT raw_value, canonical_name
		FROM standardization_entries
		WHERE entity_type = $1 AND status = $2
		ORDER BY raw_value
	`

	rows, err := p.db.QueryContext(ctx, query, string(entityType), string(standardize.StatusValidated))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch validated %s: %w", entityType, err)
	}
	defer rows.Close()

	mappings := []standardize.Mapping{}
	for rows.Next() {
		var m standardize.Mapping
		if err := rows.Scan(&m.RawNormalized, &m.Canonical); err != nil {
			return nil, fmt.Errorf("failed to scan %s mapping: %w", entityType, err)
		}
		mappings = append(mappings, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s mappings: %w", entityType, err)
	}

	return mappings, nil
}

// Upsert records a mapping, replacing the canonical name and status of an existing row
func (p *PostgresClient) Upsert(ctx context.Context, entityType standardize.EntityType, rawNormalized, canonical string, status standardize.Status) error {
	query := `
		INSERT INTO standardization_entries (entity_type, raw_value, canonical_name, status, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (entity_type, raw_value) DO UPDATE SET
			canonical_name = EXCLUDED.canonical_name,
			status = EXCLUDED.status,
			updated_at = NOW()
	`

	if _, err := p.db.ExecContext(ctx, query, string(entityType), rawNormalized, canonical, string(status)); err != nil {
		return fmt.Errorf("failed to upsert %s mapping %q: %w", entityType, rawNormalized, err)
	}
	return nil
}

// ListEntries returns the mappings of one entity type whose status is in statuses.
// No statuses means every status.
func (p *PostgresClient) ListEntries(ctx context.Context, entityType standardize.EntityType, statuses ...standardize.Status) ([]standardize.Entry, error) {
	if len(statuses) == 0 {
		statuses = []standardize.Status{standardize.StatusValidated, standardize.StatusPendingReview, standardize.StatusRejected}
	}

	wanted := make([]string, len(statuses))
	for i, s := range statuses {
		wanted[i] = string(s)
	}

	query := `
		SELECT raw_value, canonical_name, status
		FROM standardization_entries
		WHERE entity_type = $1 AND status = ANY($2)
		ORDER BY updated_at DESC, raw_value
	`

	rows, err := p.db.QueryContext(ctx, query, string(entityType), pq.Array(wanted))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s entries: %w", entityType, err)
	}
	defer rows.Close()

	entries := []standardize.Entry{}
	for rows.Next() {
		var (
			e      standardize.Entry
			status string
		)
		if err := rows.Scan(&e.RawNormalized, &e.Canonical, &status); err != nil {
			return nil, fmt.Errorf("failed to scan %s entry: %w", entityType, err)
		}
		e.EntityType = entityType
		e.Status = standardize.Status(status)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// ListPending returns the mappings awaiting human review
func (p *PostgresClient) ListPending(ctx context.Context, entityType standardize.EntityType) ([]standardize.Entry, error) {
	return p.ListEntries(ctx, entityType, standardize.StatusPendingReview)
}

// SetStatus moves one mapping to a review status
func (p *PostgresClient) SetStatus(ctx context.Context, entityType standardize.EntityType, rawNormalized string, status standardize.Status) error {
	query := `
		UPDATE standardization_entries
		SET status = $3, updated_at = NOW()
		WHERE entity_type = $1 AND raw_value = $2
	`

	res, err := p.db.ExecContext(ctx, query, string(entityType), rawNormalized, string(status))
	if err != nil {
		return fmt.Errorf("failed to set status of %s %q: %w", entityType, rawNormalized, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s mapping not found: %q", entityType, rawNormalized)
	}
	return nil
}

// LogDocument upserts the processing outcome of one file
func (p *PostgresClient) LogDocument(ctx context.Context, entry *DocumentLog) error {
	if entry.FileID == "" {
		return fmt.Errorf("file ID is required")
	}
	if entry.Status == "" {
		return fmt.Errorf("status is required")
	}

	query := `
		INSERT INTO document_logs (file_id, file_name, mime_type, status, error_message, processed_at)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, NULLIF($5, ''), NOW())
		ON CONFLICT (file_id) DO UPDATE SET
			file_name = COALESCE(EXCLUDED.file_name, document_logs.file_name),
			mime_type = COALESCE(EXCLUDED.mime_type, document_logs.mime_type),
			status = EXCLUDED.status,
			error_message = EXCLUDED.error_message,
			processed_at = NOW()
	`

	_, err := p.db.ExecContext(ctx, query,
		entry.FileID,
		entry.FileName,
		entry.MimeType,
		entry.Status,
		truncateMessage(entry.Message, maxLogMessageLength),
	)
	if err != nil {
		return fmt.Errorf("failed to log document (file=%s, status=%s): %w", entry.FileID, entry.Status, err)
	}
	return nil
}

// ProcessedFileIDs returns the files already processed successfully
func (p *PostgresClient) ProcessedFileIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT file_id FROM document_logs WHERE status = $1`, string(apperrors.StatusProcessed))
	if err != nil {
		return nil, fmt.Errorf("failed to list processed files: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan file ID: %w", err)
		}
		ids[id] = true
	}

	return ids, rows.Err()
}

// Ping checks database connectivity
func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgresClient) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// GetStats returns connection pool statistics
func (p *PostgresClient) GetStats() sql.DBStats {
	return p.db.Stats()
}

// truncateMessage cuts s to at most max runes
func truncateMessage(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
