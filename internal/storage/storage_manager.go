/**
 * Storage Manager for the Supply-List Worker
 *
 * Coordinates PostgreSQL (entities, knowledge base, document log) and the
 * optional Qdrant textbook index. PostgreSQL is the source of truth: an
 * indexing failure never undoes a committed document.
 */

package storage

import (
	"context"
	"fmt"

	"github.com/adverant/nexus/supplylist-worker/internal/aggregate"
	"github.com/adverant/nexus/supplylist-worker/internal/logging"
	"github.com/adverant/nexus/supplylist-worker/internal/tagging"
)

// ManagerConfig selects the backends of a StorageManager
type ManagerConfig struct {
	DatabaseURL      string
	QdrantAddress    string
	QdrantCollection string
	// Embedder enables the textbook index together with QdrantAddress
	Embedder   Embedder
	VectorSize int
}

// StorageManager coordinates PostgreSQL and Qdrant operations
type StorageManager struct {
	postgres *PostgresClient
	qdrant   *QdrantClient
	index    *TextbookIndex
	logger   *logging.Logger
}

// NewStorageManager creates a new storage manager
func NewStorageManager(cfg ManagerConfig) (*StorageManager, error) {
	postgres, err := NewPostgresClient(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL client: %w", err)
	}

	var (
		qdrant *QdrantClient
		index  *TextbookIndex
	)
	if cfg.QdrantAddress != "" && cfg.Embedder != nil {
		qdrant, err = NewQdrantClient(cfg.QdrantAddress, cfg.QdrantCollection, cfg.VectorSize)
		if err != nil {
			postgres.Close()
			return nil, fmt.Errorf("failed to initialize Qdrant client: %w", err)
		}
		index = NewTextbookIndex(qdrant, cfg.Embedder)
	}

	return newStorageManager(postgres, qdrant, index), nil
}

// newStorageManager assembles a manager; qdrant and index are nil when the index is disabled
func newStorageManager(postgres *PostgresClient, qdrant *QdrantClient, index *TextbookIndex) *StorageManager {
	return &StorageManager{
		postgres: postgres,
		qdrant:   qdrant,
		index:    index,
		logger:   logging.NewLogger("Storage"),
	}
}

// Postgres returns the PostgreSQL client
func (sm *StorageManager) Postgres() *PostgresClient {
	return sm.postgres
}

// Index returns the textbook index, nil when disabled
func (sm *StorageManager) Index() *TextbookIndex {
	return sm.index
}

// SaveDocument commits the document then indexes its textbooks.
// Indexing errors are logged only.
func (sm *StorageManager) SaveDocument(ctx context.Context, fileID string, doc *aggregate.Document, index tagging.Index) (*SaveResult, error) {
	result, err := sm.postgres.SaveDocument(ctx, fileID, doc, index)
	if err != nil {
		return nil, err
	}

	if len(result.SkippedLevels) > 0 {
		sm.logger.Warn("Levels not saved, school or school year missing",
			"fileId", fileID, "levels", result.SkippedLevels)
	}

	if sm.index != nil {
		if n, err := sm.index.IndexTextbooks(ctx, fileID, result.Textbooks); err != nil {
			sm.logger.Warn("Textbook indexing failed", "fileId", fileID, "error", err)
		} else {
			sm.logger.Info("Textbooks indexed", "fileId", fileID, "count", n)
		}
	}

	return result, nil
}

// LogDocument records the processing outcome of one file
func (sm *StorageManager) LogDocument(ctx context.Context, entry *DocumentLog) error {
	return sm.postgres.LogDocument(ctx, entry)
}

// GetStats returns statistics from both systems
func (sm *StorageManager) GetStats(ctx context.Context) (map[string]interface{}, error) {
	pgStats := sm.postgres.GetStats()

	stats := map[string]interface{}{
		"postgres": map[string]interface{}{
			"max_open_connections": pgStats.MaxOpenConnections,
			"open_connections":     pgStats.OpenConnections,
			"in_use":               pgStats.InUse,
			"idle":                 pgStats.Idle,
			"wait_count":           pgStats.WaitCount,
			"wait_duration":        pgStats.WaitDuration.String(),
		},
	}

	if sm.qdrant != nil {
		qdrantStats, err := sm.qdrant.GetCollectionInfo(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get Qdrant stats: %w", err)
		}
		stats["qdrant"] = qdrantStats
	}

	return stats, nil
}

// Close closes all connections
func (sm *StorageManager) Close() error {
	var pgErr, qdErr error

	if sm.postgres != nil {
		pgErr = sm.postgres.Close()
	}

	if sm.qdrant != nil {
		qdErr = sm.qdrant.Close()
	}

	if pgErr != nil {
		return fmt.Errorf("failed to close PostgreSQL: %w", pgErr)
	}

	if qdErr != nil {
		return fmt.Errorf("failed to close Qdrant: %w", qdErr)
	}

	return nil
}
