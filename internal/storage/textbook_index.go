package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/adverant/nexus/supplylist-worker/internal/logging"
)

// SimilarityThreshold is the minimum score a match needs to be shown to reviewers
const SimilarityThreshold float32 = 0.85

// textbookNamespace scopes deterministic point ids
var textbookNamespace = uuid.MustParse("6f1c2a4e-5b8d-4f3a-9c71-2e0d8b4a7f15")

// Embedder turns texts into vectors
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	GenerateEmbeddingBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore keeps textbook vectors
type VectorStore interface {
	UpsertVectors(ctx context.Context, points []*VectorPoint) error
	SearchVectors(ctx context.Context, queryVector []float32, limit int, minScore float32) ([]*VectorPoint, error)
	DeleteByFileID(ctx context.Context, fileID string) error
}

// TextbookMatch is a stored textbook close to a searched title
type TextbookMatch struct {
	TextbookID int64   `json:"textbookId" yaml:"textbookId"`
	Title      string  `json:"title" yaml:"title"`
	Publisher  string  `json:"publisher,omitempty" yaml:"publisher,omitempty"`
	Level      string  `json:"level" yaml:"level"`
	FileID     string  `json:"fileId" yaml:"fileId"`
	Score      float32 `json:"score" yaml:"score"`
}

// TextbookIndex embeds saved textbooks so reviewers can spot likely duplicates
type TextbookIndex struct {
	store    VectorStore
	embedder Embedder
	logger   *logging.Logger
}

// NewTextbookIndex creates a textbook index
func NewTextbookIndex(store VectorStore, embedder Embedder) *TextbookIndex {
	return &TextbookIndex{
		store:    store,
		embedder: embedder,
		logger:   logging.NewLogger("TextbookIndex"),
	}
}

// IndexTextbooks replaces the vectors of fileID with the given textbooks
func (t *TextbookIndex) IndexTextbooks(ctx context.Context, fileID string, textbooks []SavedTextbook) (int, error) {
	if err := t.store.DeleteByFileID(ctx, fileID); err != nil {
		return 0, err
	}

	if len(textbooks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(textbooks))
	for i, tb := range textbooks {
		texts[i] = embeddingText(tb.Title, tb.Publisher)
	}

	vectors, err := t.embedder.GenerateEmbeddingBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("failed to embed textbooks of %s: %w", fileID, err)
	}
	if len(vectors) != len(textbooks) {
		return 0, fmt.Errorf("embedding count mismatch: expected %d, got %d", len(textbooks), len(vectors))
	}

	points := make([]*VectorPoint, len(textbooks))
	for i, tb := range textbooks {
		metadata := map[string]interface{}{
			"textbook_id": tb.ID,
			"title":       tb.Title,
			"level":       tb.Level,
			"file_id":     fileID,
		}
		if tb.Publisher != nil {
			metadata["publisher"] = *tb.Publisher
		}

		points[i] = &VectorPoint{
			ID:       uuid.NewSHA1(textbookNamespace, []byte(fmt.Sprintf("%s:%d", fileID, tb.ID))).String(),
			Vector:   vectors[i],
			Metadata: metadata,
		}
	}

	if err := t.store.UpsertVectors(ctx, points); err != nil {
		return 0, err
	}

	t.logger.Debug("Indexed textbooks", "fileId", fileID, "count", len(points))
	return len(points), nil
}

// SimilarTextbooks returns stored textbooks scoring at least SimilarityThreshold against title
func (t *TextbookIndex) SimilarTextbooks(ctx context.Context, title string, limit int) ([]TextbookMatch, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("title is required")
	}

	vector, err := t.embedder.GenerateEmbedding(ctx, title)
	if err != nil {
		return nil, fmt.Errorf("failed to embed %q: %w", title, err)
	}

	points, err := t.store.SearchVectors(ctx, vector, limit, SimilarityThreshold)
	if err != nil {
		return nil, err
	}

	matches := make([]TextbookMatch, 0, len(points))
	for _, p := range points {
		if p.Score < SimilarityThreshold {
			continue
		}
		m := TextbookMatch{Score: p.Score}
		if id, ok := p.Metadata["textbook_id"].(int64); ok {
			m.TextbookID = id
		}
		m.Title, _ = p.Metadata["title"].(string)
		m.Publisher, _ = p.Metadata["publisher"].(string)
		m.Level, _ = p.Metadata["level"].(string)
		m.FileID, _ = p.Metadata["file_id"].(string)
		matches = append(matches, m)
	}

	return matches, nil
}

func embeddingText(title string, publisher *string) string {
	if publisher == nil || *publisher == "" {
		return title
	}
	return title + " (" + *publisher + ")"
}
