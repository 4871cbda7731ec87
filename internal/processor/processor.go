/**
 * Document Processor for the Supply-List Worker
 *
 * Runs one school supply list through the pipeline:
 * - load the file (buffer, local path or URL) and sniff its format
 * - OCR it and tag every line with a global E-tag
 * - extract school, year, levels and textbooks page by page
 * - merge the pages and persist the result with its source locations
 */

package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/adverant/nexus/supplylist-worker/internal/aggregate"
	apperrors "github.com/adverant/nexus/supplylist-worker/internal/errors"
	"github.com/adverant/nexus/supplylist-worker/internal/extraction"
	"github.com/adverant/nexus/supplylist-worker/internal/logging"
	"github.com/adverant/nexus/supplylist-worker/internal/ocr"
	"github.com/adverant/nexus/supplylist-worker/internal/standardize"
	"github.com/adverant/nexus/supplylist-worker/internal/storage"
	"github.com/adverant/nexus/supplylist-worker/internal/tagging"
)

// DocumentProcessorInterface defines the interface for document processing
type DocumentProcessorInterface interface {
	ProcessDocument(ctx context.Context, req *ProcessRequest) (*ProcessResult, error)
	RecordOutcome(ctx context.Context, req *ProcessRequest, result *ProcessResult, procErr error) error
}

// Extractor runs the model calls of one page
type Extractor interface {
	Extract(ctx context.Context, pageNumber int, taggedText string, std extraction.Standardizer) *extraction.PageResult
}

// SessionFactory opens a standardization session bound to one document run
type SessionFactory func(ctx context.Context) (extraction.Standardizer, error)

// Persister stores documents and their processing outcome
type Persister interface {
	SaveDocument(ctx context.Context, fileID string, doc *aggregate.Document, index tagging.Index) (*storage.SaveResult, error)
	LogDocument(ctx context.Context, entry *storage.DocumentLog) error
}

// EngineSessions adapts a standardization engine to a SessionFactory
func EngineSessions(engine *standardize.Engine) SessionFactory {
	return func(ctx context.Context) (extraction.Standardizer, error) {
		session, err := engine.NewSession(ctx)
		if err != nil {
			return nil, err
		}
		return session, nil
	}
}

// ProcessorConfig holds processor configuration
type ProcessorConfig struct {
	OCR         ocr.Engine
	Sessions    SessionFactory
	Extractor   Extractor
	Storage     Persister
	MaxFileSize int64
	// DryRun extracts and records the outcome but never saves entities.
	DryRun     bool
	HTTPClient *http.Client
}

// ProcessRequest represents a document processing request
type ProcessRequest struct {
	JobID      string
	FileID     string
	Filename   string
	MimeType   string
	FilePath   string
	FileURL    string
	FileBuffer []byte
}

// ProcessResult represents the processing result
type ProcessResult struct {
	JobID            string                   `json:"jobId" yaml:"jobId"`
	FileID           string                   `json:"fileId" yaml:"fileId"`
	MimeType         string                   `json:"mimeType" yaml:"mimeType"`
	Status           apperrors.DocumentStatus `json:"status" yaml:"status"`
	Document         *aggregate.Document      `json:"document" yaml:"document"`
	Index            tagging.Index            `json:"-" yaml:"-"`
	Pages            []*extraction.PageResult `json:"-" yaml:"-"`
	Textbooks        int                      `json:"textbooks" yaml:"textbooks"`
	Saved            *storage.SaveResult      `json:"saved,omitempty" yaml:"saved,omitempty"`
	ProcessingTimeMs int64                    `json:"processingTimeMs" yaml:"processingTimeMs"`
}

// DocumentProcessor handles document processing
type DocumentProcessor struct {
	config     *ProcessorConfig
	ocr        ocr.Engine
	sessions   SessionFactory
	extractor  Extractor
	storage    Persister
	httpClient *http.Client
	logger     *logging.Logger
}

// NewDocumentProcessor creates a new document processor
func NewDocumentProcessor(cfg *ProcessorConfig) (*DocumentProcessor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	if cfg.OCR == nil {
		return nil, fmt.Errorf("OCR engine is required")
	}

	if cfg.Sessions == nil {
		return nil, fmt.Errorf("standardization sessions are required")
	}

	if cfg.Extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}

	if cfg.Storage == nil && !cfg.DryRun {
		return nil, fmt.Errorf("storage is required unless running dry")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Minute}
	}

	return &DocumentProcessor{
		config:     cfg,
		ocr:        cfg.OCR,
		sessions:   cfg.Sessions,
		extractor:  cfg.Extractor,
		storage:    cfg.Storage,
		httpClient: httpClient,
		logger:     logging.NewLogger("Processor"),
	}, nil
}

// ProcessDocument processes a document through the complete pipeline
func (p *DocumentProcessor) ProcessDocument(ctx context.Context, req *ProcessRequest) (*ProcessResult, error) {
	start := time.Now()
	fileID := req.FileID
	if fileID == "" {
		fileID = req.JobID
	}
	logger := p.logger.With("jobId", req.JobID, "fileId", fileID)
	logger.Info("Starting document processing pipeline", "filename", req.Filename)

	// Step 1: Load file
	fileData, err := p.loadFile(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to load file: %w", err)
	}

	// Step 2: Sniff the format and reject what no engine reads
	mimeType := ocr.ResolveMimeType(req.MimeType, fileData)
	if mimeType != req.MimeType {
		logger.Debug("MIME type resolved from content", "declared", req.MimeType, "detected", mimeType)
	}
	if err := ocr.ValidateMimeType(req.JobID, mimeType); err != nil {
		return nil, err
	}

	// Step 3: OCR
	logger.Info("Running OCR", "engine", p.ocr.Name(), "mimeType", mimeType, "bytes", len(fileData))
	doc, err := p.ocr.Process(ctx, fileData, mimeType)
	if err != nil {
		if ctxErr := p.contextError(ctx, req.JobID, start); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, apperrors.NewOCRFailedError(req.JobID, p.ocr.Name(), err)
	}

	// Step 4: Tag every line of the document
	tagged := tagging.Tag(doc)
	logger.Info("Document tagged", "pages", len(tagged.Pages), "elements", len(tagged.Index))

	// Step 5: Fresh knowledge bases for this run
	session, err := p.sessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open standardization session: %w", err)
	}

	// Step 6: Extract page by page, in order
	pages := make([]*extraction.PageResult, 0, len(tagged.Pages))
	for _, page := range tagged.Pages {
		if ctxErr := p.contextError(ctx, req.JobID, start); ctxErr != nil {
			return nil, ctxErr
		}
		if page.Empty() {
			logger.Debug("Skipping empty page", "page", page.PageNumber)
			continue
		}
		// A page already submitted runs to completion; its model calls are
		// bounded by the gateway timeout and attempt count, not the job deadline.
		pages = append(pages, p.extractor.Extract(context.WithoutCancel(ctx), page.PageNumber, page.Text, session))
	}

	// A deadline that fired during the last page must not yield a partial document.
	if ctxErr := p.contextError(ctx, req.JobID, start); ctxErr != nil {
		return nil, ctxErr
	}

	if len(pages) == 0 {
		return nil, apperrors.NewOCRFailedError(req.JobID, p.ocr.Name(), errors.New("no text found on any page"))
	}

	if allLevelsFailed(pages) {
		return nil, apperrors.NewExtractionFailedError(req.JobID, len(pages))
	}

	// Step 7: Merge pages
	merged := aggregate.Aggregate(pages)
	if err := merged.Validate(req.JobID); err != nil {
		logger.Warn("No textbook extracted", "levels", len(merged.Levels))
		return nil, err
	}

	result := &ProcessResult{
		JobID:     req.JobID,
		FileID:    fileID,
		MimeType:  mimeType,
		Status:    apperrors.StatusProcessed,
		Document:  merged,
		Index:     tagged.Index,
		Pages:     pages,
		Textbooks: merged.TotalTextbooks(),
	}

	// Step 8: Persist
	if p.config.DryRun {
		logger.Info("Dry run, entities not saved", "textbooks", result.Textbooks)
	} else {
		saved, err := p.storage.SaveDocument(ctx, fileID, merged, tagged.Index)
		if err != nil {
			return nil, apperrors.NewStorageFailedError(req.JobID, err)
		}
		result.Saved = saved
	}

	result.ProcessingTimeMs = time.Since(start).Milliseconds()
	logger.Info("Processing pipeline complete",
		"levels", len(merged.Levels),
		"textbooks", result.Textbooks,
		"durationMs", result.ProcessingTimeMs)

	return result, nil
}

// RecordOutcome writes the document log row for a processed or failed document
func (p *DocumentProcessor) RecordOutcome(ctx context.Context, req *ProcessRequest, result *ProcessResult, procErr error) error {
	if p.storage == nil {
		return nil
	}

	fileID := req.FileID
	if fileID == "" {
		fileID = req.JobID
	}

	entry := &storage.DocumentLog{
		FileID:   fileID,
		FileName: req.Filename,
		MimeType: req.MimeType,
		Status:   string(apperrors.StatusForError(procErr)),
	}

	switch {
	case procErr != nil:
		entry.Message = procErr.Error()
	case result != nil:
		entry.MimeType = result.MimeType
		entry.Message = outcomeMessage(result, p.config.DryRun)
	}

	if err := p.storage.LogDocument(ctx, entry); err != nil {
		p.logger.Error("Failed to record document outcome", "fileId", fileID, "status", entry.Status, "error", err)
		return err
	}
	return nil
}

func outcomeMessage(result *ProcessResult, dryRun bool) string {
	if dryRun || result.Saved == nil {
		return fmt.Sprintf("%d textbook(s) extracted, not saved", result.Textbooks)
	}
	return fmt.Sprintf("%d textbook(s) inserted", len(result.Saved.Textbooks))
}

func allLevelsFailed(pages []*extraction.PageResult) bool {
	for _, page := range pages {
		if !page.LevelsFailed {
			return false
		}
	}
	return true
}

// contextError reports a cancelled or timed out run
func (p *DocumentProcessor) contextError(ctx context.Context, jobID string, start time.Time) error {
	if err := ctx.Err(); err != nil {
		return apperrors.NewProcessingTimeoutError(jobID, time.Since(start), err)
	}
	return nil
}

// loadFile loads file from buffer, local path or URL
func (p *DocumentProcessor) loadFile(ctx context.Context, req *ProcessRequest) ([]byte, error) {
	var (
		data []byte
		err  error
	)

	switch {
	case len(req.FileBuffer) > 0:
		data = req.FileBuffer
	case req.FilePath != "":
		data, err = p.readLocalFile(req.FilePath)
	case req.FileURL != "":
		data, err = p.downloadFileFromURL(ctx, req.JobID, req.FileURL)
	default:
		return nil, fmt.Errorf("no file source provided (buffer, path or URL)")
	}
	if err != nil {
		return nil, err
	}

	if p.config.MaxFileSize > 0 && int64(len(data)) > p.config.MaxFileSize {
		return nil, fmt.Errorf("file size exceeds maximum: %d > %d bytes", len(data), p.config.MaxFileSize)
	}

	return data, nil
}

func (p *DocumentProcessor) readLocalFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if p.config.MaxFileSize > 0 && info.Size() > p.config.MaxFileSize {
		return nil, fmt.Errorf("file size exceeds maximum: %d > %d bytes", info.Size(), p.config.MaxFileSize)
	}
	return os.ReadFile(path)
}

// downloadFileFromURL downloads a file with exponential backoff.
// Client errors other than 408 and 429 are not retried.
func (p *DocumentProcessor) downloadFileFromURL(ctx context.Context, jobID string, fileURL string) ([]byte, error) {
	const (
		maxAttempts    = 5
		initialBackoff = time.Second
		maxBackoff     = 32 * time.Second
	)

	logger := p.logger.With("jobId", jobID)

	return retry.DoWithData(
		func() ([]byte, error) {
			httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
			if err != nil {
				return nil, retry.Unrecoverable(err)
			}

			resp, err := p.httpClient.Do(httpReq)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				err := fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
				if resp.StatusCode >= 400 && resp.StatusCode < 500 &&
					resp.StatusCode != http.StatusRequestTimeout && resp.StatusCode != http.StatusTooManyRequests {
					return nil, retry.Unrecoverable(err)
				}
				return nil, err
			}

			if p.config.MaxFileSize > 0 && resp.ContentLength > p.config.MaxFileSize {
				return nil, retry.Unrecoverable(fmt.Errorf("file size exceeds maximum: %d > %d bytes",
					resp.ContentLength, p.config.MaxFileSize))
			}

			reader := io.Reader(resp.Body)
			if p.config.MaxFileSize > 0 {
				reader = io.LimitReader(resp.Body, p.config.MaxFileSize+1)
			}
			return io.ReadAll(reader)
		},
		retry.Context(ctx),
		retry.Attempts(maxAttempts),
		retry.Delay(initialBackoff),
		retry.MaxDelay(maxBackoff),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("Download attempt failed", "attempt", n+1, "maxAttempts", maxAttempts, "error", err)
		}),
	)
}
