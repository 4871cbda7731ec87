package main

import (
	"context"
	"fmt"

	"github.com/adverant/nexus/supplylist-worker/internal/clients"
	"github.com/adverant/nexus/supplylist-worker/internal/config"
	"github.com/adverant/nexus/supplylist-worker/internal/extraction"
	"github.com/adverant/nexus/supplylist-worker/internal/ocr"
	"github.com/adverant/nexus/supplylist-worker/internal/processor"
	"github.com/adverant/nexus/supplylist-worker/internal/standardize"
	"github.com/adverant/nexus/supplylist-worker/internal/storage"
)

// pipeline bundles everything a document run needs
type pipeline struct {
	storage   *storage.StorageManager
	processor *processor.DocumentProcessor
	closers   []func() error
}

func (p *pipeline) Close() error {
	var firstErr error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// openStorage connects PostgreSQL and, when configured, the textbook index
func openStorage(cfg *config.Config) (*storage.StorageManager, error) {
	mcfg := storage.ManagerConfig{
		DatabaseURL:      cfg.DatabaseURL,
		QdrantAddress:    cfg.QdrantURL,
		QdrantCollection: cfg.QdrantCollection,
	}

	if cfg.TextbookIndexEnabled() {
		embedder, err := clients.NewEmbeddingClient(cfg.VoyageAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedding client: %w", err)
		}
		mcfg.Embedder = embedder
		mcfg.VectorSize = embedder.Dimensions()
	}

	return storage.NewStorageManager(mcfg)
}

func newOCREngine(ctx context.Context, cfg *config.Config) (ocr.Engine, func() error, error) {
	switch cfg.OCRProvider {
	case config.OCRProviderTesseract:
		return ocr.NewTesseractEngine(cfg.TesseractLanguages), func() error { return nil }, nil
	default:
		engine, err := ocr.NewDocumentAIEngine(ctx, &ocr.DocumentAIConfig{
			ProjectID:   cfg.DocAIProjectID,
			Location:    cfg.DocAILocation,
			ProcessorID: cfg.DocAIProcessorID,
		})
		if err != nil {
			return nil, nil, err
		}
		return engine, engine.Close, nil
	}
}

// buildPipeline wires OCR, the model gateway, standardization and storage
func buildPipeline(ctx context.Context, cfg *config.Config, dryRun bool) (*pipeline, error) {
	if err := cfg.ValidatePipeline(); err != nil {
		return nil, err
	}

	p := &pipeline{}

	sm, err := openStorage(cfg)
	if err != nil {
		return nil, err
	}
	p.storage = sm
	p.closers = append(p.closers, sm.Close)

	engine, closeOCR, err := newOCREngine(ctx, cfg)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to initialize OCR engine: %w", err)
	}
	p.closers = append(p.closers, closeOCR)

	gateway, err := clients.NewGeminiClient(&clients.GeminiConfig{
		APIKey:       cfg.GeminiAPIKey,
		BaseURL:      cfg.GeminiBaseURL,
		DefaultModel: cfg.ExtractionModel,
		MaxRetries:   cfg.ModelMaxRetries,
		BaseDelay:    cfg.ModelRetryDelay,
		Timeout:      cfg.ModelTimeout,
	})
	if err != nil {
		p.Close()
		return nil, err
	}

	standardizer := standardize.NewEngine(sm.Postgres(), gateway, standardize.EngineConfig{
		Model:      cfg.StandardizeModel,
		MaxRetries: cfg.ModelMaxRetries,
		BaseDelay:  cfg.ModelRetryDelay,
	})

	orchestrator := extraction.NewOrchestrator(gateway, extraction.Config{
		Model:      cfg.ExtractionModel,
		MaxRetries: cfg.ModelMaxRetries,
		BaseDelay:  cfg.ModelRetryDelay,
	})

	proc, err := processor.NewDocumentProcessor(&processor.ProcessorConfig{
		OCR:         engine,
		Sessions:    processor.EngineSessions(standardizer),
		Extractor:   orchestrator,
		Storage:     sm,
		MaxFileSize: cfg.MaxFileSize,
		DryRun:      dryRun,
	})
	if err != nil {
		p.Close()
		return nil, err
	}
	p.processor = proc

	return p, nil
}
