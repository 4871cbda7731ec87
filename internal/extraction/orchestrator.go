// Package extraction drives the per-page model calls.
//
// Three calls run per page (school, school year, levels with their books).
// Model answers are decoded into typed values right away and routed through
// the standardizer. A failed call yields empty data, never an error.
package extraction

import (
	"context"
	"encoding/json"
	"time"

	"github.com/adverant/nexus/supplylist-worker/internal/clients"
	"github.com/adverant/nexus/supplylist-worker/internal/logging"
	"github.com/adverant/nexus/supplylist-worker/internal/standardize"
)

// ModelGateway invokes the generative model
type ModelGateway interface {
	Invoke(ctx context.Context, req *clients.InvokeRequest) (json.RawMessage, error)
}

// Standardizer resolves raw values; false means the value is unknown
type Standardizer interface {
	Standardize(ctx context.Context, raw string, entityType standardize.EntityType) (string, bool)
}

// Config selects the extraction model and its retry policy
type Config struct {
	Model      string
	MaxRetries int
	BaseDelay  time.Duration
}

// Orchestrator runs the extraction calls of one page
type Orchestrator struct {
	gateway ModelGateway
	cfg     Config
	logger  *logging.Logger
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(gateway ModelGateway, cfg Config) *Orchestrator {
	return &Orchestrator{
		gateway: gateway,
		cfg:     cfg,
		logger:  logging.NewLogger("Extraction"),
	}
}

// Extract runs the three calls over a page's tagged text and standardizes the results
func (o *Orchestrator) Extract(ctx context.Context, pageNumber int, taggedText string, std Standardizer) *PageResult {
	logger := o.logger.With("page", pageNumber)
	result := &PageResult{PageNumber: pageNumber, Levels: []Level{}}

	var school schoolWire
	if o.call(ctx, logger, "school", schoolInstructions, taggedText, schoolSchema, &school) {
		if raw := school.School.text(); raw != nil {
			if canonical, ok := std.Standardize(ctx, *raw, standardize.EntitySchools); ok {
				result.School = &Field{Raw: *raw, Canonical: canonical, SourceTags: nonNil(school.SourceTags)}
			}
		}
	} else {
		result.ModelFailures++
	}

	var year yearWire
	if o.call(ctx, logger, "school_year", yearInstructions, taggedText, yearSchema, &year) {
		if raw := year.Year.text(); raw != nil {
			if canonical, ok := std.Standardize(ctx, *raw, standardize.EntitySchoolYears); ok {
				result.Year = &Field{Raw: *raw, Canonical: canonical, SourceTags: nonNil(year.SourceTags)}
			}
		}
	} else {
		result.ModelFailures++
	}

	var levels levelsWire
	if !o.call(ctx, logger, "levels", levelsInstructions, taggedText, levelsSchema, &levels) {
		result.ModelFailures++
		result.LevelsFailed = true
		logger.Warn("Integrated extraction failed, page yields no levels")
		return result
	}

	dropped := 0
	for _, lw := range levels.Levels {
		raw := lw.RawName.text()
		if raw == nil {
			continue
		}

		level := Level{
			RawName:    *raw,
			SourceTags: nonNil(lw.SourceTags),
			Textbooks:  []Textbook{},
		}
		if canonical, ok := std.Standardize(ctx, *raw, standardize.EntityLevels); ok {
			level.CanonicalName = canonical
		}

		for _, bw := range lw.Textbooks {
			tb, ok := bw.toTextbook()
			if !ok {
				dropped++
				continue
			}
			level.Textbooks = append(level.Textbooks, tb)
		}

		result.Levels = append(result.Levels, level)
	}

	if len(result.Levels) == 0 {
		logger.Warn("Integrated extraction found no level or textbook")
	}
	logger.Info("Page extracted",
		"levels", len(result.Levels),
		"textbooks", result.TextbookCount(),
		"untitledDropped", dropped)

	return result
}

// call invokes the model and decodes its answer into out; false on failure
func (o *Orchestrator) call(ctx context.Context, logger *logging.Logger, name, instructions, text string, schema *clients.Schema, out interface{}) bool {
	raw, err := o.gateway.Invoke(ctx, &clients.InvokeRequest{
		Instructions: instructions,
		Payload:      text,
		Model:        o.cfg.Model,
		MaxRetries:   o.cfg.MaxRetries,
		BaseDelay:    o.cfg.BaseDelay,
		Validate:     schema.Validate,
	})
	if err != nil {
		logger.Warn("Extraction call failed", "call", name, "error", err)
		return false
	}

	if err := json.Unmarshal(raw, out); err != nil {
		logger.Warn("Extraction answer could not be decoded", "call", name, "error", err)
		return false
	}
	return true
}
