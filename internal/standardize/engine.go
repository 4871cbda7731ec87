package standardize

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/adverant/nexus/supplylist-worker/internal/clients"
	apperrors "github.com/adverant/nexus/supplylist-worker/internal/errors"
	"github.com/adverant/nexus/supplylist-worker/internal/logging"
)

const constrainedInstructions = `TASK: For a NEW RAW TERM, find the best match in the ALLOWED CHOICES list, using the KNOWLEDGE BASE of already validated raw -> canonical mappings as examples.
Your answer MUST be one of the exact strings of the ALLOWED CHOICES list, copied character for character. If no choice fits, answer null.
JSON FORMAT: {"nom_standardise": "EXACT_CHOICE"} or {"nom_standardise": null}`

var answerSchema = clients.MustCompileSchema("standardize", `{
	"type": "object",
	"required": ["nom_standardise"],
	"properties": {
		"nom_standardise": {"type": ["string", "null"]}
	}
}`)

type answer struct {
	Canonical *string `json:"nom_standardise"`
}

type cacheKey struct {
	entityType EntityType
	normalized string
}

// Cache memoizes resolutions for one processing run
type Cache struct {
	mu      sync.RWMutex
	entries map[cacheKey]string
}

// NewCache creates an empty cache
func NewCache() *Cache {
	return &Cache{entries: make(map[cacheKey]string)}
}

func (c *Cache) get(entityType EntityType, normalized string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[cacheKey{entityType, normalized}]
	return v, ok
}

func (c *Cache) put(entityType EntityType, normalized, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey{entityType, normalized}] = value
}

// Len returns the number of cached resolutions
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// EngineConfig configures the model lookup
type EngineConfig struct {
	Model      string
	MaxRetries int
	BaseDelay  time.Duration
}

// Engine resolves raw values to canonical names
type Engine struct {
	store   KnowledgeStore
	gateway ModelGateway
	cfg     EngineConfig
	logger  *logging.Logger
}

// NewEngine creates a standardization engine
func NewEngine(store KnowledgeStore, gateway ModelGateway, cfg EngineConfig) *Engine {
	return &Engine{
		store:   store,
		gateway: gateway,
		cfg:     cfg,
		logger:  logging.NewLogger("Standardizer"),
	}
}

// Standardize returns the canonical value for raw, or false when raw is empty.
func (e *Engine) Standardize(ctx context.Context, cache *Cache, raw string, entityType EntityType, kb *KnowledgeBase) (string, bool) {
	if raw == "" {
		return "", false
	}

	cleaned := raw
	if entityType == EntityLevels {
		cleaned = CleanLevel(raw)
		if cleaned != raw {
			e.logger.Debug("Level cleaned", "raw", raw, "cleaned", cleaned)
		}
	}

	normalized := Normalize(cleaned)
	if normalized == "" {
		return raw, true
	}

	if cached, ok := cache.get(entityType, normalized); ok {
		return cached, true
	}

	if kb == nil {
		kb = NewKnowledgeBase(nil)
	}
	if canonical, ok := kb.Lookup(normalized); ok {
		e.logger.Debug("Knowledge base match", "entity", entityType, "value", normalized, "canonical", canonical)
		cache.put(entityType, normalized, canonical)
		return canonical, true
	}

	result := raw
	if choice, ok := e.askModel(ctx, normalized, entityType, kb); ok {
		result = choice
		e.logger.Info("Model resolved value", "entity", entityType, "value", normalized, "canonical", choice)
	}

	if err := e.store.Upsert(ctx, entityType, normalized, result, StatusPendingReview); err != nil {
		e.logger.Error("Failed to learn mapping", "entity", entityType, "value", normalized, "error", err)
	}

	cache.put(entityType, normalized, result)
	return result, true
}

// askModel runs the constrained lookup; false means fall back to the raw value
func (e *Engine) askModel(ctx context.Context, normalized string, entityType EntityType, kb *KnowledgeBase) (string, bool) {
	if len(kb.Choices) == 0 {
		e.logger.Debug("No allowed choices, skipping model", "entity", entityType, "value", normalized)
		return "", false
	}

	payload, err := constrainedPayload(normalized, kb)
	if err != nil {
		e.logger.Error("Failed to build standardization payload", "entity", entityType, "error", err)
		return "", false
	}

	raw, err := e.gateway.Invoke(ctx, &clients.InvokeRequest{
		Instructions: constrainedInstructions,
		Payload:      payload,
		Model:        e.cfg.Model,
		MaxRetries:   e.cfg.MaxRetries,
		BaseDelay:    e.cfg.BaseDelay,
		Validate:     answerSchema.Validate,
	})
	if err != nil {
		e.logger.Warn("Model lookup failed, keeping raw value", "entity", entityType, "value", normalized, "error", err)
		return "", false
	}

	var ans answer
	if err := json.Unmarshal(raw, &ans); err != nil || ans.Canonical == nil || *ans.Canonical == "" {
		e.logger.Info("Model declined to choose", "entity", entityType, "value", normalized)
		return "", false
	}

	if !kb.Allows(*ans.Canonical) {
		amb := apperrors.NewStandardizationAmbiguousError(string(entityType), normalized, *ans.Canonical)
		e.logger.Warn("Model answer outside allowed choices, keeping raw value", "error", amb)
		return "", false
	}

	return *ans.Canonical, true
}

func constrainedPayload(normalized string, kb *KnowledgeBase) (string, error) {
	entries, err := json.MarshalIndent(kb.Entries, "", "  ")
	if err != nil {
		return "", err
	}
	choices, err := json.Marshal(kb.Choices)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("KNOWLEDGE BASE:\n%s\n\nALLOWED CHOICES:\n%s\n\nNEW RAW TERM:\n%q", entries, choices, normalized), nil
}
