package standardize

import (
	"context"
	"fmt"
)

// Session binds the engine to one document run: a fresh cache and the
// knowledge bases fetched when the run started.
type Session struct {
	engine *Engine
	cache  *Cache
	kbs    map[EntityType]*KnowledgeBase
}

// NewSession fetches the validated mappings of each entity type
func (e *Engine) NewSession(ctx context.Context, entityTypes ...EntityType) (*Session, error) {
	if len(entityTypes) == 0 {
		entityTypes = AllEntityTypes
	}

	s := &Session{
		engine: e,
		cache:  NewCache(),
		kbs:    make(map[EntityType]*KnowledgeBase, len(entityTypes)),
	}

	for _, et := range entityTypes {
		entries, err := e.store.FetchValidated(ctx, et)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s knowledge base: %w", et, err)
		}
		s.kbs[et] = NewKnowledgeBase(entries)
		e.logger.Debug("Knowledge base loaded", "entity", et, "entries", len(entries), "choices", len(s.kbs[et].Choices))
	}

	return s, nil
}

// Standardize resolves raw against the session's knowledge base for entityType
func (s *Session) Standardize(ctx context.Context, raw string, entityType EntityType) (string, bool) {
	return s.engine.Standardize(ctx, s.cache, raw, entityType, s.kbs[entityType])
}

// KnowledgeBase returns the snapshot loaded for entityType
func (s *Session) KnowledgeBase(entityType EntityType) *KnowledgeBase {
	return s.kbs[entityType]
}

// CacheSize reports how many values were resolved in this session
func (s *Session) CacheSize() int {
	return s.cache.Len()
}
