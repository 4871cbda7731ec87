// Package standardize maps noisy extracted values onto canonical names.
//
// Resolution goes cache, then validated knowledge base, then a constrained
// model lookup. Every model-path outcome is learned as PENDING_REVIEW so a
// human can confirm or correct it later.
package standardize

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/adverant/nexus/supplylist-worker/internal/clients"
)

// EntityType names a standardized vocabulary
type EntityType string

const (
	EntitySchools     EntityType = "ecoles"
	EntityLevels      EntityType = "niveaux"
	EntitySchoolYears EntityType = "annees_scolaires"
)

// AllEntityTypes lists every vocabulary the pipeline resolves
var AllEntityTypes = []EntityType{EntitySchools, EntitySchoolYears, EntityLevels}

// Valid reports whether t is a known entity type
func (t EntityType) Valid() bool {
	switch t {
	case EntitySchools, EntityLevels, EntitySchoolYears:
		return true
	}
	return false
}

// Status is the review state of a learned mapping
type Status string

const (
	StatusValidated     Status = "VALIDATED"
	StatusPendingReview Status = "PENDING_REVIEW"
	StatusRejected      Status = "REJECTED"
)

// Mapping is one raw -> canonical knowledge base entry
type Mapping struct {
	RawNormalized string `json:"valeur_brute"`
	Canonical     string `json:"nom_standardise"`
}

// Entry is a stored mapping together with its review state
type Entry struct {
	EntityType EntityType
	Mapping
	Status Status
}

// KnowledgeStore persists mappings
type KnowledgeStore interface {
	FetchValidated(ctx context.Context, entityType EntityType) ([]Mapping, error)
	Upsert(ctx context.Context, entityType EntityType, rawNormalized, canonical string, status Status) error
}

// ModelGateway invokes the generative model
type ModelGateway interface {
	Invoke(ctx context.Context, req *clients.InvokeRequest) (json.RawMessage, error)
}

// KnowledgeBase is a snapshot of the validated mappings of one entity type
type KnowledgeBase struct {
	Entries []Mapping
	// Choices are the sorted distinct canonical names the model may answer with.
	Choices []string

	lookup  map[string]string
	allowed map[string]bool
}

// NewKnowledgeBase indexes entries by normalized raw value
func NewKnowledgeBase(entries []Mapping) *KnowledgeBase {
	kb := &KnowledgeBase{
		Entries: entries,
		Choices: []string{},
		lookup:  make(map[string]string, len(entries)),
		allowed: make(map[string]bool),
	}
	if kb.Entries == nil {
		kb.Entries = []Mapping{}
	}

	for _, e := range entries {
		key := Normalize(e.RawNormalized)
		if _, seen := kb.lookup[key]; !seen && key != "" {
			kb.lookup[key] = e.Canonical
		}
		if e.Canonical != "" && !kb.allowed[e.Canonical] {
			kb.allowed[e.Canonical] = true
			kb.Choices = append(kb.Choices, e.Canonical)
		}
	}
	sort.Strings(kb.Choices)

	return kb
}

// Lookup returns the canonical name for an exact normalized match
func (kb *KnowledgeBase) Lookup(normalized string) (string, bool) {
	canonical, ok := kb.lookup[normalized]
	return canonical, ok
}

// Allows reports whether value is one of the allowed choices
func (kb *KnowledgeBase) Allows(value string) bool {
	return kb.allowed[value]
}

// Normalize lowercases and collapses whitespace
func Normalize(value string) string {
	return strings.Join(strings.Fields(strings.ToLower(value)), " ")
}
