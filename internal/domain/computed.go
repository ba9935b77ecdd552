package domain

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
)

// CacheKey addresses a computed relation.
type CacheKey struct {
	ScopeHash    string
	ModelVersion string
}

func (k CacheKey) String() string {
	return k.ScopeHash + "@" + k.ModelVersion
}

// ComputedRelation is a cached aggregation result. RelationID is a surrogate
// primary key; Inputs lists the relations whose revisions fed the payload.
type ComputedRelation struct {
	RelationID   uuid.UUID       `json:"relation_id"`
	ScopeHash    string          `json:"scope_hash"`
	ModelVersion string          `json:"model_version"`
	EntityID     uuid.UUID       `json:"entity_id"`
	Scope        ScopeFilter     `json:"scope"`
	Payload      json.RawMessage `json:"payload"`
	Uncertainty  *float64        `json:"uncertainty"`
	Inputs       []uuid.UUID     `json:"inputs,omitempty"`
	ComputedAt   time.Time       `json:"computed_at"`
}

func (c *ComputedRelation) Key() CacheKey {
	return CacheKey{ScopeHash: c.ScopeHash, ModelVersion: c.ModelVersion}
}

func sortedKinds(m map[string][]RelationSummary) []string {
	kinds := make([]string, 0, len(m))
	for k := range m {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
