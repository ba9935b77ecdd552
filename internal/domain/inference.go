package domain

import (
	"bytes"
	"time"

	"github.com/google/uuid"
)

// Match is one current relation that involves an entity in a given role,
// flattened together with its source's current revision.
type Match struct {
	RelationID        uuid.UUID        `json:"relation_id"`
	RelationCreatedAt time.Time        `json:"relation_created_at"`
	Source            SourceRevision   `json:"source"`
	Relation          RelationRevision `json:"relation"`
	Role              Role             `json:"role"`
}

// Less orders matches by relation creation time, then relation id.
func (m Match) Less(o Match) bool {
	if !m.RelationCreatedAt.Equal(o.RelationCreatedAt) {
		return m.RelationCreatedAt.Before(o.RelationCreatedAt)
	}
	return bytes.Compare(m.RelationID[:], o.RelationID[:]) < 0
}

// RoleInference is the aggregate judgment for one role of an entity.
// Score is nil when there is no usable evidence.
type RoleInference struct {
	RoleType      string   `json:"role_type"`
	Score         *float64 `json:"score"`
	Coverage      float64  `json:"coverage"`
	Confidence    float64  `json:"confidence"`
	Disagreement  float64  `json:"disagreement"`
	RelationCount int      `json:"relation_count"`
	TotalWeight   float64  `json:"total_weight"`
}

// RelationSummary is the short form of a current relation listed under
// EntityInference.RelationsByKind.
type RelationSummary struct {
	RelationID uuid.UUID `json:"relation_id"`
	SourceID   uuid.UUID `json:"source_id"`
	RoleType   string    `json:"role_type"`
	Direction  Direction `json:"direction"`
	Confidence float64   `json:"confidence"`
}

// EntityInference is the cached payload for one (entity, scope) pair.
type EntityInference struct {
	EntityID        uuid.UUID                    `json:"entity_id"`
	Scope           ScopeFilter                  `json:"scope"`
	ScopeHash       string                       `json:"scope_hash"`
	ModelVersion    string                       `json:"model_version"`
	ComputedAt      time.Time                    `json:"computed_at"`
	Cached          bool                         `json:"cached"`
	RelationsByKind map[string][]RelationSummary `json:"relations_by_kind"`
	RoleInferences  []RoleInference              `json:"role_inferences"`
}

// RelationIDs returns the distinct relations that fed the inference.
func (e *EntityInference) RelationIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]bool)
	var ids []uuid.UUID
	for _, kind := range sortedKinds(e.RelationsByKind) {
		for _, r := range e.RelationsByKind[kind] {
			if !seen[r.RelationID] {
				seen[r.RelationID] = true
				ids = append(ids, r.RelationID)
			}
		}
	}
	return ids
}

// Uncertainty is 1 minus the mean role confidence, or nil without roles.
func (e *EntityInference) Uncertainty() *float64 {
	if len(e.RoleInferences) == 0 {
		return nil
	}
	var sum float64
	for _, ri := range e.RoleInferences {
		sum += ri.Confidence
	}
	u := 1 - sum/float64(len(e.RoleInferences))
	if u < 0 {
		u = 0
	}
	if u > 1 {
		u = 1
	}
	return &u
}
