package domain

import (
	"time"

	"github.com/google/uuid"
)

// SourceContribution attributes part of an aggregate to one source/relation.
type SourceContribution struct {
	SourceID   uuid.UUID `json:"source_id"`
	RelationID uuid.UUID `json:"relation_id"`

	Title      string   `json:"title"`
	Authors    []string `json:"authors,omitempty"`
	Year       *int     `json:"year,omitempty"`
	TrustLevel float64  `json:"trust_level"`
	URL        string   `json:"url,omitempty"`

	Kind       string      `json:"kind"`
	Direction  Direction   `json:"direction"`
	Confidence float64     `json:"confidence"`
	Scope      ScopeFilter `json:"scope,omitempty"`

	RoleWeight             float64 `json:"role_weight"`
	Weight                 float64 `json:"weight"`
	SignedContribution     float64 `json:"signed_contribution"`
	ContributionPercentage float64 `json:"contribution_percentage"`
}

type ContradictionDetail struct {
	HasContradiction    bool    `json:"has_contradiction"`
	DisagreementScore   float64 `json:"disagreement_score"`
	SupportingWeight    float64 `json:"supporting_weight"`
	ContradictingWeight float64 `json:"contradicting_weight"`
	Description         string  `json:"description"`
}

// ConfidenceFactor is one named contributor to the confidence value.
type ConfidenceFactor struct {
	Name        string  `json:"name"`
	Value       float64 `json:"value"`
	Explanation string  `json:"explanation"`
}

type Explanation struct {
	EntityID     uuid.UUID   `json:"entity_id"`
	RoleType     string      `json:"role_type"`
	Scope        ScopeFilter `json:"scope"`
	ScopeHash    string      `json:"scope_hash"`
	ModelVersion string      `json:"model_version"`

	Inference RoleInference `json:"inference"`
	Summary   string        `json:"summary"`

	Sources       []SourceContribution `json:"sources"`
	Supporting    []SourceContribution `json:"supporting"`
	Contradicting []SourceContribution `json:"contradicting"`
	Uncertain     []SourceContribution `json:"uncertain"`

	Contradictions    ContradictionDetail `json:"contradictions"`
	ConfidenceFactors []ConfidenceFactor  `json:"confidence_factors"`

	GeneratedAt time.Time `json:"generated_at"`
}
