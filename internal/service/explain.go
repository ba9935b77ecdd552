package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/Harshitk-cp/medgraph/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ExplanationService re-derives a role inference with per-source attribution.
// Explanations are not cached.
type ExplanationService struct {
	revisions  domain.RevisionStore
	aggregator *Aggregator
	logger     *zap.Logger

	modelVersion    string
	resolverTimeout time.Duration
}

func NewExplanationService(rs domain.RevisionStore, agg *Aggregator, logger *zap.Logger) *ExplanationService {
	return &ExplanationService{
		revisions:       rs,
		aggregator:      agg,
		logger:          logger,
		modelVersion:    DefaultModelVersion,
		resolverTimeout: DefaultResolverTimeout,
	}
}

func (s *ExplanationService) SetModelVersion(v string) {
	if v != "" {
		s.modelVersion = v
	}
}

func (s *ExplanationService) SetResolverTimeout(d time.Duration) {
	if d > 0 {
		s.resolverTimeout = d
	}
}

// Explain fails with ErrRoleNotFound when the entity never played roleType in
// any revision. A role whose relations are all filtered out by scope yields a
// valid explanation with no evidence.
func (s *ExplanationService) Explain(ctx context.Context, entityID uuid.UUID, roleType string, scope domain.ScopeFilter) (*domain.Explanation, error) {
	rctx, cancel := context.WithTimeout(ctx, s.resolverTimeout)
	defer cancel()

	used, err := s.revisions.RoleTypeUsed(rctx, entityID, roleType)
	if err != nil {
		return nil, resolverError(err)
	}
	if !used {
		return nil, fmt.Errorf("%w: %q for entity %s", ErrRoleNotFound, roleType, entityID)
	}

	matches, err := s.revisions.FindCurrentRelations(rctx, entityID, roleType, scope)
	if err != nil {
		return nil, resolverError(err)
	}

	contribs, inf := s.aggregator.aggregate(roleType, matches)

	exp := &domain.Explanation{
		EntityID:      entityID,
		RoleType:      roleType,
		Scope:         scope,
		ScopeHash:     domain.ScopeHash(entityID, scope),
		ModelVersion:  s.modelVersion,
		Inference:     inf,
		Sources:       []domain.SourceContribution{},
		Supporting:    []domain.SourceContribution{},
		Contradicting: []domain.SourceContribution{},
		Uncertain:     []domain.SourceContribution{},
		GeneratedAt:   time.Now().UTC(),
	}

	var absTotal float64
	for _, c := range contribs {
		absTotal += math.Abs(c.signed)
	}

	// The positive side counts as supporting unless the score is negative.
	majority := 1
	if inf.Score != nil && *inf.Score < 0 {
		majority = -1
	}

	var supportingWeight, contradictingWeight float64
	for _, c := range contribs {
		sc := sourceContribution(c, absTotal)
		exp.Sources = append(exp.Sources, sc)

		switch sign(c.signed) {
		case 0:
			exp.Uncertain = append(exp.Uncertain, sc)
		case majority:
			exp.Supporting = append(exp.Supporting, sc)
			supportingWeight += c.weight
		default:
			exp.Contradicting = append(exp.Contradicting, sc)
			contradictingWeight += c.weight
		}
	}

	exp.Contradictions = domain.ContradictionDetail{
		HasContradiction:    len(exp.Supporting) > 0 && len(exp.Contradicting) > 0,
		DisagreementScore:   inf.Disagreement,
		SupportingWeight:    supportingWeight,
		ContradictingWeight: contradictingWeight,
		Description:         describeContradiction(len(exp.Supporting), len(exp.Contradicting), inf.Disagreement),
	}
	exp.ConfidenceFactors = s.confidenceFactors(inf)
	exp.Summary = summarize(inf, len(contribs))

	s.logger.Debug("built explanation",
		zap.String("entity_id", entityID.String()),
		zap.String("role_type", roleType),
		zap.Int("sources", len(contribs)))

	return exp, nil
}

func sourceContribution(c contribution, absTotal float64) domain.SourceContribution {
	m := c.match
	pct := 0.0
	if absTotal > 0 {
		pct = math.Abs(c.signed) / absTotal * 100
	}
	return domain.SourceContribution{
		SourceID:               m.Source.SourceID,
		RelationID:             m.RelationID,
		Title:                  m.Source.Title,
		Authors:                m.Source.Authors,
		Year:                   m.Source.Year,
		TrustLevel:             m.Source.TrustLevel,
		URL:                    m.Source.URL,
		Kind:                   m.Relation.Kind,
		Direction:              m.Relation.Direction,
		Confidence:             m.Relation.Confidence,
		Scope:                  m.Relation.Scope,
		RoleWeight:             c.roleWeight,
		Weight:                 c.weight,
		SignedContribution:     c.signed,
		ContributionPercentage: pct,
	}
}

func (s *ExplanationService) confidenceFactors(inf domain.RoleInference) []domain.ConfidenceFactor {
	unit := s.aggregator.expectedUnit()
	coverage := domain.ConfidenceFactor{
		Name:  "coverage",
		Value: inf.Coverage,
		Explanation: fmt.Sprintf("Evidence weight %.2f from %d relation(s) against %.2f expected for full coverage.",
			inf.TotalWeight, inf.RelationCount, unit),
	}

	agreement := domain.ConfidenceFactor{Name: "agreement", Value: 1 - inf.Disagreement}
	switch {
	case inf.Score == nil:
		agreement.Value = 0
		agreement.Explanation = "No weighted evidence, so agreement cannot be assessed."
	case inf.Disagreement == 0:
		agreement.Explanation = "All weighted sources point in the same direction."
	default:
		agreement.Explanation = fmt.Sprintf("%.0f%% of the evidence weight opposes the overall direction.",
			inf.Disagreement*100)
	}

	return []domain.ConfidenceFactor{coverage, agreement}
}

func describeContradiction(supporting, contradicting int, disagreement float64) string {
	if contradicting == 0 {
		return "No contradicting sources."
	}
	if supporting == 0 {
		return fmt.Sprintf("%d source(s) oppose each other with no majority.", contradicting)
	}
	return fmt.Sprintf("%d source(s) contradict %d supporting source(s); disagreement %.2f.",
		contradicting, supporting, disagreement)
}

func summarize(inf domain.RoleInference, sources int) string {
	if inf.Score == nil {
		if sources == 0 {
			return "No relations match this scope."
		}
		return fmt.Sprintf("%d relation(s) match but carry no usable weight.", sources)
	}

	score := *inf.Score
	var direction string
	switch {
	case score > 0:
		direction = "supported"
	case score < 0:
		direction = "contradicted"
	default:
		direction = "evenly contested"
	}

	strength := "weakly"
	switch abs := math.Abs(score); {
	case abs >= 0.7:
		strength = "strongly"
	case abs >= 0.3:
		strength = "moderately"
	}
	if score == 0 {
		return fmt.Sprintf("The %s role is %s across %d source(s) (confidence %.2f).",
			inf.RoleType, direction, sources, inf.Confidence)
	}
	return fmt.Sprintf("The %s role is %s %s (score %.2f) across %d source(s) (confidence %.2f).",
		inf.RoleType, strength, direction, score, sources, inf.Confidence)
}
