package service

import (
	"math"
	"sort"

	"github.com/Harshitk-cp/medgraph/internal/domain"
)

const (
	// DefaultExpectedEvidenceUnit is the evidence weight treated as full
	// coverage: three high-trust (0.9), high-confidence (0.9) sources in
	// agreement.
	DefaultExpectedEvidenceUnit = 3 * 0.9 * 0.9

	// MaxInferenceConfidence caps confidence below 1; evidence is finite.
	MaxInferenceConfidence = 0.99
)

// contribution is the weighted evidence one match adds to an aggregate.
type contribution struct {
	match      domain.Match
	roleWeight float64
	weight     float64
	signed     float64
}

// Aggregator turns matching relation revisions into a RoleInference.
// It holds no mutable state and is safe for concurrent use.
type Aggregator struct {
	ExpectedEvidenceUnit float64
}

func NewAggregator(expectedEvidenceUnit float64) *Aggregator {
	if expectedEvidenceUnit <= 0 {
		expectedEvidenceUnit = DefaultExpectedEvidenceUnit
	}
	return &Aggregator{ExpectedEvidenceUnit: expectedEvidenceUnit}
}

// Aggregate computes score, coverage, disagreement and confidence for one
// role. matches are sorted internally so summation order does not depend on
// the order the resolver delivered them in.
func (a *Aggregator) Aggregate(roleType string, matches []domain.Match) domain.RoleInference {
	_, inf := a.aggregate(roleType, matches)
	return inf
}

func (a *Aggregator) aggregate(roleType string, matches []domain.Match) ([]contribution, domain.RoleInference) {
	inf := domain.RoleInference{RoleType: roleType, RelationCount: len(matches)}
	if len(matches) == 0 {
		return nil, inf
	}

	contribs := contributions(matches)

	var totalWeight, signedSum float64
	for _, c := range contribs {
		totalWeight += c.weight
		signedSum += c.signed
	}
	inf.TotalWeight = totalWeight

	if totalWeight == 0 {
		return contribs, inf
	}

	score := clamp(signedSum/totalWeight, -1, 1)
	inf.Score = &score

	inf.Coverage = math.Min(1.0, totalWeight/a.expectedUnit())
	inf.Disagreement = clamp(opposingWeight(contribs, score)/totalWeight, 0, 1)
	inf.Confidence = clamp(inf.Coverage*(1-inf.Disagreement), 0, MaxInferenceConfidence)

	return contribs, inf
}

func (a *Aggregator) expectedUnit() float64 {
	if a.ExpectedEvidenceUnit <= 0 {
		return DefaultExpectedEvidenceUnit
	}
	return a.ExpectedEvidenceUnit
}

// contributions sorts matches by relation creation time then id and
// computes w = trust × confidence × |role weight or 1| and s = sign × w.
// A role weight of exactly 0 counts as absent.
func contributions(matches []domain.Match) []contribution {
	sorted := make([]domain.Match, len(matches))
	copy(sorted, matches)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })

	out := make([]contribution, len(sorted))
	for i, m := range sorted {
		roleWeight := 1.0
		if m.Role.Weight != nil && *m.Role.Weight != 0 {
			roleWeight = math.Min(math.Abs(*m.Role.Weight), 1)
		}
		w := clamp(m.Source.TrustLevel, 0, 1) * clamp(m.Relation.Confidence, 0, 1) * roleWeight
		out[i] = contribution{
			match:      m,
			roleWeight: roleWeight,
			weight:     w,
			signed:     m.Relation.Direction.Sign() * w,
		}
	}
	return out
}

// opposingWeight sums the weight of signed contributions whose sign differs
// from the score's. Uncertain contributions have no sign and never oppose.
func opposingWeight(contribs []contribution, score float64) float64 {
	scoreSign := sign(score)
	var opposing float64
	for _, c := range contribs {
		s := sign(c.signed)
		if s != 0 && s != scoreSign {
			opposing += c.weight
		}
	}
	return opposing
}

func sign(x float64) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}

func clamp(x, lo, hi float64) float64 {
	if math.IsNaN(x) {
		return lo
	}
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
