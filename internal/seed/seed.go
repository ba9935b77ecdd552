// Package seed loads a small demonstration graph: one drug, one outcome and
// two trials that disagree about it.
package seed

import (
	"context"
	"fmt"

	"github.com/Harshitk-cp/medgraph/internal/domain"
	"github.com/google/uuid"
)

// Result lists the ids created by Demo.
type Result struct {
	Drug      uuid.UUID
	Outcome   uuid.UUID
	Trial     uuid.UUID
	Cohort    uuid.UUID
	Supports  uuid.UUID
	Disagrees uuid.UUID
}

// Demo writes the demonstration graph through w. Querying the drug's
// treatment role without a scope gives a score of about 0.41; scoping to
// {"population":"adults"} leaves only the supporting trial.
func Demo(ctx context.Context, w domain.RevisionWriter) (*Result, error) {
	res := &Result{}

	drug, err := w.CreateEntity(ctx, &domain.EntityRevision{
		Slug:       "metformin",
		Summary:    "First-line oral therapy for type 2 diabetes.",
		UICategory: "drug",
	})
	if err != nil {
		return nil, fmt.Errorf("create drug: %w", err)
	}
	res.Drug = drug.ID

	outcome, err := w.CreateEntity(ctx, &domain.EntityRevision{
		Slug:       "hba1c-reduction",
		Summary:    "Reduction of glycated haemoglobin.",
		UICategory: "outcome",
	})
	if err != nil {
		return nil, fmt.Errorf("create outcome: %w", err)
	}
	res.Outcome = outcome.ID

	trialYear, cohortYear := 2019, 2021
	trial, err := w.CreateSource(ctx, &domain.SourceRevision{
		Title:      "Randomised trial of metformin monotherapy",
		Authors:    []string{"A. Okafor", "M. Lindqvist"},
		Year:       &trialYear,
		Origin:     "journal",
		URL:        "https://example.org/trials/metformin-rct",
		TrustLevel: 0.9,
	})
	if err != nil {
		return nil, fmt.Errorf("create trial source: %w", err)
	}
	res.Trial = trial.ID

	cohort, err := w.CreateSource(ctx, &domain.SourceRevision{
		Title:      "Retrospective paediatric cohort",
		Authors:    []string{"J. Moreau"},
		Year:       &cohortYear,
		Origin:     "registry",
		TrustLevel: 0.5,
	})
	if err != nil {
		return nil, fmt.Errorf("create cohort source: %w", err)
	}
	res.Cohort = cohort.ID

	one := 1.0
	roles := func() []domain.Role {
		return []domain.Role{
			{EntityID: drug.ID, RoleType: "treatment", Weight: &one},
			{EntityID: outcome.ID, RoleType: "outcome"},
		}
	}

	supports, err := w.CreateRelation(ctx, trial.ID, &domain.RelationRevision{
		Kind:       "treats",
		Direction:  domain.DirectionSupports,
		Confidence: 0.8,
		Scope:      domain.ScopeFilter{"population": "adults"},
		Roles:      roles(),
	})
	if err != nil {
		return nil, fmt.Errorf("create supporting relation: %w", err)
	}
	res.Supports = supports.ID

	disagrees, err := w.CreateRelation(ctx, cohort.ID, &domain.RelationRevision{
		Kind:       "treats",
		Direction:  domain.DirectionContradicts,
		Confidence: 0.6,
		Scope:      domain.ScopeFilter{"population": "children"},
		Roles:      roles(),
	})
	if err != nil {
		return nil, fmt.Errorf("create contradicting relation: %w", err)
	}
	res.Disagrees = disagrees.ID

	return res, nil
}
