package service

import (
	"context"
	"testing"
	"time"

	"github.com/Harshitk-cp/medgraph/internal/domain"
	"github.com/Harshitk-cp/medgraph/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// scenario is entity E with two current relations: R1 from a 0.9-trust
// source supporting it in adults and R2 from a 0.5-trust source
// contradicting it in children.
type scenario struct {
	revisions *store.MemoryRevisionStore
	computed  *store.MemoryComputedRelationStore
	entity    uuid.UUID
	outcome   uuid.UUID
	sourceA   uuid.UUID
	sourceB   uuid.UUID
	r1, r2    uuid.UUID
}

func newScenario(t *testing.T) *scenario {
	t.Helper()
	ctx := context.Background()

	computed := store.NewMemoryComputedRelationStore()
	revisions := store.NewMemoryRevisionStore(computed)
	tick := 0
	revisions.SetClock(func() time.Time {
		tick++
		return baseTime.Add(time.Duration(tick) * time.Second)
	})

	e, err := revisions.CreateEntity(ctx, &domain.EntityRevision{Slug: "drug-e"})
	require.NoError(t, err)
	o, err := revisions.CreateEntity(ctx, &domain.EntityRevision{Slug: "outcome"})
	require.NoError(t, err)
	a, err := revisions.CreateSource(ctx, &domain.SourceRevision{Title: "RCT", Authors: []string{"Ng"}, TrustLevel: 0.9})
	require.NoError(t, err)
	b, err := revisions.CreateSource(ctx, &domain.SourceRevision{Title: "Case series", TrustLevel: 0.5})
	require.NoError(t, err)

	one := 1.0
	r1, err := revisions.CreateRelation(ctx, a.ID, &domain.RelationRevision{
		Kind: "treats", Direction: domain.DirectionSupports, Confidence: 0.8,
		Scope: domain.ScopeFilter{"population": "adults"},
		Roles: []domain.Role{{EntityID: e.ID, RoleType: "treatment", Weight: &one}, {EntityID: o.ID, RoleType: "outcome"}},
	})
	require.NoError(t, err)
	r2, err := revisions.CreateRelation(ctx, b.ID, &domain.RelationRevision{
		Kind: "treats", Direction: domain.DirectionContradicts, Confidence: 0.6,
		Scope: domain.ScopeFilter{"population": "children"},
		Roles: []domain.Role{{EntityID: e.ID, RoleType: "treatment", Weight: &one}, {EntityID: o.ID, RoleType: "outcome"}},
	})
	require.NoError(t, err)

	return &scenario{
		revisions: revisions, computed: computed,
		entity: e.ID, outcome: o.ID, sourceA: a.ID, sourceB: b.ID,
		r1: r1.ID, r2: r2.ID,
	}
}
