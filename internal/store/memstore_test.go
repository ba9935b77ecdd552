package store

import (
	"context"
	"testing"
	"time"

	"github.com/Harshitk-cp/medgraph/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memFixture struct {
	store    *MemoryRevisionStore
	computed *MemoryComputedRelationStore
	drug     uuid.UUID
	outcome  uuid.UUID
	source   uuid.UUID
}

func newMemFixture(t *testing.T) *memFixture {
	t.Helper()
	ctx := context.Background()

	computed := NewMemoryComputedRelationStore()
	s := NewMemoryRevisionStore(computed)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	s.SetClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	})

	drug, err := s.CreateEntity(ctx, &domain.EntityRevision{Slug: "drug-x"})
	require.NoError(t, err)
	outcome, err := s.CreateEntity(ctx, &domain.EntityRevision{Slug: "blood-pressure"})
	require.NoError(t, err)
	src, err := s.CreateSource(ctx, &domain.SourceRevision{Title: "Trial A", TrustLevel: 0.9})
	require.NoError(t, err)

	return &memFixture{store: s, computed: computed, drug: drug.ID, outcome: outcome.ID, source: src.ID}
}

func (f *memFixture) relation(t *testing.T, dir domain.Direction, conf float64, scope domain.ScopeFilter) uuid.UUID {
	t.Helper()
	rel, err := f.store.CreateRelation(context.Background(), f.source, &domain.RelationRevision{
		Kind:       "treats",
		Direction:  dir,
		Confidence: conf,
		Scope:      scope,
		Roles: []domain.Role{
			{EntityID: f.drug, RoleType: "treatment"},
			{EntityID: f.outcome, RoleType: "outcome"},
		},
	})
	require.NoError(t, err)
	return rel.ID
}

func TestMemoryRevisionStore_FindCurrentRelations(t *testing.T) {
	ctx := context.Background()
	f := newMemFixture(t)
	first := f.relation(t, domain.DirectionSupports, 0.8, domain.ScopeFilter{"population": "adults"})
	second := f.relation(t, domain.DirectionContradicts, 0.5, domain.ScopeFilter{"population": "children"})

	all, err := f.store.FindCurrentRelations(ctx, f.drug, "treatment", nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, first, all[0].RelationID)
	assert.Equal(t, second, all[1].RelationID)
	assert.Equal(t, "Trial A", all[0].Source.Title)
	assert.Equal(t, "treatment", all[0].Role.RoleType)

	adults, err := f.store.FindCurrentRelations(ctx, f.drug, "treatment", domain.ScopeFilter{"population": "adults"})
	require.NoError(t, err)
	require.Len(t, adults, 1)
	assert.Equal(t, first, adults[0].RelationID)

	none, err := f.store.FindCurrentRelations(ctx, f.drug, "outcome", nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryRevisionStore_ReviseRelationKeepsHistory(t *testing.T) {
	ctx := context.Background()
	f := newMemFixture(t)
	id := f.relation(t, domain.DirectionSupports, 0.8, nil)

	err := f.store.ReviseRelation(ctx, id, &domain.RelationRevision{
		Kind:       "treats",
		Direction:  domain.DirectionContradicts,
		Confidence: 0.4,
	})
	require.NoError(t, err)

	chain, err := f.store.Revisions(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 2, chain.Len())
	assert.Equal(t, 1, chain.Current)
	assert.Equal(t, domain.DirectionSupports, chain.Revisions[0].Direction)

	head, err := chain.Head()
	require.NoError(t, err)
	assert.Equal(t, domain.DirectionContradicts, head.Direction)
	assert.Len(t, head.Roles, 2, "nil roles copy the previous snapshot")

	matches, err := f.store.FindCurrentRelations(ctx, f.drug, "treatment", nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, 0.4, matches[0].Relation.Confidence)
}

func TestMemoryRevisionStore_RoleTypes(t *testing.T) {
	ctx := context.Background()
	f := newMemFixture(t)
	id := f.relation(t, domain.DirectionSupports, 0.8, nil)

	types, err := f.store.CurrentRoleTypes(ctx, f.drug)
	require.NoError(t, err)
	assert.Equal(t, []string{"treatment"}, types)

	err = f.store.ReviseRelation(ctx, id, &domain.RelationRevision{
		Kind:       "treats",
		Direction:  domain.DirectionSupports,
		Confidence: 0.8,
		Roles:      []domain.Role{{EntityID: f.outcome, RoleType: "outcome"}},
	})
	require.NoError(t, err)

	types, err = f.store.CurrentRoleTypes(ctx, f.drug)
	require.NoError(t, err)
	assert.Empty(t, types)

	used, err := f.store.RoleTypeUsed(ctx, f.drug, "treatment")
	require.NoError(t, err)
	assert.True(t, used, "historic revisions still count")

	used, err = f.store.RoleTypeUsed(ctx, f.drug, "comparator")
	require.NoError(t, err)
	assert.False(t, used)
}

func TestMemoryRevisionStore_WritesInvalidateComputed(t *testing.T) {
	ctx := context.Background()
	f := newMemFixture(t)
	id := f.relation(t, domain.DirectionSupports, 0.8, nil)

	put := func() {
		epoch, err := f.computed.Epoch(ctx, f.drug)
		require.NoError(t, err)
		require.NoError(t, f.computed.Put(ctx, &domain.ComputedRelation{
			RelationID:   uuid.New(),
			ScopeHash:    domain.ScopeHash(f.drug, nil),
			ModelVersion: "v1",
			EntityID:     f.drug,
			Payload:      []byte(`{}`),
			Inputs:       []uuid.UUID{id},
		}, epoch))
		require.Equal(t, 1, f.computed.Len())
	}

	put()
	require.NoError(t, f.store.ReviseRelation(ctx, id, &domain.RelationRevision{
		Kind: "treats", Direction: domain.DirectionSupports, Confidence: 0.6,
	}))
	assert.Equal(t, 0, f.computed.Len())

	put()
	require.NoError(t, f.store.ReviseSource(ctx, f.source, &domain.SourceRevision{Title: "Trial A v2", TrustLevel: 0.5}))
	assert.Equal(t, 0, f.computed.Len())

	put()
	f.relation(t, domain.DirectionSupports, 0.3, nil)
	assert.Equal(t, 0, f.computed.Len(), "a new relation on the entity invalidates its entries")

	put()
	require.NoError(t, f.store.DeleteRelation(ctx, id))
	assert.Equal(t, 0, f.computed.Len())
}

func TestMemoryRevisionStore_Errors(t *testing.T) {
	ctx := context.Background()
	f := newMemFixture(t)

	_, err := f.store.CreateRelation(ctx, uuid.New(), &domain.RelationRevision{
		Kind: "treats", Direction: domain.DirectionSupports, Confidence: 0.5,
	})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.store.CreateRelation(ctx, f.source, &domain.RelationRevision{
		Kind: "treats", Direction: "maybe", Confidence: 0.5,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidRevision)

	_, err = f.store.CreateSource(ctx, &domain.SourceRevision{Title: "bad", TrustLevel: 1.5})
	assert.ErrorIs(t, err, domain.ErrInvalidRevision)

	err = f.store.ReviseRelation(ctx, uuid.New(), &domain.RelationRevision{
		Kind: "treats", Direction: domain.DirectionSupports, Confidence: 0.5,
	})
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, f.store.DeleteRelation(ctx, uuid.New()), ErrNotFound)
	assert.ErrorIs(t, f.store.DeleteEntity(ctx, uuid.New()), ErrNotFound)
}

func TestMemoryRevisionStore_DeleteEntity(t *testing.T) {
	ctx := context.Background()
	f := newMemFixture(t)
	f.relation(t, domain.DirectionSupports, 0.8, nil)

	require.NoError(t, f.store.DeleteEntity(ctx, f.drug))

	exists, err := f.store.EntityExists(ctx, f.drug)
	require.NoError(t, err)
	assert.False(t, exists)

	ids, err := f.store.RelationIDsBySource(ctx, f.source)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestMemoryComputedRelationStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryComputedRelationStore()
	input := uuid.New()
	entity := uuid.New()
	u := 0.25

	c := &domain.ComputedRelation{
		RelationID:   uuid.New(),
		ScopeHash:    "abc",
		ModelVersion: "v1",
		EntityID:     entity,
		Payload:      []byte(`{"a":1}`),
		Uncertainty:  &u,
		Inputs:       []uuid.UUID{input},
	}
	require.NoError(t, s.Put(ctx, c, 0))

	got, err := s.Get(ctx, c.Key())
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(got.Payload))
	got.Payload[0] = 'x'
	again, err := s.Get(ctx, c.Key())
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(again.Payload), "returned values are copies")

	_, err = s.Get(ctx, domain.CacheKey{ScopeHash: "abc", ModelVersion: "v2"})
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := s.DeleteByRelation(ctx, input)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	assert.ErrorIs(t, s.Put(ctx, c, 0), ErrStaleEpoch, "deleting an entry advances its entity's epoch")
	require.NoError(t, s.Put(ctx, c, 1))
	n, err = s.DeleteStaleVersions(ctx, "v2")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	require.NoError(t, s.Put(ctx, c, 2))
	n, err = s.DeleteByScopeHash(ctx, "abc")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Equal(t, 0, s.Len())
}

func TestMemoryComputedRelationStore_EpochAdvancesOnWrite(t *testing.T) {
	ctx := context.Background()
	f := newMemFixture(t)
	id := f.relation(t, domain.DirectionSupports, 0.8, nil)

	before, err := f.computed.Epoch(ctx, f.drug)
	require.NoError(t, err)

	// Nothing is cached, the writer still fences off running computations.
	require.NoError(t, f.store.DeleteRelation(ctx, id))
	after, err := f.computed.Epoch(ctx, f.drug)
	require.NoError(t, err)
	assert.Greater(t, after, before)

	c := &domain.ComputedRelation{
		RelationID:   uuid.New(),
		ScopeHash:    domain.ScopeHash(f.drug, nil),
		ModelVersion: "v1",
		EntityID:     f.drug,
		Payload:      []byte(`{}`),
	}
	assert.ErrorIs(t, f.computed.Put(ctx, c, before), ErrStaleEpoch)
	assert.Equal(t, 0, f.computed.Len())
	require.NoError(t, f.computed.Put(ctx, c, after))
	assert.Equal(t, 1, f.computed.Len())
}
