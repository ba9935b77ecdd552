package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Harshitk-cp/medgraph/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newInferenceService(sc *scenario) (*InferenceService, *ComputedRelationCache) {
	cache := NewComputedRelationCache(sc.computed, zap.NewNop())
	return NewInferenceService(sc.revisions, cache, NewAggregator(0), zap.NewNop()), cache
}

func roleInference(t *testing.T, inf *domain.EntityInference, roleType string) domain.RoleInference {
	t.Helper()
	for _, ri := range inf.RoleInferences {
		if ri.RoleType == roleType {
			return ri
		}
	}
	t.Fatalf("role %q not in inference", roleType)
	return domain.RoleInference{}
}

func TestInferenceService_EntityInferences(t *testing.T) {
	ctx := context.Background()
	sc := newScenario(t)
	svc, _ := newInferenceService(sc)

	inf, err := svc.EntityInferences(ctx, sc.entity, nil)
	require.NoError(t, err)
	assert.False(t, inf.Cached)
	assert.Equal(t, domain.ScopeHash(sc.entity, nil), inf.ScopeHash)
	assert.Equal(t, DefaultModelVersion, inf.ModelVersion)

	ri := roleInference(t, inf, "treatment")
	require.NotNil(t, ri.Score)
	assert.InDelta(t, 0.4118, *ri.Score, 1e-4)
	assert.InDelta(t, 0.2941, ri.Disagreement, 1e-4)
	require.Len(t, inf.RelationsByKind["treats"], 2)
	assert.Equal(t, sc.r1, inf.RelationsByKind["treats"][0].RelationID)

	again, err := svc.EntityInferences(ctx, sc.entity, nil)
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Equal(t, inf.ComputedAt, again.ComputedAt)
}

func TestInferenceService_ScopeFilter(t *testing.T) {
	ctx := context.Background()
	sc := newScenario(t)
	svc, _ := newInferenceService(sc)

	inf, err := svc.EntityInferences(ctx, sc.entity, domain.ScopeFilter{"population": "adults"})
	require.NoError(t, err)

	ri := roleInference(t, inf, "treatment")
	require.NotNil(t, ri.Score)
	assert.Equal(t, 1.0, *ri.Score)
	assert.Zero(t, ri.Disagreement)
	assert.Equal(t, 1, ri.RelationCount)
	assert.NotEqual(t, domain.ScopeHash(sc.entity, nil), inf.ScopeHash)
}

func TestInferenceService_ReflectsRevisions(t *testing.T) {
	ctx := context.Background()
	sc := newScenario(t)
	svc, _ := newInferenceService(sc)

	_, err := svc.EntityInferences(ctx, sc.entity, nil)
	require.NoError(t, err)

	require.NoError(t, sc.revisions.ReviseRelation(ctx, sc.r2, &domain.RelationRevision{
		Kind: "treats", Direction: domain.DirectionSupports, Confidence: 0.6,
		Scope: domain.ScopeFilter{"population": "children"},
	}))

	inf, err := svc.EntityInferences(ctx, sc.entity, nil)
	require.NoError(t, err)
	assert.False(t, inf.Cached, "the write invalidated the cached entry")

	ri := roleInference(t, inf, "treatment")
	require.NotNil(t, ri.Score)
	assert.Equal(t, 1.0, *ri.Score)
}

// racingRevisions runs write once, right after the first relation lookup,
// as a writer landing while an inference is being computed.
type racingRevisions struct {
	domain.RevisionStore
	once  sync.Once
	write func()
}

func (r *racingRevisions) FindCurrentRelations(ctx context.Context, entityID uuid.UUID, roleType string, scope domain.ScopeFilter) ([]domain.Match, error) {
	matches, err := r.RevisionStore.FindCurrentRelations(ctx, entityID, roleType, scope)
	r.once.Do(r.write)
	return matches, err
}

func TestInferenceService_WriteDuringComputeNotCached(t *testing.T) {
	ctx := context.Background()
	sc := newScenario(t)
	revs := &racingRevisions{RevisionStore: sc.revisions, write: func() {
		require.NoError(t, sc.revisions.DeleteRelation(ctx, sc.r2))
	}}
	cache := NewComputedRelationCache(sc.computed, zap.NewNop())
	svc := NewInferenceService(revs, cache, NewAggregator(0), zap.NewNop())

	stale, err := svc.EntityInferences(ctx, sc.entity, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, roleInference(t, stale, "treatment").RelationCount)
	assert.Equal(t, 0, sc.computed.Len(), "a result read before the write is not stored")

	fresh, err := svc.EntityInferences(ctx, sc.entity, nil)
	require.NoError(t, err)
	assert.False(t, fresh.Cached)
	assert.Equal(t, 1, roleInference(t, fresh, "treatment").RelationCount)
}

func TestInferenceService_ModelVersionKeysCache(t *testing.T) {
	ctx := context.Background()
	sc := newScenario(t)
	svc, _ := newInferenceService(sc)

	_, err := svc.EntityInferences(ctx, sc.entity, nil)
	require.NoError(t, err)

	svc.SetModelVersion("v2")
	inf, err := svc.EntityInferences(ctx, sc.entity, nil)
	require.NoError(t, err)
	assert.False(t, inf.Cached)
	assert.Equal(t, "v2", inf.ModelVersion)
	assert.Equal(t, 2, sc.computed.Len())
}

func TestInferenceService_UnknownEntity(t *testing.T) {
	sc := newScenario(t)
	svc, _ := newInferenceService(sc)

	_, err := svc.EntityInferences(context.Background(), uuid.New(), nil)
	assert.ErrorIs(t, err, ErrEntityNotFound)
}

func TestInferenceService_EntityWithoutRelations(t *testing.T) {
	ctx := context.Background()
	sc := newScenario(t)
	svc, _ := newInferenceService(sc)

	lonely, err := sc.revisions.CreateEntity(ctx, &domain.EntityRevision{Slug: "lonely"})
	require.NoError(t, err)

	inf, err := svc.EntityInferences(ctx, lonely.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, inf.RoleInferences)
	assert.Empty(t, inf.RelationsByKind)
}

// slowRevisions blocks every read until the context ends.
type slowRevisions struct {
	domain.RevisionStore
}

func (slowRevisions) CurrentRoleTypes(ctx context.Context, _ uuid.UUID) ([]string, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestInferenceService_ResolverTimeout(t *testing.T) {
	sc := newScenario(t)
	cache := NewComputedRelationCache(sc.computed, zap.NewNop())
	svc := NewInferenceService(slowRevisions{sc.revisions}, cache, NewAggregator(0), zap.NewNop())
	svc.SetResolverTimeout(20 * time.Millisecond)

	_, err := svc.EntityInferences(context.Background(), sc.entity, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrResolverTimeout))
	assert.Equal(t, 0, sc.computed.Len())
}
