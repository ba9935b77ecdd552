package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Harshitk-cp/medgraph/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultModelVersion    = "v1"
	DefaultResolverTimeout = 5 * time.Second
)

var (
	ErrEntityNotFound  = errors.New("entity not found")
	ErrRoleNotFound    = errors.New("role not found")
	ErrResolverTimeout = errors.New("revision resolver timed out")
)

// InferenceService answers entity inference queries through the computed
// relation cache.
type InferenceService struct {
	revisions  domain.RevisionStore
	cache      *ComputedRelationCache
	aggregator *Aggregator
	logger     *zap.Logger

	modelVersion    string
	resolverTimeout time.Duration
}

func NewInferenceService(rs domain.RevisionStore, cache *ComputedRelationCache, agg *Aggregator, logger *zap.Logger) *InferenceService {
	return &InferenceService{
		revisions:       rs,
		cache:           cache,
		aggregator:      agg,
		logger:          logger,
		modelVersion:    DefaultModelVersion,
		resolverTimeout: DefaultResolverTimeout,
	}
}

func (s *InferenceService) SetModelVersion(v string) {
	if v != "" {
		s.modelVersion = v
	}
}

func (s *InferenceService) SetResolverTimeout(d time.Duration) {
	if d > 0 {
		s.resolverTimeout = d
	}
}

func (s *InferenceService) ModelVersion() string {
	return s.modelVersion
}

// EntityInferences returns the per-role aggregate for the entity under the
// scope filter, serving from cache when possible.
func (s *InferenceService) EntityInferences(ctx context.Context, entityID uuid.UUID, scope domain.ScopeFilter) (*domain.EntityInference, error) {
	if err := s.requireEntity(ctx, entityID); err != nil {
		return nil, err
	}

	key := domain.CacheKey{
		ScopeHash:    domain.ScopeHash(entityID, scope),
		ModelVersion: s.modelVersion,
	}

	entry, hit, err := s.cache.GetOrCompute(ctx, key, entityID, func(ctx context.Context) (*domain.ComputedRelation, error) {
		inf, err := s.compute(ctx, entityID, scope)
		if err != nil {
			return nil, err
		}
		payload, err := json.Marshal(inf)
		if err != nil {
			return nil, fmt.Errorf("encode inference: %w", err)
		}
		return &domain.ComputedRelation{
			EntityID:    entityID,
			Scope:       scope,
			Payload:     payload,
			Uncertainty: inf.Uncertainty(),
			Inputs:      inf.RelationIDs(),
			ComputedAt:  inf.ComputedAt,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	var inf domain.EntityInference
	if err := json.Unmarshal(entry.Payload, &inf); err != nil {
		return nil, fmt.Errorf("decode cached inference %s: %w", key, err)
	}
	inf.ScopeHash = entry.ScopeHash
	inf.ModelVersion = entry.ModelVersion
	inf.ComputedAt = entry.ComputedAt
	inf.Cached = hit
	return &inf, nil
}

func (s *InferenceService) requireEntity(ctx context.Context, entityID uuid.UUID) error {
	rctx, cancel := context.WithTimeout(ctx, s.resolverTimeout)
	defer cancel()

	ok, err := s.revisions.EntityExists(rctx, entityID)
	if err != nil {
		return resolverError(err)
	}
	if !ok {
		return ErrEntityNotFound
	}
	return nil
}

func (s *InferenceService) compute(ctx context.Context, entityID uuid.UUID, scope domain.ScopeFilter) (*domain.EntityInference, error) {
	rctx, cancel := context.WithTimeout(ctx, s.resolverTimeout)
	defer cancel()

	roleTypes, err := s.revisions.CurrentRoleTypes(rctx, entityID)
	if err != nil {
		return nil, resolverError(err)
	}
	sort.Strings(roleTypes)

	matchesByRole := make([][]domain.Match, len(roleTypes))
	g, gctx := errgroup.WithContext(rctx)
	for i, roleType := range roleTypes {
		g.Go(func() error {
			matches, err := s.revisions.FindCurrentRelations(gctx, entityID, roleType, scope)
			if err != nil {
				return fmt.Errorf("find relations for role %q: %w", roleType, err)
			}
			matchesByRole[i] = matches
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, resolverError(err)
	}

	inf := &domain.EntityInference{
		EntityID:        entityID,
		Scope:           scope,
		ModelVersion:    s.modelVersion,
		ComputedAt:      time.Now().UTC(),
		RelationsByKind: make(map[string][]domain.RelationSummary),
		RoleInferences:  make([]domain.RoleInference, 0, len(roleTypes)),
	}

	for i, roleType := range roleTypes {
		matches := matchesByRole[i]
		inf.RoleInferences = append(inf.RoleInferences, s.aggregator.Aggregate(roleType, matches))

		for _, c := range contributions(matches) {
			m := c.match
			inf.RelationsByKind[m.Relation.Kind] = append(inf.RelationsByKind[m.Relation.Kind], domain.RelationSummary{
				RelationID: m.RelationID,
				SourceID:   m.Source.SourceID,
				RoleType:   roleType,
				Direction:  m.Relation.Direction,
				Confidence: m.Relation.Confidence,
			})
		}
	}

	s.logger.Debug("computed entity inference",
		zap.String("entity_id", entityID.String()),
		zap.Int("roles", len(roleTypes)),
		zap.Int("kinds", len(inf.RelationsByKind)))

	return inf, nil
}

// resolverError marks deadline failures as retryable timeouts.
func resolverError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrResolverTimeout, err)
	}
	return err
}
