package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Harshitk-cp/medgraph/internal/domain"
	"github.com/google/uuid"
)

type memEntity struct {
	entity domain.Entity
	chain  domain.Chain[domain.EntityRevision]
}

type memSource struct {
	source domain.Source
	chain  domain.Chain[domain.SourceRevision]
}

type memRelation struct {
	relation domain.Relation
	chain    domain.Chain[domain.RelationRevision]
}

// MemoryRevisionStore keeps revision chains in process memory. It backs
// tests and the STORE_BACKEND=memory mode.
type MemoryRevisionStore struct {
	mu        sync.RWMutex
	entities  map[uuid.UUID]*memEntity
	sources   map[uuid.UUID]*memSource
	relations map[uuid.UUID]*memRelation
	computed  domain.ComputedRelationStore
	now       func() time.Time
}

// NewMemoryRevisionStore creates an empty store. When computed is non-nil,
// relation and source writes delete the computed relations they affect.
func NewMemoryRevisionStore(computed domain.ComputedRelationStore) *MemoryRevisionStore {
	return &MemoryRevisionStore{
		entities:  make(map[uuid.UUID]*memEntity),
		sources:   make(map[uuid.UUID]*memSource),
		relations: make(map[uuid.UUID]*memRelation),
		computed:  computed,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the timestamp source.
func (s *MemoryRevisionStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryRevisionStore) FindCurrentRelations(_ context.Context, entityID uuid.UUID, roleType string, scope domain.ScopeFilter) ([]domain.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []domain.Match
	for _, rel := range s.relations {
		rev, err := rel.chain.Head()
		if err != nil {
			return nil, err
		}
		role, ok := rev.RoleFor(entityID, roleType)
		if !ok || !scope.Matches(rev.Scope) {
			continue
		}
		src, ok := s.sources[rel.relation.SourceID]
		if !ok {
			continue
		}
		srcRev, err := src.chain.Head()
		if err != nil {
			return nil, err
		}

		rev.Roles = domain.CopyRoles(rev.Roles)
		srcRev.Authors = append([]string(nil), srcRev.Authors...)
		matches = append(matches, domain.Match{
			RelationID:        rel.relation.ID,
			RelationCreatedAt: rel.relation.CreatedAt,
			Source:            srcRev,
			Relation:          rev,
			Role:              domain.CopyRoles([]domain.Role{role})[0],
		})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Less(matches[j]) })
	return matches, nil
}

func (s *MemoryRevisionStore) CurrentRoleTypes(_ context.Context, entityID uuid.UUID) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, rel := range s.relations {
		rev, err := rel.chain.Head()
		if err != nil {
			return nil, err
		}
		for _, role := range rev.Roles {
			if role.EntityID == entityID {
				seen[role.RoleType] = struct{}{}
			}
		}
	}

	roleTypes := make([]string, 0, len(seen))
	for rt := range seen {
		roleTypes = append(roleTypes, rt)
	}
	sort.Strings(roleTypes)
	return roleTypes, nil
}

func (s *MemoryRevisionStore) RoleTypeUsed(_ context.Context, entityID uuid.UUID, roleType string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rel := range s.relations {
		for _, rev := range rel.chain.Revisions {
			if _, ok := rev.RoleFor(entityID, roleType); ok {
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *MemoryRevisionStore) EntityExists(_ context.Context, entityID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entities[entityID]
	return ok, nil
}

func (s *MemoryRevisionStore) RelationIDsBySource(_ context.Context, sourceID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.relationIDsBySourceLocked(sourceID), nil
}

func (s *MemoryRevisionStore) relationIDsBySourceLocked(sourceID uuid.UUID) []uuid.UUID {
	var rels []domain.Relation
	for _, rel := range s.relations {
		if rel.relation.SourceID == sourceID {
			rels = append(rels, rel.relation)
		}
	}
	sort.Slice(rels, func(i, j int) bool {
		if !rels[i].CreatedAt.Equal(rels[j].CreatedAt) {
			return rels[i].CreatedAt.Before(rels[j].CreatedAt)
		}
		return rels[i].ID.String() < rels[j].ID.String()
	})

	ids := make([]uuid.UUID, len(rels))
	for i, r := range rels {
		ids[i] = r.ID
	}
	return ids
}

// Revisions returns a copy of the relation's revision chain.
func (s *MemoryRevisionStore) Revisions(_ context.Context, relationID uuid.UUID) (domain.Chain[domain.RelationRevision], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rel, ok := s.relations[relationID]
	if !ok {
		return domain.Chain[domain.RelationRevision]{}, ErrNotFound
	}
	out := domain.Chain[domain.RelationRevision]{
		Revisions: make([]domain.RelationRevision, len(rel.chain.Revisions)),
		Current:   rel.chain.Current,
	}
	for i, rev := range rel.chain.Revisions {
		rev.Roles = domain.CopyRoles(rev.Roles)
		out.Revisions[i] = rev
	}
	return out, nil
}

func (s *MemoryRevisionStore) CreateEntity(_ context.Context, rev *domain.EntityRevision) (*domain.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e := domain.Entity{ID: uuid.New(), CreatedAt: now}
	rev.ID, rev.EntityID, rev.CreatedAt = uuid.New(), e.ID, now
	s.entities[e.ID] = &memEntity{entity: e, chain: domain.NewChain(*rev)}
	return &e, nil
}

func (s *MemoryRevisionStore) ReviseEntity(_ context.Context, entityID uuid.UUID, rev *domain.EntityRevision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entities[entityID]
	if !ok {
		return ErrNotFound
	}
	rev.ID, rev.EntityID, rev.CreatedAt = uuid.New(), entityID, s.now()
	e.chain.Append(*rev)
	return nil
}

// DeleteEntity removes the entity and every relation that ever gave it a role.
func (s *MemoryRevisionStore) DeleteEntity(ctx context.Context, entityID uuid.UUID) error {
	s.mu.Lock()
	if _, ok := s.entities[entityID]; !ok {
		s.mu.Unlock()
		return ErrNotFound
	}

	var doomed []uuid.UUID
	affected := map[uuid.UUID]struct{}{entityID: {}}
	for id, rel := range s.relations {
		if !relationInvolves(rel, entityID) {
			continue
		}
		doomed = append(doomed, id)
		for e := range roleEntities(rel) {
			affected[e] = struct{}{}
		}
	}
	for _, id := range doomed {
		delete(s.relations, id)
	}
	delete(s.entities, entityID)
	s.mu.Unlock()

	return s.invalidate(ctx, doomed, affected)
}

func (s *MemoryRevisionStore) CreateSource(_ context.Context, rev *domain.SourceRevision) (*domain.Source, error) {
	if err := domain.ValidateSourceRevision(rev); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	src := domain.Source{ID: uuid.New(), CreatedAt: now}
	rev.ID, rev.SourceID, rev.CreatedAt = uuid.New(), src.ID, now
	stored := *rev
	stored.Authors = append([]string(nil), rev.Authors...)
	s.sources[src.ID] = &memSource{source: src, chain: domain.NewChain(stored)}
	return &src, nil
}

func (s *MemoryRevisionStore) ReviseSource(ctx context.Context, sourceID uuid.UUID, rev *domain.SourceRevision) error {
	if err := domain.ValidateSourceRevision(rev); err != nil {
		return err
	}

	s.mu.Lock()
	src, ok := s.sources[sourceID]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	rev.ID, rev.SourceID, rev.CreatedAt = uuid.New(), sourceID, s.now()
	stored := *rev
	stored.Authors = append([]string(nil), rev.Authors...)
	src.chain.Append(stored)

	relationIDs := s.relationIDsBySourceLocked(sourceID)
	affected := make(map[uuid.UUID]struct{})
	for _, id := range relationIDs {
		for e := range roleEntities(s.relations[id]) {
			affected[e] = struct{}{}
		}
	}
	s.mu.Unlock()

	return s.invalidate(ctx, relationIDs, affected)
}

func (s *MemoryRevisionStore) CreateRelation(ctx context.Context, sourceID uuid.UUID, rev *domain.RelationRevision) (*domain.Relation, error) {
	if err := domain.ValidateRelationRevision(rev); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if _, ok := s.sources[sourceID]; !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	for _, role := range rev.Roles {
		if _, ok := s.entities[role.EntityID]; !ok {
			s.mu.Unlock()
			return nil, ErrNotFound
		}
	}

	now := s.now()
	rel := domain.Relation{ID: uuid.New(), SourceID: sourceID, CreatedAt: now}
	rev.ID, rev.RelationID, rev.CreatedAt = uuid.New(), rel.ID, now
	stored := *rev
	stored.Roles = domain.CopyRoles(rev.Roles)
	mr := &memRelation{relation: rel, chain: domain.NewChain(stored)}
	s.relations[rel.ID] = mr
	affected := roleEntities(mr)
	s.mu.Unlock()

	if err := s.invalidate(ctx, []uuid.UUID{rel.ID}, affected); err != nil {
		return nil, err
	}
	return &rel, nil
}

// ReviseRelation appends a revision. The source is fixed at creation and
// cannot change here; a nil rev.Roles copies the previous roles.
func (s *MemoryRevisionStore) ReviseRelation(ctx context.Context, relationID uuid.UUID, rev *domain.RelationRevision) error {
	if err := domain.ValidateRelationRevision(rev); err != nil {
		return err
	}

	s.mu.Lock()
	rel, ok := s.relations[relationID]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	prev, err := rel.chain.Head()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	for _, role := range rev.Roles {
		if _, ok := s.entities[role.EntityID]; !ok {
			s.mu.Unlock()
			return ErrNotFound
		}
	}

	if rev.Roles == nil {
		rev.Roles = domain.CopyRoles(prev.Roles)
	}
	rev.ID, rev.RelationID, rev.CreatedAt = uuid.New(), relationID, s.now()
	stored := *rev
	stored.Roles = domain.CopyRoles(rev.Roles)
	rel.chain.Append(stored)
	affected := roleEntities(rel)
	s.mu.Unlock()

	return s.invalidate(ctx, []uuid.UUID{relationID}, affected)
}

func (s *MemoryRevisionStore) DeleteRelation(ctx context.Context, relationID uuid.UUID) error {
	s.mu.Lock()
	rel, ok := s.relations[relationID]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	affected := roleEntities(rel)
	delete(s.relations, relationID)
	s.mu.Unlock()

	return s.invalidate(ctx, []uuid.UUID{relationID}, affected)
}

func (s *MemoryRevisionStore) invalidate(ctx context.Context, relationIDs []uuid.UUID, entities map[uuid.UUID]struct{}) error {
	if s.computed == nil {
		return nil
	}
	for _, id := range relationIDs {
		if _, err := s.computed.DeleteByRelation(ctx, id); err != nil {
			return err
		}
	}
	for id := range entities {
		if _, err := s.computed.DeleteByEntity(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// roleEntities collects every entity bound by any revision of rel.
func roleEntities(rel *memRelation) map[uuid.UUID]struct{} {
	out := make(map[uuid.UUID]struct{})
	for _, rev := range rel.chain.Revisions {
		for _, role := range rev.Roles {
			out[role.EntityID] = struct{}{}
		}
	}
	return out
}

func relationInvolves(rel *memRelation, entityID uuid.UUID) bool {
	_, ok := roleEntities(rel)[entityID]
	return ok
}

// MemoryComputedRelationStore is the in-process ComputedRelationStore.
// Values are copied on the way in and out.
type MemoryComputedRelationStore struct {
	mu     sync.RWMutex
	rows   map[domain.CacheKey]*domain.ComputedRelation
	epochs map[uuid.UUID]int64
}

func NewMemoryComputedRelationStore() *MemoryComputedRelationStore {
	return &MemoryComputedRelationStore{
		rows:   make(map[domain.CacheKey]*domain.ComputedRelation),
		epochs: make(map[uuid.UUID]int64),
	}
}

func (s *MemoryComputedRelationStore) Get(_ context.Context, key domain.CacheKey) (*domain.ComputedRelation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.rows[key]
	if !ok {
		return nil, ErrNotFound
	}
	return copyComputed(c), nil
}

func (s *MemoryComputedRelationStore) Epoch(_ context.Context, entityID uuid.UUID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epochs[entityID], nil
}

func (s *MemoryComputedRelationStore) Put(_ context.Context, c *domain.ComputedRelation, epoch int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.epochs[c.EntityID] != epoch {
		return fmt.Errorf("%w: entity %s at %d, computed at %d", ErrStaleEpoch, c.EntityID, s.epochs[c.EntityID], epoch)
	}
	s.rows[c.Key()] = copyComputed(c)
	return nil
}

func (s *MemoryComputedRelationStore) DeleteByKey(_ context.Context, key domain.CacheKey) error {
	s.deleteWhere(func(c *domain.ComputedRelation) bool { return c.Key() == key })
	return nil
}

func (s *MemoryComputedRelationStore) DeleteByScopeHash(_ context.Context, scopeHash string) (int64, error) {
	return s.deleteWhere(func(c *domain.ComputedRelation) bool { return c.ScopeHash == scopeHash }), nil
}

func (s *MemoryComputedRelationStore) DeleteByRelation(_ context.Context, relationID uuid.UUID) (int64, error) {
	return s.deleteWhere(func(c *domain.ComputedRelation) bool {
		if c.RelationID == relationID {
			return true
		}
		for _, in := range c.Inputs {
			if in == relationID {
				return true
			}
		}
		return false
	}), nil
}

// DeleteByEntity advances the entity's epoch even when nothing is cached, so
// a computation already running for it cannot store its result.
func (s *MemoryComputedRelationStore) DeleteByEntity(_ context.Context, entityID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.epochs[entityID]++
	return s.deleteLocked(func(c *domain.ComputedRelation) bool { return c.EntityID == entityID }), nil
}

func (s *MemoryComputedRelationStore) DeleteStaleVersions(_ context.Context, currentVersion string) (int64, error) {
	return s.deleteWhere(func(c *domain.ComputedRelation) bool { return c.ModelVersion != currentVersion }), nil
}

func (s *MemoryComputedRelationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

func (s *MemoryComputedRelationStore) deleteWhere(match func(*domain.ComputedRelation) bool) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(match)
}

// deleteLocked removes matching rows and advances the epoch of each entity
// that lost one.
func (s *MemoryComputedRelationStore) deleteLocked(match func(*domain.ComputedRelation) bool) int64 {
	var n int64
	bumped := make(map[uuid.UUID]bool)
	for k, c := range s.rows {
		if !match(c) {
			continue
		}
		delete(s.rows, k)
		n++
		if !bumped[c.EntityID] {
			s.epochs[c.EntityID]++
			bumped[c.EntityID] = true
		}
	}
	return n
}

func copyComputed(c *domain.ComputedRelation) *domain.ComputedRelation {
	out := *c
	out.Payload = append([]byte(nil), c.Payload...)
	out.Inputs = append([]uuid.UUID(nil), c.Inputs...)
	if c.Uncertainty != nil {
		u := *c.Uncertainty
		out.Uncertainty = &u
	}
	if c.Scope != nil {
		out.Scope = make(domain.ScopeFilter, len(c.Scope))
		for k, v := range c.Scope {
			out.Scope[k] = v
		}
	}
	return &out
}
