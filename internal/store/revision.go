package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Harshitk-cp/medgraph/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RevisionStore reads and appends entity, source and relation revisions.
type RevisionStore struct {
	db      *pgxpool.Pool
	channel string
}

func NewRevisionStore(db *pgxpool.Pool) *RevisionStore {
	return &RevisionStore{db: db, channel: DefaultInvalidationChannel}
}

// SetInvalidationChannel names the NOTIFY channel writers publish to.
func (s *RevisionStore) SetInvalidationChannel(channel string) {
	if channel != "" {
		s.channel = channel
	}
}

const findCurrentRelationsSQL = `
SELECT r.id, r.created_at,
       sr.id, r.source_id, sr.title, sr.authors, sr.year, sr.origin, sr.url, sr.trust_level, sr.created_at,
       rr.id, rr.kind, rr.direction, rr.confidence, rr.scope, rr.notes, rr.created_at,
       rl.role_type, rl.weight, rl.coverage
FROM relation_role_revisions rl
JOIN relation_revisions rr ON rr.id = rl.relation_revision_id AND rr.is_current
JOIN relations r ON r.id = rr.relation_id
JOIN source_revisions sr ON sr.source_id = r.source_id AND sr.is_current
WHERE rl.entity_id = $1
  AND rl.role_type = $2
  AND ($3::jsonb IS NULL OR rr.scope @> $3::jsonb)
ORDER BY r.created_at, r.id`

func (s *RevisionStore) FindCurrentRelations(ctx context.Context, entityID uuid.UUID, roleType string, scope domain.ScopeFilter) ([]domain.Match, error) {
	rows, err := s.db.Query(ctx, findCurrentRelationsSQL, entityID, roleType, containmentParam(scope))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []domain.Match
	for rows.Next() {
		var m domain.Match
		var scopeJSON []byte
		if err := rows.Scan(
			&m.RelationID, &m.RelationCreatedAt,
			&m.Source.ID, &m.Source.SourceID, &m.Source.Title, &m.Source.Authors, &m.Source.Year,
			&m.Source.Origin, &m.Source.URL, &m.Source.TrustLevel, &m.Source.CreatedAt,
			&m.Relation.ID, &m.Relation.Kind, &m.Relation.Direction, &m.Relation.Confidence,
			&scopeJSON, &m.Relation.Notes, &m.Relation.CreatedAt,
			&m.Role.RoleType, &m.Role.Weight, &m.Role.Coverage,
		); err != nil {
			return nil, err
		}

		m.Relation.RelationID = m.RelationID
		m.Role.EntityID = entityID
		if m.Relation.Scope, err = decodeScope(scopeJSON); err != nil {
			return nil, fmt.Errorf("relation %s: %w", m.RelationID, err)
		}

		// Containment in SQL is only a prefilter; nested values must be equal.
		if !scope.Matches(m.Relation.Scope) {
			continue
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (s *RevisionStore) CurrentRoleTypes(ctx context.Context, entityID uuid.UUID) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT DISTINCT rl.role_type
		 FROM relation_role_revisions rl
		 JOIN relation_revisions rr ON rr.id = rl.relation_revision_id AND rr.is_current
		 WHERE rl.entity_id = $1
		 ORDER BY rl.role_type`,
		entityID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roleTypes []string
	for rows.Next() {
		var rt string
		if err := rows.Scan(&rt); err != nil {
			return nil, err
		}
		roleTypes = append(roleTypes, rt)
	}
	return roleTypes, rows.Err()
}

func (s *RevisionStore) RoleTypeUsed(ctx context.Context, entityID uuid.UUID, roleType string) (bool, error) {
	var used bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (
		     SELECT 1 FROM relation_role_revisions WHERE entity_id = $1 AND role_type = $2
		 )`,
		entityID, roleType,
	).Scan(&used)
	return used, err
}

func (s *RevisionStore) EntityExists(ctx context.Context, entityID uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM entities WHERE id = $1)`,
		entityID,
	).Scan(&exists)
	return exists, err
}

func (s *RevisionStore) RelationIDsBySource(ctx context.Context, sourceID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id FROM relations WHERE source_id = $1 ORDER BY created_at, id`,
		sourceID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetCurrentRelation returns a relation's current revision with its roles.
func (s *RevisionStore) GetCurrentRelation(ctx context.Context, relationID uuid.UUID) (*domain.Relation, *domain.RelationRevision, error) {
	rel := &domain.Relation{ID: relationID}
	rev := &domain.RelationRevision{RelationID: relationID}
	var scopeJSON []byte

	err := s.db.QueryRow(ctx,
		`SELECT r.source_id, r.created_at, rr.id, rr.kind, rr.direction, rr.confidence, rr.scope, rr.notes, rr.created_at
		 FROM relations r
		 JOIN relation_revisions rr ON rr.relation_id = r.id AND rr.is_current
		 WHERE r.id = $1`,
		relationID,
	).Scan(&rel.SourceID, &rel.CreatedAt, &rev.ID, &rev.Kind, &rev.Direction, &rev.Confidence,
		&scopeJSON, &rev.Notes, &rev.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	if rev.Scope, err = decodeScope(scopeJSON); err != nil {
		return nil, nil, err
	}

	rows, err := s.db.Query(ctx,
		`SELECT entity_id, role_type, weight, coverage
		 FROM relation_role_revisions WHERE relation_revision_id = $1
		 ORDER BY role_type, entity_id`,
		rev.ID,
	)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var role domain.Role
		if err := rows.Scan(&role.EntityID, &role.RoleType, &role.Weight, &role.Coverage); err != nil {
			return nil, nil, err
		}
		rev.Roles = append(rev.Roles, role)
	}
	return rel, rev, rows.Err()
}

// containmentParam is the jsonb prefilter argument. Nil and empty filters
// match every scope, including NULL ones, so neither is sent.
func containmentParam(scope domain.ScopeFilter) any {
	if len(scope) == 0 {
		return nil
	}
	return string(scope.JSON())
}

func decodeScope(b []byte) (domain.ScopeFilter, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var scope domain.ScopeFilter
	if err := json.Unmarshal(b, &scope); err != nil {
		return nil, fmt.Errorf("decode scope: %w", err)
	}
	return scope, nil
}

func encodeScope(scope domain.ScopeFilter) any {
	if scope == nil {
		return nil
	}
	return string(scope.JSON())
}
