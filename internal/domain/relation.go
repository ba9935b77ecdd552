package domain

import (
	"time"

	"github.com/google/uuid"
)

type Direction string

const (
	DirectionSupports    Direction = "supports"
	DirectionContradicts Direction = "contradicts"
	DirectionUncertain   Direction = "uncertain"
)

func ValidDirection(d string) bool {
	switch Direction(d) {
	case DirectionSupports, DirectionContradicts, DirectionUncertain:
		return true
	}
	return false
}

// Sign maps a direction onto the signed contribution axis.
// Uncertain claims carry weight but no sign.
func (d Direction) Sign() float64 {
	switch d {
	case DirectionSupports:
		return 1
	case DirectionContradicts:
		return -1
	}
	return 0
}

// Relation is the immutable identity of a claim. SourceID is fixed at creation.
type Relation struct {
	ID        uuid.UUID `json:"id"`
	SourceID  uuid.UUID `json:"source_id"`
	CreatedAt time.Time `json:"created_at"`
}

type RelationRevision struct {
	ID         uuid.UUID   `json:"id"`
	RelationID uuid.UUID   `json:"relation_id"`
	Kind       string      `json:"kind"`
	Direction  Direction   `json:"direction"`
	Confidence float64     `json:"confidence"`
	Scope      ScopeFilter `json:"scope,omitempty"`
	Notes      string      `json:"notes,omitempty"`
	Roles      []Role      `json:"roles,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Role binds an entity to a relation revision. Weight and Coverage are only
// set on computed relations.
type Role struct {
	EntityID uuid.UUID `json:"entity_id"`
	RoleType string    `json:"role_type"`
	Weight   *float64  `json:"weight,omitempty"`
	Coverage *float64  `json:"coverage,omitempty"`
}

// CopyRoles duplicates roles for a new relation revision snapshot.
func CopyRoles(roles []Role) []Role {
	if roles == nil {
		return nil
	}
	out := make([]Role, len(roles))
	for i, r := range roles {
		out[i] = Role{EntityID: r.EntityID, RoleType: r.RoleType}
		if r.Weight != nil {
			w := *r.Weight
			out[i].Weight = &w
		}
		if r.Coverage != nil {
			c := *r.Coverage
			out[i].Coverage = &c
		}
	}
	return out
}

// RoleFor returns the role the entity plays in this revision, if any.
func (r RelationRevision) RoleFor(entityID uuid.UUID, roleType string) (Role, bool) {
	for _, role := range r.Roles {
		if role.EntityID == entityID && role.RoleType == roleType {
			return role, true
		}
	}
	return Role{}, false
}
