package domain

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvalidRevision = errors.New("invalid revision")

func inRange(x, lo, hi float64) bool {
	return !math.IsNaN(x) && x >= lo && x <= hi
}

func ValidateSourceRevision(rev *SourceRevision) error {
	if rev.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidRevision)
	}
	if !inRange(rev.TrustLevel, 0, 1) {
		return fmt.Errorf("%w: trust_level %v outside [0,1]", ErrInvalidRevision, rev.TrustLevel)
	}
	return nil
}

// ValidateRelationRevision checks direction and bounds. Roles may be nil on a
// revision that inherits its predecessor's roles.
func ValidateRelationRevision(rev *RelationRevision) error {
	if rev.Kind == "" {
		return fmt.Errorf("%w: kind is required", ErrInvalidRevision)
	}
	if !ValidDirection(string(rev.Direction)) {
		return fmt.Errorf("%w: direction %q", ErrInvalidRevision, rev.Direction)
	}
	if !inRange(rev.Confidence, 0, 1) {
		return fmt.Errorf("%w: confidence %v outside [0,1]", ErrInvalidRevision, rev.Confidence)
	}
	for _, role := range rev.Roles {
		if role.RoleType == "" {
			return fmt.Errorf("%w: role_type is required", ErrInvalidRevision)
		}
		if role.Weight != nil && !inRange(*role.Weight, -1, 1) {
			return fmt.Errorf("%w: role weight %v outside [-1,1]", ErrInvalidRevision, *role.Weight)
		}
		if role.Coverage != nil && !inRange(*role.Coverage, 0, 1) {
			return fmt.Errorf("%w: role coverage %v outside [0,1]", ErrInvalidRevision, *role.Coverage)
		}
	}
	return nil
}
