package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type InvalidationKind string

const (
	InvalidateRelation InvalidationKind = "relation"
	InvalidateSource   InvalidationKind = "source"
	InvalidateEntity   InvalidationKind = "entity"
	InvalidateScope    InvalidationKind = "scope"
)

// InvalidationEvent is published when a relation, a source, an entity or a
// whole scope hash must stop being served from cache.
type InvalidationEvent struct {
	Kind      InvalidationKind
	ID        uuid.UUID
	ScopeHash string
}

// Payload renders the event as "<kind>:<id or hash>".
func (e InvalidationEvent) Payload() string {
	if e.Kind == InvalidateScope {
		return string(e.Kind) + ":" + e.ScopeHash
	}
	return string(e.Kind) + ":" + e.ID.String()
}

// ParseInvalidationEvent parses a notification payload. A bare UUID is read
// as a relation id.
func ParseInvalidationEvent(payload string) (InvalidationEvent, error) {
	kind, value, found := strings.Cut(strings.TrimSpace(payload), ":")
	if !found {
		id, err := uuid.Parse(kind)
		if err != nil {
			return InvalidationEvent{}, fmt.Errorf("invalid invalidation payload %q: %w", payload, err)
		}
		return InvalidationEvent{Kind: InvalidateRelation, ID: id}, nil
	}

	switch InvalidationKind(kind) {
	case InvalidateRelation, InvalidateSource, InvalidateEntity:
		id, err := uuid.Parse(value)
		if err != nil {
			return InvalidationEvent{}, fmt.Errorf("invalid %s id %q: %w", kind, value, err)
		}
		return InvalidationEvent{Kind: InvalidationKind(kind), ID: id}, nil
	case InvalidateScope:
		if len(value) != 64 {
			return InvalidationEvent{}, fmt.Errorf("invalid scope hash %q", value)
		}
		return InvalidationEvent{Kind: InvalidateScope, ScopeHash: strings.ToLower(value)}, nil
	}
	return InvalidationEvent{}, fmt.Errorf("unknown invalidation kind %q", kind)
}
