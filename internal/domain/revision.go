package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNoCurrentRevision = errors.New("no current revision")
	ErrCurrentOutOfRange = errors.New("current revision index out of range")
)

// Chain is the append-only revision history of a single owner (entity, source
// or relation). Revisions are never mutated; the current one is addressed by
// index rather than by a back-reference from the owner.
type Chain[T any] struct {
	Revisions []T `json:"revisions"`
	Current   int `json:"current"`
}

// NewChain starts a chain whose first revision is current.
func NewChain[T any](first T) Chain[T] {
	return Chain[T]{Revisions: []T{first}, Current: 0}
}

// Append adds rev and makes it the current revision.
func (c *Chain[T]) Append(rev T) {
	c.Revisions = append(c.Revisions, rev)
	c.Current = len(c.Revisions) - 1
}

// Head returns the current revision.
func (c *Chain[T]) Head() (T, error) {
	var zero T
	if err := c.Validate(); err != nil {
		return zero, err
	}
	return c.Revisions[c.Current], nil
}

func (c *Chain[T]) Len() int {
	return len(c.Revisions)
}

// Validate checks that the chain has exactly one current revision.
func (c *Chain[T]) Validate() error {
	if len(c.Revisions) == 0 {
		return ErrNoCurrentRevision
	}
	if c.Current < 0 || c.Current >= len(c.Revisions) {
		return fmt.Errorf("%w: %d of %d", ErrCurrentOutOfRange, c.Current, len(c.Revisions))
	}
	return nil
}
