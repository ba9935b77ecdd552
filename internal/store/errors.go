package store

import "errors"

var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	// ErrStaleEpoch rejects a computed relation whose entity was invalidated
	// after the computation read its epoch.
	ErrStaleEpoch = errors.New("stale computed relation epoch")
)
