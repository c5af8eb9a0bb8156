package session

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no live session exists for the key.
	ErrNotFound = errors.New("session: not found")
	// ErrStaleSession is returned by Save when the stored version has moved on
	// since the caller loaded the session. The caller must reload and retry.
	ErrStaleSession = errors.New("session: stale write rejected")
)

// Store is the session persistence contract. Implementations guarantee at
// most one live session per key: concurrent GetOrCreate calls for the same
// key resolve to a single creation winner.
type Store interface {
	// GetOrCreate returns the live session for the key, creating it at the
	// initial node if none exists.
	GetOrCreate(ctx context.Context, key Key) (*Session, error)
	// Get returns the live session or ErrNotFound.
	Get(ctx context.Context, key Key) (*Session, error)
	// Save commits the session if its version still matches the stored one,
	// then bumps the version. Mismatch returns ErrStaleSession.
	Save(ctx context.Context, s *Session) error
	// Touch refreshes LastActivityAt without a version bump.
	Touch(ctx context.Context, key Key) error
	// Expire ends the session and releases its resources.
	Expire(ctx context.Context, key Key) error
	// Reset clears the context and returns the session to the initial node,
	// keeping it alive.
	Reset(ctx context.Context, key Key) (*Session, error)
}
