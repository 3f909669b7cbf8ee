package domain

import (
	"context"
	"time"
)

// PresenceCache short-circuits lookups whose last observation is still fresh.
// It is strictly advisory: a miss (or a lost entry) only costs one more
// upstream call, never correctness.
type PresenceCache interface {
	// Get returns the cached snapshot for an account, or (nil, nil) on miss.
	Get(ctx context.Context, id AccountID) (*PresenceSnapshot, error)

	// Set stores a snapshot with the given time-to-live.
	Set(ctx context.Context, snapshot PresenceSnapshot, ttl time.Duration) error

	// Delete drops the entry for an account, if present.
	Delete(ctx context.Context, id AccountID) error
}
