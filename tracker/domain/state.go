package domain

import (
	"context"
	"time"
)

// TrackedState is the durable record of the last presence reported for a
// tracked account. One row exists per actively subscribed account.
type TrackedState struct {
	AccountID      AccountID        `json:"account_id"`
	LastReported   PresenceSnapshot `json:"last_reported"`
	LastReportedAt time.Time        `json:"last_reported_at"`
}

// TrackedStateStore is the durability boundary of the tracker. CompareAndSet
// is the only mutation path for existing rows: a transition commits only when
// the caller's view of the last reported snapshot still matches the stored
// one, so concurrent lookups for the same account yield at most one winner.
type TrackedStateStore interface {
	// Read returns the state for an account, or (nil, nil) when none exists.
	Read(ctx context.Context, id AccountID) (*TrackedState, error)

	// All returns every tracked state, used to rebuild the scheduler's
	// working set on startup.
	All(ctx context.Context) ([]*TrackedState, error)

	// Create inserts the first observation for an account. Returns false
	// (without error) when a row already exists, i.e. a concurrent creator won.
	Create(ctx context.Context, snapshot PresenceSnapshot) (bool, error)

	// CompareAndSet replaces the stored snapshot only if the current value
	// matches expected. Returns true when the swap was applied.
	CompareAndSet(ctx context.Context, id AccountID, expected, next PresenceSnapshot) (bool, error)

	// Delete reclaims the row once the last subscription for the account
	// is removed.
	Delete(ctx context.Context, id AccountID) error
}
