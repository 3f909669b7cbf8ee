package domain

import (
	"context"
	"errors"
	"time"
)

// SubscriptionStatus represents the lifecycle state of a subscription.
type SubscriptionStatus string

const (
	SubscriptionActive SubscriptionStatus = "active"
	SubscriptionPaused SubscriptionStatus = "paused"
)

var (
	ErrSubscriptionNotFound  = errors.New("subscription not found")
	ErrDuplicateSubscription = errors.New("subscription already exists for this account and destination")
)

// Subscription links a tracked account to a notification destination.
// Destination is a webhook URL owned by the chat-platform integration;
// Secret, when set, is used to sign delivered payloads and is stored
// encrypted at rest.
type Subscription struct {
	ID          string             `json:"id"`
	AccountID   AccountID          `json:"account_id"`
	Destination string             `json:"destination"`
	Secret      string             `json:"-"`
	Status      SubscriptionStatus `json:"status"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// IsActive reports whether the subscription should receive events.
func (s *Subscription) IsActive() bool {
	return s.Status == SubscriptionActive
}

// SubscriptionRepository persists subscriptions. The core only reads the
// active set; rows are created and removed through the REST boundary.
type SubscriptionRepository interface {
	InitSchema(ctx context.Context) error
	Create(ctx context.Context, sub *Subscription) error
	GetByID(ctx context.Context, id string) (*Subscription, error)
	// Delete removes a subscription and returns the removed row so callers
	// can decide whether the account's tracking should stop.
	Delete(ctx context.Context, id string) (*Subscription, error)
	ListByAccount(ctx context.Context, accountID AccountID) ([]*Subscription, error)
	ListAll(ctx context.Context) ([]*Subscription, error)
	CountActive(ctx context.Context, accountID AccountID) (int64, error)
	// ActiveAccounts returns the distinct accounts having at least one
	// active subscription.
	ActiveAccounts(ctx context.Context) ([]AccountID, error)
}
