package tracker

import (
	"context"

	"github.com/AzielCF/az-track/tracker/domain"
)

type ITrackerUsecase interface {
	Subscribe(ctx context.Context, request SubscribeRequest) (*domain.Subscription, error)
	Unsubscribe(ctx context.Context, subscriptionID string) error
	GetSubscription(ctx context.Context, subscriptionID string) (*domain.Subscription, error)
	ListSubscriptions(ctx context.Context, accountID domain.AccountID) ([]*domain.Subscription, error)
	ListAllSubscriptions(ctx context.Context) ([]*domain.Subscription, error)
	TrackedAccounts(ctx context.Context) ([]TrackedAccountInfo, error)
	Bootstrap(ctx context.Context) error
}

type SubscribeRequest struct {
	AccountID   int64  `json:"account_id" form:"account_id"`
	Destination string `json:"destination" form:"destination"`
	Secret      string `json:"secret,omitempty" form:"secret"`
}

// TrackedAccountInfo combines the polling-set membership with the last
// durable presence known for the account.
type TrackedAccountInfo struct {
	AccountID    domain.AccountID         `json:"account_id"`
	LastReported *domain.PresenceSnapshot `json:"last_reported,omitempty"`
}
