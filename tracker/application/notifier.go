package application

import (
	"context"

	"github.com/AzielCF/az-track/pkg/crypto"
	"github.com/AzielCF/az-track/pkg/webhook"
	"github.com/AzielCF/az-track/pkg/worker"
	"github.com/AzielCF/az-track/tracker/domain"
	"github.com/sirupsen/logrus"
)

// WebhookNotifier fans transition events out to the account's active
// subscriptions. Deliveries are dispatched to the worker pool keyed by
// destination URL, so a slow endpoint only delays its own queue while events
// for it stay in order.
type WebhookNotifier struct {
	subs   domain.SubscriptionRepository
	sender webhook.Sender
	pool   *worker.Pool
	stats  *Stats
}

func NewWebhookNotifier(subs domain.SubscriptionRepository, sender webhook.Sender, pool *worker.Pool, stats *Stats) *WebhookNotifier {
	return &WebhookNotifier{subs: subs, sender: sender, pool: pool, stats: stats}
}

// Notify resolves the subscriber set and enqueues one delivery per active
// subscription. Failures are logged and counted, never propagated: a broken
// destination must not stall the polling pipeline.
func (n *WebhookNotifier) Notify(ctx context.Context, event domain.TransitionEvent) {
	subscriptions, err := n.subs.ListByAccount(ctx, event.AccountID)
	if err != nil {
		logrus.WithError(err).Errorf("[NOTIFIER] Failed to list subscriptions for account %d", event.AccountID)
		return
	}

	for _, sub := range subscriptions {
		if !sub.IsActive() {
			continue
		}

		secret, err := crypto.Decrypt(sub.Secret)
		if err != nil {
			logrus.WithError(err).Errorf("[NOTIFIER] Failed to decrypt secret for subscription %s", sub.ID)
			n.stats.addDeliveryError()
			continue
		}

		destination := sub.Destination
		n.stats.addNotified()
		n.pool.Dispatch(worker.Job{
			Key: destination,
			Handler: func(jobCtx context.Context) error {
				if err := n.sender.Deliver(jobCtx, destination, secret, event); err != nil {
					n.stats.addDeliveryError()
					return err
				}
				return nil
			},
		})
	}
}
