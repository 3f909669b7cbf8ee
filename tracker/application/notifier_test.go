package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/AzielCF/az-track/pkg/worker"
	"github.com/AzielCF/az-track/tracker/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedDelivery struct {
	url    string
	secret string
}

type fakeSender struct {
	mu         sync.Mutex
	deliveries []recordedDelivery
}

func (f *fakeSender) Deliver(ctx context.Context, url, secret string, payload any) error {
	f.mu.Lock()
	f.deliveries = append(f.deliveries, recordedDelivery{url: url, secret: secret})
	f.mu.Unlock()
	return nil
}

func (f *fakeSender) all() []recordedDelivery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedDelivery(nil), f.deliveries...)
}

type fakeSubRepo struct {
	domain.SubscriptionRepository
	subs []*domain.Subscription
}

func (f *fakeSubRepo) ListByAccount(ctx context.Context, accountID domain.AccountID) ([]*domain.Subscription, error) {
	var out []*domain.Subscription
	for _, sub := range f.subs {
		if sub.AccountID == accountID {
			out = append(out, sub)
		}
	}
	return out, nil
}

func TestNotifier_DeliversOnlyToActiveSubscriptions(t *testing.T) {
	repo := &fakeSubRepo{subs: []*domain.Subscription{
		{ID: "a", AccountID: 1, Destination: "https://a.example.com", Status: domain.SubscriptionActive},
		{ID: "b", AccountID: 1, Destination: "https://b.example.com", Status: domain.SubscriptionPaused},
		{ID: "c", AccountID: 2, Destination: "https://c.example.com", Status: domain.SubscriptionActive},
	}}
	sender := &fakeSender{}
	stats := &Stats{}

	pool := worker.NewPool(2, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)
	defer pool.Stop()

	notifier := NewWebhookNotifier(repo, sender, pool, stats)
	notifier.Notify(ctx, domain.TransitionEvent{
		AccountID: 1,
		From:      obs(1, domain.StatusOffline, 0),
		To:        obs(1, domain.StatusOnline, 0),
		At:        time.Now(),
	})

	require.Eventually(t, func() bool {
		return len(sender.all()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	deliveries := sender.all()
	assert.Equal(t, "https://a.example.com", deliveries[0].url)
	assert.Equal(t, int64(1), stats.Snapshot().Notified)
}

func TestNotifier_NoSubscribersIsANoOp(t *testing.T) {
	sender := &fakeSender{}
	pool := worker.NewPool(1, 5)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)
	defer pool.Stop()

	notifier := NewWebhookNotifier(&fakeSubRepo{}, sender, pool, &Stats{})
	notifier.Notify(ctx, domain.TransitionEvent{AccountID: 99})

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, sender.all())
}
