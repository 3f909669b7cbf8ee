package application

import (
	"context"
	"fmt"
	"strings"

	domainTracker "github.com/AzielCF/az-track/domains/tracker"
	"github.com/AzielCF/az-track/pkg/crypto"
	"github.com/AzielCF/az-track/tracker/domain"
	"github.com/AzielCF/az-track/validations"
	"github.com/sirupsen/logrus"
)

// TrackerService is the subscription-facing usecase. It owns the coupling
// between the subscription table and the polling set: an account enters the
// set with its first active subscription and leaves, with its durable state
// and cache entry reclaimed, when its last one is removed.
type TrackerService struct {
	subs      domain.SubscriptionRepository
	states    domain.TrackedStateStore
	cache     domain.PresenceCache
	scheduler *Scheduler
}

func NewTrackerService(
	subs domain.SubscriptionRepository,
	states domain.TrackedStateStore,
	cache domain.PresenceCache,
	scheduler *Scheduler,
) domainTracker.ITrackerUsecase {
	return &TrackerService{
		subs:      subs,
		states:    states,
		cache:     cache,
		scheduler: scheduler,
	}
}

func (s *TrackerService) Subscribe(ctx context.Context, request domainTracker.SubscribeRequest) (*domain.Subscription, error) {
	if err := validations.ValidateSubscribe(ctx, request); err != nil {
		return nil, err
	}

	secret := request.Secret
	if secret != "" {
		encrypted, err := crypto.Encrypt(secret)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt secret: %w", err)
		}
		secret = encrypted
	}

	sub := &domain.Subscription{
		AccountID:   domain.AccountID(request.AccountID),
		Destination: strings.TrimSpace(request.Destination),
		Secret:      secret,
		Status:      domain.SubscriptionActive,
	}
	if err := s.subs.Create(ctx, sub); err != nil {
		return nil, err
	}

	// First active subscription for this account starts its tracking.
	s.scheduler.Track(sub.AccountID)
	logrus.Infof("[TRACKER] Subscription %s created for account %d -> %s", sub.ID, sub.AccountID, sub.Destination)
	return sub, nil
}

func (s *TrackerService) Unsubscribe(ctx context.Context, subscriptionID string) error {
	removed, err := s.subs.Delete(ctx, subscriptionID)
	if err != nil {
		return err
	}

	remaining, err := s.subs.CountActive(ctx, removed.AccountID)
	if err != nil {
		return fmt.Errorf("failed to count remaining subscriptions: %w", err)
	}
	if remaining > 0 {
		return nil
	}

	// Last subscription gone: stop polling and reclaim the account's state so
	// a future re-subscribe starts from a clean slate.
	s.scheduler.Untrack(removed.AccountID)
	if err := s.states.Delete(ctx, removed.AccountID); err != nil {
		logrus.WithError(err).Errorf("[TRACKER] Failed to reclaim state for account %d", removed.AccountID)
	}
	if err := s.cache.Delete(ctx, removed.AccountID); err != nil {
		logrus.WithError(err).Warnf("[TRACKER] Failed to evict cache for account %d", removed.AccountID)
	}
	logrus.Infof("[TRACKER] Account %d untracked after last subscription removed", removed.AccountID)
	return nil
}

func (s *TrackerService) GetSubscription(ctx context.Context, subscriptionID string) (*domain.Subscription, error) {
	return s.subs.GetByID(ctx, subscriptionID)
}

func (s *TrackerService) ListSubscriptions(ctx context.Context, accountID domain.AccountID) ([]*domain.Subscription, error) {
	return s.subs.ListByAccount(ctx, accountID)
}

func (s *TrackerService) ListAllSubscriptions(ctx context.Context) ([]*domain.Subscription, error) {
	return s.subs.ListAll(ctx)
}

func (s *TrackerService) TrackedAccounts(ctx context.Context) ([]domainTracker.TrackedAccountInfo, error) {
	ids := s.scheduler.Tracked()
	infos := make([]domainTracker.TrackedAccountInfo, 0, len(ids))
	for _, id := range ids {
		info := domainTracker.TrackedAccountInfo{AccountID: id}
		state, err := s.states.Read(ctx, id)
		if err != nil {
			return nil, err
		}
		if state != nil {
			snap := state.LastReported
			info.LastReported = &snap
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Bootstrap rebuilds the polling set from the subscription table on startup.
// Durable states survive restarts, so the first post-restart transition for
// each account is detected against its pre-restart presence.
func (s *TrackerService) Bootstrap(ctx context.Context) error {
	accounts, err := s.subs.ActiveAccounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to load active accounts: %w", err)
	}
	for _, id := range accounts {
		s.scheduler.Track(id)
	}
	logrus.Infof("[TRACKER] Bootstrapped %d tracked account(s)", len(accounts))
	return nil
}
