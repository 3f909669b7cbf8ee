package application

import (
	"context"
	"fmt"
	"time"

	"github.com/AzielCF/az-track/tracker/domain"
	"github.com/sirupsen/logrus"
)

// Notifier fans a confirmed transition out to its subscribers. Delivery is
// asynchronous; Notify never blocks on the network.
type Notifier interface {
	Notify(ctx context.Context, event domain.TransitionEvent)
}

// Detector turns raw presence observations into transition events. The store's
// compare-and-set is the arbiter: for any (account, old, new) pair exactly one
// caller commits the swap and emits the event, losers discard theirs. The very
// first observation of an account only seeds the durable state; no event fires
// for it because there is no prior presence to transition from.
type Detector struct {
	store    domain.TrackedStateStore
	notifier Notifier
	stats    *Stats
}

func NewDetector(store domain.TrackedStateStore, notifier Notifier, stats *Stats) *Detector {
	return &Detector{store: store, notifier: notifier, stats: stats}
}

// Process reconciles one observation against the durable state.
func (d *Detector) Process(ctx context.Context, snapshot domain.PresenceSnapshot) error {
	state, err := d.store.Read(ctx, snapshot.AccountID)
	if err != nil {
		return fmt.Errorf("failed to read tracked state: %w", err)
	}

	if state == nil {
		created, err := d.store.Create(ctx, snapshot)
		if err != nil {
			return fmt.Errorf("failed to seed tracked state: %w", err)
		}
		if created {
			logrus.Debugf("[DETECTOR] Seeded account %d as %s", snapshot.AccountID, snapshot.Status)
			return nil
		}
		// Lost the creation race; reconcile against the winner's row.
		state, err = d.store.Read(ctx, snapshot.AccountID)
		if err != nil {
			return fmt.Errorf("failed to re-read tracked state: %w", err)
		}
		if state == nil {
			// Row vanished between Create and Read: the account was untracked.
			return nil
		}
	}

	if state.LastReported.Same(snapshot) {
		return nil
	}

	swapped, err := d.store.CompareAndSet(ctx, snapshot.AccountID, state.LastReported, snapshot)
	if err != nil {
		return fmt.Errorf("failed to commit transition: %w", err)
	}
	if !swapped {
		// Another observation committed first; its event covers this change.
		d.stats.addSuppressed()
		return nil
	}

	d.stats.addTransition()
	event := domain.TransitionEvent{
		AccountID: snapshot.AccountID,
		From:      state.LastReported,
		To:        snapshot,
		At:        time.Now().UTC(),
	}
	logrus.Infof("[DETECTOR] Account %d: %s -> %s", event.AccountID, event.From.Status, event.To.Status)
	d.notifier.Notify(ctx, event)
	return nil
}
