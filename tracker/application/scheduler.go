package application

import (
	"context"
	"sync"
	"time"

	"github.com/AzielCF/az-track/core/config"
	"github.com/AzielCF/az-track/infrastructure/roblox"
	"github.com/AzielCF/az-track/tracker/domain"
	"github.com/sirupsen/logrus"
)

// tickInterval is the scheduler's clock resolution. Due accounts are picked
// up within one tick of their deadline.
const tickInterval = 250 * time.Millisecond

// adaptInterval is how often the scheduler re-tunes the runtime knobs from
// observed batch metrics and tracked-set size.
const adaptInterval = 30 * time.Second

// PresenceLookup is the slice of the batching pipeline the scheduler needs.
type PresenceLookup interface {
	Lookup(ctx context.Context, id domain.AccountID) (domain.PresenceSnapshot, error)
	Metrics() roblox.BatchMetrics
}

type accountPhase int

const (
	// phaseIdle: waiting for the next poll deadline.
	phaseIdle accountPhase = iota
	// phaseAwaiting: a lookup is in flight; no new poll is scheduled until
	// it resolves, so one account never has two concurrent lookups.
	phaseAwaiting
	// phaseBackoff: the last lookup failed; dueAt carries the retry deadline.
	phaseBackoff
)

type accountEntry struct {
	phase    accountPhase
	dueAt    time.Time
	backoff  time.Duration
	failures int
	// flagged marks accounts the platform rejects permanently. They stay in
	// the set at the widest interval so recovery (e.g. an unbanned account)
	// is picked up eventually.
	flagged bool
}

// Scheduler drives the polling loop: it decides when each tracked account is
// due, feeds lookups through the batcher, hands results to the detector, and
// adapts poll interval and batch linger to the observed load.
type Scheduler struct {
	lookup   PresenceLookup
	cache    domain.PresenceCache
	detector *Detector
	runtime  *config.RuntimeStore
	cfg      config.TrackerConfig
	stats    *Stats

	// sustainedRate is the upstream budget in accounts per second; the poll
	// interval never drops below what this budget can sustain.
	sustainedRate float64

	mu       sync.Mutex
	accounts map[domain.AccountID]*accountEntry
	inflight sync.WaitGroup
}

func NewScheduler(
	lookup PresenceLookup,
	cache domain.PresenceCache,
	detector *Detector,
	runtime *config.RuntimeStore,
	cfg config.TrackerConfig,
	robloxCfg config.RobloxConfig,
	stats *Stats,
) *Scheduler {
	var sustained float64
	if robloxCfg.RateInterval > 0 {
		sustained = float64(robloxCfg.RateTokens) / robloxCfg.RateInterval.Seconds()
	}
	return &Scheduler{
		lookup:        lookup,
		cache:         cache,
		detector:      detector,
		runtime:       runtime,
		cfg:           cfg,
		stats:         stats,
		sustainedRate: sustained,
		accounts:      make(map[domain.AccountID]*accountEntry),
	}
}

// Track adds an account to the polling set. The first poll is due immediately.
func (s *Scheduler) Track(id domain.AccountID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[id]; exists {
		return
	}
	s.accounts[id] = &accountEntry{phase: phaseIdle, dueAt: time.Now()}
	logrus.Infof("[SCHEDULER] Tracking account %d (%d total)", id, len(s.accounts))
}

// Untrack removes an account from the polling set. An in-flight lookup for it
// resolves normally but its result is discarded.
func (s *Scheduler) Untrack(id domain.AccountID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[id]; !exists {
		return
	}
	delete(s.accounts, id)
	logrus.Infof("[SCHEDULER] Untracked account %d (%d total)", id, len(s.accounts))
}

// Tracked returns the current polling set.
func (s *Scheduler) Tracked() []domain.AccountID {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]domain.AccountID, 0, len(s.accounts))
	for id := range s.accounts {
		ids = append(ids, id)
	}
	return ids
}

// TrackedCount returns the polling set size.
func (s *Scheduler) TrackedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts)
}

// Run drives the loop until ctx is cancelled, then waits for in-flight polls.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	adapt := time.NewTicker(adaptInterval)
	defer adapt.Stop()

	logrus.Info("[SCHEDULER] Polling loop started")
	for {
		select {
		case <-ticker.C:
			s.dispatchDue(ctx)
		case <-adapt.C:
			s.adapt()
		case <-ctx.Done():
			logrus.Info("[SCHEDULER] Stopping, waiting for in-flight polls...")
			s.inflight.Wait()
			return nil
		}
	}
}

// dispatchDue launches a poll for every account whose deadline has passed.
func (s *Scheduler) dispatchDue(ctx context.Context) {
	now := time.Now()
	var due []domain.AccountID

	s.mu.Lock()
	for id, entry := range s.accounts {
		if entry.phase == phaseAwaiting || entry.dueAt.After(now) {
			continue
		}
		entry.phase = phaseAwaiting
		due = append(due, id)
	}
	s.mu.Unlock()

	for _, id := range due {
		s.inflight.Add(1)
		go func(id domain.AccountID) {
			defer s.inflight.Done()
			s.poll(ctx, id)
		}(id)
	}
}

// poll resolves one account's presence, preferring a fresh cached snapshot
// over an upstream lookup, and routes the result through the detector.
func (s *Scheduler) poll(ctx context.Context, id domain.AccountID) {
	s.stats.addPoll()

	if cached, err := s.cache.Get(ctx, id); err == nil && cached != nil {
		s.stats.addCacheHit()
		if err := s.detector.Process(ctx, *cached); err != nil {
			logrus.WithError(err).Errorf("[SCHEDULER] Failed to process cached snapshot for account %d", id)
		}
		s.complete(id, nil)
		return
	}

	snapshot, err := s.lookup.Lookup(ctx, id)
	if err != nil {
		s.complete(id, err)
		return
	}

	if err := s.cache.Set(ctx, snapshot, s.cfg.CacheTTL); err != nil {
		logrus.WithError(err).Warnf("[SCHEDULER] Failed to cache snapshot for account %d", id)
	}
	if err := s.detector.Process(ctx, snapshot); err != nil {
		logrus.WithError(err).Errorf("[SCHEDULER] Failed to process snapshot for account %d", id)
		s.complete(id, err)
		return
	}
	s.complete(id, nil)
}

// complete reschedules the account according to the poll outcome.
func (s *Scheduler) complete(id domain.AccountID, pollErr error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.accounts[id]
	if !exists {
		// Untracked while the lookup was in flight.
		return
	}

	if pollErr == nil {
		entry.phase = phaseIdle
		entry.dueAt = now.Add(s.runtime.Current().PollInterval)
		entry.backoff = 0
		entry.failures = 0
		entry.flagged = false
		return
	}

	if pollErr == context.Canceled || pollErr == context.DeadlineExceeded {
		// Shutdown in progress; leave the entry for the next run.
		entry.phase = phaseIdle
		return
	}

	s.stats.addPollError()
	if roblox.IsPermanentAccount(pollErr) {
		if !entry.flagged {
			s.stats.addPermanentFailure()
			logrus.Warnf("[SCHEDULER] Account %d permanently rejected upstream: %v", id, pollErr)
		}
		entry.flagged = true
		entry.phase = phaseBackoff
		entry.dueAt = now.Add(s.cfg.MaxPollInterval)
		return
	}

	entry.failures++
	if entry.backoff == 0 {
		entry.backoff = s.runtime.Current().PollInterval
	} else {
		entry.backoff *= 2
	}
	if entry.backoff > s.cfg.MaxPollInterval {
		entry.backoff = s.cfg.MaxPollInterval
	}
	entry.phase = phaseBackoff
	entry.dueAt = now.Add(entry.backoff)
	logrus.Warnf("[SCHEDULER] Account %d poll failed (attempt %d), retrying in %s: %v",
		id, entry.failures, entry.backoff, pollErr)
}

// adapt re-tunes the runtime knobs. The poll interval floor is what the
// upstream token budget can sustain for the current tracked-set size; the
// batch linger widens when batches run underfilled and narrows back when
// they fill up.
func (s *Scheduler) adapt() {
	s.mu.Lock()
	tracked := len(s.accounts)
	s.mu.Unlock()

	current := s.runtime.Current()
	next := current

	if tracked > 0 && s.sustainedRate > 0 {
		floor := time.Duration(float64(tracked) / s.sustainedRate * float64(time.Second))
		interval := s.cfg.PollInterval
		if floor > interval {
			interval = floor
		}
		next.PollInterval = clampDuration(interval, s.cfg.MinPollInterval, s.cfg.MaxPollInterval)
	}

	metrics := s.lookup.Metrics()
	if metrics.Batches > 0 {
		switch {
		case metrics.FillRatio < 0.5 && current.BatchLinger < s.cfg.MaxBatchLinger:
			next.BatchLinger = clampDuration(current.BatchLinger*2, s.cfg.BatchLinger, s.cfg.MaxBatchLinger)
		case metrics.FillRatio > 0.9 && current.BatchLinger > s.cfg.BatchLinger:
			next.BatchLinger = clampDuration(current.BatchLinger/2, s.cfg.BatchLinger, s.cfg.MaxBatchLinger)
		}
	}

	if next != current {
		s.runtime.Replace(next)
		logrus.Infof("[SCHEDULER] Adapted runtime: poll interval %s -> %s, batch linger %s -> %s (tracked=%d, fill=%.2f)",
			current.PollInterval, next.PollInterval, current.BatchLinger, next.BatchLinger, tracked, metrics.FillRatio)
	}
}

func clampDuration(d, min, max time.Duration) time.Duration {
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}
