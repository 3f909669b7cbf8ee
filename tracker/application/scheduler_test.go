package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/AzielCF/az-track/core/config"
	"github.com/AzielCF/az-track/infrastructure/roblox"
	"github.com/AzielCF/az-track/tracker/domain"
	"github.com/AzielCF/az-track/tracker/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLookup struct {
	mu      sync.Mutex
	calls   int
	status  domain.PresenceStatus
	err     error
	metrics roblox.BatchMetrics
}

func (f *fakeLookup) Lookup(ctx context.Context, id domain.AccountID) (domain.PresenceSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return domain.PresenceSnapshot{}, f.err
	}
	return domain.PresenceSnapshot{AccountID: id, Status: f.status, ObservedAt: time.Now()}, nil
}

func (f *fakeLookup) Metrics() roblox.BatchMetrics {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.metrics
}

func (f *fakeLookup) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testTrackerConfig() config.TrackerConfig {
	return config.TrackerConfig{
		PollInterval:    50 * time.Millisecond,
		MinPollInterval: 10 * time.Millisecond,
		MaxPollInterval: time.Second,
		BatchMaxSize:    100,
		BatchLinger:     5 * time.Millisecond,
		MaxBatchLinger:  100 * time.Millisecond,
		CacheTTL:        time.Minute,
		CacheMaxEntries: 100,
	}
}

func testRobloxConfig() config.RobloxConfig {
	return config.RobloxConfig{RateTokens: 10, RateInterval: 3500 * time.Millisecond, RateBurst: 100}
}

func newTestScheduler(lookup PresenceLookup, cache domain.PresenceCache, detector *Detector) (*Scheduler, *config.RuntimeStore) {
	cfg := testTrackerConfig()
	runtime := config.NewRuntimeStore(config.Runtime{
		PollInterval: cfg.PollInterval,
		BatchLinger:  cfg.BatchLinger,
	})
	s := NewScheduler(lookup, cache, detector, runtime, cfg, testRobloxConfig(), &Stats{})
	return s, runtime
}

func TestScheduler_TrackedAccountGetsPolledAndDetected(t *testing.T) {
	store := newMemStateStore()
	notifier := &recordingNotifier{}
	lookup := &fakeLookup{status: domain.StatusOnline}
	cache := repository.NewMemoryPresenceCache(100)
	s, _ := newTestScheduler(lookup, cache, NewDetector(store, notifier, &Stats{}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	s.Track(1)

	require.Eventually(t, func() bool {
		return lookup.callCount() >= 1
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		state, _ := store.Read(context.Background(), 1)
		return state != nil && state.LastReported.Status == domain.StatusOnline
	}, 2*time.Second, 10*time.Millisecond)

	// First observation seeds silently.
	assert.Empty(t, notifier.all())
}

func TestScheduler_FreshCacheSuppressesLookup(t *testing.T) {
	store := newMemStateStore()
	lookup := &fakeLookup{status: domain.StatusOnline}
	cache := repository.NewMemoryPresenceCache(100)
	require.NoError(t, cache.Set(context.Background(), obs(1, domain.StatusOnline, 0), time.Minute))

	s, _ := newTestScheduler(lookup, cache, NewDetector(store, &recordingNotifier{}, &Stats{}))
	s.Track(1)

	s.mu.Lock()
	s.accounts[1].phase = phaseAwaiting
	s.mu.Unlock()
	s.poll(context.Background(), 1)

	assert.Zero(t, lookup.callCount())
	state, _ := store.Read(context.Background(), 1)
	require.NotNil(t, state)
}

func TestScheduler_TransientFailureBacksOffExponentially(t *testing.T) {
	lookup := &fakeLookup{}
	s, _ := newTestScheduler(lookup, repository.NewMemoryPresenceCache(10),
		NewDetector(newMemStateStore(), &recordingNotifier{}, &Stats{}))
	s.Track(1)

	transient := roblox.ErrRetriesExhausted

	s.complete(1, transient)
	s.mu.Lock()
	first := s.accounts[1].backoff
	phase := s.accounts[1].phase
	s.mu.Unlock()
	assert.Equal(t, phaseBackoff, phase)
	assert.Equal(t, 50*time.Millisecond, first)

	s.complete(1, transient)
	s.mu.Lock()
	second := s.accounts[1].backoff
	s.mu.Unlock()
	assert.Equal(t, 2*first, second)

	// Backoff never exceeds the widest poll interval.
	for i := 0; i < 10; i++ {
		s.complete(1, transient)
	}
	s.mu.Lock()
	capped := s.accounts[1].backoff
	s.mu.Unlock()
	assert.Equal(t, time.Second, capped)
}

func TestScheduler_SuccessResetsBackoff(t *testing.T) {
	s, _ := newTestScheduler(&fakeLookup{}, repository.NewMemoryPresenceCache(10),
		NewDetector(newMemStateStore(), &recordingNotifier{}, &Stats{}))
	s.Track(1)

	s.complete(1, roblox.ErrRetriesExhausted)
	s.complete(1, nil)

	s.mu.Lock()
	entry := s.accounts[1]
	s.mu.Unlock()
	assert.Equal(t, phaseIdle, entry.phase)
	assert.Zero(t, entry.backoff)
	assert.Zero(t, entry.failures)
}

func TestScheduler_PermanentAccountErrorFlagsAndParks(t *testing.T) {
	stats := &Stats{}
	cfg := testTrackerConfig()
	runtime := config.NewRuntimeStore(config.Runtime{PollInterval: cfg.PollInterval, BatchLinger: cfg.BatchLinger})
	s := NewScheduler(&fakeLookup{}, repository.NewMemoryPresenceCache(10),
		NewDetector(newMemStateStore(), &recordingNotifier{}, stats), runtime, cfg, testRobloxConfig(), stats)
	s.Track(1)

	s.complete(1, &roblox.AccountError{AccountID: 1, Reason: "invalid account"})

	s.mu.Lock()
	entry := s.accounts[1]
	s.mu.Unlock()
	assert.True(t, entry.flagged)
	assert.Equal(t, phaseBackoff, entry.phase)
	assert.Equal(t, int64(1), stats.Snapshot().PermanentFailures)

	// Parked, not removed: it stays in the tracked set.
	assert.Contains(t, s.Tracked(), domain.AccountID(1))
}

func TestScheduler_UntrackedMidFlightResultIsDiscarded(t *testing.T) {
	s, _ := newTestScheduler(&fakeLookup{}, repository.NewMemoryPresenceCache(10),
		NewDetector(newMemStateStore(), &recordingNotifier{}, &Stats{}))
	s.Track(1)
	s.Untrack(1)

	// Must not panic or resurrect the entry.
	s.complete(1, nil)
	assert.Empty(t, s.Tracked())
}

func TestScheduler_AdaptWidensLingerWhenBatchesRunEmpty(t *testing.T) {
	lookup := &fakeLookup{metrics: roblox.BatchMetrics{Batches: 20, FillRatio: 0.1}}
	s, runtime := newTestScheduler(lookup, repository.NewMemoryPresenceCache(10),
		NewDetector(newMemStateStore(), &recordingNotifier{}, &Stats{}))
	s.Track(1)

	before := runtime.Current().BatchLinger
	s.adapt()
	after := runtime.Current().BatchLinger
	assert.Equal(t, 2*before, after)

	// Repeated adaptation saturates at the configured ceiling.
	for i := 0; i < 10; i++ {
		s.adapt()
	}
	assert.Equal(t, 100*time.Millisecond, runtime.Current().BatchLinger)
}

func TestScheduler_AdaptRaisesIntervalForLargeTrackedSets(t *testing.T) {
	lookup := &fakeLookup{}
	s, runtime := newTestScheduler(lookup, repository.NewMemoryPresenceCache(10000),
		NewDetector(newMemStateStore(), &recordingNotifier{}, &Stats{}))

	// 10 tokens / 3.5s sustains ~2.86 accounts/s; 1000 accounts need ~350s,
	// clamped to the configured max of 1s in this test config.
	for i := int64(1); i <= 1000; i++ {
		s.Track(domain.AccountID(i))
	}
	s.adapt()
	assert.Equal(t, time.Second, runtime.Current().PollInterval)
}
