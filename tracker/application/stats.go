package application

import "sync/atomic"

// Stats aggregates pipeline counters for the monitoring endpoint. All fields
// are updated with atomics; Snapshot is safe from any goroutine.
type Stats struct {
	polls             int64
	pollErrors        int64
	cacheHits         int64
	transitions       int64
	suppressed        int64
	permanentFailures int64
	notified          int64
	deliveryErrors    int64
}

// StatsSnapshot is the serialized view of Stats.
type StatsSnapshot struct {
	Polls             int64 `json:"polls"`
	PollErrors        int64 `json:"poll_errors"`
	CacheHits         int64 `json:"cache_hits"`
	Transitions       int64 `json:"transitions"`
	Suppressed        int64 `json:"suppressed_duplicates"`
	PermanentFailures int64 `json:"permanent_failures"`
	Notified          int64 `json:"notifications_dispatched"`
	DeliveryErrors    int64 `json:"delivery_errors"`
}

func (s *Stats) addPoll()             { atomic.AddInt64(&s.polls, 1) }
func (s *Stats) addPollError()        { atomic.AddInt64(&s.pollErrors, 1) }
func (s *Stats) addCacheHit()         { atomic.AddInt64(&s.cacheHits, 1) }
func (s *Stats) addTransition()       { atomic.AddInt64(&s.transitions, 1) }
func (s *Stats) addSuppressed()       { atomic.AddInt64(&s.suppressed, 1) }
func (s *Stats) addPermanentFailure() { atomic.AddInt64(&s.permanentFailures, 1) }
func (s *Stats) addNotified()         { atomic.AddInt64(&s.notified, 1) }
func (s *Stats) addDeliveryError()    { atomic.AddInt64(&s.deliveryErrors, 1) }

// Snapshot returns a point-in-time copy of all counters.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Polls:             atomic.LoadInt64(&s.polls),
		PollErrors:        atomic.LoadInt64(&s.pollErrors),
		CacheHits:         atomic.LoadInt64(&s.cacheHits),
		Transitions:       atomic.LoadInt64(&s.transitions),
		Suppressed:        atomic.LoadInt64(&s.suppressed),
		PermanentFailures: atomic.LoadInt64(&s.permanentFailures),
		Notified:          atomic.LoadInt64(&s.notified),
		DeliveryErrors:    atomic.LoadInt64(&s.deliveryErrors),
	}
}
