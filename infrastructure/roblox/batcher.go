package roblox

import (
	"context"
	"sync"
	"time"

	"github.com/AzielCF/az-track/tracker/domain"
	"github.com/sirupsen/logrus"
)

// shutdownFlushTimeout bounds the final flush of an accumulated batch when
// the process is stopping; pending lookups are not dropped silently.
const shutdownFlushTimeout = 5 * time.Second

// Transport abstracts the retrying upstream call the batcher flushes through.
type Transport interface {
	Send(ctx context.Context, ids []domain.AccountID) (*BatchResult, error)
}

type lookupOutcome struct {
	snapshot domain.PresenceSnapshot
	err      error
}

type lookupRequest struct {
	id     domain.AccountID
	waiter chan lookupOutcome
}

// Batcher coalesces individual presence lookups into bulk calls. Requests
// arriving within a linger window (or until the batch fills) share one
// upstream call; concurrent requests for the same account share one slot in
// it. Flush policy: size threshold or linger timeout, whichever first.
type Batcher struct {
	gate      *Gate
	transport Transport
	maxSize   int
	linger    func() time.Duration

	requests chan lookupRequest
	metrics  batchMetrics
	inflight sync.WaitGroup
}

// NewBatcher builds a batcher. linger is read per batch so the scheduler can
// widen the window at runtime without restarting the pipeline.
func NewBatcher(gate *Gate, transport Transport, maxSize int, linger func() time.Duration) *Batcher {
	if maxSize < 1 {
		maxSize = 1
	}
	return &Batcher{
		gate:      gate,
		transport: transport,
		maxSize:   maxSize,
		linger:    linger,
		requests:  make(chan lookupRequest),
	}
}

// Lookup requests the presence of one account and waits for the batch it
// lands in to complete. Per-account failures only reach the waiters of the
// affected account.
func (b *Batcher) Lookup(ctx context.Context, id domain.AccountID) (domain.PresenceSnapshot, error) {
	waiter := make(chan lookupOutcome, 1)
	select {
	case b.requests <- lookupRequest{id: id, waiter: waiter}:
	case <-ctx.Done():
		return domain.PresenceSnapshot{}, ctx.Err()
	}
	select {
	case out := <-waiter:
		return out.snapshot, out.err
	case <-ctx.Done():
		return domain.PresenceSnapshot{}, ctx.Err()
	}
}

// Run owns batch formation until ctx is cancelled. An already-accumulated
// batch is flushed (with a bounded detached context) before returning.
func (b *Batcher) Run(ctx context.Context) error {
	pending := make(map[domain.AccountID][]chan lookupOutcome)
	var lingerTimer *time.Timer
	var lingerC <-chan time.Time

	stopLinger := func() {
		if lingerTimer != nil {
			lingerTimer.Stop()
			lingerTimer = nil
			lingerC = nil
		}
	}
	flush := func(flushCtx context.Context) {
		if len(pending) == 0 {
			return
		}
		batch := pending
		pending = make(map[domain.AccountID][]chan lookupOutcome)
		b.inflight.Add(1)
		go b.dispatch(flushCtx, batch)
	}

	for {
		select {
		case req := <-b.requests:
			waiters, known := pending[req.id]
			if known {
				b.metrics.addDeduped()
			}
			pending[req.id] = append(waiters, req.waiter)
			if len(pending) == 1 {
				lingerTimer = time.NewTimer(b.linger())
				lingerC = lingerTimer.C
			}
			if len(pending) >= b.maxSize {
				stopLinger()
				flush(ctx)
			}
		case <-lingerC:
			lingerTimer = nil
			lingerC = nil
			flush(ctx)
		case <-ctx.Done():
			stopLinger()
			if len(pending) > 0 {
				logrus.Infof("[BATCHER] Shutdown: flushing %d pending lookup(s)", len(pending))
				flushCtx, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
				flush(flushCtx)
				b.inflight.Wait()
				cancel()
			} else {
				b.inflight.Wait()
			}
			return nil
		}
	}
}

// dispatch pays the rate gate for the batch's distinct accounts, issues the
// upstream call and demuxes results to every waiter.
func (b *Batcher) dispatch(ctx context.Context, batch map[domain.AccountID][]chan lookupOutcome) {
	defer b.inflight.Done()

	ids := make([]domain.AccountID, 0, len(batch))
	for id := range batch {
		ids = append(ids, id)
	}

	start := time.Now()
	if err := b.gate.Acquire(ctx, len(ids)); err != nil {
		failAll(batch, err)
		return
	}
	result, err := b.transport.Send(ctx, ids)
	b.metrics.record(time.Since(start), len(ids), b.maxSize)
	if err != nil {
		failAll(batch, err)
		return
	}

	for id, waiters := range batch {
		out := lookupOutcome{}
		if snap, ok := result.Snapshots[id]; ok {
			out.snapshot = snap
		} else if ferr, ok := result.Failed[id]; ok {
			out.err = ferr
		} else {
			out.err = &AccountError{AccountID: id, Reason: "missing from bulk response"}
		}
		for _, w := range waiters {
			w <- out
		}
	}
}

func failAll(batch map[domain.AccountID][]chan lookupOutcome, err error) {
	for _, waiters := range batch {
		for _, w := range waiters {
			w <- lookupOutcome{err: err}
		}
	}
}

// BatchMetrics is a snapshot of the batcher's recent behavior, consumed by
// the scheduler's adaptation pass and the stats endpoint.
type BatchMetrics struct {
	Batches    int64         `json:"batches"`
	Deduped    int64         `json:"deduped_lookups"`
	AvgLatency time.Duration `json:"avg_latency"`
	FillRatio  float64       `json:"fill_ratio"`
}

type batchMetrics struct {
	mu         sync.Mutex
	batches    int64
	deduped    int64
	avgLatency time.Duration
	fillRatio  float64
}

// EWMA smoothing factor for latency and fill ratio.
const metricsAlpha = 0.2

func (m *batchMetrics) record(latency time.Duration, size, maxSize int) {
	fill := float64(size) / float64(maxSize)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches++
	if m.batches == 1 {
		m.avgLatency = latency
		m.fillRatio = fill
		return
	}
	m.avgLatency = time.Duration(float64(m.avgLatency)*(1-metricsAlpha) + float64(latency)*metricsAlpha)
	m.fillRatio = m.fillRatio*(1-metricsAlpha) + fill*metricsAlpha
}

func (m *batchMetrics) addDeduped() {
	m.mu.Lock()
	m.deduped++
	m.mu.Unlock()
}

// Metrics returns the current batch metrics.
func (b *Batcher) Metrics() BatchMetrics {
	b.metrics.mu.Lock()
	defer b.metrics.mu.Unlock()
	return BatchMetrics{
		Batches:    b.metrics.batches,
		Deduped:    b.metrics.deduped,
		AvgLatency: b.metrics.avgLatency,
		FillRatio:  b.metrics.fillRatio,
	}
}
