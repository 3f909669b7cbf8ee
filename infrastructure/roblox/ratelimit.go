package roblox

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Gate is the admission gate in front of the presence API. The platform
// charges per account queried, so a batch of N accounts pays N tokens before
// it may leave the process. Waiters are served in request order; nothing
// bypasses the gate.
type Gate struct {
	limiter *rate.Limiter
	burst   int
}

// NewGate builds a token bucket refilling `tokens` every `interval`, with the
// given bucket capacity. The bucket starts full.
func NewGate(tokens int, interval time.Duration, burst int) *Gate {
	perSecond := float64(tokens) / interval.Seconds()
	return &Gate{
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		burst:   burst,
	}
}

// Acquire blocks until cost tokens are available or ctx is cancelled.
// It fails fast when cost can never fit in the bucket.
func (g *Gate) Acquire(ctx context.Context, cost int) error {
	if cost <= 0 {
		return nil
	}
	if cost > g.burst {
		return fmt.Errorf("batch cost %d exceeds bucket capacity %d", cost, g.burst)
	}
	start := time.Now()
	if err := g.limiter.WaitN(ctx, cost); err != nil {
		return err
	}
	if waited := time.Since(start); waited > time.Second {
		logrus.Debugf("[RATE_GATE] Waited %s for %d tokens", waited.Round(time.Millisecond), cost)
	}
	return nil
}

// Tokens reports the tokens currently available, for the stats endpoint.
func (g *Gate) Tokens() float64 {
	return g.limiter.Tokens()
}
