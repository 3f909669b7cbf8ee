package roblox

import (
	"context"
	"fmt"
	"time"

	"github.com/AzielCF/az-track/tracker/domain"
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// Sender issues a single bulk presence call. Implemented by *Client;
// swapped for fakes in tests.
type Sender interface {
	PresenceBatch(ctx context.Context, ids []domain.AccountID) (*BatchResult, error)
}

// RetryPolicy bounds how the transport retries transient failures.
type RetryPolicy struct {
	MaxAttempts int
	Base        time.Duration
	Cap         time.Duration
}

// RetryingTransport wraps a Sender with bounded exponential backoff plus
// jitter. Transient failures (rate-limited, timeout, 5xx) are absorbed here;
// permanent ones pass through untouched. Exhausting the attempt budget
// surfaces ErrRetriesExhausted wrapping the last transient error.
type RetryingTransport struct {
	sender Sender
	policy RetryPolicy
}

func NewRetryingTransport(sender Sender, policy RetryPolicy) *RetryingTransport {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.Base <= 0 {
		policy.Base = 100 * time.Millisecond
	}
	if policy.Cap <= 0 {
		policy.Cap = 3 * time.Second
	}
	return &RetryingTransport{sender: sender, policy: policy}
}

// Send issues the bulk call, retrying transient failures until the attempt
// budget is spent or ctx is cancelled.
func (t *RetryingTransport) Send(ctx context.Context, ids []domain.AccountID) (*BatchResult, error) {
	attempt := 0
	operation := func() (*BatchResult, error) {
		attempt++
		result, err := t.sender.PresenceBatch(ctx, ids)
		if err == nil {
			return result, nil
		}
		if !IsTransient(err) {
			return nil, backoff.Permanent(err)
		}
		logrus.WithError(err).Debugf("[TRANSPORT] Attempt %d/%d failed for batch of %d accounts",
			attempt, t.policy.MaxAttempts, len(ids))
		return nil, err
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = t.policy.Base
	expo.MaxInterval = t.policy.Cap
	expo.MaxElapsedTime = 0 // attempts bound the retry loop, not wall time

	result, err := backoff.RetryWithData(operation,
		backoff.WithContext(backoff.WithMaxRetries(expo, uint64(t.policy.MaxAttempts-1)), ctx))
	if err != nil {
		if IsTransient(err) {
			return nil, fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, attempt, err)
		}
		return nil, err
	}
	return result, nil
}
