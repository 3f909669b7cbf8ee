package roblox

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/AzielCF/az-track/tracker/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSender scripts a sequence of outcomes, one per attempt.
type fakeSender struct {
	calls  int
	script []error
	result *BatchResult
}

func (f *fakeSender) PresenceBatch(ctx context.Context, ids []domain.AccountID) (*BatchResult, error) {
	idx := f.calls
	f.calls++
	if idx < len(f.script) && f.script[idx] != nil {
		return nil, f.script[idx]
	}
	return f.result, nil
}

func fastPolicy(maxAttempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: maxAttempts, Base: time.Millisecond, Cap: 5 * time.Millisecond}
}

func TestRetryingTransport_RecoversFromTransientFailures(t *testing.T) {
	transient := &APIError{StatusCode: 429, Message: "rate limited", Transient: true}
	sender := &fakeSender{
		script: []error{transient, transient, nil},
		result: &BatchResult{Snapshots: map[domain.AccountID]domain.PresenceSnapshot{}},
	}

	transport := NewRetryingTransport(sender, fastPolicy(5))
	result, err := transport.Send(context.Background(), []domain.AccountID{1})

	require.NoError(t, err)
	assert.NotNil(t, result)
	assert.Equal(t, 3, sender.calls)
}

func TestRetryingTransport_PermanentFailureIsNotRetried(t *testing.T) {
	permanent := &APIError{StatusCode: http.StatusForbidden, Message: "authentication failed"}
	sender := &fakeSender{script: []error{permanent, permanent, permanent}}

	transport := NewRetryingTransport(sender, fastPolicy(5))
	_, err := transport.Send(context.Background(), []domain.AccountID{1})

	require.Error(t, err)
	assert.Equal(t, 1, sender.calls)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
}

func TestRetryingTransport_ExhaustionWrapsLastError(t *testing.T) {
	transient := &APIError{StatusCode: 503, Message: "unavailable", Transient: true}
	sender := &fakeSender{script: []error{transient, transient, transient, transient}}

	transport := NewRetryingTransport(sender, fastPolicy(3))
	_, err := transport.Send(context.Background(), []domain.AccountID{1})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRetriesExhausted))
	assert.Equal(t, 3, sender.calls)
	// Exhaustion is terminal for this batch; the scheduler backs off instead
	// of retrying again.
	assert.False(t, IsTransient(err))
}

func TestRetryingTransport_CancellationStopsRetrying(t *testing.T) {
	transient := &APIError{StatusCode: 502, Message: "bad gateway", Transient: true}
	sender := &fakeSender{script: []error{transient, transient, transient, transient, transient}}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(3 * time.Millisecond)
		cancel()
	}()

	transport := NewRetryingTransport(sender, RetryPolicy{MaxAttempts: 50, Base: 2 * time.Millisecond, Cap: 10 * time.Millisecond})
	_, err := transport.Send(ctx, []domain.AccountID{1})

	require.Error(t, err)
	assert.Less(t, sender.calls, 50)
}
