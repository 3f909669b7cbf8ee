package roblox

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/AzielCF/az-track/tracker/domain"
)

// APIError is a failure of a whole upstream call. Transient errors
// (rate-limited, timeout, 5xx) are retried by the transport; permanent
// ones (bad request, auth) surface immediately.
type APIError struct {
	StatusCode int
	Message    string
	Transient  bool
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("roblox api: %s (status %d)", e.Message, e.StatusCode)
	}
	return "roblox api: " + e.Message
}

// AccountError is a permanent per-account failure inside an otherwise
// successful bulk call, e.g. an id the platform rejects. It is never retried.
type AccountError struct {
	AccountID domain.AccountID
	Reason    string
}

func (e *AccountError) Error() string {
	return fmt.Sprintf("account %d: %s", e.AccountID, e.Reason)
}

// ErrRetriesExhausted wraps the last transient error once the retry budget
// is spent. The scheduler treats the affected accounts as Backoff.
var ErrRetriesExhausted = errors.New("upstream retries exhausted")

// IsTransient reports whether an error is worth retrying. Cancellation is a
// shutdown signal, not a failure, and is never retried.
func IsTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient
	}
	var accErr *AccountError
	if errors.As(err, &accErr) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	// Connection resets, DNS hiccups and friends arrive as *url.Error
	// wrapping op errors; treat any unclassified transport error as transient.
	return err != nil && !errors.Is(err, ErrRetriesExhausted)
}

// IsPermanentAccount reports whether an error is a per-account rejection.
func IsPermanentAccount(err error) bool {
	var accErr *AccountError
	return errors.As(err, &accErr)
}
