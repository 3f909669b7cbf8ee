package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	pkgError "github.com/AzielCF/az-track/pkg/error"
	"github.com/sirupsen/logrus"
)

// Sender delivers one payload to one destination URL. Implemented by
// HTTPSender; swapped for fakes in notifier tests.
type Sender interface {
	Deliver(ctx context.Context, url, secret string, payload any) error
}

// HTTPSender posts JSON payloads with bounded retries. When a secret is set,
// the body is signed with an X-Hub-Signature-256 HMAC header so receivers can
// authenticate the event.
type HTTPSender struct {
	client      *http.Client
	maxAttempts int
	baseDelay   time.Duration
}

func NewHTTPSender(timeout time.Duration) *HTTPSender {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSender{
		client:      &http.Client{Timeout: timeout},
		maxAttempts: 5,
		baseDelay:   1 * time.Second,
	}
}

// Deliver posts the payload to url. Delivery failure never affects tracker
// state; callers log and move on.
func (s *HTTPSender) Deliver(ctx context.Context, url, secret string, payload any) error {
	postBody, err := json.Marshal(payload)
	if err != nil {
		return pkgError.WebhookError(fmt.Sprintf("failed to marshal body: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return pkgError.WebhookError(fmt.Sprintf("error when creating http request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set("X-Hub-Signature-256", "sha256="+signBody(postBody, []byte(secret)))
	}

	var attempt int
	sleepDuration := s.baseDelay

	for attempt = 0; attempt < s.maxAttempts; attempt++ {
		req.Body = io.NopCloser(bytes.NewBuffer(postBody))
		resp, err := s.client.Do(req)
		if err == nil {
			status := resp.StatusCode
			io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			if status >= 200 && status < 300 {
				logrus.Debugf("[WEBHOOK] Delivered to %s on attempt %d", url, attempt+1)
				return nil
			}
			// A destination that no longer exists will not come back.
			if status == http.StatusNotFound || status == http.StatusGone {
				return pkgError.WebhookError(fmt.Sprintf("destination rejected delivery with status %d", status))
			}
			err = fmt.Errorf("webhook returned status %d", status)
		}
		logrus.Warnf("[WEBHOOK] Attempt %d to deliver to %s failed: %v", attempt+1, url, err)
		if attempt < s.maxAttempts-1 {
			select {
			case <-time.After(sleepDuration):
			case <-ctx.Done():
				return ctx.Err()
			}
			sleepDuration *= 2
		}
	}

	return pkgError.WebhookError(fmt.Sprintf("delivery to %s failed after %d attempts", url, attempt))
}

func signBody(body, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
