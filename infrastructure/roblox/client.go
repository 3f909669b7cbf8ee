package roblox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/AzielCF/az-track/tracker/domain"
	"github.com/sirupsen/logrus"
)

// Presence type codes as returned by presence.roblox.com.
const (
	presenceTypeOffline  = 0
	presenceTypeOnline   = 1
	presenceTypeInGame   = 2
	presenceTypeInStudio = 3
)

// Config configures the outbound presence client.
type Config struct {
	BaseURL        string
	UserAgent      string
	RequestTimeout time.Duration
}

// Client talks to the Roblox presence API. One PresenceBatch call covers up
// to the platform's bulk ceiling of account ids.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
}

// BatchResult is the demuxed outcome of one bulk call. Accounts missing from
// Snapshots appear in Failed with a permanent per-account error.
type BatchResult struct {
	Snapshots map[domain.AccountID]domain.PresenceSnapshot
	Failed    map[domain.AccountID]error
}

func NewClient(cfg Config) *Client {
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		userAgent:  cfg.UserAgent,
	}
}

type presenceRequest struct {
	UserIDs []int64 `json:"userIds"`
}

type userPresence struct {
	UserID           int64  `json:"userId"`
	UserPresenceType int    `json:"userPresenceType"`
	PlaceID          *int64 `json:"placeId"`
	LastOnline       string `json:"lastOnline"`
}

type presenceResponse struct {
	UserPresences []userPresence `json:"userPresences"`
}

type apiErrorBody struct {
	Errors []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// PresenceBatch issues one bulk presence query. The returned error, when
// non-nil, applies to the whole batch and is classified transient/permanent;
// per-account rejections land in BatchResult.Failed instead.
func (c *Client) PresenceBatch(ctx context.Context, ids []domain.AccountID) (*BatchResult, error) {
	userIDs := make([]int64, len(ids))
	for i, id := range ids {
		userIDs[i] = int64(id)
	}

	body, err := json.Marshal(presenceRequest{UserIDs: userIDs})
	if err != nil {
		return nil, &APIError{Message: fmt.Sprintf("marshal request: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/presence/users", bytes.NewReader(body))
	if err != nil {
		return nil, &APIError{Message: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp)
	}

	var parsed presenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		// A truncated body on a 200 is worth one more try.
		return nil, &APIError{Message: fmt.Sprintf("decode response: %v", err), Transient: true}
	}

	observedAt := time.Now().UTC()
	result := &BatchResult{
		Snapshots: make(map[domain.AccountID]domain.PresenceSnapshot, len(ids)),
		Failed:    make(map[domain.AccountID]error),
	}
	for _, up := range parsed.UserPresences {
		id := domain.AccountID(up.UserID)
		result.Snapshots[id] = toSnapshot(id, up, observedAt)
	}
	for _, id := range ids {
		if _, ok := result.Snapshots[id]; !ok {
			result.Failed[id] = &AccountError{AccountID: id, Reason: "not present in bulk response (invalid or deleted account)"}
		}
	}
	return result, nil
}

func toSnapshot(id domain.AccountID, up userPresence, observedAt time.Time) domain.PresenceSnapshot {
	snap := domain.PresenceSnapshot{AccountID: id, ObservedAt: observedAt}
	switch up.UserPresenceType {
	case presenceTypeInGame:
		snap.Status = domain.StatusInGame
		if up.PlaceID != nil {
			snap.GameID = *up.PlaceID
		}
	case presenceTypeOnline, presenceTypeInStudio:
		snap.Status = domain.StatusOnline
	default:
		snap.Status = domain.StatusOffline
	}
	return snap
}

func classifyStatus(resp *http.Response) error {
	msg := readAPIMessage(resp.Body)
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &APIError{StatusCode: resp.StatusCode, Message: "rate limited", Transient: true}
	case resp.StatusCode >= 500:
		return &APIError{StatusCode: resp.StatusCode, Message: msg, Transient: true}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		logrus.Errorf("[ROBLOX] Upstream rejected credentials (status %d): %s", resp.StatusCode, msg)
		return &APIError{StatusCode: resp.StatusCode, Message: "authentication failed: " + msg}
	default:
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
}

func readAPIMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(data) == 0 {
		return "no error body"
	}
	var body apiErrorBody
	if err := json.Unmarshal(data, &body); err == nil && len(body.Errors) > 0 {
		return body.Errors[0].Message
	}
	return string(data)
}
