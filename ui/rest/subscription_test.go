package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	domainTracker "github.com/AzielCF/az-track/domains/tracker"
	pkgError "github.com/AzielCF/az-track/pkg/error"
	"github.com/AzielCF/az-track/tracker/domain"
	"github.com/AzielCF/az-track/ui/rest/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTrackerService implements ITrackerUsecase for handler tests.
type fakeTrackerService struct {
	subscribeErr   error
	unsubscribeErr error
	created        *domain.Subscription
	lastRequest    domainTracker.SubscribeRequest
}

func (f *fakeTrackerService) Subscribe(ctx context.Context, request domainTracker.SubscribeRequest) (*domain.Subscription, error) {
	f.lastRequest = request
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	return f.created, nil
}

func (f *fakeTrackerService) Unsubscribe(ctx context.Context, subscriptionID string) error {
	return f.unsubscribeErr
}

func (f *fakeTrackerService) GetSubscription(ctx context.Context, subscriptionID string) (*domain.Subscription, error) {
	if f.created != nil && f.created.ID == subscriptionID {
		return f.created, nil
	}
	return nil, domain.ErrSubscriptionNotFound
}

func (f *fakeTrackerService) ListSubscriptions(ctx context.Context, accountID domain.AccountID) ([]*domain.Subscription, error) {
	return nil, nil
}

func (f *fakeTrackerService) ListAllSubscriptions(ctx context.Context) ([]*domain.Subscription, error) {
	return []*domain.Subscription{}, nil
}

func (f *fakeTrackerService) TrackedAccounts(ctx context.Context) ([]domainTracker.TrackedAccountInfo, error) {
	return []domainTracker.TrackedAccountInfo{{AccountID: 1}}, nil
}

func (f *fakeTrackerService) Bootstrap(ctx context.Context) error { return nil }

func newTestApp(service domainTracker.ITrackerUsecase) *fiber.App {
	app := fiber.New()
	app.Use(middleware.Recovery())
	InitRestSubscription(app.Group("/api"), service)
	return app
}

func postJSON(t *testing.T, app *fiber.App, path string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestSubscribe_Success(t *testing.T) {
	service := &fakeTrackerService{
		created: &domain.Subscription{ID: "sub-1", AccountID: 123, Destination: "https://example.com/hook"},
	}
	app := newTestApp(service)

	resp := postJSON(t, app, "/api/subscriptions", map[string]any{
		"account_id":  123,
		"destination": "https://example.com/hook",
	})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(123), service.lastRequest.AccountID)

	var body struct {
		Code    string              `json:"code"`
		Results domain.Subscription `json:"results"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "SUCCESS", body.Code)
	assert.Equal(t, "sub-1", body.Results.ID)
}

func TestSubscribe_ValidationErrorMapsTo400(t *testing.T) {
	service := &fakeTrackerService{
		subscribeErr: pkgError.ValidationError("destination: must be a valid URL"),
	}
	app := newTestApp(service)

	resp := postJSON(t, app, "/api/subscriptions", map[string]any{"account_id": 1, "destination": "nope"})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSubscribe_DuplicateMapsTo400(t *testing.T) {
	service := &fakeTrackerService{subscribeErr: domain.ErrDuplicateSubscription}
	app := newTestApp(service)

	resp := postJSON(t, app, "/api/subscriptions", map[string]any{
		"account_id":  1,
		"destination": "https://example.com/hook",
	})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUnsubscribe_UnknownIDMapsTo404(t *testing.T) {
	service := &fakeTrackerService{unsubscribeErr: domain.ErrSubscriptionNotFound}
	app := newTestApp(service)

	req := httptest.NewRequest(http.MethodDelete, "/api/subscriptions/nope", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListByAccount_RejectsBadAccountID(t *testing.T) {
	app := newTestApp(&fakeTrackerService{})

	req := httptest.NewRequest(http.MethodGet, "/api/accounts/abc/subscriptions", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTracked_ReturnsAccounts(t *testing.T) {
	app := newTestApp(&fakeTrackerService{})

	req := httptest.NewRequest(http.MethodGet, "/api/accounts/tracked", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
