package paypal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider simulates the provider API for client tests. Handlers are
// registered per path; the token endpoint is always available.
type fakeProvider struct {
	server     *httptest.Server
	mux        *http.ServeMux
	tokenCalls atomic.Int64
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	fp := &fakeProvider{mux: http.NewServeMux()}
	fp.mux.HandleFunc(tokenPath, func(w http.ResponseWriter, r *http.Request) {
		fp.tokenCalls.Add(1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client-id" || pass != "client-secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(tokenResponse{AccessToken: "test-token", TokenType: "Bearer", ExpiresIn: 32400})
	})
	fp.server = httptest.NewServer(fp.mux)
	t.Cleanup(fp.server.Close)
	return fp
}

func (fp *fakeProvider) client() *Client {
	c := NewClient(Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		BaseURL:      fp.server.URL,
		WebhookID:    "WH-test",
		ReturnURL:    "https://shop.example/checkout/return",
		CancelURL:    "https://shop.example/checkout/cancel",
	}, fp.server.Client(), nil, nil)
	c.backoff = time.Millisecond
	return c
}

func TestGetAccessToken(t *testing.T) {
	fp := newFakeProvider(t)

	token, err := fp.client().GetAccessToken(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "test-token", token)
}

func TestGetAccessTokenBadCredentials(t *testing.T) {
	fp := newFakeProvider(t)
	c := fp.client()
	c.cfg.ClientSecret = "wrong"

	_, err := c.GetAccessToken(context.Background())

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
}

func TestGetAccessTokenMissingCredentials(t *testing.T) {
	c := NewClient(Config{BaseURL: "https://api.example"}, nil, nil, nil)

	_, err := c.GetAccessToken(context.Background())

	assert.ErrorIs(t, err, ErrCredentialsMissing)
}

func TestCreateOrder(t *testing.T) {
	fp := newFakeProvider(t)
	fp.mux.HandleFunc(ordersPath, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var payload createOrderPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "CAPTURE", payload.Intent)
		require.Len(t, payload.PurchaseUnits, 1)
		assert.Equal(t, "99.99", payload.PurchaseUnits[0].Amount.Value)
		assert.Equal(t, "EUR", payload.PurchaseUnits[0].Amount.CurrencyCode)
		assert.Equal(t, "https://shop.example/checkout/return", payload.ApplicationContext.ReturnURL)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Order{
			ID:     "5O190127TN364715T",
			Status: StatusCreated,
			Links: []Link{
				{Href: "https://provider.example/checkoutnow?token=5O190127TN364715T", Rel: "approve", Method: "GET"},
			},
		})
	})

	ord, err := fp.client().CreateOrder(context.Background(), NewMoney(9999, "EUR"), "order test-cart")

	require.NoError(t, err)
	assert.Equal(t, "5O190127TN364715T", ord.ID)
	assert.Equal(t, StatusCreated, ord.Status)
	assert.Contains(t, ord.ApprovalLink(), "checkoutnow")
}

func TestCreateOrderRetriesTransientFailures(t *testing.T) {
	fp := newFakeProvider(t)
	var calls atomic.Int64
	fp.mux.HandleFunc(ordersPath, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Order{ID: "ORD-1", Status: StatusCreated})
	})

	ord, err := fp.client().CreateOrder(context.Background(), NewMoney(1000, "USD"), "")

	require.NoError(t, err)
	assert.Equal(t, "ORD-1", ord.ID)
	assert.Equal(t, int64(3), calls.Load())
}

func TestCreateOrderDoesNotRetryClientErrors(t *testing.T) {
	fp := newFakeProvider(t)
	var calls atomic.Int64
	fp.mux.HandleFunc(ordersPath, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"name": "INVALID_REQUEST"})
	})

	_, err := fp.client().CreateOrder(context.Background(), NewMoney(1000, "USD"), "")

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, "INVALID_REQUEST", reqErr.Name)
	assert.False(t, reqErr.Transient())
	assert.Equal(t, int64(1), calls.Load())
}

func TestCaptureOrder(t *testing.T) {
	fp := newFakeProvider(t)
	fp.mux.HandleFunc(ordersPath+"/ORD-1/capture", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{
			"id": "ORD-1",
			"status": "COMPLETED",
			"purchase_units": [{"payments": {"captures": [{"id": "CAP-7", "status": "COMPLETED"}]}}]
		}`))
	})

	result, err := fp.client().CaptureOrder(context.Background(), "ORD-1")

	require.NoError(t, err)
	assert.Equal(t, "ORD-1", result.OrderID)
	assert.Equal(t, "CAP-7", result.CaptureID)
	assert.Equal(t, StatusCaptured, result.Status)
	assert.False(t, result.AlreadyCaptured)
}

func TestCaptureOrderAlreadyCaptured(t *testing.T) {
	fp := newFakeProvider(t)
	fp.mux.HandleFunc(ordersPath+"/ORD-1/capture", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"name": "UNPROCESSABLE_ENTITY", "details": [{"issue": "ORDER_ALREADY_CAPTURED"}]}`))
	})

	result, err := fp.client().CaptureOrder(context.Background(), "ORD-1")

	require.NoError(t, err)
	assert.True(t, result.AlreadyCaptured)
	assert.Equal(t, StatusCaptured, result.Status)
}

func TestCaptureOrderNotApproved(t *testing.T) {
	fp := newFakeProvider(t)
	fp.mux.HandleFunc(ordersPath+"/ORD-1/capture", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"name": "UNPROCESSABLE_ENTITY", "details": [{"issue": "ORDER_NOT_APPROVED"}]}`))
	})

	_, err := fp.client().CaptureOrder(context.Background(), "ORD-1")

	assert.ErrorIs(t, err, ErrOrderNotApproved)
}

func TestRetryCaptureChecksStatusFirst(t *testing.T) {
	fp := newFakeProvider(t)
	var captureCalls atomic.Int64
	fp.mux.HandleFunc(ordersPath+"/ORD-1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Order{ID: "ORD-1", Status: StatusCaptured})
	})
	fp.mux.HandleFunc(ordersPath+"/ORD-1/capture", func(w http.ResponseWriter, r *http.Request) {
		captureCalls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	result, err := fp.client().RetryCapture(context.Background(), "ORD-1")

	require.NoError(t, err)
	assert.True(t, result.AlreadyCaptured)
	assert.Equal(t, int64(0), captureCalls.Load(), "capture must not be re-sent for a completed order")
}

func TestRetryCaptureApprovedOrder(t *testing.T) {
	fp := newFakeProvider(t)
	fp.mux.HandleFunc(ordersPath+"/ORD-2", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Order{ID: "ORD-2", Status: StatusApproved})
	})
	fp.mux.HandleFunc(ordersPath+"/ORD-2/capture", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": "ORD-2", "status": "COMPLETED"}`))
	})

	result, err := fp.client().RetryCapture(context.Background(), "ORD-2")

	require.NoError(t, err)
	assert.False(t, result.AlreadyCaptured)
	assert.Equal(t, StatusCaptured, result.Status)
}

func TestRetryCaptureUnapprovedOrder(t *testing.T) {
	fp := newFakeProvider(t)
	fp.mux.HandleFunc(ordersPath+"/ORD-3", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Order{ID: "ORD-3", Status: StatusCreated})
	})

	_, err := fp.client().RetryCapture(context.Background(), "ORD-3")

	assert.ErrorIs(t, err, ErrOrderNotApproved)
}

func TestAuthorizedRequestRefetchesTokenOnce(t *testing.T) {
	fp := newFakeProvider(t)
	var orderCalls atomic.Int64
	fp.mux.HandleFunc(ordersPath+"/ORD-1", func(w http.ResponseWriter, r *http.Request) {
		if orderCalls.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(Order{ID: "ORD-1", Status: StatusApproved})
	})

	ord, err := fp.client().GetOrder(context.Background(), "ORD-1")

	require.NoError(t, err)
	assert.Equal(t, StatusApproved, ord.Status)
	assert.Equal(t, int64(2), orderCalls.Load())
	assert.Equal(t, int64(2), fp.tokenCalls.Load())
}

func TestGenerateClientToken(t *testing.T) {
	fp := newFakeProvider(t)
	fp.mux.HandleFunc(clientTokenPath, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(clientTokenResponse{ClientToken: "ct-abc123"})
	})

	token, err := fp.client().GenerateClientToken(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "ct-abc123", token)
}

func TestMoneyValue(t *testing.T) {
	tests := []struct {
		amount   int64
		currency string
		want     string
	}{
		{9999, "EUR", "99.99"},
		{100, "USD", "1.00"},
		{5, "USD", "0.05"},
		{1234, "JPY", "1234"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NewMoney(tt.amount, tt.currency).Value())
	}
}

func TestRequestErrorTransient(t *testing.T) {
	assert.True(t, (&RequestError{StatusCode: 500}).Transient())
	assert.True(t, (&RequestError{StatusCode: 503}).Transient())
	assert.False(t, (&RequestError{StatusCode: 400}).Transient())
	assert.False(t, (&RequestError{StatusCode: 422}).Transient())
}

func TestIsTransient(t *testing.T) {
	assert.False(t, isTransient(&AuthError{StatusCode: 401}))
	assert.False(t, isTransient(context.Canceled))
	assert.True(t, isTransient(errors.New("connection refused")))
}
