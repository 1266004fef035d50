package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/clickcart/server/internal/shared/config"
	"github.com/clickcart/server/internal/shared/metrics"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const (
	tokenPath       = "/v1/oauth2/token"
	ordersPath      = "/v2/checkout/orders"
	clientTokenPath = "/v1/identity/generate-token"
	verifyPath      = "/v1/notifications/verify-webhook-signature"

	maxAttempts    = 3
	initialBackoff = 200 * time.Millisecond
)

// Config holds the provider credentials and endpoints for one environment.
type Config struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	WebhookID    string
	ReturnURL    string
	CancelURL    string
}

// ConfigFromApp builds a provider config from the application configuration,
// selecting the active (sandbox or live) credential set.
func ConfigFromApp(cfg *config.PayPalConfig) Config {
	creds := cfg.Active()
	return Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		BaseURL:      strings.TrimRight(creds.BaseURL, "/"),
		WebhookID:    creds.WebhookID,
		ReturnURL:    cfg.ReturnURL,
		CancelURL:    cfg.CancelURL,
	}
}

// Validate checks that the credential set is usable.
func (c Config) Validate() error {
	if c.ClientID == "" || c.ClientSecret == "" {
		return ErrCredentialsMissing
	}
	return nil
}

// apiResponse is a completed provider HTTP exchange.
type apiResponse struct {
	StatusCode int
	Body       []byte
}

func (r *apiResponse) ok() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client wraps the provider REST API. All calls go through a circuit
// breaker and the configured-timeout HTTP client.
type Client struct {
	cfg        Config
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*apiResponse]
	metrics    *metrics.Metrics
	logger     *zap.Logger
	backoff    time.Duration
}

// NewClient creates a new provider client. Metrics may be nil.
func NewClient(cfg Config, httpClient *http.Client, m *metrics.Metrics, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	breaker := gobreaker.NewCircuitBreaker[*apiResponse](gobreaker.Settings{
		Name:        "paypal",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		breaker:    breaker,
		metrics:    m,
		logger:     logger,
		backoff:    initialBackoff,
	}
}

// WebhookID returns the configured webhook id.
func (c *Client) WebhookID() string {
	return c.cfg.WebhookID
}

// GetAccessToken exchanges the configured credentials for a bearer token
// via the client-credentials grant. Tokens are short-lived; callers
// re-fetch rather than cache long-term.
func (c *Client) GetAccessToken(ctx context.Context) (string, error) {
	if err := c.cfg.Validate(); err != nil {
		return "", err
	}

	form := url.Values{"grant_type": {"client_credentials"}}

	var resp *apiResponse
	err := c.withRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.cfg.BaseURL+tokenPath, strings.NewReader(form.Encode()))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)

		resp, err = c.do("get_access_token", req)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 500 {
			return &RequestError{Operation: "get_access_token", StatusCode: resp.StatusCode}
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	if !resp.ok() {
		return "", &AuthError{StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}

	var token tokenResponse
	if err := json.Unmarshal(resp.Body, &token); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if token.AccessToken == "" {
		return "", &AuthError{StatusCode: resp.StatusCode, Body: "empty access token"}
	}
	return token.AccessToken, nil
}

// CreateOrder creates a CAPTURE-intent order with a single purchase unit.
// Transient failures are retried with backoff; client errors are not.
func (c *Client) CreateOrder(ctx context.Context, amount Money, description string) (*Order, error) {
	payload := createOrderPayload{
		Intent: "CAPTURE",
		PurchaseUnits: []purchaseUnitPayload{{
			Amount: amountPayload{
				CurrencyCode: amount.Currency,
				Value:        amount.Value(),
			},
			Description: description,
		}},
		ApplicationContext: applicationContextPayload{
			ReturnURL: c.cfg.ReturnURL,
			CancelURL: c.cfg.CancelURL,
		},
	}

	var resp *apiResponse
	err := c.withRetry(ctx, func() error {
		var err error
		resp, err = c.authorizedJSON(ctx, "create_order", http.MethodPost, ordersPath, payload)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 500 {
			return &RequestError{Operation: "create_order", StatusCode: resp.StatusCode, Body: string(resp.Body)}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !resp.ok() {
		return nil, newRequestError("create_order", resp)
	}

	var ord Order
	if err := json.Unmarshal(resp.Body, &ord); err != nil {
		return nil, fmt.Errorf("decode order response: %w", err)
	}
	c.logger.Info("provider order created",
		zap.String("order_id", ord.ID),
		zap.String("status", string(ord.Status)),
		zap.String("amount", amount.String()),
	)
	return &ord, nil
}

// CaptureOrder captures a previously approved order. A provider-side
// "already captured" response is success, not an error. Capture is never
// retried here: callers must check order status via RetryCapture instead.
func (c *Client) CaptureOrder(ctx context.Context, orderID string) (*CaptureResult, error) {
	path := fmt.Sprintf("%s/%s/capture", ordersPath, orderID)
	resp, err := c.authorizedJSON(ctx, "capture_order", http.MethodPost, path, struct{}{})
	if err != nil {
		c.recordCapture("transport_error")
		return nil, err
	}

	if resp.ok() {
		var capture captureResponse
		if err := json.Unmarshal(resp.Body, &capture); err != nil {
			return nil, fmt.Errorf("decode capture response: %w", err)
		}
		result := &CaptureResult{OrderID: capture.ID, Status: capture.Status}
		for _, pu := range capture.PurchaseUnits {
			if len(pu.Payments.Captures) > 0 {
				result.CaptureID = pu.Payments.Captures[0].ID
				break
			}
		}
		c.recordCapture("captured")
		c.logger.Info("provider order captured",
			zap.String("order_id", result.OrderID),
			zap.String("capture_id", result.CaptureID),
		)
		return result, nil
	}

	issue := parseIssue(resp.Body)
	switch issue {
	case "ORDER_ALREADY_CAPTURED":
		c.recordCapture("already_captured")
		c.logger.Info("order already captured, treating as success",
			zap.String("order_id", orderID))
		return &CaptureResult{OrderID: orderID, Status: StatusCaptured, AlreadyCaptured: true}, nil
	case "ORDER_NOT_APPROVED":
		c.recordCapture("not_approved")
		return nil, fmt.Errorf("%w: order %s", ErrOrderNotApproved, orderID)
	}

	c.recordCapture("failed")
	return nil, newRequestError("capture_order", resp)
}

// RetryCapture re-attempts a capture after a failure, checking the current
// order status first to avoid duplicate-capture risk.
func (c *Client) RetryCapture(ctx context.Context, orderID string) (*CaptureResult, error) {
	ord, err := c.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	switch ord.Status {
	case StatusCaptured:
		c.recordCapture("already_captured")
		return &CaptureResult{OrderID: orderID, Status: StatusCaptured, AlreadyCaptured: true}, nil
	case StatusApproved:
		return c.CaptureOrder(ctx, orderID)
	default:
		return nil, fmt.Errorf("%w: order %s is %s", ErrOrderNotApproved, orderID, ord.Status)
	}
}

// GetOrder fetches the current provider state of an order.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	resp, err := c.authorizedJSON(ctx, "get_order", http.MethodGet, ordersPath+"/"+orderID, nil)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, newRequestError("get_order", resp)
	}

	var ord Order
	if err := json.Unmarshal(resp.Body, &ord); err != nil {
		return nil, fmt.Errorf("decode order response: %w", err)
	}
	return &ord, nil
}

// GenerateClientToken issues a short-lived client token for the embedded
// payment UI.
func (c *Client) GenerateClientToken(ctx context.Context) (string, error) {
	resp, err := c.authorizedJSON(ctx, "generate_client_token", http.MethodPost, clientTokenPath, struct{}{})
	if err != nil {
		return "", err
	}
	if !resp.ok() {
		return "", newRequestError("generate_client_token", resp)
	}

	var token clientTokenResponse
	if err := json.Unmarshal(resp.Body, &token); err != nil {
		return "", fmt.Errorf("decode client token response: %w", err)
	}
	return token.ClientToken, nil
}

// authorizedJSON performs a bearer-authorized JSON request. On 401 the
// token is re-fetched once and the request retried once.
func (c *Client) authorizedJSON(ctx context.Context, operation, method, path string, payload any) (*apiResponse, error) {
	token, err := c.GetAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.jsonRequest(ctx, operation, method, path, payload, token)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.logger.Debug("token rejected, re-fetching once", zap.String("operation", operation))
		token, err = c.GetAccessToken(ctx)
		if err != nil {
			return nil, err
		}
		return c.jsonRequest(ctx, operation, method, path, payload, token)
	}

	return resp, nil
}

func (c *Client) jsonRequest(ctx context.Context, operation, method, path string, payload any, token string) (*apiResponse, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	return c.do(operation, req)
}

// do executes one provider exchange through the circuit breaker. Only
// transport failures count against the breaker; HTTP error statuses are
// returned to the caller for interpretation.
func (c *Client) do(operation string, req *http.Request) (*apiResponse, error) {
	start := time.Now()
	resp, err := c.breaker.Execute(func() (*apiResponse, error) {
		httpResp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer httpResp.Body.Close()

		body, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return nil, err
		}
		return &apiResponse{StatusCode: httpResp.StatusCode, Body: body}, nil
	})

	status := "error"
	if err == nil {
		status = fmt.Sprintf("%d", resp.StatusCode)
	}
	if c.metrics != nil {
		c.metrics.RecordProviderRequest(operation, status, time.Since(start))
	}
	if err != nil {
		return nil, fmt.Errorf("paypal %s: %w", operation, err)
	}
	return resp, nil
}

// withRetry runs fn up to maxAttempts times, backing off between transient
// failures. Non-transient errors abort immediately.
func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	backoff := c.backoff
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isTransient(lastErr) {
			return lastErr
		}
		if attempt == maxAttempts {
			break
		}

		c.logger.Warn("transient provider failure, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(lastErr),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return lastErr
}

// isTransient reports whether an error is worth retrying: transport
// failures, open breaker, and 5xx responses. Auth and client errors
// are not.
func isTransient(err error) bool {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return false
	}
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Transient()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

func (c *Client) recordCapture(outcome string) {
	if c.metrics != nil {
		c.metrics.CapturesTotal.WithLabelValues(outcome).Inc()
	}
}

func newRequestError(operation string, resp *apiResponse) *RequestError {
	var provErr errorResponse
	_ = json.Unmarshal(resp.Body, &provErr)
	return &RequestError{
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Name:       provErr.Name,
		Body:       string(resp.Body),
	}
}

func parseIssue(body []byte) string {
	var provErr errorResponse
	if err := json.Unmarshal(body, &provErr); err != nil {
		return ""
	}
	for _, d := range provErr.Details {
		if d.Issue != "" {
			return d.Issue
		}
	}
	return ""
}
