// Package liqpay integrates with the LiqPay payment gateway: request
// signing, notification decoding, the REST API client, and the webhook
// endpoint.
package liqpay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"liqgate/internal/common/retry"
)

// DefaultBaseURL is the production LiqPay API endpoint.
const DefaultBaseURL = "https://www.liqpay.ua/api"

// apiVersion is the LiqPay API version every request carries.
const apiVersion = 3

// Config holds LiqPay client configuration. Both keys are required; the
// service refuses to start without them.
type Config struct {
	PublicKey      string        `envconfig:"LIQPAY_PUBLIC_KEY" required:"true"`
	PrivateKey     string        `envconfig:"LIQPAY_PRIVATE_KEY" required:"true"`
	BaseURL        string        `envconfig:"LIQPAY_BASE_URL" default:"https://www.liqpay.ua/api"`
	Timeout        time.Duration `envconfig:"LIQPAY_TIMEOUT" default:"30s"`
	DisableRetries bool          `envconfig:"LIQPAY_DISABLE_RETRIES" default:"false"`
}

// ProviderError wraps an upstream API failure after retries are exhausted.
// Session operations return it as a value; nothing in the gateway panics on
// provider failures.
type ProviderError struct {
	Code       string
	Message    string
	Detail     string
	StatusCode int
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("liqpay: %s (%s)", e.Message, e.Code)
	}
	return fmt.Sprintf("liqpay: %s", e.Message)
}

// retryable reports whether the failure may be transient: network errors
// and upstream 5xx responses. Client errors are final.
func (e *ProviderError) retryable() bool {
	return e.StatusCode == 0 || e.StatusCode >= 500
}

// Client calls the LiqPay REST API. Both operations it exposes are
// idempotent against the provider, so the retry policy applies to each.
type Client struct {
	cfg        Config
	httpClient *http.Client
	retry      retry.Policy
	logger     *slog.Logger
}

// NewClient creates a LiqPay API client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	policy := retry.Default()
	if cfg.DisableRetries {
		policy = retry.Policy{MaxAttempts: 1}
	}
	policy.ShouldRetry = func(err error) bool {
		var pe *ProviderError
		if errors.As(err, &pe) {
			return pe.retryable()
		}
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		retry:  policy,
		logger: logger,
	}
}

// GetTransaction fetches the current status of the transaction keyed by the
// given order (cart) identifier.
func (c *Client) GetTransaction(ctx context.Context, orderID string) (*TransactionStatus, error) {
	return c.request(ctx, map[string]any{
		"action":     "status",
		"version":    apiVersion,
		"order_id":   orderID,
		"public_key": c.cfg.PublicKey,
	})
}

// CreateRefund requests a refund of the given major-unit amount against the
// transaction keyed by orderID. A successful refund reports status
// "reversed"; callers must check.
func (c *Client) CreateRefund(ctx context.Context, orderID string, amount float64) (*TransactionStatus, error) {
	return c.request(ctx, map[string]any{
		"action":     "refund",
		"version":    apiVersion,
		"order_id":   orderID,
		"amount":     amount,
		"public_key": c.cfg.PublicKey,
	})
}

// request signs and posts a form-encoded API request, retrying per policy.
func (c *Client) request(ctx context.Context, params map[string]any) (*TransactionStatus, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}
	data := base64.StdEncoding.EncodeToString(body)

	form := url.Values{}
	form.Set("data", data)
	form.Set("signature", Sign(c.cfg.PrivateKey, data))
	encoded := form.Encode()

	var result *TransactionStatus
	err = c.retry.Do(ctx, func() error {
		ts, err := c.post(ctx, encoded)
		if err != nil {
			return err
		}
		result = ts
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) post(ctx context.Context, form string) (*TransactionStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/request", strings.NewReader(form))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ProviderError{Message: "request failed", Detail: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{Message: "reading response", Detail: err.Error(), StatusCode: resp.StatusCode}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		pe := &ProviderError{
			Message:    fmt.Sprintf("API responded with status %d", resp.StatusCode),
			StatusCode: resp.StatusCode,
		}
		var body struct {
			ErrCode        string `json:"err_code"`
			ErrDescription string `json:"err_description"`
		}
		if json.Unmarshal(raw, &body) == nil {
			pe.Code = body.ErrCode
			pe.Detail = body.ErrDescription
		}
		return nil, pe
	}

	var ts TransactionStatus
	if err := json.Unmarshal(raw, &ts); err != nil {
		return nil, &ProviderError{Message: "decoding response", Detail: err.Error(), StatusCode: resp.StatusCode}
	}

	c.logger.Debug("liqpay response",
		"action", ts.Action,
		"order_id", ts.OrderID,
		"status", ts.Status,
	)

	return &ts, nil
}
