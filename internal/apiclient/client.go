// Package apiclient talks to the remote fraud-scoring API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/opensource-finance/fraudguard/internal/domain"
)

// Operation names used in errors, logs and metrics.
const (
	OpLogin    = "login"
	OpRegister = "register"
	OpPredict  = "predict"
	OpHistory  = "history"
)

const maxBodyBytes = 4 << 20

// Recorder receives one observation per API call.
type Recorder interface {
	ObserveAPICall(operation, outcome string, d time.Duration)
}

// Options configures a Client.
type Options struct {
	BaseURL string
	Timeout time.Duration

	// Tokens supplies the bearer credential for every request.
	Tokens domain.TokenSource

	// Transport is the innermost RoundTripper. Defaults to http.DefaultTransport.
	Transport http.RoundTripper

	Recorder Recorder
}

// Client is the fraud API client. Safe for concurrent use.
type Client struct {
	baseURL  string
	http     *http.Client
	recorder Recorder
}

// New builds a client whose transport chain is request id, tracing, bearer.
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: Chain(opts.Transport, RequestID(), Tracing(), Bearer(opts.Tokens)),
		},
		recorder: opts.Recorder,
	}
}

// BaseURL returns the API root the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	req, err := c.newRequest(ctx, http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var out tokenResponse
	if err := c.do(req, OpLogin, &out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("%s: %w: response has no access_token", OpLogin, domain.ErrServerRejected)
	}
	return out.AccessToken, nil
}

// Register creates an account. Any 2xx is success.
func (c *Client) Register(ctx context.Context, form domain.RegistrationForm) error {
	req, err := c.newJSONRequest(ctx, http.MethodPost, "/auth/register", form)
	if err != nil {
		return err
	}
	return c.do(req, OpRegister, nil)
}

// PredictTransaction scores input. The returned result has no Latency;
// callers measure it around this call.
func (c *Client) PredictTransaction(ctx context.Context, input domain.TransactionInput) (*domain.PredictionResult, error) {
	req, err := c.newJSONRequest(ctx, http.MethodPost, "/predict", input)
	if err != nil {
		return nil, err
	}

	var out domain.PredictionResult
	if err := c.do(req, OpPredict, &out); err != nil {
		return nil, err
	}
	if out.Reasons == nil {
		out.Reasons = []string{}
	}
	return &out, nil
}

// GetHistory returns past predictions in server order.
func (c *Client) GetHistory(ctx context.Context) ([]domain.HistoryRecord, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/history", nil)
	if err != nil {
		return nil, err
	}

	var out []domain.HistoryRecord
	if err := c.do(req, OpHistory, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.HistoryRecord{}
	}
	return out, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) newJSONRequest(ctx context.Context, method, path string, payload any) (*http.Request, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, method, path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// do sends req and decodes a 2xx body into out (when non-nil).
func (c *Client) do(req *http.Request, op string, out any) (err error) {
	start := time.Now()
	defer func() {
		duration := time.Since(start)
		outcome := string(domain.Classify(err))
		if outcome == "" {
			outcome = "ok"
		}
		if c.recorder != nil {
			c.recorder.ObserveAPICall(op, outcome, duration)
		}
		slog.Debug("api call",
			"operation", op,
			"outcome", outcome,
			"duration_ms", duration.Milliseconds(),
		)
	}()

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("%s: %w", op, context.Canceled)
		}
		return fmt.Errorf("%s: %w: %v", op, domain.ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%s: %w: read body: %v", op, domain.ErrNetworkUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Op: op, Status: resp.StatusCode, Detail: parseDetail(body)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: %w: decode response: %v", op, domain.ErrServerRejected, err)
	}
	return nil
}
