// Package etherscan provides a client for Etherscan-compatible contract
// verification APIs: fetching verified source records, submitting
// verification requests, and polling submission status.
package etherscan

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/veriport/veriport/internal/observability/metrics"
)

const (
	// DefaultMinInterval spaces consecutive requests to one explorer+key,
	// matching the free-tier limits of public Etherscan instances.
	DefaultMinInterval = 250 * time.Millisecond

	// DefaultMaxRetries bounds transient-error retries for fetch and submit.
	DefaultMaxRetries = 3

	// DefaultRetryDelay is the base backoff delay, doubled per retry.
	DefaultRetryDelay = 5 * time.Second

	defaultTimeout = 30 * time.Second
)

// Client talks to a single explorer endpoint with one API key. All requests
// through one Client share its rate limiter, so per-key spacing holds even
// under concurrent callers.
type Client struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	retryDelay time.Duration
	logger     *slog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithMinInterval sets the minimum spacing between consecutive requests.
func WithMinInterval(d time.Duration) Option {
	return func(client *Client) {
		if d > 0 {
			client.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

// WithRetry sets the transient-error retry budget and base backoff delay.
func WithRetry(maxRetries int, baseDelay time.Duration) Option {
	return func(client *Client) {
		client.maxRetries = maxRetries
		client.retryDelay = baseDelay
	}
}

// WithLogger sets the logger used for retry and request diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(client *Client) {
		client.logger = logger
	}
}

// WithName sets the label used for this explorer in logs and metrics,
// e.g. "source" or "target". Defaults to the endpoint host.
func WithName(name string) Option {
	return func(client *Client) {
		client.name = name
	}
}

// New creates a client for the explorer API at baseURL, typically ending in
// "/api" for Etherscan-compatible instances.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.limiter == nil {
		c.limiter = rate.NewLimiter(rate.Every(DefaultMinInterval), 1)
	}
	if c.name == "" {
		if u, err := url.Parse(c.baseURL); err == nil && u.Host != "" {
			c.name = u.Host
		} else {
			c.name = c.baseURL
		}
	}

	return c
}

// Name returns the client's log/metric label.
func (c *Client) Name() string {
	return c.name
}

// FetchSource retrieves the verified source record for address. Returns
// ErrSourceNotFound when the explorer holds no verified source for it;
// transient transport failures are retried internally up to the configured
// budget.
func (c *Client) FetchSource(ctx context.Context, address string) (*ContractSource, error) {
	params := url.Values{
		"module":  {"contract"},
		"action":  {"getsourcecode"},
		"address": {address},
		"apikey":  {c.apiKey},
	}

	var env *envelope
	err := c.withRetry(ctx, "getsourcecode", func(ctx context.Context) error {
		e, err := c.get(ctx, "getsourcecode", params)
		if err != nil {
			return err
		}
		if e.Status != statusOK {
			return notOKError(e.resultString(), ErrSourceNotFound)
		}
		env = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	var entries []ContractSource
	if err := json.Unmarshal(env.Result, &entries); err != nil {
		return nil, fmt.Errorf("decoding source record: %w", err)
	}
	// Explorers answer OK for unverified contracts too, with an entry whose
	// source code is empty.
	if len(entries) == 0 || entries[0].SourceCode == "" {
		return nil, ErrSourceNotFound
	}
	return &entries[0], nil
}

// Submit sends a verifysourcecode request and returns the guid identifying
// the queued verification job. Returns ErrAlreadyVerified when the explorer
// reports the address as verified, and *RejectedError when it rejects the
// payload outright. Transient failures are retried; each retry is a fresh
// submission and the guid of the attempt that landed is returned.
func (c *Client) Submit(ctx context.Context, req *VerifyRequest) (string, error) {
	form := req.formValues(c.apiKey)

	var guid string
	err := c.withRetry(ctx, "verifysourcecode", func(ctx context.Context) error {
		env, err := c.postForm(ctx, "verifysourcecode", form)
		if err != nil {
			return err
		}
		result := env.resultString()
		if env.Status != statusOK {
			if strings.Contains(strings.ToLower(result), "already verified") {
				return ErrAlreadyVerified
			}
			return notOKError(result, &RejectedError{Reason: result})
		}
		if result == "" {
			return &RejectedError{Reason: "explorer returned empty submission guid"}
		}
		guid = result
		return nil
	})
	if err != nil {
		return "", err
	}
	return guid, nil
}

// CheckStatus performs one checkverifystatus poll for guid. It never
// retries: transport failures surface as *TransientError and the caller
// owns poll spacing and budget.
func (c *Client) CheckStatus(ctx context.Context, guid string) (PollResult, error) {
	params := url.Values{
		"module": {"contract"},
		"action": {"checkverifystatus"},
		"guid":   {guid},
		"apikey": {c.apiKey},
	}

	env, err := c.get(ctx, "checkverifystatus", params)
	if err != nil {
		return PollResult{}, err
	}

	result := env.resultString()
	lower := strings.ToLower(result)
	switch {
	case strings.Contains(lower, "pending"):
		return PollResult{State: PollPending, Detail: result}, nil
	case strings.Contains(lower, "rate limit"):
		return PollResult{}, transientf("explorer throttled: %s", result)
	case env.Status == statusOK:
		return PollResult{State: PollSuccess, Detail: result}, nil
	default:
		return PollResult{State: PollFailure, Detail: result}, nil
	}
}

// notOKError maps a NOTOK result string onto the error taxonomy: throttling
// is retryable, key problems are rejections, anything else resolves to the
// calling action's definitive error.
func notOKError(result string, definitive error) error {
	lower := strings.ToLower(result)
	switch {
	case strings.Contains(lower, "rate limit"):
		return transientf("explorer throttled: %s", result)
	case strings.Contains(lower, "invalid api key"):
		return &RejectedError{Reason: result}
	default:
		return definitive
	}
}

// withRetry runs fn, retrying transient failures with doubling backoff up
// to the retry budget. Definitive errors return immediately.
func (c *Client) withRetry(ctx context.Context, action string, fn func(context.Context) error) error {
	delay := c.retryDelay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil || !IsTransient(err) {
			return err
		}
		if attempt >= c.maxRetries {
			return err
		}

		c.logger.Debug("retrying explorer request",
			"explorer", c.name,
			"action", action,
			"attempt", attempt+1,
			"delay", delay,
			"error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

func (c *Client) get(ctx context.Context, action string, params url.Values) (*envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	return c.do(req, action)
}

func (c *Client) postForm(ctx context.Context, action string, form url.Values) (*envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, action)
}

func (c *Client) do(req *http.Request, action string) (*envelope, error) {
	// Per-key spacing holds across all callers of this client, retries
	// included.
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ExplorerRequest(c.name, action, "network_error", time.Since(start).Seconds())
		return nil, transientf("calling explorer: %w", err)
	}
	defer resp.Body.Close()

	metrics.ExplorerRequest(c.name, action, strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())

	if resp.StatusCode >= 500 {
		return nil, transientf("explorer returned HTTP %d: %s", resp.StatusCode, resp.Status)
	}
	if resp.StatusCode >= 400 {
		return nil, &RejectedError{Reason: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, resp.Status)}
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, transientf("decoding explorer response: %w", err)
	}
	return &env, nil
}
