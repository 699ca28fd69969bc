// Package migrate copies verified-source metadata for smart contracts from
// one Etherscan-compatible explorer to another. Each address runs the same
// workflow: fetch the source record, normalize it into a submission,
// submit, then poll the verification job to a terminal state.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/veriport/veriport/internal/observability/metrics"
	"github.com/veriport/veriport/internal/sourcefmt"
	"github.com/veriport/veriport/internal/validation"
	"github.com/veriport/veriport/pkg/etherscan"
)

// Defaults match the polling behavior verification queues are sized for:
// jobs usually land within a minute or two.
const (
	DefaultPollAttempts = 10
	DefaultPollInterval = 10 * time.Second
	DefaultConcurrency  = 1
)

// Failure reasons for outcomes that never reached the target explorer.
const (
	ReasonCancelled = "cancelled"
	ReasonSkipped   = "skipped: fail-fast"
)

// Config carries the read-only endpoints and credentials for one batch.
type Config struct {
	SourceURL    string
	SourceAPIKey string
	TargetURL    string
	TargetAPIKey string
}

// Explorer is the slice of the explorer client the migrator needs. It is
// satisfied by *etherscan.Client.
type Explorer interface {
	FetchSource(ctx context.Context, address string) (*etherscan.ContractSource, error)
	Submit(ctx context.Context, req *etherscan.VerifyRequest) (string, error)
	CheckStatus(ctx context.Context, guid string) (etherscan.PollResult, error)
}

type options struct {
	failFast     bool
	concurrency  int
	pollAttempts int
	pollInterval time.Duration
	minInterval  time.Duration
	maxRetries   int
	retryDelay   time.Duration
	logger       *slog.Logger
	onOutcome    func(index int, outcome Outcome)
}

func defaultOptions() options {
	return options{
		concurrency:  DefaultConcurrency,
		pollAttempts: DefaultPollAttempts,
		pollInterval: DefaultPollInterval,
		minInterval:  etherscan.DefaultMinInterval,
		maxRetries:   etherscan.DefaultMaxRetries,
		retryDelay:   etherscan.DefaultRetryDelay,
		logger:       slog.Default(),
	}
}

// Option configures a Migrator
type Option func(*options)

// WithFailFast stops dispatching new addresses after the first failure.
// Addresses not attempted still appear in the report as skipped failures.
func WithFailFast() Option {
	return func(o *options) {
		o.failFast = true
	}
}

// WithConcurrency bounds how many addresses migrate in parallel. Requests
// still share each explorer's rate limiter.
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithPolling sets the status poll budget and spacing per contract.
func WithPolling(attempts int, interval time.Duration) Option {
	return func(o *options) {
		if attempts > 0 {
			o.pollAttempts = attempts
		}
		if interval > 0 {
			o.pollInterval = interval
		}
	}
}

// WithRateLimit sets the minimum spacing between requests to one explorer.
func WithRateLimit(minInterval time.Duration) Option {
	return func(o *options) {
		if minInterval > 0 {
			o.minInterval = minInterval
		}
	}
}

// WithRetry sets the transient-error retry budget for fetch and submit.
func WithRetry(maxRetries int, baseDelay time.Duration) Option {
	return func(o *options) {
		o.maxRetries = maxRetries
		o.retryDelay = baseDelay
	}
}

// WithLogger sets the logger for migration progress and diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithOnOutcome registers a callback fired as each address reaches a
// terminal state. With Concurrency > 1 it must be safe for concurrent use.
func WithOnOutcome(fn func(index int, outcome Outcome)) Option {
	return func(o *options) {
		o.onOutcome = fn
	}
}

// Migrator runs verification migrations from a source explorer to a target
// explorer. Both clients and all options are read-only after construction.
type Migrator struct {
	source Explorer
	target Explorer
	opts   options
}

// New creates a Migrator talking to the explorers described by cfg.
func New(cfg Config, opts ...Option) (*Migrator, error) {
	if err := validation.ValidateExplorerURL(cfg.SourceURL); err != nil {
		return nil, fmt.Errorf("source explorer: %w", err)
	}
	if err := validation.ValidateExplorerURL(cfg.TargetURL); err != nil {
		return nil, fmt.Errorf("target explorer: %w", err)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	source := etherscan.New(cfg.SourceURL, cfg.SourceAPIKey,
		etherscan.WithName("source"),
		etherscan.WithMinInterval(o.minInterval),
		etherscan.WithRetry(o.maxRetries, o.retryDelay),
		etherscan.WithLogger(o.logger))
	target := etherscan.New(cfg.TargetURL, cfg.TargetAPIKey,
		etherscan.WithName("target"),
		etherscan.WithMinInterval(o.minInterval),
		etherscan.WithRetry(o.maxRetries, o.retryDelay),
		etherscan.WithLogger(o.logger))

	return &Migrator{source: source, target: target, opts: o}, nil
}

// NewWithExplorers creates a Migrator over explicit Explorer
// implementations. Rate limiting and retry options are ignored here; they
// belong to the explorer clients.
func NewWithExplorers(source, target Explorer, opts ...Option) *Migrator {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Migrator{source: source, target: target, opts: o}
}

// Run migrates addresses in one call, constructing the Migrator from cfg.
func Run(ctx context.Context, addresses []string, cfg Config, opts ...Option) (*Report, error) {
	m, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return m.Migrate(ctx, addresses)
}

// Migrate runs the batch and returns one outcome per input address, in
// input order. Per-address failures land in the report, never in the
// returned error; the error is reserved for invalid input. An empty
// address list is a no-op success.
func (m *Migrator) Migrate(ctx context.Context, addresses []string) (*Report, error) {
	if err := validation.ValidateAddresses(addresses); err != nil {
		return nil, err
	}

	report := &Report{Outcomes: make([]Outcome, len(addresses))}
	if len(addresses) == 0 {
		return report, nil
	}

	workers := m.opts.concurrency
	if workers > len(addresses) {
		workers = len(addresses)
	}

	var stopped atomic.Bool
	jobs := make(chan int)
	var wg sync.WaitGroup

	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				address := addresses[i]

				var outcome Outcome
				switch {
				case ctx.Err() != nil:
					outcome = Outcome{Address: address, Status: StatusFailed, Reason: ReasonCancelled}
				case stopped.Load():
					outcome = Outcome{Address: address, Status: StatusFailed, Reason: ReasonSkipped}
				default:
					outcome = m.migrateOne(ctx, address)
				}

				if m.opts.failFast && !outcome.Status.Success() {
					stopped.Store(true)
				}

				metrics.Migration(string(outcome.Status), outcome.Elapsed.Seconds(), outcome.Polls)
				report.Outcomes[i] = outcome
				if m.opts.onOutcome != nil {
					m.opts.onOutcome(i, outcome)
				}
			}
		}()
	}

	for i := range addresses {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return report, nil
}

// migrateOne drives a single address through the fetch, normalize, submit,
// poll sequence and returns its terminal outcome.
func (m *Migrator) migrateOne(ctx context.Context, address string) Outcome {
	start := time.Now()
	logger := m.opts.logger.With("address", address)

	finish := func(status Status, reason string, polls int) Outcome {
		outcome := Outcome{
			Address: address,
			Status:  status,
			Reason:  reason,
			Polls:   polls,
			Elapsed: time.Since(start),
		}
		logger.Info("migration finished",
			"status", outcome.Status,
			"reason", outcome.Reason,
			"polls", outcome.Polls,
			"elapsed", outcome.Elapsed)
		return outcome
	}

	logger.Debug("fetching source record")
	src, err := m.source.FetchSource(ctx, address)
	switch {
	case errors.Is(err, etherscan.ErrSourceNotFound):
		return finish(StatusSourceNotFound, "source explorer has no verified source", 0)
	case isCancelled(err):
		return finish(StatusFailed, ReasonCancelled, 0)
	case etherscan.IsTransient(err):
		return finish(StatusExhausted, fmt.Sprintf("fetching source: %v", err), 0)
	case err != nil:
		return finish(StatusFailed, fmt.Sprintf("fetching source: %v", err), 0)
	}

	request, err := sourcefmt.Normalize(src, address)
	if err != nil {
		return finish(StatusFailed, fmt.Sprintf("normalizing source: %v", err), 0)
	}

	logger.Debug("submitting verification",
		"contract", request.ContractName,
		"format", request.CodeFormat,
		"compiler", request.CompilerVersion)
	guid, err := m.target.Submit(ctx, request)
	switch {
	case errors.Is(err, etherscan.ErrAlreadyVerified):
		// Short-circuit: the target needs nothing from us, so no polling.
		return finish(StatusAlreadyVerified, "", 0)
	case isCancelled(err):
		return finish(StatusFailed, ReasonCancelled, 0)
	case etherscan.IsTransient(err):
		return finish(StatusExhausted, fmt.Sprintf("submitting verification: %v", err), 0)
	case err != nil:
		return finish(StatusFailed, fmt.Sprintf("submitting verification: %v", err), 0)
	}

	logger.Debug("verification submitted", "guid", guid)

	polls := 0
	for attempt := 1; attempt <= m.opts.pollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return finish(StatusFailed, ReasonCancelled, polls)
		case <-time.After(m.opts.pollInterval):
		}

		result, err := m.target.CheckStatus(ctx, guid)
		polls++
		if isCancelled(err) {
			return finish(StatusFailed, ReasonCancelled, polls)
		}
		if err != nil {
			// A failed poll consumes its attempt; the budget still bounds
			// the loop.
			logger.Debug("status poll failed", "attempt", attempt, "error", err)
			continue
		}

		switch result.State {
		case etherscan.PollSuccess:
			return finish(StatusVerified, "", polls)
		case etherscan.PollFailure:
			return finish(StatusFailed, result.Detail, polls)
		}
		logger.Debug("verification pending", "attempt", attempt, "detail", result.Detail)
	}

	return finish(StatusExhausted, fmt.Sprintf("verification still pending after %d polls", polls), polls)
}

func isCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
