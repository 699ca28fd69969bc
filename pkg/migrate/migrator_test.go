package migrate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veriport/veriport/pkg/etherscan"
)

// mockExplorer implements Explorer for testing
type mockExplorer struct {
	mu          sync.Mutex
	fetchCalls  int
	submitCalls int
	statusCalls int

	fetch  func(address string) (*etherscan.ContractSource, error)
	submit func(req *etherscan.VerifyRequest) (string, error)
	status func(guid string) (etherscan.PollResult, error)
}

func (m *mockExplorer) FetchSource(ctx context.Context, address string) (*etherscan.ContractSource, error) {
	m.mu.Lock()
	m.fetchCalls++
	m.mu.Unlock()
	if m.fetch == nil {
		return singleFileSource(), nil
	}
	return m.fetch(address)
}

func (m *mockExplorer) Submit(ctx context.Context, req *etherscan.VerifyRequest) (string, error) {
	m.mu.Lock()
	m.submitCalls++
	m.mu.Unlock()
	if m.submit == nil {
		return "guid-1", nil
	}
	return m.submit(req)
}

func (m *mockExplorer) CheckStatus(ctx context.Context, guid string) (etherscan.PollResult, error) {
	m.mu.Lock()
	m.statusCalls++
	m.mu.Unlock()
	if m.status == nil {
		return etherscan.PollResult{State: etherscan.PollSuccess, Detail: "Pass - Verified"}, nil
	}
	return m.status(guid)
}

func (m *mockExplorer) calls() (fetch, submit, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetchCalls, m.submitCalls, m.statusCalls
}

func singleFileSource() *etherscan.ContractSource {
	return &etherscan.ContractSource{
		SourceCode:       "pragma solidity ^0.8.0; contract Token {}",
		ContractName:     "Token",
		CompilerVersion:  "v0.8.19+commit.7dd6d404",
		OptimizationUsed: "1",
		Runs:             "200",
	}
}

func testAddr(i int) string {
	return fmt.Sprintf("0x%040x", i)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastOptions(extra ...Option) []Option {
	opts := []Option{
		WithPolling(3, time.Millisecond),
		WithLogger(testLogger()),
	}
	return append(opts, extra...)
}

func TestMigrate_Verified(t *testing.T) {
	source := &mockExplorer{}
	pending := 0
	target := &mockExplorer{
		status: func(guid string) (etherscan.PollResult, error) {
			pending++
			if pending <= 2 {
				return etherscan.PollResult{State: etherscan.PollPending, Detail: "Pending in queue"}, nil
			}
			return etherscan.PollResult{State: etherscan.PollSuccess, Detail: "Pass - Verified"}, nil
		},
	}

	m := NewWithExplorers(source, target, fastOptions()...)
	report, err := m.Migrate(context.Background(), []string{testAddr(1)})
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 1)
	outcome := report.Outcomes[0]
	assert.Equal(t, StatusVerified, outcome.Status)
	assert.Equal(t, testAddr(1), outcome.Address)
	assert.Equal(t, 3, outcome.Polls)
	assert.Empty(t, outcome.Reason)
	assert.False(t, report.HasFailures())
}

func TestMigrate_AlreadyVerified_NeverPolls(t *testing.T) {
	source := &mockExplorer{}
	target := &mockExplorer{
		submit: func(req *etherscan.VerifyRequest) (string, error) {
			return "", etherscan.ErrAlreadyVerified
		},
	}

	m := NewWithExplorers(source, target, fastOptions()...)
	report, err := m.Migrate(context.Background(), []string{testAddr(1)})
	require.NoError(t, err)

	assert.Equal(t, StatusAlreadyVerified, report.Outcomes[0].Status)
	assert.Equal(t, 0, report.Outcomes[0].Polls)

	_, submits, polls := target.calls()
	assert.Equal(t, 1, submits, "exactly one submission, never a second")
	assert.Equal(t, 0, polls, "no status poll after a short-circuit")
	assert.False(t, report.HasFailures())
}

func TestMigrate_SourceNotFound_ContinuesBatch(t *testing.T) {
	source := &mockExplorer{
		fetch: func(address string) (*etherscan.ContractSource, error) {
			if address == testAddr(1) {
				return nil, etherscan.ErrSourceNotFound
			}
			return singleFileSource(), nil
		},
	}
	target := &mockExplorer{}

	m := NewWithExplorers(source, target, fastOptions()...)
	report, err := m.Migrate(context.Background(), []string{testAddr(1), testAddr(2)})
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 2)
	assert.Equal(t, StatusSourceNotFound, report.Outcomes[0].Status)
	assert.Equal(t, StatusVerified, report.Outcomes[1].Status)
	assert.True(t, report.HasFailures())

	verified, already, failed := report.Counts()
	assert.Equal(t, 1, verified)
	assert.Equal(t, 0, already)
	assert.Equal(t, 1, failed)
}

func TestMigrate_FailFast_SkipsRemaining(t *testing.T) {
	source := &mockExplorer{
		fetch: func(address string) (*etherscan.ContractSource, error) {
			return nil, etherscan.ErrSourceNotFound
		},
	}
	target := &mockExplorer{}

	m := NewWithExplorers(source, target, fastOptions(WithFailFast())...)
	report, err := m.Migrate(context.Background(), []string{testAddr(1), testAddr(2), testAddr(3)})
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 3)
	assert.Equal(t, StatusSourceNotFound, report.Outcomes[0].Status)
	assert.Equal(t, StatusFailed, report.Outcomes[1].Status)
	assert.Equal(t, ReasonSkipped, report.Outcomes[1].Reason)
	assert.Equal(t, StatusFailed, report.Outcomes[2].Status)
	assert.Equal(t, ReasonSkipped, report.Outcomes[2].Reason)

	fetches, _, _ := source.calls()
	assert.Equal(t, 1, fetches, "skipped addresses are never attempted")
}

func TestMigrate_PollBudgetExhausted(t *testing.T) {
	source := &mockExplorer{}
	target := &mockExplorer{
		status: func(guid string) (etherscan.PollResult, error) {
			return etherscan.PollResult{State: etherscan.PollPending, Detail: "Pending in queue"}, nil
		},
	}

	m := NewWithExplorers(source, target, fastOptions()...)
	report, err := m.Migrate(context.Background(), []string{testAddr(1)})
	require.NoError(t, err)

	outcome := report.Outcomes[0]
	assert.Equal(t, StatusExhausted, outcome.Status)
	assert.Equal(t, 3, outcome.Polls)

	_, _, polls := target.calls()
	assert.Equal(t, 3, polls, "polling terminates at the budget")
}

func TestMigrate_PollTransientErrorsConsumeBudget(t *testing.T) {
	source := &mockExplorer{}
	target := &mockExplorer{
		status: func(guid string) (etherscan.PollResult, error) {
			return etherscan.PollResult{}, &etherscan.TransientError{Err: fmt.Errorf("connection reset")}
		},
	}

	m := NewWithExplorers(source, target, fastOptions()...)
	report, err := m.Migrate(context.Background(), []string{testAddr(1)})
	require.NoError(t, err)

	assert.Equal(t, StatusExhausted, report.Outcomes[0].Status)
	assert.Equal(t, 3, report.Outcomes[0].Polls)
}

func TestMigrate_PollFailure(t *testing.T) {
	source := &mockExplorer{}
	target := &mockExplorer{
		status: func(guid string) (etherscan.PollResult, error) {
			return etherscan.PollResult{State: etherscan.PollFailure, Detail: "Fail - Unable to verify"}, nil
		},
	}

	m := NewWithExplorers(source, target, fastOptions()...)
	report, err := m.Migrate(context.Background(), []string{testAddr(1)})
	require.NoError(t, err)

	outcome := report.Outcomes[0]
	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Equal(t, "Fail - Unable to verify", outcome.Reason)
}

func TestMigrate_SubmitRejected(t *testing.T) {
	source := &mockExplorer{}
	target := &mockExplorer{
		submit: func(req *etherscan.VerifyRequest) (string, error) {
			return "", &etherscan.RejectedError{Reason: "Invalid compiler version"}
		},
	}

	m := NewWithExplorers(source, target, fastOptions()...)
	report, err := m.Migrate(context.Background(), []string{testAddr(1)})
	require.NoError(t, err)

	outcome := report.Outcomes[0]
	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Contains(t, outcome.Reason, "Invalid compiler version")
	assert.Equal(t, 0, outcome.Polls)
}

func TestMigrate_FetchTransientExhausted(t *testing.T) {
	source := &mockExplorer{
		fetch: func(address string) (*etherscan.ContractSource, error) {
			return nil, &etherscan.TransientError{Err: fmt.Errorf("HTTP 502")}
		},
	}
	target := &mockExplorer{}

	m := NewWithExplorers(source, target, fastOptions()...)
	report, err := m.Migrate(context.Background(), []string{testAddr(1)})
	require.NoError(t, err)

	assert.Equal(t, StatusExhausted, report.Outcomes[0].Status)
	assert.Contains(t, report.Outcomes[0].Reason, "fetching source")
}

func TestMigrate_NormalizationFailure(t *testing.T) {
	source := &mockExplorer{
		fetch: func(address string) (*etherscan.ContractSource, error) {
			src := singleFileSource()
			src.SourceCode = `{"language": "Solidity", "sources": ` // truncated document
			return src, nil
		},
	}
	target := &mockExplorer{}

	m := NewWithExplorers(source, target, fastOptions()...)
	report, err := m.Migrate(context.Background(), []string{testAddr(1)})
	require.NoError(t, err)

	outcome := report.Outcomes[0]
	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Contains(t, outcome.Reason, "normalizing source")

	_, submits, _ := target.calls()
	assert.Equal(t, 0, submits, "nothing is submitted when normalization fails")
}

func TestMigrate_EmptyAddressList(t *testing.T) {
	m := NewWithExplorers(&mockExplorer{}, &mockExplorer{}, fastOptions()...)
	report, err := m.Migrate(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, report.Outcomes)
	assert.False(t, report.HasFailures())
}

func TestMigrate_InvalidAddress(t *testing.T) {
	m := NewWithExplorers(&mockExplorer{}, &mockExplorer{}, fastOptions()...)
	_, err := m.Migrate(context.Background(), []string{"0xnothex"})
	require.Error(t, err)
}

func TestMigrate_Cancellation(t *testing.T) {
	source := &mockExplorer{}
	target := &mockExplorer{
		status: func(guid string) (etherscan.PollResult, error) {
			return etherscan.PollResult{State: etherscan.PollPending, Detail: "Pending in queue"}, nil
		},
	}

	m := NewWithExplorers(source, target,
		WithPolling(10, 50*time.Millisecond),
		WithLogger(testLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(75 * time.Millisecond)
		cancel()
	}()

	report, err := m.Migrate(ctx, []string{testAddr(1), testAddr(2)})
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 2)
	assert.Equal(t, StatusFailed, report.Outcomes[0].Status)
	assert.Equal(t, ReasonCancelled, report.Outcomes[0].Reason)
	// The second address was never started.
	assert.Equal(t, StatusFailed, report.Outcomes[1].Status)
	assert.Equal(t, ReasonCancelled, report.Outcomes[1].Reason)

	fetches, _, _ := source.calls()
	assert.Equal(t, 1, fetches)
}

func TestMigrate_ConcurrentKeepsInputOrder(t *testing.T) {
	source := &mockExplorer{
		fetch: func(address string) (*etherscan.ContractSource, error) {
			if address == testAddr(2) {
				return nil, etherscan.ErrSourceNotFound
			}
			return singleFileSource(), nil
		},
	}
	target := &mockExplorer{}

	addresses := []string{testAddr(0), testAddr(1), testAddr(2), testAddr(3)}
	m := NewWithExplorers(source, target, fastOptions(WithConcurrency(3))...)
	report, err := m.Migrate(context.Background(), addresses)
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 4)
	for i, outcome := range report.Outcomes {
		assert.Equal(t, addresses[i], outcome.Address, "outcome %d out of order", i)
	}
	assert.Equal(t, StatusVerified, report.Outcomes[0].Status)
	assert.Equal(t, StatusVerified, report.Outcomes[1].Status)
	assert.Equal(t, StatusSourceNotFound, report.Outcomes[2].Status)
	assert.Equal(t, StatusVerified, report.Outcomes[3].Status)
}

func TestMigrate_OnOutcomeCallback(t *testing.T) {
	source := &mockExplorer{}
	target := &mockExplorer{}

	var mu sync.Mutex
	seen := make(map[int]Status)

	m := NewWithExplorers(source, target, fastOptions(
		WithOnOutcome(func(index int, outcome Outcome) {
			mu.Lock()
			seen[index] = outcome.Status
			mu.Unlock()
		}))...)

	_, err := m.Migrate(context.Background(), []string{testAddr(1), testAddr(2)})
	require.NoError(t, err)

	assert.Equal(t, map[int]Status{0: StatusVerified, 1: StatusVerified}, seen)
}

func TestNew_ValidatesURLs(t *testing.T) {
	_, err := New(Config{
		SourceURL: "not-a-url",
		TargetURL: "http://localhost:8545/api",
	})
	require.Error(t, err)

	_, err = New(Config{
		SourceURL: "http://localhost:8544/api",
		TargetURL: "",
	})
	require.Error(t, err)

	m, err := New(Config{
		SourceURL: "http://localhost:8544/api",
		TargetURL: "http://localhost:8545/api",
	})
	require.NoError(t, err)
	assert.NotNil(t, m)
}
