// Package fakescan implements an in-memory Etherscan-compatible explorer.
// It serves the three contract verification actions over the usual /api
// endpoint and is used by the fakescan CLI command and the end-to-end
// tests as a stand-in for a real explorer.
package fakescan

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/veriport/veriport/internal/middleware/logging"
	"github.com/veriport/veriport/internal/middleware/security"
	"github.com/veriport/veriport/pkg/etherscan"
)

// DefaultMaxBodyBytes bounds verification submissions. Generous enough for
// flattened source trees, small enough to shrug off junk uploads.
const DefaultMaxBodyBytes = 8 << 20

// contractState tracks one address on the fake explorer. Seeded contracts
// start out verified so they can be fetched as migration sources.
type contractState struct {
	source   etherscan.ContractSource
	verified bool
	fail     bool
}

// verifyJob is an accepted verification submission working through its
// pending polls.
type verifyJob struct {
	address   string
	source    etherscan.ContractSource
	remaining int
	fail      bool
}

// Server is the fake explorer
type Server struct {
	logger       *slog.Logger
	router       *chi.Mux
	pendingPolls int
	limiter      *rate.Limiter
	apiKey       string
	maxBodySize  int64

	mu        sync.Mutex
	contracts map[string]*contractState
	jobs      map[string]*verifyJob
}

// Option configures the server
type Option func(*Server)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithPendingPolls sets how many status checks a submission answers with
// "Pending in queue" before reaching its terminal state.
func WithPendingPolls(n int) Option {
	return func(s *Server) {
		s.pendingPolls = n
	}
}

// WithRateLimit throttles the /api endpoint. Requests over the limit get
// the explorer's usual NOTOK rate limit response, not an HTTP error.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *Server) {
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithAPIKey requires every request to carry the given apikey parameter
func WithAPIKey(key string) Option {
	return func(s *Server) {
		s.apiKey = key
	}
}

// WithMaxBodySize overrides the submission body cap
func WithMaxBodySize(n int64) Option {
	return func(s *Server) {
		s.maxBodySize = n
	}
}

// New creates a fake explorer server
func New(opts ...Option) *Server {
	s := &Server{
		logger:       slog.Default(),
		router:       chi.NewRouter(),
		pendingPolls: 1,
		maxBodySize:  DefaultMaxBodyBytes,
		contracts:    make(map[string]*contractState),
		jobs:         make(map[string]*verifyJob),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(logging.Middleware(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(security.MaxBodySize(s.maxBodySize))

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/api", s.handleAPI)
	s.router.Post("/api", s.handleAPI)

	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Seed registers a verified contract so getsourcecode can return it
func (s *Server) Seed(address string, src etherscan.ContractSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contracts[strings.ToLower(address)] = &contractState{source: src, verified: true}
}

// FailVerification marks an address so submissions for it end in
// "Fail - Unable to verify".
func (s *Server) FailVerification(address string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	addr := strings.ToLower(address)
	if c, ok := s.contracts[addr]; ok {
		c.fail = true
		return
	}
	s.contracts[addr] = &contractState{fail: true}
}

// Verified reports whether an address holds a verified contract
func (s *Server) Verified(address string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contracts[strings.ToLower(address)]
	return ok && c.verified
}

// Source returns the stored source for an address, if verified
func (s *Server) Source(address string) (etherscan.ContractSource, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contracts[strings.ToLower(address)]
	if !ok || !c.verified {
		return etherscan.ContractSource{}, false
	}
	return c.source, true
}

// SeedEntry is one contract in a seed file
type SeedEntry struct {
	Address string                   `json:"address"`
	Fail    bool                     `json:"fail,omitempty"`
	Source  etherscan.ContractSource `json:"source"`
}

// LoadSeedFile seeds the server from a JSON file of SeedEntry records
func (s *Server) LoadSeedFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading seed file: %w", err)
	}

	var entries []SeedEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return 0, fmt.Errorf("parsing seed file: %w", err)
	}

	for _, e := range entries {
		s.Seed(e.Address, e.Source)
		if e.Fail {
			s.FailVerification(e.Address)
		}
	}
	return len(entries), nil
}

// SeedDemo loads a pair of built-in demo contracts and returns their
// addresses, for trying the tool without a seed file.
func (s *Server) SeedDemo() []string {
	single := "0x1000000000000000000000000000000000000001"
	standard := "0x1000000000000000000000000000000000000002"

	s.Seed(single, etherscan.ContractSource{
		SourceCode:       "// SPDX-License-Identifier: MIT\npragma solidity ^0.8.19;\n\ncontract Counter {\n    uint256 public count;\n\n    function increment() external {\n        count += 1;\n    }\n}\n",
		ABI:              `[{"inputs":[],"name":"increment","outputs":[],"stateMutability":"nonpayable","type":"function"}]`,
		ContractName:     "Counter",
		CompilerVersion:  "v0.8.19+commit.7dd6d404",
		OptimizationUsed: "1",
		Runs:             "200",
		EVMVersion:       "Default",
		LicenseType:      "MIT",
	})

	s.Seed(standard, etherscan.ContractSource{
		SourceCode:      `{{"language":"Solidity","sources":{"src/Vault.sol":{"content":"// SPDX-License-Identifier: MIT\npragma solidity ^0.8.19;\n\ncontract Vault {}\n"}},"settings":{"optimizer":{"enabled":true,"runs":200}}}}`,
		ABI:             `[]`,
		ContractName:    "src/Vault.sol:Vault",
		CompilerVersion: "v0.8.19+commit.7dd6d404",
		EVMVersion:      "paris",
		LicenseType:     "MIT",
	})

	return []string{single, standard}
}
