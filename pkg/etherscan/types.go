package etherscan

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Code formats accepted by the verifysourcecode action.
const (
	FormatSingleFile   = "solidity-single-file"
	FormatStandardJSON = "solidity-standard-json-input"
)

// MaxLibraries is the number of library slots the verification form exposes.
const MaxLibraries = 10

// envelope is the outer response shape shared by all explorer actions.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

const statusOK = "1"

// resultString decodes Result as a plain string, falling back to the raw
// bytes when the explorer returned a non-string result.
func (e *envelope) resultString() string {
	var s string
	if err := json.Unmarshal(e.Result, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(e.Result))
}

// ContractSource is one entry of the getsourcecode result. Explorers return
// every field as a string, including booleans and integers.
type ContractSource struct {
	SourceCode           string `json:"SourceCode"`
	ABI                  string `json:"ABI"`
	ContractName         string `json:"ContractName"`
	CompilerVersion      string `json:"CompilerVersion"`
	OptimizationUsed     string `json:"OptimizationUsed"`
	Runs                 string `json:"Runs"`
	ConstructorArguments string `json:"ConstructorArguments"`
	EVMVersion           string `json:"EVMVersion"`
	Library              string `json:"Library"`
	LicenseType          string `json:"LicenseType"`
	Proxy                string `json:"Proxy"`
	Implementation       string `json:"Implementation"`
	SwarmSource          string `json:"SwarmSource"`
}

// Library pairs a linked library name with its deployed address.
type Library struct {
	Name    string
	Address string
}

// VerifyRequest carries the form fields of a verifysourcecode submission.
// Field values are already in the explorer's wire representation; the client
// only adds the envelope fields (module, action, apikey).
type VerifyRequest struct {
	Address              string
	CodeFormat           string
	SourceCode           string
	ContractName         string
	CompilerVersion      string
	OptimizationUsed     string
	Runs                 string
	ConstructorArguments string
	EVMVersion           string
	LicenseType          string
	Libraries            []Library
}

// formValues renders the request as the explorer's form field set. The
// constructor argument field name preserves the API's historical spelling.
func (r *VerifyRequest) formValues(apiKey string) url.Values {
	form := url.Values{
		"module":          {"contract"},
		"action":          {"verifysourcecode"},
		"apikey":          {apiKey},
		"contractaddress": {r.Address},
		"codeformat":      {r.CodeFormat},
		"sourceCode":      {r.SourceCode},
		"contractname":    {r.ContractName},
		"compilerversion": {r.CompilerVersion},
	}
	if r.OptimizationUsed != "" {
		form.Set("optimizationUsed", r.OptimizationUsed)
	}
	if r.Runs != "" {
		form.Set("runs", r.Runs)
	}
	if r.ConstructorArguments != "" {
		form.Set("constructorArguements", r.ConstructorArguments)
	}
	if r.EVMVersion != "" {
		form.Set("evmversion", r.EVMVersion)
	}
	if r.LicenseType != "" {
		form.Set("licenseType", r.LicenseType)
	}
	for i, lib := range r.Libraries {
		form.Set(fmt.Sprintf("libraryname%d", i+1), lib.Name)
		form.Set(fmt.Sprintf("libraryaddress%d", i+1), lib.Address)
	}
	return form
}

// PollState classifies a checkverifystatus response.
type PollState int

const (
	// PollPending means the verification job is still queued or compiling.
	PollPending PollState = iota
	// PollSuccess means the explorer verified the contract.
	PollSuccess
	// PollFailure means the explorer definitively rejected the submission.
	PollFailure
)

// String returns the state name for logs.
func (s PollState) String() string {
	switch s {
	case PollPending:
		return "pending"
	case PollSuccess:
		return "success"
	case PollFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// PollResult is the outcome of a single status poll. Detail carries the
// explorer's human-readable result string, e.g. "Pass - Verified".
type PollResult struct {
	State  PollState
	Detail string
}
