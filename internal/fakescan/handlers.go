package fakescan

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/veriport/veriport/pkg/etherscan"
)

// apiResponse is the explorer's response envelope
type apiResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  any    `json:"result"`
}

func writeResponse(w http.ResponseWriter, status, message string, result any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(apiResponse{Status: status, Message: message, Result: result})
}

func writeOK(w http.ResponseWriter, result any) {
	writeResponse(w, "1", "OK", result)
}

func writeNotOK(w http.ResponseWriter, result string) {
	writeResponse(w, "0", "NOTOK", result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleAPI dispatches on the module and action parameters, the way
// Etherscan multiplexes everything through one endpoint. Errors are
// reported inside the envelope with HTTP 200, matching the real API.
func (s *Server) handleAPI(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeNotOK(w, "Error! Malformed request")
		return
	}

	if s.limiter != nil && !s.limiter.Allow() {
		writeNotOK(w, "Max rate limit reached, please use API Key for higher rate limit")
		return
	}

	if s.apiKey != "" && r.FormValue("apikey") != s.apiKey {
		writeNotOK(w, "Missing/Invalid API Key")
		return
	}

	if r.FormValue("module") != "contract" {
		writeNotOK(w, "Error! Missing Or invalid Module name")
		return
	}

	switch r.FormValue("action") {
	case "getsourcecode":
		s.handleGetSourceCode(w, r)
	case "verifysourcecode":
		s.handleVerifySourceCode(w, r)
	case "checkverifystatus":
		s.handleCheckVerifyStatus(w, r)
	default:
		writeNotOK(w, "Error! Missing Or invalid Action name")
	}
}

func (s *Server) handleGetSourceCode(w http.ResponseWriter, r *http.Request) {
	address := strings.ToLower(r.FormValue("address"))
	if address == "" {
		writeNotOK(w, "Error! Missing address parameter")
		return
	}

	s.mu.Lock()
	c, ok := s.contracts[address]
	s.mu.Unlock()

	if !ok || !c.verified {
		// Unverified addresses still answer OK, with an empty record
		writeOK(w, []etherscan.ContractSource{{ABI: "Contract source code not verified"}})
		return
	}
	writeOK(w, []etherscan.ContractSource{c.source})
}

func (s *Server) handleVerifySourceCode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeNotOK(w, "Error! verifysourcecode requires POST")
		return
	}

	address := strings.ToLower(r.FormValue("contractaddress"))
	sourceCode := r.FormValue("sourceCode")
	contractName := r.FormValue("contractname")
	compilerVersion := r.FormValue("compilerversion")
	codeFormat := r.FormValue("codeformat")

	switch {
	case address == "":
		writeNotOK(w, "Error! Missing contractaddress parameter")
		return
	case sourceCode == "":
		writeNotOK(w, "Error! Invalid source code")
		return
	case contractName == "":
		writeNotOK(w, "Error! Missing contractname parameter")
		return
	case compilerVersion == "":
		writeNotOK(w, "Error! Missing compilerversion parameter")
		return
	}

	if codeFormat != etherscan.FormatSingleFile && codeFormat != etherscan.FormatStandardJSON {
		writeNotOK(w, "Error! Invalid codeformat")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.contracts[address]
	if c != nil && c.verified {
		writeNotOK(w, "Contract source code already verified")
		return
	}

	guid := uuid.New().String()
	s.jobs[guid] = &verifyJob{
		address:   address,
		remaining: s.pendingPolls,
		fail:      c != nil && c.fail,
		source: etherscan.ContractSource{
			SourceCode:           sourceCode,
			ContractName:         contractName,
			CompilerVersion:      compilerVersion,
			OptimizationUsed:     r.FormValue("optimizationUsed"),
			Runs:                 r.FormValue("runs"),
			ConstructorArguments: r.FormValue("constructorArguements"),
			EVMVersion:           r.FormValue("evmversion"),
			LicenseType:          r.FormValue("licenseType"),
		},
	}
	writeOK(w, guid)
}

func (s *Server) handleCheckVerifyStatus(w http.ResponseWriter, r *http.Request) {
	guid := r.FormValue("guid")
	if guid == "" {
		writeNotOK(w, "Error! Missing guid parameter")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[guid]
	if !ok {
		writeNotOK(w, "Error! Unknown UID")
		return
	}

	if job.remaining > 0 {
		job.remaining--
		writeNotOK(w, "Pending in queue")
		return
	}

	delete(s.jobs, guid)

	if job.fail {
		writeNotOK(w, "Fail - Unable to verify")
		return
	}

	// Success promotes the submission to a verified contract, so later
	// submissions for the address report it as already verified.
	c := s.contracts[job.address]
	if c == nil {
		c = &contractState{}
		s.contracts[job.address] = c
	}
	c.source = job.source
	c.verified = true

	writeOK(w, "Pass - Verified")
}
