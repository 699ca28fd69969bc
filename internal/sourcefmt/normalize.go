// Package sourcefmt converts fetched verification records into the field
// set the target explorer's submission endpoint expects, deciding between
// the flattened and standard-JSON-input code formats.
package sourcefmt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/veriport/veriport/internal/validation"
	"github.com/veriport/veriport/pkg/etherscan"
)

// Definitive normalization failures. Neither is retried.
var (
	// ErrTooManyLibraries means the record links more libraries than the
	// submission format has slots for. Truncating would produce a
	// submission that verifies against the wrong bytecode, so this fails.
	ErrTooManyLibraries = errors.New("too many linked libraries")

	// ErrUnrecognizedFormat means the source code field looks structured
	// but cannot be parsed, so no submission format can be chosen safely.
	ErrUnrecognizedFormat = errors.New("unrecognized source code format")
)

// Normalize builds the verification submission for a fetched source record.
// Flattened sources are submitted byte-for-byte as fetched; standard JSON
// input is re-serialized deterministically. Everything else about the
// record passes through: constructor arguments stay hex-encoded, library
// addresses keep their fetched values.
func Normalize(src *etherscan.ContractSource, address string) (*etherscan.VerifyRequest, error) {
	version, err := validation.NormalizeCompilerVersion(src.CompilerVersion)
	if err != nil {
		return nil, err
	}

	libraries, err := parseLibraries(src.Library)
	if err != nil {
		return nil, err
	}

	evmVersion := src.EVMVersion
	if strings.EqualFold(evmVersion, "default") {
		// Explorers report "Default" but expect the field absent when the
		// compiler default was used.
		evmVersion = ""
	}

	req := &etherscan.VerifyRequest{
		Address:              address,
		ContractName:         qualifyContractName(src.ContractName),
		CompilerVersion:      version,
		OptimizationUsed:     normalizeOptimization(src.OptimizationUsed),
		Runs:                 src.Runs,
		ConstructorArguments: strings.TrimPrefix(src.ConstructorArguments, "0x"),
		EVMVersion:           evmVersion,
		LicenseType:          src.LicenseType,
		Libraries:            libraries,
	}

	trimmed := strings.TrimSpace(src.SourceCode)
	switch {
	case strings.HasPrefix(trimmed, "{{"):
		inner, ok := unwrapDoubledBraces(trimmed)
		if !ok {
			return nil, fmt.Errorf("%w: unbalanced doubled braces", ErrUnrecognizedFormat)
		}
		canonical, err := CanonicalJSON([]byte(inner))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnrecognizedFormat, err)
		}
		req.CodeFormat = etherscan.FormatStandardJSON
		req.SourceCode = string(canonical)
	case strings.HasPrefix(trimmed, "{"):
		canonical, err := CanonicalJSON([]byte(trimmed))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnrecognizedFormat, err)
		}
		req.CodeFormat = etherscan.FormatStandardJSON
		req.SourceCode = string(canonical)
	default:
		req.CodeFormat = etherscan.FormatSingleFile
		req.SourceCode = src.SourceCode
	}

	return req, nil
}

// qualifyContractName adds the path qualifier the submission expects:
// "Token" becomes "Token.sol:Token". Names already carrying a qualifier
// pass through.
func qualifyContractName(name string) string {
	if name == "" || strings.Contains(name, ":") {
		return name
	}
	return fmt.Sprintf("%s.sol:%s", name, name)
}

// parseLibraries splits the fetched "Name:addr,Name2:addr2" mapping into
// the submission's positional library slots.
func parseLibraries(raw string) ([]etherscan.Library, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	pairs := strings.Split(raw, ",")
	if len(pairs) > etherscan.MaxLibraries {
		return nil, fmt.Errorf("%w: record links %d, submission format allows %d",
			ErrTooManyLibraries, len(pairs), etherscan.MaxLibraries)
	}

	libs := make([]etherscan.Library, 0, len(pairs))
	for _, pair := range pairs {
		name, addr, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || name == "" || addr == "" {
			return nil, fmt.Errorf("malformed library mapping %q", pair)
		}
		libs = append(libs, etherscan.Library{Name: name, Address: addr})
	}
	return libs, nil
}

func normalizeOptimization(used string) string {
	switch strings.ToLower(strings.TrimSpace(used)) {
	case "1", "true":
		return "1"
	default:
		return "0"
	}
}
