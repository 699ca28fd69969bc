package sourcefmt

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// CanonicalJSON re-serializes a JSON document deterministically: object keys
// sorted at every level, number literals preserved, HTML escaping off. Equal
// parsed documents always produce identical bytes, which matters because
// some explorers hash the submitted source document.
func CanonicalJSON(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after JSON document")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// unwrapDoubledBraces strips the extra brace pair some explorers wrap around
// standard JSON input, turning {{...}} into {...}.
func unwrapDoubledBraces(s string) (string, bool) {
	if strings.HasPrefix(s, "{{") && strings.HasSuffix(s, "}}") && len(s) >= 4 {
		return s[1 : len(s)-1], true
	}
	return s, false
}
