// Package security provides security-related HTTP middleware.
package security

import (
	"net/http"
)

// MaxBodySize returns middleware that caps the request body size in bytes.
// Verification submissions carry whole source trees in one form post, so
// the cap must leave room for flattened files while still bounding abuse.
// An oversized body surfaces as a read error when the handler parses the
// form, not as an immediate rejection.
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Wrap the body with a size limiter
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
