// Package admission implements the gateway's outermost middleware layer:
// request-id propagation, a body-size cap enforced before any rate-limit
// counter is touched, CORS, security headers, and response compression.
package admission

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

// DefaultMaxBodyBytes is the default request body cap (1 MiB).
const DefaultMaxBodyBytes = 1 << 20

// MaxBodySize rejects requests whose body exceeds maxBytes with 413
// before any downstream middleware (in particular rate limiting) runs.
// maxBytes <= 0 uses DefaultMaxBodyBytes.
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				http.Error(w, `{"error":{"code":"payload_too_large","message":"request body exceeds size limit"}}`, http.StatusRequestEntityTooLarge)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeaders sets the fixed set of response hardening headers on
// every response.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// CORS allows the configured origin set (empty = allow any) and answers
// OPTIONS preflight requests with 204.
func CORS(allowedOrigins ...string) func(http.Handler) http.Handler {
	allowAny := len(allowedOrigins) == 0
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, v := range allowedOrigins {
		origin := strings.TrimSpace(v)
		if origin != "" {
			allowed[origin] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if allowAny {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else if origin := r.Header.Get("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Vary", "Origin")
				}
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestID re-exports chi's request-id middleware so every admission
// stack is assembled from this one package.
var RequestID = middleware.RequestID

// Compress applies chi's compressor at level 5 to responses whose content
// type is in chi's default compressible set. It applies no minimum
// response size: small responses are compressed too.
func Compress() func(http.Handler) http.Handler {
	return middleware.Compress(5)
}

// Chain assembles the admission stack in the order the spec requires:
// request id, security headers, CORS, body cap, then compression on the
// way out.
func Chain(maxBodyBytes int64, allowedOrigins ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		h := next
		h = Compress()(h)
		h = MaxBodySize(maxBodyBytes)(h)
		h = CORS(allowedOrigins...)(h)
		h = SecurityHeaders(h)
		h = RequestID(h)
		return h
	}
}
