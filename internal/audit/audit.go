// Package audit records sensitive control-plane actions (connecting a
// provider, issuing credentials, invoking routing) to the audit_logs
// table via a chi middleware.
package audit

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// auditedPrefixes are gateway path prefixes that always get audited on
// mutating methods: the data-plane invoke surface (spec §4.8 — every
// call that reaches a provider gets an audit row).
var auditedPrefixes = []string{
	"/v1/chat/completions",
	"/v1/completions",
	"/v1/embeddings",
	"/v1/images/generations",
}

// auditedPatterns additionally catch any path containing these substrings,
// regardless of prefix: invoke routes, provider connection, and auth
// endpoints. Proxy pass-through paths such as /v1/files are not audited.
var auditedPatterns = []string{
	"/invoke",
	"/providers/connect",
	"/auth/",
}

func shouldAudit(path, method string) bool {
	switch method {
	case http.MethodGet, http.MethodOptions, http.MethodHead:
		return false
	}
	for _, prefix := range auditedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	for _, pattern := range auditedPatterns {
		if strings.Contains(path, pattern) {
			return true
		}
	}
	return false
}

func deriveAction(path string) (action, resourceType string) {
	switch {
	case strings.Contains(path, "/invoke"),
		strings.HasPrefix(path, "/v1/chat/completions"),
		strings.HasPrefix(path, "/v1/completions"),
		strings.HasPrefix(path, "/v1/embeddings"),
		strings.HasPrefix(path, "/v1/images/generations"):
		return "invoke", "model"
	case strings.Contains(path, "/connect"):
		return "connect", "provider"
	case strings.Contains(path, "/auth/"):
		switch {
		case strings.Contains(path, "login"):
			return "login", "auth"
		case strings.Contains(path, "register"):
			return "register", "auth"
		default:
			return "auth_action", "auth"
		}
	default:
		return "unknown", "unknown"
	}
}

// resourceID scans path segments for the first one that parses as a UUID —
// typically a provider or model id embedded in the route.
func resourceID(path string) string {
	for _, part := range strings.Split(strings.Trim(path, "/"), "/") {
		if _, err := uuid.Parse(part); err == nil {
			return part
		}
	}
	return ""
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Entry is one audit log row, ready for Writer.Write.
type Entry struct {
	ID           string
	OrgID        string
	UserID       string
	Action       string
	ResourceType string
	ResourceID   string
	IPAddress    string
	UserName     string
	Details      map[string]any
	CreatedAt    time.Time
}

// Writer persists an audit Entry. Implementations must not block the
// response path on failure — log and drop.
type Writer interface {
	Write(ctx context.Context, e Entry) error
}

// identity is read from the request context, where WithIdentity puts it.
// Nothing in cmd/bonitogw calls WithIdentity, so the entries the gateway
// writes carry empty org, user and user-name fields.
type identity struct {
	OrgID    string
	UserID   string
	UserName string
}

type identityKey struct{}

// WithIdentity attaches the authenticated caller's identity to ctx so the
// audit middleware can attribute the action to an org and user.
func WithIdentity(ctx context.Context, orgID, userID, userName string) context.Context {
	return context.WithValue(ctx, identityKey{}, identity{OrgID: orgID, UserID: userID, UserName: userName})
}

func identityFromContext(ctx context.Context) identity {
	id, _ := ctx.Value(identityKey{}).(identity)
	return id
}

type requestIDKey struct{}

// WithRequestID attaches the per-request trace id so it lands in the
// audit entry's details alongside status and latency.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Middleware audits mutating requests on sensitive paths, writing a
// best-effort Entry to w after the handler completes. Writer failures are
// swallowed so a broken audit sink never fails a live request.
func Middleware(w Writer, onError func(error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			if !shouldAudit(r.URL.Path, r.Method) {
				next.ServeHTTP(rw, r)
				return
			}

			rec := &statusRecorder{ResponseWriter: rw, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r)
			elapsedMs := time.Since(start).Milliseconds()

			go func() {
				action, resourceType := deriveAction(r.URL.Path)
				id := identityFromContext(r.Context())

				entry := Entry{
					ID:           uuid.NewString(),
					OrgID:        id.OrgID,
					UserID:       id.UserID,
					UserName:     id.UserName,
					Action:       action,
					ResourceType: resourceType,
					ResourceID:   resourceID(r.URL.Path),
					IPAddress:    clientIP(r),
					Details: map[string]any{
						"method":      r.Method,
						"path":        r.URL.Path,
						"status_code": rec.status,
						"latency_ms":  elapsedMs,
						"request_id":  requestIDFromContext(r.Context()),
					},
					CreatedAt: start,
				}

				if err := w.Write(context.Background(), entry); err != nil && onError != nil {
					onError(err)
				}
			}()
		})
	}
}
