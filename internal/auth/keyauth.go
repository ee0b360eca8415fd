// Package auth authenticates two kinds of caller: data-plane requests
// bearing a "bn-" gateway key (KeyAuthenticator), and control-plane
// requests bearing a self-issued session JWT (SessionManager).
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Sentinel rejection reasons, surfaced by the HTTP layer as specific
// status codes and client-facing messages.
var (
	ErrMissingToken  = errors.New("auth: missing bearer token")
	ErrMalformed     = errors.New("auth: malformed key")
	ErrInvalidKey    = errors.New("auth: invalid_key")
	ErrRevoked       = errors.New("auth: revoked")
	ErrModelNotAllowed = errors.New("auth: model_not_allowed")
)

const keyPrefixTag = "bn-"
const minKeyLength = len(keyPrefixTag) + 15

// KeyRecord is what the authenticator needs from storage to authorize a
// request — the subset of store.GatewayKey relevant to this check.
type KeyRecord struct {
	KeyID         string
	OrgID         string
	TeamID        string
	RateLimit     int
	AllowedModels []string // nil/empty means no restriction
	Revoked       bool
}

// KeyLookup resolves a SHA-256 key hash to its stored record. Returns
// ErrInvalidKey if no such hash exists.
type KeyLookup interface {
	LookupByHash(ctx context.Context, keyHash string) (KeyRecord, error)
}

// KeyAuthenticator implements the gateway's bearer-token authentication
// (spec §4.2): hash the raw token, look it up, reject revoked or
// out-of-scope keys, and return the resolved identity.
type KeyAuthenticator struct {
	lookup KeyLookup
}

// NewKeyAuthenticator builds a KeyAuthenticator backed by lookup.
func NewKeyAuthenticator(lookup KeyLookup) *KeyAuthenticator {
	return &KeyAuthenticator{lookup: lookup}
}

// HashKey returns the hex-encoded SHA-256 digest of a raw "bn-..." token,
// the value actually persisted and looked up (the raw token is never
// stored).
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// ParseBearer extracts the raw token from an "Authorization: Bearer <token>"
// header value.
func ParseBearer(header string) (string, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", ErrMissingToken
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// ValidFormat reports whether raw looks like "bn-<>=15 more chars>".
func ValidFormat(raw string) bool {
	return strings.HasPrefix(raw, keyPrefixTag) && len(raw) >= minKeyLength
}

// GenerateKey returns a new raw "bn-<32 hex chars>" gateway key. The caller
// is responsible for persisting only its HashKey digest and surfacing the
// raw value to the operator exactly once.
func GenerateKey() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating key material: %w", err)
	}
	return keyPrefixTag + hex.EncodeToString(b), nil
}

// Authenticate resolves a raw bearer token to its KeyRecord, enforcing
// format, revocation, and (if requestedModel is non-empty) the key's
// model allow-list.
func (a *KeyAuthenticator) Authenticate(ctx context.Context, rawToken, requestedModel string) (KeyRecord, error) {
	if !ValidFormat(rawToken) {
		return KeyRecord{}, ErrMalformed
	}

	hash := HashKey(rawToken)
	record, err := a.lookup.LookupByHash(ctx, hash)
	if err != nil {
		return KeyRecord{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	if record.Revoked {
		return KeyRecord{}, ErrRevoked
	}

	if requestedModel != "" && len(record.AllowedModels) > 0 && !contains(record.AllowedModels, requestedModel) {
		return KeyRecord{}, ErrModelNotAllowed
	}

	return record, nil
}

func contains(list []string, target string) bool {
	for _, v := range list {
		if subtle.ConstantTimeCompare([]byte(v), []byte(target)) == 1 {
			return true
		}
	}
	return false
}
