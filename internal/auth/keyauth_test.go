package auth

import (
	"context"
	"errors"
	"testing"
)

type mapLookup map[string]KeyRecord

func (m mapLookup) LookupByHash(_ context.Context, hash string) (KeyRecord, error) {
	rec, ok := m[hash]
	if !ok {
		return KeyRecord{}, errors.New("no such key")
	}
	return rec, nil
}

func TestAuthenticateSuccess(t *testing.T) {
	raw := "bn-abcdefghijklmnopqrstuv"
	lookup := mapLookup{HashKey(raw): {KeyID: "key-1", OrgID: "org-1", RateLimit: 60}}
	a := NewKeyAuthenticator(lookup)

	rec, err := a.Authenticate(context.Background(), raw, "")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if rec.KeyID != "key-1" || rec.OrgID != "org-1" {
		t.Fatalf("rec = %+v, unexpected", rec)
	}
}

func TestAuthenticateMalformedKey(t *testing.T) {
	a := NewKeyAuthenticator(mapLookup{})
	if _, err := a.Authenticate(context.Background(), "not-a-key", ""); !errors.Is(err, ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
}

func TestAuthenticateUnknownKey(t *testing.T) {
	a := NewKeyAuthenticator(mapLookup{})
	raw := "bn-abcdefghijklmnopqrstuv"
	if _, err := a.Authenticate(context.Background(), raw, ""); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("err = %v, want ErrInvalidKey", err)
	}
}

func TestAuthenticateRevokedKey(t *testing.T) {
	raw := "bn-abcdefghijklmnopqrstuv"
	lookup := mapLookup{HashKey(raw): {KeyID: "key-1", OrgID: "org-1", Revoked: true}}
	a := NewKeyAuthenticator(lookup)
	if _, err := a.Authenticate(context.Background(), raw, ""); !errors.Is(err, ErrRevoked) {
		t.Fatalf("err = %v, want ErrRevoked", err)
	}
}

func TestAuthenticateModelNotAllowed(t *testing.T) {
	raw := "bn-abcdefghijklmnopqrstuv"
	lookup := mapLookup{HashKey(raw): {
		KeyID:         "key-1",
		OrgID:         "org-1",
		AllowedModels: []string{"openai/gpt-4o"},
	}}
	a := NewKeyAuthenticator(lookup)

	if _, err := a.Authenticate(context.Background(), raw, "anthropic/claude-3-5-sonnet"); !errors.Is(err, ErrModelNotAllowed) {
		t.Fatalf("err = %v, want ErrModelNotAllowed", err)
	}

	if _, err := a.Authenticate(context.Background(), raw, "openai/gpt-4o"); err != nil {
		t.Fatalf("expected allowed model to pass, got %v", err)
	}
}

func TestParseBearer(t *testing.T) {
	if _, err := ParseBearer(""); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("err = %v, want ErrMissingToken", err)
	}
	if _, err := ParseBearer("Basic abc"); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("err = %v, want ErrMissingToken for non-Bearer scheme", err)
	}
	token, err := ParseBearer("Bearer bn-abcdefghijklmnopqrstuv")
	if err != nil {
		t.Fatalf("ParseBearer: %v", err)
	}
	if token != "bn-abcdefghijklmnopqrstuv" {
		t.Fatalf("token = %q, unexpected", token)
	}
}
