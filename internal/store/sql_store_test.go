package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "control-plane.db")
	s, err := NewSQLiteStore(dsn)
	if err != nil {
		t.Fatalf("new sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOrganizationCreateGetAndTierChange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	org := Organization{ID: "org-1", Name: "Acme", Tier: "free", Status: "active"}
	if err := s.CreateOrganization(ctx, org); err != nil {
		t.Fatalf("create organization: %v", err)
	}

	got, err := s.GetOrganization(ctx, "org-1")
	if err != nil {
		t.Fatalf("get organization: %v", err)
	}
	if got.Tier != "free" {
		t.Fatalf("tier = %q, want free", got.Tier)
	}

	if err := s.UpdateTier(ctx, "org-1", "free", "pro", "admin-1", "hist-1"); err != nil {
		t.Fatalf("update tier: %v", err)
	}

	got, err = s.GetOrganization(ctx, "org-1")
	if err != nil {
		t.Fatalf("get organization after tier change: %v", err)
	}
	if got.Tier != "pro" {
		t.Fatalf("tier after upgrade = %q, want pro", got.Tier)
	}

	var historyCount int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM subscription_history WHERE org_id = ?`, "org-1").Scan(&historyCount); err != nil {
		t.Fatalf("count subscription history: %v", err)
	}
	if historyCount != 1 {
		t.Fatalf("subscription_history rows = %d, want 1", historyCount)
	}
}

func TestGatewayKeyLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	key := GatewayKey{
		ID:            "key-1",
		OrgID:         "org-1",
		KeyHash:       "deadbeef",
		KeyPrefix:     "bn-abc123",
		Name:          "prod key",
		RateLimit:     60,
		AllowedModels: []string{"openai/gpt-4o"},
	}
	if err := s.CreateGatewayKey(ctx, key); err != nil {
		t.Fatalf("create gateway key: %v", err)
	}

	got, err := s.GetGatewayKeyByHash(ctx, "deadbeef")
	if err != nil {
		t.Fatalf("get gateway key by hash: %v", err)
	}
	if got.ID != "key-1" || len(got.AllowedModels) != 1 || got.AllowedModels[0] != "openai/gpt-4o" {
		t.Fatalf("got = %+v, unexpected", got)
	}
	if got.RevokedAt != nil {
		t.Fatalf("expected new key to be unrevoked")
	}

	if err := s.RevokeGatewayKey(ctx, "key-1"); err != nil {
		t.Fatalf("revoke gateway key: %v", err)
	}

	got, err = s.GetGatewayKeyByHash(ctx, "deadbeef")
	if err != nil {
		t.Fatalf("get gateway key after revoke: %v", err)
	}
	if got.RevokedAt == nil {
		t.Fatalf("expected revoked_at to be set")
	}

	if err := s.RevokeGatewayKey(ctx, "key-1"); err == nil {
		t.Fatalf("expected error revoking an already-revoked key")
	}
}

func TestGatewayKeyNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetGatewayKeyByHash(context.Background(), "missing")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("err = %v, want wrapped sql.ErrNoRows", err)
	}
}

func TestGatewayConfigUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cfg := GatewayConfig{
		OrgID:               "org-1",
		EnabledProviders:    []string{"openai", "anthropic"},
		RoutingStrategy:     "cost_optimized",
		FallbackModels:      map[string][]string{"gpt-4o": {"gpt-4o-mini"}},
		DefaultRateLimit:    120,
		CostTrackingEnabled: true,
	}
	if err := s.SaveGatewayConfig(ctx, cfg); err != nil {
		t.Fatalf("save gateway config: %v", err)
	}

	cfg.RoutingStrategy = "latency_optimized"
	cfg.DefaultRateLimit = 240
	if err := s.SaveGatewayConfig(ctx, cfg); err != nil {
		t.Fatalf("save gateway config (update): %v", err)
	}

	got, err := s.GetGatewayConfig(ctx, "org-1")
	if err != nil {
		t.Fatalf("get gateway config: %v", err)
	}
	if got.RoutingStrategy != "latency_optimized" || got.DefaultRateLimit != 240 {
		t.Fatalf("got = %+v, expected upsert to overwrite", got)
	}
	if len(got.EnabledProviders) != 2 {
		t.Fatalf("enabled providers = %v, want 2 entries", got.EnabledProviders)
	}
}

func TestRoutingPolicyFailoverRequiresTwoModels(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	policy := RoutingPolicy{
		ID:           "policy-1",
		OrgID:        "org-1",
		Name:         "failover-primary",
		Strategy:     "failover",
		Models:       []RoutingPolicyModel{{ModelID: "openai/gpt-4o", Role: "primary"}, {ModelID: "anthropic/claude-3-5-sonnet", Role: "fallback"}},
		IsActive:     true,
		APIKeyPrefix: "bn-abc123",
	}
	if err := s.CreateRoutingPolicy(ctx, policy); err != nil {
		t.Fatalf("create routing policy: %v", err)
	}

	got, err := s.GetRoutingPolicyByKeyPrefix(ctx, "bn-abc123")
	if err != nil {
		t.Fatalf("get routing policy: %v", err)
	}
	if len(got.Models) != 2 {
		t.Fatalf("models = %v, want 2", got.Models)
	}
}
