package featuregate

import (
	"context"
	"errors"
	"testing"

	"github.com/ShabariRepo/bonito-sub002/internal/sharedcache"
)

func TestHasFeature(t *testing.T) {
	if !HasFeature("free", FeatureGateway) {
		t.Fatal("free tier should always have gateway access")
	}
	if HasFeature("free", FeatureSSO) {
		t.Fatal("free tier should not have sso")
	}
	if !HasFeature("enterprise", FeatureSSO) {
		t.Fatal("enterprise tier should have sso")
	}
}

func TestRequireFeature(t *testing.T) {
	if err := RequireFeature("pro", FeatureCompliance); err != nil {
		t.Fatalf("pro should have compliance: %v", err)
	}
	var upgradeErr *UpgradeRequiredError
	if err := RequireFeature("free", FeatureCompliance); !errors.As(err, &upgradeErr) {
		t.Fatalf("expected UpgradeRequiredError, got %v", err)
	}
}

func TestRequireUsageLimitEnforcesMonthlyQuota(t *testing.T) {
	gate := NewGate(sharedcache.NewMemory())
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		if err := gate.RequireUsageLimit(ctx, "org-1", "free", QuotaGatewayCallsPerMonth); err != nil {
			t.Fatalf("call %d should be within free tier's 1000/month quota: %v", i+1, err)
		}
	}

	var upgradeErr *UpgradeRequiredError
	if err := gate.RequireUsageLimit(ctx, "org-1", "free", QuotaGatewayCallsPerMonth); !errors.As(err, &upgradeErr) {
		t.Fatalf("call 1001 should exceed quota, got %v", err)
	}
}

func TestRequireUsageLimitUnlimitedForEnterprise(t *testing.T) {
	gate := NewGate(sharedcache.NewMemory())
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := gate.RequireUsageLimit(ctx, "org-1", "enterprise", QuotaGatewayCallsPerMonth); err != nil {
			t.Fatalf("enterprise tier should be unlimited: %v", err)
		}
	}
}
