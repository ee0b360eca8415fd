// Package featuregate maps an organization's subscription tier to the
// features and usage quotas it is entitled to.
package featuregate

import (
	"context"
	"fmt"
	"time"

	"github.com/ShabariRepo/bonito-sub002/internal/sharedcache"
)

// Known feature names.
const (
	FeatureRouting       = "routing"
	FeatureBudgetAlerts  = "budget_alerts"
	FeatureCompliance    = "compliance"
	FeatureIaCTemplates  = "iac_templates"
	FeatureSSO           = "sso"
	FeatureKnowledgeBase = "knowledge_base"
	FeatureGateway       = "gateway"
)

// Known quota names. Unlimited is represented by the unlimited constant
// (1<<62 - 1).
const (
	QuotaProviders             = "providers"
	QuotaMembers               = "members"
	QuotaGatewayCallsPerMonth  = "gateway_calls_per_month"
)

const unlimited = 1<<62 - 1

var features = map[string]map[string]bool{
	"free": {
		FeatureGateway: true,
	},
	"starter": {
		FeatureGateway:      true,
		FeatureRouting:      true,
		FeatureBudgetAlerts: true,
	},
	"pro": {
		FeatureGateway:       true,
		FeatureRouting:       true,
		FeatureBudgetAlerts:  true,
		FeatureCompliance:    true,
		FeatureKnowledgeBase: true,
	},
	"enterprise": {
		FeatureGateway:       true,
		FeatureRouting:       true,
		FeatureBudgetAlerts:  true,
		FeatureCompliance:    true,
		FeatureIaCTemplates:  true,
		FeatureSSO:           true,
		FeatureKnowledgeBase: true,
	},
}

var quotas = map[string]map[string]int{
	"free": {
		QuotaProviders:            1,
		QuotaMembers:              1,
		QuotaGatewayCallsPerMonth: 1_000,
	},
	"starter": {
		QuotaProviders:            3,
		QuotaMembers:              5,
		QuotaGatewayCallsPerMonth: 50_000,
	},
	"pro": {
		QuotaProviders:            10,
		QuotaMembers:              25,
		QuotaGatewayCallsPerMonth: 500_000,
	},
	"enterprise": {
		QuotaProviders:            unlimited,
		QuotaMembers:              unlimited,
		QuotaGatewayCallsPerMonth: unlimited,
	},
}

// UpgradeRequiredError is returned by RequireFeature and RequireUsageLimit
// when a tier lacks the requested capability or has exhausted its quota.
type UpgradeRequiredError struct {
	Tier    string
	Feature string
}

func (e *UpgradeRequiredError) Error() string {
	return fmt.Sprintf("featuregate: tier %q is not entitled to %q", e.Tier, e.Feature)
}

// HasFeature reports whether tier includes feature.
func HasFeature(tier, feature string) bool {
	return features[tier][feature]
}

// QuotaFor returns the numeric limit for (tier, limitName), or unlimited
// if the tier has no bound on it.
func QuotaFor(tier, limitName string) int {
	if v, ok := quotas[tier][limitName]; ok {
		return v
	}
	return unlimited
}

// RequireFeature returns UpgradeRequiredError if tier is not entitled to
// feature.
func RequireFeature(tier, feature string) error {
	if HasFeature(tier, feature) {
		return nil
	}
	return &UpgradeRequiredError{Tier: tier, Feature: feature}
}

// Gate checks usage limits against the shared cache's monthly counter.
type Gate struct {
	cache sharedcache.Client
}

// NewGate builds a Gate backed by cache.
func NewGate(cache sharedcache.Client) *Gate {
	return &Gate{cache: cache}
}

// RequireUsageLimit increments the org's monthly gateway-call counter and
// returns UpgradeRequiredError if the tier's quota for limitName would be
// exceeded. The counter key is "gateway_calls:{org_id}:{YYYY-MM}" whatever
// limitName is, so every limitName counts against that one counter; it
// expires at month's end.
func (g *Gate) RequireUsageLimit(ctx context.Context, orgID, tier, limitName string) error {
	limit := QuotaFor(tier, limitName)
	if limit >= unlimited {
		return nil
	}

	now := time.Now().UTC()
	monthKey := fmt.Sprintf("gateway_calls:%s:%s", orgID, now.Format("2006-01"))
	ttl := endOfMonth(now).Sub(now)

	n, err := g.cache.Incr(ctx, monthKey, ttl)
	if err != nil {
		return fmt.Errorf("featuregate: usage counter: %w", err)
	}
	if n > int64(limit) {
		return &UpgradeRequiredError{Tier: tier, Feature: limitName}
	}
	return nil
}

func endOfMonth(t time.Time) time.Time {
	firstOfNext := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return firstOfNext
}
