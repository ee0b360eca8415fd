// Package store persists the control-plane entities — organizations,
// users, provider connections, the model catalog, gateway keys, request
// history, rate limit mirrors, per-org config, and routing policies — to
// SQLite (development) or Postgres (production), the same dual-dialect
// pattern used throughout the gateway's other SQL-backed stores.
package store

import "time"

// Organization is the tenant root; every other entity is scoped to one.
type Organization struct {
	ID                   string
	Name                 string
	Tier                 string // free | starter | pro | enterprise
	Status               string
	BonobotPlan          string
	BonobotAgentLimit    int
	SubscriptionUpdatedAt time.Time
	CreatedAt            time.Time
}

// SubscriptionHistory records a tier change for an organization, written
// as a side effect whenever an admin mutates Organization.Tier.
type SubscriptionHistory struct {
	ID        string
	OrgID     string
	FromTier  string
	ToTier    string
	ChangedBy string
	CreatedAt time.Time
}

// User belongs to exactly one Organization.
type User struct {
	ID                    string
	OrgID                 string
	Email                 string
	HashedPassword        string
	Role                  string // admin | editor | viewer
	EmailVerified         bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	ResetToken            string
	ResetExpiresAt        *time.Time
	CreatedAt             time.Time
}

// CloudProvider is an org's connection to an upstream LLM vendor.
type CloudProvider struct {
	ID                   string
	OrgID                string
	ProviderType         string
	CredentialsCiphertext string
	Status               string // pending | active | error
	IsManaged            bool
	ManagedUsageTokens   int64
	ManagedUsageCost     float64
	CreatedAt            time.Time
}

// Model is a catalog row scoped to one provider connection.
type Model struct {
	ID            string
	ProviderID    string
	ModelID       string
	DisplayName   string
	Capabilities  string // JSON-encoded
	PricingInfo   string // JSON-encoded
	CreatedAt     time.Time
}

// Deployment pins a Model into an environment for an Organization.
type Deployment struct {
	ID         string
	OrgID      string
	ModelID    string
	ProviderID string
	Config     string // JSON-encoded
	Status     string
	CreatedAt  time.Time
}

// GatewayKey is a bearer credential scoped to an Organization.
type GatewayKey struct {
	ID            string
	OrgID         string
	KeyHash       string // SHA-256 hex, unique
	KeyPrefix     string // public, <=20 chars
	Name          string
	TeamID        string
	RateLimit     int // requests per minute
	AllowedModels []string
	CreatedAt     time.Time
	RevokedAt     *time.Time
}

// GatewayRequest is an append-only record of one served (or rejected) call.
type GatewayRequest struct {
	ID             string
	OrgID          string
	UserID         string
	TeamID         string
	KeyID          string
	ModelRequested string
	ModelUsed      string
	Provider       string
	InputTokens    int
	OutputTokens   int
	Cost           float64
	MarkedUpCost   *float64
	LatencyMs      int
	Status         string // success | error | rate_limited
	ErrorMessage   string
	IsManaged      bool
	CreatedAt      time.Time
}

// GatewayRateLimit durably mirrors the shared-cache fixed-window counter,
// so a counter reset (e.g. cache flush) can be reconciled from history.
type GatewayRateLimit struct {
	KeyID        string
	WindowStart  time.Time
	RequestCount int
}

// GatewayConfig holds one Organization's gateway-wide settings.
type GatewayConfig struct {
	OrgID               string // unique
	EnabledProviders    []string
	RoutingStrategy     string
	FallbackModels      map[string][]string
	DefaultRateLimit    int
	CostTrackingEnabled bool
	CustomRoutingRules  string // JSON-encoded
	UpdatedAt           time.Time
}

// RoutingPolicyModel is one entry in RoutingPolicy.Models.
type RoutingPolicyModel struct {
	ModelID string
	Weight  int    // only meaningful for ab_test
	Role    string // primary | fallback
}

// RoutingPolicy drives the routing engine for requests matching
// APIKeyPrefix.
type RoutingPolicy struct {
	ID           string
	OrgID        string
	Name         string
	Strategy     string // cost_optimized | latency_optimized | balanced | failover | ab_test
	Models       []RoutingPolicyModel
	Rules        string // JSON-encoded, validated against a jsonschema.Schema
	IsActive     bool
	APIKeyPrefix string // unique
	CreatedAt    time.Time
}
