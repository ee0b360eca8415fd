package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/ShabariRepo/bonito-sub002/internal/policyvalidate"
	"github.com/ShabariRepo/bonito-sub002/internal/routing"
)

// SQLStore is the dual-dialect control-plane store backing every entity
// in the data model, including GatewayRequest history. AuditLog has its
// own dedicated store (see internal/audit).
type SQLStore struct {
	db      *sql.DB
	dialect string
}

func NewSQLiteStore(dsn string) (*SQLStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = "bonitogw-control-plane.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite control-plane store: %w", err)
	}
	s := &SQLStore{db: db, dialect: "sqlite"}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func NewPostgresStore(dsn string) (*SQLStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres control-plane store: %w", err)
	}
	s := &SQLStore{db: db, dialect: "postgres"}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) bind(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	var b strings.Builder
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			fmt.Fprintf(&b, "$%d", n)
			n++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (s *SQLStore) init() error {
	if err := s.db.Ping(); err != nil {
		return fmt.Errorf("ping %s control-plane store: %w", s.dialect, err)
	}

	timestampType := "TIMESTAMP"
	if s.dialect == "postgres" {
		timestampType = "TIMESTAMPTZ"
	}

	ddl := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS organizations (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			tier TEXT NOT NULL,
			status TEXT NOT NULL,
			bonobot_plan TEXT,
			bonobot_agent_limit INTEGER NOT NULL DEFAULT 0,
			subscription_updated_at %s,
			created_at %s NOT NULL
		);`, timestampType, timestampType),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS subscription_history (
			id TEXT PRIMARY KEY,
			org_id TEXT NOT NULL,
			from_tier TEXT NOT NULL,
			to_tier TEXT NOT NULL,
			changed_by TEXT,
			created_at %s NOT NULL
		);`, timestampType),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			org_id TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			hashed_password TEXT,
			role TEXT NOT NULL,
			email_verified INTEGER NOT NULL DEFAULT 0,
			verification_token TEXT,
			verification_expires_at %s,
			reset_token TEXT,
			reset_expires_at %s,
			created_at %s NOT NULL
		);`, timestampType, timestampType, timestampType),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS cloud_providers (
			id TEXT PRIMARY KEY,
			org_id TEXT NOT NULL,
			provider_type TEXT NOT NULL,
			credentials_ciphertext TEXT NOT NULL,
			status TEXT NOT NULL,
			is_managed INTEGER NOT NULL DEFAULT 0,
			managed_usage_tokens INTEGER NOT NULL DEFAULT 0,
			managed_usage_cost REAL NOT NULL DEFAULT 0,
			created_at %s NOT NULL
		);`, timestampType),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS models (
			id TEXT PRIMARY KEY,
			provider_id TEXT NOT NULL,
			model_id TEXT NOT NULL,
			display_name TEXT,
			capabilities TEXT,
			pricing_info TEXT,
			created_at %s NOT NULL,
			UNIQUE(provider_id, model_id)
		);`, timestampType),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS deployments (
			id TEXT PRIMARY KEY,
			org_id TEXT NOT NULL,
			model_id TEXT NOT NULL,
			provider_id TEXT NOT NULL,
			config TEXT,
			status TEXT NOT NULL,
			created_at %s NOT NULL
		);`, timestampType),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS gateway_keys (
			id TEXT PRIMARY KEY,
			org_id TEXT NOT NULL,
			key_hash TEXT NOT NULL UNIQUE,
			key_prefix TEXT NOT NULL,
			name TEXT,
			team_id TEXT,
			rate_limit INTEGER NOT NULL,
			allowed_models TEXT,
			created_at %s NOT NULL,
			revoked_at %s
		);`, timestampType, timestampType),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS gateway_rate_limits (
			key_id TEXT NOT NULL,
			window_start %s NOT NULL,
			request_count INTEGER NOT NULL,
			PRIMARY KEY (key_id, window_start)
		);`, timestampType),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS gateway_configs (
			org_id TEXT PRIMARY KEY,
			enabled_providers TEXT,
			routing_strategy TEXT NOT NULL,
			fallback_models TEXT,
			default_rate_limit INTEGER NOT NULL,
			cost_tracking_enabled INTEGER NOT NULL DEFAULT 1,
			custom_routing_rules TEXT,
			updated_at %s NOT NULL
		);`, timestampType),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS gateway_requests (
			id TEXT PRIMARY KEY,
			org_id TEXT NOT NULL,
			user_id TEXT,
			team_id TEXT,
			key_id TEXT NOT NULL,
			model_requested TEXT NOT NULL,
			model_used TEXT,
			provider TEXT,
			input_tokens INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			cost REAL NOT NULL DEFAULT 0,
			marked_up_cost REAL,
			latency_ms INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			error_message TEXT,
			is_managed INTEGER NOT NULL DEFAULT 0,
			created_at %s NOT NULL
		);`, timestampType),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS routing_policies (
			id TEXT PRIMARY KEY,
			org_id TEXT NOT NULL,
			name TEXT NOT NULL,
			strategy TEXT NOT NULL,
			models TEXT NOT NULL,
			rules TEXT,
			is_active INTEGER NOT NULL DEFAULT 1,
			api_key_prefix TEXT NOT NULL UNIQUE,
			created_at %s NOT NULL
		);`, timestampType),
	}

	for _, stmt := range ddl {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("initialize control-plane schema: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ------------------------------------------------------------ Organization

func (s *SQLStore) CreateOrganization(ctx context.Context, o Organization) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	query := s.bind(`INSERT INTO organizations(id, name, tier, status, bonobot_plan, bonobot_agent_limit, subscription_updated_at, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query, o.ID, o.Name, o.Tier, o.Status, o.BonobotPlan, o.BonobotAgentLimit, o.SubscriptionUpdatedAt, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("create organization: %w", err)
	}
	return nil
}

func (s *SQLStore) GetOrganization(ctx context.Context, id string) (Organization, error) {
	query := s.bind(`SELECT id, name, tier, status, bonobot_plan, bonobot_agent_limit, subscription_updated_at, created_at
		FROM organizations WHERE id = ?`)
	var o Organization
	var plan sql.NullString
	err := s.db.QueryRowContext(ctx, query, id).Scan(&o.ID, &o.Name, &o.Tier, &o.Status, &plan, &o.BonobotAgentLimit, &o.SubscriptionUpdatedAt, &o.CreatedAt)
	if err == sql.ErrNoRows {
		return Organization{}, fmt.Errorf("organization %s: %w", id, sql.ErrNoRows)
	}
	if err != nil {
		return Organization{}, fmt.Errorf("get organization: %w", err)
	}
	o.BonobotPlan = plan.String
	return o, nil
}

// UpdateTier mutates an organization's tier and mirrors the change to
// subscription_history in the same call, per the data model's lifecycle
// rule that tier changes are always admin actions worth auditing.
func (s *SQLStore) UpdateTier(ctx context.Context, orgID, fromTier, toTier, changedBy, historyID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tier update: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	updateQuery := s.bind(`UPDATE organizations SET tier = ?, subscription_updated_at = ? WHERE id = ?`)
	if _, err := tx.ExecContext(ctx, updateQuery, toTier, now, orgID); err != nil {
		return fmt.Errorf("update organization tier: %w", err)
	}

	insertQuery := s.bind(`INSERT INTO subscription_history(id, org_id, from_tier, to_tier, changed_by, created_at)
		VALUES(?, ?, ?, ?, ?, ?)`)
	if _, err := tx.ExecContext(ctx, insertQuery, historyID, orgID, fromTier, toTier, changedBy, now); err != nil {
		return fmt.Errorf("insert subscription history: %w", err)
	}

	return tx.Commit()
}

// ------------------------------------------------------------------- User

func (s *SQLStore) CreateUser(ctx context.Context, u User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	query := s.bind(`INSERT INTO users(id, org_id, email, hashed_password, role, email_verified, verification_token, verification_expires_at, reset_token, reset_expires_at, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query, u.ID, u.OrgID, u.Email, u.HashedPassword, u.Role, boolToInt(u.EmailVerified),
		u.VerificationToken, u.VerificationExpiresAt, u.ResetToken, u.ResetExpiresAt, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *SQLStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	query := s.bind(`SELECT id, org_id, email, hashed_password, role, email_verified, verification_token, verification_expires_at, reset_token, reset_expires_at, created_at
		FROM users WHERE email = ?`)
	var u User
	var verified int
	err := s.db.QueryRowContext(ctx, query, email).Scan(&u.ID, &u.OrgID, &u.Email, &u.HashedPassword, &u.Role, &verified,
		&u.VerificationToken, &u.VerificationExpiresAt, &u.ResetToken, &u.ResetExpiresAt, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return User{}, fmt.Errorf("user %s: %w", email, sql.ErrNoRows)
	}
	if err != nil {
		return User{}, fmt.Errorf("get user by email: %w", err)
	}
	u.EmailVerified = verified != 0
	return u, nil
}

// ----------------------------------------------------------- CloudProvider

func (s *SQLStore) CreateCloudProvider(ctx context.Context, p CloudProvider) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	query := s.bind(`INSERT INTO cloud_providers(id, org_id, provider_type, credentials_ciphertext, status, is_managed, managed_usage_tokens, managed_usage_cost, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query, p.ID, p.OrgID, p.ProviderType, p.CredentialsCiphertext, p.Status,
		boolToInt(p.IsManaged), p.ManagedUsageTokens, p.ManagedUsageCost, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("create cloud provider: %w", err)
	}
	return nil
}

func (s *SQLStore) ListCloudProviders(ctx context.Context, orgID string) ([]CloudProvider, error) {
	query := s.bind(`SELECT id, org_id, provider_type, credentials_ciphertext, status, is_managed, managed_usage_tokens, managed_usage_cost, created_at
		FROM cloud_providers WHERE org_id = ? ORDER BY created_at`)
	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("list cloud providers: %w", err)
	}
	defer rows.Close()

	var out []CloudProvider
	for rows.Next() {
		var p CloudProvider
		var managed int
		if err := rows.Scan(&p.ID, &p.OrgID, &p.ProviderType, &p.CredentialsCiphertext, &p.Status, &managed, &p.ManagedUsageTokens, &p.ManagedUsageCost, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan cloud provider: %w", err)
		}
		p.IsManaged = managed != 0
		out = append(out, p)
	}
	return out, rows.Err()
}

// --------------------------------------------------------------- GatewayKey

func (s *SQLStore) CreateGatewayKey(ctx context.Context, k GatewayKey) error {
	if k.CreatedAt.IsZero() {
		k.CreatedAt = time.Now().UTC()
	}
	models, err := json.Marshal(k.AllowedModels)
	if err != nil {
		return fmt.Errorf("marshal allowed models: %w", err)
	}
	query := s.bind(`INSERT INTO gateway_keys(id, org_id, key_hash, key_prefix, name, team_id, rate_limit, allowed_models, created_at, revoked_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err = s.db.ExecContext(ctx, query, k.ID, k.OrgID, k.KeyHash, k.KeyPrefix, k.Name, k.TeamID, k.RateLimit, string(models), k.CreatedAt, k.RevokedAt)
	if err != nil {
		return fmt.Errorf("create gateway key: %w", err)
	}
	return nil
}

// GetGatewayKeyByHash looks up a key by its SHA-256 hash, revoked or not
// (a revoked key comes back with RevokedAt set), the hot path the key
// authenticator runs on every request.
func (s *SQLStore) GetGatewayKeyByHash(ctx context.Context, keyHash string) (GatewayKey, error) {
	query := s.bind(`SELECT id, org_id, key_hash, key_prefix, name, team_id, rate_limit, allowed_models, created_at, revoked_at
		FROM gateway_keys WHERE key_hash = ?`)
	var k GatewayKey
	var models string
	var teamID sql.NullString
	err := s.db.QueryRowContext(ctx, query, keyHash).Scan(&k.ID, &k.OrgID, &k.KeyHash, &k.KeyPrefix, &k.Name, &teamID, &k.RateLimit, &models, &k.CreatedAt, &k.RevokedAt)
	if err == sql.ErrNoRows {
		return GatewayKey{}, fmt.Errorf("gateway key: %w", sql.ErrNoRows)
	}
	if err != nil {
		return GatewayKey{}, fmt.Errorf("get gateway key: %w", err)
	}
	k.TeamID = teamID.String
	if models != "" {
		if err := json.Unmarshal([]byte(models), &k.AllowedModels); err != nil {
			return GatewayKey{}, fmt.Errorf("unmarshal allowed models: %w", err)
		}
	}
	return k, nil
}

func (s *SQLStore) RevokeGatewayKey(ctx context.Context, id string) error {
	query := s.bind(`UPDATE gateway_keys SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`)
	res, err := s.db.ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("revoke gateway key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke gateway key rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("gateway key %s: already revoked or not found", id)
	}
	return nil
}

// ------------------------------------------------------------ GatewayConfig

func (s *SQLStore) SaveGatewayConfig(ctx context.Context, c GatewayConfig) error {
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now().UTC()
	}
	providers, err := json.Marshal(c.EnabledProviders)
	if err != nil {
		return fmt.Errorf("marshal enabled providers: %w", err)
	}
	fallback, err := json.Marshal(c.FallbackModels)
	if err != nil {
		return fmt.Errorf("marshal fallback models: %w", err)
	}

	query := `INSERT INTO gateway_configs(org_id, enabled_providers, routing_strategy, fallback_models, default_rate_limit, cost_tracking_enabled, custom_routing_rules, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(org_id) DO UPDATE SET
			enabled_providers = excluded.enabled_providers,
			routing_strategy = excluded.routing_strategy,
			fallback_models = excluded.fallback_models,
			default_rate_limit = excluded.default_rate_limit,
			cost_tracking_enabled = excluded.cost_tracking_enabled,
			custom_routing_rules = excluded.custom_routing_rules,
			updated_at = excluded.updated_at`
	_, err = s.db.ExecContext(ctx, s.bind(query), c.OrgID, string(providers), c.RoutingStrategy, string(fallback),
		c.DefaultRateLimit, boolToInt(c.CostTrackingEnabled), c.CustomRoutingRules, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save gateway config: %w", err)
	}
	return nil
}

func (s *SQLStore) GetGatewayConfig(ctx context.Context, orgID string) (GatewayConfig, error) {
	query := s.bind(`SELECT org_id, enabled_providers, routing_strategy, fallback_models, default_rate_limit, cost_tracking_enabled, custom_routing_rules, updated_at
		FROM gateway_configs WHERE org_id = ?`)
	var c GatewayConfig
	var providers, fallback string
	var tracking int
	err := s.db.QueryRowContext(ctx, query, orgID).Scan(&c.OrgID, &providers, &c.RoutingStrategy, &fallback, &c.DefaultRateLimit, &tracking, &c.CustomRoutingRules, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return GatewayConfig{}, fmt.Errorf("gateway config for org %s: %w", orgID, sql.ErrNoRows)
	}
	if err != nil {
		return GatewayConfig{}, fmt.Errorf("get gateway config: %w", err)
	}
	c.CostTrackingEnabled = tracking != 0
	if providers != "" {
		if err := json.Unmarshal([]byte(providers), &c.EnabledProviders); err != nil {
			return GatewayConfig{}, fmt.Errorf("unmarshal enabled providers: %w", err)
		}
	}
	if fallback != "" {
		if err := json.Unmarshal([]byte(fallback), &c.FallbackModels); err != nil {
			return GatewayConfig{}, fmt.Errorf("unmarshal fallback models: %w", err)
		}
	}
	return c, nil
}

// ----------------------------------------------------------- RoutingPolicy

func (s *SQLStore) CreateRoutingPolicy(ctx context.Context, p RoutingPolicy) error {
	if err := policyvalidate.ValidateRules(routing.Strategy(p.Strategy), p.Rules); err != nil {
		return fmt.Errorf("routing policy rules: %w", err)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	models, err := json.Marshal(p.Models)
	if err != nil {
		return fmt.Errorf("marshal routing policy models: %w", err)
	}
	query := s.bind(`INSERT INTO routing_policies(id, org_id, name, strategy, models, rules, is_active, api_key_prefix, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err = s.db.ExecContext(ctx, query, p.ID, p.OrgID, p.Name, p.Strategy, string(models), p.Rules, boolToInt(p.IsActive), p.APIKeyPrefix, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("create routing policy: %w", err)
	}
	return nil
}

func (s *SQLStore) GetRoutingPolicyByKeyPrefix(ctx context.Context, prefix string) (RoutingPolicy, error) {
	query := s.bind(`SELECT id, org_id, name, strategy, models, rules, is_active, api_key_prefix, created_at
		FROM routing_policies WHERE api_key_prefix = ? AND is_active = 1`)
	var p RoutingPolicy
	var models string
	err := s.db.QueryRowContext(ctx, query, prefix).Scan(&p.ID, &p.OrgID, &p.Name, &p.Strategy, &models, &p.Rules, &p.IsActive, &p.APIKeyPrefix, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return RoutingPolicy{}, fmt.Errorf("routing policy for prefix %s: %w", prefix, sql.ErrNoRows)
	}
	if err != nil {
		return RoutingPolicy{}, fmt.Errorf("get routing policy: %w", err)
	}
	if err := json.Unmarshal([]byte(models), &p.Models); err != nil {
		return RoutingPolicy{}, fmt.Errorf("unmarshal routing policy models: %w", err)
	}
	return p, nil
}

// ---------------------------------------------------------- GatewayRequest

// CreateGatewayRequest appends one served (or rejected) call to the
// append-only request history, assigning an id if the caller left it
// blank.
func (s *SQLStore) CreateGatewayRequest(ctx context.Context, r GatewayRequest) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	query := s.bind(`INSERT INTO gateway_requests(id, org_id, user_id, team_id, key_id, model_requested, model_used, provider,
		input_tokens, output_tokens, cost, marked_up_cost, latency_ms, status, error_message, is_managed, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query, r.ID, r.OrgID, r.UserID, r.TeamID, r.KeyID, r.ModelRequested, r.ModelUsed, r.Provider,
		r.InputTokens, r.OutputTokens, r.Cost, r.MarkedUpCost, r.LatencyMs, r.Status, r.ErrorMessage, boolToInt(r.IsManaged), r.CreatedAt)
	if err != nil {
		return fmt.Errorf("create gateway request: %w", err)
	}
	return nil
}

// IncrementManagedUsage adds tokens/cost to every active managed
// CloudProvider row of the given provider type, the running counter
// billing reconciliation reads from.
func (s *SQLStore) IncrementManagedUsage(ctx context.Context, providerType string, tokens int64, cost float64) error {
	query := s.bind(`UPDATE cloud_providers SET managed_usage_tokens = managed_usage_tokens + ?, managed_usage_cost = managed_usage_cost + ?
		WHERE provider_type = ? AND is_managed = 1`)
	_, err := s.db.ExecContext(ctx, query, tokens, cost, providerType)
	if err != nil {
		return fmt.Errorf("increment managed usage: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
