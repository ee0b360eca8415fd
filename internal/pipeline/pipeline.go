// Package pipeline wires the gateway's per-request core: authenticate the
// bearer key, gate on tier/feature/quota, rate-limit, pick a routing policy
// and order candidates, invoke the upstream provider, and finally record
// usage. Admission and audit run as HTTP middleware in cmd/bonitogw, around
// this package rather than inside it. Each stage is one of the standalone
// internal/* packages; this package only sequences them for a served chat
// completion.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ShabariRepo/bonito-sub002/internal/auth"
	"github.com/ShabariRepo/bonito-sub002/internal/billing"
	"github.com/ShabariRepo/bonito-sub002/internal/bonitoerr"
	"github.com/ShabariRepo/bonito-sub002/internal/featuregate"
	"github.com/ShabariRepo/bonito-sub002/internal/ratelimit"
	"github.com/ShabariRepo/bonito-sub002/internal/routing"
	"github.com/ShabariRepo/bonito-sub002/internal/store"
	"github.com/ShabariRepo/bonito-sub002/internal/usagerecorder"
	"github.com/ShabariRepo/bonito-sub002/models"
	"github.com/ShabariRepo/bonito-sub002/providers"
)

// retryBackoff is the backoff schedule for transient/rate-limited upstream
// errors (spec §4.6 step 6): the same candidate is retried once, after
// 100ms, before the router advances to the next one.
var retryBackoff = []time.Duration{100 * time.Millisecond}

// OrgLookup resolves the organization and its gateway config/policy for
// an authenticated key.
type OrgLookup interface {
	GetOrganization(ctx context.Context, id string) (store.Organization, error)
	GetGatewayConfig(ctx context.Context, orgID string) (store.GatewayConfig, error)
	GetRoutingPolicyByKeyPrefix(ctx context.Context, prefix string) (RoutingPolicyOrDefault, error)
}

// RoutingPolicyOrDefault lets callers signal "no policy configured"
// without a sentinel error import cycle back into store.
type RoutingPolicyOrDefault = store.RoutingPolicy

// Invoker dispatches one ordered candidate to its upstream provider.
// It is satisfied by the top-level Gateway through a thin adapter in
// cmd/bonitogw, keeping this package free of the strategies/config
// machinery the library-level Gateway already owns.
type Invoker interface {
	Invoke(ctx context.Context, providerID string, req providers.Request) (*providers.Response, error)
}

// Core sequences admission-adjacent stages for one request. The HTTP
// layer (cmd/bonitogw) owns the admission middleware chain itself;
// Core starts at authentication.
type Core struct {
	KeyAuth   *auth.KeyAuthenticator
	Gate      *featuregate.Gate
	RateLimit *ratelimit.FixedWindowLimiter
	Routing   *routing.Engine
	Orgs      OrgLookup
	Invoker   Invoker
	Recorder  *usagerecorder.Recorder
	Registry  *providers.Registry
	// Catalog prices served requests (invariant 3: cost >= 0, marked up
	// 1.33x for Bonito-managed providers). Nil disables cost accounting —
	// Cost/MarkedUpCost stay at their zero value on the recorded row.
	Catalog models.Catalog
}

// Outcome carries what the HTTP handler needs to write a response plus
// everything the usage recorder wants logged.
type Outcome struct {
	Response  *providers.Response
	Key       auth.KeyRecord
	Org       store.Organization
	Provider  string
	LatencyMs int
}

// Authorization is what Authorize hands back once a bearer key has
// cleared every admission-adjacent stage short of invoking a provider:
// authenticated, gated, rate-limited, and routed to an ordered candidate
// list. Callers that can't use Serve's synchronous invoke-and-record
// shape (streaming, embeddings) use this to still pass every request
// through the gateway's single authenticated entry point (spec §1)
// before dispatching the call themselves.
type Authorization struct {
	Key     auth.KeyRecord
	Org     store.Organization
	Ordered []routing.Candidate
}

// Authorize runs authenticate -> gate -> rate-limit -> route for model,
// without invoking a provider. Serve calls this and then invokes
// synchronously; streaming and embedding handlers call this directly and
// invoke on their own, recording the outcome with RecordOutcome.
func (c *Core) Authorize(ctx context.Context, bearer, model string, estInputTokens, estOutputTokens int) (*Authorization, error) {
	rawKey, err := auth.ParseBearer(bearer)
	if err != nil {
		return nil, bonitoerr.New(bonitoerr.KindAuth, "missing or malformed bearer token")
	}

	key, err := c.KeyAuth.Authenticate(ctx, rawKey, model)
	if err != nil {
		return nil, classifyAuthError(err)
	}

	org, err := c.Orgs.GetOrganization(ctx, key.OrgID)
	if err != nil {
		return nil, bonitoerr.Wrap(bonitoerr.KindInternal, "organization lookup failed", err)
	}

	if err := featuregate.RequireFeature(org.Tier, featuregate.FeatureGateway); err != nil {
		return nil, classifyGateError(err)
	}
	if err := c.Gate.RequireUsageLimit(ctx, org.ID, org.Tier, featuregate.QuotaGatewayCallsPerMonth); err != nil {
		return nil, classifyGateError(err)
	}

	decision, err := c.RateLimit.Allow(ctx, key.KeyID, key.RateLimit)
	if err != nil {
		return nil, bonitoerr.Wrap(bonitoerr.KindInternal, "rate limit check failed", err)
	}
	if !decision.Allowed {
		retryAfter := int(time.Until(decision.WindowEnd).Seconds())
		if c.Recorder != nil {
			c.Recorder.Record(store.GatewayRequest{
				OrgID:          org.ID,
				KeyID:          key.KeyID,
				TeamID:         key.TeamID,
				ModelRequested: model,
				Status:         "rate_limited",
				ErrorMessage:   "rate limit exceeded for this key",
				CreatedAt:      time.Now(),
			})
		}
		return nil, bonitoerr.RateLimitedWithRetry("rate limit exceeded for this key", retryAfter)
	}

	policy, candidates, rules := c.resolvePolicy(ctx, org, key, rawKey, model)
	ordered, err := c.Routing.Order(ctx, policy, candidates, rules, estInputTokens, estOutputTokens)
	if err != nil {
		return nil, bonitoerr.New(bonitoerr.KindNotFound, "no eligible provider for requested model: "+err.Error())
	}

	return &Authorization{Key: key, Org: org, Ordered: ordered}, nil
}

// RecordOutcome persists a usage row for a request Authorize cleared but
// that isn't invoked through Serve (streaming, embeddings). errMsg is
// empty on success.
func (c *Core) RecordOutcome(az Authorization, modelRequested, provider string, latency time.Duration, usage providers.Usage, errMsg string) {
	if c.Recorder == nil {
		return
	}
	row := store.GatewayRequest{
		OrgID:          az.Org.ID,
		KeyID:          az.Key.KeyID,
		TeamID:         az.Key.TeamID,
		ModelRequested: modelRequested,
		Provider:       provider,
		LatencyMs:      int(latency.Milliseconds()),
		CreatedAt:      time.Now(),
	}
	if errMsg != "" {
		row.Status = "error"
		row.ErrorMessage = errMsg
		c.Recorder.Record(row)
		return
	}
	row.Status = "success"
	row.ModelUsed = modelRequested
	row.InputTokens = usage.PromptTokens
	row.OutputTokens = usage.CompletionTokens
	c.priceRow(&row, provider, &providers.Response{Model: modelRequested, Usage: usage})
	c.Recorder.Record(row)
}

// Serve runs one chat-completion request through the full pipeline:
// authenticate -> gate -> rate-limit -> route -> invoke -> record.
// The returned error is already one of bonitoerr's categorized errors.
func (c *Core) Serve(ctx context.Context, bearer string, req providers.Request) (*Outcome, error) {
	az, err := c.Authorize(ctx, bearer, req.Model, estimateInputTokens(req), estimatedOutputTokens(req))
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, chosen, lastErr := c.invokeOrdered(ctx, az.Ordered, req)
	latency := time.Since(start)
	c.Routing.ObserveLatency(ctx, chosen, req.Model, float64(latency.Milliseconds()), 0.3) //nolint:errcheck

	row := store.GatewayRequest{
		OrgID:          az.Org.ID,
		KeyID:          az.Key.KeyID,
		TeamID:         az.Key.TeamID,
		ModelRequested: req.Model,
		Provider:       chosen,
		LatencyMs:      int(latency.Milliseconds()),
		CreatedAt:      time.Now(),
	}
	if lastErr != nil {
		row.Status = "error"
		row.ErrorMessage = lastErr.Error()
		if c.Recorder != nil {
			c.Recorder.Record(row)
		}
		return nil, classifyUpstreamError(lastErr)
	}

	row.Status = "success"
	row.ModelUsed = resp.Model
	row.InputTokens = resp.Usage.PromptTokens
	row.OutputTokens = resp.Usage.CompletionTokens
	c.priceRow(&row, chosen, resp)
	if c.Recorder != nil {
		c.Recorder.Record(row)
	}

	return &Outcome{Response: resp, Key: az.Key, Org: az.Org, Provider: chosen, LatencyMs: int(latency.Milliseconds())}, nil
}

// ClassifyUpstreamError exposes classifyUpstreamError to callers outside
// this package (streaming/embedding handlers) that invoke a provider
// directly after Authorize instead of going through Serve.
func ClassifyUpstreamError(err error) error { return classifyUpstreamError(err) }

// invokeOrdered dispatches ordered candidates in turn, retrying a
// transient/rate-limited-upstream failure on the same candidate with
// capped backoff before advancing, and short-circuiting the whole loop the
// moment a candidate fails with a client-origin permanent error (spec §4.6
// step 6 — invalid credentials, model not found, or any other permanent
// failure means trying the next candidate won't help either).
func (c *Core) invokeOrdered(ctx context.Context, ordered []routing.Candidate, req providers.Request) (*providers.Response, string, error) {
	var lastErr error
	var chosen string
	for _, cand := range ordered {
		chosen = cand.ProviderID
		resp, err := c.invokeWithRetry(ctx, cand.ProviderID, req)
		if err == nil {
			return resp, chosen, nil
		}
		lastErr = err
		if providers.IsPermanent(err) {
			break
		}
	}
	return nil, chosen, lastErr
}

// invokeWithRetry calls providerID once, then retries on the retryBackoff
// schedule as long as each failure is categorised transient or
// rate-limited-upstream.
func (c *Core) invokeWithRetry(ctx context.Context, providerID string, req providers.Request) (*providers.Response, error) {
	resp, err := c.Invoker.Invoke(ctx, providerID, req)
	for _, backoff := range retryBackoff {
		if err == nil || !providers.IsRetryable(err) {
			return resp, err
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		resp, err = c.Invoker.Invoke(ctx, providerID, req)
	}
	return resp, err
}

// priceRow fills in Cost/MarkedUpCost/IsManaged on a successful row using
// the model catalog and the managed-inference markup (invariant 3: cost >=
// 0, and when is_managed, marked_up_cost = round(cost*1.33,6)). A missing
// catalog or an unpriced model leaves the row's cost fields at zero.
func (c *Core) priceRow(row *store.GatewayRequest, provider string, resp *providers.Response) {
	if c.Catalog == nil || resp == nil {
		return
	}
	usage := models.Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}
	modelKey := resp.Model
	if provider != "" {
		modelKey = provider + "/" + resp.Model
	}
	result := models.Calculate(c.Catalog, modelKey, usage)
	if !result.ModelFound {
		return
	}
	row.Cost = result.TotalUSD
	if billing.IsManagedProvider(provider) {
		row.IsManaged = true
		marked := billing.MarkedUpCost(result.TotalUSD)
		row.MarkedUpCost = &marked
	}
}

// resolvePolicy finds the RoutingPolicy whose APIKeyPrefix matches the
// authenticated key, falling back to the org's GatewayConfig default
// strategy, and finally to StrategyFailover over every provider that
// serves the requested model when neither is configured.
func (c *Core) resolvePolicy(ctx context.Context, org store.Organization, key auth.KeyRecord, rawKey, model string) (routing.Strategy, []routing.Candidate, routing.Rules) {
	candidates := c.candidatesForModel(model)

	policy, err := c.Orgs.GetRoutingPolicyByKeyPrefix(ctx, keyPrefix(rawKey))
	if err == nil && policy.IsActive {
		return routing.Strategy(policy.Strategy), policyCandidates(policy, candidates), routing.Rules{}
	}

	cfg, err := c.Orgs.GetGatewayConfig(ctx, org.ID)
	if err == nil && cfg.RoutingStrategy != "" {
		return routing.Strategy(cfg.RoutingStrategy), candidates, routing.Rules{}
	}

	return routing.StrategyFailover, candidates, routing.Rules{}
}

func (c *Core) candidatesForModel(model string) []routing.Candidate {
	var out []routing.Candidate
	if c.Registry == nil {
		return out
	}
	for _, name := range c.Registry.List() {
		p, ok := c.Registry.Get(name)
		if !ok || !p.SupportsModel(model) {
			continue
		}
		out = append(out, routing.Candidate{ProviderID: name, ModelID: model, Role: routing.RolePrimary})
	}
	return out
}

// policyCandidates restricts the registry-derived candidate set down to
// the models named in the policy, preserving each model's configured
// role and ab_test weight.
func policyCandidates(policy store.RoutingPolicy, all []routing.Candidate) []routing.Candidate {
	byModel := make(map[string]store.RoutingPolicyModel, len(policy.Models))
	for _, m := range policy.Models {
		byModel[m.ModelID] = m
	}
	out := make([]routing.Candidate, 0, len(all))
	for _, cand := range all {
		pm, ok := byModel[cand.ModelID]
		if !ok {
			continue
		}
		cand.Weight = pm.Weight
		if pm.Role == "fallback" {
			cand.Role = routing.RoleFallback
		} else {
			cand.Role = routing.RolePrimary
		}
		out = append(out, cand)
	}
	return out
}

// keyPrefix returns the public, loggable prefix of a raw bearer key —
// the same slice stored as GatewayKey.KeyPrefix at issuance time.
func keyPrefix(raw string) string {
	const n = 12
	if len(raw) <= n {
		return raw
	}
	return raw[:n]
}

func estimateInputTokens(req providers.Request) int {
	chars := 0
	for _, m := range req.Messages {
		chars += len(m.Content)
	}
	return chars / 4
}

func estimatedOutputTokens(req providers.Request) int {
	if req.MaxTokens != nil {
		return *req.MaxTokens
	}
	return 256
}

func classifyAuthError(err error) error {
	switch {
	case errors.Is(err, auth.ErrInvalidKey), errors.Is(err, auth.ErrRevoked), errors.Is(err, auth.ErrMalformed), errors.Is(err, auth.ErrMissingToken):
		return bonitoerr.Wrap(bonitoerr.KindAuth, "authentication failed", err)
	case errors.Is(err, auth.ErrModelNotAllowed):
		return bonitoerr.Wrap(bonitoerr.KindPermission, "model not allowed for this key", err)
	default:
		return bonitoerr.Wrap(bonitoerr.KindInternal, "authentication failed", err)
	}
}

func classifyGateError(err error) error {
	var upgrade *featuregate.UpgradeRequiredError
	if errors.As(err, &upgrade) {
		return bonitoerr.Wrap(bonitoerr.KindUpgradeRequired, "feature requires a higher tier", err)
	}
	return bonitoerr.Wrap(bonitoerr.KindRateLimited, "usage quota exceeded", err)
}

func classifyUpstreamError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline") {
		return bonitoerr.Wrap(bonitoerr.KindTimeout, "upstream provider timed out", err)
	}
	return bonitoerr.Wrap(bonitoerr.KindUpstreamTransient, "upstream provider call failed", err)
}
