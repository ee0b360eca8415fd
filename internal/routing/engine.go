// Package routing implements the policy-driven routing engine: given an
// organization, a requested model, and a set of candidate
// (provider, model) pairs, it produces the ordered attempt list the
// gateway core's invocation step walks through.
package routing

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"

	"github.com/ShabariRepo/bonito-sub002/internal/sharedcache"
)

// Strategy is one of the five routing policy strategies.
type Strategy string

const (
	StrategyCostOptimized     Strategy = "cost_optimized"
	StrategyLatencyOptimized  Strategy = "latency_optimized"
	StrategyBalanced          Strategy = "balanced"
	StrategyFailover          Strategy = "failover"
	StrategyABTest            Strategy = "ab_test"
)

// CandidateRole mirrors RoutingPolicyModel.Role for failover/ab_test
// ordering.
type CandidateRole string

const (
	RolePrimary  CandidateRole = "primary"
	RoleFallback CandidateRole = "fallback"
)

// Candidate is one (provider, model) pair the engine can route to.
type Candidate struct {
	ProviderID       string
	ModelID          string
	InputPricePer1M  float64
	OutputPricePer1M float64
	Region           string
	Capabilities     []string
	Weight           int // only meaningful for ab_test
	Role             CandidateRole
}

// Rules filters candidates before a strategy orders them. RegionPreference
// removes no candidate; it only breaks ties in the strategy's ordering.
type Rules struct {
	MaxCostPerRequest   float64 // 0 means unset
	MaxTokens           int     // 0 means unset
	AllowedCapabilities []string
	RegionPreference    string
}

func (r Rules) apply(candidates []Candidate, estimatedInputTokens, estimatedOutputTokens int) []Candidate {
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if r.MaxCostPerRequest > 0 {
			cost := float64(estimatedInputTokens)*c.InputPricePer1M/1e6 + float64(estimatedOutputTokens)*c.OutputPricePer1M/1e6
			if cost > r.MaxCostPerRequest {
				continue
			}
		}
		if r.MaxTokens > 0 && estimatedInputTokens+estimatedOutputTokens > r.MaxTokens {
			continue
		}
		if len(r.AllowedCapabilities) > 0 && !hasAllCapabilities(c.Capabilities, r.AllowedCapabilities) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func hasAllCapabilities(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, h := range have {
		set[h] = true
	}
	for _, w := range want {
		if !set[w] {
			return false
		}
	}
	return true
}

// Engine orders candidates according to a policy's strategy, using the
// shared cache for latency EWMAs.
type Engine struct {
	cache sharedcache.Client
}

// NewEngine builds an Engine backed by cache.
func NewEngine(cache sharedcache.Client) *Engine {
	return &Engine{cache: cache}
}

// Order applies rules then the strategy's ordering, returning the final
// attempt list. estimatedInputTokens/estimatedOutputTokens feed cost-cap
// filtering; pass 0 to skip cost filtering regardless of rules.
func (e *Engine) Order(ctx context.Context, strategy Strategy, candidates []Candidate, rules Rules, estimatedInputTokens, estimatedOutputTokens int) ([]Candidate, error) {
	filtered := rules.apply(candidates, estimatedInputTokens, estimatedOutputTokens)
	if len(filtered) == 0 {
		return nil, fmt.Errorf("routing: no candidates survive rule filtering")
	}

	switch strategy {
	case StrategyCostOptimized:
		return e.orderByCost(filtered, rules), nil
	case StrategyLatencyOptimized:
		return e.orderByLatency(ctx, filtered, rules)
	case StrategyBalanced:
		return e.orderBalanced(ctx, filtered, rules)
	case StrategyFailover:
		return orderFailover(filtered), nil
	case StrategyABTest:
		return orderABTest(filtered), nil
	default:
		return nil, fmt.Errorf("routing: unknown strategy %q", strategy)
	}
}

func (e *Engine) orderByCost(candidates []Candidate, rules Rules) []Candidate {
	out := append([]Candidate(nil), candidates...)
	sort.SliceStable(out, func(i, j int) bool {
		ci := out[i].InputPricePer1M + out[i].OutputPricePer1M
		cj := out[j].InputPricePer1M + out[j].OutputPricePer1M
		if ci != cj {
			return ci < cj
		}
		return tieBreak(out[i], out[j], rules)
	})
	return out
}

// latencyEWMA returns the stored latency EWMA for (provider, model)
// in milliseconds, or 0 if never observed (treated as best-case so new
// candidates get a fair first try).
func (e *Engine) latencyEWMA(ctx context.Context, provider, model string) float64 {
	key := fmt.Sprintf("latency:%s:%s", provider, model)
	v, err := e.cache.Get(ctx, key)
	if err != nil {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}

// ObserveLatency folds a new latency sample into the EWMA for
// (provider, model) with smoothing factor alpha (0 < alpha <= 1).
func (e *Engine) ObserveLatency(ctx context.Context, provider, model string, sampleMs float64, alpha float64) error {
	key := fmt.Sprintf("latency:%s:%s", provider, model)
	prev := e.latencyEWMA(ctx, provider, model)
	next := sampleMs
	if prev > 0 {
		next = alpha*sampleMs + (1-alpha)*prev
	}
	if err := e.cache.Set(ctx, key, strconv.FormatFloat(next, 'f', 3, 64), 0); err != nil {
		return fmt.Errorf("routing: record latency: %w", err)
	}
	return nil
}

func (e *Engine) orderByLatency(ctx context.Context, candidates []Candidate, rules Rules) ([]Candidate, error) {
	out := append([]Candidate(nil), candidates...)
	latencies := make(map[string]float64, len(out))
	for _, c := range out {
		latencies[c.ProviderID+"/"+c.ModelID] = e.latencyEWMA(ctx, c.ProviderID, c.ModelID)
	}
	sort.SliceStable(out, func(i, j int) bool {
		li := latencies[out[i].ProviderID+"/"+out[i].ModelID]
		lj := latencies[out[j].ProviderID+"/"+out[j].ModelID]
		if li != lj {
			return li < lj
		}
		return tieBreak(out[i], out[j], rules)
	})
	return out, nil
}

func (e *Engine) orderBalanced(ctx context.Context, candidates []Candidate, rules Rules) ([]Candidate, error) {
	byCost := e.orderByCost(candidates, rules)
	byLatency, err := e.orderByLatency(ctx, candidates, rules)
	if err != nil {
		return nil, err
	}

	costRank := rankOf(byCost)
	latencyRank := rankOf(byLatency)

	out := append([]Candidate(nil), candidates...)
	sort.SliceStable(out, func(i, j int) bool {
		keyI := out[i].ProviderID + "/" + out[i].ModelID
		keyJ := out[j].ProviderID + "/" + out[j].ModelID
		sumI := costRank[keyI] + latencyRank[keyI]
		sumJ := costRank[keyJ] + latencyRank[keyJ]
		if sumI != sumJ {
			return sumI < sumJ
		}
		return tieBreak(out[i], out[j], rules)
	})
	return out, nil
}

func rankOf(ordered []Candidate) map[string]int {
	ranks := make(map[string]int, len(ordered))
	for i, c := range ordered {
		ranks[c.ProviderID+"/"+c.ModelID] = i
	}
	return ranks
}

// orderFailover preserves the policy's declared order: primary first,
// then fallbacks in declaration order. The invocation step advances
// through this list on transient/rate_limited_upstream errors.
func orderFailover(candidates []Candidate) []Candidate {
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Role == RolePrimary {
			out = append(out, c)
		}
	}
	for _, c := range candidates {
		if c.Role != RolePrimary {
			out = append(out, c)
		}
	}
	return out
}

// orderABTest draws a primary by weighted random selection (weights sum
// to 100 per the policy invariant) and appends any explicit
// role=fallback candidates after it.
func orderABTest(candidates []Candidate) []Candidate {
	var primaries, fallbacks []Candidate
	for _, c := range candidates {
		if c.Role == RoleFallback {
			fallbacks = append(fallbacks, c)
		} else {
			primaries = append(primaries, c)
		}
	}
	if len(primaries) == 0 {
		return fallbacks
	}

	total := 0
	for _, c := range primaries {
		total += c.Weight
	}
	if total <= 0 {
		return append(primaries, fallbacks...)
	}

	draw := rand.Intn(total)
	cursor := 0
	chosen := primaries[len(primaries)-1]
	for _, c := range primaries {
		cursor += c.Weight
		if draw < cursor {
			chosen = c
			break
		}
	}

	out := []Candidate{chosen}
	for _, c := range primaries {
		if c.ProviderID != chosen.ProviderID || c.ModelID != chosen.ModelID {
			out = append(out, c)
		}
	}
	return append(out, fallbacks...)
}

// tieBreak implements the policy's declared tie-break: region match first,
// then provider_id lexical order.
func tieBreak(a, b Candidate, rules Rules) bool {
	if rules.RegionPreference != "" {
		aMatch := strings.EqualFold(a.Region, rules.RegionPreference)
		bMatch := strings.EqualFold(b.Region, rules.RegionPreference)
		if aMatch != bMatch {
			return aMatch
		}
	}
	return a.ProviderID < b.ProviderID
}
