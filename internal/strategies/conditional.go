package strategies

import (
	"context"
	"fmt"
	"strings"

	"github.com/ShabariRepo/bonito-sub002/providers"
)

// ConditionRule maps one match condition to the target it should route to.
type ConditionRule struct {
	Key    string // "model" or "model_prefix"
	Value  string
	Target Target
}

// Conditional evaluates rules in order and routes to the first match's
// target, falling back to a default target when nothing matches.
type Conditional struct {
	rules    []ConditionRule
	fallback Target
	lookup   ProviderLookup
}

// NewConditional creates a new conditional strategy. Rules are evaluated in
// order; the first match wins. The fallback target is used when no rule
// matches.
func NewConditional(rules []ConditionRule, fallback Target, lookup ProviderLookup) *Conditional {
	return &Conditional{rules: rules, fallback: fallback, lookup: lookup}
}

// Execute routes the request to whichever target the rules select.
func (c *Conditional) Execute(ctx context.Context, req providers.Request) (*providers.Response, error) {
	target := c.resolve(req)

	p, ok := c.lookup(target.VirtualKey)
	if !ok {
		return nil, fmt.Errorf("provider not found: %s", target.VirtualKey)
	}
	return p.Complete(ctx, req)
}

// resolve returns the target of the first rule whose condition matches req,
// or the configured fallback if none do.
func (c *Conditional) resolve(req providers.Request) Target {
	for _, rule := range c.rules {
		if ruleMatches(rule, req) {
			return rule.Target
		}
	}
	return c.fallback
}

func ruleMatches(rule ConditionRule, req providers.Request) bool {
	switch rule.Key {
	case "model":
		return req.Model == rule.Value
	case "model_prefix":
		return strings.HasPrefix(req.Model, rule.Value)
	default:
		return false
	}
}
