package strategies

import (
	"context"
	"fmt"

	"github.com/ShabariRepo/bonito-sub002/providers"
)

// Target names a provider a strategy can route to, plus its relative
// weight for LoadBalance.
type Target struct {
	VirtualKey string
	Weight     float64
}

// Single always routes to one configured target; no failover, no
// distribution. Useful for a gateway config pinned to a single provider.
type Single struct {
	target Target
	lookup ProviderLookup
}

// NewSingle creates a new single-provider strategy.
func NewSingle(target Target, lookup ProviderLookup) *Single {
	return &Single{target: target, lookup: lookup}
}

// Execute sends the request to the one configured provider, failing
// closed if it's missing or can't serve the requested model.
func (s *Single) Execute(ctx context.Context, req providers.Request) (*providers.Response, error) {
	p, ok := s.lookup(s.target.VirtualKey)
	if !ok {
		return nil, fmt.Errorf("provider not found: %s", s.target.VirtualKey)
	}
	if !p.SupportsModel(req.Model) {
		return nil, fmt.Errorf("provider %s does not support model %s", s.target.VirtualKey, req.Model)
	}
	return p.Complete(ctx, req)
}
