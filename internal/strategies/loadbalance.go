package strategies

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/ShabariRepo/bonito-sub002/providers"
)

// LoadBalance distributes requests across targets by weighted random
// selection, restricted each call to whichever targets' providers support
// the requested model.
type LoadBalance struct {
	targets []Target
	lookup  ProviderLookup
}

// NewLoadBalance creates a new load balance strategy.
func NewLoadBalance(targets []Target, lookup ProviderLookup) *LoadBalance {
	return &LoadBalance{targets: targets, lookup: lookup}
}

// Execute picks a weighted-random provider among those supporting the
// requested model and sends the request.
func (lb *LoadBalance) Execute(ctx context.Context, req providers.Request) (*providers.Response, error) {
	if len(lb.targets) == 0 {
		return nil, fmt.Errorf("no targets configured for loadbalance")
	}

	compatible := lb.compatibleTargets(req.Model)
	if len(compatible) == 0 {
		return nil, fmt.Errorf("no provider supports model %s", req.Model)
	}

	target, err := lb.pick(compatible)
	if err != nil {
		return nil, err
	}

	p, _ := lb.lookup(target.VirtualKey)
	return p.Complete(ctx, req)
}

func (lb *LoadBalance) compatibleTargets(model string) []Target {
	var compatible []Target
	for _, t := range lb.targets {
		p, ok := lb.lookup(t.VirtualKey)
		if ok && p.SupportsModel(model) {
			compatible = append(compatible, t)
		}
	}
	return compatible
}

// effectiveWeight treats a zero or negative configured weight as 1 (equal
// distribution) rather than excluding the target.
func effectiveWeight(w float64) float64 {
	if w <= 0 {
		return 1
	}
	return w
}

// pick selects a target from targets with probability proportional to its
// effective weight. rand.Float64 is safe for concurrent use, so no locking
// is needed here.
func (lb *LoadBalance) pick(targets []Target) (Target, error) {
	var totalWeight float64
	for _, t := range targets {
		totalWeight += effectiveWeight(t.Weight)
	}
	if totalWeight <= 0 {
		return Target{}, fmt.Errorf("no targets available")
	}

	r := rand.Float64() * totalWeight //nolint:gosec

	var cumulative float64
	for _, t := range targets {
		cumulative += effectiveWeight(t.Weight)
		if r < cumulative {
			return t, nil
		}
	}
	return targets[len(targets)-1], nil
}
