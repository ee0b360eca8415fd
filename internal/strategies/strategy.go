// Package strategies implements the legacy library-level Gateway's static
// routing strategies (config-driven target selection, no control-plane
// policy or candidate ordering involved). internal/routing.Engine is the
// control-plane equivalent used by pipeline.Core when an organization's
// key goes through the authenticated path.
//
// Available strategies:
//   - Single:      always routes to one configured target.
//   - Fallback:    tries targets in order, retrying transient failures.
//   - LoadBalance: distributes requests across targets by weight.
//   - Conditional: routes based on request field matching rules.
package strategies

import (
	"context"

	"github.com/ShabariRepo/bonito-sub002/providers"
)

// Strategy picks a provider and invokes it for one request.
type Strategy interface {
	Execute(ctx context.Context, req providers.Request) (*providers.Response, error)
}

// ProviderLookup resolves a configured virtual key to a registered Provider.
type ProviderLookup func(name string) (providers.Provider, bool)
