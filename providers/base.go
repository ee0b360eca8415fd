package providers

import "strings"

// Base provides common fields and methods shared by REST-based provider
// implementations. Embed this struct to avoid repeating name, apiKey, and
// baseURL handling across providers.
type Base struct {
	name    string
	apiKey  string
	baseURL string
}

// CategorizeUpstreamError classifies a REST provider's HTTP failure into
// the categories the gateway core's retry/short-circuit logic understands
// (spec §4.6 step 6). statusCode 0 means the call never reached the
// upstream (dial/timeout/context failure) and is always transient.
func CategorizeUpstreamError(statusCode int, message string) ErrorCategory {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "context length"), strings.Contains(lower, "context_length"),
		strings.Contains(lower, "maximum context"), strings.Contains(lower, "too many tokens"):
		return CategoryContextWindowExceed
	case statusCode == 401, statusCode == 403:
		return CategoryInvalidCredentials
	case statusCode == 404:
		return CategoryModelNotFound
	case statusCode == 429:
		return CategoryRateLimitedUpstream
	case statusCode == 0, statusCode >= 500:
		return CategoryTransient
	default:
		return CategoryPermanent
	}
}

// WrapUpstreamError builds a categorised AdapterError for a failed call to
// this provider, classifying by HTTP status and message content.
func (b *Base) WrapUpstreamError(statusCode int, err error) error {
	if err == nil {
		return nil
	}
	return NewAdapterError(b.name, CategorizeUpstreamError(statusCode, err.Error()), err)
}

// Name returns the provider name.
func (b *Base) Name() string { return b.name }

// BaseURL returns the provider base URL, satisfying the ProxiableProvider interface.
func (b *Base) BaseURL() string { return b.baseURL }

// ModelsFromList builds a ModelInfo slice from a list of model IDs.
// Provider Models() implementations call this to avoid repetitive boilerplate.
func ModelsFromList(providerName string, ids []string) []ModelInfo {
	models := make([]ModelInfo, len(ids))
	for i, id := range ids {
		models[i] = ModelInfo{
			ID:      id,
			Object:  "model",
			OwnedBy: providerName,
		}
	}
	return models
}

// ProviderSource is a read-only view over a collection of registered providers.
// Both *Registry and *Gateway implement this interface, enabling registry
// consolidation: handlers that only need to read provider info can accept
// a ProviderSource instead of a concrete *Registry.
type ProviderSource interface {
	Get(name string) (Provider, bool)
	List() []string
	AllModels() []ModelInfo
	FindByModel(model string) (Provider, bool)
}
