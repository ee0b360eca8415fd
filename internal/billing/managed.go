// Package billing implements Bonito-managed inference: the gateway can
// proxy requests to a subset of upstream providers using its own master
// API key instead of a per-organization credential, billing the
// organization a markup on top of the raw provider cost.
package billing

import (
	"fmt"
	"math"
	"os"
)

// MarkupRate is applied on top of raw provider cost for managed requests.
const MarkupRate = 0.33

// managedProviders supports Bonito-managed API key proxying.
var managedProviders = map[string]bool{
	"groq":      true,
	"openai":    true,
	"anthropic": true,
}

// masterKeyEnv names the environment variable holding each managed
// provider's master key.
var masterKeyEnv = map[string]string{
	"groq":      "BONITO_GROQ_MASTER_KEY",
	"openai":    "BONITO_OPENAI_MASTER_KEY",
	"anthropic": "BONITO_ANTHROPIC_MASTER_KEY",
}

// basePricingPer1K is used only to render the "managed pricing" display;
// the actual cost on a served request uses the model catalog via
// models.Calculate and is marked up with MarkedUpCost.
var basePricingPer1K = map[string]struct{ Input, Output float64 }{
	"groq":      {Input: 0.00059, Output: 0.00079},
	"openai":    {Input: 0.0025, Output: 0.01},
	"anthropic": {Input: 0.003, Output: 0.015},
}

// IsManagedProvider reports whether provider supports Bonito-managed mode.
func IsManagedProvider(provider string) bool {
	return managedProviders[provider]
}

// MasterKey reads the master key for provider from its environment
// variable. An empty string means managed mode is not configured for it.
func MasterKey(provider string) string {
	env, ok := masterKeyEnv[provider]
	if !ok {
		return ""
	}
	return os.Getenv(env)
}

// IsManagedAvailable reports whether provider both supports managed mode
// and has a master key configured in the environment.
func IsManagedAvailable(provider string) bool {
	return IsManagedProvider(provider) && MasterKey(provider) != ""
}

// MarkedUpCost applies MarkupRate to a raw provider cost, rounded to
// micro-dollar precision the way the billing ledger records it.
func MarkedUpCost(baseCost float64) float64 {
	return math.Round(baseCost*(1+MarkupRate)*1e6) / 1e6
}

// DisplayPricing is the marked-up per-1K-token pricing shown to
// organizations considering managed mode for provider.
type DisplayPricing struct {
	InputPer1K     float64
	OutputPer1K    float64
	MarkupRate     float64
	BaseInputPer1K float64
	BaseOutputPer1K float64
}

// GetManagedPricing returns the marked-up display pricing for provider,
// or the zero value if provider has no known base pricing.
func GetManagedPricing(provider string) (DisplayPricing, error) {
	base, ok := basePricingPer1K[provider]
	if !ok {
		return DisplayPricing{}, fmt.Errorf("billing: no base pricing for provider %q", provider)
	}
	return DisplayPricing{
		InputPer1K:      MarkedUpCost(base.Input),
		OutputPer1K:     MarkedUpCost(base.Output),
		MarkupRate:      MarkupRate,
		BaseInputPer1K:  base.Input,
		BaseOutputPer1K: base.Output,
	}, nil
}
