// Package routing resolves a model tier to a concrete provider, model,
// and sampling configuration, including the dynamic tier upgrade.
package routing

import (
	"fmt"
	"strings"

	"github.com/tessel-ai/tessel/internal/config"
	"github.com/tessel-ai/tessel/pkg/models"
)

// Tier names.
const (
	TierRouting  = "routing"
	TierBalanced = "balanced"
	TierSmart    = "smart"
	TierCoding   = "coding"
	TierDeep     = "deep"
)

// SettableTiers are the tiers the set_tier tool may select.
var SettableTiers = map[string]bool{
	TierBalanced: true,
	TierSmart:    true,
	TierCoding:   true,
	TierDeep:     true,
}

// Known provider base URLs, overridable per provider in config.
var providerBaseURLs = map[string]string{
	"openai":     "https://api.openai.com/v1",
	"openrouter": "https://openrouter.ai/api/v1",
	"anthropic":  "https://api.anthropic.com/v1",
	"google":     "https://generativelanguage.googleapis.com/v1beta/openai",
	"moonshot":   "https://api.moonshot.ai/v1",
	"groq":       "https://api.groq.com/openai/v1",
	"together":   "https://api.together.xyz/v1",
	"fireworks":  "https://api.fireworks.ai/inference/v1",
	"deepseek":   "https://api.deepseek.com/v1",
	"mistral":    "https://api.mistral.ai/v1",
	"xai":        "https://api.x.ai/v1",
	"perplexity": "https://api.perplexity.ai",
	"zhipu":      "https://open.bigmodel.cn/api/paas/v4",
	"qwen":       "https://dashscope.aliyuncs.com/compatible-mode/v1",
	"cerebras":   "https://api.cerebras.ai/v1",
	"deepinfra":  "https://api.deepinfra.com/v1/openai",
}

// codeTools is the activity detector behind the dynamic tier upgrade:
// invoking any of these marks the turn as code-related.
var codeTools = map[string]bool{
	"shell":           true,
	"filesystem":      true,
	"goal_management": true,
}

// IsCodeTool reports whether a tool name counts as code-related work.
func IsCodeTool(name string) bool {
	return codeTools[name]
}

// Resolution is a fully resolved model choice.
type Resolution struct {
	Tier           string
	Provider       string
	BaseURL        string
	APIKey         string
	TimeoutSeconds int
	Model          string
	Reasoning      string
	Temperature    float64
}

// Router resolves tiers against the settings snapshot.
type Router struct {
	router    config.ModelRouterConfig
	providers config.ProvidersConfig
}

// New creates a router over the given configuration sections.
func New(router config.ModelRouterConfig, providers config.ProvidersConfig) *Router {
	return &Router{router: router, providers: providers}
}

// DynamicTierEnabled reports whether in-turn upgrades are on.
func (r *Router) DynamicTierEnabled() bool {
	return r.router.DynamicTier()
}

// EffectiveTier applies the resolution order: a forced user preference
// wins; otherwise a context override; otherwise the dynamic upgrade;
// otherwise balanced.
func (r *Router) EffectiveTier(prefs models.Preferences, contextTier string, codeActivity bool) string {
	if prefs.TierForce && prefs.ModelTier != "" {
		return prefs.ModelTier
	}
	if contextTier != "" {
		return contextTier
	}
	base := prefs.ModelTier
	if base == "" {
		base = TierBalanced
	}
	// Upgrade only from balanced; never downgrade within a turn.
	if codeActivity && r.DynamicTierEnabled() && base == TierBalanced {
		return TierCoding
	}
	return base
}

// Resolve maps a tier to provider, model, and sampling settings. A
// provider without an API key is not eligible.
func (r *Router) Resolve(tier string) (*Resolution, error) {
	tc, ok := r.router.Tiers[tier]
	if !ok {
		return nil, fmt.Errorf("no model configured for tier %q", tier)
	}
	provider, model, ok := strings.Cut(tc.Model, "/")
	if !ok {
		return nil, fmt.Errorf("tier %q model %q is not \"<provider>/<model-id>\"", tier, tc.Model)
	}

	pc, configured := r.providers[provider]
	baseURL := pc.BaseURL
	if baseURL == "" {
		baseURL = providerBaseURLs[provider]
	}
	if baseURL == "" {
		return nil, fmt.Errorf("unknown provider %q for tier %q", provider, tier)
	}
	if !configured || !pc.APIKeyPresent {
		return nil, fmt.Errorf("provider %q has no API key configured", provider)
	}

	res := &Resolution{
		Tier:           tier,
		Provider:       provider,
		BaseURL:        baseURL,
		APIKey:         pc.APIKey,
		TimeoutSeconds: pc.RequestTimeoutSeconds,
		Model:          model,
		Reasoning:      tc.Reasoning,
	}
	// Reasoning models ignore the global temperature.
	if tc.Reasoning == "" {
		res.Temperature = r.router.Temperature
	}
	return res, nil
}
