package common

import "strings"

// ModelConfig is the effective, resolved model selection for one turn:
// what spec.md §6.4 calls the "model" and "max_tokens" options plus the
// thinking-level knob, already layered from config-file > env > default.
type ModelConfig struct {
	// Provider is the provider kind name, optionally overridden per-run.
	Provider string `koanf:"provider" json:"provider"`
	// Model is the bare model identifier, or "<kind>:<model>" for a
	// composite/meta provider route.
	Model string `koanf:"model,omitempty" json:"model,omitempty"`
	// ThinkingLevel is the provider-agnostic reasoning-effort knob.
	ThinkingLevel ThinkingLevel `koanf:"thinking_level" json:"thinkingLevel,omitempty"`
	// MaxTokens is the hard cap on output tokens; 0 means "use the
	// model registry's output limit minus 1".
	MaxTokens int `koanf:"max_tokens" json:"maxTokens,omitempty"`
	// ExtraBody is passed through verbatim to the provider request body.
	ExtraBody map[string]any `koanf:"extra_body" json:"extraBody,omitempty"`
}

// NormalizedProviderName upper-cases and underscores the provider name for
// use as an environment-variable prefix (<KIND>_API_KEY, <KIND>_BASE_URL).
func (c ModelConfig) NormalizedProviderName() string {
	return strings.ToUpper(strings.ReplaceAll(strings.ReplaceAll(c.Provider, " ", "_"), "-", "_"))
}

// SplitRouteTag splits a "<kind>:<model>" identifier into its prefix and
// bare model id. If there is no ':' prefix, kind is empty.
func SplitRouteTag(model string) (kind string, bareModel string) {
	if idx := strings.IndexByte(model, ':'); idx >= 0 {
		return model[:idx], model[idx+1:]
	}
	return "", model
}

// ResolveMaxTokens applies the "0 -> registry limit minus 1" rule from
// spec.md 6.4.
func ResolveMaxTokens(configured int, registryOutputLimit int) int {
	if configured > 0 {
		return configured
	}
	if registryOutputLimit > 1 {
		return registryOutputLimit - 1
	}
	return registryOutputLimit
}
