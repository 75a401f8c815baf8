package providers

import (
	"fmt"
	"strings"

	"zdx/common"
	"zdx/secretmanager"
)

// ProviderKind identifies one of the four wire-protocol families the
// facade can dispatch to, per spec.md 4.5.
type ProviderKind string

const (
	KindAnthropic         ProviderKind = "anthropic"
	KindOpenAIResponses   ProviderKind = "openai-responses"
	KindOpenAICompletions ProviderKind = "openai-completions"
	KindGoogleGenerativeAI ProviderKind = "google-generative-ai"
	KindStepFun           ProviderKind = "stepfun"
)

// routeTagToKind maps a capability-registry route tag (common.RouteTag) to
// the ProviderKind that serves it.
var routeTagToKind = map[common.RouteTag]ProviderKind{
	common.RouteAnthropicMessages:  KindAnthropic,
	common.RouteOpenAIResponses:    KindOpenAIResponses,
	common.RouteGoogleGenerativeAI: KindGoogleGenerativeAI,
	common.RouteOpenAICompletions:  KindOpenAICompletions,
}

// InferKind resolves a ProviderKind from a model identifier, optionally
// prefixed "<kind>:<model>", falling back to simple substring matching on
// the bare model id for the common providers.
func InferKind(model string) (kind ProviderKind, bareModel string) {
	prefix, bare := common.SplitRouteTag(model)
	if prefix != "" {
		if k, ok := kindFromKeyword(prefix); ok {
			return k, bare
		}
	}

	switch {
	case strings.HasPrefix(bare, "claude-"):
		return KindAnthropic, bare
	case strings.HasPrefix(bare, "gemini-"):
		return KindGoogleGenerativeAI, bare
	case strings.HasPrefix(bare, "step-"):
		return KindStepFun, bare
	case strings.HasPrefix(bare, "gpt-") || strings.HasPrefix(bare, "o1") || strings.HasPrefix(bare, "o3"):
		return KindOpenAIResponses, bare
	default:
		return KindOpenAICompletions, bare
	}
}

func kindFromKeyword(prefix string) (ProviderKind, bool) {
	switch strings.ToLower(prefix) {
	case "anthropic":
		return KindAnthropic, true
	case "openai-responses":
		return KindOpenAIResponses, true
	case "openai-completions", "openai":
		return KindOpenAICompletions, true
	case "google-generative-ai", "gemini", "google":
		return KindGoogleGenerativeAI, true
	case "stepfun":
		return KindStepFun, true
	default:
		return "", false
	}
}

// ResolveCompositeKind dispatches a meta/composite provider (one whose
// ProviderConfig carries a non-empty RouteTag) to the ProviderKind its route
// tag names, per spec.md 4.5.
func ResolveCompositeKind(tag common.RouteTag) (ProviderKind, error) {
	kind, ok := routeTagToKind[tag]
	if !ok {
		return "", fmt.Errorf("unknown route tag: %s", tag)
	}
	return kind, nil
}

// Registry builds a Client for each ProviderKind it is asked for, sharing
// one SecretManager and (for GeminiCloudCodeProvider) one session across
// calls.
type Registry struct {
	Secrets    secretmanager.SecretManager
	geminiCCA  *GeminiCloudCodeProvider
}

func NewRegistry(secrets secretmanager.SecretManager) *Registry {
	return &Registry{Secrets: secrets}
}

// ClientFor returns the Client implementation for kind. useGeminiOAuth
// selects the Cloud Code Assist OAuth variant over the public Gemini API
// when kind is KindGoogleGenerativeAI.
func (r *Registry) ClientFor(kind ProviderKind, useGeminiOAuth bool) (Client, error) {
	switch kind {
	case KindAnthropic:
		return NewAnthropicProvider(r.Secrets), nil
	case KindOpenAIResponses:
		return NewOpenAIResponsesProvider(r.Secrets), nil
	case KindOpenAICompletions:
		return NewOpenAIChatProvider("", "", r.Secrets), nil
	case KindStepFun:
		return NewStepFunProvider(r.Secrets), nil
	case KindGoogleGenerativeAI:
		if useGeminiOAuth {
			if r.geminiCCA == nil {
				r.geminiCCA = NewGeminiCloudCodeProvider(r.Secrets)
			}
			return r.geminiCCA, nil
		}
		return NewGeminiProvider(r.Secrets), nil
	default:
		return nil, fmt.Errorf("unsupported provider kind: %s", kind)
	}
}
