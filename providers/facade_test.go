package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zdx/common"
)

func TestInferKindBySubstring(t *testing.T) {
	cases := []struct {
		model string
		want  ProviderKind
	}{
		{"claude-opus-4-6", KindAnthropic},
		{"gemini-2.5-pro", KindGoogleGenerativeAI},
		{"step-2-16k", KindStepFun},
		{"gpt-5", KindOpenAIResponses},
		{"o3-mini", KindOpenAIResponses},
		{"deepseek-chat", KindOpenAICompletions},
	}
	for _, c := range cases {
		kind, bare := InferKind(c.model)
		assert.Equal(t, c.want, kind, c.model)
		assert.Equal(t, c.model, bare)
	}
}

func TestInferKindByRoutePrefix(t *testing.T) {
	kind, bare := InferKind("anthropic:claude-opus-4-6")
	assert.Equal(t, KindAnthropic, kind)
	assert.Equal(t, "claude-opus-4-6", bare)

	kind, bare = InferKind("openai-responses:gpt-5")
	assert.Equal(t, KindOpenAIResponses, kind)
	assert.Equal(t, "gpt-5", bare)
}

func TestResolveCompositeKind(t *testing.T) {
	kind, err := ResolveCompositeKind(common.RouteAnthropicMessages)
	require.NoError(t, err)
	assert.Equal(t, KindAnthropic, kind)

	_, err = ResolveCompositeKind(common.RouteTag("unknown-route"))
	assert.Error(t, err)
}
