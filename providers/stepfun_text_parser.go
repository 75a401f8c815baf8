package providers

import (
	"encoding/json"
	"regexp"
	"strings"
)

// stepfunToolCall is one parsed <tool_call><function=NAME>...</function></tool_call>
// fragment from StepFun's text-embedded tool-call format.
type stepfunToolCall struct {
	Name      string
	Arguments map[string]any
}

var (
	stepfunFunctionRe  = regexp.MustCompile(`(?s)<function=([^>]+)>(.*?)</function>`)
	stepfunParameterRe = regexp.MustCompile(`(?s)<parameter=([^>]+)>\s*(.*?)\s*</parameter>`)
)

// hasCompleteToolCall reports whether buf contains at least one fully closed
// <tool_call>...</tool_call> fragment.
func hasCompleteToolCall(buf string) bool {
	start := strings.Index(buf, "<tool_call")
	if start < 0 {
		return false
	}
	return strings.Contains(buf[start:], "</tool_call>")
}

// parseToolCalls extracts every complete <tool_call> fragment from the
// front of buf, returning the parsed calls and whatever text remains after
// the last complete fragment (which may itself start a new, as-yet
// incomplete, tool call).
func parseToolCalls(buf string) ([]stepfunToolCall, string) {
	var calls []stepfunToolCall
	remaining := buf

	for {
		start := strings.Index(remaining, "<tool_call")
		if start < 0 {
			break
		}
		end := strings.Index(remaining[start:], "</tool_call>")
		if end < 0 {
			break
		}
		end += start + len("</tool_call>")
		fragment := remaining[start:end]

		m := stepfunFunctionRe.FindStringSubmatch(fragment)
		if m == nil {
			break
		}
		name := strings.TrimSpace(m[1])
		args := map[string]any{}
		for _, pm := range stepfunParameterRe.FindAllStringSubmatch(m[2], -1) {
			key := strings.TrimSpace(pm[1])
			args[key] = strings.TrimSpace(pm[2])
		}
		calls = append(calls, stepfunToolCall{Name: name, Arguments: args})
		remaining = remaining[end:]
	}

	return calls, remaining
}

var partialToolMarkerPrefixes = []string{
	"<t", "<to", "<too", "<tool", "<tool_", "<tool_c", "<tool_ca", "<tool_cal", "<tool_call",
	"<tool_call ", "<tool_call\t", "<tool_call\n",
	"<f", "<fu", "<fun", "<func", "<funct", "<functi", "<functio", "<function",
	"<function ", "<function\t", "<function\n", "<function=",
}

// endsWithPartialToolMarker reports whether content's tail could grow into a
// tool-call marker with more streamed bytes, so that text ending in a
// partial tag is held back rather than flushed prematurely.
func endsWithPartialToolMarker(content string) bool {
	if strings.HasSuffix(content, "<") {
		return true
	}
	for _, prefix := range partialToolMarkerPrefixes {
		if strings.HasSuffix(content, prefix) {
			return true
		}
	}
	return false
}

// parseThinking splits a reasoning delta at a "</think>" sentinel, if
// present. complete reports whether the sentinel was found in this delta;
// before is the reasoning text up to (not including) the sentinel, and
// after is any trailing text that bled past the sentinel into this delta.
func parseThinking(delta string) (before string, complete bool, after string) {
	if idx := strings.Index(delta, "</think>"); idx >= 0 {
		return delta[:idx], true, delta[idx+len("</think>"):]
	}
	return delta, false, ""
}

// stripThinkStart removes a leading "<think>" opening tag, if present.
func stripThinkStart(s string) string {
	return strings.TrimPrefix(s, "<think>")
}

// toolCallArgumentsJSON renders a parsed call's arguments as JSON, falling
// back to "{}" on any marshal failure so the stream never stalls.
func toolCallArgumentsJSON(args map[string]any) string {
	data, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(data)
}
