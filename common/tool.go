package common

import (
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
)

// ToolDefinition describes one invocable tool: its unique name, a
// model-facing description, and its input shape.
type ToolDefinition struct {
	Name           string             `json:"name"`
	Description    string             `json:"description"`
	InputSchema    *jsonschema.Schema `json:"inputSchema"`
	ParametersType reflect.Type       `json:"-"`
}

// ToolSet names a curated collection of tools the registry can resolve by
// name, e.g. "coding", "readonly".
type ToolSet string

// ToolChoiceType selects how the model should be nudged toward tool use.
type ToolChoiceType string

const (
	// ToolChoiceAuto lets the model decide whether to use a tool.
	ToolChoiceAuto ToolChoiceType = "auto"
	// ToolChoiceNone means no tool should be used for this turn.
	ToolChoiceNone ToolChoiceType = "none"
	// ToolChoiceTool forces use of one specific named tool.
	ToolChoiceTool ToolChoiceType = "tool"
	// ToolChoiceRequired forces use of any one of the offered tools.
	ToolChoiceRequired ToolChoiceType = "required"
)

// ToolChoice is the outbound tool-selection directive.
type ToolChoice struct {
	Type ToolChoiceType `json:"type"`
	Name string         `json:"name,omitempty"`
}

// ProviderToolAllowlist normalizes a raw list of allowed tool names:
// trimmed, lower-cased, empty entries dropped.
func ProviderToolAllowlist(raw []string) map[string]struct{} {
	out := make(map[string]struct{}, len(raw))
	for _, name := range raw {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		out[name] = struct{}{}
	}
	return out
}
