package toolrun

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"zdx/common"
)

// Context carries everything a Handler needs to act: the working
// directory the tool is rooted at, and the set of tool names the
// current request actually allows (a handler that isn't in the set is
// refused before it ever runs, mirroring a provider-side tool
// allowlist enforced again on our side of the wire).
type Context struct {
	WorkDir      string
	EnabledTools map[string]struct{}
}

// Handler executes one tool call and returns its envelope. It must
// never panic; a handler that can fail returns a Failure output, as
// there is no Go error return (Execute likewise reports a tool that is
// not found or not enabled as an "unknown_tool" Failure output).
type Handler func(ctx context.Context, id string, input json.RawMessage, tctx *Context) ToolOutput

// Registry resolves a tool name to its definition and handler.
type Registry struct {
	defs     map[string]common.ToolDefinition
	handlers map[string]Handler
	order    []string
	sets     map[common.ToolSet][]string
}

func NewRegistry() *Registry {
	return &Registry{
		defs:     make(map[string]common.ToolDefinition),
		handlers: make(map[string]Handler),
		sets:     make(map[common.ToolSet][]string),
	}
}

// Register adds (or replaces) a tool definition and its handler.
func (r *Registry) Register(def common.ToolDefinition, handler Handler) {
	if _, exists := r.defs[def.Name]; !exists {
		r.order = append(r.order, def.Name)
	}
	r.defs[def.Name] = def
	r.handlers[def.Name] = handler
}

// Names returns every registered tool name in registration order,
// independent of any particular request's enabled set.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Definitions returns the tool definitions for a given set of enabled
// names, in registration order. Names absent from the registry are
// silently skipped; an unknown name in a tool set is a config error
// the caller should have already validated.
func (r *Registry) Definitions(enabled map[string]struct{}) []common.ToolDefinition {
	out := make([]common.ToolDefinition, 0, len(enabled))
	for _, name := range r.order {
		if _, ok := enabled[name]; !ok {
			continue
		}
		out = append(out, r.defs[name])
	}
	return out
}

// RegisterSet names set as a curated collection of tool names, resolved
// later by ToolsForSet (spec.md 6.2's tools_for_set).
func (r *Registry) RegisterSet(set common.ToolSet, names []string) {
	r.sets[set] = names
}

// ToolsFromNames resolves an explicit list of tool names to their
// definitions, in the order given (spec.md 6.2's tools_from_names).
// Names are matched case-insensitively and whitespace-trimmed, same as
// ProviderToolAllowlist; a name absent from the registry is silently
// skipped.
func (r *Registry) ToolsFromNames(names []string) []common.ToolDefinition {
	out := make([]common.ToolDefinition, 0, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if def, ok := r.defs[name]; ok {
			out = append(out, def)
		}
	}
	return out
}

// ToolsForSet resolves a named curated tool set to its definitions
// (spec.md 6.2's tools_for_set). An unregistered set resolves to no
// tools, same as an unknown name in ToolsFromNames.
func (r *Registry) ToolsForSet(set common.ToolSet) []common.ToolDefinition {
	return r.ToolsFromNames(r.sets[set])
}

// ToolsForProvider intersects every registered tool with cfg's
// allowlist (spec.md 6.2's tools_for_provider): an empty allowlist
// means no restriction, so every registered tool is returned; a
// non-empty allowlist is normalized via ProviderToolAllowlist
// (case-insensitive, whitespace-trimmed, empty entries ignored) before
// intersecting, in registry registration order.
func (r *Registry) ToolsForProvider(cfg common.ProviderConfig) []common.ToolDefinition {
	allow := common.ProviderToolAllowlist(cfg.Tools)
	out := make([]common.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		if len(allow) > 0 {
			if _, ok := allow[name]; !ok {
				continue
			}
		}
		out = append(out, r.defs[name])
	}
	return out
}

// Execute runs a single tool call by name. A name that isn't registered,
// or isn't in the request's enabled set, is reported as a Failure
// output with code "unknown_tool" rather than a Go error, so it can
// flow straight back to the model like any other tool failure.
func (r *Registry) Execute(ctx context.Context, name, id string, input json.RawMessage, tctx *Context) ToolOutput {
	if tctx != nil && tctx.EnabledTools != nil {
		if _, ok := tctx.EnabledTools[name]; !ok {
			return Failure("unknown_tool", fmt.Sprintf("tool %q is not enabled for this request", name), "")
		}
	}
	handler, ok := r.handlers[name]
	if !ok {
		return Failure("unknown_tool", fmt.Sprintf("no such tool: %q", name), "")
	}
	return handler(ctx, id, input, tctx)
}
