package toolrun

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zdx/common"
)

func echoHandler(ctx context.Context, id string, input json.RawMessage, tctx *Context) ToolOutput {
	return Success(input)
}

func TestRegistryExecuteKnownTool(t *testing.T) {
	reg := NewRegistry()
	reg.Register(common.ToolDefinition{Name: "echo", Description: "echoes input"}, echoHandler)

	tctx := &Context{EnabledTools: map[string]struct{}{"echo": {}}}
	out := reg.Execute(context.Background(), "echo", "call_1", json.RawMessage(`{"x":1}`), tctx)
	require.True(t, out.IsOK())
	assert.JSONEq(t, `{"x":1}`, string(out.Data))
}

func TestRegistryExecuteUnknownTool(t *testing.T) {
	reg := NewRegistry()
	tctx := &Context{EnabledTools: map[string]struct{}{}}
	out := reg.Execute(context.Background(), "missing", "call_1", nil, tctx)
	assert.False(t, out.IsOK())
	code, _, _, ok := out.ErrorInfo()
	require.True(t, ok)
	assert.Equal(t, "unknown_tool", code)
}

func TestRegistryExecuteDisallowedTool(t *testing.T) {
	reg := NewRegistry()
	reg.Register(common.ToolDefinition{Name: "echo"}, echoHandler)

	tctx := &Context{EnabledTools: map[string]struct{}{"other": {}}}
	out := reg.Execute(context.Background(), "echo", "call_1", nil, tctx)
	assert.False(t, out.IsOK())
	code, _, _, _ := out.ErrorInfo()
	assert.Equal(t, "unknown_tool", code)
}

func TestRegistryDefinitionsPreservesRegistrationOrder(t *testing.T) {
	reg := NewRegistry()
	reg.Register(common.ToolDefinition{Name: "b"}, echoHandler)
	reg.Register(common.ToolDefinition{Name: "a"}, echoHandler)

	defs := reg.Definitions(map[string]struct{}{"a": {}, "b": {}})
	require.Len(t, defs, 2)
	assert.Equal(t, "b", defs[0].Name)
	assert.Equal(t, "a", defs[1].Name)
}

func TestRegistryNamesReturnsAllRegisteredTools(t *testing.T) {
	reg := NewRegistry()
	reg.Register(common.ToolDefinition{Name: "b"}, echoHandler)
	reg.Register(common.ToolDefinition{Name: "a"}, echoHandler)

	assert.Equal(t, []string{"b", "a"}, reg.Names())
}

func TestRegistryToolsFromNamesNormalizesAndSkipsUnknown(t *testing.T) {
	reg := NewRegistry()
	reg.Register(common.ToolDefinition{Name: "read"}, echoHandler)
	reg.Register(common.ToolDefinition{Name: "write"}, echoHandler)

	defs := reg.ToolsFromNames([]string{" READ ", "missing", "", "Write"})
	require.Len(t, defs, 2)
	assert.Equal(t, "read", defs[0].Name)
	assert.Equal(t, "write", defs[1].Name)
}

func TestRegistryToolsForSetResolvesRegisteredSet(t *testing.T) {
	reg := NewRegistry()
	reg.Register(common.ToolDefinition{Name: "read"}, echoHandler)
	reg.Register(common.ToolDefinition{Name: "write"}, echoHandler)
	reg.RegisterSet("readonly", []string{"read"})

	defs := reg.ToolsForSet("readonly")
	require.Len(t, defs, 1)
	assert.Equal(t, "read", defs[0].Name)

	assert.Empty(t, reg.ToolsForSet("nonexistent-set"))
}

func TestRegistryToolsForProviderEmptyAllowlistReturnsEverything(t *testing.T) {
	reg := NewRegistry()
	reg.Register(common.ToolDefinition{Name: "read"}, echoHandler)
	reg.Register(common.ToolDefinition{Name: "write"}, echoHandler)

	defs := reg.ToolsForProvider(common.ProviderConfig{})
	require.Len(t, defs, 2)
}

func TestRegistryToolsForProviderIntersectsAllowlist(t *testing.T) {
	reg := NewRegistry()
	reg.Register(common.ToolDefinition{Name: "read"}, echoHandler)
	reg.Register(common.ToolDefinition{Name: "write"}, echoHandler)

	defs := reg.ToolsForProvider(common.ProviderConfig{Tools: []string{" Read ", ""}})
	require.Len(t, defs, 1)
	assert.Equal(t, "read", defs[0].Name)
}
