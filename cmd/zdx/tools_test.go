package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zdx/common"
	"zdx/toolrun"
)

func TestReadFileHandlerReturnsContents(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644))

	tctx := &toolrun.Context{WorkDir: dir}
	input, _ := json.Marshal(readFileInput{Path: "a.txt"})
	out := readFileHandler(context.Background(), "call_1", input, tctx)

	require.True(t, out.IsOK())
	var data string
	require.NoError(t, json.Unmarshal(out.Data, &data))
	assert.Equal(t, "hello", data)
}

func TestReadFileHandlerRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	tctx := &toolrun.Context{WorkDir: dir}
	input, _ := json.Marshal(readFileInput{Path: "../etc/passwd"})
	out := readFileHandler(context.Background(), "call_1", input, tctx)

	assert.False(t, out.IsOK())
	code, _, _, _ := out.ErrorInfo()
	assert.Equal(t, "invalid_path", code)
}

func TestReadFileHandlerRejectsAbsolutePath(t *testing.T) {
	dir := t.TempDir()
	tctx := &toolrun.Context{WorkDir: dir}
	input, _ := json.Marshal(readFileInput{Path: "/etc/passwd"})
	out := readFileHandler(context.Background(), "call_1", input, tctx)

	assert.False(t, out.IsOK())
}

func TestReadFileHandlerMissingFile(t *testing.T) {
	dir := t.TempDir()
	tctx := &toolrun.Context{WorkDir: dir}
	input, _ := json.Marshal(readFileInput{Path: "missing.txt"})
	out := readFileHandler(context.Background(), "call_1", input, tctx)

	assert.False(t, out.IsOK())
	code, _, _, _ := out.ErrorInfo()
	assert.Equal(t, "read_failed", code)
}

func newTestRegistry() *toolrun.Registry {
	reg := toolrun.NewRegistry()
	registerBuiltinTools(reg)
	return reg
}

// TestResolveEnabledToolsExplicitListWinsOutright verifies --tools
// overrides both --tool-set and any provider allowlist.
func TestResolveEnabledToolsExplicitListWinsOutright(t *testing.T) {
	reg := newTestRegistry()
	defs := resolveEnabledTools(reg, "read", "nonexistent-set", common.ProviderConfig{Tools: []string{"nothing"}})
	require.Len(t, defs, 1)
	assert.Equal(t, "read", defs[0].Name)
}

// TestResolveEnabledToolsNamedSet verifies a named --tool-set resolves
// when no explicit --tools list is given.
func TestResolveEnabledToolsNamedSet(t *testing.T) {
	reg := newTestRegistry()
	defs := resolveEnabledTools(reg, "", "readonly", common.ProviderConfig{})
	require.Len(t, defs, 1)
	assert.Equal(t, "read", defs[0].Name)
}

// TestResolveEnabledToolsFallsBackToProviderAllowlist verifies that
// with neither flag set, the provider's own tools allowlist governs.
func TestResolveEnabledToolsFallsBackToProviderAllowlist(t *testing.T) {
	reg := newTestRegistry()

	defs := resolveEnabledTools(reg, "", "", common.ProviderConfig{Tools: []string{"nonexistent"}})
	assert.Empty(t, defs)

	defs = resolveEnabledTools(reg, "", "", common.ProviderConfig{})
	require.Len(t, defs, 1)
	assert.Equal(t, "read", defs[0].Name)
}
