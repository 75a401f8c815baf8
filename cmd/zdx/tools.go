package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"

	"zdx/common"
	"zdx/toolrun"
)

// readFileInput is the input shape of the built-in "read" tool: the
// minimal tool implementation needed to make the CLI usable end to
// end, not a general-purpose tool suite (individual tool
// implementations are an external collaborator per spec.md 1).
type readFileInput struct {
	Path string `json:"path" jsonschema_description:"Path to the file, relative to the working directory"`
}

// validateToolPath rejects absolute paths and any ".." traversal
// segment, then resolves the file under workDir.
func validateToolPath(workDir, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is empty")
	}
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("absolute paths are not allowed: %s", path)
	}
	cleaned := filepath.Clean(path)
	for _, part := range strings.Split(cleaned, string(filepath.Separator)) {
		if part == ".." {
			return "", fmt.Errorf("path traversal with '..' is not allowed: %s", path)
		}
	}

	absWorkDir, err := filepath.Abs(workDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve working directory: %w", err)
	}
	resolved := filepath.Join(absWorkDir, cleaned)
	if !strings.HasPrefix(resolved, absWorkDir+string(filepath.Separator)) && resolved != absWorkDir {
		return "", fmt.Errorf("resolved path %s is not under working directory %s", resolved, absWorkDir)
	}
	return resolved, nil
}

func readFileHandler(_ context.Context, _ string, input json.RawMessage, tctx *toolrun.Context) toolrun.ToolOutput {
	var in readFileInput
	if err := json.Unmarshal(input, &in); err != nil {
		return toolrun.Failure("invalid_input", "could not parse tool input", err.Error())
	}

	resolved, err := validateToolPath(tctx.WorkDir, in.Path)
	if err != nil {
		return toolrun.Failure("invalid_path", err.Error(), "")
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return toolrun.Failure("read_failed", fmt.Sprintf("could not read %s", in.Path), err.Error())
	}

	encoded, err := json.Marshal(string(data))
	if err != nil {
		return toolrun.Failure("internal", "could not encode file contents", err.Error())
	}
	return toolrun.Success(encoded)
}

func registerBuiltinTools(reg *toolrun.Registry) {
	reg.Register(common.ToolDefinition{
		Name:           "read",
		Description:    "Read the full contents of a text file relative to the working directory.",
		InputSchema:    (&jsonschema.Reflector{DoNotReference: true}).Reflect(&readFileInput{}),
		ParametersType: reflect.TypeOf(readFileInput{}),
	}, readFileHandler)

	reg.RegisterSet("readonly", []string{"read"})
	reg.RegisterSet("coding", []string{"read"})
}
