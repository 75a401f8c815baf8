package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/adrg/xdg"
)

// GetHome returns the root directory under which threads, config, and state
// are stored. Can be overridden by setting ZDX_HOME, otherwise falls back to
// the XDG config home joined with the application name.
func GetHome() (string, error) {
	if home := os.Getenv("ZDX_HOME"); home != "" {
		if err := os.MkdirAll(home, 0755); err != nil {
			return "", fmt.Errorf("failed to create ZDX_HOME directory: %w", err)
		}
		return home, nil
	}

	home := filepath.Join(xdg.ConfigHome, "zdx")
	if err := os.MkdirAll(home, 0755); err != nil {
		return "", fmt.Errorf("failed to create zdx home directory: %w", err)
	}
	return home, nil
}

// GetThreadsDir returns the directory threads' JSONL logs are stored under.
func GetThreadsDir() (string, error) {
	home, err := GetHome()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, "threads")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create threads directory: %w", err)
	}
	return dir, nil
}

// GetStateHome returns a directory for storing state data (logs, caches).
// Can be overridden by setting ZDX_STATE_HOME.
func GetStateHome() (string, error) {
	if dir := os.Getenv("ZDX_STATE_HOME"); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create ZDX_STATE_HOME directory: %w", err)
		}
		return dir, nil
	}

	dir := filepath.Join(xdg.StateHome, "zdx")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create zdx state directory: %w", err)
	}
	return dir, nil
}

// GetNatsServerHost returns the host the optional event-bus NATS
// publisher connects to. Can be overridden by setting ZDX_NATS_HOST.
func GetNatsServerHost() string {
	if host := os.Getenv("ZDX_NATS_HOST"); host != "" {
		return host
	}
	return "127.0.0.1"
}

// GetNatsServerPort returns the port the optional event-bus NATS
// publisher connects to. Can be overridden by setting ZDX_NATS_PORT.
func GetNatsServerPort() int {
	if port := os.Getenv("ZDX_NATS_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil {
			return n
		}
	}
	return 4222
}
