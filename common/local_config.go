package common

import (
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the effective runtime configuration the core consumes,
// matching spec.md 6.4. Loading/editing the surrounding file is out of
// scope; this struct is the resolved result after config-file > env >
// built-in-default layering.
type Config struct {
	Model           string                    `koanf:"model" json:"model"`
	MaxTokens       int                       `koanf:"max_tokens" json:"maxTokens"`
	ToolTimeoutSecs int                       `koanf:"tool_timeout_secs" json:"toolTimeoutSecs"`
	ThinkingLevel   ThinkingLevel             `koanf:"thinking_level" json:"thinkingLevel"`
	SystemPrompt    string                    `koanf:"system_prompt" json:"systemPrompt"`
	SystemPromptFile string                   `koanf:"system_prompt_file" json:"systemPromptFile"`
	Providers       map[string]ProviderConfig `koanf:"providers" json:"providers"`
	ThreadCache     ThreadCacheConfig         `koanf:"thread_cache" json:"threadCache"`
	ThreadArchive   ThreadArchiveConfig       `koanf:"thread_archive" json:"threadArchive"`
}

// ThreadCacheConfig controls the optional Redis-backed thread index
// cache layered over the authoritative JSONL files.
type ThreadCacheConfig struct {
	Enabled bool   `koanf:"enabled" json:"enabled"`
	Addr    string `koanf:"addr" json:"addr"`
}

// ThreadArchiveConfig controls the optional S3 upload of a completed
// thread's JSONL file, off by default.
type ThreadArchiveConfig struct {
	Enabled bool   `koanf:"enabled" json:"enabled"`
	Bucket  string `koanf:"bucket" json:"bucket"`
	Prefix  string `koanf:"prefix" json:"prefix"`
}

// Default returns the built-in defaults, the lowest-precedence layer.
func Default() Config {
	return Config{
		Model:           "anthropic:claude-sonnet-4-5",
		MaxTokens:       0,
		ToolTimeoutSecs: 120,
		ThinkingLevel:   ThinkingOff,
		Providers:       map[string]ProviderConfig{},
		ThreadCache:     ThreadCacheConfig{Addr: "localhost:6379"},
	}
}

// Validate checks structural invariants (route tags, thinking level).
func (c Config) Validate() error {
	if _, err := ParseThinkingLevel(string(c.ThinkingLevel)); err != nil {
		return err
	}
	for kind, p := range c.Providers {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("invalid provider config %q: %w", kind, err)
		}
	}
	return nil
}

// EffectiveSystemPrompt resolves system_prompt vs system_prompt_file,
// where the file, when set, takes precedence; an unreadable file is
// returned as an error rather than falling back to system_prompt.
func (c Config) EffectiveSystemPrompt() (string, error) {
	if c.SystemPromptFile != "" {
		data, err := os.ReadFile(c.SystemPromptFile)
		if err != nil {
			return "", fmt.Errorf("reading system_prompt_file: %w", err)
		}
		return string(data), nil
	}
	return c.SystemPrompt, nil
}

// Load resolves the config-file > environment-variable > built-in-default
// chain described in spec.md 6.4. configPath may be empty, in which case
// only env and defaults apply.
func Load(configPath string) (Config, error) {
	cfg := Default()

	k := koanf.New(".")
	if err := k.Load(structProvider(cfg), nil); err != nil {
		return Config{}, fmt.Errorf("loading defaults: %w", err)
	}

	applyEnvOverrides(k)

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			parser := GetParserForExtension(configPath)
			if parser == nil {
				parser = yaml.Parser()
			}
			if err := k.Load(file.Provider(configPath), parser); err != nil {
				return Config{}, fmt.Errorf("loading config file %s: %w", configPath, err)
			}
		}
	}

	var out Config
	if err := k.Unmarshal("", &out); err != nil {
		return Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}
	if out.Providers == nil {
		out.Providers = map[string]ProviderConfig{}
	}
	for kind, p := range out.Providers {
		p.Kind = kind
		out.Providers[kind] = p.Normalize()
	}
	if err := out.Validate(); err != nil {
		return Config{}, err
	}
	return out, nil
}

// applyEnvOverrides layers ZDX_MODEL / ZDX_THINKING_LEVEL /
// ZDX_SYSTEM_PROMPT on top of the built-in defaults. Load applies it
// before the config file, matching the config-file > env > default
// precedence (a value set in the file wins over the env var).
func applyEnvOverrides(k *koanf.Koanf) {
	if v := os.Getenv("ZDX_MODEL"); v != "" {
		_ = k.Set("model", v)
	}
	if v := os.Getenv("ZDX_THINKING_LEVEL"); v != "" {
		_ = k.Set("thinking_level", v)
	}
	if v := os.Getenv("ZDX_SYSTEM_PROMPT"); v != "" {
		_ = k.Set("system_prompt", v)
	}
}

// structProvider adapts a Config value into a koanf.Provider so defaults
// can be loaded through the same Unmarshal path as file/env layers.
func structProvider(cfg Config) koanf.Provider {
	return &staticProvider{cfg}
}

type staticProvider struct{ cfg Config }

func (s *staticProvider) ReadBytes() ([]byte, error) { return nil, fmt.Errorf("not supported") }

func (s *staticProvider) Read() (map[string]any, error) {
	return map[string]any{
		"model":             s.cfg.Model,
		"max_tokens":        s.cfg.MaxTokens,
		"tool_timeout_secs": s.cfg.ToolTimeoutSecs,
		"thinking_level":    string(s.cfg.ThinkingLevel),
		"system_prompt":     s.cfg.SystemPrompt,
		"system_prompt_file": s.cfg.SystemPromptFile,
		"thread_cache": map[string]any{
			"enabled": s.cfg.ThreadCache.Enabled,
			"addr":    s.cfg.ThreadCache.Addr,
		},
		"thread_archive": map[string]any{
			"enabled": s.cfg.ThreadArchive.Enabled,
			"bucket":  s.cfg.ThreadArchive.Bucket,
			"prefix":  s.cfg.ThreadArchive.Prefix,
		},
	}, nil
}
