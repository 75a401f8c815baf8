package secretmanager

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"

	"zdx/common"
)

// ErrSecretNotFound is returned when a secret is not found in any secret manager.
var ErrSecretNotFound = errors.New("secret not found")

// SecretManager is the external collaborator named in spec.md 1: this
// module only consumes the "fetch secret" contract, never the storage
// mechanism behind it.
type SecretManager interface {
	GetSecret(secretName string) (string, error)
	GetType() SecretManagerType
}

type SecretManagerType string

const (
	EnvSecretManagerType         SecretManagerType = "env"
	MockSecretManagerType        SecretManagerType = "mock"
	KeyringSecretManagerType     SecretManagerType = "keyring"
	LocalConfigSecretManagerType SecretManagerType = "local_config"
	CompositeSecretManagerType   SecretManagerType = "composite"
	InterceptingSecretManagerType SecretManagerType = "intercepting"
)

// EnvSecretManager looks a secret up as ZDX_<secretName>.
type EnvSecretManager struct{}

func (e EnvSecretManager) GetSecret(secretName string) (string, error) {
	envName := fmt.Sprintf("ZDX_%s", secretName)
	secret := os.Getenv(envName)
	if secret == "" {
		return "", fmt.Errorf("%w: %s not found in environment", ErrSecretNotFound, envName)
	}
	return secret, nil
}

func (e EnvSecretManager) GetType() SecretManagerType { return EnvSecretManagerType }

// KeyringSecretManager stores secrets (notably OAuth refresh tokens) in
// the OS credential store under the "zdx" service name.
type KeyringSecretManager struct{}

func (k KeyringSecretManager) GetSecret(secretName string) (string, error) {
	secret, err := keyring.Get("zdx", secretName)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("%w: %s not found in keyring", ErrSecretNotFound, secretName)
		}
		return "", fmt.Errorf("error retrieving %s from keyring: %w", secretName, err)
	}
	return secret, nil
}

func (k KeyringSecretManager) GetType() SecretManagerType { return KeyringSecretManagerType }

// SetSecret stores secretValue under secretName in the OS credential store.
func (k KeyringSecretManager) SetSecret(secretName, secretValue string) error {
	return keyring.Set("zdx", secretName, secretValue)
}

// LocalConfigSecretManager resolves a provider API key from the effective
// config's providers.<kind>.api_key entry.
type LocalConfigSecretManager struct {
	ConfigPath string
}

func (l LocalConfigSecretManager) GetType() SecretManagerType { return LocalConfigSecretManagerType }

func (l LocalConfigSecretManager) GetSecret(secretName string) (string, error) {
	cfg, err := common.Load(l.ConfigPath)
	if err != nil {
		return "", fmt.Errorf("error loading local config: %w", err)
	}

	if !strings.HasSuffix(secretName, "_API_KEY") {
		return "", fmt.Errorf("%w: %s not found in local config", ErrSecretNotFound, secretName)
	}
	kind := strings.ToLower(strings.TrimSuffix(secretName, "_API_KEY"))

	provider, ok := cfg.Providers[kind]
	if !ok {
		return "", fmt.Errorf("%w: no provider configured for %s", ErrSecretNotFound, kind)
	}
	key := provider.ResolveAPIKey(kind)
	if key == "" {
		return "", fmt.Errorf("%w: no api_key set for provider %s", ErrSecretNotFound, kind)
	}
	return key, nil
}

// CompositeSecretManager tries each manager in order, returning the first
// success.
type CompositeSecretManager struct {
	managers []SecretManager
}

func NewCompositeSecretManager(managers []SecretManager) *CompositeSecretManager {
	return &CompositeSecretManager{managers: managers}
}

func (c CompositeSecretManager) GetSecret(secretName string) (string, error) {
	var lastErr error
	for _, manager := range c.managers {
		secret, err := manager.GetSecret(secretName)
		if err == nil {
			return secret, nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return "", fmt.Errorf("secret %s not found in any secret manager: %w", secretName, lastErr)
	}
	return "", fmt.Errorf("no secret managers configured")
}

func (c CompositeSecretManager) GetType() SecretManagerType { return CompositeSecretManagerType }

func (c CompositeSecretManager) MarshalJSON() ([]byte, error) {
	managers := make([]SecretManagerContainer, len(c.managers))
	for i, manager := range c.managers {
		managers[i] = SecretManagerContainer{SecretManager: manager}
	}
	return json.Marshal(struct {
		Managers []SecretManagerContainer `json:"managers"`
	}{Managers: managers})
}

func (c *CompositeSecretManager) UnmarshalJSON(data []byte) error {
	var container struct {
		Managers []SecretManagerContainer `json:"managers"`
	}
	if err := json.Unmarshal(data, &container); err != nil {
		return err
	}
	c.managers = make([]SecretManager, len(container.Managers))
	for i, m := range container.Managers {
		c.managers[i] = m.SecretManager
	}
	return nil
}

// MockSecretManager is used in tests: returns a fake value for any
// *_API_KEY lookup.
type MockSecretManager struct{}

func (m MockSecretManager) GetSecret(secretName string) (string, error) {
	if strings.HasSuffix(secretName, "_API_KEY") {
		return "fake secret", nil
	}
	return "", fmt.Errorf("%w: %s not found in mock", ErrSecretNotFound, secretName)
}

func (m MockSecretManager) GetType() SecretManagerType { return MockSecretManagerType }

// SecretManagerContainer is a type-tagged JSON envelope so a
// CompositeSecretManager's members can round-trip through JSON.
type SecretManagerContainer struct {
	SecretManager
}

func (sc SecretManagerContainer) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    string
		Manager SecretManager
	}{
		Type:    string(sc.SecretManager.GetType()),
		Manager: sc.SecretManager,
	})
}

func (sc *SecretManagerContainer) UnmarshalJSON(data []byte) error {
	var v struct {
		Type    string
		Manager json.RawMessage
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}

	switch v.Type {
	case string(EnvSecretManagerType):
		var esm *EnvSecretManager
		if err := json.Unmarshal(v.Manager, &esm); err != nil {
			return err
		}
		sc.SecretManager = esm
	case string(MockSecretManagerType):
		var msm *MockSecretManager
		if err := json.Unmarshal(v.Manager, &msm); err != nil {
			return err
		}
		sc.SecretManager = msm
	case string(KeyringSecretManagerType):
		var ksm *KeyringSecretManager
		if err := json.Unmarshal(v.Manager, &ksm); err != nil {
			return err
		}
		sc.SecretManager = ksm
	case string(LocalConfigSecretManagerType):
		var lcm *LocalConfigSecretManager
		if err := json.Unmarshal(v.Manager, &lcm); err != nil {
			return err
		}
		sc.SecretManager = lcm
	case string(CompositeSecretManagerType):
		var csm *CompositeSecretManager
		if err := json.Unmarshal(v.Manager, &csm); err != nil {
			return err
		}
		sc.SecretManager = csm
	case string(InterceptingSecretManagerType):
		var ism *InterceptingSecretManager
		if err := json.Unmarshal(v.Manager, &ism); err != nil {
			return err
		}
		sc.SecretManager = ism
	default:
		return fmt.Errorf("unknown SecretManager type: %s", v.Type)
	}

	return nil
}
