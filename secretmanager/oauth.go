package secretmanager

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// OAuth secret names under which a provider's OAuth credential blob is
// stored, resolved through SecretManager.GetSecret.
const (
	AnthropicOAuthSecretName = "ANTHROPIC_OAUTH"
	GeminiOAuthSecretName    = "GEMINI_OAUTH"
)

// OAuthCredentials is the external collaborator contract named in spec.md
// 1: "only the fetch-and-refresh-access-token contract is referenced".
// The acquisition flow that originally produced these (a browser-based
// authorization code exchange) is out of scope here.
type OAuthCredentials struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`

	// ProjectID and SessionID are only populated for Gemini Cloud Code
	// Assist credentials (spec.md 6.1's OAuth-mediated flavor).
	ProjectID string `json:"project_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// Expired reports whether the access token has expired or will within the
// given lookahead window.
func (c OAuthCredentials) Expired(lookahead time.Duration) bool {
	if c.ExpiresAt == 0 {
		return false
	}
	return time.Now().Add(lookahead).Unix() >= c.ExpiresAt
}

// TokenRefresher exchanges a refresh token for a new OAuthCredentials.
// Implementations live outside this module (per spec.md 1, only this
// contract is specified); a provider's request builder calls it lazily
// when FetchOAuthCredentials sees an expiring token.
type TokenRefresher interface {
	Refresh(refreshToken string) (*OAuthCredentials, error)
}

// refreshLookahead mirrors the teacher's "refresh proactively within 5
// minutes of expiry" window.
const refreshLookahead = 5 * time.Minute

// FetchOAuthCredentials loads stored OAuth credentials for secretName, and
// proactively refreshes + re-stores them if they are expiring soon. It
// returns (nil, nil) when OAuth isn't configured for this secret, so
// callers can fall back to a plain API key.
func FetchOAuthCredentials(sm SecretManager, secretName string, refresher TokenRefresher) (*OAuthCredentials, error) {
	raw, err := sm.GetSecret(secretName)
	if err != nil {
		return nil, nil //nolint:nilerr // unconfigured OAuth is not an error
	}

	var creds OAuthCredentials
	if err := json.Unmarshal([]byte(raw), &creds); err != nil {
		return nil, fmt.Errorf("failed to parse OAuth credentials for %s: %w", secretName, err)
	}
	if creds.AccessToken == "" {
		return nil, fmt.Errorf("OAuth credentials for %s missing access token", secretName)
	}

	if creds.Expired(refreshLookahead) && refresher != nil {
		log.Info().Str("secret", secretName).Msg("OAuth token expiring soon, refreshing proactively")
		refreshed, err := refresher.Refresh(creds.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("failed to refresh OAuth token for %s: %w", secretName, err)
		}
		if km, ok := sm.(interface {
			SetSecret(name, value string) error
		}); ok {
			encoded, mErr := json.Marshal(refreshed)
			if mErr == nil {
				if storeErr := km.SetSecret(secretName, string(encoded)); storeErr != nil {
					log.Warn().Err(storeErr).Str("secret", secretName).Msg("failed to store refreshed OAuth credentials")
				}
			}
		}
		return refreshed, nil
	}

	return &creds, nil
}
