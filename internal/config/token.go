package config

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	secretService = "lectern"
	tokenAccount  = "api_token"
)

// GetAPIToken returns the bearer token the local daemon and CLI share.
// The token is generated once and persisted in the platform secret
// store: macOS Keychain on darwin, a mode-0600 secrets file elsewhere.
func GetAPIToken() (string, error) {
	out, err := keychainGet(secretService, tokenAccount)
	if err == nil {
		if token := strings.TrimSpace(string(out)); token != "" {
			return token, nil
		}
	}

	token := uuid.NewString()
	if err := keychainSet(secretService, tokenAccount, token); err != nil {
		return "", fmt.Errorf("persisting api token: %w", err)
	}
	return token, nil
}
