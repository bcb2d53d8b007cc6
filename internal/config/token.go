package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// EnsureServiceToken makes sure cfg carries a bearer token for the HTTP API.
// A missing token is generated and persisted to the secret store.
func EnsureServiceToken(cfg *Config) error {
	return ensureServiceTokenWith(cfg, keychainSet)
}

func ensureServiceTokenWith(cfg *Config, setSecret func(service, account, value string) error) error {
	if cfg.Server.ServiceToken != "" {
		return nil
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Errorf("generating service token: %w", err)
	}
	token := hex.EncodeToString(buf)
	if err := setSecret(secretService, "server_service_token", token); err != nil {
		return fmt.Errorf("storing service token: %w", err)
	}
	cfg.Server.ServiceToken = token
	return nil
}
