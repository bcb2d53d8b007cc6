package config

import (
	"fmt"
	"strings"
	"time"
)

const secretService = "casetrail"

type Config struct {
	Server     ServerConfig
	Gateway    GatewayConfig
	Storage    StorageConfig
	Extraction ExtractionConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port         int
	ServiceToken string
}

type GatewayConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout string
}

// TimeoutDuration parses Timeout, falling back to two minutes.
func (g GatewayConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(g.Timeout)
	if err != nil || d <= 0 {
		return 120 * time.Second
	}
	return d
}

type StorageConfig struct {
	DataDir     string
	Bucket      string
	Backend     string // "fs" or "s3"
	S3Endpoint  string
	S3Region    string
	S3AccessKey string
	S3SecretKey string
}

type ExtractionConfig struct {
	MaxTextChars int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Gateway: GatewayConfig{
			BaseURL: "https://openrouter.ai/api/v1",
			Model:   "google/gemini-2.5-flash",
			Timeout: "120s",
		},
		Storage: StorageConfig{
			DataDir:  defaultDataDir(),
			Bucket:   "evidence",
			Backend:  "fs",
			S3Region: "us-east-1",
		},
		Extraction: ExtractionConfig{
			MaxTextChars: 500_000,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.casetrail.app) and
// secrets fall back to macOS Keychain.
// On Linux the backend is a YAML file at $XDG_CONFIG_HOME/casetrail/config.yaml
// and secrets come from environment variables or secrets.yaml in the data dir.
//
// Environment variables (CASETRAIL_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts secret store access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b Backend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	applySecrets(&cfg, kc)

	if cfg.Gateway.APIKey == "" {
		msg := "missing required config: AI gateway API key. " +
			"Set it via environment variable CASETRAIL_GATEWAY_API_KEY" +
			apiKeyHint()
		return Config{}, fmt.Errorf("%s", msg)
	}
	if b := cfg.Storage.Backend; b != "fs" && b != "s3" {
		return Config{}, fmt.Errorf("invalid storage.backend %q: want fs or s3", b)
	}
	if cfg.Storage.Bucket == "" {
		return Config{}, fmt.Errorf("missing required config: storage.bucket")
	}

	return cfg, nil
}

// applySecrets fills still-empty secrets from the platform secret store.
func applySecrets(cfg *Config, kc keychain) {
	for _, s := range specs {
		if !s.secret {
			continue
		}
		if cur, _ := s.extract(*cfg).(string); cur != "" {
			continue
		}
		if v, err := kc.Get(secretService, s.account()); err == nil && v != "" {
			s.apply(cfg, v)
		}
	}
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
