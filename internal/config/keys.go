package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

// account is the secret store account name for a secret key.
func (s keySpec) account() string {
	return strings.ReplaceAll(s.key, ".", "_")
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "CASETRAIL_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.service_token", typ: kString, env: "CASETRAIL_SERVICE_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.ServiceToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.ServiceToken },
	},
	{
		key: "gateway.base_url", typ: kString, env: "CASETRAIL_GATEWAY_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Gateway.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Gateway.BaseURL },
	},
	{
		key: "gateway.api_key", typ: kString, env: "CASETRAIL_GATEWAY_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Gateway.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Gateway.APIKey },
	},
	{
		key: "gateway.model", typ: kString, env: "CASETRAIL_GATEWAY_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Gateway.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Gateway.Model },
	},
	{
		key: "gateway.timeout", typ: kString, env: "CASETRAIL_GATEWAY_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Gateway.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Gateway.Timeout },
	},
	{
		key: "storage.data_dir", typ: kString, env: "CASETRAIL_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.bucket", typ: kString, env: "CASETRAIL_STORAGE_BUCKET",
		apply:   func(cfg *Config, v any) { cfg.Storage.Bucket = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Bucket },
	},
	{
		key: "storage.backend", typ: kString, env: "CASETRAIL_STORAGE_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Storage.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Backend },
	},
	{
		key: "storage.s3_endpoint", typ: kString, env: "CASETRAIL_STORAGE_S3_ENDPOINT",
		apply:   func(cfg *Config, v any) { cfg.Storage.S3Endpoint = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.S3Endpoint },
	},
	{
		key: "storage.s3_region", typ: kString, env: "CASETRAIL_STORAGE_S3_REGION",
		apply:   func(cfg *Config, v any) { cfg.Storage.S3Region = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.S3Region },
	},
	{
		key: "storage.s3_access_key", typ: kString, env: "CASETRAIL_STORAGE_S3_ACCESS_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Storage.S3AccessKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.S3AccessKey },
	},
	{
		key: "storage.s3_secret_key", typ: kString, env: "CASETRAIL_STORAGE_S3_SECRET_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Storage.S3SecretKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.S3SecretKey },
	},
	{
		key: "extraction.max_text_chars", typ: kInt, env: "CASETRAIL_EXTRACTION_MAX_TEXT_CHARS",
		apply:   func(cfg *Config, v any) { cfg.Extraction.MaxTextChars = v.(int) },
		extract: func(cfg Config) any { return cfg.Extraction.MaxTextChars },
	},
	{
		key: "log.level", typ: kString, env: "CASETRAIL_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
