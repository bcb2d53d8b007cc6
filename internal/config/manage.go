package config

import (
	"fmt"
	"strconv"
)

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
	Secret bool
}

// ShowAll returns all config key/value pairs from the current config.
// Secret values are masked.
func ShowAll(cfg Config) []KeyInfo {
	var result []KeyInfo
	for _, s := range specs {
		v := fmt.Sprintf("%v", s.extract(cfg))
		if s.secret {
			v = mask(v)
		}
		result = append(result, KeyInfo{
			Key:    s.key,
			EnvVar: s.env,
			Value:  v,
			Secret: s.secret,
		})
	}
	return result
}

func mask(v string) string {
	if v == "" {
		return "(unset)"
	}
	if len(v) <= 4 {
		return "****"
	}
	return "****" + v[len(v)-4:]
}

// SetKey writes a config key to the platform backend. Secrets go to the
// platform secret store instead.
func SetKey(key, value string) error {
	return setKeyWith(newPlatformBackend(), platformSecrets{}, key, value)
}

// UnsetKey removes a stored value so the default or env var applies again.
func UnsetKey(key string) error {
	return unsetKeyWith(newPlatformBackend(), platformSecrets{}, key)
}

func lookupSpec(key string) (keySpec, error) {
	for _, s := range specs {
		if s.key == key {
			return s, nil
		}
	}
	return keySpec{}, fmt.Errorf("unknown config key: %q", key)
}

func setKeyWith(b Backend, secrets secretStore, key, value string) error {
	s, err := lookupSpec(key)
	if err != nil {
		return err
	}
	if s.secret {
		if err := secrets.Set(secretService, s.account(), value); err != nil {
			return fmt.Errorf("storing secret %s: %w", key, err)
		}
		return nil
	}
	switch s.typ {
	case kInt:
		i, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %w", key, err)
		}
		return b.SetInt(key, i)
	default:
		return b.SetString(key, value)
	}
}

func unsetKeyWith(b Backend, secrets secretStore, key string) error {
	s, err := lookupSpec(key)
	if err != nil {
		return err
	}
	if s.secret {
		if err := secrets.Delete(secretService, s.account()); err != nil {
			return fmt.Errorf("removing secret %s: %w", key, err)
		}
		return nil
	}
	return b.Delete(key)
}

// ValidKeys returns the list of valid config key names.
func ValidKeys() []string {
	keys := make([]string, 0, len(specs))
	for _, s := range specs {
		keys = append(keys, s.key)
	}
	return keys
}
