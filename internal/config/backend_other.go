//go:build !darwin

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "casetrail-data"
		}
		dir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dir, "casetrail")
}

func apiKeyHint() string {
	return " or `casetrail config set gateway.api_key <key>` (stored in secrets.yaml under the data dir)"
}

// fileBackend keeps settings in $XDG_CONFIG_HOME/casetrail/config.yaml as a
// flat mapping of dotted keys to scalars:
//
//	server.port: 4100
//	storage.bucket: evidence
type fileBackend struct {
	path   string
	values map[string]string
}

func newPlatformBackend() Backend {
	return newFileBackend(configFilePath())
}

// newFileBackend reads path once. An unreadable file is reported and
// treated as empty so defaults and env vars still apply.
func newFileBackend(path string) *fileBackend {
	b := &fileBackend{path: path, values: map[string]string{}}
	if err := b.load(); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] %v. Using default values.\n", err)
	}
	return b
}

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".", "casetrail", "config.yaml")
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "casetrail", "config.yaml")
}

func (b *fileBackend) load() error {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("could not read config file %s: %w", b.path, err)
	}
	var values map[string]string
	if err := yaml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("could not parse config file %s: %w", b.path, err)
	}
	if values != nil {
		b.values = values
	}
	return nil
}

func (b *fileBackend) save() error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := yaml.Marshal(b.values)
	if err != nil {
		return err
	}
	return os.WriteFile(b.path, data, 0o600)
}

func (b *fileBackend) GetString(key string) (string, bool, error) {
	v, ok := b.values[key]
	return v, ok, nil
}

func (b *fileBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.values[key]
	if !ok {
		return 0, false, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, true, fmt.Errorf("%s: %q is not an integer", key, v)
	}
	return i, true, nil
}

func (b *fileBackend) SetString(key, val string) error {
	b.values[key] = val
	return b.save()
}

func (b *fileBackend) SetInt(key string, val int) error {
	b.values[key] = strconv.Itoa(val)
	return b.save()
}

func (b *fileBackend) Delete(key string) error {
	if _, ok := b.values[key]; !ok {
		return nil
	}
	delete(b.values, key)
	return b.save()
}
