//go:build !darwin

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// secretsPath is the owner-only YAML file holding secrets on platforms
// without a keychain: service -> account -> value.
func secretsPath() string {
	return filepath.Join(defaultDataDir(), "secrets.yaml")
}

type secretsFile map[string]map[string]string

func readSecrets(path string) (secretsFile, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return secretsFile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading secrets: %w", err)
	}
	var f secretsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if f == nil {
		f = secretsFile{}
	}
	return f, nil
}

func (f secretsFile) write(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating secrets dir: %w", err)
	}
	out, err := yaml.Marshal(f)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o600)
}

func keychainGet(service, account string) ([]byte, error) {
	f, err := readSecrets(secretsPath())
	if err != nil {
		return nil, err
	}
	v, ok := f[service][account]
	if !ok {
		return nil, errSecretNotFound
	}
	return []byte(v), nil
}

func keychainSet(service, account, value string) error {
	p := secretsPath()
	f, err := readSecrets(p)
	if err != nil {
		return err
	}
	if f[service] == nil {
		f[service] = map[string]string{}
	}
	f[service][account] = value
	return f.write(p)
}

func keychainDelete(service, account string) error {
	p := secretsPath()
	f, err := readSecrets(p)
	if err != nil {
		return err
	}
	if _, ok := f[service][account]; !ok {
		return nil
	}
	delete(f[service], account)
	return f.write(p)
}
