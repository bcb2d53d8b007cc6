//go:build darwin

package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

const defaultsDomain = "com.casetrail.app"

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, "Library", "Application Support", "casetrail")
	}
	return "casetrail-data"
}

func apiKeyHint() string {
	return " or `casetrail config set gateway.api_key <key>` (stored in the macOS Keychain)"
}

// defaultsBackend keeps settings in the UserDefaults domain of the app.
type defaultsBackend struct {
	domain string
}

func newPlatformBackend() Backend {
	return &defaultsBackend{domain: defaultsDomain}
}

// errNoDefault marks a key absent from the domain; `defaults` exits 1 for it.
var errNoDefault = errors.New("no such default")

func (b *defaultsBackend) run(verb, key string, extra ...string) (string, error) {
	args := append([]string{verb, b.domain, key}, extra...)
	out, err := exec.Command("defaults", args...).CombinedOutput()
	s := strings.TrimSpace(string(out))
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 && verb != "write" {
			return "", errNoDefault
		}
		return "", fmt.Errorf("defaults %s %s: %w: %s", verb, key, err, s)
	}
	return s, nil
}

func (b *defaultsBackend) GetString(key string) (string, bool, error) {
	s, err := b.run("read", key)
	if errors.Is(err, errNoDefault) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return s, true, nil
}

func (b *defaultsBackend) GetInt(key string) (int, bool, error) {
	s, ok, err := b.GetString(key)
	if !ok || err != nil {
		return 0, ok, err
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, true, fmt.Errorf("%s: %q is not an integer", key, s)
	}
	return i, true, nil
}

func (b *defaultsBackend) SetString(key, val string) error {
	_, err := b.run("write", key, "-string", val)
	return err
}

func (b *defaultsBackend) SetInt(key string, val int) error {
	_, err := b.run("write", key, "-int", strconv.Itoa(val))
	return err
}

func (b *defaultsBackend) Delete(key string) error {
	if _, err := b.run("delete", key); err != nil && !errors.Is(err, errNoDefault) {
		return err
	}
	return nil
}
