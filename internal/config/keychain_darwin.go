//go:build darwin

package config

import (
	"errors"
	"fmt"
	"os/exec"
)

// itemNotFound is the exit status of `security` for a missing keychain item.
const itemNotFound = 44

func security(args ...string) ([]byte, error) {
	out, err := exec.Command("security", args...).Output()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == itemNotFound {
		return nil, errSecretNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("security %s: %w", args[0], err)
	}
	return out, nil
}

func keychainGet(service, account string) ([]byte, error) {
	return security("find-generic-password", "-s", service, "-a", account, "-w")
}

// keychainSet adds or replaces a generic password item.
func keychainSet(service, account, value string) error {
	_, err := security("add-generic-password", "-U", "-s", service, "-a", account, "-w", value)
	return err
}

func keychainDelete(service, account string) error {
	_, err := security("delete-generic-password", "-s", service, "-a", account)
	if errors.Is(err, errSecretNotFound) {
		return nil
	}
	return err
}
