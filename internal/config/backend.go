package config

import "errors"

// errSecretNotFound is returned by the platform secret store when the
// account has no stored value.
var errSecretNotFound = errors.New("secret not found")

// Backend persists the non-secret keys listed in specs under their dotted
// names. Delete of an absent key succeeds.
type Backend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}

// secretStore holds the keys marked secret, one account per key under
// secretService.
type secretStore interface {
	Set(service, account, value string) error
	Delete(service, account string) error
}

// platformSecrets is the secret store of the running platform.
type platformSecrets struct{}

func (platformSecrets) Set(service, account, value string) error {
	return keychainSet(service, account, value)
}

func (platformSecrets) Delete(service, account string) error {
	return keychainDelete(service, account)
}
