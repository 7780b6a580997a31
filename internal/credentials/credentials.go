// Package credentials stores secrets in the OS keyring.
package credentials

import (
	"errors"

	"github.com/zalando/go-keyring"

	"termbackup/internal/tbkerr"
)

const (
	serviceName    = "termbackup"
	tokenKey       = "github_token"
	passwordPrefix = "profile_password_"
)

// SaveToken stores the GitHub token in the keyring.
func SaveToken(token string) error {
	if err := keyring.Set(serviceName, tokenKey, token); err != nil {
		return tbkerr.Wrap(tbkerr.KindToken, err, "save token to keyring")
	}
	return nil
}

// Token returns the stored GitHub token, or false when none is stored.
func Token() (string, bool, error) {
	return lookup(tokenKey)
}

// DeleteToken removes the GitHub token. Deleting a missing token is not an
// error.
func DeleteToken() error {
	err := keyring.Delete(serviceName, tokenKey)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return tbkerr.Wrap(tbkerr.KindToken, err, "delete token from keyring")
	}
	return nil
}

// SaveProfilePassword stores a profile's backup password for scheduled and
// daemon runs.
func SaveProfilePassword(profileName, password string) error {
	if err := keyring.Set(serviceName, passwordPrefix+profileName, password); err != nil {
		return tbkerr.Wrap(tbkerr.KindCrypto, err, "save profile password to keyring")
	}
	return nil
}

// ProfilePassword returns a profile's stored backup password, or false when
// none is stored.
func ProfilePassword(profileName string) (string, bool, error) {
	return lookup(passwordPrefix + profileName)
}

// DeleteProfilePassword removes a profile's stored backup password.
func DeleteProfilePassword(profileName string) error {
	err := keyring.Delete(serviceName, passwordPrefix+profileName)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return tbkerr.Wrap(tbkerr.KindCrypto, err, "delete profile password from keyring")
	}
	return nil
}

// ResolveToken returns the GitHub token, preferring the keyring over the
// configured value. Keyring failures fall back to the configured value so a
// broken keyring never blocks operation.
func ResolveToken(configured string) string {
	if token, found, err := Token(); err == nil && found && token != "" {
		return token
	}
	return configured
}

// Probe performs a harmless keyring read to confirm the backend is usable.
func Probe() error {
	_, err := keyring.Get(serviceName, "doctor_probe")
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return tbkerr.Wrap(tbkerr.KindToken, err, "keyring not accessible")
	}
	return nil
}

func lookup(key string) (string, bool, error) {
	value, err := keyring.Get(serviceName, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", false, nil
		}
		return "", false, tbkerr.Wrap(tbkerr.KindToken, err, "read keyring")
	}
	return value, true, nil
}
