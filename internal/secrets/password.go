package secrets

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	// “Service” groups the app’s secrets in the OS keychain.
	KeyringService = "internwatch"
)

var ErrNoPassword = errors.New("SMTP password not found (set SMTP_PASS or store it in the keychain)")

// SMTPKeyringAccount names the keychain entry for one SMTP login.
func SMTPKeyringAccount(username, server string) string {
	return fmt.Sprintf("internwatch:smtp:%s@%s", strings.TrimSpace(username), strings.TrimSpace(server))
}

func GetSMTPPassword(account string) (string, error) {
	if strings.TrimSpace(account) == "" {
		return "", ErrNoPassword
	}
	pw, err := keyring.Get(KeyringService, account)
	if errors.Is(err, keyring.ErrNotFound) || (err == nil && strings.TrimSpace(pw) == "") {
		return "", ErrNoPassword
	}
	if err != nil {
		return "", fmt.Errorf("keyring get %s: %w", account, err)
	}
	return pw, nil
}

func SetSMTPPassword(account, password string) error {
	if strings.TrimSpace(account) == "" {
		return errors.New("keyring account name is empty")
	}
	if strings.TrimSpace(password) == "" {
		return errors.New("password is empty")
	}
	return keyring.Set(KeyringService, account, password)
}

func DeleteSMTPPassword(account string) error {
	if strings.TrimSpace(account) == "" {
		return errors.New("keyring account name is empty")
	}
	return keyring.Delete(KeyringService, account)
}

// ResolveSMTPPassword prefers an explicit password (env or config) and falls
// back to the keychain.
func ResolveSMTPPassword(explicit, username, server string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	return GetSMTPPassword(SMTPKeyringAccount(username, server))
}
