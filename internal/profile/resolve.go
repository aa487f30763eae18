package profile

import (
	"errors"

	"github.com/matheus3301/msgr/internal/config"
)

// ErrNoAccount is returned when neither the flag nor the config names an account.
var ErrNoAccount = errors.New("no account given: pass --account or set default_account in config.toml")

// Resolve determines the active account using precedence:
// 1. flagOverride (--account flag)
// 2. config.toml default_account
func Resolve(flagOverride string) (string, error) {
	account := flagOverride
	if account == "" {
		cfg, err := config.Load(ConfigPath())
		if err == nil {
			account = cfg.DefaultAccount
		}
	}
	if account == "" {
		return "", ErrNoAccount
	}
	if err := ValidateAccount(account); err != nil {
		return "", err
	}
	return account, nil
}
