package profile

import (
	"fmt"
	"regexp"
)

var accountRegexp = regexp.MustCompile(`^[A-Za-z0-9._%+-]{1,64}@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

// ValidateAccount checks that account looks like a sign-in address.
func ValidateAccount(account string) error {
	if len(account) > 254 || !accountRegexp.MatchString(account) {
		return fmt.Errorf("invalid account %q: must be an email address", account)
	}
	return nil
}
