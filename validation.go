package bank

import (
	"regexp"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/nyaruka/phonenumbers"
)

// DefaultPhoneRegion is used to parse phone numbers without a country prefix
var DefaultPhoneRegion = "US"

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// validatePayload runs ozzo rules and returns a rich validation error, or
// nil when the payload is valid.
func validatePayload(rules func() error, message string) error {
	if verr := goerrors.ValidateWithOzzo(rules, message); verr != nil {
		return verr.WithCode(goerrors.CodeBadRequest).WithTextCode(TextCodeValidation)
	}
	return nil
}

// NormalizePhone parses a phone number and formats it as E.164. Empty input
// stays empty.
func NormalizePhone(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}

	num, err := phonenumbers.Parse(raw, DefaultPhoneRegion)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", NewValidationError("invalid phone number", map[string]any{
			"phone_number": raw,
		})
	}

	return phonenumbers.Format(num, phonenumbers.E164), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
