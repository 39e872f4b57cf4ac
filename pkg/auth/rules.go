package auth

import (
	"regexp"
	"strings"
	"unicode"

	"taskdesk/pkg/apperr"
)

var handlePattern = regexp.MustCompile(`^[A-Za-z0-9_]{4,20}$`)

// MinSecretLength is the shortest accepted secret.
const MinSecretLength = 8

// ValidateHandle checks a login handle before normalization.
func ValidateHandle(h string) error {
	h = strings.TrimSpace(h)
	if h == "" {
		return apperr.Validation("handle is required")
	}
	if !handlePattern.MatchString(h) {
		return apperr.Validation("handle must be 4-20 letters, digits or underscores")
	}
	return nil
}

// ValidateSecret enforces the secret policy: at least MinSecretLength
// characters with an upper-case letter, a digit and a symbol.
func ValidateSecret(s string) error {
	if s == "" {
		return apperr.Validation("secret is required")
	}
	if len([]rune(s)) < MinSecretLength {
		return apperr.Validation("secret must be at least %d characters", MinSecretLength)
	}
	var upper, digit, symbol bool
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case !unicode.IsLetter(r):
			symbol = true
		}
	}
	if !upper || !digit || !symbol {
		return apperr.Validation("secret must contain an upper-case letter, a digit and a symbol")
	}
	return nil
}
