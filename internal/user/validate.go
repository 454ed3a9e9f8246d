package user

import (
	"fmt"
	"regexp"
	"unicode"
	"unicode/utf8"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,18}$`)

const (
	minPasswordLength = 8
	maxNameLength     = 50
)

// ValidateSignUp runs every check before any write happens. Failures wrap
// ErrInvalidInput with the first offending field.
func ValidateSignUp(req *SignUpRequest) error {
	if n := utf8.RuneCountInString(req.Name); n == 0 || n > maxNameLength {
		return fmt.Errorf("%w: name must be 1-%d characters", ErrInvalidInput, maxNameLength)
	}
	if !usernamePattern.MatchString(req.Username) {
		return fmt.Errorf("%w: username must be 3-18 letters, digits or underscores", ErrInvalidInput)
	}
	if len(req.Password) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	var hasLetter, hasDigit bool
	for _, r := range req.Password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return fmt.Errorf("%w: password needs at least one letter and one digit", ErrInvalidInput)
	}
	return nil
}
