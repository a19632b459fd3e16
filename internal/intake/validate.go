package intake

import (
	"regexp"
	"strings"
	"unicode"
)

// MinPhoneDigits is the fewest digits a phone number may have.
const MinPhoneDigits = 10

// Validation error messages, reported in check order.
const (
	ErrNameInvalid   = "name is missing or invalid"
	ErrEmailRequired = "email is required"
	ErrEmailFormat   = "email format is invalid"
	ErrPhoneRequired = "phone is required"
	ErrPhoneFormat   = "phone format is invalid (minimum 10 digits)"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Validate checks name, email and phone, in that order. It returns true when
// every check passes, otherwise one message per failed check.
func Validate(l Lead) (bool, []string) {
	var errs []string

	if !validName(l.Name) {
		errs = append(errs, ErrNameInvalid)
	}

	switch {
	case l.Email == "":
		errs = append(errs, ErrEmailRequired)
	case !emailPattern.MatchString(l.Email):
		errs = append(errs, ErrEmailFormat)
	}

	switch {
	case l.Phone == "":
		errs = append(errs, ErrPhoneRequired)
	case countDigits(l.Phone) < MinPhoneDigits:
		errs = append(errs, ErrPhoneFormat)
	}

	return len(errs) == 0, errs
}

func validName(name string) bool {
	return len([]rune(strings.TrimSpace(name))) >= 2
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			n++
		}
	}
	return n
}
