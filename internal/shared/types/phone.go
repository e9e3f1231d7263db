package types

import (
	"fmt"
	"regexp"
	"strings"
)

// Phone represents a patient or clinician phone number in E.164 form.
// WhatsApp identities are keyed on this, so normalization happens once at
// the edge and the rest of the system compares strings.
type Phone string

var phoneRegex = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

// ParsePhone normalizes and validates a phone number. Spaces, dashes and
// parentheses are stripped; a leading 00 is rewritten to +.
func ParsePhone(s string) (Phone, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, strings.TrimSpace(s))

	if strings.HasPrefix(cleaned, "00") {
		cleaned = "+" + cleaned[2:]
	}

	if !phoneRegex.MatchString(cleaned) {
		return "", fmt.Errorf("phone number %q is not in international format", s)
	}

	return Phone(cleaned), nil
}

// String returns the string representation
func (p Phone) String() string {
	return string(p)
}

// Masked returns a display form safe for logs (country code + last 3 digits).
func (p Phone) Masked() string {
	if len(p) < 7 {
		return "***"
	}
	return string(p)[:4] + "****" + string(p)[len(p)-3:]
}

// IsZero checks if the phone is empty
func (p Phone) IsZero() bool {
	return p == ""
}
