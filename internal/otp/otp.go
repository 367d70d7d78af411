// Package otp implements one-time-code sign-in support: code generation,
// SMS delivery, a purpose-keyed transient store and send rate limiting.
package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

// Purpose frames the SMS text and expiry of a code.
type Purpose string

const (
	PurposeLogin        Purpose = "login"
	PurposeVerification Purpose = "verification"
	Purpose2FA          Purpose = "2fa"
)

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	switch p {
	case PurposeLogin, PurposeVerification, Purpose2FA:
		return true
	}
	return false
}

// Generate returns a uniform random 6-digit numeric code.
func Generate() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

var phonePattern = regexp.MustCompile(`^[1-9]\d{9,14}$`)

// ValidPhone checks the digits form a plausible international number.
func ValidPhone(phone string) bool {
	return phonePattern.MatchString(digitsOnly(phone))
}

// FormatPhone normalizes to E.164, assuming a US number when 10 digits.
func FormatPhone(phone string) string {
	cleaned := digitsOnly(phone)
	if len(cleaned) == 10 {
		cleaned = "1" + cleaned
	}
	return "+" + cleaned
}

// MaskPhone hides the middle of a number for logs: first 3 and last 3 digits.
func MaskPhone(phone string) string {
	cleaned := digitsOnly(phone)
	if len(cleaned) < 7 {
		return "****"
	}
	return cleaned[:3] + strings.Repeat("*", len(cleaned)-6) + cleaned[len(cleaned)-3:]
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteByte(byte(r))
		}
	}
	return b.String()
}
