package auth

import (
	"crypto/rand"
	"errors"
	"math/big"
	"regexp"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// PasswordPolicy is the hospital-grade credential policy enforced at
// registration and password reset.
type PasswordPolicy struct {
	MinLength           int
	RequireUppercase    bool
	RequireLowercase    bool
	RequireNumbers      bool
	RequireSpecialChars bool
	ForbiddenPatterns   []*regexp.Regexp
}

// DefaultPasswordPolicy rejects short passwords, missing character classes
// and a denylist of common words including product names.
var DefaultPasswordPolicy = PasswordPolicy{
	MinLength:           12,
	RequireUppercase:    true,
	RequireLowercase:    true,
	RequireNumbers:      true,
	RequireSpecialChars: true,
	ForbiddenPatterns: []*regexp.Regexp{
		regexp.MustCompile(`(?i)password`),
		regexp.MustCompile(`(?i)admin`),
		regexp.MustCompile(`(?i)hospital`),
		regexp.MustCompile(`(?i)medcare`),
		regexp.MustCompile(`123456`),
		regexp.MustCompile(`(?i)qwerty`),
	},
}

// hasRepeatedRun reports whether the password contains four or more identical
// runes in a row. RE2 has no backreferences, so this rule is a plain scan.
func hasRepeatedRun(password string) bool {
	var prev rune
	run := 0
	for _, r := range password {
		if run > 0 && r == prev {
			run++
			if run >= 4 {
				return true
			}
			continue
		}
		prev = r
		run = 1
	}
	return false
}

// PasswordStrength buckets the strength score.
type PasswordStrength string

const (
	StrengthWeak   PasswordStrength = "weak"
	StrengthMedium PasswordStrength = "medium"
	StrengthStrong PasswordStrength = "strong"
)

// PasswordValidation is the outcome of a policy check.
type PasswordValidation struct {
	IsValid  bool             `json:"is_valid"`
	Errors   []string         `json:"errors,omitempty"`
	Strength PasswordStrength `json:"strength"`
}

const specialChars = `!@#$%^&*(),.?":{}|<>`

func isSpecial(r rune) bool {
	for _, s := range specialChars {
		if r == s {
			return true
		}
	}
	return false
}

// ValidatePassword checks password against the default policy.
func ValidatePassword(password string) PasswordValidation {
	return DefaultPasswordPolicy.Validate(password)
}

// Validate checks password against the policy and scores its strength.
func (p PasswordPolicy) Validate(password string) PasswordValidation {
	var errs []string

	runes := []rune(password)
	if len(runes) < p.MinLength {
		errs = append(errs, "password must be at least 12 characters long")
	}
	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range runes {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case isSpecial(r):
			hasSpecial = true
		}
	}
	if p.RequireUppercase && !hasUpper {
		errs = append(errs, "password must contain at least one uppercase letter")
	}
	if p.RequireLowercase && !hasLower {
		errs = append(errs, "password must contain at least one lowercase letter")
	}
	if p.RequireNumbers && !hasDigit {
		errs = append(errs, "password must contain at least one number")
	}
	if p.RequireSpecialChars && !hasSpecial {
		errs = append(errs, "password must contain at least one special character")
	}
	forbidden := hasRepeatedRun(password)
	for _, pattern := range p.ForbiddenPatterns {
		if forbidden {
			break
		}
		forbidden = pattern.MatchString(password)
	}
	if forbidden {
		errs = append(errs, "password contains forbidden patterns or common words")
	}

	return PasswordValidation{
		IsValid:  len(errs) == 0,
		Errors:   errs,
		Strength: scoreStrength(password),
	}
}

// scoreStrength rates 0-7: length tiers, character classes, unique-char ratio.
func scoreStrength(password string) PasswordStrength {
	score := 0
	runes := []rune(password)

	switch {
	case len(runes) >= 12:
		score += 2
	case len(runes) >= 8:
		score++
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	unique := make(map[rune]struct{}, len(runes))
	for _, r := range runes {
		unique[r] = struct{}{}
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case isSpecial(r):
			hasSpecial = true
		}
	}
	for _, ok := range []bool{hasLower, hasUpper, hasDigit, hasSpecial} {
		if ok {
			score++
		}
	}
	if len(runes) > 0 && float64(len(unique)) >= float64(len(runes))*0.8 {
		score++
	}

	switch {
	case score >= 6:
		return StrengthStrong
	case score >= 4:
		return StrengthMedium
	default:
		return StrengthWeak
	}
}

// Hasher hashes and verifies credentials with bcrypt at a configurable cost.
type Hasher struct {
	Cost int
}

// NewHasher clamps cost into the policy range 10-15.
func NewHasher(cost int) Hasher {
	if cost < 10 {
		cost = 10
	}
	if cost > 15 {
		cost = 15
	}
	return Hasher{Cost: cost}
}

// Hash produces a salted bcrypt hash of password.
func (h Hasher) Hash(password string) (string, error) {
	if len(password) == 0 {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.Cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify compares a plaintext password with a stored hash.
func (h Hasher) Verify(password, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// GeneratePassword returns a random password satisfying the default policy.
func GeneratePassword(length int) (string, error) {
	const (
		uppercase = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
		lowercase = "abcdefghijklmnopqrstuvwxyz"
		numbers   = "0123456789"
	)
	if length < DefaultPasswordPolicy.MinLength {
		length = 16
	}
	all := uppercase + lowercase + numbers + specialChars

	out := make([]byte, 0, length)
	for _, set := range []string{uppercase, lowercase, numbers, specialChars} {
		c, err := randByte(set)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}
	for len(out) < length {
		c, err := randByte(all)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}
	// Fisher-Yates so the mandatory classes are not always at the front.
	for i := len(out) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", err
		}
		out[i], out[j.Int64()] = out[j.Int64()], out[i]
	}
	return string(out), nil
}

func randByte(set string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
	if err != nil {
		return 0, err
	}
	return set[n.Int64()], nil
}
