package identity

import (
	"errors"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes a plaintext password using bcrypt.
func HashPassword(password string) (string, error) {
	if len(password) == 0 {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares a plaintext password with the stored hash.
func VerifyPassword(hash, password string) error {
	if hash == "" {
		return errors.New("password hash is empty")
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// PasswordPolicy validates password strength and returns the list of
// violations, empty when the password is acceptable.
type PasswordPolicy interface {
	Validate(password string) []string
}

// DefaultPasswordPolicy requires a minimum length plus character variety.
type DefaultPasswordPolicy struct {
	MinLength int
}

var _ PasswordPolicy = DefaultPasswordPolicy{}

func (p DefaultPasswordPolicy) Validate(password string) []string {
	minLen := p.MinLength
	if minLen <= 0 {
		minLen = 8
	}
	var violations []string
	if len(password) < minLen {
		violations = append(violations, "password is too short")
	}
	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasUpper {
		violations = append(violations, "password needs an uppercase letter")
	}
	if !hasLower {
		violations = append(violations, "password needs a lowercase letter")
	}
	if !hasDigit {
		violations = append(violations, "password needs a digit")
	}
	return violations
}
