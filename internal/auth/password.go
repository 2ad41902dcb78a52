package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultBcryptCost is the default bcrypt cost factor
	DefaultBcryptCost = 12

	// MinPasswordLength is the minimum password length
	MinPasswordLength = 8

	// MaxPasswordLength caps input size so bcrypt work stays bounded
	MaxPasswordLength = 128

	// minCharClasses is how many of the four character classes a password needs
	minCharClasses = 3
)

// ErrPasswordTooLong is returned when a password exceeds MaxPasswordLength
var ErrPasswordTooLong = errors.New("password too long")

// PasswordManager handles password hashing and strength validation
type PasswordManager struct {
	cost      int
	minLength int
}

// NewPasswordManager creates a password manager, clamping the cost and
// minimum length to sane floors
func NewPasswordManager(bcryptCost, minLength int) *PasswordManager {
	if bcryptCost < bcrypt.MinCost {
		bcryptCost = DefaultBcryptCost
	}
	if minLength < MinPasswordLength {
		minLength = MinPasswordLength
	}
	return &PasswordManager{cost: bcryptCost, minLength: minLength}
}

// HashPassword hashes a password using bcrypt
func (p *PasswordManager) HashPassword(password string) (string, error) {
	if len(password) > MaxPasswordLength {
		return "", ErrPasswordTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether the password matches the stored hash
func (p *PasswordManager) VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ValidatePasswordStrength checks length bounds and requires at least
// three of: uppercase, lowercase, digits, special characters
func (p *PasswordManager) ValidatePasswordStrength(password string) error {
	if len(password) < p.minLength {
		return fmt.Errorf("password must be at least %d characters", p.minLength)
	}
	if len(password) > MaxPasswordLength {
		return fmt.Errorf("password must be at most %d characters", MaxPasswordLength)
	}

	classes := 0
	seen := [4]bool{}
	for _, r := range password {
		var idx int
		switch {
		case unicode.IsUpper(r):
			idx = 0
		case unicode.IsLower(r):
			idx = 1
		case unicode.IsNumber(r):
			idx = 2
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			idx = 3
		default:
			continue
		}
		if !seen[idx] {
			seen[idx] = true
			classes++
		}
	}

	if classes < minCharClasses {
		return fmt.Errorf("password must contain at least %d of: uppercase, lowercase, numbers, special characters", minCharClasses)
	}
	return nil
}

// CheckPasswordHistory reports whether the password matches any of the
// previously stored hashes
func (p *PasswordManager) CheckPasswordHistory(password string, previousHashes []string) bool {
	for _, hash := range previousHashes {
		if p.VerifyPassword(password, hash) {
			return true
		}
	}
	return false
}

// HashRefreshToken produces the SHA-256 hex digest stored in place of the
// raw refresh token
func HashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
