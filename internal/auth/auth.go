// Package auth hashes and verifies user passwords.
package auth

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest password accepted by HashPassword.
const MinPasswordLength = 8

var (
	ErrPasswordTooShort = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrPasswordTooLong  = errors.New("password must be at most 72 bytes")
	ErrMismatch         = errors.New("invalid email or password")
)

// Hasher wraps bcrypt with a configurable cost. The zero value uses bcrypt.DefaultCost.
type Hasher struct {
	Cost int
}

func (h Hasher) cost() int {
	if h.Cost == 0 {
		return bcrypt.DefaultCost
	}
	return h.Cost
}

// Hash validates and hashes pw.
func (h Hasher) Hash(pw string) (string, error) {
	if utf8.RuneCountInString(pw) < MinPasswordLength {
		return "", ErrPasswordTooShort
	}
	if len(pw) > 72 {
		return "", ErrPasswordTooLong
	}
	out, err := bcrypt.GenerateFromPassword([]byte(pw), h.cost())
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(out), nil
}

// Check returns ErrMismatch unless pw matches hash. An empty hash never matches.
func (h Hasher) Check(hash, pw string) error {
	if hash == "" {
		return ErrMismatch
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)); err != nil {
		return ErrMismatch
	}
	return nil
}

// NeedsRehash reports whether hash was made with a different cost.
func (h Hasher) NeedsRehash(hash string) bool {
	c, err := bcrypt.Cost([]byte(hash))
	return err != nil || c != h.cost()
}

// HashPassword hashes with the default cost.
func HashPassword(pw string) (string, error) { return Hasher{}.Hash(pw) }

// CheckPassword verifies with the default hasher.
func CheckPassword(hash, pw string) error { return Hasher{}.Check(hash, pw) }
