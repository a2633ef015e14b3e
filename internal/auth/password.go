// Package auth implements admin credentials, signed session tokens, request
// throttling and the HTTP gate protecting dashboard routes.
package auth

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest password accepted for admin accounts.
const MinPasswordLength = 8

var (
	// ErrWeakPassword is returned when a password is shorter than MinPasswordLength.
	ErrWeakPassword = fmt.Errorf("password must have at least %d characters", MinPasswordLength)
	// ErrInvalidCredentials is returned when an e-mail/password pair does not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// bcryptCost is a variable so tests can lower it.
var bcryptCost = bcrypt.DefaultCost

// HashPassword returns the bcrypt hash for password.
func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares a bcrypt hash with a candidate password and returns
// ErrInvalidCredentials on mismatch.
func CheckPassword(hash, password string) error {
	if hash == "" {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

var decoyHash = sync.OnceValue(func() []byte {
	hash, err := bcrypt.GenerateFromPassword([]byte("decoy-password"), bcryptCost)
	if err != nil {
		panic(fmt.Sprintf("auth: decoy hash: %v", err))
	}
	return hash
})

// RejectPassword spends the same bcrypt work as CheckPassword and always
// returns ErrInvalidCredentials. Use it when no account matches so the
// response time does not reveal which e-mails exist.
func RejectPassword(password string) error {
	_ = bcrypt.CompareHashAndPassword(decoyHash(), []byte(password))
	return ErrInvalidCredentials
}
