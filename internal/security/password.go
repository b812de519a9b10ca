package security

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var ErrPasswordTooShort = errors.New("password too short")

// HashPassword rejects passwords shorter than minLen (8 when unset) and returns a bcrypt hash.
func HashPassword(plain string, minLen int) (string, error) {
	if minLen <= 0 {
		minLen = 8
	}
	if len(plain) < minLen {
		return "", ErrPasswordTooShort
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func ComparePassword(hash, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
}
