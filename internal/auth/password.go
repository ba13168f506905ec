package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrKeyTooShort = errors.New("admin key must be at least 16 characters")
	ErrInvalidKey  = errors.New("invalid admin key")
)

const (
	bcryptCost   = 12
	minKeyLength = 16
)

// HashAdminKey hashes an admin key using bcrypt
func HashAdminKey(key string) (string, error) {
	if len(key) < minKeyLength {
		return "", ErrKeyTooShort
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcryptCost)
	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// CheckAdminKey compares a presented key with the configured hash
func CheckAdminKey(key, hash string) bool {
	if key == "" || hash == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key))
	return err == nil
}
