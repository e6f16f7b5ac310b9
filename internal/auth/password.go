package auth

import (
	"crypto/rand"
	"errors"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

const generatedPasswordAlphabet = "abcdefghijkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// dummyHash is compared against when no account matches, so unknown emails
// cost the same bcrypt work as wrong passwords.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("identity-service-dummy"), bcrypt.DefaultCost)

// HashPassword hashes a plaintext password with configured cost.
func HashPassword(password string, cost int) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// ComparePassword verifies a password against its hashed value.
func ComparePassword(hashed, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
}

// PasswordMatches reports whether plain matches hashed. Only a mismatch
// yields false with a nil error.
func PasswordMatches(hashed, plain string) (bool, error) {
	err := ComparePassword(hashed, plain)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, err
	}
}

// BurnPasswordCompare performs a throwaway comparison.
func BurnPasswordCompare(plain string) {
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(plain))
}

// GeneratePassword returns a random password of length n.
func GeneratePassword(n int) (string, error) {
	buf := make([]byte, n)
	max := big.NewInt(int64(len(generatedPasswordAlphabet)))
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = generatedPasswordAlphabet[idx.Int64()]
	}
	return string(buf), nil
}
