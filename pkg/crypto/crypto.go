package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ErrMalformedHash indicates the stored hash is not a recognised password encoding.
var ErrMalformedHash = errors.New("crypto: malformed password hash")

// HashPassword returns a bcrypt hash of the supplied password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares the stored hash with the plaintext candidate.
// A mismatch yields (false, nil); only an unreadable hash produces an error.
func CheckPassword(hashedPassword, password string) (bool, error) {
	switch {
	case strings.HasPrefix(hashedPassword, argon2idPrefix):
		return compareArgon2id(hashedPassword, password)
	case strings.HasPrefix(hashedPassword, "$2"):
		err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
		if err == nil {
			return true, nil
		}
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	default:
		return false, ErrMalformedHash
	}
}

// VerifyPassword compares the hashed password with the plaintext candidate and fails closed.
func VerifyPassword(hashedPassword, password string) bool {
	ok, err := CheckPassword(hashedPassword, password)
	return err == nil && ok
}

// GenerateToken returns a random URL-safe token of the requested byte length.
func GenerateToken(length int) (string, error) {
	buffer := make([]byte, length)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}

// GenerateCode returns a lowercase hex code of exactly length characters read from crypto/rand.
func GenerateCode(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("crypto: code length must be positive (got %d)", length)
	}

	buffer := make([]byte, (length+1)/2)
	if _, err := rand.Read(buffer); err != nil {
		return "", fmt.Errorf("crypto: read random: %w", err)
	}
	return hex.EncodeToString(buffer)[:length], nil
}
