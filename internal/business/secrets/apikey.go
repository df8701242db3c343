// Package secrets issues business API keys and seals bank account numbers.
package secrets

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	dErrors "confirmit/pkg/domain-errors"
)

const (
	apiKeyPrefix = "ck_"
	apiKeyBytes  = 32
	keyIDLen     = 8
)

// GenerateAPIKey returns a raw key of the form ck_<64 hex>.
func GenerateAPIKey() (string, error) {
	buf := make([]byte, apiKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("could not generate api key: %w", err)
	}
	return apiKeyPrefix + hex.EncodeToString(buf), nil
}

// KeyID derives the public lookup id of a raw key.
func KeyID(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])[:keyIDLen]
}

// WellFormed reports whether raw has the shape GenerateAPIKey produces.
func WellFormed(raw string) bool {
	if !strings.HasPrefix(raw, apiKeyPrefix) || len(raw) != len(apiKeyPrefix)+2*apiKeyBytes {
		return false
	}
	_, err := hex.DecodeString(raw[len(apiKeyPrefix):])
	return err == nil
}

// Hash creates a bcrypt hash of the raw key for storage.
func Hash(raw string) (string, error) {
	if raw == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "api key cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "api key is too long")
		}
		return "", fmt.Errorf("could not hash api key: %w", err)
	}
	return string(hashed), nil
}

// Verify checks a raw key against its bcrypt hash.
func Verify(raw, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(raw)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return dErrors.New(dErrors.CodeUnauthorized, "invalid api key")
		}
		return fmt.Errorf("could not verify api key: %w", err)
	}
	return nil
}
