package secrets

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrUnsealable means the ciphertext was altered, truncated, or sealed under
// another key or associated data.
var ErrUnsealable = errors.New("sealed value cannot be opened")

// Sealer encrypts short secrets with XChaCha20-Poly1305. The random nonce is
// prepended to the ciphertext.
type Sealer struct {
	aead cipher.AEAD
}

func NewSealer(key []byte) (*Sealer, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("sealing key: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts plaintext bound to aad. The same aad is required to open it.
func (s *Sealer) Seal(plaintext string, aad []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("could not generate nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, []byte(plaintext), aad), nil
}

func (s *Sealer) Open(sealed, aad []byte) (string, error) {
	if len(sealed) < s.aead.NonceSize()+s.aead.Overhead() {
		return "", ErrUnsealable
	}
	nonce, ciphertext := sealed[:s.aead.NonceSize()], sealed[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return "", ErrUnsealable
	}
	return string(plain), nil
}
