// Package token implements stateless bearer tokens: the account identity is
// symmetrically encrypted into the token itself, so verification needs no
// session store. Rotating an account secret revokes every outstanding token,
// because callers re-check the decrypted secret against the account.
package token

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/set-night/coinledger/internal/domain"
)

type Service struct {
	key []byte
}

func NewService(key []byte) (*Service, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("token key must be 32 bytes, got %d", len(key))
	}
	return &Service{key: key}, nil
}

// Issue encrypts "identity\nid\nsecret" with AES-CTR, prefixes the IV to the
// ciphertext and encodes the result as base64url.
func (s *Service) Issue(identity string, id int64, secret string) (string, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return "", fmt.Errorf("new cipher: %w", err)
	}

	plaintext := []byte(fmt.Sprintf("%s\n%d\n%s", identity, id, secret))
	buf := make([]byte, aes.BlockSize+len(plaintext))
	iv := buf[:aes.BlockSize]
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("read iv: %w", err)
	}

	cipher.NewCTR(block, iv).XORKeyStream(buf[aes.BlockSize:], plaintext)
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Verify decrypts a token back into (identity, id, secret). It fails with
// domain.ErrBadToken on any malformed input; the caller must still confirm
// the identity resolves to a real account and the secret is current.
func (s *Service) Verify(tok string) (identity string, id int64, secret string, err error) {
	raw, err := base64.RawURLEncoding.DecodeString(tok)
	if err != nil || len(raw) < aes.BlockSize {
		return "", 0, "", domain.ErrBadToken
	}

	block, err := aes.NewCipher(s.key)
	if err != nil {
		return "", 0, "", fmt.Errorf("new cipher: %w", err)
	}

	plaintext := make([]byte, len(raw)-aes.BlockSize)
	cipher.NewCTR(block, raw[:aes.BlockSize]).XORKeyStream(plaintext, raw[aes.BlockSize:])

	parts := strings.SplitN(string(plaintext), "\n", 3)
	if len(parts) != 3 || parts[0] == "" {
		return "", 0, "", domain.ErrBadToken
	}
	id, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil || id <= 0 {
		return "", 0, "", domain.ErrBadToken
	}
	return parts[0], id, parts[2], nil
}
