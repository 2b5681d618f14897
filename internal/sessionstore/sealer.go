package sessionstore

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	sealedPrefix = "sb1:"
	nonceSize    = 24
)

// Sealer encrypts tokens at rest. A nil Sealer stores tokens as given.
type Sealer interface {
	Seal(token string) (string, error)
	Open(sealed string) (string, error)
}

// SecretboxSealer seals tokens with NaCl secretbox under a fixed key.
type SecretboxSealer struct {
	key [32]byte
}

// NewSecretboxSealer returns a sealer for key, which must be 32 bytes.
func NewSecretboxSealer(key []byte) (*SecretboxSealer, error) {
	if len(key) != 32 {
		return nil, ErrInvalidKey
	}
	s := &SecretboxSealer{}
	copy(s.key[:], key)
	return s, nil
}

// Seal encrypts token with a fresh random nonce.
func (s *SecretboxSealer) Seal(token string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", err
	}
	box := secretbox.Seal(nonce[:], []byte(token), &nonce, &s.key)
	return sealedPrefix + base64.RawURLEncoding.EncodeToString(box), nil
}

// Open decrypts a value produced by Seal. Unsealed values pass through so a
// store can be migrated to sealing in place.
func (s *SecretboxSealer) Open(sealed string) (string, error) {
	if !strings.HasPrefix(sealed, sealedPrefix) {
		return sealed, nil
	}
	box, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(sealed, sealedPrefix))
	if err != nil {
		return "", err
	}
	if len(box) < nonceSize+secretbox.Overhead {
		return "", errors.New("sessionstore: sealed token too short")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], box[:nonceSize])
	plain, ok := secretbox.Open(nil, box[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", ErrSealed
	}
	return string(plain), nil
}

func sealToken(s Sealer, token string) (string, error) {
	if s == nil {
		return token, nil
	}
	return s.Seal(token)
}

func openToken(s Sealer, v string) (string, error) {
	if s == nil {
		if strings.HasPrefix(v, sealedPrefix) {
			return "", ErrSealed
		}
		return v, nil
	}
	return s.Open(v)
}
