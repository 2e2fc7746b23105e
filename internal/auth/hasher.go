package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Supported hash algorithms.
const (
	HashAlgSHA256 = "sha256"
	HashAlgSHA512 = "sha512"
	HashAlgBcrypt = "bcrypt"
)

// keyPrefixLen is the number of leading key characters kept in the clear
// for administrative display.
const keyPrefixLen = 8

// Hasher hashes secret keys and verifies presented keys against stored
// hashes. Compare must be constant-time for the digest algorithms.
type Hasher interface {
	Hash(key string) (string, error)
	Compare(key, hash string) bool
}

// NewHasher returns a Hasher for the given algorithm.
func NewHasher(algorithm string) (Hasher, error) {
	switch algorithm {
	case HashAlgSHA256:
		return sha256Hasher{}, nil
	case HashAlgSHA512:
		return sha512Hasher{}, nil
	case HashAlgBcrypt:
		return bcryptHasher{}, nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %s", algorithm)
	}
}

type sha256Hasher struct{}

func (sha256Hasher) Hash(key string) (string, error) {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:]), nil
}

func (h sha256Hasher) Compare(key, hash string) bool {
	computed, _ := h.Hash(key)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}

type sha512Hasher struct{}

func (sha512Hasher) Hash(key string) (string, error) {
	sum := sha512.Sum512([]byte(key))
	return hex.EncodeToString(sum[:]), nil
}

func (h sha512Hasher) Compare(key, hash string) bool {
	computed, _ := h.Hash(key)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}

type bcryptHasher struct{}

func (bcryptHasher) Hash(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (bcryptHasher) Compare(key, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}

// GenerateKey creates a new random secret key. It returns the full key
// and its display prefix. The full key is shown to the administrator
// exactly once at issuance; only its hash is persisted.
func GenerateKey() (key, prefix string, err error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("generate key: %w", err)
	}

	key = "ak_" + base64.RawURLEncoding.EncodeToString(raw)
	return key, key[:keyPrefixLen], nil
}

// GenerateEncryptionKey creates a random 256-bit symmetric key, hex
// encoded, stored alongside the credential for payload encryption.
func GenerateEncryptionKey() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate encryption key: %w", err)
	}
	return hex.EncodeToString(raw), nil
}
