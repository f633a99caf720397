package services

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Password hashing schemes selectable by configuration.
const (
	SchemeHMACSHA512 = "hmac-sha512"
	SchemeBcrypt     = "bcrypt"
)

// PasswordHasher derives and checks stored password hashes.
type PasswordHasher interface {
	// Hash returns the hash and the salt to persist with it.
	Hash(password string) (hash, salt []byte, err error)
	Verify(password string, hash, salt []byte) bool
}

// NewPasswordHasher returns the hasher for scheme.
func NewPasswordHasher(scheme string) (PasswordHasher, error) {
	switch scheme {
	case "", SchemeHMACSHA512:
		return HMACHasher{}, nil
	case SchemeBcrypt:
		return BcryptHasher{Cost: bcrypt.DefaultCost}, nil
	}
	return nil, fmt.Errorf("unknown password scheme %q", scheme)
}

// hmacKeySize matches the SHA-512 block size.
const hmacKeySize = 128

// HMACHasher computes HMAC-SHA512(key = random salt, message = password).
type HMACHasher struct{}

func (HMACHasher) Hash(password string) ([]byte, []byte, error) {
	salt := make([]byte, hmacKeySize)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return hmacSHA512(salt, password), salt, nil
}

func (HMACHasher) Verify(password string, hash, salt []byte) bool {
	if len(salt) == 0 || len(hash) == 0 {
		return false
	}
	return hmac.Equal(hmacSHA512(salt, password), hash)
}

func hmacSHA512(key []byte, password string) []byte {
	mac := hmac.New(sha512.New, key)
	mac.Write([]byte(password))
	return mac.Sum(nil)
}

// BcryptHasher stores a bcrypt hash and no separate salt. Passwords are
// pre-hashed with SHA-256 to stay inside bcrypt's 72 byte input limit.
type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) Hash(password string) ([]byte, []byte, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword(prehash(password), cost)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to hash password: %w", err)
	}
	return hash, []byte{}, nil
}

func (BcryptHasher) Verify(password string, hash, _ []byte) bool {
	return bcrypt.CompareHashAndPassword(hash, prehash(password)) == nil
}

func prehash(password string) []byte {
	sum := sha256.Sum256([]byte(password))
	return []byte(base64.StdEncoding.EncodeToString(sum[:]))
}
