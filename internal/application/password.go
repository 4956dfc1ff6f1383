package application

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// ErrInvalidPasswordHash is returned when a stored credential cannot be decoded.
var ErrInvalidPasswordHash = errors.New("invalid password hash format")

// PBKDF2Params configures credential derivation.
type PBKDF2Params struct {
	Iterations int
	SaltLength int
	KeyLength  int
}

// DefaultPBKDF2Params derives keys with PBKDF2-HMAC-SHA256.
var DefaultPBKDF2Params = PBKDF2Params{
	Iterations: 200_000,
	SaltLength: 16,
	KeyLength:  32,
}

// Credential is a hex encoded salt and derived key.
type Credential struct {
	Salt string
	Hash string
}

// CreatePasswordHash derives a credential from password with a random salt.
func CreatePasswordHash(password string, params PBKDF2Params) (Credential, error) {
	salt := make([]byte, params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return Credential{}, fmt.Errorf("generate salt: %w", err)
	}
	key := pbkdf2.Key([]byte(password), salt, params.Iterations, params.KeyLength, sha256.New)
	return Credential{Salt: hex.EncodeToString(salt), Hash: hex.EncodeToString(key)}, nil
}

// VerifyPassword recomputes the derived key with the stored salt and compares in constant time.
func VerifyPassword(credential Credential, password string, params PBKDF2Params) error {
	salt, err := hex.DecodeString(credential.Salt)
	if err != nil || len(salt) == 0 {
		return ErrInvalidPasswordHash
	}
	stored, err := hex.DecodeString(credential.Hash)
	if err != nil || len(stored) == 0 {
		return ErrInvalidPasswordHash
	}

	candidate := pbkdf2.Key([]byte(password), salt, params.Iterations, len(stored), sha256.New)
	if subtle.ConstantTimeCompare(stored, candidate) == 1 {
		return nil
	}
	return ErrInvalidCredentials
}
