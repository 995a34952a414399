// Package crypto implements client secret hashing and opaque token generation.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters (tuned for server-side hashing).
const (
	argonTime    uint32 = 3         // iterations
	argonMemory  uint32 = 64 * 1024 // 64 MB
	argonThreads uint8  = 1
	argonKeyLen  uint32 = 32
)

const (
	// SaltLen is the per-client salt size in bytes.
	SaltLen = 16
	// secretLen and tokenLen are entropy sizes in bytes before encoding.
	secretLen = 32
	tokenLen  = 32

	// TokenPrefix marks access token values so they are recognisable in logs and configs.
	TokenPrefix = "at_"
)

var b64 = base64.RawURLEncoding

// tokenValueLen is the length of an encoded access token, prefix included.
var tokenValueLen = len(TokenPrefix) + b64.EncodedLen(tokenLen)

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// HashSecret returns the Argon2id hash of secret using the provided salt.
func HashSecret(secret, salt []byte) []byte {
	return argon2.IDKey(secret, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// VerifySecret verifies secret against expected Argon2id hash and salt in constant time.
func VerifySecret(secret, salt, expected []byte) bool {
	got := HashSecret(secret, salt)
	return subtle.ConstantTimeCompare(got, expected) == 1
}

// NewSecret returns a fresh client secret together with its salt and hash.
// The raw secret is meant to be shown once and discarded.
func NewSecret() (raw string, salt, hash []byte, err error) {
	b, err := RandBytes(secretLen)
	if err != nil {
		return "", nil, nil, err
	}
	salt, err = RandBytes(SaltLen)
	if err != nil {
		return "", nil, nil, err
	}
	raw = b64.EncodeToString(b)
	return raw, salt, HashSecret([]byte(raw), salt), nil
}

// NewTokenValue returns a fresh opaque access token value.
func NewTokenValue() (string, error) {
	b, err := RandBytes(tokenLen)
	if err != nil {
		return "", err
	}
	return TokenPrefix + b64.EncodeToString(b), nil
}

// HashToken returns the SHA-256 digest under which a token value is stored.
// Token values carry full entropy, so an unsalted fast hash is sufficient for lookup.
func HashToken(value string) []byte {
	h := sha256.Sum256([]byte(value))
	return h[:]
}

// WellFormedToken reports whether value has the shape of a token minted by NewTokenValue.
func WellFormedToken(value string) bool {
	if len(value) != tokenValueLen || !strings.HasPrefix(value, TokenPrefix) {
		return false
	}
	_, err := b64.DecodeString(value[len(TokenPrefix):])
	return err == nil
}
