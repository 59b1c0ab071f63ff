package auth

import (
	"crypto/subtle"
	"encoding/hex"

	"golang.org/x/crypto/argon2"
)

// Argon2i parameters. The salt is the process-wide APPKEY, so identical
// passwords hash identically across the install; the hash is opaque to
// everything but this file.
const (
	hashTime    = 2
	hashMemory  = 512
	hashThreads = 1
	hashLength  = 32
)

// Hasher derives and verifies password hashes with a process-wide salt.
type Hasher struct {
	salt []byte
}

func NewHasher(appKey string) *Hasher {
	return &Hasher{salt: []byte(appKey)}
}

// Hash returns the hex-encoded argon2i digest of the password.
func (h *Hasher) Hash(password string) string {
	digest := argon2.Key([]byte(password), h.salt, hashTime, hashMemory, hashThreads, hashLength)
	return hex.EncodeToString(digest)
}

// Verify reports whether the password matches the stored hash.
func (h *Hasher) Verify(password, encoded string) bool {
	expected := h.Hash(password)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(encoded)) == 1
}
