package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// TokenLength is the length of generated bearer tokens in bytes.
const TokenLength = 32

// GenerateBearerToken generates a cryptographically secure random
// bearer token. Returns the token (hex string) and its SHA-256 hex
// hash; only the hash is ever stored.
func GenerateBearerToken() (string, string, error) {
	tokenBytes := make([]byte, TokenLength)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", "", fmt.Errorf("generate random token: %w", err)
	}

	token := hex.EncodeToString(tokenBytes)
	return token, HashToken(token), nil
}

// HashToken hashes a bearer token for storage/lookup.
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
