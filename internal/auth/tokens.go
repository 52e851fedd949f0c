package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const (
	authCodeBytes     = 64
	refreshTokenBytes = 32
)

// GenerateAuthorizationCode returns a new authorization code: 64 random
// bytes, hex encoded (128 chars).
func GenerateAuthorizationCode() (string, error) {
	raw := make([]byte, authCodeBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating authorization code: %w", err)
	}
	return hex.EncodeToString(raw), nil
}

// GenerateRefreshToken returns a new raw refresh token: 32 random bytes,
// hex encoded (64 chars). Only its hash is ever stored.
func GenerateRefreshToken() (string, error) {
	raw := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating refresh token: %w", err)
	}
	return hex.EncodeToString(raw), nil
}

// hashToken hashes a plaintext token with SHA-256 for storage.
func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
