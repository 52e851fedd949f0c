package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Client ID prefix. The rest is the first 24 chars of a hyphenless UUIDv4.
const ClientIDPrefix = "app_"

const clientSecretHashPrefix = "sha256:"

// GenerateClientID returns a new application client ID: app_ + 24 hex chars.
func GenerateClientID() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return ClientIDPrefix + raw[:24]
}

// GenerateClientSecret returns a new application client secret: 32 random
// bytes, hex encoded. High entropy; shown once on create or rotate.
func GenerateClientSecret() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating client secret: %w", err)
	}
	return hex.EncodeToString(raw), nil
}

// HashClientSecret hashes a client secret for storage. Secrets are
// high-entropy random strings, so a single SHA-256 pass is enough; argon2id
// here would bottleneck every token request.
func HashClientSecret(secret string) string {
	h := sha256.Sum256([]byte(secret))
	return clientSecretHashPrefix + hex.EncodeToString(h[:])
}

// VerifyClientSecret checks a plaintext secret against a stored hash in
// constant time. Hashes without the sha256: prefix are legacy argon2id
// values and verify via the password path.
func VerifyClientSecret(secret, hash string) bool {
	if digest, ok := strings.CutPrefix(hash, clientSecretHashPrefix); ok {
		computed := sha256.Sum256([]byte(secret))
		computedHex := hex.EncodeToString(computed[:])
		return subtle.ConstantTimeCompare([]byte(computedHex), []byte(digest)) == 1
	}
	ok, err := verifyPassword(secret, hash)
	return err == nil && ok
}

// --- PKCE (RFC 7636) ---

// GeneratePKCEChallenge computes S256(verifier) as base64url-no-pad.
func GeneratePKCEChallenge(verifier string) string {
	h := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(h[:])
}

// VerifyPKCE checks a code_verifier against a stored code_challenge. An
// empty method means "plain" per RFC 7636 §4.3.
func VerifyPKCE(verifier, challenge, method string) bool {
	switch method {
	case "S256":
		computed := GeneratePKCEChallenge(verifier)
		return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
	case "plain", "":
		return subtle.ConstantTimeCompare([]byte(verifier), []byte(challenge)) == 1
	default:
		return false
	}
}
