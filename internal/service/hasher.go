package service

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/upravdom/sessiond/internal/util"
)

// SecretHasher maps raw refresh secrets to the storable lookup hash. The
// digest is keyed so a leaked sessions table is useless without the key, and
// deterministic so the hash doubles as the store's lookup index.
type SecretHasher struct {
	key []byte
}

func NewSecretHasher(key []byte) *SecretHasher {
	return &SecretHasher{key: key}
}

func (h *SecretHasher) Hash(rawSecret string) string {
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(rawSecret))
	return hex.EncodeToString(mac.Sum(nil))
}

// GenerateRefreshSecret returns a fresh random refresh secret. Raw secrets
// are handed to the client once and never stored.
func GenerateRefreshSecret() (string, error) {
	raw := make([]byte, util.RawSecretLength)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
