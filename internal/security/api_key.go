package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// apiKeyPrefix is the prefix used for generated API keys.
const apiKeyPrefix = "glk_"

// Public identifier prefixes for ledger objects.
const (
	repoIDPrefix   = "repo_"
	commitIDPrefix = "cmt_"
	quotaIDPrefix  = "quota_"
)

// GenerateAPIKey creates a new random API key string.
func GenerateAPIKey() (token string, err error) {
	secret := make([]byte, 32)
	if _, err = io.ReadFull(rand.Reader, secret); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return apiKeyPrefix + hex.EncodeToString(secret), nil
}

// IsAPIKey reports whether a bearer credential looks like an API key rather
// than a JWT.
func IsAPIKey(credential string) bool {
	return strings.HasPrefix(credential, apiKeyPrefix)
}

// NewRepoID generates a public repository identifier.
func NewRepoID() (string, error) {
	return newObjectID(repoIDPrefix)
}

// NewCommitID generates a public commit identifier.
func NewCommitID() (string, error) {
	return newObjectID(commitIDPrefix)
}

// NewQuotaID generates a public storage quota identifier.
func NewQuotaID() (string, error) {
	return newObjectID(quotaIDPrefix)
}

// newObjectID generates a prefixed 16-byte hex identifier.
func newObjectID(prefix string) (string, error) {
	raw := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", fmt.Errorf("generate object id: %w", err)
	}
	return prefix + hex.EncodeToString(raw), nil
}

// NewAddress generates an account address: 0x followed by 40 hex characters.
func NewAddress() (string, error) {
	raw := make([]byte, 20)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", fmt.Errorf("generate address: %w", err)
	}
	return "0x" + hex.EncodeToString(raw), nil
}

// NewCardSN generates a storage card serial number.
func NewCardSN() (string, error) {
	raw := make([]byte, 10)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", fmt.Errorf("generate card sn: %w", err)
	}
	return strings.ToUpper(hex.EncodeToString(raw)), nil
}

// GenerateRandomString returns a hex-encoded random string of the given length.
func GenerateRandomString(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := io.ReadFull(rand.Reader, bytes); err != nil {
		return "", fmt.Errorf("generate random string: %w", err)
	}
	return hex.EncodeToString(bytes)[:length], nil
}
