package security

import (
	"net/url"
	"strings"

	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/gitledger/gitledger/internal/settings"
)

// Default WebAuthn relying party configuration.
const (
	// webAuthnRPID is the default relying party ID.
	webAuthnRPID = "gitledger.dev"
	// webAuthnRPName is the default relying party display name.
	webAuthnRPName = "gitledger console"
	// webAuthnOrigin is the default WebAuthn origin.
	webAuthnOrigin = "https://gitledger.dev"
)

// NewWebAuthn builds a WebAuthn configuration using DB-backed overrides.
func NewWebAuthn() (*webauthn.WebAuthn, error) {
	rpName := webAuthnRPName
	if override := settings.StringValue(settings.WebAuthnRPNameKey); override != "" {
		rpName = override
	}

	origins := settings.StringsValue(settings.WebAuthnOriginsKey)
	if len(origins) == 0 {
		if override := settings.StringValue(settings.WebAuthnOriginKey); override != "" {
			origins = []string{override}
		}
	}
	if len(origins) == 0 {
		origins = []string{webAuthnOrigin}
	}

	rpID := webAuthnRPID
	if override := settings.StringValue(settings.WebAuthnRPIDKey); override != "" {
		rpID = override
	} else if derived := deriveRPIDFromOrigins(origins); derived != "" {
		rpID = derived
	}

	return webauthn.New(&webauthn.Config{
		RPID:          rpID,
		RPDisplayName: rpName,
		RPOrigins:     origins,
	})
}

// deriveRPIDFromOrigins extracts an RP ID from the configured origins.
func deriveRPIDFromOrigins(origins []string) string {
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		parsed, err := url.Parse(trimmed)
		if err != nil || parsed.Host == "" {
			continue
		}
		if host := strings.TrimSpace(parsed.Hostname()); host != "" {
			return host
		}
	}
	return ""
}
