package util

import (
	"net/url"
	"strings"
)

// sensitiveMarkers flags query parameter names that carry credentials.
var sensitiveMarkers = []string{"api-key", "apikey", "api_key", "token", "secret"}

// HideAPIKey shortens a credential to its edges so logs never carry the full
// value. Very short inputs are returned unchanged.
func HideAPIKey(apiKey string) string {
	n := len(apiKey)
	var keep int
	switch {
	case n > 8:
		keep = 4
	case n > 4:
		keep = 2
	case n > 2:
		keep = 1
	default:
		return apiKey
	}
	return apiKey[:keep] + "..." + apiKey[n-keep:]
}

// MaskSensitiveQuery rewrites a raw query string with credential-bearing
// values hidden. Parameter order is preserved; the input is returned as-is
// when nothing needed masking.
func MaskSensitiveQuery(raw string) string {
	if raw == "" {
		return ""
	}
	parts := strings.Split(raw, "&")
	masked := 0
	for i, part := range parts {
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, "=")
		name, errKey := url.QueryUnescape(key)
		if errKey != nil {
			name = key
		}
		if !isSensitiveParam(name) {
			continue
		}
		plain, errValue := url.QueryUnescape(value)
		if errValue != nil {
			plain = value
		}
		parts[i] = key + "=" + url.QueryEscape(HideAPIKey(strings.TrimSpace(plain)))
		masked++
	}
	if masked == 0 {
		return raw
	}
	return strings.Join(parts, "&")
}

// isSensitiveParam reports whether a query parameter name looks like a
// credential carrier.
func isSensitiveParam(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.TrimSuffix(name, "[]")
	if name == "" {
		return false
	}
	if name == "key" {
		return true
	}
	for _, marker := range sensitiveMarkers {
		if strings.Contains(name, marker) {
			return true
		}
	}
	return false
}
