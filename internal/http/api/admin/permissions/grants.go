package permissions

import (
	"encoding/json"
	"fmt"
	"strings"

	"gorm.io/datatypes"
)

// HasPermission reports whether the granted entries cover the route key. An
// entry matches when it equals the key or the key's module.
func HasPermission(granted []string, key string) bool {
	def, ok := definitionMap[key]
	if !ok {
		return false
	}
	for _, entry := range granted {
		if entry == key || entry == def.Module {
			return true
		}
	}
	return false
}

// ParsePermissions decodes a stored permission list. Malformed or empty
// payloads decode to an empty list.
func ParsePermissions(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return []string{}
	}
	var entries []string
	if err := json.Unmarshal(raw, &entries); err != nil {
		return []string{}
	}
	return NormalizePermissions(entries)
}

// NormalizePermissions trims entries and removes blanks and duplicates while
// preserving order.
func NormalizePermissions(entries []string) []string {
	out := make([]string, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		trimmed := strings.TrimSpace(entry)
		if trimmed == "" {
			continue
		}
		if _, dup := seen[trimmed]; dup {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

// ValidatePermissions rejects entries that match neither a permission key nor
// a module name.
func ValidatePermissions(entries []string) error {
	for _, entry := range entries {
		if _, ok := definitionMap[entry]; ok {
			continue
		}
		if _, ok := moduleSet[entry]; ok {
			continue
		}
		return fmt.Errorf("unknown permission %q", entry)
	}
	return nil
}

// MarshalPermissions encodes a permission list for storage.
func MarshalPermissions(entries []string) ([]byte, error) {
	if entries == nil {
		entries = []string{}
	}
	return json.Marshal(entries)
}
