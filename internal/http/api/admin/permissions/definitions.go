package permissions

// Definition describes one grantable admin route permission.
type Definition struct {
	Key    string // Canonical permission key: "METHOD /path".
	Method string // HTTP method.
	Path   string // Gin route path.
	Label  string // Human-readable label for the console.
	Module string // Module group; granting a module grants all its keys.
}

// Key builds the canonical permission key for a route.
func Key(method, path string) string {
	return method + " " + path
}

// define builds a Definition from its parts.
func define(method, path, module, label string) Definition {
	return Definition{
		Key:    Key(method, path),
		Method: method,
		Path:   path,
		Label:  label,
		Module: module,
	}
}

// definitions lists every permission-gated admin route.
var definitions = []Definition{
	define("GET", "/v0/admin/operators", "operators", "List operators"),
	define("POST", "/v0/admin/operators", "operators", "Create operator"),
	define("GET", "/v0/admin/operators/:id", "operators", "View operator"),
	define("PUT", "/v0/admin/operators/:id", "operators", "Update operator"),
	define("DELETE", "/v0/admin/operators/:id", "operators", "Delete operator"),
	define("POST", "/v0/admin/operators/:id/disable", "operators", "Disable operator"),
	define("POST", "/v0/admin/operators/:id/enable", "operators", "Enable operator"),
	define("PUT", "/v0/admin/operators/:id/password", "operators", "Change operator password"),
	define("GET", "/v0/admin/permissions", "operators", "List permission definitions"),

	define("GET", "/v0/admin/accounts", "accounts", "List accounts"),
	define("GET", "/v0/admin/accounts/:id", "accounts", "View account"),
	define("POST", "/v0/admin/accounts/:id/disable", "accounts", "Disable account"),
	define("POST", "/v0/admin/accounts/:id/enable", "accounts", "Enable account"),

	define("GET", "/v0/admin/cards", "cards", "List storage cards"),
	define("POST", "/v0/admin/cards", "cards", "Create storage card"),
	define("POST", "/v0/admin/cards/batch", "cards", "Batch create storage cards"),
	define("GET", "/v0/admin/cards/:id", "cards", "View storage card"),
	define("PUT", "/v0/admin/cards/:id", "cards", "Update storage card"),
	define("DELETE", "/v0/admin/cards/:id", "cards", "Delete storage card"),

	define("GET", "/v0/admin/repositories", "repositories", "List repositories"),
	define("GET", "/v0/admin/repositories/:repo_id", "repositories", "View repository"),
	define("GET", "/v0/admin/repositories/:repo_id/commits", "repositories", "List repository commits"),

	define("GET", "/v0/admin/quotas", "quotas", "List storage quotas"),
	define("GET", "/v0/admin/quotas/:quota_id", "quotas", "View storage quota"),

	define("GET", "/v0/admin/ledger", "ledger", "List ledger entries"),

	define("GET", "/v0/admin/events", "events", "List events"),

	define("GET", "/v0/admin/settings", "settings", "View settings"),
	define("PUT", "/v0/admin/settings", "settings", "Update settings"),

	define("GET", "/v0/admin/dashboard/stats", "dashboard", "View dashboard statistics"),
}

// definitionMap indexes definitions by key.
var definitionMap = func() map[string]Definition {
	m := make(map[string]Definition, len(definitions))
	for _, def := range definitions {
		m[def.Key] = def
	}
	return m
}()

// moduleSet indexes the known module names.
var moduleSet = func() map[string]struct{} {
	m := make(map[string]struct{})
	for _, def := range definitions {
		m[def.Module] = struct{}{}
	}
	return m
}()

// Definitions returns all permission definitions.
func Definitions() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

// DefinitionMap returns permission definitions indexed by key.
func DefinitionMap() map[string]Definition {
	out := make(map[string]Definition, len(definitionMap))
	for key, def := range definitionMap {
		out[key] = def
	}
	return out
}
