package permissions

import (
	"testing"

	"gorm.io/datatypes"
)

func TestHasPermission(t *testing.T) {
	t.Parallel()

	key := "GET /v0/admin/accounts"
	if !HasPermission([]string{key}, key) {
		t.Fatal("exact key grant should match")
	}
	if !HasPermission([]string{"accounts"}, key) {
		t.Fatal("module grant should cover its keys")
	}
	if HasPermission([]string{"cards"}, key) {
		t.Fatal("unrelated module grant should not match")
	}
	if HasPermission([]string{key}, "GET /v0/admin/unknown") {
		t.Fatal("unknown route key should never match")
	}
	if HasPermission(nil, key) {
		t.Fatal("empty grants should not match")
	}
}

func TestParsePermissionsTolerant(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  datatypes.JSON
		want int
	}{
		{"empty", nil, 0},
		{"null", datatypes.JSON("null"), 0},
		{"malformed", datatypes.JSON("{oops"), 0},
		{"object", datatypes.JSON(`{"a":1}`), 0},
		{"list", datatypes.JSON(`["accounts"," cards ","accounts"]`), 2},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := ParsePermissions(tc.raw)
			if got == nil {
				t.Fatal("ParsePermissions must not return nil")
			}
			if len(got) != tc.want {
				t.Fatalf("ParsePermissions(%s) = %v, want %d entries", tc.raw, got, tc.want)
			}
		})
	}
}

func TestNormalizePermissionsDedupes(t *testing.T) {
	t.Parallel()

	got := NormalizePermissions([]string{" accounts", "", "accounts", "cards "})
	if len(got) != 2 || got[0] != "accounts" || got[1] != "cards" {
		t.Fatalf("NormalizePermissions = %v", got)
	}
}

func TestValidatePermissions(t *testing.T) {
	t.Parallel()

	if err := ValidatePermissions([]string{"accounts", "GET /v0/admin/events"}); err != nil {
		t.Fatalf("valid entries rejected: %v", err)
	}
	if err := ValidatePermissions([]string{"nonsense"}); err == nil {
		t.Fatal("unknown entry accepted")
	}
	if err := ValidatePermissions(nil); err != nil {
		t.Fatalf("empty list rejected: %v", err)
	}
}
