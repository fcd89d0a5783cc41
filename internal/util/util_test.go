package util

import "testing"

func TestHideAPIKeyShowsOnlyEdges(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"glk_0123456789abcdef", "glk_...cdef"},
		{"abcdef", "ab...ef"},
		{"abc", "a...c"},
		{"ab", "ab"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := HideAPIKey(tc.in); got != tc.want {
			t.Fatalf("HideAPIKey(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMaskSensitiveQueryMasksTokenValues(t *testing.T) {
	got := MaskSensitiveQuery("page=1&auth_token=secretvalue123")
	want := "page=1&auth_token=secr...e123"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestMaskSensitiveQueryLeavesPlainParamsAlone(t *testing.T) {
	raw := "repo=repo_abc&page=2"
	if got := MaskSensitiveQuery(raw); got != raw {
		t.Fatalf("expected query to be unchanged, got %q", got)
	}
}
