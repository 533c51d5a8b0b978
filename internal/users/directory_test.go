package users

import (
	"testing"

	"homebot/internal/capability"
)

func TestDirectory(t *testing.T) {
	t.Parallel()

	d := New(map[string]string{"alice": "Alice", " bob ": "", "": "ghost"})
	cases := []struct {
		id      string
		want    string
		present bool
	}{
		{"alice", "Alice", true},
		{"bob", "bob", true},
		{"carol", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		u, ok := d.Lookup(tc.id)
		if ok != tc.present || u.Display != tc.want {
			t.Fatalf("Lookup(%q)=%+v,%v", tc.id, u, ok)
		}
	}
	if got := len(d.List()); got != 2 {
		t.Fatalf("List len=%d", got)
	}

	d.Replace(map[string]string{"carol": "Carol"})
	if _, ok := d.Lookup("alice"); ok {
		t.Fatal("alice survived Replace")
	}
	if got := capability.DisplayName(d, "carol"); got != "Carol" {
		t.Fatalf("DisplayName=%q", got)
	}
	if got := capability.DisplayName(d, "dave"); got != "dave" {
		t.Fatalf("DisplayName fallback=%q", got)
	}
}
