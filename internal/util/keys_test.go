package util

import (
	"strings"
	"testing"
)

func TestSanitizeKeyDistinctAndStable(t *testing.T) {
	a1 := SanitizeKey("site+/cache-", "a")
	a2 := SanitizeKey("site+/cache-", "a")
	b := SanitizeKey("site+/cache-", "b")

	if a1 != a2 {
		t.Fatalf("same raw key sanitized differently: %q vs %q", a1, a2)
	}
	if a1 == b {
		t.Fatalf("distinct raw keys collided: %q", a1)
	}
}

func TestSanitizeKeyFixedWidth(t *testing.T) {
	const prefix = "p:"
	for _, raw := range []string{"", "x", "/products?id=1&sort=desc", strings.Repeat("long", 4096), "ключ с пробелами"} {
		got := SanitizeKey(prefix, raw)
		if !strings.HasPrefix(got, prefix) {
			t.Fatalf("missing prefix: %q", got)
		}
		if len(got) != len(prefix)+HashWidth {
			t.Fatalf("width mismatch for %q: %d", raw, len(got))
		}
		if strings.ContainsAny(got[len(prefix):], " ?&/") {
			t.Fatalf("digest not store-safe: %q", got)
		}
	}
}
