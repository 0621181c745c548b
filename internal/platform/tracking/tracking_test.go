package tracking

import (
	"strings"
	"testing"
)

func TestNewCodeFormat(t *testing.T) {
	code := NewCode()
	if !strings.HasPrefix(code, Prefix) {
		t.Fatalf("expected prefix %s got %s", Prefix, code)
	}
	suffix := strings.TrimPrefix(code, Prefix)
	if len(suffix) != suffixLength {
		t.Fatalf("expected %d suffix chars got %d (%s)", suffixLength, len(suffix), code)
	}
	for _, r := range suffix {
		if !strings.ContainsRune(alphabet, r) {
			t.Fatalf("unexpected character %q in %s", r, code)
		}
	}
}

func TestNewCodeDoesNotRepeatTrivially(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		code := NewCode()
		if _, dup := seen[code]; dup {
			t.Fatalf("duplicate tracking code after %d draws: %s", i, code)
		}
		seen[code] = struct{}{}
	}
}
