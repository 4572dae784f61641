//go:build go1.18

package identifier

import (
	"testing"
	"unicode"
)

// FuzzNormalize checks the join-key invariants on arbitrary input: no
// panics, idempotency, and an output alphabet of ASCII digits, uppercase
// ASCII letters, and CJK ideographs only.
func FuzzNormalize(f *testing.F) {
	f.Add("国械注准20153540528")
	f.Add(" 国械注准 2023 1234 ")
	f.Add("粤械备（2014）0023")
	f.Add("ＡＢＣ１２３")
	f.Add("〔【】〕--//")
	f.Add("")
	f.Add(string([]byte{0xff, 0xfe, 0x00}))

	f.Fuzz(func(t *testing.T, input string) {
		key, ok := Normalize(input)
		if !ok {
			if key != "" {
				t.Fatalf("failed normalization of %q returned non-empty key %q", input, key)
			}
			return
		}
		if key == "" {
			t.Fatalf("successful normalization of %q returned empty key", input)
		}

		again, ok2 := Normalize(key)
		if !ok2 || again != key {
			t.Fatalf("normalization not idempotent: %q -> %q -> %q", input, key, again)
		}

		for _, r := range key {
			switch {
			case r >= '0' && r <= '9':
			case r >= 'A' && r <= 'Z':
			case unicode.Is(unicode.Han, r):
			default:
				t.Fatalf("key %q contains disallowed rune %q", key, r)
			}
		}
	})
}
