package identifier

import (
	"strings"
	"unicode"
)

// Normalize canonicalizes a raw registration identifier into the join key
// used for all cross-source matching. The transform is deterministic and
// idempotent: full-width digits and Latin letters fold to ASCII, whitespace
// is stripped, ASCII letters are uppercased, and everything except ASCII
// digits, ASCII letters, and CJK Unified Ideographs is dropped. That removes
// every punctuation spelling seen in the wild, including the full-width and
// CJK bracket forms 〔〕 and 【】.
//
// ok is false when nothing survives the filter; malformed input never
// errors, it just normalizes to whatever survives.
func Normalize(raw string) (string, bool) {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		// Full-width ASCII block folds by fixed offset.
		if r >= 0xFF01 && r <= 0xFF5E {
			r -= 0xFEE0
		}
		switch {
		case unicode.IsSpace(r):
			continue
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - ('a' - 'A'))
		case isCJKIdeograph(r):
			b.WriteRune(r)
		}
	}
	key := b.String()
	return key, key != ""
}

// isCJKIdeograph covers the CJK Unified Ideographs block plus Extension A,
// which is where every authority name and province abbreviation in the
// historical identifier schemes lives. Bracket forms and CJK punctuation sit
// outside these blocks and are intentionally excluded.
func isCJKIdeograph(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) || (r >= 0x3400 && r <= 0x4DBF)
}
