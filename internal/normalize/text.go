package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Unaccent strips combining marks: "Sigur Rós" -> "Sigur Ros".
func Unaccent(s string) string {
	if isASCII(s) {
		return s
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return norm.NFC.String(s)
	}
	return out
}

// SearchKey folds a name for matching: unaccented, lowercased,
// punctuation removed and whitespace collapsed.
func SearchKey(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ToLower(Unaccent(s))
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, ", the") {
		s = "the " + strings.TrimSuffix(s, ", the")
	}
	return collapseWhitespace(removePunctuation(s))
}

// CleanString normalizes to NFC and drops control characters, which
// occasionally appear in dump text fields.
func CleanString(s string) string {
	if s == "" {
		return s
	}
	s = norm.NFC.String(s)
	if strings.IndexFunc(s, unicode.IsControl) < 0 {
		return s
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			if r == '\t' || r == '\n' {
				return ' '
			}
			return -1
		}
		return r
	}, s)
}

func removePunctuation(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return ' '
		}
		return r
	}, s)
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
