package scorer

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldDiacritics strips combining marks so "Muñoz" and "Munoz" normalize
// to the same key.
var foldDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// normalizeValue canonicalizes a fact value for comparison: diacritics
// folded, lowercased, punctuation stripped (currency symbols kept),
// whitespace collapsed.
func normalizeValue(value string) string {
	folded, _, err := transform.String(foldDiacritics, value)
	if err != nil {
		folded = value
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range strings.ToLower(folded) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r):
			b.WriteRune(r)
		case r == '$' || r == '€' || r == '£':
			b.WriteRune(r)
		case r == '.' || r == ',':
			// Keep separators inside numbers; they are stripped from the
			// token edges below.
			b.WriteRune(r)
		}
	}

	fields := strings.Fields(b.String())
	for i, f := range fields {
		fields[i] = strings.Trim(f, ".,")
	}
	return strings.Join(fields, " ")
}

// dedupeKeyLen bounds the normalized-value prefix used as the
// deduplication key.
const dedupeKeyLen = 50

func dedupeKey(factType, value string) string {
	nv := normalizeValue(value)
	if len(nv) > dedupeKeyLen {
		nv = nv[:dedupeKeyLen]
	}
	return factType + "|" + nv
}
