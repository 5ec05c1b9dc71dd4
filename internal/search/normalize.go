package search

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// fold lowercases s and strips diacritics, "Canción" becomes "cancion"
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}

// tokenize folds s and splits it into stemmed words
func tokenize(s string) []string {
	words := strings.FieldsFunc(fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := words[:0]
	for _, w := range words {
		if len(w) < 2 {
			continue
		}
		tokens = append(tokens, stem(w))
	}
	return tokens
}

// stem reduces singular and plural forms to one key: libro and libros,
// celular and celulares, bafle and bafles
func stem(w string) string {
	if n := len(w); n > 3 && w[n-1] == 's' && w[n-2] != 's' {
		w = w[:n-1]
	}
	if n := len(w); n > 3 && w[n-1] == 'e' && !strings.ContainsRune("aeiou", rune(w[n-2])) {
		w = w[:n-1]
	}
	return w
}

// Tokenize exposes the engine's normalisation to other matchers
func Tokenize(s string) []string {
	return tokenize(s)
}
