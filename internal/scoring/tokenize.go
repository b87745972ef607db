package scoring

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const minTokenLen = 3

// isWordRune reports whether r belongs inside a token: lowercase ASCII
// letters and digits plus the latin-1 letter ranges à–ö and ø–ÿ.
func isWordRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r >= 'à' && r <= 'ö':
		return true
	case r >= 'ø' && r <= 'ÿ':
		return true
	}
	return false
}

// tokenize lowercases s, splits it on runs of non-word characters, and
// keeps tokens of at least three characters.
func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !isWordRune(r)
	})
	var tokens []string
	for _, f := range fields {
		if utf8.RuneCountInString(f) >= minTokenLen {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// tokenizeAll flattens a list of phrases through tokenize.
func tokenizeAll(items []string) []string {
	var tokens []string
	for _, item := range items {
		tokens = append(tokens, tokenize(item)...)
	}
	return tokens
}

// splitIntent splits an intent string on '.', '_', '-', and whitespace,
// lowercased, keeping tokens of at least three characters.
func splitIntent(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || unicode.IsSpace(r)
	})
	var tokens []string
	for _, f := range fields {
		if utf8.RuneCountInString(f) >= minTokenLen {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// charTrigrams returns the three-character windows of a token padded with
// a leading and trailing space.
func charTrigrams(token string) map[string]bool {
	runes := []rune(" " + token + " ")
	grams := make(map[string]bool, len(runes))
	for i := 0; i+3 <= len(runes); i++ {
		grams[string(runes[i:i+3])] = true
	}
	return grams
}

// jaccard computes |a∩b| / |a∪b| over two sets, 0 when both are empty.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if b[k] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// toSet converts a token slice to a set.
func toSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}
