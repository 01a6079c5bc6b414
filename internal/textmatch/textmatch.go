// Package textmatch holds the string normalization and similarity measures shared by the
// cache, knowledge base and lexical search tiers.
package textmatch

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// MaxLexicalTokens bounds the number of tokens used for lexical scoring.
const MaxLexicalTokens = 12

// Normalize lowercases s, replaces punctuation with spaces and collapses whitespace.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		// apostrophes join contractions ("what's" -> "whats")
		if r == '\'' || r == '’' {
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

// Tokens splits the normalized form of s into words.
func Tokens(s string) []string {
	return strings.Fields(Normalize(s))
}

// HashQuery returns the cache key for a query: sha256 of the lower-cased, trimmed text.
func HashQuery(query string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(query))))
	return hex.EncodeToString(sum[:])
}

// Dice returns the bigram Dice coefficient of the normalized forms of a and b, ignoring whitespace.
func Dice(a, b string) float64 {
	first := []rune(strings.ReplaceAll(Normalize(a), " ", ""))
	second := []rune(strings.ReplaceAll(Normalize(b), " ", ""))

	if string(first) == string(second) {
		return 1
	}
	if len(first) < 2 || len(second) < 2 {
		return 0
	}

	bigrams := make(map[[2]rune]int, len(first)-1)
	for i := 0; i < len(first)-1; i++ {
		bigrams[[2]rune{first[i], first[i+1]}]++
	}

	intersection := 0
	for i := 0; i < len(second)-1; i++ {
		bg := [2]rune{second[i], second[i+1]}
		if bigrams[bg] > 0 {
			bigrams[bg]--
			intersection++
		}
	}

	return 2 * float64(intersection) / float64(len(first)+len(second)-2)
}

// TokenOverlap returns |A ∩ B| / max(|A|, |B|) over the distinct tokens of a and b.
func TokenOverlap(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	shared := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			shared++
		}
	}

	denom := len(setA)
	if len(setB) > denom {
		denom = len(setB)
	}
	return float64(shared) / float64(denom)
}

// LexicalTokens returns the distinct alphanumeric tokens of at least three characters,
// capped at MaxLexicalTokens, in query order.
func LexicalTokens(query string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, tok := range Tokens(query) {
		if len([]rune(tok)) < 3 {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
		if len(out) == MaxLexicalTokens {
			break
		}
	}
	return out
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range Tokens(s) {
		set[tok] = struct{}{}
	}
	return set
}
