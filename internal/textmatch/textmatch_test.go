package textmatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  What are your DELIVERY terms?? ", "what are your delivery terms"},
		{"Price: $1,200 / unit", "price 1 200 unit"},
		{"What's   the\tprice", "whats the price"},
		{"", ""},
		{"?!", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestHashQuery_CaseAndSpaceInsensitive(t *testing.T) {
	assert.Equal(t, HashQuery("What are your delivery terms?"), HashQuery("  what are your DELIVERY terms?"))
	assert.NotEqual(t, HashQuery("delivery terms"), HashQuery("delivery terms?"))
	assert.Len(t, HashQuery("x"), 64)
}

func TestDice(t *testing.T) {
	assert.Equal(t, 1.0, Dice("Delivery terms", "delivery terms!"))
	assert.Equal(t, 0.0, Dice("a", "b"))
	// ab bc cd de ef vs ab bc cd de eg: 4 shared of 5+5
	assert.Equal(t, 0.8, Dice("abcdef", "abcdeg"))
	assert.InDelta(t, 0.0, Dice("abc", "xyz"), 1e-9)
}

func TestDice_RepeatedBigramsCountedOnce(t *testing.T) {
	// "aaaa" has bigram aa x3, "aa" has aa x1: 2*1/(3+1)
	assert.InDelta(t, 0.5, Dice("aaaa", "aa"), 1e-9)
}

func TestTokenOverlap(t *testing.T) {
	assert.Equal(t, 1.0, TokenOverlap("delivery terms", "Terms, delivery"))
	assert.InDelta(t, 0.5, TokenOverlap("what are delivery terms", "delivery terms"), 1e-9)
	assert.Equal(t, 0.0, TokenOverlap("", "anything"))
}

func TestLexicalTokens(t *testing.T) {
	assert.Equal(t, []string{"where", "your", "office"}, LexicalTokens("where is your office? your office!"))

	long := "alpha bravo charlie delta echo foxtrot golf hotel india juliet kilo lima mike november"
	toks := LexicalTokens(long)
	assert.Len(t, toks, MaxLexicalTokens)
	assert.Equal(t, "alpha", toks[0])
	assert.NotContains(t, toks, "mike")
}
