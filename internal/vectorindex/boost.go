package vectorindex

import (
	"strings"

	"github.com/spherical-ai/spherical/libs/answer-engine/internal/textmatch"
)

// boostRule multiplies the similarity of a chunk when the query mentions one of
// queryTerms and the chunk's source label or URL mentions one of sourceTerms.
type boostRule struct {
	queryTerms  []string
	sourceTerms []string
}

var boostRules = []boostRule{
	{queryTerms: []string{"contact", "phone", "email", "reach", "call"}, sourceTerms: []string{"contact"}},
	{queryTerms: []string{"price", "prices", "pricing", "cost", "costs", "rate", "rates"}, sourceTerms: []string{"price", "pricing", "rates"}},
	{queryTerms: []string{"shipping", "delivery", "deliver", "ship"}, sourceTerms: []string{"shipping", "delivery"}},
	{queryTerms: []string{"return", "returns", "refund", "refunds", "exchange"}, sourceTerms: []string{"return", "refund"}},
	{queryTerms: []string{"about", "who", "company", "history"}, sourceTerms: []string{"about"}},
	{queryTerms: []string{"faq", "question", "questions"}, sourceTerms: []string{"faq"}},
}

// boost returns the multiplicative re-rank factor for a chunk.
func boost(query, label, url string, factor float64) float64 {
	queryTokens := make(map[string]struct{})
	for _, tok := range textmatch.Tokens(query) {
		queryTokens[tok] = struct{}{}
	}
	source := strings.ToLower(label + " " + url)

	multiplier := 1.0
	for _, rule := range boostRules {
		if !containsAny(queryTokens, rule.queryTerms) {
			continue
		}
		for _, term := range rule.sourceTerms {
			if strings.Contains(source, term) {
				multiplier *= factor
				break
			}
		}
	}
	return multiplier
}

func containsAny(set map[string]struct{}, terms []string) bool {
	for _, t := range terms {
		if _, ok := set[t]; ok {
			return true
		}
	}
	return false
}
