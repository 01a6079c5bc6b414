package evidence

import (
	"context"
	"strings"
	"unicode"

	"github.com/spherical-ai/spherical/libs/answer-engine/internal/textmatch"
)

var questionStopwords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`a an the is are was were be been do does did can could will would
		should shall may might i me my we our us you your yours it its this that these those there here
		what whats where wheres when who whom which why how of to in on at by for from with about and or
		but if so not no please tell know want need have has had get any some more much many just also`) {
		questionStopwords[w] = struct{}{}
	}
}

// ExtractiveClassifier grounds answers without a model: it quotes the context sentence
// covering the most content words of the question.
type ExtractiveClassifier struct {
	// MinCoverage is the share of question content words a sentence must contain.
	MinCoverage float64
}

// NewExtractiveClassifier creates an extractive classifier.
func NewExtractiveClassifier() *ExtractiveClassifier {
	return &ExtractiveClassifier{MinCoverage: 0.5}
}

// Classify implements Classifier.
func (c *ExtractiveClassifier) Classify(_ context.Context, question, contextBlock string) (Verdict, error) {
	content := contentTokens(question)
	if len(content) == 0 {
		return Verdict{}, nil
	}

	var (
		best      string
		bestScore int
	)
	for _, sentence := range Sentences(contextBlock) {
		words := textmatch.Tokens(sentence)
		score := 0
		for _, q := range content {
			if containsWord(words, q) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = sentence, score
		}
	}

	coverage := float64(bestScore) / float64(len(content))
	required := 1
	if len(content) >= 3 {
		required = 2
	}
	if bestScore < required || coverage < c.MinCoverage {
		return Verdict{Confidence: coverage * 0.9}, nil
	}
	return Verdict{ExplicitAnswer: true, Quote: best, Confidence: coverage * 0.9}, nil
}

func contentTokens(question string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, tok := range textmatch.Tokens(question) {
		if len(tok) < 2 {
			continue
		}
		if _, stop := questionStopwords[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// containsWord matches exact words, or words sharing a prefix of at least four letters
// ("deliver" and "delivery").
func containsWord(words []string, target string) bool {
	for _, w := range words {
		if w == target {
			return true
		}
		short, long := w, target
		if len(short) > len(long) {
			short, long = long, short
		}
		if len(short) >= 4 && strings.HasPrefix(long, short) {
			return true
		}
	}
	return false
}

// Sentences splits text at sentence terminators followed by whitespace and at line
// breaks. Every returned sentence is a substring of text.
func Sentences(text string) []string {
	var (
		out   []string
		start int
	)
	flush := func(end int) {
		if s := strings.TrimSpace(text[start:end]); s != "" {
			out = append(out, s)
		}
		start = end
	}

	for i, r := range text {
		switch {
		case r == '\n':
			flush(i)
		case r == '.' || r == '!' || r == '?':
			next := i + 1
			if next >= len(text) || unicode.IsSpace(rune(text[next])) {
				flush(next)
			}
		}
	}
	flush(len(text))
	return out
}
