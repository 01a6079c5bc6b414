package evidence

import (
	"strings"

	"github.com/spherical-ai/spherical/libs/answer-engine/internal/storage"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/vectorindex"
)

// MaxContextChars bounds the context block handed to the classifier.
const MaxContextChars = 6000

// Candidate is the retrieved context of one corpus and its verdict.
type Candidate struct {
	Corpus  storage.Corpus
	Results []vectorindex.Result
	Context string
	Verdict Verdict
}

// NewCandidate builds the context block from results, best first, up to MaxContextChars.
func NewCandidate(corpus storage.Corpus, results []vectorindex.Result) *Candidate {
	var (
		b    strings.Builder
		kept []vectorindex.Result
	)
	for _, r := range results {
		text := strings.TrimSpace(r.Text)
		if text == "" {
			continue
		}
		if b.Len() > 0 && b.Len()+len(text)+2 > MaxContextChars {
			break
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
		kept = append(kept, r)
	}
	return &Candidate{Corpus: corpus, Results: kept, Context: b.String()}
}

// Explicit reports whether the candidate carries accepted explicit evidence.
func (c *Candidate) Explicit() bool {
	return c != nil && c.Verdict.ExplicitAnswer
}

// Citation returns the result whose text contains the verdict quote, or the top result.
func (c *Candidate) Citation() *vectorindex.Result {
	if c == nil || len(c.Results) == 0 {
		return nil
	}
	if c.Verdict.Quote != "" {
		for i := range c.Results {
			if strings.Contains(c.Results[i].Text, c.Verdict.Quote) {
				return &c.Results[i]
			}
		}
	}
	return &c.Results[0]
}

// Select picks the candidate whose evidence answers the question. Explicit evidence beats
// non-explicit; between two explicit candidates the higher confidence wins and documents
// win ties. When preferDocuments is set, explicit document evidence wins outright.
// Select returns nil when neither candidate is explicit.
func Select(documents, website *Candidate, preferDocuments bool) *Candidate {
	docOK, webOK := documents.Explicit(), website.Explicit()

	switch {
	case docOK && webOK:
		if preferDocuments || documents.Verdict.Confidence >= website.Verdict.Confidence {
			return documents
		}
		return website
	case docOK:
		return documents
	case webOK:
		return website
	default:
		return nil
	}
}
