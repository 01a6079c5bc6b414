// Package intent classifies customer queries into a single tagged result that every
// resolution tier reads: the primary QueryIntent, the context-dependence predicate,
// product relatedness, document wording and reference numbers.
package intent

import (
	"strings"

	"github.com/spherical-ai/spherical/libs/answer-engine/internal/textmatch"
)

// QueryIntent is the tagged intent variant of a query.
type QueryIntent string

const (
	Continuation    QueryIntent = "continuation"
	OrderTracking   QueryIntent = "order_tracking"
	PriceInquiry    QueryIntent = "price_inquiry"
	Availability    QueryIntent = "availability"
	ContactInfo     QueryIntent = "contact_info"
	Offerings       QueryIntent = "offerings"
	DocumentRequest QueryIntent = "document_request"
	General         QueryIntent = "general"
)

// Classification is the result of classifying one query.
type Classification struct {
	// Intent is the highest-precedence intent that matched.
	Intent QueryIntent
	// Intents lists every matched intent in precedence order.
	Intents []QueryIntent
	// ContextDependent marks queries with no standalone meaning; they bypass the cache.
	ContextDependent bool
	ProductRelated   bool
	// DocumentWording is set when the query names a document, file or pdf.
	DocumentWording bool
	// References holds order or tracking numbers (tokens with at least six digits).
	References []string
	Tokens     []string
}

// Has reports whether the query matched the given intent.
func (c Classification) Has(i QueryIntent) bool {
	for _, got := range c.Intents {
		if got == i {
			return true
		}
	}
	return false
}

type rule struct {
	intent  QueryIntent
	phrases []string
}

// Classifier is a rule-based classifier. Rules are evaluated in precedence order.
type Classifier struct {
	rules          []rule
	ellipsis       map[string]struct{}
	ellipsisPrefix []string
	pronouns       map[string]struct{}
	productTerms   map[string]struct{}
	documentTerms  map[string]struct{}
}

// NewClassifier creates a classifier with the default English rule set.
func NewClassifier() *Classifier {
	return &Classifier{
		rules: []rule{
			{OrderTracking, []string{
				"track", "tracking", "shipment", "consignment", "awb", "courier",
				"order status", "my order", "where is my order", "dispatched", "parcel",
			}},
			{PriceInquiry, []string{
				"price", "prices", "pricing", "cost", "costs", "rate", "rates", "quote",
				"quotation", "how much", "mrp", "discount", "offer price", "cheapest",
			}},
			{Availability, []string{
				"available", "availability", "in stock", "stock", "out of stock",
				"do you have", "do you sell", "can i buy", "can i get",
			}},
			{ContactInfo, []string{
				"contact", "phone", "email", "address", "office", "location", "located",
				"where are you", "reach you", "call you", "whatsapp", "working hours",
				"opening hours", "timings",
			}},
			{Offerings, []string{
				"products", "services", "catalog", "catalogue", "what do you sell",
				"what do you offer", "range", "brands", "models", "variants",
			}},
			{DocumentRequest, []string{
				"document", "documents", "file", "files", "pdf", "brochure", "manual", "datasheet",
			}},
		},
		ellipsis: toSet(
			"tell me more", "and", "ok", "okay", "more", "go on", "continue", "what else",
			"and then", "anything else", "more details", "more info", "yes", "yes please",
			"sure", "please continue", "explain more", "details", "why", "how",
		),
		ellipsisPrefix: []string{"tell me more", "what about", "how about", "and what about"},
		pronouns:       toSet("it", "that", "this", "them", "those", "these"),
		productTerms: toSet(
			"product", "products", "item", "items", "model", "models", "sku", "buy",
			"purchase", "variant", "variants", "size", "sizes", "colour", "color",
		),
		documentTerms: toSet("document", "documents", "doc", "docs", "file", "files", "pdf", "pdfs"),
	}
}

// Classify classifies one query.
func (c *Classifier) Classify(query string) Classification {
	normalized := textmatch.Normalize(query)
	tokens := strings.Fields(normalized)
	padded := " " + normalized + " "

	out := Classification{
		Tokens:           tokens,
		ContextDependent: c.isContextDependent(normalized, tokens),
		References:       references(tokens),
	}

	if out.ContextDependent && c.isEllipsis(normalized, tokens) {
		out.Intents = append(out.Intents, Continuation)
	}

	for _, r := range c.rules {
		for _, phrase := range r.phrases {
			if strings.Contains(padded, " "+phrase+" ") {
				out.Intents = append(out.Intents, r.intent)
				break
			}
		}
	}

	for _, tok := range tokens {
		if _, ok := c.documentTerms[tok]; ok {
			out.DocumentWording = true
		}
		if _, ok := c.productTerms[tok]; ok {
			out.ProductRelated = true
		}
	}

	if out.Has(PriceInquiry) || out.Has(Availability) || out.Has(Offerings) {
		out.ProductRelated = true
	}
	if out.Has(OrderTracking) && !out.Has(PriceInquiry) {
		out.ProductRelated = false
	}

	if len(out.Intents) == 0 {
		out.Intents = []QueryIntent{General}
	}
	out.Intent = out.Intents[0]

	return out
}

// IsContextDependent reports whether query only makes sense given prior turns:
// three tokens or fewer, a continuation phrase, or a pronoun in a short utterance.
func (c *Classifier) IsContextDependent(query string) bool {
	normalized := textmatch.Normalize(query)
	return c.isContextDependent(normalized, strings.Fields(normalized))
}

func (c *Classifier) isContextDependent(normalized string, tokens []string) bool {
	if len(tokens) <= 3 {
		return true
	}
	if c.isEllipsis(normalized, tokens) {
		return true
	}
	if len(tokens) <= shortUtterance {
		for _, tok := range tokens {
			if _, ok := c.pronouns[tok]; ok {
				return true
			}
		}
	}
	return false
}

// shortUtterance is the token count up to which pronouns and continuation
// prefixes mark a query as context dependent.
const shortUtterance = 6

func (c *Classifier) isEllipsis(normalized string, tokens []string) bool {
	if _, ok := c.ellipsis[normalized]; ok {
		return true
	}
	if len(tokens) > shortUtterance {
		return false
	}
	for _, prefix := range c.ellipsisPrefix {
		if normalized == prefix || strings.HasPrefix(normalized, prefix+" ") {
			return true
		}
	}
	return false
}

func references(tokens []string) []string {
	var refs []string
	for _, tok := range tokens {
		digits := 0
		for _, r := range tok {
			if r >= '0' && r <= '9' {
				digits++
			}
		}
		if digits >= 6 {
			refs = append(refs, tok)
		}
	}
	return refs
}

func toSet(values ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
