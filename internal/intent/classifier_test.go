package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifier_ContextDependent(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		query string
		want  bool
	}{
		{"ok", true},
		{"tell me more", true},
		{"and?", true},
		{"it", true},
		{"Camry price?", true},
		{"what is the price of it", true},
		{"tell me more about the warranty", true},
		{"what about shipping to Pune", true},
		{"what about your return policy for damaged goods", false},
		{"tell me more about the warranty options for office chairs", false},
		{"What are your delivery terms?", false},
		{"where is your office?", false},
		{"track my shipment 1099492944", false},
		{"can you tell me whether that model ships to Pune next week", false},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, c.IsContextDependent(tt.query))
			assert.Equal(t, tt.want, c.Classify(tt.query).ContextDependent)
		})
	}
}

func TestClassifier_Intents(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		name           string
		query          string
		intent         QueryIntent
		productRelated bool
	}{
		{"price", "What is the price of the steel rack?", PriceInquiry, true},
		{"availability", "Do you have the blue chairs in stock now?", Availability, true},
		{"contact", "where is your office?", ContactInfo, false},
		{"offerings", "What services and products do you provide?", Offerings, true},
		{"tracking", "track my shipment 1099492944", OrderTracking, false},
		{"general", "What are your delivery terms?", General, false},
		{"continuation", "tell me more", Continuation, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.query)
			assert.Equal(t, tt.intent, got.Intent)
			assert.Equal(t, tt.productRelated, got.ProductRelated)
		})
	}
}

func TestClassifier_ReferencesAndDocumentWording(t *testing.T) {
	c := NewClassifier()

	got := c.Classify("track my shipment 1099492944")
	assert.Equal(t, []string{"1099492944"}, got.References)
	assert.True(t, got.Has(OrderTracking))

	got = c.Classify("what does the pdf say about returns")
	assert.True(t, got.DocumentWording)
	assert.True(t, got.Has(DocumentRequest))

	got = c.Classify("what does the website say about returns")
	assert.False(t, got.DocumentWording)
	assert.Empty(t, got.References)
}
