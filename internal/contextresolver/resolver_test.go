package contextresolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolver_Resolve(t *testing.T) {
	history := []Turn{
		{Sender: SenderCustomer, Text: "What is the price of the oak dining table?"},
		{Sender: SenderAssistant, Text: "The oak dining table costs 450."},
		{Sender: SenderCustomer, Text: "ok"},
		{Sender: SenderAssistant, Text: "Anything else?"},
	}

	tests := []struct {
		name      string
		query     string
		history   []Turn
		expected  string
		rewritten bool
	}{
		{"standalone query kept", "Do you deliver to Pune on weekends?", history, "Do you deliver to Pune on weekends?", false},
		{"ellipsis rewritten", "tell me more", history, "What is the price of the oak dining table?", true},
		{"pronoun rewritten", "is it in stock", history, "What is the price of the oak dining table?", true},
		{"no history", "tell me more", nil, "tell me more", false},
		{"only context-dependent turns", "and?", []Turn{{Sender: SenderCustomer, Text: "ok"}}, "and?", false},
		{"assistant turns ignored", "tell me more", []Turn{{Sender: SenderAssistant, Text: "We sell oak dining tables and chairs."}}, "tell me more", false},
	}

	r := New(nil, 0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Resolve(tt.query, tt.history)
			assert.Equal(t, tt.expected, res.RetrievalQuery)
			assert.Equal(t, tt.rewritten, res.Rewritten)
		})
	}
}

func TestResolver_SkipsIdenticalTurn(t *testing.T) {
	// the current message is usually the last customer turn already
	history := []Turn{
		{Sender: SenderCustomer, Text: "Do you have the blue vase in large size?"},
		{Sender: SenderCustomer, Text: "what about that"},
	}

	res := New(nil, 0).Resolve("What about that", history)
	assert.True(t, res.ContextDependent)
	assert.Equal(t, "Do you have the blue vase in large size?", res.RetrievalQuery)
}

func TestResolver_MaxTurns(t *testing.T) {
	history := []Turn{
		{Sender: SenderCustomer, Text: "Do you repair antique clocks?"},
		{Sender: SenderAssistant, Text: "Yes."},
		{Sender: SenderAssistant, Text: "Anything else?"},
	}

	res := New(nil, 2).Resolve("tell me more", history)
	assert.False(t, res.Rewritten)
}
