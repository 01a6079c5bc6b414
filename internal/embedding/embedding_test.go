package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/answer-engine/internal/config"
)

func embeddingServer(t *testing.T, status int) (*httptest.Server, *int) {
	t.Helper()
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit"}}`))
			return
		}

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		// Respond in reverse order to check index sorting.
		type item struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]item, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, item{Object: "embedding", Embedding: []float32{float32(i), 1}, Index: i})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": req.Model})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestClient_EmbedOrdersByIndex(t *testing.T) {
	srv, _ := embeddingServer(t, http.StatusOK)

	c, err := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL, Dimension: 2})
	require.NoError(t, err)

	vectors, err := c.Embed(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	for i, v := range vectors {
		assert.Equal(t, float32(i), v[0])
	}
	assert.Equal(t, 2, c.Dimension())
	assert.Equal(t, "openai/text-embedding-3-small", c.Model())
}

func TestClient_APIError(t *testing.T) {
	srv, _ := embeddingServer(t, http.StatusTooManyRequests)

	c, err := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.EmbedSingle(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)
}

func TestOpenAIClient_Embed(t *testing.T) {
	srv, _ := embeddingServer(t, http.StatusOK)

	c, err := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	vectors, err := c.Embed(context.Background(), []string{"x", "y"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, float32(1), vectors[1][0])
}

func TestEmbedBatch_SplitsRequests(t *testing.T) {
	srv, calls := embeddingServer(t, http.StatusOK)

	c, err := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	vectors, err := EmbedBatch(context.Background(), c, []string{"a", "b", "c", "d", "e"}, 2)
	require.NoError(t, err)
	assert.Len(t, vectors, 5)
	assert.Equal(t, 3, *calls)
	// Indexes restart per batch.
	assert.Equal(t, float32(0), vectors[4][0])
}

func TestHashingEmbedder_SharedWordsAreCloser(t *testing.T) {
	h := NewHashingEmbedder(128)
	ctx := context.Background()

	office, _ := h.EmbedSingle(ctx, "Our office is at 123 Main St")
	query, _ := h.EmbedSingle(ctx, "where is your office?")
	other, _ := h.EmbedSingle(ctx, "refund policy for damaged goods")

	assert.Greater(t, cosine(office, query), cosine(other, query))
	assert.InDelta(t, 1.0, cosine(office, office), 1e-5)
}

func TestHashingEmbedder_EmptyText(t *testing.T) {
	v, err := NewHashingEmbedder(0).EmbedSingle(context.Background(), "   ")
	require.NoError(t, err)
	assert.Len(t, v, 256)
}

func TestNew_ProviderSelection(t *testing.T) {
	e, err := New(config.EmbeddingConfig{Provider: "hashing", Dimension: 64})
	require.NoError(t, err)
	assert.Equal(t, 64, e.Dimension())

	_, err = New(config.EmbeddingConfig{Provider: "openrouter"})
	assert.Error(t, err, "openrouter requires an API key")

	_, err = New(config.EmbeddingConfig{Provider: "word2vec"})
	assert.Error(t, err)
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
