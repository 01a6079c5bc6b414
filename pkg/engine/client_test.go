package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/answer-engine/internal/retrieval"
)

func TestClient_ResolveSendsTenantAndToken(t *testing.T) {
	var (
		gotTenant string
		gotAuth   string
		gotReq    Request
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/resolve", r.URL.Path)
		gotTenant = r.Header.Get("X-Tenant-ID")
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Resolution{
			Outcome:      retrieval.OutcomeAnswered,
			ResponseText: "Within 5 business days.",
			SourceTag:    retrieval.SourceWebsite,
			Groundedness: retrieval.GroundednessGrounded,
		})
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL + "/", APIKey: "secret"})
	res, err := c.Resolve(context.Background(), Request{TenantID: "tenant-a", Query: "What are your delivery terms?"})
	require.NoError(t, err)

	assert.Equal(t, "tenant-a", gotTenant)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "What are your delivery terms?", gotReq.Query)
	assert.True(t, res.Answered())
	assert.Equal(t, retrieval.SourceWebsite, res.SourceTag)
}

func TestClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"resolve failed","message":"resolve failed","detail":"invalid resolve request: tenant id is required"}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL})
	_, err := c.Resolve(context.Background(), Request{Query: "hello"})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "resolve failed", apiErr.Message)
	assert.Contains(t, apiErr.Error(), "tenant id is required")
}

func TestClient_ErrorWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(ClientConfig{BaseURL: srv.URL}).Health(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusText(http.StatusServiceUnavailable), apiErr.Message)
}

func TestClient_UpsertProductUpdatesRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p Product
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		p.TenantID = r.Header.Get("X-Tenant-ID")
		p.Currency = "USD"
		json.NewEncoder(w).Encode(p)
	}))
	defer srv.Close()

	p := &Product{TenantID: "tenant-a", SKU: "BK-1", Name: "Oak Bookshelf", Price: 220}
	require.NoError(t, NewClient(ClientConfig{BaseURL: srv.URL}).UpsertProduct(context.Background(), p))
	assert.Equal(t, "USD", p.Currency)

	assert.ErrorIs(t, NewClient(ClientConfig{BaseURL: srv.URL}).UpsertProduct(context.Background(), nil), ErrInvalidInput)
}
