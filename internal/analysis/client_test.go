package analysis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/analyze", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var req analyzeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "medication_review", req.AnalysisType)

		json.NewEncoder(w).Encode(analyzeResponse{Result: "two interacting medications found"})
	}))
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL})
	result, err := c.AnalyzeDocument(context.Background(), "discharge summary text", "medication_review")
	require.NoError(t, err)
	assert.Equal(t, "two interacting medications found", result)
}

func TestAnalyzeDocumentServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(analyzeResponse{Error: "unsupported analysis type"})
	}))
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL})
	_, err := c.AnalyzeDocument(context.Background(), "text", "bogus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported analysis type")
}

func TestAnalyzeDocumentUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL})
	_, err := c.AnalyzeDocument(context.Background(), "text", "summary")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestDisabledClient(t *testing.T) {
	c := NewClient(Config{})
	assert.False(t, c.Enabled())

	_, err := c.AnalyzeDocument(context.Background(), "text", "summary")
	assert.ErrorIs(t, err, ErrUnavailable)
}
