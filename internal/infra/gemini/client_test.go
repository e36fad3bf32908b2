package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/repo-analyst/internal/core/llm"
)

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrAPIKeyNotSet)

	_, err = NewEmbedder(context.Background(), "")
	assert.ErrorIs(t, err, ErrAPIKeyNotSet)
}

func TestClient_Complete(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/models/gemini-test:generateContent"), r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"  summary text \n"}]}}]}`))
	}))
	defer srv.Close()

	client, err := NewClient(context.Background(), "test-key", WithModel("gemini-test"), WithBaseURL(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, "gemini-test", client.ModelName())

	text, err := client.Complete(context.Background(), llm.CompletionRequest{
		System:      "You summarize codebases for onboarding engineers.",
		User:        "Provide a summary.",
		Temperature: 0.3,
		MaxTokens:   1200,
	})
	require.NoError(t, err)
	assert.Equal(t, "summary text", text)

	system, ok := received["systemInstruction"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, system["parts"], map[string]any{"text": "You summarize codebases for onboarding engineers."})

	generation, ok := received["generationConfig"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1200), generation["maxOutputTokens"])
	assert.InDelta(t, 0.3, generation["temperature"], 1e-6)
}

func TestClient_CompleteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"API key not valid","status":"PERMISSION_DENIED"}}`))
	}))
	defer srv.Close()

	client, err := NewClient(context.Background(), "bad-key", WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), llm.CompletionRequest{User: "hi"})
	assert.Error(t, err)
}

func TestEmbedder_BatchEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/models/text-embedding-004:")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"embeddings":[{"values":[0.1,0.2]},{"values":[0.3,0.4]}]}`))
	}))
	defer srv.Close()

	embedder, err := NewEmbedder(context.Background(), "test-key", WithBaseURL(srv.URL), WithDimension(2))
	require.NoError(t, err)
	assert.Equal(t, DefaultEmbeddingModel, embedder.ModelName())
	assert.Equal(t, 2, embedder.Dimension())

	vectors, err := embedder.BatchEmbed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.1, 0.2}, {0.3, 0.4}}, vectors)

	_, err = embedder.BatchEmbed(context.Background(), nil)
	assert.Error(t, err)
}
