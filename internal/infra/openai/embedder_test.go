package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEmbedderOptionsOverrideDefaults(t *testing.T) {
	embedder, err := NewEmbedder("dummy-key",
		WithEmbeddingModel("custom-model"),
		WithEmbeddingDimension(42),
	)
	require.NoError(t, err)

	assert.Equal(t, "custom-model", embedder.ModelName())
	assert.Equal(t, 42, embedder.Dimension())
	assert.Equal(t, 100, embedder.MaxBatchSize())
}

func TestNewEmbedderRequiresAPIKey(t *testing.T) {
	_, err := NewEmbedder("")
	assert.ErrorIs(t, err, ErrAPIKeyNotSet)
}

func TestEmbedder_BatchEmbedOrdersByIndex(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"object": "list",
			"model": "text-embedding-3-small",
			"data": [
				{"object": "embedding", "index": 1, "embedding": [0.5, 0.25]},
				{"object": "embedding", "index": 0, "embedding": [1, 2]}
			],
			"usage": {"prompt_tokens": 4, "total_tokens": 4}
		}`))
	}))
	defer srv.Close()

	embedder, err := NewEmbedder("test-key", WithEmbeddingBaseURL(srv.URL+"/"), WithEmbeddingDimension(2))
	require.NoError(t, err)

	vectors, err := embedder.BatchEmbed(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 2}, {0.5, 0.25}}, vectors)

	assert.Equal(t, "text-embedding-3-small", received["model"])
	assert.Equal(t, []any{"first", "second"}, received["input"])
	assert.Equal(t, float64(2), received["dimensions"])
}

func TestEmbedder_BatchEmbedRejectsInvalidInput(t *testing.T) {
	embedder, err := NewEmbedder("test-key")
	require.NoError(t, err)

	_, err = embedder.BatchEmbed(context.Background(), nil)
	assert.Error(t, err)

	_, err = embedder.BatchEmbed(context.Background(), make([]string, 101))
	assert.Error(t, err)
}
