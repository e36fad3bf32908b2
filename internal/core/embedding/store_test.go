package embedding

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/repo-analyst/internal/core/document"
)

type stubEmbedder struct {
	dim   int
	fail  bool
	calls int
}

func (e *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls++
	if e.fail {
		return nil, errors.New("provider down")
	}
	v := make([]float32, e.dim)
	// 長さだけで決まるベクトル（検索順序を予測可能にする）
	v[0] = float32(len(text))
	return v, nil
}

func (e *stubEmbedder) ModelName() string { return "stub-model" }
func (e *stubEmbedder) Dimension() int    { return e.dim }

type countingRecorder struct{ n int }

func (r *countingRecorder) IncEmbeddingFallback() { r.n++ }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleDocs(n int) []*document.Document {
	docs := make([]*document.Document, n)
	for i := range docs {
		docs[i] = document.New(fmt.Sprintf("file%d.md", i), fmt.Sprintf("content %d", i))
	}
	return docs
}

func TestFallbackVector_Deterministic(t *testing.T) {
	a1 := FallbackVector("hello", 384)
	a2 := FallbackVector("hello", 384)
	b := FallbackVector("world", 384)

	require.Len(t, a1, 384)
	assert.Equal(t, a1, a2)
	assert.NotEqual(t, a1, b)
}

func TestStore_BuildWithoutProviderUsesFallback(t *testing.T) {
	rec := &countingRecorder{}
	store := NewStore(nil, "sentence-transformers/all-MiniLM-L6-v2",
		WithStoreLogger(discardLogger()),
		WithFallbackRecorder(rec),
	)

	docs := sampleDocs(3)
	require.NoError(t, store.Build(context.Background(), docs))

	assert.True(t, store.Built())
	assert.Equal(t, 3, store.Len())
	assert.Equal(t, DefaultFallbackDimension, store.Dimension())
	assert.Equal(t, FallbackModelName, store.ActiveModelName())
	assert.Equal(t, "sentence-transformers/all-MiniLM-L6-v2", store.ModelName())
	assert.Equal(t, 1, rec.n)
	assert.Equal(t, FallbackVector(docs[0].Content, DefaultFallbackDimension), store.Vectors()[0])
}

func TestStore_BuildEmptyFails(t *testing.T) {
	store := NewStore(nil, "m", WithStoreLogger(discardLogger()))
	require.ErrorIs(t, store.Build(context.Background(), nil), ErrEmptyDocuments)
}

func TestStore_SimilaritySearchBeforeBuild(t *testing.T) {
	store := NewStore(nil, "m", WithStoreLogger(discardLogger()))
	_, err := store.SimilaritySearch(context.Background(), "q", 3)
	require.ErrorIs(t, err, ErrStoreNotBuilt)
}

func TestStore_SimilaritySearchBoundsAndOrder(t *testing.T) {
	store := NewStore(nil, "m", WithStoreLogger(discardLogger()))
	docs := sampleDocs(4)
	require.NoError(t, store.Build(context.Background(), docs))

	results, err := store.SimilaritySearch(context.Background(), docs[2].Content, 10)
	require.NoError(t, err)
	require.Len(t, results, 4)

	// 同一テキストは距離 0 で先頭に来る
	assert.Equal(t, "file2.md", results[0].Document.Path)
	assert.InDelta(t, 0, results[0].Distance, 1e-6)
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i-1].Distance, results[i].Distance)
	}

	top, err := store.SimilaritySearch(context.Background(), "anything", 2)
	require.NoError(t, err)
	assert.Len(t, top, 2)
}

func TestStore_UsesCachedProvider(t *testing.T) {
	stub := &stubEmbedder{dim: 4}
	loads := 0
	cache := NewModelCache(func(ctx context.Context, model string) (Embedder, error) {
		loads++
		return stub, nil
	})

	for range 2 {
		store := NewStore(cache, "stub-model", WithStoreLogger(discardLogger()))
		require.NoError(t, store.Build(context.Background(), sampleDocs(3)))
		assert.Equal(t, 4, store.Dimension())
		assert.Equal(t, "stub-model", store.ActiveModelName())
	}

	assert.Equal(t, 1, loads)
	assert.Equal(t, 1, cache.Len())
}

func TestStore_ProviderFailureFallsBack(t *testing.T) {
	stub := &stubEmbedder{dim: 4, fail: true}
	cache := NewModelCache(func(ctx context.Context, model string) (Embedder, error) {
		return stub, nil
	})
	rec := &countingRecorder{}

	store := NewStore(cache, "stub-model",
		WithStoreLogger(discardLogger()),
		WithFallbackDimension(16),
		WithFallbackRecorder(rec),
	)
	require.NoError(t, store.Build(context.Background(), sampleDocs(2)))

	assert.Equal(t, 16, store.Dimension())
	assert.Equal(t, FallbackModelName, store.ActiveModelName())
	assert.Equal(t, 1, rec.n)
}

func TestModelCache_LoadErrorNotCached(t *testing.T) {
	attempts := 0
	cache := NewModelCache(func(ctx context.Context, model string) (Embedder, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("temporary")
		}
		return &stubEmbedder{dim: 2}, nil
	})

	_, err := cache.Get(context.Background(), "m")
	require.Error(t, err)

	e, err := cache.Get(context.Background(), "m")
	require.NoError(t, err)
	assert.Equal(t, 2, e.Dimension())
	assert.Equal(t, 2, attempts)
}

func TestModelCache_NoLoader(t *testing.T) {
	_, err := NewModelCache(nil).Get(context.Background(), "m")
	require.ErrorIs(t, err, ErrNoProvider)
}
