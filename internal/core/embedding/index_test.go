package embedding

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlatL2Index_SearchPadsMissingSlots(t *testing.T) {
	ix := NewFlatL2Index(2)
	require.NoError(t, ix.Add([]float32{0, 0}, []float32{3, 4}))

	ids, dists, err := ix.Search([]float32{0, 0}, 4)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, -1, -1}, ids)
	assert.Equal(t, float32(0), dists[0])
	assert.Equal(t, float32(25), dists[1])
}

func TestFlatL2Index_DimensionMismatch(t *testing.T) {
	ix := NewFlatL2Index(3)
	require.Error(t, ix.Add([]float32{1, 2}))

	_, _, err := ix.Search([]float32{1}, 1)
	require.Error(t, err)
}

func TestCachedEmbedder_MemoizesQueries(t *testing.T) {
	stub := &stubEmbedder{dim: 3}
	cached := WrapWithLRU(stub, 8, time.Minute)

	v1, err := cached.Embed(context.Background(), "query")
	require.NoError(t, err)
	v2, err := cached.Embed(context.Background(), "query")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, stub.calls)
	assert.Equal(t, "stub-model", cached.ModelName())
	assert.Equal(t, 3, cached.Dimension())

	// 返したベクトルを書き換えてもキャッシュは影響を受けない
	v2[0] = 999
	v3, err := cached.Embed(context.Background(), "query")
	require.NoError(t, err)
	assert.NotEqual(t, float32(999), v3[0])
}

func TestWrapWithLRU_DisabledReturnsNext(t *testing.T) {
	stub := &stubEmbedder{dim: 1}
	assert.Same(t, Embedder(stub), WrapWithLRU(stub, 0, time.Minute))
}
