package embedding

import (
	"context"
	"errors"
)

var (
	// ErrNoProvider はEmbeddingプロバイダが設定されていないことを示す
	ErrNoProvider = errors.New("embedding provider not configured")

	// ErrEmptyDocuments は空のドキュメント集合でインデックスを構築しようとしたことを示す
	ErrEmptyDocuments = errors.New("cannot build embedding store from empty documents")

	// ErrStoreNotBuilt は未構築のストアを検索しようとしたことを示す
	ErrStoreNotBuilt = errors.New("vector store has not been built")
)

// Embedder はテキストをベクトルに変換する
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	ModelName() string
	Dimension() int
}

// BatchEmbedder は複数テキストをまとめて変換できる Embedder
type BatchEmbedder interface {
	Embedder
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)
	MaxBatchSize() int
}

// FallbackRecorder はフォールバック発生を記録する
type FallbackRecorder interface {
	IncEmbeddingFallback()
}

// embedAll は Embedder の能力に応じて一括または逐次で変換する
func embedAll(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	if be, ok := e.(BatchEmbedder); ok && be.MaxBatchSize() > 0 {
		vectors := make([][]float32, 0, len(texts))
		size := be.MaxBatchSize()
		for start := 0; start < len(texts); start += size {
			end := min(start+size, len(texts))
			batch, err := be.BatchEmbed(ctx, texts[start:end])
			if err != nil {
				return nil, err
			}
			if len(batch) != end-start {
				return nil, errors.New("embedding count does not match input count")
			}
			vectors = append(vectors, batch...)
		}
		return vectors, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, v)
	}
	return vectors, nil
}
