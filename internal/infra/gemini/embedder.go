package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/jinford/repo-analyst/internal/core/embedding"
)

const (
	// DefaultEmbeddingModel はデフォルトの Embedding モデル
	DefaultEmbeddingModel = "text-embedding-004"

	maxBatchSize = 100
)

// Embedder は Gemini の EmbedContent を使った embedding.BatchEmbedder 実装
type Embedder struct {
	client    *genai.Client
	model     string
	dimension int
}

// NewEmbedder は新しい Embedder を作成する
func NewEmbedder(ctx context.Context, apiKey string, opts ...Option) (*Embedder, error) {
	o := options{model: DefaultEmbeddingModel}
	for _, opt := range opts {
		opt(&o)
	}

	client, err := newGenAIClient(ctx, apiKey, o)
	if err != nil {
		return nil, err
	}

	return &Embedder{client: client, model: o.model, dimension: o.dimension}, nil
}

// Embed は単一テキストの Embedding を生成する
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// BatchEmbed は複数テキストをまとめて変換する
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts provided")
	}
	if len(texts) > maxBatchSize {
		return nil, fmt.Errorf("batch size exceeds maximum of %d", maxBatchSize)
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = &genai.Content{Parts: []*genai.Part{{Text: text}}}
	}

	config := &genai.EmbedContentConfig{TaskType: "RETRIEVAL_DOCUMENT"}
	if e.dimension > 0 {
		config.OutputDimensionality = genai.Ptr(int32(e.dimension))
	}

	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("no embedding values returned for input %d", i)
		}
		vectors[i] = emb.Values
	}
	return vectors, nil
}

// ModelName はモデル名を返す
func (e *Embedder) ModelName() string {
	return e.model
}

// Dimension は指定された出力次元を返す。0 はモデル既定
func (e *Embedder) Dimension() int {
	return e.dimension
}

// MaxBatchSize はバッチ処理の最大サイズを返す
func (e *Embedder) MaxBatchSize() int {
	return maxBatchSize
}

var _ embedding.BatchEmbedder = (*Embedder)(nil)
