package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/jinford/repo-analyst/internal/core/embedding"
)

const (
	// DefaultEmbeddingModel はモデル未指定時のデフォルトモデル
	DefaultEmbeddingModel = "text-embedding-3-small"
	// DefaultEmbeddingDimension は text-embedding-3-small の次元
	DefaultEmbeddingDimension = 1536

	maxBatchSize = 100
)

// Embedder は OpenAI Embeddings API の embedding.BatchEmbedder 実装
type Embedder struct {
	client    openai.Client
	model     string
	dimension int
}

type embedderOptions struct {
	model       string
	dimension   int
	requestOpts []option.RequestOption
}

// EmbedderOption は Embedder のオプション設定
type EmbedderOption func(*embedderOptions)

// WithEmbeddingModel はモデル名を上書きする
func WithEmbeddingModel(model string) EmbedderOption {
	return func(o *embedderOptions) {
		if model != "" {
			o.model = model
		}
	}
}

// WithEmbeddingDimension は出力次元を指定する。0 ならモデルの既定次元
func WithEmbeddingDimension(dimension int) EmbedderOption {
	return func(o *embedderOptions) {
		o.dimension = dimension
	}
}

// WithEmbeddingBaseURL は API のエンドポイントを差し替える
func WithEmbeddingBaseURL(url string) EmbedderOption {
	return func(o *embedderOptions) {
		o.requestOpts = append(o.requestOpts, option.WithBaseURL(url))
	}
}

// NewEmbedder は Embedder を生成する。API キーが空ならエラー
func NewEmbedder(apiKey string, opts ...EmbedderOption) (*Embedder, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	o := embedderOptions{
		model:     DefaultEmbeddingModel,
		dimension: DefaultEmbeddingDimension,
	}
	for _, opt := range opts {
		opt(&o)
	}

	reqOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, o.requestOpts...)
	return &Embedder{
		client:    openai.NewClient(reqOpts...),
		model:     o.model,
		dimension: o.dimension,
	}, nil
}

// Embed は1件のテキストを変換する
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// BatchEmbed は最大 MaxBatchSize 件をまとめて変換する。戻り値は入力と同じ順序
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	switch {
	case len(texts) == 0:
		return nil, fmt.Errorf("no texts provided")
	case len(texts) > maxBatchSize:
		return nil, fmt.Errorf("batch size %d exceeds maximum of %d", len(texts), maxBatchSize)
	}

	resp, err := e.client.Embeddings.New(ctx, e.params(texts))
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	return collectVectors(resp.Data, len(texts))
}

func (e *Embedder) params(texts []string) openai.EmbeddingNewParams {
	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	}
	if e.dimension > 0 {
		params.Dimensions = openai.Int(int64(e.dimension))
	}
	return params
}

// collectVectors は index に従って応答を入力順に並べ直す
func collectVectors(data []openai.Embedding, n int) ([][]float32, error) {
	vectors := make([][]float32, n)
	for _, d := range data {
		if d.Index < 0 || int(d.Index) >= n {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		vectors[d.Index] = vec
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("missing embedding for input %d", i)
		}
	}
	return vectors, nil
}

// ModelName はモデル名を返す
func (e *Embedder) ModelName() string {
	return e.model
}

// Dimension は要求する次元数を返す
func (e *Embedder) Dimension() int {
	return e.dimension
}

// MaxBatchSize は1リクエストあたりの入力上限
func (e *Embedder) MaxBatchSize() int {
	return maxBatchSize
}

var _ embedding.BatchEmbedder = (*Embedder)(nil)
