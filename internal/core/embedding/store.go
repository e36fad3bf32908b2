package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jinford/repo-analyst/internal/core/document"
)

// Result は類似検索の1件
type Result struct {
	Document *document.Document
	Distance float32
}

// Store はリクエスト単位で構築されるベクトルストア
type Store struct {
	cache       *ModelCache
	modelName   string
	fallbackDim int
	logger      *slog.Logger
	recorder    FallbackRecorder

	active  Embedder
	index   *FlatL2Index
	docs    []*document.Document
	vectors [][]float32
}

type storeOptions struct {
	logger      *slog.Logger
	fallbackDim int
	recorder    FallbackRecorder
}

// StoreOption は Store のオプション設定
type StoreOption func(*storeOptions)

// WithStoreLogger はロガーを差し替える
func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(o *storeOptions) {
		o.logger = logger
	}
}

// WithFallbackDimension はフォールバック時のベクトル次元を指定する
func WithFallbackDimension(dim int) StoreOption {
	return func(o *storeOptions) {
		o.fallbackDim = dim
	}
}

// WithFallbackRecorder はフォールバック発生の記録先を指定する
func WithFallbackRecorder(recorder FallbackRecorder) StoreOption {
	return func(o *storeOptions) {
		o.recorder = recorder
	}
}

// NewStore は新しい Store を作成する。cache が nil の場合は常にフォールバックを使う
func NewStore(cache *ModelCache, modelName string, opts ...StoreOption) *Store {
	options := storeOptions{
		logger:      slog.Default(),
		fallbackDim: DefaultFallbackDimension,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Store{
		cache:       cache,
		modelName:   modelName,
		fallbackDim: options.fallbackDim,
		logger:      options.logger,
		recorder:    options.recorder,
	}
}

// Build はドキュメントごとにベクトルを生成し索引を構築する。
// プロバイダが利用できない場合や失敗した場合はフォールバックで構築する
func (s *Store) Build(ctx context.Context, docs []*document.Document) error {
	if len(docs) == 0 {
		return ErrEmptyDocuments
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Content
	}

	embedder, vectors, err := s.embedWithProvider(ctx, texts)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !errors.Is(err, ErrNoProvider) {
			s.logger.Warn("Embeddingモデルの利用に失敗したためフォールバックを使用します",
				"model", s.modelName,
				"error", err,
			)
		}
		if s.recorder != nil {
			s.recorder.IncEmbeddingFallback()
		}
		embedder = NewFallbackEmbedder(s.fallbackDim)
		vectors, err = embedAll(ctx, embedder, texts)
		if err != nil {
			return fmt.Errorf("failed to build fallback embeddings: %w", err)
		}
	}

	index := NewFlatL2Index(len(vectors[0]))
	if err := index.Add(vectors...); err != nil {
		return fmt.Errorf("failed to add vectors to index: %w", err)
	}

	s.active = embedder
	s.index = index
	s.docs = docs
	s.vectors = vectors

	s.logger.Debug("ベクトルストアを構築しました",
		"documents", len(docs),
		"model", embedder.ModelName(),
		"dimension", index.Dimension(),
	)
	return nil
}

// embedWithProvider はキャッシュ済みモデルでベクトルを生成し、次元の一貫性を検証する
func (s *Store) embedWithProvider(ctx context.Context, texts []string) (Embedder, [][]float32, error) {
	embedder, err := s.cache.Get(ctx, s.modelName)
	if err != nil {
		return nil, nil, err
	}

	vectors, err := embedAll(ctx, embedder, texts)
	if err != nil {
		return nil, nil, err
	}
	if len(vectors) != len(texts) {
		return nil, nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(texts))
	}

	dim := len(vectors[0])
	if dim == 0 {
		return nil, nil, fmt.Errorf("empty embedding vector")
	}
	for i, v := range vectors {
		if len(v) != dim {
			return nil, nil, fmt.Errorf("embedding %d has dimension %d, want %d", i, len(v), dim)
		}
	}
	return embedder, vectors, nil
}

// SimilaritySearch は query に近いドキュメントを距離の昇順に最大 min(k, n) 件返す
func (s *Store) SimilaritySearch(ctx context.Context, query string, k int) ([]Result, error) {
	if s.index == nil {
		return nil, ErrStoreNotBuilt
	}

	qv, err := s.active.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	ids, dists, err := s.index.Search(qv, k)
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}

	results := make([]Result, 0, len(ids))
	for i, id := range ids {
		if id < 0 {
			continue
		}
		results = append(results, Result{Document: s.docs[id], Distance: dists[i]})
	}
	return results, nil
}

// ModelName は設定上のモデル名を返す
func (s *Store) ModelName() string {
	return s.modelName
}

// ActiveModelName は実際にベクトル生成に使ったモデル名を返す
func (s *Store) ActiveModelName() string {
	if s.active == nil {
		return ""
	}
	return s.active.ModelName()
}

// Dimension は構築済み索引の次元数を返す。未構築なら 0
func (s *Store) Dimension() int {
	if s.index == nil {
		return 0
	}
	return s.index.Dimension()
}

// Len は索引に登録されたドキュメント数を返す
func (s *Store) Len() int {
	return len(s.docs)
}

// Built は索引が構築済みかどうかを返す
func (s *Store) Built() bool {
	return s.index != nil
}

// Vectors はドキュメント順のベクトルを返す
func (s *Store) Vectors() [][]float32 {
	return s.vectors
}
