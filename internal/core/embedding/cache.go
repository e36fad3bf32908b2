package embedding

import (
	"context"
	"fmt"
	"sync"
)

// Loader はモデル名から Embedder を生成する
type Loader func(ctx context.Context, model string) (Embedder, error)

// ModelCache はモデル名ごとに Embedder をプロセス存続期間中保持する。
// 読み込みに失敗したモデルはキャッシュせず、次回再試行する
type ModelCache struct {
	mu     sync.Mutex
	loader Loader
	models map[string]Embedder
}

// NewModelCache は新しい ModelCache を作成する。loader が nil の場合は常に ErrNoProvider を返す
func NewModelCache(loader Loader) *ModelCache {
	return &ModelCache{
		loader: loader,
		models: make(map[string]Embedder),
	}
}

// Get はキャッシュ済みの Embedder を返し、未読み込みなら loader で生成する
func (c *ModelCache) Get(ctx context.Context, model string) (Embedder, error) {
	if c == nil || c.loader == nil || model == "" {
		return nil, ErrNoProvider
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.models[model]; ok {
		return e, nil
	}

	e, err := c.loader(ctx, model)
	if err != nil {
		return nil, fmt.Errorf("failed to load embedding model %s: %w", model, err)
	}
	if e == nil {
		return nil, ErrNoProvider
	}

	c.models[model] = e
	return e, nil
}

// Len はキャッシュ済みモデル数を返す
func (c *ModelCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.models)
}
