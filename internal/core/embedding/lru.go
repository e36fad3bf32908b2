package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CachedEmbedder は問い合わせ文のベクトルを LRU に保持する Embedder
type CachedEmbedder struct {
	next  Embedder
	cache *expirable.LRU[string, []float32]
}

// WrapWithLRU は next を LRU キャッシュで包む。size か ttl が 0 以下なら next をそのまま返す
func WrapWithLRU(next Embedder, size int, ttl time.Duration) Embedder {
	if next == nil || size <= 0 || ttl <= 0 {
		return next
	}
	return &CachedEmbedder{
		next:  next,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

// Embed はキャッシュを参照し、無ければ next に委譲する
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(c.next.ModelName(), text)
	if cached, ok := c.cache.Get(key); ok {
		return cloneVector(cached), nil
	}
	v, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, cloneVector(v))
	return v, nil
}

// BatchEmbed は next が一括変換に対応していれば委譲する
func (c *CachedEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	if be, ok := c.next.(BatchEmbedder); ok {
		return be.BatchEmbed(ctx, texts)
	}
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		v, err := c.next.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// MaxBatchSize は next の上限を返す。一括変換非対応なら 1
func (c *CachedEmbedder) MaxBatchSize() int {
	if be, ok := c.next.(BatchEmbedder); ok {
		return be.MaxBatchSize()
	}
	return 1
}

// ModelName はモデル名を返す
func (c *CachedEmbedder) ModelName() string {
	return c.next.ModelName()
}

// Dimension はベクトル次元数を返す
func (c *CachedEmbedder) Dimension() int {
	return c.next.Dimension()
}

func cacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return model + ":" + hex.EncodeToString(sum[:])
}

func cloneVector(v []float32) []float32 {
	if len(v) == 0 {
		return nil
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out
}

var _ BatchEmbedder = (*CachedEmbedder)(nil)
