package embedding

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"math/rand/v2"
)

// DefaultFallbackDimension はモデルが無い場合のベクトル次元
const DefaultFallbackDimension = 384

// FallbackModelName はフォールバック Embedder のモデル名
const FallbackModelName = "fallback-sha1-normal"

// FallbackEmbedder はテキストの SHA-1 を種にした決定的な疑似乱数ベクトルを返す。
// 意味的な類似度は持たないが、同じテキストからは常に同じベクトルが得られる
type FallbackEmbedder struct {
	dimension int
}

// NewFallbackEmbedder は新しい FallbackEmbedder を作成する
func NewFallbackEmbedder(dimension int) *FallbackEmbedder {
	if dimension <= 0 {
		dimension = DefaultFallbackDimension
	}
	return &FallbackEmbedder{dimension: dimension}
}

// Embed は決定的なベクトルを返す。エラーは返さない
func (e *FallbackEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return FallbackVector(text, e.dimension), nil
}

// ModelName はモデル名を返す
func (e *FallbackEmbedder) ModelName() string {
	return FallbackModelName
}

// Dimension はベクトル次元数を返す
func (e *FallbackEmbedder) Dimension() int {
	return e.dimension
}

// FallbackVector は SHA-1 ダイジェスト先頭 8 バイト（リトルエンディアン）を種に
// 標準正規分布から dim 個の値を生成する
func FallbackVector(text string, dim int) []float32 {
	sum := sha1.Sum([]byte(text))
	seed := binary.LittleEndian.Uint64(sum[:8])
	rng := rand.New(rand.NewPCG(seed, seed))

	v := make([]float32, dim)
	for i := range v {
		v[i] = float32(rng.NormFloat64())
	}
	return v
}

var _ Embedder = (*FallbackEmbedder)(nil)
