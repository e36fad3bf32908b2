package embedding

import (
	"fmt"
	"sort"
)

// FlatL2Index は全件走査で二乗 L2 距離の近傍を求める索引
type FlatL2Index struct {
	dim     int
	vectors [][]float32
}

// NewFlatL2Index は次元 dim の空の索引を作成する
func NewFlatL2Index(dim int) *FlatL2Index {
	return &FlatL2Index{dim: dim}
}

// Add はベクトルを追加する。ID は追加順の連番
func (ix *FlatL2Index) Add(vectors ...[]float32) error {
	for i, v := range vectors {
		if len(v) != ix.dim {
			return fmt.Errorf("vector %d has dimension %d, want %d", len(ix.vectors)+i, len(v), ix.dim)
		}
	}
	ix.vectors = append(ix.vectors, vectors...)
	return nil
}

// Len は登録済みベクトル数を返す
func (ix *FlatL2Index) Len() int {
	return len(ix.vectors)
}

// Dimension は次元数を返す
func (ix *FlatL2Index) Dimension() int {
	return ix.dim
}

// Search は query に近い順に k 個の (ID, 距離) を返す。
// 登録数が k 未満の場合、残りの枠は ID -1 で埋める
func (ix *FlatL2Index) Search(query []float32, k int) ([]int, []float32, error) {
	if len(query) != ix.dim {
		return nil, nil, fmt.Errorf("query has dimension %d, want %d", len(query), ix.dim)
	}
	if k <= 0 {
		return nil, nil, nil
	}

	type hit struct {
		id   int
		dist float32
	}
	hits := make([]hit, len(ix.vectors))
	for id, v := range ix.vectors {
		hits[id] = hit{id: id, dist: squaredL2(query, v)}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].dist < hits[j].dist
	})

	ids := make([]int, k)
	dists := make([]float32, k)
	for i := range k {
		if i < len(hits) {
			ids[i] = hits[i].id
			dists[i] = hits[i].dist
			continue
		}
		ids[i] = -1
		dists[i] = float32(0)
	}
	return ids, dists, nil
}

func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
