// Package ensemble は再標本化したデータに対して特徴量ランキングを繰り返し、
// 特徴量ごとの選択回数（アンサンブルカウント）を集計する。
package ensemble

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/ubayfs/pkg/errors"
)

// FeatureRanker は学習データから上位 k 個の特徴量インデックスを選ぶ
//
// 返すインデックスは X の列番号。k より少ない数を返してもよい。
// Counter は既定では逐次に呼び出す。WithWorkers で2以上を指定した場合は
// 同じランカーが複数の goroutine から同時に呼ばれるため、並行安全である必要がある。
type FeatureRanker interface {
	Rank(X *mat.Dense, y []float64, k int) ([]int, error)
}

// Namer は名前を持つランカー。ログと失敗の集計に使われる
type Namer interface {
	Name() string
}

// RankerFunc は関数を FeatureRanker として使うためのアダプタ
// 複数ワーカーで使う場合、関数が捕捉する状態は呼び出し側で同期すること。
type RankerFunc func(X *mat.Dense, y []float64, k int) ([]int, error)

// Rank implements FeatureRanker.
func (f RankerFunc) Rank(X *mat.Dense, y []float64, k int) ([]int, error) {
	return f(X, y, k)
}

// Name implements Namer.
func (f RankerFunc) Name() string {
	return "custom"
}

// NameOf はランカーの名前を返す
func NameOf(r FeatureRanker) string {
	if n, ok := r.(Namer); ok {
		return n.Name()
	}
	return "custom"
}

// ByName は組み込みランカーを名前から返す
// 受け付ける名前: "mrmr", "mRMR", "chi2", "chi_square", "fisher", "fisher_score"
func ByName(name string) (FeatureRanker, error) {
	switch name {
	case "mrmr", "mRMR":
		return MRMR{}, nil
	case "chi2", "chi_square":
		return ChiSquare{}, nil
	case "fisher", "fisher_score":
		return FisherScore{}, nil
	}
	return nil, errors.NewConfigurationErrorf("ensemble.ByName", "unknown ranking method %q", name)
}

// IsBinary は目的変数が0/1のみからなるかを返す
func IsBinary(y []float64) bool {
	for _, v := range y {
		if v != 0 && v != 1 {
			return false
		}
	}
	return true
}

// classes は離散ラベルごとの行インデックスを昇順のラベルで返す
func classes(op string, y []float64) ([]float64, [][]int, error) {
	byLabel := make(map[float64][]int)
	for i, v := range y {
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return nil, nil, errors.NewDataError(op, "classification target must contain integer labels")
		}
		byLabel[v] = append(byLabel[v], i)
	}
	if len(byLabel) < 2 {
		return nil, nil, errors.NewDataError(op, "at least two classes are required")
	}

	labels := make([]float64, 0, len(byLabel))
	for l := range byLabel {
		labels = append(labels, l)
	}
	slices.Sort(labels)

	members := make([][]int, len(labels))
	for i, l := range labels {
		members[i] = byLabel[l]
	}
	return labels, members, nil
}

// topK はスコアの降順で上位 k 個のインデックスを返す。同点はインデックス順
func topK(scores []float64, k int) []int {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		sa, sb := scores[a], scores[b]
		if math.IsNaN(sa) {
			sa = math.Inf(-1)
		}
		if math.IsNaN(sb) {
			sb = math.Inf(-1)
		}
		switch {
		case sa > sb:
			return -1
		case sa < sb:
			return 1
		}
		return 0
	})
	return idx[:min(k, len(idx))]
}

func checkInput(op string, X *mat.Dense, y []float64, k int) error {
	if X == nil {
		return errors.NewDataError(op, "data must not be nil")
	}
	r, c := X.Dims()
	if r != len(y) {
		return errors.NewDimensionError(op, r, len(y), 0)
	}
	if c == 0 || r < 2 {
		return errors.NewDataError(op, "at least two samples and one feature are required")
	}
	if k <= 0 {
		return errors.NewConfigurationErrorf(op, "number of features must be positive, got %d", k)
	}
	return nil
}
