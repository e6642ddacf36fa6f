package ensemble

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// MRMR は最小冗長・最大関連 (minimum Redundancy Maximum Relevance) ランカー
//
// 関連度は F 値（0/1目的変数なら分散分析、それ以外は回帰）、冗長度は選択済み
// 特徴量との相関の絶対値の平均で、関連度/冗長度 (FCQ) が最大の特徴量を
// 貪欲に選ぶ。
type MRMR struct{}

// minRedundancy は FCQ の分母の下限
const minRedundancy = 1e-3

// Name implements Namer.
func (MRMR) Name() string { return "mrmr" }

// Rank implements FeatureRanker.
func (MRMR) Rank(X *mat.Dense, y []float64, k int) ([]int, error) {
	const op = "MRMR.Rank"
	if err := checkInput(op, X, y, k); err != nil {
		return nil, err
	}

	var relevance []float64
	if IsBinary(y) {
		_, members, err := classes(op, y)
		if err != nil {
			return nil, err
		}
		relevance = fClassif(X, members)
	} else {
		relevance = fRegression(X, y)
	}

	_, p := X.Dims()
	k = min(k, p)

	cols := make([][]float64, p)
	for j := range cols {
		cols[j] = mat.Col(nil, j, X)
	}

	selected := make([]int, 0, k)
	chosen := make([]bool, p)
	redundancy := make([]float64, p)

	for len(selected) < k {
		best, bestScore := -1, math.Inf(-1)
		for j := 0; j < p; j++ {
			if chosen[j] {
				continue
			}
			den := 1.0
			if len(selected) > 0 {
				den = math.Max(redundancy[j]/float64(len(selected)), minRedundancy)
			}
			score := relevance[j] / den
			if best < 0 || score > bestScore {
				best, bestScore = j, score
			}
		}

		selected = append(selected, best)
		chosen[best] = true
		for j := 0; j < p; j++ {
			if chosen[j] {
				continue
			}
			r := stat.Correlation(cols[j], cols[best], nil)
			if !math.IsNaN(r) {
				redundancy[j] += math.Abs(r)
			}
		}
	}
	return selected, nil
}
