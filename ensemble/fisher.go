package ensemble

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// FisherScore は分類問題向けのフィッシャースコアランカー
//
//	F_j = Σ_c n_c (μ_cj - μ_j)² / Σ_c n_c σ²_cj
type FisherScore struct{}

// Name implements Namer.
func (FisherScore) Name() string { return "fisher" }

// Rank implements FeatureRanker.
func (FisherScore) Rank(X *mat.Dense, y []float64, k int) ([]int, error) {
	const op = "FisherScore.Rank"
	if err := checkInput(op, X, y, k); err != nil {
		return nil, err
	}
	_, members, err := classes(op, y)
	if err != nil {
		return nil, err
	}

	_, p := X.Dims()
	scores := make([]float64, p)
	for j := 0; j < p; j++ {
		col := mat.Col(nil, j, X)
		mu := stat.Mean(col, nil)

		var between, within float64
		for _, rows := range members {
			vals := gather(col, rows)
			mc, vc := stat.PopMeanVariance(vals, nil)
			nc := float64(len(rows))
			between += nc * (mc - mu) * (mc - mu)
			within += nc * vc
		}
		scores[j] = ratio(between, within)
	}
	return topK(scores, k), nil
}
