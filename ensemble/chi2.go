package ensemble

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/ubayfs/preprocessing"
)

// ChiSquare は分類問題向けのカイ二乗統計量ランカー
// 負の値を含むデータは [0,1] に min-max スケーリングしてから評価する。
type ChiSquare struct{}

// Name implements Namer.
func (ChiSquare) Name() string { return "chi2" }

// Rank implements FeatureRanker.
func (ChiSquare) Rank(X *mat.Dense, y []float64, k int) ([]int, error) {
	const op = "ChiSquare.Rank"
	if err := checkInput(op, X, y, k); err != nil {
		return nil, err
	}
	_, members, err := classes(op, y)
	if err != nil {
		return nil, err
	}

	data := X
	if preprocessing.HasNegative(X) {
		data, err = preprocessing.NewMinMaxScalerDefault().FitTransform(X)
		if err != nil {
			return nil, err
		}
	}

	return topK(chi2(data, members), k), nil
}

// chi2 は各特徴量について観測度数（クラスごとの列和）と
// 期待度数（クラス比率 × 列和）から統計量を計算する
func chi2(X *mat.Dense, members [][]int) []float64 {
	n, p := X.Dims()
	scores := make([]float64, p)
	for j := 0; j < p; j++ {
		col := mat.Col(nil, j, X)
		var total float64
		for _, v := range col {
			total += v
		}
		for _, rows := range members {
			var observed float64
			for _, i := range rows {
				observed += col[i]
			}
			expected := total * float64(len(rows)) / float64(n)
			if expected > 0 {
				d := observed - expected
				scores[j] += d * d / expected
			}
		}
	}
	return scores
}
