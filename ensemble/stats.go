package ensemble

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// fClassif は各特徴量の一元配置分散分析の F 値を返す
// 群内平方和が0の場合、群間平方和が正なら +Inf、そうでなければ0
func fClassif(X *mat.Dense, members [][]int) []float64 {
	n, p := X.Dims()
	k := len(members)
	scores := make([]float64, p)

	for j := 0; j < p; j++ {
		col := mat.Col(nil, j, X)
		mu := stat.Mean(col, nil)

		var ssb, ssw float64
		for _, rows := range members {
			vals := gather(col, rows)
			mc := stat.Mean(vals, nil)
			ssb += float64(len(rows)) * (mc - mu) * (mc - mu)
			for _, v := range vals {
				ssw += (v - mc) * (v - mc)
			}
		}
		scores[j] = ratio(ssb/float64(k-1), ssw/float64(n-k))
	}
	return scores
}

// fRegression は各特徴量と目的変数の相関から F 値を計算する
//
//	F = r² / (1 - r²) · (n - 2)
func fRegression(X *mat.Dense, y []float64) []float64 {
	n, p := X.Dims()
	scores := make([]float64, p)
	for j := 0; j < p; j++ {
		r := stat.Correlation(mat.Col(nil, j, X), y, nil)
		if math.IsNaN(r) {
			continue
		}
		scores[j] = ratio(r*r, 1-r*r) * float64(n-2)
	}
	return scores
}

func ratio(num, den float64) float64 {
	switch {
	case den > 0:
		return num / den
	case num > 0:
		return math.Inf(1)
	}
	return 0
}

func gather(col []float64, rows []int) []float64 {
	out := make([]float64, len(rows))
	for k, i := range rows {
		out[k] = col[i]
	}
	return out
}
