// Package metrics は特徴量集合の記述統計（特徴量間の相関）を提供する。
package metrics

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/ubayfs/pkg/errors"
)

// Method は相関係数の種類
type Method string

const (
	// Pearson は積率相関係数
	Pearson Method = "pearson"
	// Spearman は順位相関係数（同順位は平均順位）
	Spearman Method = "spearman"
)

// ParseMethod は文字列から相関の種類を返す
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case Pearson, Spearman:
		return Method(s), nil
	}
	return "", errors.NewConfigurationErrorf("metrics.ParseMethod", "unknown correlation method %q", s)
}

// PearsonCorrelation は x と y のピアソン相関係数を計算する
// 分散が0の場合は NaN を返す。
func PearsonCorrelation(x, y []float64) (float64, error) {
	if len(x) == 0 {
		return 0, errors.NewDataError("PearsonCorrelation", "empty vector")
	}
	if len(x) != len(y) {
		return 0, errors.NewDimensionError("PearsonCorrelation", len(x), len(y), 0)
	}
	return stat.Correlation(x, y, nil), nil
}

// SpearmanCorrelation は x と y のスピアマン順位相関係数を計算する
func SpearmanCorrelation(x, y []float64) (float64, error) {
	if len(x) == 0 {
		return 0, errors.NewDataError("SpearmanCorrelation", "empty vector")
	}
	if len(x) != len(y) {
		return 0, errors.NewDimensionError("SpearmanCorrelation", len(x), len(y), 0)
	}
	return stat.Correlation(Rank(x), Rank(y), nil), nil
}

// Rank は1始まりの順位を返す。同順位には平均順位を与える
func Rank(x []float64) []float64 {
	idx := make([]int, len(x))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		switch {
		case x[a] < x[b]:
			return -1
		case x[a] > x[b]:
			return 1
		}
		return 0
	})

	ranks := make([]float64, len(x))
	for i := 0; i < len(idx); {
		j := i
		for j+1 < len(idx) && x[idx[j+1]] == x[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[idx[k]] = avg
		}
		i = j + 1
	}
	return ranks
}

// CorrelationMatrix は X の指定列間の相関行列を計算する
//
// パラメータ:
//   - X: データ (n_samples × n_features)
//   - cols: 対象とする列インデックス
//   - method: Pearson または Spearman
func CorrelationMatrix(X mat.Matrix, cols []int, method Method) (*mat.SymDense, error) {
	const op = "CorrelationMatrix"

	r, c := X.Dims()
	if r == 0 || len(cols) == 0 {
		return nil, errors.NewDataError(op, "empty data")
	}

	columns := make([][]float64, len(cols))
	for k, j := range cols {
		if j < 0 || j >= c {
			return nil, errors.NewDimensionError(op, c, j, 1)
		}
		columns[k] = mat.Col(nil, j, X)
		if method == Spearman {
			columns[k] = Rank(columns[k])
		} else if method != Pearson {
			return nil, errors.NewConfigurationErrorf(op, "unknown correlation method %q", method)
		}
	}

	corr := mat.NewSymDense(len(cols), nil)
	for a := range columns {
		corr.SetSym(a, a, 1)
		for b := a + 1; b < len(columns); b++ {
			corr.SetSym(a, b, stat.Correlation(columns[a], columns[b], nil))
		}
	}
	return corr, nil
}

// AverageAbsCorrelation は選択された特徴量間の相関の絶対値を非対角要素で平均する
// 選択された特徴量が2未満の場合は nil を返す。
func AverageAbsCorrelation(X mat.Matrix, state []float64, method Method) (*float64, error) {
	_, c := X.Dims()
	if len(state) != c {
		return nil, errors.NewDimensionError("AverageAbsCorrelation", c, len(state), 0)
	}

	var cols []int
	for j, s := range state {
		if s == 1 {
			cols = append(cols, j)
		}
	}
	if len(cols) < 2 {
		return nil, nil
	}

	corr, err := CorrelationMatrix(X, cols, method)
	if err != nil {
		return nil, err
	}

	k := len(cols)
	var sum float64
	for a := 0; a < k; a++ {
		for b := a + 1; b < k; b++ {
			sum += 2 * math.Abs(corr.At(a, b))
		}
	}
	avg := sum / float64(k*(k-1))
	return &avg, nil
}
