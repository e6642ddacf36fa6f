// Package posterior は事前重みとアンサンブル選択回数からディリクレ型の事後期待値を計算する。
package posterior

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/ubayfs/constraint"
	"github.com/YuminosukeSato/ubayfs/pkg/errors"
)

// Weights は特徴量ごとの正の事前重み（擬似カウント）
type Weights struct {
	values []float64
}

// Option はブロック単位の重み指定を行う関数オプション
type Option func(*config)

type config struct {
	blockMatrix mat.Matrix
	blockList   [][]int
}

// WithBlockMatrix はブロック単位の重みを blockMatrixᵀ·w で特徴量に展開する
func WithBlockMatrix(m mat.Matrix) Option {
	return func(c *config) {
		c.blockMatrix = m
	}
}

// WithBlockList はブロックリストからブロック行列を作って重みを展開する
func WithBlockList(list [][]int) Option {
	return func(c *config) {
		c.blockList = list
	}
}

// NewWeights は事前重みを作成する
//
// パラメータ:
//   - numFeatures: 特徴量数
//   - w: 重み。長さ1ならブロードキャスト。ブロック指定時はブロック数と同じ長さ
//
// 全ての重みは正でなければならない。
func NewWeights(numFeatures int, w []float64, opts ...Option) (*Weights, error) {
	const op = "posterior.NewWeights"

	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	if numFeatures <= 0 {
		return nil, errors.NewConfigurationError(op, "number of features must be positive")
	}
	if len(w) == 0 {
		return nil, errors.NewConfigurationError(op, "weights must not be empty")
	}
	for _, v := range w {
		if !(v > 0) || math.IsInf(v, 1) {
			return nil, errors.NewConfigurationErrorf(op, "weights must be positive and finite, got %v", v)
		}
	}

	block, err := resolveBlock(op, cfg, numFeatures)
	if err != nil {
		return nil, err
	}

	if block == nil {
		values, err := broadcast(op, w, numFeatures)
		if err != nil {
			return nil, err
		}
		return &Weights{values: values}, nil
	}

	nBlocks, _ := block.Dims()
	bw, err := broadcast(op, w, nBlocks)
	if err != nil {
		return nil, err
	}

	var expanded mat.VecDense
	expanded.MulVec(block.T(), mat.NewVecDense(nBlocks, bw))
	values := make([]float64, numFeatures)
	for i := range values {
		values[i] = expanded.AtVec(i)
		if !(values[i] > 0) {
			return nil, errors.NewConfigurationErrorf(op, "feature %d is not covered by any block", i)
		}
	}
	return &Weights{values: values}, nil
}

// Uniform は全ての特徴量に同じ重み w を与える
func Uniform(numFeatures int, w float64) (*Weights, error) {
	return NewWeights(numFeatures, []float64{w})
}

func resolveBlock(op string, cfg config, numFeatures int) (mat.Matrix, error) {
	switch {
	case cfg.blockMatrix != nil && cfg.blockList != nil:
		return nil, errors.NewConfigurationError(op, "block matrix and block list are mutually exclusive")
	case cfg.blockList != nil:
		return constraint.BlockMatrixFromList(cfg.blockList, numFeatures)
	case cfg.blockMatrix != nil:
		_, c := cfg.blockMatrix.Dims()
		if c != numFeatures {
			return nil, errors.NewDimensionError(op, numFeatures, c, 1)
		}
		return cfg.blockMatrix, nil
	}
	return nil, nil
}

func broadcast(op string, w []float64, n int) ([]float64, error) {
	out := make([]float64, n)
	switch len(w) {
	case 1:
		for i := range out {
			out[i] = w[0]
		}
	case n:
		copy(out, w)
	default:
		return nil, errors.NewDimensionError(op, n, len(w), 0)
	}
	return out, nil
}

// Values は重みのコピーを返す
func (w *Weights) Values() []float64 {
	return append([]float64(nil), w.values...)
}

// Len は特徴量数を返す
func (w *Weights) Len() int {
	return len(w.values)
}

// Expectation は対数スケールの事後期待値を返す
//
//	log(counts + weights) - log(sum(counts + weights))
//
// 重みは擬似カウントとして働く。exp した結果の総和は1になる。
func Expectation(counts []float64, weights *Weights) ([]float64, error) {
	const op = "posterior.Expectation"

	if weights == nil {
		return nil, errors.NewConfigurationError(op, "weights must not be nil")
	}
	if len(counts) != len(weights.values) {
		return nil, errors.NewDimensionError(op, len(weights.values), len(counts), 0)
	}
	for _, c := range counts {
		if c < 0 || math.IsNaN(c) {
			return nil, errors.NewDataError(op, "counts must be non-negative")
		}
	}

	alpha := make([]float64, len(counts))
	floats.AddTo(alpha, counts, weights.values)
	if err := errors.CheckNumericalStability(op, alpha); err != nil {
		return nil, err
	}
	logTotal := math.Log(floats.Sum(alpha))

	for i, a := range alpha {
		alpha[i] = math.Log(a) - logTotal
	}
	return alpha, nil
}
