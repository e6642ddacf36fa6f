package ubay

import (
	"math"

	"github.com/YuminosukeSato/ubayfs/metrics"
	"github.com/YuminosukeSato/ubayfs/pkg/errors"
	"github.com/YuminosukeSato/ubayfs/pkg/log"
)

// Evaluation は特徴量集合の要約統計量。浮動小数点の値は小数第3位に丸められる
type Evaluation struct {
	// Cardinality は選択された特徴量の数
	Cardinality int

	// TotalUtility は exp(logsumexp(theta[選択] ++ [log(l) + log許容度])) - l
	TotalUtility float64

	// PosteriorFeatureUtility は選択された特徴量の事後期待値の和
	PosteriorFeatureUtility float64

	// Admissibility は全制約グループに対する許容度
	Admissibility float64

	// ViolatedConstraints は違反している制約行の数（平滑化せずに A, b から直接数える）
	ViolatedConstraints int

	// AverageFeatureCorrelation は選択された特徴量間の相関の絶対値の平均
	// 選択が2未満、またはデータを持たないモデルでは nil
	AverageFeatureCorrelation *float64
}

// EvalOption は Evaluate の設定を行う関数オプション
type EvalOption func(*evalConfig)

type evalConfig struct {
	method metrics.Method
	log    bool
}

// WithCorrelationMethod は特徴量相関の計算方法を設定する。デフォルトは Spearman
func WithCorrelationMethod(method metrics.Method) EvalOption {
	return func(c *evalConfig) {
		c.method = method
	}
}

// WithLogScale は効用と許容度を対数スケールで返す
func WithLogScale(logScale bool) EvalOption {
	return func(c *evalConfig) {
		c.log = logScale
	}
}

// Evaluate は特徴量集合の要約統計量を計算する
func (m *Model) Evaluate(state []float64, opts ...EvalOption) (*Evaluation, error) {
	const op = "Model.Evaluate"

	cfg := evalConfig{method: metrics.Spearman}
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(state) != len(m.names) {
		return nil, errors.NewDimensionError(op, len(m.names), len(state), 0)
	}

	theta, err := m.PosteriorExpectation()
	if err != nil {
		return nil, err
	}
	logAdm, err := m.store.Admissibility(state, true)
	if err != nil {
		return nil, err
	}
	violated, err := m.store.Violations(state)
	if err != nil {
		return nil, err
	}

	cardinality := 0
	for _, s := range state {
		if s == 1 {
			cardinality++
		}
	}

	logPost := utility(theta, state, math.Inf(-1))
	total := math.Exp(utility(theta, state, math.Log(m.lambda)+logAdm)) - m.lambda

	ev := &Evaluation{
		Cardinality:         cardinality,
		ViolatedConstraints: violated,
	}
	if cfg.log {
		ev.TotalUtility = errors.Round(math.Log(total), 3)
		ev.PosteriorFeatureUtility = errors.Round(logPost, 3)
		ev.Admissibility = errors.Round(logAdm, 3)
	} else {
		ev.TotalUtility = errors.Round(total, 3)
		ev.PosteriorFeatureUtility = errors.Round(math.Exp(logPost), 3)
		ev.Admissibility = errors.Round(math.Exp(logAdm), 3)
	}

	if m.data != nil {
		corr, err := metrics.AverageAbsCorrelation(m.data, state, cfg.method)
		if err != nil {
			return nil, err
		}
		if corr != nil {
			rounded := errors.Round(*corr, 3)
			ev.AverageFeatureCorrelation = &rounded
		}
	}

	m.logger.Debug("feature set evaluated",
		log.OperationKey, log.OperationEvaluate,
		log.CardinalityKey, cardinality,
	)
	return ev, nil
}
