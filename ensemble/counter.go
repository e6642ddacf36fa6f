package ensemble

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/ubayfs/core/parallel"
	"github.com/YuminosukeSato/ubayfs/pkg/errors"
	"github.com/YuminosukeSato/ubayfs/pkg/log"
	"github.com/YuminosukeSato/ubayfs/preprocessing"
)

// autoStream は "auto" の特徴量数を決める生成器のストリーム番号
const autoStream = math.MaxUint64

// Counter は M 回の再標本化とランキングから選択回数を集計する
type Counter struct {
	m           int
	split       float64
	numFeatures int // 0 は "auto"
	rankers     []FeatureRanker
	seed        uint64
	workers     int
	logger      log.Logger
}

// CounterOption は Counter の設定を行う関数オプション
type CounterOption func(*Counter)

// WithResamples は再標本化の回数 M を設定する
func WithResamples(m int) CounterOption {
	return func(c *Counter) {
		c.m = m
	}
}

// WithSplit は学習データの比率を設定する
func WithSplit(frac float64) CounterOption {
	return func(c *Counter) {
		c.split = frac
	}
}

// WithNumFeatures は各ランキングで選ぶ特徴量数を固定する。0 は "auto"
func WithNumFeatures(k int) CounterOption {
	return func(c *Counter) {
		c.numFeatures = k
	}
}

// WithRankers はランキング手法を設定する
func WithRankers(r ...FeatureRanker) CounterOption {
	return func(c *Counter) {
		c.rankers = r
	}
}

// WithSeed は乱数シードを設定する
func WithSeed(seed uint64) CounterOption {
	return func(c *Counter) {
		c.seed = seed
	}
}

// WithWorkers は並列に処理する再標本化の数を設定する。1 以下は逐次実行
// 2以上の場合、全てのランカーは並行安全でなければならない。結果はワーカー数に依存しない。
func WithWorkers(n int) CounterOption {
	return func(c *Counter) {
		c.workers = n
	}
}

// WithLogger はロガーを設定する
func WithLogger(l log.Logger) CounterOption {
	return func(c *Counter) {
		c.logger = l
	}
}

// NewCounter は Counter を作成する
// デフォルトは M=100、学習比率0.75、特徴量数 "auto"、mRMR、逐次実行（ワーカー数1）。
func NewCounter(opts ...CounterOption) *Counter {
	c := &Counter{
		m:       100,
		split:   0.75,
		rankers: []FeatureRanker{MRMR{}},
		workers: 1,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.GetLogger()
	}
	c.logger = c.logger.With(log.ComponentKey, "ensemble")
	return c
}

// Result はアンサンブルの集計結果
type Result struct {
	// Counts は特徴量ごとの選択回数
	Counts []float64

	// Selections は成功した (再標本化 × 手法) ごとの0/1選択ベクトル
	Selections *mat.Dense

	// NumFeatures は各ランキングで要求した特徴量数
	NumFeatures int

	// Runs は計画された (再標本化 × 手法) の数
	Runs int

	// Failures は失敗した実行。各要素は *errors.PartialEnsembleFailure
	Failures []error
}

// Successes は成功した実行数を返す
func (r *Result) Successes() int {
	return r.Runs - len(r.Failures)
}

type run struct {
	selection []float64
	err       error
}

// Count はアンサンブルを実行して選択回数を返す
//
// 各 (再標本化 × 手法) の失敗（エラーまたは panic）はその寄与を捨てて
// PartialEnsembleFailure として集計する。ceil(成功数/手法数) < ceil(M/2) の場合は
// ConfigurationError を返す。
func (c *Counter) Count(ctx context.Context, X *mat.Dense, y []float64) (*Result, error) {
	const op = "Counter.Count"

	if err := c.validate(X, y); err != nil {
		return nil, err
	}
	start := time.Now()
	_, p := X.Dims()

	k := c.numFeatures
	if k == 0 {
		k = autoNumFeatures(c.seed, p)
	}
	stratify := IsBinary(y)

	runs := make([][]run, c.m)
	parallel.ParallelizeN(c.m, c.workers, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			if ctx.Err() != nil {
				return
			}
			runs[i] = c.resample(i, X, y, k, stratify)
		}
	})
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "ensemble counting cancelled")
	}

	res := &Result{
		Counts:      make([]float64, p),
		NumFeatures: k,
		Runs:        c.m * len(c.rankers),
	}
	var rows [][]float64
	for _, rs := range runs {
		for _, r := range rs {
			if r.err != nil {
				res.Failures = append(res.Failures, r.err)
				continue
			}
			rows = append(rows, r.selection)
			for j, v := range r.selection {
				res.Counts[j] += v
			}
		}
	}
	if len(rows) > 0 {
		res.Selections = mat.NewDense(len(rows), p, nil)
		for i, r := range rows {
			res.Selections.SetRow(i, r)
		}
	}

	c.logger.Info("ensemble finished",
		log.OperationKey, log.OperationCount,
		log.EnsembleRunsKey, res.Runs,
		log.EnsembleFailuresKey, len(res.Failures),
		log.FeaturesKey, p,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)

	succeeded := math.Ceil(float64(res.Successes()) / float64(len(c.rankers)))
	if succeeded < math.Ceil(float64(c.m)/2) {
		return nil, errors.NewConfigurationErrorf(op,
			"too many ensemble runs failed: %d of %d succeeded", res.Successes(), res.Runs)
	}
	return res, nil
}

func (c *Counter) validate(X *mat.Dense, y []float64) error {
	const op = "Counter.Count"

	switch {
	case X == nil:
		return errors.NewDataError(op, "data must not be nil")
	case c.m <= 0:
		return errors.NewConfigurationErrorf(op, "M must be a positive integer, got %d", c.m)
	case !(c.split > 0 && c.split < 1):
		return errors.NewConfigurationErrorf(op, "split must lie in (0,1), got %v", c.split)
	case c.numFeatures < 0:
		return errors.NewConfigurationErrorf(op, "number of features must be >= 0, got %d", c.numFeatures)
	case len(c.rankers) == 0:
		return errors.NewConfigurationError(op, "at least one ranking method is required")
	}
	if r, _ := X.Dims(); r != len(y) {
		return errors.NewDataError(op, "number of labels must match number of data rows")
	}
	return nil
}

// autoNumFeatures は [1, p-1] から一様に特徴量数を選ぶ。シードごとに一度だけ決まる
func autoNumFeatures(seed uint64, p int) int {
	if p < 2 {
		return 1
	}
	rng := rand.New(rand.NewPCG(seed, autoStream))
	return 1 + rng.IntN(p-1)
}

// resample は i 番目の再標本化について全手法を実行する
// 生成器は (seed, i) から作るため、実行順序に依存しない。
func (c *Counter) resample(i int, X *mat.Dense, y []float64, k int, stratify bool) []run {
	rng := rand.New(rand.NewPCG(c.seed, uint64(i)))
	out := make([]run, len(c.rankers))

	fail := func(err error) []run {
		for m, r := range c.rankers {
			out[m] = run{err: c.failure(i, NameOf(r), err)}
		}
		return out
	}

	trainRows, err := TrainIndices(rng, y, c.split, stratify)
	if err != nil {
		return fail(err)
	}
	trainX := preprocessing.SelectRows(X, trainRows)
	trainY := make([]float64, len(trainRows))
	for idx, r := range trainRows {
		trainY[idx] = y[r]
	}

	cols := preprocessing.NonConstantColumns(trainX)
	if len(cols) == 0 {
		return fail(errors.NewDataError("Counter.Count", "all columns are constant in this resample"))
	}
	trainX = preprocessing.SelectColumns(trainX, cols)

	_, p := X.Dims()
	for m, r := range c.rankers {
		name := NameOf(r)
		var ranks []int
		err := errors.SafeExecute("ensemble.rank."+name, func() error {
			var rankErr error
			ranks, rankErr = r.Rank(trainX, trainY, k)
			return rankErr
		})
		if err == nil {
			err = checkRanks(ranks, len(cols))
		}
		if err != nil {
			out[m] = run{err: c.failure(i, name, err)}
			continue
		}

		sel := make([]float64, p)
		for _, j := range ranks {
			sel[cols[j]] = 1
		}
		out[m] = run{selection: sel}
		c.logger.Debug("ranking finished",
			log.ResampleKey, i,
			log.MethodKey, name,
			log.SelectedKey, len(ranks),
		)
	}
	return out
}

func (c *Counter) failure(i int, method string, err error) error {
	f := errors.NewPartialEnsembleFailure(i, method, err)
	c.logger.Warn("ranking method failed in this resample",
		log.ResampleKey, i,
		log.MethodKey, method,
		log.ErrorCodeKey, log.ErrorEnsembleFailure,
		log.ErrAttrKey, err.Error(),
	)
	return f
}

func checkRanks(ranks []int, p int) error {
	for _, j := range ranks {
		if j < 0 || j >= p {
			return errors.NewDimensionError("ensemble.checkRanks", p, j, 1)
		}
	}
	return nil
}
