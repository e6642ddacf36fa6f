// Package ubay は UBayFS（ユーザー制約付きベイズ特徴量選択）のモデルを提供する。
//
// アンサンブルの選択回数と事前重みから特徴量ごとの事後期待値を作り、
// 登録された制約の許容度と釣り合う特徴量集合を遺伝的アルゴリズムで探索する。
//
// 使用例:
//
//	maxSize, _ := constraint.Build(p, []constraint.Intent{constraint.MaxSize{Size: 3}}, []float64{math.Inf(1)})
//	m, err := ubay.New(X, y,
//	    ubay.WithM(50),
//	    ubay.WithConstraints(maxSize),
//	    ubay.WithSeed(1),
//	)
//	res, err := m.Train(ctx)
//	eval, err := m.Evaluate(res.State)
package ubay

import (
	"context"
	"math"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/ubayfs/constraint"
	"github.com/YuminosukeSato/ubayfs/core/model"
	"github.com/YuminosukeSato/ubayfs/ensemble"
	"github.com/YuminosukeSato/ubayfs/optim"
	"github.com/YuminosukeSato/ubayfs/pkg/errors"
	"github.com/YuminosukeSato/ubayfs/pkg/log"
	"github.com/YuminosukeSato/ubayfs/posterior"
	"github.com/YuminosukeSato/ubayfs/sampling"
)

const modelName = "UBaymodel"

// samplingStream は初期集団サンプリングに使う PCG のストリーム番号
// アンサンブルは再標本化番号をストリームに使うため、末尾側を使う。
const samplingStream = math.MaxUint64 - 1

// Model は UBayFS モデル
type Model struct {
	state  *model.StateManager
	id     string
	logger log.Logger

	data     *mat.Dense // nil の場合は選択回数から直接作られたモデル
	names    []string
	counts   []float64
	failures []error
	settings map[string]interface{}

	weights *posterior.Weights
	store   *constraint.Store
	lambda  float64

	optimizer optim.Optimizer
	popSize   int
	seed      uint64

	result *Result
}

// Result は学習結果
type Result struct {
	// State は最適な特徴量集合（0/1）
	State []float64

	// Selected は選択された特徴量の名前
	Selected []string

	// Fitness は最適化の目的関数値
	Fitness float64

	// Generations は実行された世代数
	Generations int
}

// New はデータセットからアンサンブルを実行してモデルを作成する
func New(X *mat.Dense, y []float64, opts ...Option) (*Model, error) {
	return NewContext(context.Background(), X, y, opts...)
}

// NewContext は New と同じだが、アンサンブルの実行を ctx でキャンセルできる
func NewContext(ctx context.Context, X *mat.Dense, y []float64, opts ...Option) (*Model, error) {
	const op = "ubay.New"

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if err := validateData(op, X, y); err != nil {
		return nil, err
	}
	if err := cfg.validateEnsemble(op); err != nil {
		return nil, err
	}

	n, p := X.Dims()
	m, err := build(op, cfg, p)
	if err != nil {
		return nil, err
	}

	counterOpts := []ensemble.CounterOption{
		ensemble.WithResamples(cfg.m),
		ensemble.WithSplit(cfg.split),
		ensemble.WithNumFeatures(cfg.numFeatures),
		ensemble.WithRankers(cfg.rankers...),
		ensemble.WithSeed(cfg.seed),
		ensemble.WithLogger(m.logger),
	}
	if cfg.workers > 0 {
		counterOpts = append(counterOpts, ensemble.WithWorkers(cfg.workers))
	}
	res, err := ensemble.NewCounter(counterOpts...).Count(ctx, X, y)
	if err != nil {
		m.logger.Error("ensemble counting failed", err,
			log.OperationKey, log.OperationCount,
		)
		return nil, err
	}

	m.data = mat.DenseCopyOf(X)
	m.counts = res.Counts
	m.failures = res.Failures
	m.settings = map[string]interface{}{
		"m":            cfg.m,
		"split":        cfg.split,
		"num_features": res.NumFeatures,
		"failures":     len(res.Failures),
	}
	m.state.SetDimensions(p, n)

	m.logger.Info("model constructed",
		log.SamplesKey, n,
		log.FeaturesKey, p,
		log.EnsembleRunsKey, res.Runs,
		log.EnsembleFailuresKey, len(res.Failures),
		log.RandomSeedKey, cfg.seed,
	)
	return m, nil
}

// NewFromCounts は既に集計済みのアンサンブル選択回数からモデルを作成する
// データを持たないため、Evaluate の特徴量相関は常に nil になる。
func NewFromCounts(counts []float64, opts ...Option) (*Model, error) {
	const op = "ubay.NewFromCounts"

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if len(counts) == 0 {
		return nil, errors.NewDataError(op, "counts must not be empty")
	}
	for _, c := range counts {
		if !(c >= 0) || math.IsInf(c, 1) {
			return nil, errors.NewDataError(op, "counts must be finite and non-negative")
		}
	}

	m, err := build(op, cfg, len(counts))
	if err != nil {
		return nil, err
	}
	m.counts = append([]float64(nil), counts...)
	m.state.SetDimensions(len(counts), 0)
	return m, nil
}

// build はデータに依存しない部分（名前、重み、制約、最適化器）を組み立てる
func build(op string, cfg *config, p int) (*Model, error) {
	if !(cfg.lambda > 0) || math.IsInf(cfg.lambda, 1) {
		return nil, errors.NewConfigurationErrorf(op, "l must be a positive scalar, got %v", cfg.lambda)
	}
	if cfg.popSize <= 0 {
		return nil, errors.NewConfigurationErrorf(op, "population size must be positive, got %d", cfg.popSize)
	}
	if cfg.maxIter < 0 {
		return nil, errors.NewConfigurationErrorf(op, "maximal number of iterations must be >= 0, got %d", cfg.maxIter)
	}

	names, err := featureNames(op, cfg.names, p)
	if err != nil {
		return nil, err
	}
	weights, err := posterior.NewWeights(p, cfg.weights, cfg.weightOpts...)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	logger := cfg.logger
	if logger == nil {
		logger = log.GetLogger()
	}
	logger = logger.With(
		log.ModelNameKey, modelName,
		log.EstimatorIDKey, id,
	)

	optimizer := cfg.optimizer
	if optimizer == nil {
		optimizer = optim.NewGeneticAlgorithm(
			optim.WithGenerations(cfg.maxIter),
			optim.WithSeed(cfg.seed),
			optim.WithLogger(logger),
		)
	}

	m := &Model{
		state:     model.NewStateManager(),
		id:        id,
		logger:    logger,
		names:     names,
		weights:   weights,
		store:     &constraint.Store{},
		lambda:    cfg.lambda,
		optimizer: optimizer,
		popSize:   cfg.popSize,
		seed:      cfg.seed,
	}
	for _, c := range cfg.constraints {
		if err := m.SetConstraints(c, true); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (c *config) validateEnsemble(op string) error {
	switch {
	case c.m <= 0:
		return errors.NewConfigurationErrorf(op, "M must be a positive integer, got %d", c.m)
	case !(c.split > 0 && c.split < 1):
		return errors.NewConfigurationErrorf(op, "split must lie in (0,1), got %v", c.split)
	case c.numFeatures < 0:
		return errors.NewConfigurationErrorf(op, "number of features must be >= 0, got %d", c.numFeatures)
	case len(c.rankers) == 0:
		return errors.NewConfigurationError(op, "at least one ranking method is required")
	}
	if c.split < 0.5 || c.split > 0.99 {
		errors.Warn(errors.NewParameterRangeWarning("split", c.split, 0.5, 0.99))
	}
	return nil
}

func validateData(op string, X *mat.Dense, y []float64) error {
	if X == nil {
		return errors.NewDataError(op, "data must not be nil")
	}
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewEmptyDataError(op)
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if math.IsNaN(X.At(i, j)) {
				return errors.NewDataError(op, "missing values (NaN) are not supported")
			}
		}
	}
	if r != len(y) {
		return errors.NewDataError(op, "number of labels must match number of data rows")
	}
	for _, v := range y {
		if math.IsNaN(v) {
			return errors.NewDataError(op, "missing values (NaN) are not supported in the target")
		}
	}
	return nil
}

func featureNames(op string, names []string, p int) ([]string, error) {
	if len(names) == 0 {
		out := make([]string, p)
		for j := range out {
			out[j] = "f" + strconv.Itoa(j)
		}
		return out, nil
	}
	if len(names) != p {
		return nil, errors.NewConfigurationErrorf(op, "got %d feature names for %d features", len(names), p)
	}
	seen := make(map[string]struct{}, p)
	for _, name := range names {
		if _, ok := seen[name]; ok {
			return nil, errors.NewConfigurationErrorf(op, "feature name %q is not unique", name)
		}
		seen[name] = struct{}{}
	}
	return append([]string(nil), names...), nil
}

// ID はモデルインスタンスの識別子を返す（ログの estimator.id）
func (m *Model) ID() string {
	return m.id
}

// NumFeatures は特徴量数を返す
func (m *Model) NumFeatures() int {
	return len(m.names)
}

// FeatureNames は特徴量の名前のコピーを返す
func (m *Model) FeatureNames() []string {
	return append([]string(nil), m.names...)
}

// Counts はアンサンブルの選択回数のコピーを返す
func (m *Model) Counts() []float64 {
	return append([]float64(nil), m.counts...)
}

// Failures は構築時に失敗したアンサンブル実行を返す
func (m *Model) Failures() []error {
	return append([]error(nil), m.failures...)
}

// Lambda はラグランジュ係数 l を返す
func (m *Model) Lambda() float64 {
	return m.lambda
}

// SetWeights は事前重みを設定する
func (m *Model) SetWeights(w []float64, opts ...posterior.Option) error {
	weights, err := posterior.NewWeights(len(m.names), w, opts...)
	if err != nil {
		return err
	}
	m.weights = weights
	m.state.Invalidate()
	return nil
}

// Weights は特徴量ごとの事前重みを返す
func (m *Model) Weights() []float64 {
	return m.weights.Values()
}

// SetConstraints は制約グループを登録する
//
// appendMode が true の場合、同じブロック行列を持つ既存グループがあれば行を連結し、
// 無ければ新しいグループとして追加する。false の場合は全ての制約を c で置き換える。
func (m *Model) SetConstraints(c *constraint.Constraint, appendMode bool) error {
	const op = "Model.SetConstraints"

	if c == nil {
		return errors.NewConfigurationError(op, "constraint must not be nil")
	}
	if _, n := c.Dims(); n != len(m.names) {
		return errors.NewDimensionError(op, len(m.names), n, 1)
	}

	if appendMode {
		if err := m.store.Add(c); err != nil {
			return err
		}
	} else {
		store, err := constraint.NewStore(c)
		if err != nil {
			return err
		}
		m.store = store
	}
	m.state.Invalidate()

	m.logger.Debug("constraints updated",
		log.ConstraintGroupsKey, m.store.Len(),
		log.ConstraintRowsKey, m.store.Rows(),
	)
	return nil
}

// Constraints は登録済みの制約グループを返す
func (m *Model) Constraints() []*constraint.Constraint {
	return m.store.Groups()
}

// SetOptim は最適化器と初期集団のサイズを設定する
func (m *Model) SetOptim(opt optim.Optimizer, popSize int) error {
	const op = "Model.SetOptim"

	if opt == nil {
		return errors.NewConfigurationError(op, "optimizer must not be nil")
	}
	if popSize <= 0 {
		return errors.NewConfigurationErrorf(op, "population size must be positive, got %d", popSize)
	}
	m.optimizer = opt
	m.popSize = popSize
	m.state.Invalidate()
	return nil
}

// Optim は最適化器と初期集団のサイズを返す
func (m *Model) Optim() (optim.Optimizer, int) {
	return m.optimizer, m.popSize
}

// Admissibility は全制約グループに対する特徴量集合の許容度を返す
func (m *Model) Admissibility(state []float64, logScale bool) (float64, error) {
	if len(state) != len(m.names) {
		return 0, errors.NewDimensionError("Model.Admissibility", len(m.names), len(state), 0)
	}
	return m.store.Admissibility(state, logScale)
}

// PosteriorExpectation は対数スケールの事後期待値を返す
// 重みや制約の変更に追従するため、毎回計算し直す。
func (m *Model) PosteriorExpectation() ([]float64, error) {
	return posterior.Expectation(m.counts, m.weights)
}

// SampleInitial は制約を満たす初期集団を (size+1) × 特徴量数 の行列で返す
// 最終行は事後期待値の上位 maxSize 個の特徴量。同じシードからは同じ集団が得られる。
func (m *Model) SampleInitial(size int) (*mat.Dense, error) {
	theta, err := m.PosteriorExpectation()
	if err != nil {
		return nil, err
	}
	sampler, err := sampling.New(m.store, theta, m.logger)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewPCG(m.seed, samplingStream))
	return sampler.Population(rng, size)
}

// Train は事後期待値と制約の許容度を釣り合わせる特徴量集合を探索する
//
// 目的関数は logsumexp(theta[選択] ++ [log(l) + log許容度])。
// 最大サイズ制約を含む制約が少なくとも一つ登録されている必要がある。
func (m *Model) Train(ctx context.Context) (*Result, error) {
	const op = "Model.Train"

	if m.store.Len() == 0 {
		return nil, errors.NewConfigurationErrorFrom(op, errors.ErrNoConstraints)
	}
	start := time.Now()

	theta, err := m.PosteriorExpectation()
	if err != nil {
		return nil, err
	}
	pop, err := m.SampleInitial(m.popSize)
	if err != nil {
		return nil, err
	}

	best, err := m.optimizer.Maximize(ctx, m.fitness(theta), pop)
	if err != nil {
		m.logger.Error("optimization failed", err,
			log.OperationKey, log.OperationTrain,
		)
		return nil, errors.Wrap(err, "training failed")
	}

	res := &Result{
		State:       best.State,
		Selected:    m.selected(best.State),
		Fitness:     best.Fitness,
		Generations: best.Generations,
	}
	m.result = res
	m.state.SetTrained()

	m.logger.Info("training finished",
		log.OperationKey, log.OperationTrain,
		log.CardinalityKey, len(res.Selected),
		log.FitnessKey, res.Fitness,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return res, nil
}

// Result は直近の学習結果を返す
func (m *Model) Result() (*Result, error) {
	if err := m.state.RequireTrained(modelName, "Result"); err != nil {
		return nil, err
	}
	return m.result, nil
}

// IsTrained は学習済みかどうかを返す。重み・制約・最適化器を変更すると未学習に戻る
func (m *Model) IsTrained() bool {
	return m.state.IsTrained()
}

func (m *Model) fitness(theta []float64) optim.Fitness {
	logL := math.Log(m.lambda)
	return func(state []float64) float64 {
		adm, err := m.store.Admissibility(state, true)
		if err != nil {
			return math.Inf(-1)
		}
		return utility(theta, state, logL+adm)
	}
}

// utility は logsumexp(theta[選択] ++ [extra]) を返す
func utility(theta, state []float64, extra float64) float64 {
	terms := make([]float64, 0, len(state)+1)
	for j, s := range state {
		if s == 1 {
			terms = append(terms, theta[j])
		}
	}
	return errors.LogSumExp(append(terms, extra))
}

func (m *Model) selected(state []float64) []string {
	var out []string
	for j, s := range state {
		if s == 1 {
			out = append(out, m.names[j])
		}
	}
	return out
}
