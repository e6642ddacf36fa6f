package ubay

import (
	"context"
	"math"
	"math/rand/v2"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/ubayfs/constraint"
	"github.com/YuminosukeSato/ubayfs/ensemble"
	"github.com/YuminosukeSato/ubayfs/optim"
	"github.com/YuminosukeSato/ubayfs/pkg/errors"
	"github.com/YuminosukeSato/ubayfs/pkg/log"
	"github.com/YuminosukeSato/ubayfs/posterior"
)

var hard = []float64{math.Inf(1)}

func quietLogger() log.Logger {
	l, _ := log.NewTestLogger(log.LevelError)
	return l
}

func build4(t *testing.T, intents ...constraint.Intent) *constraint.Constraint {
	t.Helper()
	c, err := constraint.Build(4, intents, hard)
	require.NoError(t, err)
	return c
}

// dataset は2値の目的変数と、列0・列3に信号を持つ4列のデータを返す
func dataset(n int) (*mat.Dense, []float64) {
	rng := rand.New(rand.NewPCG(99, 99))
	X := mat.NewDense(n, 4, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		label := float64(i % 2)
		y[i] = label
		X.Set(i, 0, 2*label+rng.NormFloat64())
		X.Set(i, 1, rng.NormFloat64())
		X.Set(i, 2, rng.NormFloat64())
		X.Set(i, 3, -2*label+rng.NormFloat64())
	}
	return X, y
}

func smallGA(seed uint64) Option {
	return WithOptim(optim.NewGeneticAlgorithm(
		optim.WithGenerations(30),
		optim.WithSeed(seed),
		optim.WithLogger(quietLogger()),
	), 20)
}

func TestTrainSelectsTopFeaturesUnderMaxSize(t *testing.T) {
	X, y := dataset(40)

	// 1回目の呼び出しだけ全特徴量を返すので、選択回数は [10,1,1,10] になる
	var calls atomic.Int64
	fixed := ensemble.RankerFunc(func(X *mat.Dense, y []float64, k int) ([]int, error) {
		if calls.Add(1) == 1 {
			return []int{0, 1, 2, 3}, nil
		}
		return []int{0, 3}, nil
	})

	m, err := New(X, y,
		WithM(10),
		WithRankers(fixed),
		WithWorkers(1),
		WithNumFeatures(2),
		WithWeights([]float64{1, 1, 1, 1}),
		WithConstraints(build4(t, constraint.MaxSize{Size: 2})),
		WithSeed(7),
		WithLogger(quietLogger()),
		smallGA(7),
	)
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 1, 1, 10}, m.Counts())

	theta, err := m.PosteriorExpectation()
	require.NoError(t, err)
	assert.Greater(t, theta[0], theta[1])
	assert.Greater(t, theta[3], theta[2])

	res, err := m.Train(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 0, 1}, res.State)
	assert.Equal(t, []string{"f0", "f3"}, res.Selected)

	ev, err := m.Evaluate(res.State)
	require.NoError(t, err)
	assert.Equal(t, 2, ev.Cardinality)
	assert.Equal(t, 0, ev.ViolatedConstraints)
	assert.Equal(t, 1.0, ev.Admissibility)
	require.NotNil(t, ev.AverageFeatureCorrelation)
}

func TestTrainNeverSelectsCannotLinkedPair(t *testing.T) {
	for seed := uint64(0); seed < 5; seed++ {
		m, err := NewFromCounts([]float64{10, 10, 1, 1},
			WithConstraints(
				build4(t, constraint.MaxSize{Size: 3}),
				build4(t, constraint.CannotLink{Indices: []int{0, 1}}),
			),
			WithSeed(seed),
			WithLogger(quietLogger()),
			smallGA(seed),
		)
		require.NoError(t, err)
		require.Len(t, m.Constraints(), 1, "identical block matrices merge")

		res, err := m.Train(context.Background())
		require.NoError(t, err)
		assert.False(t, res.State[0] == 1 && res.State[1] == 1, "seed %d selected both linked features", seed)

		ev, err := m.Evaluate(res.State)
		require.NoError(t, err)
		assert.Equal(t, 0, ev.ViolatedConstraints)
	}

	m, err := NewFromCounts([]float64{10, 10, 1, 1},
		WithConstraints(build4(t, constraint.MaxSize{Size: 3}, constraint.CannotLink{Indices: []int{0, 1}})),
		WithLogger(quietLogger()),
	)
	require.NoError(t, err)
	ev, err := m.Evaluate([]float64{1, 1, 0, 0})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, ev.ViolatedConstraints, 1)
	assert.Equal(t, 0.0, ev.Admissibility)
}

func TestNewValidation(t *testing.T) {
	X, y := dataset(20)

	withNaN := mat.DenseCopyOf(X)
	withNaN.Set(3, 2, math.NaN())

	tests := []struct {
		name     string
		X        *mat.Dense
		y        []float64
		opts     []Option
		wantData bool
	}{
		{name: "nil data", X: nil, y: y, wantData: true},
		{name: "empty data", X: &mat.Dense{}, y: nil, wantData: true},
		{name: "missing values", X: withNaN, y: y, wantData: true},
		{name: "label mismatch", X: X, y: y[:10], wantData: true},
		{name: "M zero", X: X, y: y, opts: []Option{WithM(0)}},
		{name: "split one", X: X, y: y, opts: []Option{WithSplit(1)}},
		{name: "split zero", X: X, y: y, opts: []Option{WithSplit(0)}},
		{name: "lambda zero", X: X, y: y, opts: []Option{WithLambda(0)}},
		{name: "lambda infinite", X: X, y: y, opts: []Option{WithLambda(math.Inf(1))}},
		{name: "no rankers", X: X, y: y, opts: []Option{WithRankers()}},
		{name: "negative weight", X: X, y: y, opts: []Option{WithWeights([]float64{1, -1, 1, 1})}},
		{name: "duplicate names", X: X, y: y, opts: []Option{WithFeatureNames("a", "b", "a", "c")}},
		{name: "short names", X: X, y: y, opts: []Option{WithFeatureNames("a", "b")}},
		{name: "zero population", X: X, y: y, opts: []Option{WithOptim(optim.NewGeneticAlgorithm(), 0)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := append([]Option{WithM(4), WithLogger(quietLogger())}, tt.opts...)
			_, err := New(tt.X, tt.y, opts...)
			require.Error(t, err)

			if tt.wantData {
				var dataErr *errors.DataError
				assert.True(t, errors.As(err, &dataErr), "got %v", err)
			} else {
				var cfgErr *errors.ConfigurationError
				assert.True(t, errors.As(err, &cfgErr), "got %v", err)
			}
		})
	}
}

func TestNewWarnsOnUnusualSplit(t *testing.T) {
	var warned []error
	errors.SetWarningHandler(func(w error) { warned = append(warned, w) })
	defer errors.SetWarningHandler(func(w error) {})

	X, y := dataset(20)
	_, err := New(X, y, WithM(4), WithSplit(0.3), WithLogger(quietLogger()))
	require.NoError(t, err)

	require.Len(t, warned, 1)
	var prw *errors.ParameterRangeWarning
	assert.True(t, errors.As(warned[0], &prw))
}

func TestFeatureNames(t *testing.T) {
	m, err := NewFromCounts([]float64{1, 2, 3}, WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Equal(t, []string{"f0", "f1", "f2"}, m.FeatureNames())
	assert.Equal(t, 3, m.NumFeatures())

	m, err = NewFromCounts([]float64{1, 2, 3}, WithFeatureNames("age", "bmi", "bp"), WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Equal(t, []string{"age", "bmi", "bp"}, m.FeatureNames())

	_, err = NewFromCounts([]float64{1, -2, 3}, WithLogger(quietLogger()))
	assert.Error(t, err)
}

func TestModelLogsEstimatorID(t *testing.T) {
	logger, _ := log.NewTestLogger(log.LevelInfo)
	X, y := dataset(20)

	m, err := New(X, y, WithM(4), WithLogger(logger))
	require.NoError(t, err)

	_, err = uuid.Parse(m.ID())
	require.NoError(t, err)
	assert.True(t, logger.ContainsMessage("model constructed"))
	assert.True(t, logger.ContainsField(log.EstimatorIDKey, m.ID()))
	assert.True(t, logger.ContainsField(log.ModelNameKey, modelName))
}

func TestTrainRequiresConstraints(t *testing.T) {
	m, err := NewFromCounts([]float64{3, 1, 1, 3}, WithLogger(quietLogger()))
	require.NoError(t, err)

	_, err = m.Train(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNoConstraints))

	var cfgErr *errors.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestTrainRequiresMaxSize(t *testing.T) {
	m, err := NewFromCounts([]float64{3, 1, 1, 3},
		WithConstraints(build4(t, constraint.CannotLink{Indices: []int{0, 3}})),
		WithLogger(quietLogger()),
	)
	require.NoError(t, err)

	_, err = m.Train(context.Background())
	var cfgErr *errors.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestSampleInitialRejectsSecondMaxSize(t *testing.T) {
	soft, err := constraint.Build(4, []constraint.Intent{constraint.MaxSize{Size: 3}}, []float64{1})
	require.NoError(t, err)

	m, err := NewFromCounts([]float64{10, 9, 8, 1},
		WithConstraints(build4(t, constraint.MaxSize{Size: 2}), soft),
		WithLogger(quietLogger()),
	)
	require.NoError(t, err)
	// 同じブロック行列なので一つのグループに連結される
	require.Len(t, m.Constraints(), 1)

	var cfgErr *errors.ConfigurationError
	_, err = m.SampleInitial(3)
	assert.True(t, errors.As(err, &cfgErr), "got %v", err)

	_, err = m.Train(context.Background())
	assert.True(t, errors.As(err, &cfgErr), "got %v", err)
}

func TestTrainCancelled(t *testing.T) {
	m, err := NewFromCounts([]float64{3, 1, 1, 3},
		WithConstraints(build4(t, constraint.MaxSize{Size: 2})),
		WithLogger(quietLogger()),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Train(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, m.IsTrained())
}

func TestSetConstraints(t *testing.T) {
	m, err := NewFromCounts([]float64{3, 1, 1, 3}, WithLogger(quietLogger()))
	require.NoError(t, err)

	require.NoError(t, m.SetConstraints(build4(t, constraint.MaxSize{Size: 2}), true))
	require.NoError(t, m.SetConstraints(build4(t, constraint.CannotLink{Indices: []int{0, 1}}), true))
	require.Len(t, m.Constraints(), 1)
	rows, _ := m.Constraints()[0].Dims()
	assert.Equal(t, 2, rows)

	blocked, err := constraint.Build(2, []constraint.Intent{constraint.MaxSize{Size: 1}}, hard,
		constraint.WithBlockList([][]int{{0, 1}, {2, 3}}, 4))
	require.NoError(t, err)
	require.NoError(t, m.SetConstraints(blocked, true))
	assert.Len(t, m.Constraints(), 2)

	// replace mode drops everything registered before
	require.NoError(t, m.SetConstraints(build4(t, constraint.MaxSize{Size: 3}), false))
	require.Len(t, m.Constraints(), 1)
	rows, _ = m.Constraints()[0].Dims()
	assert.Equal(t, 1, rows)

	wrong, err := constraint.Build(5, []constraint.Intent{constraint.MaxSize{Size: 3}}, hard)
	require.NoError(t, err)
	err = m.SetConstraints(wrong, true)
	var dimErr *errors.DimensionError
	assert.True(t, errors.As(err, &dimErr))

	assert.Error(t, m.SetConstraints(nil, true))
}

func TestAdmissibility(t *testing.T) {
	m, err := NewFromCounts([]float64{3, 1, 1, 3},
		WithConstraints(build4(t, constraint.MaxSize{Size: 2})),
		WithLogger(quietLogger()),
	)
	require.NoError(t, err)

	adm, err := m.Admissibility([]float64{1, 0, 0, 1}, false)
	require.NoError(t, err)
	assert.Equal(t, 1.0, adm)

	adm, err = m.Admissibility([]float64{1, 1, 0, 1}, true)
	require.NoError(t, err)
	assert.True(t, math.IsInf(adm, -1))

	_, err = m.Admissibility([]float64{1, 0}, true)
	var dimErr *errors.DimensionError
	assert.True(t, errors.As(err, &dimErr))
}

func TestPosteriorExpectationFollowsWeights(t *testing.T) {
	m, err := NewFromCounts([]float64{4, 0, 2, 1}, WithLogger(quietLogger()))
	require.NoError(t, err)

	theta, err := m.PosteriorExpectation()
	require.NoError(t, err)
	sum := 0.0
	for _, v := range theta {
		sum += math.Exp(v)
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
	assert.InDelta(t, math.Log(5.0/11), theta[0], 1e-12)

	require.NoError(t, m.SetWeights([]float64{2}, posterior.WithBlockList([][]int{{0, 1, 2, 3}})))
	assert.Equal(t, []float64{2, 2, 2, 2}, m.Weights())

	theta, err = m.PosteriorExpectation()
	require.NoError(t, err)
	assert.InDelta(t, math.Log(6.0/15), theta[0], 1e-12)

	assert.Error(t, m.SetWeights([]float64{1, 2}))
	assert.Equal(t, []float64{2, 2, 2, 2}, m.Weights(), "failed update keeps previous weights")
}

func TestSampleInitial(t *testing.T) {
	m, err := NewFromCounts([]float64{8, 2, 6, 4, 1},
		WithConstraints(func() *constraint.Constraint {
			c, err := constraint.Build(5, []constraint.Intent{
				constraint.MaxSize{Size: 2},
				constraint.MustLink{Indices: []int{2, 3}},
			}, hard)
			require.NoError(t, err)
			return c
		}()),
		WithSeed(3),
		WithLogger(quietLogger()),
	)
	require.NoError(t, err)

	pop, err := m.SampleInitial(15)
	require.NoError(t, err)
	r, c := pop.Dims()
	assert.Equal(t, 16, r)
	assert.Equal(t, 5, c)

	for i := 0; i < r-1; i++ {
		row := mat.Row(nil, i, pop)
		adm, err := m.Admissibility(row, false)
		require.NoError(t, err)
		assert.Equal(t, 1.0, adm, "member %d: %v", i, row)
		assert.LessOrEqual(t, floats.Sum(row), 2.0)
	}
	assert.Equal(t, []float64{1, 0, 1, 0, 0}, mat.Row(nil, r-1, pop))

	again, err := m.SampleInitial(15)
	require.NoError(t, err)
	assert.True(t, mat.Equal(pop, again))
}

func TestSampleInitialLogsOnce(t *testing.T) {
	logger, _ := log.NewTestLogger(log.LevelDebug)
	m, err := NewFromCounts([]float64{4, 3, 2, 1},
		WithConstraints(build4(t, constraint.MaxSize{Size: 2})),
		WithLogger(logger),
	)
	require.NoError(t, err)

	_, err = m.SampleInitial(5)
	require.NoError(t, err)

	entries, err := logger.GetLogEntries()
	require.NoError(t, err)
	sampled := 0
	for _, e := range entries {
		if e["message"] == "initial population sampled" {
			sampled++
		}
	}
	assert.Equal(t, 1, sampled)
}

func TestOptimSettings(t *testing.T) {
	m, err := NewFromCounts([]float64{1, 1}, WithLogger(quietLogger()))
	require.NoError(t, err)

	opt, size := m.Optim()
	require.IsType(t, &optim.GeneticAlgorithm{}, opt)
	assert.Equal(t, 100, size)
	assert.Equal(t, 100, opt.(*optim.GeneticAlgorithm).Generations())

	ga := optim.NewGeneticAlgorithm(optim.WithGenerations(5))
	require.NoError(t, m.SetOptim(ga, 12))
	opt, size = m.Optim()
	assert.Same(t, ga, opt)
	assert.Equal(t, 12, size)

	assert.Error(t, m.SetOptim(nil, 12))
	assert.Error(t, m.SetOptim(ga, 0))
}

func TestSettersInvalidateTraining(t *testing.T) {
	m, err := NewFromCounts([]float64{5, 1, 1, 5},
		WithConstraints(build4(t, constraint.MaxSize{Size: 2})),
		WithLogger(quietLogger()),
		smallGA(1),
	)
	require.NoError(t, err)

	_, err = m.Result()
	assert.Error(t, err)

	_, err = m.Train(context.Background())
	require.NoError(t, err)
	assert.True(t, m.IsTrained())
	res, err := m.Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"f0", "f3"}, res.Selected)

	require.NoError(t, m.SetWeights([]float64{2}))
	assert.False(t, m.IsTrained())
}
