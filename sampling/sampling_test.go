package sampling

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/ubayfs/constraint"
	"github.com/YuminosukeSato/ubayfs/pkg/errors"
	"github.com/YuminosukeSato/ubayfs/pkg/log"
	"github.com/YuminosukeSato/ubayfs/posterior"
)

var inf = math.Inf(1)

func newSampler(t *testing.T, counts []float64, groups ...*constraint.Constraint) *Sampler {
	t.Helper()
	w, err := posterior.Uniform(len(counts), 1)
	require.NoError(t, err)
	post, err := posterior.Expectation(counts, w)
	require.NoError(t, err)

	store, err := constraint.NewStore(groups...)
	require.NoError(t, err)

	logger, _ := log.NewTestLogger(log.LevelDebug)
	s, err := New(store, post, logger)
	require.NoError(t, err)
	return s
}

func build(t *testing.T, n int, rho float64, intents ...constraint.Intent) *constraint.Constraint {
	t.Helper()
	c, err := constraint.Build(n, intents, []float64{rho})
	require.NoError(t, err)
	return c
}

func TestPopulationShapeAndTopMember(t *testing.T) {
	s := newSampler(t, []float64{10, 1, 1, 10}, build(t, 4, inf, constraint.MaxSize{Size: 2}))

	pop, err := s.Population(rand.New(rand.NewPCG(1, 1)), 5)
	require.NoError(t, err)

	r, c := pop.Dims()
	assert.Equal(t, 6, r)
	assert.Equal(t, 4, c)
	assert.Equal(t, []float64{1, 0, 0, 1}, mat.Row(nil, 5, pop))

	// hard max size: every random member is at most 2 and greedy fills up to 2
	for i := 0; i < 5; i++ {
		assert.Equal(t, 2.0, floats.Sum(mat.Row(nil, i, pop)), "member %d", i)
	}
}

func TestPopulationDeterministic(t *testing.T) {
	s := newSampler(t, []float64{5, 3, 8, 1, 0, 2},
		build(t, 6, 1, constraint.MaxSize{Size: 3}, constraint.CannotLink{Indices: []int{0, 2}}))

	a, err := s.Population(rand.New(rand.NewPCG(42, 42)), 10)
	require.NoError(t, err)
	b, err := s.Population(rand.New(rand.NewPCG(42, 42)), 10)
	require.NoError(t, err)
	assert.True(t, mat.Equal(a, b))
}

func TestMemberAdmissibleAgainstActiveRows(t *testing.T) {
	groups := []*constraint.Constraint{
		build(t, 6, 0.5, constraint.MaxSize{Size: 3}, constraint.CannotLink{Indices: []int{0, 1, 2}}),
		build(t, 6, 2, constraint.MustLink{Indices: []int{3, 4}}),
	}
	s := newSampler(t, []float64{9, 7, 5, 3, 2, 1}, groups...)
	rng := rand.New(rand.NewPCG(7, 11))

	for i := 0; i < 50; i++ {
		m, err := s.Member(rng)
		require.NoError(t, err)

		for gi, g := range s.store.Groups() {
			if len(m.Active[gi]) == 0 {
				continue
			}
			sub, err := g.Subset(m.Active[gi])
			require.NoError(t, err)
			adm, err := sub.GroupAdmissibility(m.State, false)
			require.NoError(t, err)
			assert.Equal(t, 1.0, adm)
		}

		// features are only ever added
		for j := 1; j < len(m.Trace); j++ {
			assert.Equal(t, m.Trace[j-1]+1, m.Trace[j])
		}
		if len(m.Trace) > 0 {
			assert.Equal(t, float64(m.Trace[len(m.Trace)-1]), floats.Sum(m.State))
		}
	}
}

func TestHardRowsAlwaysActive(t *testing.T) {
	s := newSampler(t, []float64{1, 1, 1}, build(t, 3, inf,
		constraint.MaxSize{Size: 1}, constraint.CannotLink{Indices: []int{0, 1}}))
	rng := rand.New(rand.NewPCG(3, 3))

	for i := 0; i < 20; i++ {
		m, err := s.Member(rng)
		require.NoError(t, err)
		assert.Equal(t, [][]int{{0, 1}}, m.Active)
		assert.Equal(t, 1.0, floats.Sum(m.State))
	}
}

func TestDropoutRate(t *testing.T) {
	// rho = 1 keeps a row with probability 1/2
	s := newSampler(t, []float64{1, 1}, build(t, 2, 1, constraint.MaxSize{Size: 1}))
	rng := rand.New(rand.NewPCG(5, 8))

	kept := 0
	const trials = 4000
	for i := 0; i < trials; i++ {
		kept += len(s.dropout(rng)[0])
	}
	assert.InDelta(t, 0.5, float64(kept)/trials, 0.05)
}

func TestOrderIsPermutation(t *testing.T) {
	s := newSampler(t, []float64{100, 0, 0, 0, 50}, build(t, 5, inf, constraint.MaxSize{Size: 2}))
	rng := rand.New(rand.NewPCG(9, 9))

	first := 0
	for i := 0; i < 200; i++ {
		order := s.order(rng)
		require.Len(t, order, 5)
		seen := make(map[int]bool)
		for _, f := range order {
			seen[f] = true
		}
		assert.Len(t, seen, 5)
		if order[0] == 0 || order[0] == 4 {
			first++
		}
	}
	// high posterior features should lead the permutation most of the time
	assert.Greater(t, first, 180)
}

func TestPopulationRequiresSingleMaxSize(t *testing.T) {
	tests := []struct {
		name   string
		groups []*constraint.Constraint
	}{
		{"no constraints", nil},
		{"no max size", []*constraint.Constraint{
			build(t, 3, inf, constraint.CannotLink{Indices: []int{0, 1}}),
		}},
		{"non-positive bound", []*constraint.Constraint{
			build(t, 3, inf, constraint.MaxSize{Size: 0}),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSampler(t, []float64{1, 2, 3}, tt.groups...)
			_, err := s.Population(rand.New(rand.NewPCG(1, 2)), 3)
			var cfgErr *errors.ConfigurationError
			assert.True(t, errors.As(err, &cfgErr), "got %v", err)
		})
	}
}

func TestPopulationArgumentErrors(t *testing.T) {
	s := newSampler(t, []float64{1, 2, 3}, build(t, 3, inf, constraint.MaxSize{Size: 1}))

	_, err := s.Population(rand.New(rand.NewPCG(1, 2)), 0)
	assert.Error(t, err)
	_, err = s.Population(nil, 3)
	assert.Error(t, err)
}

func TestNewDimensionMismatch(t *testing.T) {
	store, err := constraint.NewStore(build(t, 4, inf, constraint.MaxSize{Size: 1}))
	require.NoError(t, err)

	_, err = New(store, []float64{-1, -1, -1}, nil)
	var dimErr *errors.DimensionError
	assert.True(t, errors.As(err, &dimErr))
}

func TestTop(t *testing.T) {
	s := newSampler(t, []float64{1, 5, 5, 0}, build(t, 4, inf, constraint.MaxSize{Size: 1}))

	assert.Equal(t, []float64{0, 1, 0, 0}, s.Top(1))
	assert.Equal(t, []float64{0, 1, 1, 0}, s.Top(2))
	assert.Equal(t, []float64{1, 1, 1, 1}, s.Top(10))
}
