// Package sampling builds the initial population handed to the optimizer.
//
// Each member is grown greedily along a posterior-weighted permutation of the
// features, accepting a feature only while the state stays fully admissible
// against a randomly relaxed subset of the registered constraint rows.
package sampling

import (
	"math"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
	"gonum.org/v1/gonum/stat/sampleuv"

	"github.com/YuminosukeSato/ubayfs/constraint"
	"github.com/YuminosukeSato/ubayfs/pkg/errors"
	"github.com/YuminosukeSato/ubayfs/pkg/log"
)

// Member is one sampled feature set together with the constraint rows that
// were active while it was built.
type Member struct {
	// State is the 0/1 feature indicator vector.
	State []float64

	// Active holds, per constraint group, the row indices kept by the dropout draw.
	Active [][]int

	// Trace records the cardinality after each accepted feature.
	Trace []int
}

// Sampler draws population members from a constraint store and a log-posterior.
type Sampler struct {
	store     *constraint.Store
	posterior []float64
	logger    log.Logger
}

// New creates a Sampler. posterior must be the log-scale posterior expectation
// with one entry per feature.
func New(store *constraint.Store, posterior []float64, logger log.Logger) (*Sampler, error) {
	const op = "sampling.New"

	if store == nil {
		return nil, errors.NewConfigurationError(op, "constraint store must not be nil")
	}
	if len(posterior) == 0 {
		return nil, errors.NewConfigurationError(op, "posterior must not be empty")
	}
	for _, g := range store.Groups() {
		if _, n := g.Dims(); n != len(posterior) {
			return nil, errors.NewDimensionError(op, len(posterior), n, 1)
		}
	}
	if logger == nil {
		logger = log.GetLogger()
	}

	return &Sampler{
		store:     store,
		posterior: append([]float64(nil), posterior...),
		logger:    logger.With(log.ComponentKey, "sampling"),
	}, nil
}

// Population returns size random members plus the top-maxSize member as a
// (size+1) x numFeatures matrix. It requires exactly one max-size constraint.
func (s *Sampler) Population(rng *rand.Rand, size int) (*mat.Dense, error) {
	const op = "Sampler.Population"

	if size <= 0 {
		return nil, errors.NewConfigurationErrorf(op, "population size must be positive, got %d", size)
	}
	if rng == nil {
		return nil, errors.NewConfigurationError(op, "random generator must not be nil")
	}

	maxSize, err := s.store.MaxSize()
	if err != nil {
		return nil, err
	}

	n := len(s.posterior)
	pop := mat.NewDense(size+1, n, nil)

	// the permutations are drawn before the walks so that the draw order
	// stays identical to a batch implementation
	orders := make([][]int, size)
	for i := range orders {
		orders[i] = s.order(rng)
	}
	for i, order := range orders {
		m, err := s.walk(rng, order)
		if err != nil {
			return nil, err
		}
		pop.SetRow(i, m.State)
	}
	pop.SetRow(size, s.Top(maxSize))

	s.logger.Debug("initial population sampled",
		log.OperationKey, log.OperationSample,
		log.PopulationSizeKey, size+1,
		log.ConstraintRowsKey, s.store.Rows(),
	)
	return pop, nil
}

// Member draws one member using a fresh dropout and permutation.
func (s *Sampler) Member(rng *rand.Rand) (Member, error) {
	return s.walk(rng, s.order(rng))
}

// Top returns the indicator vector of the k features with the highest
// posterior. Ties keep index order.
func (s *Sampler) Top(k int) []float64 {
	n := len(s.posterior)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		switch {
		case s.posterior[a] > s.posterior[b]:
			return -1
		case s.posterior[a] < s.posterior[b]:
			return 1
		}
		return 0
	})

	state := make([]float64, n)
	for _, i := range idx[:min(k, n)] {
		state[i] = 1
	}
	return state
}

// order draws a permutation by weighted sampling without replacement with
// weights exp(posterior).
func (s *Sampler) order(rng *rand.Rand) []int {
	n := len(s.posterior)
	w := make([]float64, n)
	for i, p := range s.posterior {
		w[i] = math.Exp(p)
	}

	sampler := sampleuv.NewWeighted(w, rng)
	order := make([]int, 0, n)
	taken := make([]bool, n)
	for {
		i, ok := sampler.Take()
		if !ok {
			break
		}
		order = append(order, i)
		taken[i] = true
	}
	// features whose weight underflowed to zero go last
	for i := range taken {
		if !taken[i] {
			order = append(order, i)
		}
	}
	return order
}

// dropout keeps each row with probability rho/(1+rho); hard rows are always kept.
func (s *Sampler) dropout(rng *rand.Rand) [][]int {
	groups := s.store.Groups()
	active := make([][]int, len(groups))
	for gi, g := range groups {
		for ri, rho := range g.Rho() {
			p := 1.0
			if !math.IsInf(rho, 1) {
				p = rho / (1 + rho)
			}
			if (distuv.Bernoulli{P: p, Src: rng}).Rand() == 1 {
				active[gi] = append(active[gi], ri)
			}
		}
	}
	return active
}

func (s *Sampler) walk(rng *rand.Rand, order []int) (Member, error) {
	active := s.dropout(rng)

	var relaxed []*constraint.Constraint
	for gi, g := range s.store.Groups() {
		if len(active[gi]) == 0 {
			continue
		}
		sub, err := g.Subset(active[gi])
		if err != nil {
			return Member{}, err
		}
		relaxed = append(relaxed, sub)
	}

	state := make([]float64, len(s.posterior))
	m := Member{State: state, Active: active}
	for _, f := range order {
		state[f] = 1
		ok, err := fullyAdmissible(relaxed, state)
		if err != nil {
			return Member{}, err
		}
		if !ok {
			state[f] = 0
			continue
		}
		m.Trace = append(m.Trace, int(floats.Sum(state)))
	}
	return m, nil
}

func fullyAdmissible(groups []*constraint.Constraint, state []float64) (bool, error) {
	adm := 1.0
	for _, g := range groups {
		a, err := g.GroupAdmissibility(state, false)
		if err != nil {
			return false, err
		}
		adm *= a
	}
	return adm == 1, nil
}
