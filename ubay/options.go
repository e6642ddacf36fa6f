package ubay

import (
	"github.com/YuminosukeSato/ubayfs/constraint"
	"github.com/YuminosukeSato/ubayfs/ensemble"
	"github.com/YuminosukeSato/ubayfs/optim"
	"github.com/YuminosukeSato/ubayfs/pkg/log"
	"github.com/YuminosukeSato/ubayfs/posterior"
)

// Option is a function that configures a Model
type Option func(*config)

type config struct {
	m           int
	split       float64
	numFeatures int
	rankers     []ensemble.FeatureRanker
	workers     int

	weights     []float64
	weightOpts  []posterior.Option
	constraints []*constraint.Constraint
	lambda      float64

	optimizer optim.Optimizer
	popSize   int
	maxIter   int

	seed   uint64
	logger log.Logger
	names  []string
}

func defaultConfig() *config {
	return &config{
		m:       100,
		split:   0.75,
		rankers: []ensemble.FeatureRanker{ensemble.MRMR{}},
		weights: []float64{1},
		lambda:  1,
		popSize: 100,
		maxIter: 100,
	}
}

// WithM sets the number of ensemble resamples
func WithM(m int) Option {
	return func(c *config) {
		c.m = m
	}
}

// WithSplit sets the train fraction of every resample
func WithSplit(frac float64) Option {
	return func(c *config) {
		c.split = frac
	}
}

// WithNumFeatures sets how many features each ranker selects.
// Zero (the default) draws the number once from [1, numFeatures-1].
func WithNumFeatures(k int) Option {
	return func(c *config) {
		c.numFeatures = k
	}
}

// WithRankers sets the feature ranking methods of the ensemble.
// Rankers are called sequentially unless WithWorkers asks for more than one
// worker, in which case they must be safe for concurrent use.
func WithRankers(r ...ensemble.FeatureRanker) Option {
	return func(c *config) {
		c.rankers = r
	}
}

// WithWorkers sets how many resamples are ranked concurrently. The default
// of 1 runs the ensemble on the calling goroutine; counts do not depend on it.
func WithWorkers(n int) Option {
	return func(c *config) {
		c.workers = n
	}
}

// WithWeights sets the prior weights, optionally per block
func WithWeights(w []float64, opts ...posterior.Option) Option {
	return func(c *config) {
		c.weights = w
		c.weightOpts = opts
	}
}

// WithConstraints registers constraint groups in append mode
func WithConstraints(cs ...*constraint.Constraint) Option {
	return func(c *config) {
		c.constraints = append(c.constraints, cs...)
	}
}

// WithLambda sets the Lagrange factor l of the admissibility term
func WithLambda(l float64) Option {
	return func(c *config) {
		c.lambda = l
	}
}

// WithOptim sets the optimizer and the size of the sampled initial population
func WithOptim(opt optim.Optimizer, popSize int) Option {
	return func(c *config) {
		c.optimizer = opt
		c.popSize = popSize
	}
}

// WithPopSize sets the size of the sampled initial population only
func WithPopSize(n int) Option {
	return func(c *config) {
		c.popSize = n
	}
}

// WithMaxIter sets the number of generations of the default genetic algorithm.
// It has no effect when WithOptim supplies an optimizer.
func WithMaxIter(n int) Option {
	return func(c *config) {
		c.maxIter = n
	}
}

// WithSeed sets the seed every stochastic step derives its generator from
func WithSeed(seed uint64) Option {
	return func(c *config) {
		c.seed = seed
	}
}

// WithLogger sets the logger
func WithLogger(l log.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithFeatureNames sets the feature names. Defaults to f0, f1, ...
func WithFeatureNames(names ...string) Option {
	return func(c *config) {
		c.names = names
	}
}
