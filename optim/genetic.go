package optim

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/ubayfs/pkg/errors"
	"github.com/YuminosukeSato/ubayfs/pkg/log"
)

// GeneticAlgorithm is a generational GA over binary vectors with tournament
// selection, single-point crossover, bit-flip mutation and elitism.
// The population size equals the number of rows of the initial population.
type GeneticAlgorithm struct {
	generations    int
	crossoverRate  float64
	mutationRate   float64 // 0 means 1/numFeatures
	tournamentSize int
	elitism        int
	seed           uint64
	logger         log.Logger
}

// GAOption configures a GeneticAlgorithm.
type GAOption func(*GeneticAlgorithm)

// WithGenerations sets the number of generations (maxiter).
func WithGenerations(n int) GAOption {
	return func(g *GeneticAlgorithm) {
		g.generations = n
	}
}

// WithCrossoverRate sets the probability that two parents are recombined.
func WithCrossoverRate(p float64) GAOption {
	return func(g *GeneticAlgorithm) {
		g.crossoverRate = p
	}
}

// WithMutationRate sets the per-gene flip probability.
func WithMutationRate(p float64) GAOption {
	return func(g *GeneticAlgorithm) {
		g.mutationRate = p
	}
}

// WithTournamentSize sets the number of candidates competing per selection.
func WithTournamentSize(k int) GAOption {
	return func(g *GeneticAlgorithm) {
		g.tournamentSize = k
	}
}

// WithElitism sets how many of the fittest candidates survive unchanged.
func WithElitism(k int) GAOption {
	return func(g *GeneticAlgorithm) {
		g.elitism = k
	}
}

// WithSeed sets the seed of the internal generator.
func WithSeed(seed uint64) GAOption {
	return func(g *GeneticAlgorithm) {
		g.seed = seed
	}
}

// WithLogger sets the logger used for progress records.
func WithLogger(l log.Logger) GAOption {
	return func(g *GeneticAlgorithm) {
		g.logger = l
	}
}

// NewGeneticAlgorithm creates a GeneticAlgorithm with 100 generations,
// crossover rate 0.9, tournament size 3 and one elite.
func NewGeneticAlgorithm(opts ...GAOption) *GeneticAlgorithm {
	g := &GeneticAlgorithm{
		generations:    100,
		crossoverRate:  0.9,
		tournamentSize: 3,
		elitism:        1,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = log.GetLogger()
	}
	g.logger = g.logger.With(log.ComponentKey, "optim")
	return g
}

// Generations returns the configured number of generations.
func (g *GeneticAlgorithm) Generations() int {
	return g.generations
}

func (g *GeneticAlgorithm) validate(rows, cols int) error {
	const op = "GeneticAlgorithm.Maximize"

	switch {
	case g.generations < 0:
		return errors.NewConfigurationErrorf(op, "generations must be >= 0, got %d", g.generations)
	case g.crossoverRate < 0 || g.crossoverRate > 1:
		return errors.NewConfigurationErrorf(op, "crossover rate must lie in [0,1], got %v", g.crossoverRate)
	case g.mutationRate < 0 || g.mutationRate > 1:
		return errors.NewConfigurationErrorf(op, "mutation rate must lie in [0,1], got %v", g.mutationRate)
	case g.tournamentSize < 1:
		return errors.NewConfigurationErrorf(op, "tournament size must be >= 1, got %d", g.tournamentSize)
	case g.elitism < 0 || g.elitism > rows:
		return errors.NewConfigurationErrorf(op, "elitism must lie in [0,%d], got %d", rows, g.elitism)
	case cols == 0:
		return errors.NewConfigurationError(op, "candidates must have at least one gene")
	}
	return nil
}

type candidate struct {
	genes   []float64
	fitness float64
}

// Maximize evolves the initial population and returns the best candidate seen.
// The returned fitness is never below the best fitness of the initial population.
// Cancellation is checked between generations; on cancellation the best
// candidate so far is returned together with the context error.
func (g *GeneticAlgorithm) Maximize(ctx context.Context, fitness Fitness, initial *mat.Dense) (Result, error) {
	if fitness == nil || initial == nil {
		return Result{}, errors.NewConfigurationError("GeneticAlgorithm.Maximize", "fitness and initial population are required")
	}
	rows, cols := initial.Dims()
	if err := g.validate(rows, cols); err != nil {
		return Result{}, err
	}

	start := time.Now()
	rng := rand.New(rand.NewPCG(g.seed, g.seed^0x9e3779b97f4a7c15))

	mutation := g.mutationRate
	if mutation == 0 {
		mutation = 1 / float64(cols)
	}

	pop := make([]candidate, rows)
	for i := range pop {
		genes := mat.Row(nil, i, initial)
		pop[i] = candidate{genes: genes, fitness: fitness(genes)}
	}
	best := fittest(pop)

	gen := 0
	for ; gen < g.generations; gen++ {
		if err := ctx.Err(); err != nil {
			return g.result(best, gen), errors.Wrapf(err, "genetic algorithm stopped at generation %d", gen)
		}

		next := make([]candidate, 0, rows)
		next = append(next, elites(pop, g.elitism)...)
		for len(next) < rows {
			p1 := g.tournament(rng, pop)
			p2 := g.tournament(rng, pop)
			child := crossover(rng, p1.genes, p2.genes, g.crossoverRate)
			mutate(rng, child, mutation)
			next = append(next, candidate{genes: child, fitness: fitness(child)})
		}
		pop = next

		if c := fittest(pop); c.fitness > best.fitness {
			best = c
			g.logger.Debug("fitness improved",
				log.GenerationKey, gen+1,
				log.FitnessKey, best.fitness,
			)
		}
	}

	g.logger.Info("optimization finished",
		log.GenerationKey, gen,
		log.PopulationSizeKey, rows,
		log.FitnessKey, best.fitness,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return g.result(best, gen), nil
}

func (g *GeneticAlgorithm) result(best candidate, gen int) Result {
	return Result{
		State:       append([]float64(nil), best.genes...),
		Fitness:     best.fitness,
		Generations: gen,
	}
}

func (g *GeneticAlgorithm) tournament(rng *rand.Rand, pop []candidate) candidate {
	winner := pop[rng.IntN(len(pop))]
	for i := 1; i < g.tournamentSize; i++ {
		c := pop[rng.IntN(len(pop))]
		if c.fitness > winner.fitness {
			winner = c
		}
	}
	return winner
}

// fittest returns the first candidate with the maximal fitness. -Inf and NaN
// candidates only win when nothing better exists.
func fittest(pop []candidate) candidate {
	best := pop[0]
	for _, c := range pop[1:] {
		if c.fitness > best.fitness || (math.IsNaN(best.fitness) && !math.IsNaN(c.fitness)) {
			best = c
		}
	}
	return best
}

// elites returns copies of the k fittest candidates.
func elites(pop []candidate, k int) []candidate {
	if k == 0 {
		return nil
	}
	taken := make([]bool, len(pop))
	out := make([]candidate, 0, k)
	for len(out) < k {
		bi := -1
		for i, c := range pop {
			if taken[i] {
				continue
			}
			if bi < 0 || c.fitness > pop[bi].fitness {
				bi = i
			}
		}
		taken[bi] = true
		out = append(out, candidate{
			genes:   append([]float64(nil), pop[bi].genes...),
			fitness: pop[bi].fitness,
		})
	}
	return out
}

func crossover(rng *rand.Rand, a, b []float64, rate float64) []float64 {
	child := append([]float64(nil), a...)
	if len(a) < 2 || rng.Float64() >= rate {
		return child
	}
	cut := 1 + rng.IntN(len(a)-1)
	copy(child[cut:], b[cut:])
	return child
}

func mutate(rng *rand.Rand, genes []float64, rate float64) {
	for i := range genes {
		if rng.Float64() < rate {
			genes[i] = 1 - genes[i]
		}
	}
}
