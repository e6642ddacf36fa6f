// Package optim maximizes a black-box fitness over binary feature vectors.
package optim

import (
	"context"

	"gonum.org/v1/gonum/mat"
)

// Fitness scores one 0/1 candidate. Higher is better; -Inf marks an
// inadmissible candidate.
type Fitness func(state []float64) float64

// Result is the best candidate an optimizer found.
type Result struct {
	State       []float64
	Fitness     float64
	Generations int
}

// Optimizer is any fitness maximizer seeded with an initial population whose
// rows are candidates.
type Optimizer interface {
	Maximize(ctx context.Context, fitness Fitness, initial *mat.Dense) (Result, error)
}
