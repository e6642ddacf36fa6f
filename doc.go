// Package ubayfs provides UBayFS, an ensemble-based feature selection
// framework that combines data-driven evidence with user knowledge.
//
// Feature rankers (mRMR, chi-square, Fisher score) are run on many random
// train splits. How often each feature is picked forms the likelihood, user
// weights form the Dirichlet prior, and the posterior expectation scores
// every feature. Users add linear constraints (max size, must-link,
// cannot-link, optionally over feature blocks) which may be hard or relaxed.
// A genetic algorithm then searches the feature set that balances posterior
// utility against constraint admissibility.
//
// # Installation
//
//	go get github.com/YuminosukeSato/ubayfs
//
// # Quick Start
//
//	package main
//
//	import (
//	    "context"
//	    "fmt"
//	    "log"
//	    "math"
//
//	    "github.com/YuminosukeSato/ubayfs/constraint"
//	    "github.com/YuminosukeSato/ubayfs/ubay"
//	)
//
//	func main() {
//	    X, y := loadData()
//	    _, p := X.Dims()
//
//	    maxSize, err := constraint.Build(p,
//	        []constraint.Intent{constraint.MaxSize{Size: 5}},
//	        []float64{math.Inf(1)})
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    m, err := ubay.New(X, y, ubay.WithM(100), ubay.WithConstraints(maxSize))
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    res, err := m.Train(context.Background())
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Println("Selected:", res.Selected)
//	}
//
// # Packages
//
//   - ubay: the UBayFS model (construction, constraints, training, evaluation)
//   - constraint: linear constraints, intent builder and constraint store
//   - posterior: prior weights and posterior expectation
//   - ensemble: feature rankers and the resampling ensemble counter
//   - sampling: initial population sampler
//   - optim: optimizer interface and genetic algorithm
//   - metrics: feature correlation statistics
//   - preprocessing: MinMaxScaler
//   - report: posterior bar charts
//   - core/model: model state and JSON snapshots
//   - core/parallel: parallel execution utilities
//   - cmd/ubayfs: command line interface
//
// # Command Line
//
//	ubayfs select --config cfg.yaml --data data.csv --target y --plot posterior.png
//
// # License
//
// UBayFS is released under the MIT License.
package ubayfs
