package ubay

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/ubayfs/constraint"
	"github.com/YuminosukeSato/ubayfs/core/model"
	"github.com/YuminosukeSato/ubayfs/pkg/errors"
)

const snapshotVersion = "1.0"

// Snapshot はモデルの選択回数・事前重み・制約を保存形式で返す
// 学習済みの場合は最適な特徴量集合も含む。
func (m *Model) Snapshot() *model.Snapshot {
	s := &model.Snapshot{
		ModelType:    modelName,
		Version:      snapshotVersion,
		FeatureNames: m.FeatureNames(),
		Counts:       m.Counts(),
		Weights:      m.Weights(),
		Lambda:       m.lambda,
		Metadata: map[string]interface{}{
			"estimator_id": m.id,
			"popsize":      m.popSize,
		},
	}
	for k, v := range m.settings {
		s.Metadata[k] = v
	}

	for _, g := range m.store.Groups() {
		a := g.A()
		if a == nil {
			continue
		}
		s.Constraints = append(s.Constraints, model.ConstraintSnapshot{
			A:           rowsOf(a),
			B:           g.B(),
			Rho:         model.EncodeRho(g.Rho()),
			BlockMatrix: rowsOf(g.BlockMatrix()),
		})
	}

	if m.state.IsTrained() && m.result != nil {
		s.Selected = append([]float64(nil), m.result.State...)
	}
	return s
}

// FromSnapshot は保存されたスナップショットからモデルを復元する
//
// opts はスナップショットの値の後に適用される。WithConstraints は追加登録になる。
// 最適な特徴量集合が保存されている場合、復元したモデルは学習済みになる。
func FromSnapshot(s *model.Snapshot, opts ...Option) (*Model, error) {
	const op = "ubay.FromSnapshot"

	if s == nil {
		return nil, errors.NewConfigurationError(op, "snapshot must not be nil")
	}
	if err := s.Validate(); err != nil {
		return nil, errors.NewConfigurationErrorf(op, "invalid snapshot: %v", err)
	}
	if s.ModelType != modelName {
		return nil, errors.NewConfigurationErrorf(op, "snapshot holds a %q, not a %s", s.ModelType, modelName)
	}

	base := []Option{
		WithFeatureNames(s.FeatureNames...),
		WithWeights(s.Weights),
		WithLambda(s.Lambda),
	}
	for i, cs := range s.Constraints {
		c, err := restoreConstraint(cs)
		if err != nil {
			return nil, errors.Wrapf(err, "constraint group %d", i)
		}
		base = append(base, WithConstraints(c))
	}

	m, err := NewFromCounts(s.Counts, append(base, opts...)...)
	if err != nil {
		return nil, err
	}

	if s.Selected != nil {
		theta, err := m.PosteriorExpectation()
		if err != nil {
			return nil, err
		}
		state := append([]float64(nil), s.Selected...)
		m.result = &Result{
			State:    state,
			Selected: m.selected(state),
			Fitness:  m.fitness(theta)(state),
		}
		m.state.SetTrained()
	}
	return m, nil
}

func restoreConstraint(cs model.ConstraintSnapshot) (*constraint.Constraint, error) {
	a, err := denseOf(cs.A)
	if err != nil {
		return nil, err
	}
	block, err := denseOf(cs.BlockMatrix)
	if err != nil {
		return nil, err
	}
	return constraint.New(a, cs.B, model.DecodeRho(cs.Rho), constraint.WithBlockMatrix(block))
}

func rowsOf(m *mat.Dense) [][]float64 {
	r, _ := m.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = mat.Row(nil, i, m)
	}
	return out
}

func denseOf(rows [][]float64) (*mat.Dense, error) {
	const op = "ubay.FromSnapshot"

	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, errors.NewConfigurationError(op, "constraint matrices must not be empty")
	}
	cols := len(rows[0])
	d := mat.NewDense(len(rows), cols, nil)
	for i, row := range rows {
		if len(row) != cols {
			return nil, errors.NewDimensionError(op, cols, len(row), 1)
		}
		d.SetRow(i, row)
	}
	return d, nil
}
