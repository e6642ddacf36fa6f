package ubay

import (
	"bytes"
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/ubayfs/constraint"
	"github.com/YuminosukeSato/ubayfs/core/model"
	"github.com/YuminosukeSato/ubayfs/pkg/errors"
)

func trainedModel(t *testing.T) *Model {
	t.Helper()

	soft, err := constraint.Build(4, []constraint.Intent{constraint.CannotLink{Indices: []int{0, 3}}}, []float64{0.5})
	require.NoError(t, err)

	m, err := NewFromCounts([]float64{10, 1, 1, 10},
		WithFeatureNames("a", "b", "c", "d"),
		WithWeights([]float64{1, 2, 1, 2}),
		WithConstraints(build4(t, constraint.MaxSize{Size: 2}), soft),
		WithLambda(0.5),
		WithLogger(quietLogger()),
		smallGA(2),
	)
	require.NoError(t, err)
	_, err = m.Train(context.Background())
	require.NoError(t, err)
	return m
}

func TestSnapshotRoundTrip(t *testing.T) {
	m := trainedModel(t)
	snap := m.Snapshot()

	assert.Equal(t, modelName, snap.ModelType)
	require.Len(t, snap.Constraints, 1)
	// max_size row is hard, the cannot_link row is soft
	assert.Nil(t, snap.Constraints[0].Rho[0])
	require.NotNil(t, snap.Constraints[0].Rho[1])
	assert.Equal(t, 0.5, *snap.Constraints[0].Rho[1])

	var buf bytes.Buffer
	require.NoError(t, snap.Encode(&buf))
	loaded, err := model.ReadSnapshot(&buf)
	require.NoError(t, err)

	restored, err := FromSnapshot(loaded, WithLogger(quietLogger()))
	require.NoError(t, err)

	assert.Equal(t, m.FeatureNames(), restored.FeatureNames())
	assert.Equal(t, m.Counts(), restored.Counts())
	assert.Equal(t, m.Weights(), restored.Weights())
	assert.Equal(t, m.Lambda(), restored.Lambda())
	require.Len(t, restored.Constraints(), 1)
	assert.Equal(t, []float64{math.Inf(1), 0.5}, restored.Constraints()[0].Rho())

	want, err := m.Result()
	require.NoError(t, err)
	got, err := restored.Result()
	require.NoError(t, err)
	assert.Equal(t, want.State, got.State)
	assert.Equal(t, want.Selected, got.Selected)
	assert.InDelta(t, want.Fitness, got.Fitness, 1e-12)

	for _, state := range [][]float64{{1, 0, 0, 1}, {1, 1, 1, 0}, {0, 1, 0, 0}} {
		a, err := m.Admissibility(state, true)
		require.NoError(t, err)
		b, err := restored.Admissibility(state, true)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	}
}

func TestSnapshotFile(t *testing.T) {
	m := trainedModel(t)
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, m.Snapshot().Save(path))

	loaded, err := model.LoadSnapshot(path)
	require.NoError(t, err)
	restored, err := FromSnapshot(loaded, WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.True(t, restored.IsTrained())
}

func TestSnapshotUntrained(t *testing.T) {
	m, err := NewFromCounts([]float64{1, 2}, WithLogger(quietLogger()))
	require.NoError(t, err)

	snap := m.Snapshot()
	assert.Nil(t, snap.Selected)
	assert.Empty(t, snap.Constraints)

	restored, err := FromSnapshot(snap, WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.False(t, restored.IsTrained())
}

func TestFromSnapshotRejectsInvalid(t *testing.T) {
	_, err := FromSnapshot(nil)
	assert.Error(t, err)

	snap := trainedModel(t).Snapshot()
	snap.ModelType = "LinearRegression"
	_, err = FromSnapshot(snap, WithLogger(quietLogger()))
	var cfgErr *errors.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))

	snap = trainedModel(t).Snapshot()
	snap.Constraints[0].A[1] = []float64{1, 1}
	_, err = FromSnapshot(snap, WithLogger(quietLogger()))
	assert.Error(t, err)
}
