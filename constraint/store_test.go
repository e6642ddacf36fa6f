package constraint

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/ubayfs/pkg/errors"
)

func mustBuild(t *testing.T, n int, intents []Intent, rho float64, opts ...Option) *Constraint {
	t.Helper()
	c, err := Build(n, intents, []float64{rho}, opts...)
	require.NoError(t, err)
	return c
}

func TestStoreMergesOnEqualBlockMatrix(t *testing.T) {
	first := mustBuild(t, 4, []Intent{MaxSize{Size: 2}}, inf)
	second := mustBuild(t, 4, []Intent{CannotLink{Indices: []int{0, 1}}}, 1)

	s, err := NewStore(first, second)
	require.NoError(t, err)

	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 2, s.Rows())
	assert.Equal(t, []float64{inf, 1}, s.Rho())

	// the original groups are untouched
	assert.Equal(t, 1, first.Rows())
	assert.Equal(t, 1, second.Rows())
}

func TestStoreAppendsOnDifferentBlockMatrix(t *testing.T) {
	plain := mustBuild(t, 4, []Intent{MaxSize{Size: 2}}, inf)
	blocked := mustBuild(t, 2, []Intent{CannotLink{Indices: []int{0, 1}}}, inf,
		WithBlockList([][]int{{0, 1}, {2, 3}}, 4))

	s, err := NewStore(plain, blocked)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 2, s.Rows())

	s.Reset()
	assert.Equal(t, 0, s.Len())
	require.Error(t, s.Add(nil))
}

func TestStoreAdmissibilityAggregation(t *testing.T) {
	soft1 := mustBuild(t, 3, []Intent{MaxSize{Size: 1}}, 1)
	soft2 := mustBuild(t, 1, []Intent{MaxSize{Size: 0}}, 2, WithBlockList([][]int{{0, 1, 2}}, 3))

	s, err := NewStore(soft1, soft2)
	require.NoError(t, err)
	require.Equal(t, 2, s.Len())

	state := []float64{1, 1, 0}
	g1, err := soft1.GroupAdmissibility(state, true)
	require.NoError(t, err)
	g2, err := soft2.GroupAdmissibility(state, true)
	require.NoError(t, err)

	lg, err := s.Admissibility(state, true)
	require.NoError(t, err)
	assert.InDelta(t, g1+g2, lg, 1e-12)

	lin, err := s.Admissibility(state, false)
	require.NoError(t, err)
	assert.InDelta(t, math.Exp(g1)*math.Exp(g2), lin, 1e-12)
	assert.InDelta(t, math.Exp(lg), lin, 1e-12)

	empty := &Store{}
	lg, err = empty.Admissibility(state, true)
	require.NoError(t, err)
	assert.Equal(t, 0.0, lg)
	lin, err = empty.Admissibility(state, false)
	require.NoError(t, err)
	assert.Equal(t, 1.0, lin)
}

func TestStoreViolations(t *testing.T) {
	s, err := NewStore(
		mustBuild(t, 3, []Intent{MaxSize{Size: 1}}, inf),
		mustBuild(t, 1, []Intent{MaxSize{Size: 0}}, 1, WithBlockList([][]int{{0, 1, 2}}, 3)),
	)
	require.NoError(t, err)

	n, err := s.Violations([]float64{1, 1, 0})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = s.Violations([]float64{1, 1})
	var dimErr *errors.DimensionError
	assert.True(t, errors.As(err, &dimErr))
}

func TestStoreMaxSize(t *testing.T) {
	tests := []struct {
		name    string
		groups  []*Constraint
		want    int
		wantErr bool
	}{
		{
			name:   "single",
			groups: []*Constraint{mustBuild(t, 4, []Intent{MaxSize{Size: 2}}, inf)},
			want:   2,
		},
		{
			name:    "none",
			groups:  []*Constraint{mustBuild(t, 4, []Intent{CannotLink{Indices: []int{0, 1}}}, inf)},
			wantErr: true,
		},
		{
			name:    "non-positive bound",
			groups:  []*Constraint{mustBuild(t, 4, []Intent{MaxSize{Size: 0}}, inf)},
			wantErr: true,
		},
		{
			name:    "bound below one after flooring",
			groups:  []*Constraint{mustBuild(t, 4, []Intent{MaxSize{Size: 0.5}}, inf)},
			wantErr: true,
		},
		{
			name:   "fractional bound is floored",
			groups: []*Constraint{mustBuild(t, 4, []Intent{MaxSize{Size: 2.7}}, inf)},
			want:   2,
		},
		{
			// 同じブロック行列のグループは連結されても別々の最大サイズとして数える
			name: "merged groups",
			groups: []*Constraint{
				mustBuild(t, 4, []Intent{MaxSize{Size: 2}}, inf),
				mustBuild(t, 4, []Intent{MaxSize{Size: 3}}, 1),
			},
			wantErr: true,
		},
		{
			name:    "two rows in one group",
			groups:  []*Constraint{mustBuild(t, 4, []Intent{MaxSize{Size: 2}, MaxSize{Size: 3}}, inf)},
			wantErr: true,
		},
		{
			name: "blocked max size is not counted",
			groups: []*Constraint{
				mustBuild(t, 4, []Intent{MaxSize{Size: 2}}, inf),
				mustBuild(t, 2, []Intent{MaxSize{Size: 1}}, inf, WithBlockList([][]int{{0, 1}, {2, 3}}, 4)),
			},
			want: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewStore(tt.groups...)
			require.NoError(t, err)

			got, err := s.MaxSize()
			if tt.wantErr {
				var cfgErr *errors.ConfigurationError
				assert.True(t, errors.As(err, &cfgErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
