package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/ubayfs/pkg/errors"
)

func TestReadDataset(t *testing.T) {
	in := "a, y, b\n1, 0, 2.5\n3, 1, -4\n"

	ds, err := ReadDataset(strings.NewReader(in), "y")
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, ds.Names)
	assert.Equal(t, []float64{0, 1}, ds.Y)
	r, c := ds.X.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, 2.5, ds.X.At(0, 1))
	assert.Equal(t, 3.0, ds.X.At(1, 0))
}

func TestReadDatasetErrors(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		target string
		empty  bool
	}{
		{name: "empty input", input: "", target: "y", empty: true},
		{name: "header only", input: "a,y\n", target: "y", empty: true},
		{name: "missing target", input: "a,b\n1,2\n", target: "y"},
		{name: "target only", input: "y\n1\n", target: "y"},
		{name: "not a number", input: "a,y\n1,0\nx,1\n", target: "y"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadDataset(strings.NewReader(tt.input), tt.target)
			var dataErr *errors.DataError
			require.True(t, errors.As(err, &dataErr), "got %v", err)
			if tt.empty {
				assert.ErrorIs(t, err, errors.ErrEmptyData)
			}
		})
	}
}

func TestReadDatasetRaggedRow(t *testing.T) {
	_, err := ReadDataset(strings.NewReader("a,b,y\n1,2,0\n1,2\n"), "y")
	assert.Error(t, err)
}
