package ols

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/smpcreg/internal/dataset"
	"go.dedis.ch/smpcreg/types"
)

func Test_ols_exact_line(t *testing.T) {
	x := [][]float64{{1}, {2}, {3}, {4}, {5}}
	y := []float64{3, 5, 7.5, 9, 11}

	res, err := Fit(x, y, true)
	require.NoError(t, err)

	require.Equal(t, 3, res.DF)
	require.InDelta(t, 1.1, res.Coefficients[0], 1e-9)
	require.InDelta(t, 2.0, res.Coefficients[1], 1e-9)
	require.Greater(t, res.RSquared, 0.99)
	require.Less(t, res.PValues[1], 1e-3)
}

func Test_ols_recovers_synthetic(t *testing.T) {
	opts := dataset.DefaultSynthetic
	opts.Rows = 500
	opts.Noise = 0.1
	shards, beta, err := dataset.Synthetic(opts)
	require.NoError(t, err)

	res, err := FitShards(shards, true)
	require.NoError(t, err)
	require.Equal(t, 1000, res.Rows)

	for j := range beta {
		require.InDelta(t, beta[j], res.Coefficients[j], 5*res.StdErrors[j]+1e-3)
	}
}

func Test_ols_invalid(t *testing.T) {
	_, err := Fit(nil, nil, true)
	require.True(t, errors.Is(err, types.ErrShapeMismatch))

	_, err = Fit([][]float64{{1}, {2}}, []float64{1, 2}, true)
	require.True(t, errors.Is(err, types.ErrShapeMismatch))

	_, err = Fit([][]float64{{0}, {0}, {0}, {0}}, []float64{1, 2, 3, 4}, false)
	require.Error(t, err)
}
