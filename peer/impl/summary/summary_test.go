package summary

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/smpcreg/types"
)

func Test_summary_statistics(t *testing.T) {
	s, err := New(Revealed{
		Features:     []string{"x1", "x2"},
		Intercept:    true,
		Coefficients: []float64{1.5, 2, -0.01},
		Variances:    []float64{0.25, 0.04, 0.01},
		RSS:          12,
		TSS:          48,
		Rows:         103,
	})
	require.NoError(t, err)

	require.Equal(t, 100, s.DegreesOfFreedom)
	require.InDelta(t, 0.75, s.RSquared, 1e-12)
	require.InDelta(t, 1-0.25*102/100, s.AdjRSquared, 1e-12)
	require.InDelta(t, math.Sqrt(0.12), s.ResidualStdError, 1e-12)

	require.NotNil(t, s.Intercept)
	require.Equal(t, InterceptName, s.Intercept.Name)
	require.InDelta(t, 0.5, s.Intercept.StdError, 1e-12)
	require.InDelta(t, 3, s.Intercept.TValue, 1e-12)

	require.Len(t, s.Coefficients, 2)
	x1 := s.Coefficients[0]
	require.Equal(t, "x1", x1.Name)
	require.InDelta(t, 10, x1.TValue, 1e-12)
	require.Less(t, x1.PValue, 1e-10)

	// |t| = 0.1 is far from significant
	x2 := s.Coefficients[1]
	require.InDelta(t, -0.1, x2.TValue, 1e-12)
	require.InDelta(t, 0.92, x2.PValue, 0.01)

	require.Equal(t, []float64{1.5, 2, -0.01}, s.Values())

	out := s.String()
	require.Contains(t, out, "x1")
	require.Contains(t, out, "const")
	require.Contains(t, out, "R-squared")

	buf, err := json.Marshal(s)
	require.NoError(t, err)
	require.Contains(t, string(buf), `"std_error"`)
}

func Test_summary_no_intercept(t *testing.T) {
	s, err := New(Revealed{
		Features:     []string{"a"},
		Coefficients: []float64{3},
		Variances:    []float64{-1e-18},
		RSS:          1,
		TSS:          10,
		Rows:         5,
	})
	require.NoError(t, err)
	require.Nil(t, s.Intercept)
	require.Equal(t, 4, s.DegreesOfFreedom)
	require.True(t, math.IsNaN(s.Coefficients[0].StdError))
	require.Len(t, s.Terms(), 1)
}

func Test_summary_invalid(t *testing.T) {
	_, err := New(Revealed{Features: []string{"a"}, Coefficients: []float64{1, 2}, Variances: []float64{1}, Rows: 10})
	require.True(t, errors.Is(err, types.ErrShapeMismatch))

	_, err = New(Revealed{Features: []string{"a"}, Intercept: true, Coefficients: []float64{1, 2},
		Variances: []float64{1, 1}, Rows: 2})
	require.True(t, errors.Is(err, types.ErrShapeMismatch))
}
