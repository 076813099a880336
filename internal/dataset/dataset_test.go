package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/smpcreg/peer/impl/summary"
	"go.dedis.ch/smpcreg/types"
)

const housing = `CRIM, RM, AGE, MEDV
0.00632, 6.575, 65.2, 24.0
0.02731, 6.421, 78.9, 21.6
0.02729, 7.185, 61.1, 34.7
`

func Test_dataset_load(t *testing.T) {
	shard, err := Load(strings.NewReader(housing), "MEDV", nil)
	require.NoError(t, err)

	require.Equal(t, []string{"CRIM", "RM", "AGE"}, shard.Features)
	require.Equal(t, 3, shard.Rows())
	require.Equal(t, []float64{0.02731, 6.421, 78.9}, shard.X[1])
	require.Equal(t, []float64{24.0, 21.6, 34.7}, shard.Y)

	shard, err = Load(strings.NewReader(housing), "MEDV", []string{"AGE", "RM"})
	require.NoError(t, err)
	require.Equal(t, []float64{61.1, 7.185}, shard.X[2])
}

func Test_dataset_load_file(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.csv")
	require.NoError(t, os.WriteFile(path, []byte(housing), 0o600))

	shard, err := LoadFile(path, "MEDV", []string{"RM"})
	require.NoError(t, err)
	require.Equal(t, 3, shard.Rows())

	_, err = LoadFile(filepath.Join(t.TempDir(), "none.csv"), "MEDV", nil)
	require.Error(t, err)
}

func Test_dataset_load_invalid(t *testing.T) {
	_, err := Load(strings.NewReader(housing), "PRICE", nil)
	require.Error(t, err)

	_, err = Load(strings.NewReader(housing), "MEDV", []string{"TAX"})
	require.Error(t, err)

	_, err = Load(strings.NewReader("a,y\n1,x\n"), "y", nil)
	require.Error(t, err)

	_, err = Load(strings.NewReader("a,y\n"), "y", nil)
	require.True(t, errors.Is(err, types.ErrShapeMismatch))
}

func Test_dataset_split(t *testing.T) {
	shards, _, err := Synthetic(SyntheticOptions{Seed: 1, Holders: 1, Rows: 11, Features: 2})
	require.NoError(t, err)

	parts, err := Split(shards[0], 3)
	require.NoError(t, err)
	require.Len(t, parts, 3)

	total := 0
	for _, p := range parts {
		require.GreaterOrEqual(t, p.Rows(), 3)
		total += p.Rows()
	}
	require.Equal(t, 11, total)
	require.Equal(t, shards[0].X[10], parts[2].X[parts[2].Rows()-1])

	_, err = Split(shards[0], 12)
	require.Error(t, err)
}

func Test_dataset_scaling(t *testing.T) {
	shard, err := Load(strings.NewReader(housing), "MEDV", nil)
	require.NoError(t, err)

	sc, err := AutoFactors(10, shard)
	require.NoError(t, err)
	require.Equal(t, []float64{1, 1, 10}, sc.X)
	require.Equal(t, 10.0, sc.Y)

	scaled, err := sc.Apply(shard)
	require.NoError(t, err)
	require.InDelta(t, 7.89, scaled.X[1][2], 1e-12)
	require.InDelta(t, 3.47, scaled.Y[2], 1e-12)
	// the input is untouched
	require.Equal(t, 78.9, shard.X[1][2])

	s := &summary.Summary{
		Intercept:    &summary.Term{Name: summary.InterceptName, Coefficient: 1, StdError: 0.5, TValue: 2},
		Coefficients: []summary.Term{{Name: "CRIM", Coefficient: 1}, {Name: "RM", Coefficient: 1}, {Name: "AGE", Coefficient: 1, StdError: 1}},
		RSS:          2,
	}
	orig := sc.Rescale(s)
	require.Equal(t, 10.0, orig.Intercept.Coefficient)
	require.Equal(t, 2.0, orig.Intercept.TValue)
	require.Equal(t, 1.0, orig.Coefficients[2].Coefficient)
	require.Equal(t, 1.0, orig.Coefficients[2].StdError)
	require.Equal(t, 10.0, orig.Coefficients[0].Coefficient)
	require.Equal(t, 200.0, orig.RSS)
	require.Equal(t, 1.0, s.Intercept.Coefficient)
}

func Test_dataset_synthetic(t *testing.T) {
	a, beta, err := Synthetic(DefaultSynthetic)
	require.NoError(t, err)
	b, _, err := Synthetic(DefaultSynthetic)
	require.NoError(t, err)

	require.Len(t, a, 2)
	require.Len(t, beta, 14)
	require.Equal(t, a[1].X, b[1].X)
	require.Equal(t, a[0].Y, b[0].Y)

	for _, s := range a {
		require.NoError(t, s.Validate(13))
		require.Equal(t, 50, s.Rows())
		for _, row := range s.X {
			for _, v := range row {
				require.GreaterOrEqual(t, v, 0.1)
				require.LessOrEqual(t, v, 10.0)
			}
		}
	}

	_, _, err = Synthetic(SyntheticOptions{Holders: 0, Rows: 1, Features: 1})
	require.Error(t, err)
}
