package dataset

import (
	"fmt"
	"math/rand/v2"

	"go.dedis.ch/smpcreg/types"
	"golang.org/x/xerrors"
)

// SyntheticOptions shapes a synthetic regression problem.
type SyntheticOptions struct {
	Seed     uint64
	Holders  int
	Rows     int // per holder
	Features int

	Intercept float64
	Noise     float64
}

// DefaultSynthetic mirrors the housing tutorial: two holders of 50 rows with
// 13 features.
var DefaultSynthetic = SyntheticOptions{
	Seed:      438,
	Holders:   2,
	Rows:      50,
	Features:  13,
	Intercept: 3,
	Noise:     0.5,
}

// Synthetic draws features uniformly in [0.1, 10] and targets from a linear
// model with the returned coefficients, the intercept first. The same seed
// always gives the same shards.
func Synthetic(opts SyntheticOptions) ([]*types.Shard, []float64, error) {
	if opts.Holders < 1 || opts.Rows < 1 || opts.Features < 1 {
		return nil, nil, xerrors.Errorf("%d holders of %d rows with %d features",
			opts.Holders, opts.Rows, opts.Features)
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x5eed))

	names := make([]string, opts.Features)
	beta := make([]float64, opts.Features+1)
	beta[0] = opts.Intercept
	for j := range names {
		names[j] = fmt.Sprintf("x%d", j+1)
		// keep every coefficient away from zero
		b := 0.2 + 0.8*rng.Float64()
		if rng.IntN(2) == 0 {
			b = -b
		}
		beta[j+1] = b
	}

	shards := make([]*types.Shard, opts.Holders)
	for h := range shards {
		s := &types.Shard{
			Features: names,
			X:        make([][]float64, opts.Rows),
			Y:        make([]float64, opts.Rows),
		}
		for i := range s.X {
			row := make([]float64, opts.Features)
			y := beta[0] + opts.Noise*rng.NormFloat64()
			for j := range row {
				row[j] = 0.1 + 9.9*rng.Float64()
				y += beta[j+1] * row[j]
			}
			s.X[i] = row
			s.Y[i] = y
		}
		shards[h] = s
	}

	return shards, beta, nil
}
