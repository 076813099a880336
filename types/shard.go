package types

import "golang.org/x/xerrors"

// Shard is one data holder's slice of the design matrix and target vector.
// It never leaves the holder: only secret shares of aggregates derived from
// it do.
type Shard struct {
	Features []string
	X        [][]float64
	Y        []float64
}

// Rows returns the number of observations.
func (s *Shard) Rows() int {
	return len(s.X)
}

// Cols returns the number of features.
func (s *Shard) Cols() int {
	if len(s.X) == 0 {
		return len(s.Features)
	}
	return len(s.X[0])
}

// Validate checks that every row has the expected number of features and that
// there is one target per row.
func (s *Shard) Validate(features int) error {
	if len(s.X) == 0 {
		return xerrors.Errorf("empty shard: %w", ErrShapeMismatch)
	}
	if len(s.Y) != len(s.X) {
		return xerrors.Errorf("%d rows but %d targets: %w", len(s.X), len(s.Y), ErrShapeMismatch)
	}
	for i, row := range s.X {
		if len(row) != features {
			return xerrors.Errorf("row %d has %d features, want %d: %w", i, len(row), features, ErrShapeMismatch)
		}
	}
	if len(s.Features) != 0 && len(s.Features) != features {
		return xerrors.Errorf("%d feature names for %d features: %w", len(s.Features), features, ErrShapeMismatch)
	}
	return nil
}
