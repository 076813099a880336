// Package secretshare implements additive secret sharing over Z_p together
// with the Beaver-triple algebra used for secure multiplication.
//
// Functions working on a ShareSet see the shares of every party at once; they
// back the in-process engine and the tests. The per-party helpers (Mask,
// CombineElementwise, CombineMatMul, TruncMask, TruncCombine) are what a single
// party runs in the networked protocol.
package secretshare

import (
	"io"
	"math/big"

	"go.dedis.ch/smpcreg/types"
	"go.dedis.ch/smpcreg/zp"
	"golang.org/x/xerrors"
)

// ShareSet holds one share per party. A nil entry is a missing share.
type ShareSet struct {
	Field  *zp.Field
	Shares []*zp.Matrix
}

// Parties returns the number of parties the value was split for.
func (s *ShareSet) Parties() int {
	return len(s.Shares)
}

// Share splits the scalar v into n additive shares.
func Share(r io.Reader, f *zp.Field, v *big.Int, parties int) (*ShareSet, error) {
	return ShareMatrix(r, f, zp.Scalar(f.Mod(v)), parties)
}

// ShareMatrix splits m into n additive shares: the first n-1 are uniform and
// the last one completes the sum, so any n-1 of them are independent of m.
func ShareMatrix(r io.Reader, f *zp.Field, m *zp.Matrix, parties int) (*ShareSet, error) {
	if parties < 2 {
		return nil, xerrors.Errorf("sharing among %d parties: %w", parties, types.ErrInvalidPartyCount)
	}
	err := m.Validate()
	if err != nil {
		return nil, err
	}

	shares := make([]*zp.Matrix, parties)
	last := f.Reduce(m)
	for i := 0; i < parties-1; i++ {
		shares[i], err = f.RandMatrix(r, m.Rows, m.Cols)
		if err != nil {
			return nil, err
		}
		last, err = f.MatSub(last, shares[i])
		if err != nil {
			return nil, err
		}
	}
	shares[parties-1] = last

	return &ShareSet{Field: f, Shares: shares}, nil
}

// Reconstruct sums the shares of every party. It refuses partial sets.
func Reconstruct(s *ShareSet) (*zp.Matrix, error) {
	if s == nil || len(s.Shares) == 0 {
		return nil, xerrors.Errorf("no shares: %w", types.ErrIncompleteShares)
	}
	missing := 0
	for _, sh := range s.Shares {
		if sh == nil {
			missing++
		}
	}
	if missing > 0 {
		return nil, xerrors.Errorf("%d of %d shares missing: %w", missing, len(s.Shares), types.ErrIncompleteShares)
	}
	return Sum(s.Field, s.Shares...)
}

// Sum adds matrices of the same shape.
func Sum(f *zp.Field, ms ...*zp.Matrix) (*zp.Matrix, error) {
	if len(ms) == 0 {
		return nil, xerrors.Errorf("nothing to sum: %w", types.ErrIncompleteShares)
	}
	acc := f.Reduce(ms[0])
	for _, m := range ms[1:] {
		var err error
		acc, err = f.MatAdd(acc, m)
		if err != nil {
			return nil, err
		}
	}
	return acc, nil
}

// Add returns the shares of a + b. It is local: no interaction needed.
func Add(a, b *ShareSet) (*ShareSet, error) {
	if a.Parties() != b.Parties() {
		return nil, xerrors.Errorf("adding %d and %d shares: %w", a.Parties(), b.Parties(), types.ErrShapeMismatch)
	}
	res := &ShareSet{Field: a.Field, Shares: make([]*zp.Matrix, a.Parties())}
	for i := range a.Shares {
		if a.Shares[i] == nil || b.Shares[i] == nil {
			return nil, xerrors.Errorf("party %d: %w", i, types.ErrIncompleteShares)
		}
		sum, err := a.Field.MatAdd(a.Shares[i], b.Shares[i])
		if err != nil {
			return nil, err
		}
		res.Shares[i] = sum
	}
	return res, nil
}

// Multiply computes shares of a o b with one elementwise Beaver triple drawn
// from src. Both d = a - U and e = b - V are opened; they are uniformly
// masked and leak nothing about a or b.
func Multiply(a, b *ShareSet, src TripleSource) (*ShareSet, error) {
	n := a.Parties()
	if n != b.Parties() {
		return nil, xerrors.Errorf("multiplying %d and %d shares: %w", n, b.Parties(), types.ErrShapeMismatch)
	}
	if n < 2 {
		return nil, xerrors.Errorf("multiplying among %d parties: %w", n, types.ErrInvalidPartyCount)
	}
	for i := 0; i < n; i++ {
		if a.Shares[i] == nil || b.Shares[i] == nil {
			return nil, xerrors.Errorf("party %d: %w", i, types.ErrIncompleteShares)
		}
		if !a.Shares[i].SameShape(b.Shares[i]) || !a.Shares[i].SameShape(a.Shares[0]) {
			return nil, xerrors.Errorf("party %d holds %dx%d and %dx%d: %w", i,
				a.Shares[i].Rows, a.Shares[i].Cols, b.Shares[i].Rows, b.Shares[i].Cols, types.ErrShapeMismatch)
		}
	}

	rows, cols := a.Shares[0].Rows, a.Shares[0].Cols
	triples, err := src.Elementwise(rows, cols)
	if err != nil {
		return nil, err
	}
	if len(triples) != n {
		return nil, xerrors.Errorf("provider dealt %d triple shares for %d parties: %w",
			len(triples), n, types.ErrInvalidPartyCount)
	}

	f := a.Field
	dShares := make([]*zp.Matrix, n)
	eShares := make([]*zp.Matrix, n)
	for i := 0; i < n; i++ {
		dShares[i], err = Mask(f, a.Shares[i], triples[i].U)
		if err != nil {
			return nil, err
		}
		eShares[i], err = Mask(f, b.Shares[i], triples[i].V)
		if err != nil {
			return nil, err
		}
	}
	d, err := Sum(f, dShares...)
	if err != nil {
		return nil, err
	}
	e, err := Sum(f, eShares...)
	if err != nil {
		return nil, err
	}

	res := &ShareSet{Field: f, Shares: make([]*zp.Matrix, n)}
	for i := 0; i < n; i++ {
		res.Shares[i], err = CombineElementwise(f, i, triples[i], d, e)
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}
