// Package provider implements the crypto provider: a party trusted only for
// randomness. It deals shares of multiplication triples and truncation pairs
// to the compute parties and never sees a share of real data.
package provider

import (
	"io"
	"math/big"
	"sync"

	"go.dedis.ch/smpcreg/peer/impl/secretshare"
	"go.dedis.ch/smpcreg/types"
	"go.dedis.ch/smpcreg/zp"
	"golang.org/x/xerrors"
)

// Dealer generates correlated randomness for a fixed set of parties.
//
// - implements secretshare.TripleSource
type Dealer struct {
	field     *zp.Field
	parties   int
	precision secretshare.Precision
	rand      io.Reader

	sync.Mutex
	budget      int
	issued      int
	truncations int
}

var _ secretshare.TripleSource = (*Dealer)(nil)

// NewDealer creates a dealer for n parties. A budget of 0 means unlimited
// triples; truncation pairs are not budgeted. A nil reader means crypto/rand.
func NewDealer(f *zp.Field, parties int, precision secretshare.Precision, budget int, r io.Reader) (*Dealer, error) {
	if parties < 2 {
		return nil, xerrors.Errorf("dealer for %d parties: %w", parties, types.ErrInvalidPartyCount)
	}
	err := precision.Validate(f)
	if err != nil {
		return nil, err
	}
	if budget < 0 {
		return nil, xerrors.Errorf("negative triple budget %d", budget)
	}
	return &Dealer{
		field:     f,
		parties:   parties,
		precision: precision,
		rand:      r,
		budget:    budget,
	}, nil
}

// Parties returns the number of parties the dealer splits for.
func (d *Dealer) Parties() int {
	return d.parties
}

// Issued returns the number of triples dealt so far.
func (d *Dealer) Issued() int {
	d.Lock()
	defer d.Unlock()
	return d.issued
}

// Truncations returns the number of truncation pairs dealt so far.
func (d *Dealer) Truncations() int {
	d.Lock()
	defer d.Unlock()
	return d.truncations
}

// Remaining returns how many triples can still be dealt, or -1 if unlimited.
func (d *Dealer) Remaining() int {
	d.Lock()
	defer d.Unlock()
	if d.budget == 0 {
		return -1
	}
	return d.budget - d.issued
}

// Elementwise deals one triple (U, V, U o V) of shape rows x cols.
func (d *Dealer) Elementwise(rows, cols int) ([]secretshare.Triple, error) {
	if rows <= 0 || cols <= 0 {
		return nil, xerrors.Errorf("elementwise triple %dx%d: %w", rows, cols, types.ErrShapeMismatch)
	}
	err := d.take()
	if err != nil {
		return nil, err
	}

	u, err := d.field.RandMatrix(d.rand, rows, cols)
	if err != nil {
		return nil, err
	}
	v, err := d.field.RandMatrix(d.rand, rows, cols)
	if err != nil {
		return nil, err
	}
	w, err := d.field.Hadamard(u, v)
	if err != nil {
		return nil, err
	}
	return d.splitTriple(u, v, w)
}

// MatMul deals one triple (U, V, U * V) with U of shape m x k and V of k x n.
func (d *Dealer) MatMul(m, k, n int) ([]secretshare.Triple, error) {
	if m <= 0 || k <= 0 || n <= 0 {
		return nil, xerrors.Errorf("matmul triple %dx%dx%d: %w", m, k, n, types.ErrShapeMismatch)
	}
	err := d.take()
	if err != nil {
		return nil, err
	}

	u, err := d.field.RandMatrix(d.rand, m, k)
	if err != nil {
		return nil, err
	}
	v, err := d.field.RandMatrix(d.rand, k, n)
	if err != nil {
		return nil, err
	}
	w, err := d.field.MatMul(u, v)
	if err != nil {
		return nil, err
	}
	return d.splitTriple(u, v, w)
}

// Truncation deals one truncation pair of shape rows x cols.
func (d *Dealer) Truncation(rows, cols int) ([]secretshare.TruncPair, error) {
	if rows <= 0 || cols <= 0 {
		return nil, xerrors.Errorf("truncation pair %dx%d: %w", rows, cols, types.ErrShapeMismatch)
	}

	r := zp.NewMatrix(rows, cols)
	high := zp.NewMatrix(rows, cols)
	for i := range r.Data {
		v, err := d.field.RandBits(d.rand, d.precision.Bound+d.precision.Sigma)
		if err != nil {
			return nil, err
		}
		r.Data[i] = v
		high.Data[i] = new(big.Int).Rsh(v, d.precision.FracBits)
	}

	rShares, err := secretshare.ShareMatrix(d.rand, d.field, r, d.parties)
	if err != nil {
		return nil, err
	}
	highShares, err := secretshare.ShareMatrix(d.rand, d.field, high, d.parties)
	if err != nil {
		return nil, err
	}

	d.Lock()
	d.truncations++
	d.Unlock()

	pairs := make([]secretshare.TruncPair, d.parties)
	for i := range pairs {
		pairs[i] = secretshare.TruncPair{R: rShares.Shares[i], RHigh: highShares.Shares[i]}
	}
	return pairs, nil
}

// Deal produces the per-party parts of a correlation of the given kind, in
// the order carried by types.CorrelationMessage.
func (d *Dealer) Deal(kind types.CorrelationKind, dims []int) ([][]*zp.Matrix, error) {
	switch kind {
	case types.CorrelationElementwise:
		if len(dims) != 2 {
			return nil, dimsErr(kind, dims)
		}
		triples, err := d.Elementwise(dims[0], dims[1])
		if err != nil {
			return nil, err
		}
		return tripleParts(triples), nil
	case types.CorrelationMatMul:
		if len(dims) != 3 {
			return nil, dimsErr(kind, dims)
		}
		triples, err := d.MatMul(dims[0], dims[1], dims[2])
		if err != nil {
			return nil, err
		}
		return tripleParts(triples), nil
	case types.CorrelationTruncation:
		if len(dims) != 2 {
			return nil, dimsErr(kind, dims)
		}
		pairs, err := d.Truncation(dims[0], dims[1])
		if err != nil {
			return nil, err
		}
		parts := make([][]*zp.Matrix, len(pairs))
		for i, p := range pairs {
			parts[i] = []*zp.Matrix{p.R, p.RHigh}
		}
		return parts, nil
	default:
		return nil, xerrors.Errorf("unknown correlation kind %q", kind)
	}
}

func (d *Dealer) take() error {
	d.Lock()
	defer d.Unlock()
	if d.budget > 0 && d.issued >= d.budget {
		return xerrors.Errorf("all %d triples dealt: %w", d.budget, types.ErrTripleExhausted)
	}
	d.issued++
	return nil
}

func (d *Dealer) splitTriple(u, v, w *zp.Matrix) ([]secretshare.Triple, error) {
	us, err := secretshare.ShareMatrix(d.rand, d.field, u, d.parties)
	if err != nil {
		return nil, err
	}
	vs, err := secretshare.ShareMatrix(d.rand, d.field, v, d.parties)
	if err != nil {
		return nil, err
	}
	ws, err := secretshare.ShareMatrix(d.rand, d.field, w, d.parties)
	if err != nil {
		return nil, err
	}

	triples := make([]secretshare.Triple, d.parties)
	for i := range triples {
		triples[i] = secretshare.Triple{U: us.Shares[i], V: vs.Shares[i], W: ws.Shares[i]}
	}
	return triples, nil
}

func tripleParts(triples []secretshare.Triple) [][]*zp.Matrix {
	parts := make([][]*zp.Matrix, len(triples))
	for i, t := range triples {
		parts[i] = []*zp.Matrix{t.U, t.V, t.W}
	}
	return parts
}

func dimsErr(kind types.CorrelationKind, dims []int) error {
	return xerrors.Errorf("%s correlation with dims %v: %w", kind, dims, types.ErrShapeMismatch)
}
