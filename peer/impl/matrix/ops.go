// Package matrix implements linear algebra on secret-shared fixed-point
// matrices. Every function takes and returns the share of the calling party;
// all parties must call the same functions in the same order.
package matrix

import (
	"context"
	"math/big"

	"go.dedis.ch/smpcreg/peer/impl/secretshare"
	"go.dedis.ch/smpcreg/types"
	"go.dedis.ch/smpcreg/zp"
	"golang.org/x/xerrors"
)

// Engine is what a party offers to the operations: sharing, opening, and
// correlated randomness from the crypto provider.
type Engine interface {
	Index() int
	Parties() int
	Field() *zp.Field
	Precision() secretshare.Precision

	// Input shares value, known to party owner only, among all parties.
	Input(ctx context.Context, owner int, value *zp.Matrix) (*zp.Matrix, error)

	// Open reveals a shared value to every party.
	Open(ctx context.Context, share *zp.Matrix) (*zp.Matrix, error)

	// Triple returns the party's share of a fresh multiplication triple.
	Triple(ctx context.Context, kind types.CorrelationKind, dims []int) (secretshare.Triple, error)

	// TruncPair returns the party's share of a fresh truncation pair.
	TruncPair(ctx context.Context, rows, cols int) (secretshare.TruncPair, error)
}

// Ops runs the operations of one party.
type Ops struct {
	engine Engine
	field  *zp.Field
	prec   secretshare.Precision
	fp     *zp.FixedPoint
}

// NewOps returns the operations running on e.
func NewOps(e Engine) (*Ops, error) {
	fp, err := zp.NewFixedPoint(e.Field(), e.Precision().FracBits)
	if err != nil {
		return nil, err
	}
	return &Ops{
		engine: e,
		field:  e.Field(),
		prec:   e.Precision(),
		fp:     fp,
	}, nil
}

// FixedPoint returns the encoding of the shared values.
func (o *Ops) FixedPoint() *zp.FixedPoint {
	return o.fp
}

// Engine returns the engine of the operations.
func (o *Ops) Engine() Engine {
	return o.engine
}

// Public returns the share of a public value: party 0 holds it, the others
// hold zero.
func (o *Ops) Public(m *zp.Matrix) *zp.Matrix {
	if o.engine.Index() == 0 {
		return o.field.Reduce(m)
	}
	return zp.NewMatrix(m.Rows, m.Cols)
}

// Add returns a + b.
func (o *Ops) Add(a, b *zp.Matrix) (*zp.Matrix, error) {
	return o.field.MatAdd(a, b)
}

// Sub returns a - b.
func (o *Ops) Sub(a, b *zp.Matrix) (*zp.Matrix, error) {
	return o.field.MatSub(a, b)
}

// Neg returns -a.
func (o *Ops) Neg(a *zp.Matrix) *zp.Matrix {
	res := zp.NewMatrix(a.Rows, a.Cols)
	for i, v := range a.Data {
		res.Data[i] = o.field.Neg(v)
	}
	return res
}

// AddPublic returns a + c for a public, encoded c.
func (o *Ops) AddPublic(a, c *zp.Matrix) (*zp.Matrix, error) {
	return o.field.MatAdd(a, o.Public(c))
}

// Transpose is local.
func (o *Ops) Transpose(a *zp.Matrix) *zp.Matrix {
	return a.Transpose()
}

// ScalePublic returns c * a for a public scalar c.
func (o *Ops) ScalePublic(ctx context.Context, a *zp.Matrix, c float64) (*zp.Matrix, error) {
	enc, err := o.fp.Encode(c)
	if err != nil {
		return nil, err
	}
	return o.Truncate(ctx, o.field.ScalarMul(enc, a))
}

// Sum returns the 1x1 sum of the entries of a. It is local.
func (o *Ops) Sum(a *zp.Matrix) *zp.Matrix {
	acc := new(big.Int)
	for _, v := range a.Data {
		acc = o.field.Add(acc, v)
	}
	return zp.Scalar(acc)
}

// Truncate divides a value carrying twice the fractional bits by 2^f. The
// result may be off by one unit in the last place.
func (o *Ops) Truncate(ctx context.Context, a *zp.Matrix) (*zp.Matrix, error) {
	pair, err := o.engine.TruncPair(ctx, a.Rows, a.Cols)
	if err != nil {
		return nil, err
	}
	masked, err := secretshare.TruncMask(o.field, o.engine.Index(), a, pair, o.prec.Bound)
	if err != nil {
		return nil, err
	}
	c, err := o.engine.Open(ctx, masked)
	if err != nil {
		return nil, err
	}
	return secretshare.TruncCombine(o.field, o.engine.Index(), c, pair, o.prec.FracBits, o.prec.Bound)
}

// MatMul returns the share of a * b with one matrix triple.
func (o *Ops) MatMul(ctx context.Context, a, b *zp.Matrix) (*zp.Matrix, error) {
	if a.Cols != b.Rows {
		return nil, xerrors.Errorf("matmul %dx%d by %dx%d: %w", a.Rows, a.Cols, b.Rows, b.Cols, types.ErrShapeMismatch)
	}

	t, err := o.engine.Triple(ctx, types.CorrelationMatMul, []int{a.Rows, a.Cols, b.Cols})
	if err != nil {
		return nil, err
	}
	d, e, err := o.openMasks(ctx, a, b, t)
	if err != nil {
		return nil, err
	}
	z, err := secretshare.CombineMatMul(o.field, o.engine.Index(), t, d, e)
	if err != nil {
		return nil, err
	}
	return o.Truncate(ctx, z)
}

// Hadamard returns the share of the elementwise product a o b with one
// elementwise triple.
func (o *Ops) Hadamard(ctx context.Context, a, b *zp.Matrix) (*zp.Matrix, error) {
	if !a.SameShape(b) {
		return nil, xerrors.Errorf("hadamard %dx%d by %dx%d: %w", a.Rows, a.Cols, b.Rows, b.Cols, types.ErrShapeMismatch)
	}

	t, err := o.engine.Triple(ctx, types.CorrelationElementwise, []int{a.Rows, a.Cols})
	if err != nil {
		return nil, err
	}
	d, e, err := o.openMasks(ctx, a, b, t)
	if err != nil {
		return nil, err
	}
	z, err := secretshare.CombineElementwise(o.field, o.engine.Index(), t, d, e)
	if err != nil {
		return nil, err
	}
	return o.Truncate(ctx, z)
}

// openMasks opens d = a - U and e = b - V in a single round.
func (o *Ops) openMasks(ctx context.Context, a, b *zp.Matrix, t secretshare.Triple) (*zp.Matrix, *zp.Matrix, error) {
	d, err := secretshare.Mask(o.field, a, t.U)
	if err != nil {
		return nil, nil, err
	}
	e, err := secretshare.Mask(o.field, b, t.V)
	if err != nil {
		return nil, nil, err
	}

	packed := &zp.Matrix{Rows: 1, Cols: len(d.Data) + len(e.Data)}
	packed.Data = append(append(packed.Data, d.Data...), e.Data...)

	opened, err := o.engine.Open(ctx, packed)
	if err != nil {
		return nil, nil, err
	}

	dOpen := &zp.Matrix{Rows: d.Rows, Cols: d.Cols, Data: opened.Data[:len(d.Data)]}
	eOpen := &zp.Matrix{Rows: e.Rows, Cols: e.Cols, Data: opened.Data[len(d.Data):]}
	return dOpen, eOpen, nil
}

// Reveal opens a and decodes it.
func (o *Ops) Reveal(ctx context.Context, a *zp.Matrix) ([]float64, error) {
	opened, err := o.engine.Open(ctx, a)
	if err != nil {
		return nil, err
	}
	return o.fp.DecodeMatrix(opened), nil
}
