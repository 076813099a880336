package secretshare

import (
	"math/big"

	"go.dedis.ch/smpcreg/zp"
	"golang.org/x/xerrors"
)

// Triple is one party's share of a multiplication triple (U, V, W) with
// W = U o V for elementwise triples and W = U * V for matrix triples.
type Triple struct {
	U *zp.Matrix
	V *zp.Matrix
	W *zp.Matrix
}

// TruncPair is one party's share of a truncation pair (R, RHigh) with
// RHigh = floor(R / 2^f) and R uniform in [0, 2^(K+sigma)).
type TruncPair struct {
	R     *zp.Matrix
	RHigh *zp.Matrix
}

// TripleSource deals elementwise triples, one party share per entry.
type TripleSource interface {
	Elementwise(rows, cols int) ([]Triple, error)
}

// Mask returns x - u, the party's contribution to an opened Beaver difference.
func Mask(f *zp.Field, x, u *zp.Matrix) (*zp.Matrix, error) {
	return f.MatSub(x, u)
}

// CombineElementwise returns the share z_i = W_i + d o V_i + U_i o e (+ d o e
// for party 0) of a o b, given the opened d = a - U and e = b - V.
func CombineElementwise(f *zp.Field, idx int, t Triple, d, e *zp.Matrix) (*zp.Matrix, error) {
	dv, err := f.Hadamard(d, t.V)
	if err != nil {
		return nil, err
	}
	ue, err := f.Hadamard(t.U, e)
	if err != nil {
		return nil, err
	}
	z, err := f.MatAdd(t.W, dv)
	if err != nil {
		return nil, err
	}
	z, err = f.MatAdd(z, ue)
	if err != nil {
		return nil, err
	}
	if idx == 0 {
		de, err := f.Hadamard(d, e)
		if err != nil {
			return nil, err
		}
		z, err = f.MatAdd(z, de)
		if err != nil {
			return nil, err
		}
	}
	return z, nil
}

// CombineMatMul is CombineElementwise for matrix triples:
// z_i = W_i + d * V_i + U_i * e (+ d * e for party 0).
func CombineMatMul(f *zp.Field, idx int, t Triple, d, e *zp.Matrix) (*zp.Matrix, error) {
	dv, err := f.MatMul(d, t.V)
	if err != nil {
		return nil, err
	}
	ue, err := f.MatMul(t.U, e)
	if err != nil {
		return nil, err
	}
	z, err := f.MatAdd(t.W, dv)
	if err != nil {
		return nil, err
	}
	z, err = f.MatAdd(z, ue)
	if err != nil {
		return nil, err
	}
	if idx == 0 {
		de, err := f.MatMul(d, e)
		if err != nil {
			return nil, err
		}
		z, err = f.MatAdd(z, de)
		if err != nil {
			return nil, err
		}
	}
	return z, nil
}

// TruncMask returns c_i = x_i + R_i (+ 2^bound for party 0). Once opened,
// c = x + 2^bound + R is non-negative for |x| < 2^bound and statistically
// hides x behind R.
func TruncMask(f *zp.Field, idx int, x *zp.Matrix, pair TruncPair, bound uint) (*zp.Matrix, error) {
	c, err := f.MatAdd(x, pair.R)
	if err != nil {
		return nil, err
	}
	if idx != 0 {
		return c, nil
	}
	shift := new(big.Int).Lsh(big.NewInt(1), bound)
	for i := range c.Data {
		c.Data[i] = f.Add(c.Data[i], shift)
	}
	return c, nil
}

// TruncCombine returns the share of floor(x / 2^frac) (up to one unit in the
// last place) from the opened c: party 0 holds floor(c / 2^frac) - 2^(bound-frac),
// every party subtracts its share of RHigh.
func TruncCombine(f *zp.Field, idx int, c *zp.Matrix, pair TruncPair, frac, bound uint) (*zp.Matrix, error) {
	res := zp.NewMatrix(c.Rows, c.Cols)
	if idx == 0 {
		shift := new(big.Int).Lsh(big.NewInt(1), bound-frac)
		for i, v := range c.Data {
			hi := new(big.Int).Rsh(v, frac)
			res.Data[i] = f.Sub(hi, shift)
		}
	}
	return f.MatSub(res, pair.RHigh)
}

// Precision fixes the fixed-point layout shared by every party: FracBits
// fractional bits, truncation inputs bounded by 2^Bound in absolute value,
// and Sigma bits of statistical masking for opened truncation values.
type Precision struct {
	FracBits uint
	Bound    uint
	Sigma    uint
}

// DefaultPrecision fits the 255-bit default field.
var DefaultPrecision = Precision{FracBits: 48, Bound: 128, Sigma: 64}

// Validate checks that a masked truncation input cannot wrap around p.
func (p Precision) Validate(f *zp.Field) error {
	if p.FracBits == 0 || p.Bound <= 2*p.FracBits {
		return xerrors.Errorf("bound of %d bits cannot hold products of %d fractional bits", p.Bound, p.FracBits)
	}
	if int(p.Bound+p.Sigma)+2 >= f.Bits() {
		return xerrors.Errorf("%d+%d masked bits overflow a %d-bit field", p.Bound, p.Sigma, f.Bits())
	}
	return nil
}
