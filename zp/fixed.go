package zp

import (
	"math"
	"math/big"

	"go.dedis.ch/smpcreg/types"
	"golang.org/x/xerrors"
)

const floatPrec = 512

// FixedPoint encodes reals as round(x * 2^FracBits) mod p. Negative values
// wrap around p and decode through the centered representative.
type FixedPoint struct {
	*Field
	FracBits uint

	scale *big.Float
	one   *big.Int
}

// NewFixedPoint returns a fixed-point codec with the given fractional bits.
func NewFixedPoint(f *Field, fracBits uint) (*FixedPoint, error) {
	if int(fracBits)*2+2 >= f.Bits() {
		return nil, xerrors.Errorf("%d fractional bits do not fit a %d-bit field", fracBits, f.Bits())
	}
	one := new(big.Int).Lsh(big.NewInt(1), fracBits)
	return &FixedPoint{
		Field:    f,
		FracBits: fracBits,
		scale:    new(big.Float).SetPrec(floatPrec).SetInt(one),
		one:      one,
	}, nil
}

// One returns the encoding of 1.
func (fp *FixedPoint) One() *big.Int {
	return new(big.Int).Set(fp.one)
}

// Encode maps x to the field.
func (fp *FixedPoint) Encode(x float64) (*big.Int, error) {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return nil, xerrors.Errorf("cannot encode %v", x)
	}
	bf := new(big.Float).SetPrec(floatPrec).SetFloat64(x)
	bf.Mul(bf, fp.scale)
	// round half away from zero
	if bf.Sign() >= 0 {
		bf.Add(bf, big.NewFloat(0.5))
	} else {
		bf.Sub(bf, big.NewFloat(0.5))
	}
	v, _ := bf.Int(nil)
	return fp.Mod(v), nil
}

// Decode maps a field element back to a real.
func (fp *FixedPoint) Decode(v *big.Int) float64 {
	bf := new(big.Float).SetPrec(floatPrec).SetInt(fp.Signed(v))
	bf.Quo(bf, fp.scale)
	x, _ := bf.Float64()
	return x
}

// EncodeMatrix encodes row-major values into a rows x cols matrix.
func (fp *FixedPoint) EncodeMatrix(rows, cols int, values []float64) (*Matrix, error) {
	if rows <= 0 || cols <= 0 || len(values) != rows*cols {
		return nil, xerrors.Errorf("%d values for a %dx%d matrix: %w", len(values), rows, cols, types.ErrShapeMismatch)
	}
	m := &Matrix{Rows: rows, Cols: cols, Data: make([]*big.Int, len(values))}
	for i, x := range values {
		v, err := fp.Encode(x)
		if err != nil {
			return nil, err
		}
		m.Data[i] = v
	}
	return m, nil
}

// DecodeMatrix returns the row-major reals held by m.
func (fp *FixedPoint) DecodeMatrix(m *Matrix) []float64 {
	out := make([]float64, len(m.Data))
	for i, v := range m.Data {
		out[i] = fp.Decode(v)
	}
	return out
}
