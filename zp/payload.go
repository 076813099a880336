package zp

import (
	"math/big"

	"go.dedis.ch/smpcreg/types"
	"golang.org/x/xerrors"
)

// Payload encodes m for the wire.
func (m *Matrix) Payload() types.MatrixPayload {
	values := make([]string, len(m.Data))
	for i, v := range m.Data {
		values[i] = v.Text(16)
	}
	return types.MatrixPayload{Rows: m.Rows, Cols: m.Cols, Values: values}
}

// FromPayload decodes a wire matrix and checks that every entry lies in [0, p).
func (f *Field) FromPayload(p types.MatrixPayload) (*Matrix, error) {
	if p.Rows <= 0 || p.Cols <= 0 || len(p.Values) != p.Rows*p.Cols {
		return nil, xerrors.Errorf("payload %dx%d with %d values: %w", p.Rows, p.Cols,
			len(p.Values), types.ErrShapeMismatch)
	}

	m := &Matrix{Rows: p.Rows, Cols: p.Cols, Data: make([]*big.Int, len(p.Values))}
	for i, s := range p.Values {
		v, ok := new(big.Int).SetString(s, 16)
		if !ok {
			return nil, xerrors.Errorf("invalid field element %q", s)
		}
		if v.Sign() < 0 || v.Cmp(f.P) >= 0 {
			return nil, xerrors.Errorf("element %d out of field range", i)
		}
		m.Data[i] = v
	}
	return m, nil
}
