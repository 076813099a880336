package zp

import (
	"io"
	"math/big"
	"strings"

	"go.dedis.ch/smpcreg/types"
	"golang.org/x/xerrors"
)

// Matrix is a dense row-major matrix over Z_p. A scalar is a 1x1 matrix.
type Matrix struct {
	Rows int
	Cols int
	Data []*big.Int
}

// NewMatrix returns a rows x cols zero matrix.
func NewMatrix(rows, cols int) *Matrix {
	data := make([]*big.Int, rows*cols)
	for i := range data {
		data[i] = new(big.Int)
	}
	return &Matrix{Rows: rows, Cols: cols, Data: data}
}

// Scalar wraps v into a 1x1 matrix.
func Scalar(v *big.Int) *Matrix {
	return &Matrix{Rows: 1, Cols: 1, Data: []*big.Int{new(big.Int).Set(v)}}
}

// Identity returns the n x n identity scaled by one.
func Identity(n int, one *big.Int) *Matrix {
	m := NewMatrix(n, n)
	for i := 0; i < n; i++ {
		m.Data[i*n+i].Set(one)
	}
	return m
}

// At returns the element at row i, column j.
func (m *Matrix) At(i, j int) *big.Int {
	return m.Data[i*m.Cols+j]
}

// Set stores v at row i, column j.
func (m *Matrix) Set(i, j int, v *big.Int) {
	m.Data[i*m.Cols+j] = new(big.Int).Set(v)
}

// SameShape reports whether both matrices have the same dimensions.
func (m *Matrix) SameShape(o *Matrix) bool {
	return m.Rows == o.Rows && m.Cols == o.Cols
}

// Validate checks that the backing slice matches the dimensions.
func (m *Matrix) Validate() error {
	if m == nil {
		return xerrors.Errorf("nil matrix: %w", types.ErrShapeMismatch)
	}
	if m.Rows <= 0 || m.Cols <= 0 || len(m.Data) != m.Rows*m.Cols {
		return xerrors.Errorf("matrix %dx%d backed by %d elements: %w",
			m.Rows, m.Cols, len(m.Data), types.ErrShapeMismatch)
	}
	return nil
}

// Clone returns a deep copy.
func (m *Matrix) Clone() *Matrix {
	cp := &Matrix{Rows: m.Rows, Cols: m.Cols, Data: make([]*big.Int, len(m.Data))}
	for i, v := range m.Data {
		cp.Data[i] = new(big.Int).Set(v)
	}
	return cp
}

// Transpose returns the transposed matrix.
func (m *Matrix) Transpose() *Matrix {
	t := &Matrix{Rows: m.Cols, Cols: m.Rows, Data: make([]*big.Int, len(m.Data))}
	for i := 0; i < m.Rows; i++ {
		for j := 0; j < m.Cols; j++ {
			t.Data[j*t.Cols+i] = new(big.Int).Set(m.Data[i*m.Cols+j])
		}
	}
	return t
}

// Diag returns the diagonal of a square matrix as a column vector.
func (m *Matrix) Diag() (*Matrix, error) {
	if m.Rows != m.Cols {
		return nil, xerrors.Errorf("diagonal of a %dx%d matrix: %w", m.Rows, m.Cols, types.ErrShapeMismatch)
	}
	d := &Matrix{Rows: m.Rows, Cols: 1, Data: make([]*big.Int, m.Rows)}
	for i := 0; i < m.Rows; i++ {
		d.Data[i] = new(big.Int).Set(m.At(i, i))
	}
	return d, nil
}

// Broadcast repeats the scalar m into a rows x cols matrix.
func (m *Matrix) Broadcast(rows, cols int) (*Matrix, error) {
	if m.Rows != 1 || m.Cols != 1 {
		return nil, xerrors.Errorf("broadcast of a %dx%d matrix: %w", m.Rows, m.Cols, types.ErrShapeMismatch)
	}
	b := NewMatrix(rows, cols)
	for i := range b.Data {
		b.Data[i].Set(m.Data[0])
	}
	return b, nil
}

// VStack stacks matrices with the same number of columns on top of each other.
func VStack(ms ...*Matrix) (*Matrix, error) {
	if len(ms) == 0 {
		return nil, xerrors.Errorf("nothing to stack: %w", types.ErrShapeMismatch)
	}
	cols := ms[0].Cols
	rows := 0
	for _, m := range ms {
		if m.Cols != cols {
			return nil, xerrors.Errorf("stacking %d and %d columns: %w", cols, m.Cols, types.ErrShapeMismatch)
		}
		rows += m.Rows
	}
	res := &Matrix{Rows: rows, Cols: cols, Data: make([]*big.Int, 0, rows*cols)}
	for _, m := range ms {
		for _, v := range m.Data {
			res.Data = append(res.Data, new(big.Int).Set(v))
		}
	}
	return res, nil
}

// String prints the matrix in base 10, one row per line.
func (m *Matrix) String() string {
	var sb strings.Builder
	for i := 0; i < m.Rows; i++ {
		for j := 0; j < m.Cols; j++ {
			if j > 0 {
				sb.WriteString(" ")
			}
			sb.WriteString(m.At(i, j).Text(10))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// -----------------------------------------------------------------------------
// Field matrix arithmetic

// RandMatrix draws a uniform rows x cols matrix.
func (f *Field) RandMatrix(r io.Reader, rows, cols int) (*Matrix, error) {
	m := &Matrix{Rows: rows, Cols: cols, Data: make([]*big.Int, rows*cols)}
	for i := range m.Data {
		v, err := f.Rand(r)
		if err != nil {
			return nil, err
		}
		m.Data[i] = v
	}
	return m, nil
}

// MatAdd returns a + b.
func (f *Field) MatAdd(a, b *Matrix) (*Matrix, error) {
	if !a.SameShape(b) {
		return nil, shapeErr("add", a, b)
	}
	res := &Matrix{Rows: a.Rows, Cols: a.Cols, Data: make([]*big.Int, len(a.Data))}
	for i := range a.Data {
		res.Data[i] = f.Add(a.Data[i], b.Data[i])
	}
	return res, nil
}

// MatSub returns a - b.
func (f *Field) MatSub(a, b *Matrix) (*Matrix, error) {
	if !a.SameShape(b) {
		return nil, shapeErr("sub", a, b)
	}
	res := &Matrix{Rows: a.Rows, Cols: a.Cols, Data: make([]*big.Int, len(a.Data))}
	for i := range a.Data {
		res.Data[i] = f.Sub(a.Data[i], b.Data[i])
	}
	return res, nil
}

// Hadamard returns the elementwise product a o b.
func (f *Field) Hadamard(a, b *Matrix) (*Matrix, error) {
	if !a.SameShape(b) {
		return nil, shapeErr("hadamard", a, b)
	}
	res := &Matrix{Rows: a.Rows, Cols: a.Cols, Data: make([]*big.Int, len(a.Data))}
	for i := range a.Data {
		res.Data[i] = f.Mul(a.Data[i], b.Data[i])
	}
	return res, nil
}

// MatMul returns the matrix product a * b.
func (f *Field) MatMul(a, b *Matrix) (*Matrix, error) {
	if a.Cols != b.Rows {
		return nil, shapeErr("matmul", a, b)
	}
	res := NewMatrix(a.Rows, b.Cols)
	acc := new(big.Int)
	tmp := new(big.Int)
	for i := 0; i < a.Rows; i++ {
		for j := 0; j < b.Cols; j++ {
			acc.SetInt64(0)
			for k := 0; k < a.Cols; k++ {
				tmp.Mul(a.At(i, k), b.At(k, j))
				acc.Add(acc, tmp)
			}
			res.Data[i*res.Cols+j].Mod(acc, f.P)
		}
	}
	return res, nil
}

// ScalarMul returns c * m.
func (f *Field) ScalarMul(c *big.Int, m *Matrix) *Matrix {
	res := &Matrix{Rows: m.Rows, Cols: m.Cols, Data: make([]*big.Int, len(m.Data))}
	for i, v := range m.Data {
		res.Data[i] = f.Mul(c, v)
	}
	return res
}

// Reduce maps every element into [0, p).
func (f *Field) Reduce(m *Matrix) *Matrix {
	res := &Matrix{Rows: m.Rows, Cols: m.Cols, Data: make([]*big.Int, len(m.Data))}
	for i, v := range m.Data {
		res.Data[i] = f.Mod(v)
	}
	return res
}

func shapeErr(op string, a, b *Matrix) error {
	return xerrors.Errorf("%s of %dx%d and %dx%d: %w", op, a.Rows, a.Cols, b.Rows, b.Cols, types.ErrShapeMismatch)
}
