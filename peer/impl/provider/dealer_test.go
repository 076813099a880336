package provider

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/smpcreg/peer/impl/secretshare"
	"go.dedis.ch/smpcreg/types"
	"go.dedis.ch/smpcreg/zp"
)

func reconstruct(t *testing.T, f *zp.Field, shares ...*zp.Matrix) *zp.Matrix {
	res, err := secretshare.Reconstruct(&secretshare.ShareSet{Field: f, Shares: shares})
	require.NoError(t, err)
	return res
}

func Test_dealer_invalid(t *testing.T) {
	f := zp.DefaultField()

	_, err := NewDealer(f, 1, secretshare.DefaultPrecision, 0, nil)
	require.True(t, errors.Is(err, types.ErrInvalidPartyCount))

	_, err = NewDealer(f, 3, secretshare.DefaultPrecision, -1, nil)
	require.Error(t, err)

	_, err = NewDealer(f, 3, secretshare.Precision{FracBits: 48, Bound: 64, Sigma: 64}, 0, nil)
	require.Error(t, err)
}

func Test_dealer_elementwise_triple(t *testing.T) {
	f := zp.DefaultField()
	d, err := NewDealer(f, 3, secretshare.DefaultPrecision, 0, nil)
	require.NoError(t, err)

	triples, err := d.Elementwise(2, 3)
	require.NoError(t, err)
	require.Len(t, triples, 3)

	u := reconstruct(t, f, triples[0].U, triples[1].U, triples[2].U)
	v := reconstruct(t, f, triples[0].V, triples[1].V, triples[2].V)
	w := reconstruct(t, f, triples[0].W, triples[1].W, triples[2].W)

	uv, err := f.Hadamard(u, v)
	require.NoError(t, err)
	for i := range w.Data {
		require.Equal(t, 0, w.Data[i].Cmp(uv.Data[i]))
	}
	require.Equal(t, 1, d.Issued())
	require.Equal(t, -1, d.Remaining())
}

func Test_dealer_matmul_triple(t *testing.T) {
	f := zp.DefaultField()
	d, err := NewDealer(f, 2, secretshare.DefaultPrecision, 0, nil)
	require.NoError(t, err)

	triples, err := d.MatMul(2, 4, 3)
	require.NoError(t, err)

	u := reconstruct(t, f, triples[0].U, triples[1].U)
	v := reconstruct(t, f, triples[0].V, triples[1].V)
	w := reconstruct(t, f, triples[0].W, triples[1].W)
	require.Equal(t, 2, u.Rows)
	require.Equal(t, 4, u.Cols)
	require.Equal(t, 3, v.Cols)

	uv, err := f.MatMul(u, v)
	require.NoError(t, err)
	for i := range w.Data {
		require.Equal(t, 0, w.Data[i].Cmp(uv.Data[i]))
	}
}

func Test_dealer_truncation_pair(t *testing.T) {
	f := zp.DefaultField()
	prec := secretshare.DefaultPrecision
	d, err := NewDealer(f, 3, prec, 1, nil)
	require.NoError(t, err)

	pairs, err := d.Truncation(3, 2)
	require.NoError(t, err)

	r := reconstruct(t, f, pairs[0].R, pairs[1].R, pairs[2].R)
	high := reconstruct(t, f, pairs[0].RHigh, pairs[1].RHigh, pairs[2].RHigh)
	for i := range r.Data {
		require.LessOrEqual(t, r.Data[i].BitLen(), int(prec.Bound+prec.Sigma))
		require.Equal(t, 0, new(big.Int).Rsh(r.Data[i], prec.FracBits).Cmp(high.Data[i]))
	}

	// truncation pairs do not count against the triple budget
	require.Equal(t, 0, d.Issued())
	require.Equal(t, 1, d.Remaining())
}

func Test_dealer_budget(t *testing.T) {
	f := zp.DefaultField()
	d, err := NewDealer(f, 2, secretshare.DefaultPrecision, 2, nil)
	require.NoError(t, err)

	_, err = d.Elementwise(1, 1)
	require.NoError(t, err)
	_, err = d.MatMul(1, 1, 1)
	require.NoError(t, err)

	_, err = d.Elementwise(1, 1)
	require.True(t, errors.Is(err, types.ErrTripleExhausted))
	_, err = d.Deal(types.CorrelationMatMul, []int{1, 1, 1})
	require.True(t, errors.Is(err, types.ErrTripleExhausted))
	require.Equal(t, 2, d.Issued())
	require.Equal(t, 0, d.Remaining())

	_, err = d.Deal(types.CorrelationTruncation, []int{1, 1})
	require.NoError(t, err)
}

func Test_dealer_deal_parts(t *testing.T) {
	f := zp.DefaultField()
	d, err := NewDealer(f, 2, secretshare.DefaultPrecision, 0, nil)
	require.NoError(t, err)

	parts, err := d.Deal(types.CorrelationElementwise, []int{2, 2})
	require.NoError(t, err)
	require.Len(t, parts, 2)
	require.Len(t, parts[0], 3)

	parts, err = d.Deal(types.CorrelationTruncation, []int{2, 2})
	require.NoError(t, err)
	require.Len(t, parts[1], 2)

	_, err = d.Deal(types.CorrelationMatMul, []int{2, 2})
	require.True(t, errors.Is(err, types.ErrShapeMismatch))
	_, err = d.Deal(types.CorrelationElementwise, []int{0, 2})
	require.True(t, errors.Is(err, types.ErrShapeMismatch))
	_, err = d.Deal("bogus", []int{1, 1})
	require.Error(t, err)
}
