package secretshare_test

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/smpcreg/peer/impl/provider"
	"go.dedis.ch/smpcreg/peer/impl/secretshare"
	"go.dedis.ch/smpcreg/types"
	"go.dedis.ch/smpcreg/zp"
)

func newDealer(t *testing.T, parties, budget int) *provider.Dealer {
	d, err := provider.NewDealer(zp.DefaultField(), parties, secretshare.DefaultPrecision, budget, nil)
	require.NoError(t, err)
	return d
}

// reconstruct(share(v, n)) == v for every n >= 2
func Test_share_reconstruct(t *testing.T) {
	f := zp.DefaultField()

	for parties := 2; parties <= 7; parties++ {
		for i := 0; i < 5; i++ {
			secret, err := f.Rand(nil)
			require.NoError(t, err)

			set, err := secretshare.Share(nil, f, secret, parties)
			require.NoError(t, err)
			require.Equal(t, parties, set.Parties())

			res, err := secretshare.Reconstruct(set)
			require.NoError(t, err)
			require.Equal(t, 0, secret.Cmp(res.At(0, 0)))
		}
	}
}

func Test_share_matrix_hides_value(t *testing.T) {
	f := zp.DefaultField()
	m := zp.NewMatrix(2, 2)

	set, err := secretshare.ShareMatrix(nil, f, m, 3)
	require.NoError(t, err)

	// shares of zero are not all zero
	nonZero := false
	for _, sh := range set.Shares[:2] {
		for _, v := range sh.Data {
			if v.Sign() != 0 {
				nonZero = true
			}
		}
	}
	require.True(t, nonZero)

	res, err := secretshare.Reconstruct(set)
	require.NoError(t, err)
	for _, v := range res.Data {
		require.Equal(t, 0, v.Sign())
	}
}

func Test_share_invalid_party_count(t *testing.T) {
	f := zp.DefaultField()
	for _, n := range []int{-1, 0, 1} {
		_, err := secretshare.Share(nil, f, big.NewInt(5), n)
		require.True(t, errors.Is(err, types.ErrInvalidPartyCount))
	}
}

func Test_reconstruct_incomplete(t *testing.T) {
	f := zp.DefaultField()
	set, err := secretshare.Share(nil, f, big.NewInt(42), 3)
	require.NoError(t, err)

	set.Shares[1] = nil
	_, err = secretshare.Reconstruct(set)
	require.True(t, errors.Is(err, types.ErrIncompleteShares))

	_, err = secretshare.Reconstruct(&secretshare.ShareSet{Field: f})
	require.True(t, errors.Is(err, types.ErrIncompleteShares))

	_, err = secretshare.Reconstruct(nil)
	require.True(t, errors.Is(err, types.ErrIncompleteShares))
}

func Test_add_is_local(t *testing.T) {
	f := zp.DefaultField()
	a, err := secretshare.Share(nil, f, big.NewInt(20), 4)
	require.NoError(t, err)
	b, err := secretshare.Share(nil, f, big.NewInt(22), 4)
	require.NoError(t, err)

	sum, err := secretshare.Add(a, b)
	require.NoError(t, err)
	res, err := secretshare.Reconstruct(sum)
	require.NoError(t, err)
	require.Equal(t, int64(42), res.At(0, 0).Int64())
}

// secure multiply consumes exactly one triple per call
func Test_multiply_consumes_one_triple(t *testing.T) {
	f := zp.DefaultField()
	dealer := newDealer(t, 3, 0)

	a, err := secretshare.Share(nil, f, big.NewInt(6), 3)
	require.NoError(t, err)
	b, err := secretshare.Share(nil, f, big.NewInt(7), 3)
	require.NoError(t, err)

	for i := 1; i <= 4; i++ {
		prod, err := secretshare.Multiply(a, b, dealer)
		require.NoError(t, err)
		require.Equal(t, i, dealer.Issued())

		res, err := secretshare.Reconstruct(prod)
		require.NoError(t, err)
		require.Equal(t, int64(42), res.At(0, 0).Int64())
	}
}

func Test_multiply_triple_exhausted(t *testing.T) {
	f := zp.DefaultField()
	dealer := newDealer(t, 2, 2)

	a, err := secretshare.Share(nil, f, big.NewInt(3), 2)
	require.NoError(t, err)

	_, err = secretshare.Multiply(a, a, dealer)
	require.NoError(t, err)
	_, err = secretshare.Multiply(a, a, dealer)
	require.NoError(t, err)
	require.Equal(t, 0, dealer.Remaining())

	_, err = secretshare.Multiply(a, a, dealer)
	require.True(t, errors.Is(err, types.ErrTripleExhausted))
	require.Equal(t, 2, dealer.Issued())
}

func Test_multiply_matrix_elementwise(t *testing.T) {
	f := zp.DefaultField()
	dealer := newDealer(t, 2, 0)

	am := &zp.Matrix{Rows: 2, Cols: 2, Data: []*big.Int{big.NewInt(1), big.NewInt(2), big.NewInt(3), f.Neg(big.NewInt(4))}}
	bm := &zp.Matrix{Rows: 2, Cols: 2, Data: []*big.Int{big.NewInt(5), big.NewInt(6), big.NewInt(7), big.NewInt(8)}}
	a, err := secretshare.ShareMatrix(nil, f, am, 2)
	require.NoError(t, err)
	b, err := secretshare.ShareMatrix(nil, f, bm, 2)
	require.NoError(t, err)

	prod, err := secretshare.Multiply(a, b, dealer)
	require.NoError(t, err)
	res, err := secretshare.Reconstruct(prod)
	require.NoError(t, err)

	want := []int64{5, 12, 21, -32}
	for i, w := range want {
		require.Equal(t, w, f.Signed(res.Data[i]).Int64())
	}
}

func Test_multiply_shape_mismatch(t *testing.T) {
	f := zp.DefaultField()
	dealer := newDealer(t, 2, 0)

	a, err := secretshare.ShareMatrix(nil, f, zp.NewMatrix(2, 2), 2)
	require.NoError(t, err)
	b, err := secretshare.ShareMatrix(nil, f, zp.NewMatrix(2, 3), 2)
	require.NoError(t, err)

	_, err = secretshare.Multiply(a, b, dealer)
	require.True(t, errors.Is(err, types.ErrShapeMismatch))
	require.Equal(t, 0, dealer.Issued())

	c, err := secretshare.ShareMatrix(nil, f, zp.NewMatrix(2, 2), 3)
	require.NoError(t, err)
	_, err = secretshare.Multiply(a, c, dealer)
	require.True(t, errors.Is(err, types.ErrShapeMismatch))
}

func Test_matmul_triple_combine(t *testing.T) {
	f := zp.DefaultField()
	dealer := newDealer(t, 3, 0)

	am := &zp.Matrix{Rows: 1, Cols: 2, Data: []*big.Int{big.NewInt(2), big.NewInt(3)}}
	bm := &zp.Matrix{Rows: 2, Cols: 1, Data: []*big.Int{big.NewInt(4), big.NewInt(5)}}
	a, err := secretshare.ShareMatrix(nil, f, am, 3)
	require.NoError(t, err)
	b, err := secretshare.ShareMatrix(nil, f, bm, 3)
	require.NoError(t, err)

	triples, err := dealer.MatMul(1, 2, 1)
	require.NoError(t, err)

	ds := make([]*zp.Matrix, 3)
	es := make([]*zp.Matrix, 3)
	for i := 0; i < 3; i++ {
		ds[i], err = secretshare.Mask(f, a.Shares[i], triples[i].U)
		require.NoError(t, err)
		es[i], err = secretshare.Mask(f, b.Shares[i], triples[i].V)
		require.NoError(t, err)
	}
	d, err := secretshare.Sum(f, ds...)
	require.NoError(t, err)
	e, err := secretshare.Sum(f, es...)
	require.NoError(t, err)

	zs := make([]*zp.Matrix, 3)
	for i := 0; i < 3; i++ {
		zs[i], err = secretshare.CombineMatMul(f, i, triples[i], d, e)
		require.NoError(t, err)
	}
	res, err := secretshare.Reconstruct(&secretshare.ShareSet{Field: f, Shares: zs})
	require.NoError(t, err)
	require.Equal(t, int64(23), res.At(0, 0).Int64())
}

func Test_truncation_pair(t *testing.T) {
	f := zp.DefaultField()
	prec := secretshare.DefaultPrecision
	dealer := newDealer(t, 3, 0)
	fp, err := zp.NewFixedPoint(f, prec.FracBits)
	require.NoError(t, err)

	// value carrying 2f fractional bits, as after a product
	x := new(big.Int).Lsh(big.NewInt(-1234567), 2*prec.FracBits)
	x.Add(x, big.NewInt(987654321))
	set, err := secretshare.ShareMatrix(nil, f, zp.Scalar(f.Mod(x)), 3)
	require.NoError(t, err)

	pairs, err := dealer.Truncation(1, 1)
	require.NoError(t, err)
	require.Equal(t, 1, dealer.Truncations())
	require.Equal(t, 0, dealer.Issued())

	cs := make([]*zp.Matrix, 3)
	for i := 0; i < 3; i++ {
		cs[i], err = secretshare.TruncMask(f, i, set.Shares[i], pairs[i], prec.Bound)
		require.NoError(t, err)
	}
	c, err := secretshare.Sum(f, cs...)
	require.NoError(t, err)

	zs := make([]*zp.Matrix, 3)
	for i := 0; i < 3; i++ {
		zs[i], err = secretshare.TruncCombine(f, i, c, pairs[i], prec.FracBits, prec.Bound)
		require.NoError(t, err)
	}
	res, err := secretshare.Reconstruct(&secretshare.ShareSet{Field: f, Shares: zs})
	require.NoError(t, err)

	want := new(big.Int).Rsh(x, prec.FracBits)
	diff := new(big.Int).Sub(f.Signed(res.At(0, 0)), want)
	require.True(t, diff.CmpAbs(big.NewInt(1)) <= 0, "truncation off by %v", diff)
	require.InDelta(t, -1234567.0, fp.Decode(res.At(0, 0)), 1e-3)
}

func Test_precision_validate(t *testing.T) {
	f := zp.DefaultField()
	require.NoError(t, secretshare.DefaultPrecision.Validate(f))
	require.Error(t, secretshare.Precision{FracBits: 48, Bound: 90, Sigma: 64}.Validate(f))
	require.Error(t, secretshare.Precision{FracBits: 48, Bound: 200, Sigma: 64}.Validate(f))
}
