// Package ols fits ordinary least squares in the clear. It is the reference
// the encrypted fit is compared against.
package ols

import (
	"math"

	"go.dedis.ch/smpcreg/types"
	"golang.org/x/xerrors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Result is a plaintext fit. Slices are in design matrix order, the
// intercept first when fitted.
type Result struct {
	Coefficients []float64
	StdErrors    []float64
	TValues      []float64
	PValues      []float64

	Rows     int
	DF       int
	RSS      float64
	TSS      float64
	RSquared float64
}

// FitShards pools the shards and fits them.
func FitShards(shards []*types.Shard, intercept bool) (*Result, error) {
	var x [][]float64
	var y []float64
	for _, s := range shards {
		x = append(x, s.X...)
		y = append(y, s.Y...)
	}
	return Fit(x, y, intercept)
}

// Fit solves the normal equations with a Cholesky factorization.
func Fit(x [][]float64, y []float64, intercept bool) (*Result, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, xerrors.Errorf("%d rows and %d targets: %w", len(x), len(y), types.ErrShapeMismatch)
	}
	cols := len(x[0])
	d := cols
	if intercept {
		d++
	}
	n := len(x)
	if n <= d {
		return nil, xerrors.Errorf("%d rows for %d parameters: %w", n, d, types.ErrShapeMismatch)
	}

	design := mat.NewDense(n, d, nil)
	for i, row := range x {
		if len(row) != cols {
			return nil, xerrors.Errorf("row %d has %d columns, want %d: %w", i, len(row), cols, types.ErrShapeMismatch)
		}
		off := 0
		if intercept {
			design.Set(i, 0, 1)
			off = 1
		}
		for j, v := range row {
			design.Set(i, j+off, v)
		}
	}
	target := mat.NewVecDense(n, append([]float64(nil), y...))

	gram := mat.NewSymDense(d, nil)
	gram.SymOuterK(1, design.T())

	var chol mat.Cholesky
	if ok := chol.Factorize(gram); !ok {
		return nil, xerrors.New("design matrix is rank deficient")
	}

	var xty mat.VecDense
	xty.MulVec(design.T(), target)

	var beta mat.VecDense
	err := chol.SolveVecTo(&beta, &xty)
	if err != nil {
		return nil, xerrors.Errorf("failed to solve: %v", err)
	}

	var inv mat.SymDense
	err = chol.InverseTo(&inv)
	if err != nil {
		return nil, xerrors.Errorf("failed to invert: %v", err)
	}

	var fitted, resid mat.VecDense
	fitted.MulVec(design, &beta)
	resid.SubVec(target, &fitted)
	rss := mat.Dot(&resid, &resid)

	mean := 0.0
	for _, v := range y {
		mean += v
	}
	mean /= float64(n)
	tss := 0.0
	for _, v := range y {
		if intercept {
			tss += (v - mean) * (v - mean)
		} else {
			tss += v * v
		}
	}

	df := n - d
	sigma2 := rss / float64(df)
	student := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(df)}

	res := &Result{
		Coefficients: make([]float64, d),
		StdErrors:    make([]float64, d),
		TValues:      make([]float64, d),
		PValues:      make([]float64, d),
		Rows:         n,
		DF:           df,
		RSS:          rss,
		TSS:          tss,
		RSquared:     1 - rss/tss,
	}
	for j := 0; j < d; j++ {
		res.Coefficients[j] = beta.AtVec(j)
		res.StdErrors[j] = math.Sqrt(sigma2 * inv.At(j, j))
		res.TValues[j] = res.Coefficients[j] / res.StdErrors[j]
		res.PValues[j] = 2 * student.Survival(math.Abs(res.TValues[j]))
	}
	return res, nil
}
