package matrix

import (
	"context"
	"math"

	"github.com/rs/zerolog/log"
	"go.dedis.ch/smpcreg/types"
	"go.dedis.ch/smpcreg/zp"
	"golang.org/x/xerrors"
)

// InverseOptions tunes the Newton-Schulz iteration.
type InverseOptions struct {
	// Iterations is the iteration budget.
	Iterations int

	// CheckEvery is the period, in iterations, of the convergence check.
	CheckEvery int

	// Tolerance bounds the Frobenius norm of I - A*X at convergence.
	Tolerance float64

	// Alpha is the public starting scale: X0 = Alpha * I. It must be below
	// 2 / lambda_max(A). Zero means 1 / (n * Bound^2) for an n x n matrix.
	Alpha float64

	// Bound is the assumed magnitude bound of the entries of A.
	Bound float64
}

// DefaultInverseOptions suits Gram matrices of inputs scaled into [0.1, 10].
var DefaultInverseOptions = InverseOptions{
	Iterations: 64,
	CheckEvery: 8,
	Tolerance:  1e-6,
	Bound:      10,
}

// Validate checks the options.
func (opts InverseOptions) Validate() error {
	if opts.Iterations <= 0 {
		return xerrors.Errorf("iteration budget %d", opts.Iterations)
	}
	if opts.CheckEvery <= 0 {
		return xerrors.Errorf("check period %d", opts.CheckEvery)
	}
	if !(opts.Tolerance > 0) {
		return xerrors.Errorf("tolerance %v", opts.Tolerance)
	}
	if opts.Alpha < 0 || math.IsNaN(opts.Alpha) || math.IsInf(opts.Alpha, 0) {
		return xerrors.Errorf("alpha %v", opts.Alpha)
	}
	if opts.Alpha == 0 && !(opts.Bound > 0) {
		return xerrors.Errorf("magnitude bound %v", opts.Bound)
	}
	return nil
}

// InverseResult is the outcome of an inversion.
type InverseResult struct {
	// Inverse is the share of the approximate inverse.
	Inverse *zp.Matrix

	// Iterations is the number of iterations run.
	Iterations int

	// Residual is the last opened squared Frobenius norm of I - A*X.
	Residual float64
}

// Inverse approximates the inverse of the shared square matrix a with the
// Newton-Schulz iteration X <- X(2I - AX), starting from X0 = alpha*I.
//
// The squared Frobenius norm of the residual I - AX is the only intermediate
// value opened, every CheckEvery iterations. The iteration stops once it is
// below Tolerance^2 and fails with types.ErrNonConvergent when the budget is
// spent first.
func (o *Ops) Inverse(ctx context.Context, a *zp.Matrix, opts InverseOptions) (*InverseResult, error) {
	err := opts.Validate()
	if err != nil {
		return nil, err
	}
	if a.Rows != a.Cols {
		return nil, xerrors.Errorf("inverse of %dx%d: %w", a.Rows, a.Cols, types.ErrShapeMismatch)
	}

	n := a.Rows
	alpha := opts.Alpha
	if alpha == 0 {
		alpha = 1 / (float64(n) * opts.Bound * opts.Bound)
	}

	encAlpha, err := o.fp.Encode(alpha)
	if err != nil {
		return nil, err
	}
	two := zp.Identity(n, o.field.Add(o.fp.One(), o.fp.One()))

	x := o.Public(zp.Identity(n, encAlpha))
	tol2 := opts.Tolerance * opts.Tolerance
	var residual float64

	for k := 1; k <= opts.Iterations; k++ {
		ax, err := o.MatMul(ctx, a, x)
		if err != nil {
			return nil, err
		}

		if k%opts.CheckEvery == 0 {
			residual, err = o.residual(ctx, ax)
			if err != nil {
				return nil, err
			}
			log.Debug().Int("iteration", k).Float64("residual", residual).Msg("newton-schulz")

			if residual <= tol2 {
				return &InverseResult{Inverse: x, Iterations: k - 1, Residual: residual}, nil
			}
		}

		// 2I - AX
		c, err := o.AddPublic(o.Neg(ax), two)
		if err != nil {
			return nil, err
		}
		x, err = o.MatMul(ctx, x, c)
		if err != nil {
			return nil, err
		}
	}

	ax, err := o.MatMul(ctx, a, x)
	if err != nil {
		return nil, err
	}
	residual, err = o.residual(ctx, ax)
	if err != nil {
		return nil, err
	}
	if residual > tol2 {
		return nil, xerrors.Errorf("residual %g after %d iterations, tolerance %g: %w",
			math.Sqrt(math.Max(residual, 0)), opts.Iterations, opts.Tolerance, types.ErrNonConvergent)
	}
	return &InverseResult{Inverse: x, Iterations: opts.Iterations, Residual: residual}, nil
}

// residual opens the squared Frobenius norm of I - AX.
func (o *Ops) residual(ctx context.Context, ax *zp.Matrix) (float64, error) {
	r, err := o.AddPublic(o.Neg(ax), zp.Identity(ax.Rows, o.fp.One()))
	if err != nil {
		return 0, err
	}
	sq, err := o.Hadamard(ctx, r, r)
	if err != nil {
		return 0, err
	}
	values, err := o.Reveal(ctx, o.Sum(sq))
	if err != nil {
		return 0, err
	}
	return values[0], nil
}
