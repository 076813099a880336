// Package regression fits a linear regression on data split among holders
// without revealing it. Each compute party runs a Model; the models of a
// session run the same sequence of operations on their shares.
package regression

import (
	"context"
	"math"
	"sync"

	"github.com/rs/zerolog/log"
	"go.dedis.ch/smpcreg/peer/impl/matrix"
	"go.dedis.ch/smpcreg/peer/impl/summary"
	"go.dedis.ch/smpcreg/types"
	"go.dedis.ch/smpcreg/zp"
	"golang.org/x/xerrors"
	"gonum.org/v1/gonum/mat"
)

// Engine is a party session the model can abort.
type Engine interface {
	matrix.Engine

	// Abort tells the other parties to give up.
	Abort(cause error)
}

// State is the stage of a model.
type State int

const (
	// Created models have not seen data.
	Created State = iota
	// DataAggregated models hold shares of the pooled moments.
	DataAggregated
	// Solved models hold shares of the estimates.
	Solved
	// Revealed models have opened their summary.
	Revealed
	// Failed models hit an error. They cannot be reused.
	Failed
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case DataAggregated:
		return "data-aggregated"
	case Solved:
		return "solved"
	case Revealed:
		return "revealed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Options describes the regression every party runs.
type Options struct {
	// Holders is the number of data holders; they are parties 0 to
	// Holders-1. The other parties are auxiliary.
	Holders int

	// Features names the columns of the shards.
	Features []string

	// Intercept prepends a column of ones to the design matrix.
	Intercept bool

	// Inverse tunes the inversion of the Gram matrix. A zero Alpha is
	// replaced by 1 / (N * params * Bound^2) once the row count N is open.
	Inverse matrix.InverseOptions
}

// Params returns the number of estimated coefficients.
func (o Options) Params() int {
	if o.Intercept {
		return len(o.Features) + 1
	}
	return len(o.Features)
}

// Model is one party's share of a linear regression.
type Model struct {
	engine Engine
	ops    *matrix.Ops
	opts   Options

	sync.Mutex
	state   State
	fitting bool
	err     error

	rows       int
	iterations int

	// shares of the estimates, set once Solved
	beta *zp.Matrix
	cov  *zp.Matrix
	rss  *zp.Matrix
	tss  *zp.Matrix

	summary *summary.Summary
}

// NewModel returns a model in the Created state.
func NewModel(e Engine, opts Options) (*Model, error) {
	if opts.Holders < 1 || opts.Holders > e.Parties() {
		return nil, xerrors.Errorf("%d holders among %d parties: %w", opts.Holders, e.Parties(), types.ErrInvalidPartyCount)
	}
	if len(opts.Features) == 0 {
		return nil, xerrors.Errorf("no features: %w", types.ErrShapeMismatch)
	}
	err := opts.Inverse.Validate()
	if err != nil {
		return nil, err
	}

	ops, err := matrix.NewOps(e)
	if err != nil {
		return nil, err
	}

	return &Model{
		engine: e,
		ops:    ops,
		opts:   opts,
		state:  Created,
	}, nil
}

// State returns the current state.
func (m *Model) State() State {
	m.Lock()
	defer m.Unlock()

	return m.state
}

// Err returns the error that failed the model.
func (m *Model) Err() error {
	m.Lock()
	defer m.Unlock()

	return m.err
}

// Rows returns the pooled row count, known once the data is aggregated.
func (m *Model) Rows() int {
	m.Lock()
	defer m.Unlock()

	return m.rows
}

// Iterations returns the Newton-Schulz iterations run by the fit.
func (m *Model) Iterations() int {
	m.Lock()
	defer m.Unlock()

	return m.iterations
}

// Fit runs the encrypted fit. Holders pass their shard, auxiliary parties
// pass nil. Only shares of aggregates leave a holder.
//
// Any error is terminal: the model moves to Failed and the other parties
// are told to abort.
func (m *Model) Fit(ctx context.Context, shard *types.Shard) error {
	m.Lock()
	if m.state != Created || m.fitting {
		state := m.state
		m.Unlock()
		return xerrors.Errorf("model is %s: %w", state, types.ErrAlreadyFitted)
	}
	m.fitting = true
	m.Unlock()

	err := m.fit(ctx, shard)

	m.Lock()
	defer m.Unlock()

	m.fitting = false
	if err != nil {
		m.failLocked(err)
		return err
	}
	m.state = Solved

	log.Info().Int("party", m.engine.Index()).Int("rows", m.rows).Int("iterations", m.iterations).
		Msg("model solved")
	return nil
}

// Summarize opens the estimates once and returns the summary. Later calls
// return the same summary without opening anything.
func (m *Model) Summarize(ctx context.Context) (*summary.Summary, error) {
	m.Lock()
	defer m.Unlock()

	switch {
	case m.state == Revealed:
		return m.summary, nil
	case m.state == Failed:
		return nil, xerrors.Errorf("model failed: %v: %w", m.err, types.ErrNotSolved)
	case m.state != Solved || m.fitting:
		return nil, xerrors.Errorf("model is %s: %w", m.state, types.ErrNotSolved)
	}

	s, err := m.reveal(ctx)
	if err != nil {
		m.failLocked(err)
		return nil, err
	}

	m.summary = s
	m.state = Revealed
	m.beta, m.cov, m.rss, m.tss = nil, nil, nil, nil

	return s, nil
}

/** Private Helpfer Functions **/

func (m *Model) failLocked(err error) {
	m.state = Failed
	m.err = err
	m.engine.Abort(err)

	log.Warn().Int("party", m.engine.Index()).Err(err).Msg("model failed")
}

func (m *Model) setState(s State) {
	m.Lock()
	m.state = s
	m.Unlock()
}

// fit aggregates the moments of every holder and solves the normal
// equations on the shares.
func (m *Model) fit(ctx context.Context, shard *types.Shard) error {
	d := m.opts.Params()
	idx := m.engine.Index()

	var local *zp.Matrix
	if idx < m.opts.Holders {
		if shard == nil {
			return xerrors.Errorf("holder %d has no shard: %w", idx, types.ErrShapeMismatch)
		}
		var err error
		local, err = m.moments(shard)
		if err != nil {
			return err
		}
	}

	// everyone shares its moments, in holder order
	var agg *zp.Matrix
	for h := 0; h < m.opts.Holders; h++ {
		var value *zp.Matrix
		if h == idx {
			value = local
		}
		share, err := m.engine.Input(ctx, h, value)
		if err != nil {
			return err
		}
		if share.Rows != 1 || share.Cols != momentsLen(d) {
			return xerrors.Errorf("holder %d shared %dx%d moments, want 1x%d: %w",
				h, share.Rows, share.Cols, momentsLen(d), types.ErrShapeMismatch)
		}
		if agg == nil {
			agg = share
			continue
		}
		agg, err = m.ops.Add(agg, share)
		if err != nil {
			return err
		}
	}

	gram, xty, yy, ysum, rows := unpack(agg, d)
	m.setState(DataAggregated)

	opened, err := m.ops.Reveal(ctx, rows)
	if err != nil {
		return err
	}
	n := int(math.Round(opened[0]))
	if n <= d {
		return xerrors.Errorf("%d rows for %d parameters: %w", n, d, types.ErrShapeMismatch)
	}
	m.Lock()
	m.rows = n
	m.Unlock()

	opts := m.opts.Inverse
	if opts.Alpha == 0 {
		opts.Alpha = 1 / (float64(n) * float64(d) * opts.Bound * opts.Bound)
	}
	inv, err := m.ops.Inverse(ctx, gram, opts)
	if err != nil {
		return err
	}
	m.Lock()
	m.iterations = inv.Iterations
	m.Unlock()

	beta, err := m.ops.MatMul(ctx, inv.Inverse, xty)
	if err != nil {
		return err
	}

	// RSS = y'y - b'beta
	fitted, err := m.ops.MatMul(ctx, m.ops.Transpose(xty), beta)
	if err != nil {
		return err
	}
	rss, err := m.ops.Sub(yy, fitted)
	if err != nil {
		return err
	}

	sigma2, err := m.ops.ScalePublic(ctx, rss, 1/float64(n-d))
	if err != nil {
		return err
	}
	diag, err := inv.Inverse.Diag()
	if err != nil {
		return err
	}
	sigmas, err := sigma2.Broadcast(d, 1)
	if err != nil {
		return err
	}
	cov, err := m.ops.Hadamard(ctx, sigmas, diag)
	if err != nil {
		return err
	}

	tss := yy
	if m.opts.Intercept {
		// TSS = y'y - sum(y) * mean(y)
		mean, err := m.ops.ScalePublic(ctx, ysum, 1/float64(n))
		if err != nil {
			return err
		}
		sq, err := m.ops.Hadamard(ctx, ysum, mean)
		if err != nil {
			return err
		}
		tss, err = m.ops.Sub(yy, sq)
		if err != nil {
			return err
		}
	}

	m.Lock()
	m.beta, m.cov, m.rss, m.tss = beta, cov, rss, tss
	m.Unlock()

	return nil
}

// reveal runs the single opening of a fit.
func (m *Model) reveal(ctx context.Context) (*summary.Summary, error) {
	packed, err := zp.VStack(m.beta, m.cov, m.rss, m.tss)
	if err != nil {
		return nil, err
	}
	values, err := m.ops.Reveal(ctx, packed)
	if err != nil {
		return nil, err
	}

	d := m.opts.Params()
	return summary.New(summary.Revealed{
		Features:     m.opts.Features,
		Intercept:    m.opts.Intercept,
		Coefficients: values[:d],
		Variances:    values[d : 2*d],
		RSS:          values[2*d],
		TSS:          values[2*d+1],
		Rows:         m.rows,
	})
}

// momentsLen is the length of the moments vector of d parameters.
func momentsLen(d int) int {
	return d*d + d + 3
}

// moments computes the local Gram matrix X'X, the moment vector X'y, y'y,
// sum(y) and the row count of a shard, packed in a fixed-point row vector.
func (m *Model) moments(shard *types.Shard) (*zp.Matrix, error) {
	err := shard.Validate(len(m.opts.Features))
	if err != nil {
		return nil, err
	}

	d := m.opts.Params()
	rows := shard.Rows()

	x := mat.NewDense(rows, d, nil)
	for i, row := range shard.X {
		off := 0
		if m.opts.Intercept {
			x.Set(i, 0, 1)
			off = 1
		}
		for j, v := range row {
			x.Set(i, j+off, v)
		}
	}
	y := mat.NewVecDense(rows, append([]float64(nil), shard.Y...))

	var gram mat.Dense
	gram.Mul(x.T(), x)
	var xty mat.VecDense
	xty.MulVec(x.T(), y)

	values := make([]float64, 0, momentsLen(d))
	values = append(values, gram.RawMatrix().Data...)
	values = append(values, xty.RawVector().Data...)
	values = append(values, mat.Dot(y, y), mat.Sum(y), float64(rows))

	return m.ops.FixedPoint().EncodeMatrix(1, len(values), values)
}

// unpack splits the aggregated moments vector into its parts.
func unpack(v *zp.Matrix, d int) (gram, xty, yy, ysum, rows *zp.Matrix) {
	at := 0
	take := func(r, c int) *zp.Matrix {
		res := &zp.Matrix{Rows: r, Cols: c, Data: v.Data[at : at+r*c]}
		at += r * c
		return res
	}
	gram = take(d, d)
	xty = take(d, 1)
	yy = take(1, 1)
	ysum = take(1, 1)
	rows = take(1, 1)
	return
}
