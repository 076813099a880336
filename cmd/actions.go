package cmd

import (
	"context"
	"fmt"
	"io"
	"math"
	"text/tabwriter"

	"go.dedis.ch/smpcreg/config"
	"go.dedis.ch/smpcreg/internal/dataset"
	"go.dedis.ch/smpcreg/internal/ols"
	"go.dedis.ch/smpcreg/peer/impl/regression"
	"go.dedis.ch/smpcreg/peer/impl/summary"
	"go.dedis.ch/smpcreg/types"
	"golang.org/x/xerrors"
)

// -----------------------------------------------------------------------------
// Fit actions

// FitFiles runs an encrypted fit with one data holder per CSV file.
func FitFiles(ctx context.Context, out io.Writer, conf config.Config, files []string, compare bool) (*summary.Summary, error) {
	if conf.Data.Target == "" {
		return nil, xerrors.New("no target column, set data.target or --target")
	}

	shards := make([]*types.Shard, len(files))
	for i, f := range files {
		var err error
		shards[i], err = dataset.LoadFile(f, conf.Data.Target, conf.Data.Features)
		if err != nil {
			return nil, err
		}
	}

	conf.Session.Holders = len(files)
	return fit(ctx, out, conf, shards, compare)
}

// Demo runs an encrypted fit on synthetic data.
func Demo(ctx context.Context, out io.Writer, conf config.Config, opts dataset.SyntheticOptions, compare bool) (*summary.Summary, error) {
	shards, _, err := dataset.Synthetic(opts)
	if err != nil {
		return nil, err
	}

	conf.Session.Holders = opts.Holders
	return fit(ctx, out, conf, shards, compare)
}

func fit(ctx context.Context, out io.Writer, conf config.Config, shards []*types.Shard, compare bool) (*summary.Summary, error) {
	err := conf.Validate()
	if err != nil {
		return nil, err
	}

	scaled := shards
	var scaling *dataset.Scaling
	if conf.Data.Scale {
		sc, err := dataset.AutoFactors(conf.Inverse.MagnitudeBound, shards...)
		if err != nil {
			return nil, err
		}
		scaled = make([]*types.Shard, len(shards))
		for i, s := range shards {
			scaled[i], err = sc.Apply(s)
			if err != nil {
				return nil, err
			}
		}
		scaling = &sc
	}

	c, err := regression.NewCluster(conf)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	h, err := c.Fit(ctx, scaled)
	if err != nil {
		return nil, err
	}
	defer h.Close()

	res, err := h.Summarize(ctx)
	if err != nil {
		return nil, err
	}
	if scaling != nil {
		res = scaling.Rescale(res)
	}

	fmt.Fprintf(out, "session %s: %d triples, %d iterations\n\n", h.ID(),
		c.Provider().Dealer().Issued(), h.Models()[0].Iterations())
	fmt.Fprintln(out, res)

	if compare {
		ref, err := ols.FitShards(shards, conf.Session.Intercept)
		if err != nil {
			return nil, err
		}
		printComparison(out, res, ref)
	}
	return res, nil
}

// printComparison prints the encrypted coefficients next to the plaintext
// ones.
func printComparison(out io.Writer, res *summary.Summary, ref *ols.Result) {
	fmt.Fprintln(out, "comparison with plaintext OLS")

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "\tencrypted\tplaintext\trel. error\t")
	for j, t := range res.Terms() {
		if j >= len(ref.Coefficients) {
			break
		}
		want := ref.Coefficients[j]
		fmt.Fprintf(w, "%s\t%.6f\t%.6f\t%.2e\t\n", t.Name, t.Coefficient, want,
			math.Abs(t.Coefficient-want)/math.Max(math.Abs(want), 1e-12))
	}
	w.Flush()
}
