// Package dataset reads data holder shards from CSV files, scales them into
// the magnitude range the encrypted fit expects, and generates synthetic
// shards.
package dataset

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"go.dedis.ch/smpcreg/peer/impl/summary"
	"go.dedis.ch/smpcreg/types"
	"golang.org/x/xerrors"
)

// LoadFile reads the shard stored in the CSV file at path.
func LoadFile(path, target string, features []string) (*types.Shard, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, xerrors.Errorf("failed to open %s: %v", path, err)
	}
	defer f.Close()

	shard, err := Load(f, target, features)
	if err != nil {
		return nil, xerrors.Errorf("%s: %w", path, err)
	}
	return shard, nil
}

// Load reads a CSV with a header row. The target column becomes Y; the
// features columns, in the given order, become X. No features means every
// column but the target.
func Load(r io.Reader, target string, features []string) (*types.Shard, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, xerrors.Errorf("failed to read CSV header: %v", err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.TrimSpace(name)] = i
	}

	ti, ok := columns[target]
	if !ok {
		return nil, xerrors.Errorf("no target column %q", target)
	}
	if len(features) == 0 {
		for _, name := range header {
			name = strings.TrimSpace(name)
			if name != target {
				features = append(features, name)
			}
		}
	}
	idx := make([]int, len(features))
	for i, name := range features {
		idx[i], ok = columns[name]
		if !ok {
			return nil, xerrors.Errorf("no feature column %q", name)
		}
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, xerrors.Errorf("failed to read CSV records: %v", err)
	}

	shard := &types.Shard{
		Features: append([]string(nil), features...),
		X:        make([][]float64, 0, len(records)),
		Y:        make([]float64, 0, len(records)),
	}
	for line, record := range records {
		y, err := parse(record, ti)
		if err != nil {
			return nil, xerrors.Errorf("record %d: %v", line+1, err)
		}
		row := make([]float64, len(idx))
		for j, c := range idx {
			row[j], err = parse(record, c)
			if err != nil {
				return nil, xerrors.Errorf("record %d: %v", line+1, err)
			}
		}
		shard.X = append(shard.X, row)
		shard.Y = append(shard.Y, y)
	}

	return shard, shard.Validate(len(features))
}

func parse(record []string, i int) (float64, error) {
	if i >= len(record) {
		return 0, xerrors.Errorf("missing column %d", i)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(record[i]), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, xerrors.Errorf("column %d is %v", i, v)
	}
	return v, nil
}

// Split cuts a shard into parts of nearly equal row counts.
func Split(shard *types.Shard, parts int) ([]*types.Shard, error) {
	if parts < 1 || parts > shard.Rows() {
		return nil, xerrors.Errorf("cannot split %d rows in %d parts", shard.Rows(), parts)
	}
	res := make([]*types.Shard, parts)
	start := 0
	for i := range res {
		end := start + (shard.Rows()-start)/(parts-i)
		res[i] = &types.Shard{
			Features: shard.Features,
			X:        shard.X[start:end],
			Y:        shard.Y[start:end],
		}
		start = end
	}
	return res, nil
}

// Scaling holds the public per-column divisors applied before a fit.
type Scaling struct {
	X []float64
	Y float64
}

// AutoFactors returns, for every column, the smallest power of ten that
// brings its largest magnitude over all shards within bound.
func AutoFactors(bound float64, shards ...*types.Shard) (Scaling, error) {
	if len(shards) == 0 {
		return Scaling{}, xerrors.Errorf("no shards: %w", types.ErrShapeMismatch)
	}
	cols := shards[0].Cols()
	maxX := make([]float64, cols)
	maxY := 0.0
	for _, s := range shards {
		err := s.Validate(cols)
		if err != nil {
			return Scaling{}, err
		}
		for i, row := range s.X {
			for j, v := range row {
				maxX[j] = math.Max(maxX[j], math.Abs(v))
			}
			maxY = math.Max(maxY, math.Abs(s.Y[i]))
		}
	}

	sc := Scaling{X: make([]float64, cols), Y: factor(maxY, bound)}
	for j, m := range maxX {
		sc.X[j] = factor(m, bound)
	}
	return sc, nil
}

func factor(max, bound float64) float64 {
	f := 1.0
	for max/f > bound {
		f *= 10
	}
	return f
}

// Apply returns a scaled copy of shard.
func (sc Scaling) Apply(shard *types.Shard) (*types.Shard, error) {
	err := shard.Validate(len(sc.X))
	if err != nil {
		return nil, err
	}
	res := &types.Shard{
		Features: shard.Features,
		X:        make([][]float64, shard.Rows()),
		Y:        make([]float64, shard.Rows()),
	}
	for i, row := range shard.X {
		res.X[i] = make([]float64, len(row))
		for j, v := range row {
			res.X[i][j] = v / sc.X[j]
		}
		res.Y[i] = shard.Y[i] / sc.Y
	}
	return res, nil
}

// Rescale expresses a summary computed on scaled data in the original
// units. t-values, p-values and R-squared do not change.
func (sc Scaling) Rescale(s *summary.Summary) *summary.Summary {
	res := *s
	if s.Intercept != nil {
		t := *s.Intercept
		t.Coefficient *= sc.Y
		t.StdError *= sc.Y
		res.Intercept = &t
	}
	res.Coefficients = make([]summary.Term, len(s.Coefficients))
	for j, t := range s.Coefficients {
		if j < len(sc.X) {
			t.Coefficient *= sc.Y / sc.X[j]
			t.StdError *= sc.Y / sc.X[j]
		}
		res.Coefficients[j] = t
	}
	res.RSS *= sc.Y * sc.Y
	res.ResidualStdError *= sc.Y
	return &res
}
