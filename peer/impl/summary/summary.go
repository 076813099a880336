// Package summary turns the values revealed at the end of a fit into the
// usual regression table.
package summary

import (
	"bytes"
	"fmt"
	"math"
	"text/tabwriter"

	"go.dedis.ch/smpcreg/types"
	"golang.org/x/xerrors"
	"gonum.org/v1/gonum/stat/distuv"
)

// InterceptName names the intercept term.
const InterceptName = "const"

// Revealed holds the values opened by the single reveal of a fit.
type Revealed struct {
	// Features names the columns of the design matrix, intercept excluded.
	Features  []string
	Intercept bool

	// Coefficients and Variances are in design matrix order, the intercept
	// first when present.
	Coefficients []float64
	Variances    []float64

	RSS  float64
	TSS  float64
	Rows int
}

// Term is one line of the table.
type Term struct {
	Name        string  `json:"name"`
	Coefficient float64 `json:"coefficient"`
	StdError    float64 `json:"std_error"`
	TValue      float64 `json:"t_value"`
	PValue      float64 `json:"p_value"`
}

// Summary holds the aggregate statistics of a fit.
type Summary struct {
	Intercept    *Term  `json:"intercept,omitempty"`
	Coefficients []Term `json:"coefficients"`

	Rows             int     `json:"rows"`
	DegreesOfFreedom int     `json:"degrees_of_freedom"`
	RSS              float64 `json:"rss"`
	ResidualStdError float64 `json:"residual_std_error"`
	RSquared         float64 `json:"r_squared"`
	AdjRSquared      float64 `json:"adj_r_squared"`
}

// New computes the summary: standard errors from the variances, t-values,
// and two-sided p-values of a Student t with Rows - params degrees of
// freedom.
func New(r Revealed) (*Summary, error) {
	params := len(r.Features)
	if r.Intercept {
		params++
	}
	if len(r.Coefficients) != params || len(r.Variances) != params {
		return nil, xerrors.Errorf("%d coefficients and %d variances for %d parameters: %w",
			len(r.Coefficients), len(r.Variances), params, types.ErrShapeMismatch)
	}
	df := r.Rows - params
	if df <= 0 {
		return nil, xerrors.Errorf("%d rows for %d parameters: %w", r.Rows, params, types.ErrShapeMismatch)
	}

	student := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(df)}

	s := &Summary{
		Coefficients:     make([]Term, 0, len(r.Features)),
		Rows:             r.Rows,
		DegreesOfFreedom: df,
		RSS:              r.RSS,
		ResidualStdError: math.Sqrt(math.Max(r.RSS, 0) / float64(df)),
	}
	if r.TSS > 0 {
		s.RSquared = 1 - r.RSS/r.TSS
		// the centered R^2 loses one more degree of freedom to the intercept
		n := float64(r.Rows)
		k := float64(params)
		if r.Intercept {
			k--
		}
		s.AdjRSquared = 1 - (1-s.RSquared)*(n-1)/(n-k-1)
		if !r.Intercept {
			s.AdjRSquared = 1 - (1-s.RSquared)*n/(n-k)
		}
	}

	for i, beta := range r.Coefficients {
		name := InterceptName
		if r.Intercept {
			if i > 0 {
				name = r.Features[i-1]
			}
		} else {
			name = r.Features[i]
		}

		term := Term{Name: name, Coefficient: beta, StdError: math.NaN(), TValue: math.NaN(), PValue: math.NaN()}
		// fixed-point noise can push a tiny variance below zero
		if r.Variances[i] > 0 {
			term.StdError = math.Sqrt(r.Variances[i])
			term.TValue = beta / term.StdError
			term.PValue = 2 * student.Survival(math.Abs(term.TValue))
		}

		if r.Intercept && i == 0 {
			t := term
			s.Intercept = &t
			continue
		}
		s.Coefficients = append(s.Coefficients, term)
	}
	return s, nil
}

// Terms returns the intercept, when fitted, followed by the coefficients.
func (s *Summary) Terms() []Term {
	res := make([]Term, 0, len(s.Coefficients)+1)
	if s.Intercept != nil {
		res = append(res, *s.Intercept)
	}
	return append(res, s.Coefficients...)
}

// Values returns the coefficients in term order.
func (s *Summary) Values() []float64 {
	terms := s.Terms()
	res := make([]float64, len(terms))
	for i, t := range terms {
		res[i] = t.Coefficient
	}
	return res
}

// String renders the summary as a table.
func (s *Summary) String() string {
	buf := new(bytes.Buffer)

	fmt.Fprintf(buf, "Encrypted OLS regression results\n")
	fmt.Fprintf(buf, "observations: %d   df residuals: %d   R-squared: %.4f   adj. R-squared: %.4f\n",
		s.Rows, s.DegreesOfFreedom, s.RSquared, s.AdjRSquared)
	fmt.Fprintf(buf, "residual std error: %.6g   RSS: %.6g\n\n", s.ResidualStdError, s.RSS)

	w := tabwriter.NewWriter(buf, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "\tcoef\tstd err\tt\tP>|t|\t")
	for _, t := range s.Terms() {
		fmt.Fprintf(w, "%s\t%.6f\t%.6f\t%.3f\t%.4f\t\n", t.Name, t.Coefficient, t.StdError, t.TValue, t.PValue)
	}
	w.Flush()

	return buf.String()
}
