package attribution

import (
	"errors"
	"fmt"
	"math"

	"github.com/mchmarny/gridpulse/pkg/stats"
	"gonum.org/v1/gonum/mat"
)

// Fit is an ordinary least squares fit with intercept.
type Fit struct {
	// Coefficients holds the intercept followed by one beta per predictor.
	Coefficients []float64
	// Standardized holds beta_j * sd(x_j) / sd(y) per predictor.
	Standardized []float64
	// Importance holds each predictor's share of the absolute standardized
	// betas, in percent.
	Importance []float64
	// R2 is nil when the outcome is constant.
	R2       *float64
	SSRes    float64
	SSTot    float64
	Rank     int
	Observed int
}

// OLS fits y = b0 + sum(b_j * x_j) by least squares. xs holds one column per
// predictor, each the same length as y. The solve uses a thin SVD and the
// minimum-norm solution, so collinear or constant predictors still produce
// an optimal fit.
func OLS(y []float64, xs [][]float64) (*Fit, error) {
	n := len(y)
	p := len(xs) + 1
	if n == 0 {
		return nil, errors.New("no observations")
	}
	for j, x := range xs {
		if len(x) != n {
			return nil, fmt.Errorf("predictor %d has %d values, outcome has %d", j, len(x), n)
		}
	}

	design := mat.NewDense(n, p, nil)
	for i := 0; i < n; i++ {
		design.Set(i, 0, 1)
		for j, x := range xs {
			design.Set(i, j+1, x[i])
		}
	}
	outcome := mat.NewVecDense(n, append([]float64(nil), y...))

	var svd mat.SVD
	if ok := svd.Factorize(design, mat.SVDThin); !ok {
		return nil, errors.New("singular value decomposition failed")
	}
	rcond := math.Nextafter(1, 2) - 1
	rank := svd.Rank(rcond * float64(max(n, p)))
	if rank == 0 {
		return nil, errors.New("design matrix has rank zero")
	}

	var beta mat.VecDense
	svd.SolveVecTo(&beta, outcome, rank)

	var fitted mat.VecDense
	fitted.MulVec(design, &beta)

	ymean, ysd := stats.PopMeanStdDev(y)
	var ssRes, ssTot float64
	for i := 0; i < n; i++ {
		r := y[i] - fitted.AtVec(i)
		ssRes += r * r
		d := y[i] - ymean
		ssTot += d * d
	}

	f := &Fit{
		Coefficients: make([]float64, p),
		Standardized: make([]float64, len(xs)),
		SSRes:        ssRes,
		SSTot:        ssTot,
		Rank:         rank,
		Observed:     n,
	}
	for j := 0; j < p; j++ {
		f.Coefficients[j] = beta.AtVec(j)
	}

	if ssTot != 0 {
		r2 := 1 - ssRes/ssTot
		f.R2 = &r2
	}

	for j, x := range xs {
		_, xsd := stats.PopMeanStdDev(x)
		f.Standardized[j] = standardize(f.Coefficients[j+1], xsd, ysd)
	}
	f.Importance = importance(f.Standardized)

	return f, nil
}

// standardize rescales beta by sd(x)/sd(y); a degenerate sd on either side
// yields 0.
func standardize(beta, xsd, ysd float64) float64 {
	if stats.Degenerate(xsd) || stats.Degenerate(ysd) {
		return 0
	}
	v := beta * (xsd / ysd)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// importance converts standardized betas into percentage shares of their
// absolute sum. With no standardized signal every share is 0.
func importance(std []float64) []float64 {
	out := make([]float64, len(std))
	var sum float64
	for _, v := range std {
		sum += math.Abs(v)
	}
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return out
	}
	for j, v := range std {
		out[j] = 100 * math.Abs(v) / sum
	}
	return out
}
