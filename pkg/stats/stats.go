package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// PopMeanStdDev returns the mean and the population (divisor N) standard
// deviation of xs. Empty input yields NaN for both.
func PopMeanStdDev(xs []float64) (mean, sd float64) {
	if len(xs) == 0 {
		return math.NaN(), math.NaN()
	}
	if isConstant(xs) {
		return xs[0], 0
	}
	return stat.PopMeanStdDev(xs, nil)
}

// Degenerate reports whether sd cannot be used as a divisor.
func Degenerate(sd float64) bool {
	return sd == 0 || math.IsNaN(sd) || math.IsInf(sd, 0)
}

// ZScores returns population z-scores of xs. When the standard deviation is
// zero or undefined every score is exactly 0.
func ZScores(xs []float64) []float64 {
	out := make([]float64, len(xs))
	mean, sd := PopMeanStdDev(xs)
	if Degenerate(sd) {
		return out
	}
	for i, x := range xs {
		out[i] = (x - mean) / sd
	}
	return out
}

// DenseRankDesc ranks xs in descending order: the largest value gets 1,
// ties share a rank, and the next distinct value gets the previous rank + 1.
func DenseRankDesc(xs []float64) []int {
	idx := make([]int, len(xs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return xs[idx[a]] > xs[idx[b]]
	})

	ranks := make([]int, len(xs))
	rank := 0
	for i, j := range idx {
		if i == 0 || xs[j] != xs[idx[i-1]] {
			rank++
		}
		ranks[j] = rank
	}
	return ranks
}

// isConstant catches constant series whose floating point mean would
// otherwise leave a tiny non-zero spread.
func isConstant(xs []float64) bool {
	for _, x := range xs[1:] {
		if x != xs[0] {
			return false
		}
	}
	return true
}
