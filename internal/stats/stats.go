// Package stats holds the numeric routines behind correlation and
// regression: Pearson's r, strength classification, and small dense
// matrix operations.
package stats

import (
	"database/sql"
	"math"

	mstats "github.com/montanaflynn/stats"

	"github.com/lox/sapweather/internal/models"
)

// MinSamples is the fewest valid pairs for which a correlation is reported.
const MinSamples = 3

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// Mean is the arithmetic mean of values, or 0 for no values.
func Mean(values []float64) float64 {
	m, err := mstats.Mean(values)
	if err != nil {
		return 0
	}
	return m
}

// Variance is the population variance of values, or 0 for no values.
func Variance(values []float64) float64 {
	v, err := mstats.PopulationVariance(values)
	if err != nil {
		return 0
	}
	return v
}

// Classify maps a coefficient to a qualitative strength. Null coefficients
// and samples below MinSamples are always "none".
func Classify(r sql.NullFloat64, sampleSize int) models.Strength {
	if !r.Valid || sampleSize < MinSamples {
		return models.StrengthNone
	}
	abs := math.Abs(r.Float64)
	switch {
	case abs >= 0.5:
		return models.StrengthStrong
	case abs >= 0.3:
		return models.StrengthModerate
	case abs >= 0.1:
		return models.StrengthWeak
	default:
		return models.StrengthNone
	}
}

// Pearson correlates xs against ys over the pairs where both are valid and
// finite. The coefficient is rounded to two decimals; it is null when fewer
// than MinSamples pairs remain or either side has no variance.
func Pearson(xs, ys []sql.NullFloat64) models.FactorCorrelation {
	var px, py []float64
	for i := range xs {
		if i >= len(ys) {
			break
		}
		if !xs[i].Valid || !ys[i].Valid || !finite(xs[i].Float64) || !finite(ys[i].Float64) {
			continue
		}
		px = append(px, xs[i].Float64)
		py = append(py, ys[i].Float64)
	}

	n := len(px)
	result := models.FactorCorrelation{Strength: models.StrengthNone, SampleSize: n}
	if n < MinSamples {
		return result
	}

	if Variance(px) == 0 || Variance(py) == 0 {
		return result
	}
	r, err := mstats.Pearson(px, py)
	if err != nil || math.IsNaN(r) {
		return result
	}

	// Guard against rounding pushing |r| just past 1.
	r = math.Max(-1, math.Min(1, r))
	result.Coefficient = sql.NullFloat64{Float64: Round(r, 2), Valid: true}
	result.Strength = Classify(result.Coefficient, n)
	return result
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// RSquared is 1 - SS_res/SS_tot. A constant target yields 0.
func RSquared(actual, fitted []float64) float64 {
	m := Mean(actual)
	var ssRes, ssTot float64
	for i := range actual {
		ssRes += (actual[i] - fitted[i]) * (actual[i] - fitted[i])
		ssTot += (actual[i] - m) * (actual[i] - m)
	}
	if ssTot == 0 {
		return 0
	}
	return 1 - ssRes/ssTot
}
