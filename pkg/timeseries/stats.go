package timeseries

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// truncate is the kernel half-width in standard deviations.
const truncate = 4.0

// GaussianFilter1D smooths values with a normalised Gaussian kernel of the given
// sigma. Edges are mirrored including the edge sample (d c b a | a b c d).
// Any NaN inside a window makes the output NaN.
func GaussianFilter1D(values []float64, sigma float64) []float64 {
	out := make([]float64, len(values))
	n := len(values)
	if n == 0 {
		return out
	}
	if sigma <= 0 {
		copy(out, values)
		return out
	}
	radius := int(truncate*sigma + 0.5)
	weights := make([]float64, 2*radius+1)
	for k := -radius; k <= radius; k++ {
		weights[k+radius] = math.Exp(-0.5 * float64(k*k) / (sigma * sigma))
	}
	floats.Scale(1/floats.Sum(weights), weights)

	for i := range values {
		var acc float64
		for k := -radius; k <= radius; k++ {
			acc += weights[k+radius] * values[reflect(i+k, n)]
		}
		out[i] = acc
	}
	return out
}

func reflect(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - i - 1
	}
	return i
}

// LinearFit returns intercept and slope of the least-squares line y = a + b*x.
// Pairs with a NaN are dropped.
func LinearFit(x, y []float64) (intercept, slope float64, err error) {
	if len(x) != len(y) {
		return 0, 0, ErrLengthMismatch
	}
	xs := make([]float64, 0, len(x))
	ys := make([]float64, 0, len(y))
	for i := range x {
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) {
			continue
		}
		xs = append(xs, x[i])
		ys = append(ys, y[i])
	}
	if len(xs) < 2 {
		return 0, 0, ErrInsufficientData
	}
	if stat.Variance(xs, nil) == 0 {
		return 0, 0, ErrInsufficientData
	}
	intercept, slope = stat.LinearRegression(xs, ys, nil, false)
	return intercept, slope, nil
}

// FitIndex fits values against their sample number 0..n-1.
func FitIndex(values []float64) (intercept, slope float64, err error) {
	if len(values) < 2 {
		return 0, 0, ErrInsufficientData
	}
	x := make([]float64, len(values))
	floats.Span(x, 0, float64(len(values)-1))
	return LinearFit(x, values)
}

// NSE is the Nash-Sutcliffe efficiency of sim against obs.
func NSE(sim, obs []float64) float64 {
	if len(sim) != len(obs) || len(obs) == 0 {
		return math.NaN()
	}
	mean := stat.Mean(obs, nil)
	var num, den float64
	for i := range obs {
		num += (obs[i] - sim[i]) * (obs[i] - sim[i])
		den += (obs[i] - mean) * (obs[i] - mean)
	}
	if den == 0 {
		return math.NaN()
	}
	return 1 - num/den
}

// NSEC2M bounds NSE to (-1, 1]: nse / (2 - nse).
func NSEC2M(sim, obs []float64) float64 {
	nse := NSE(sim, obs)
	if math.IsNaN(nse) {
		return nse
	}
	return nse / (2 - nse)
}
