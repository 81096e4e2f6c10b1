package sapflow

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// profilePoints is the radial resolution of the flux profile.
const profilePoints = 50

// Weibull is the four-parameter function of Gebauer et al. (2008) in its
// published form.
func Weibull(x, a, b, c, d float64) float64 {
	k := (c - 1) / c
	z := (x-d)/b + math.Pow(c-1/c, 1/c)
	return k + a*math.Pow(k, k)*math.Exp(-math.Pow(z, c))*math.Pow(z, c-1)
}

// depths returns n equidistant depths from the cambium over the sapwood.
func depths(depth float64, n int) []float64 {
	x := make([]float64, n)
	for k := range x {
		x[k] = float64(k) / float64(n) * depth
	}
	return x
}

// RelativeFluxDensity evaluates the flux profile of t at n depths across
// its sapwood.
func RelativeFluxDensity(t Tree, n int) ([]float64, error) {
	depth, err := SapwoodDepth(t.Radius, t.Allometry)
	if err != nil {
		return nil, err
	}
	x := depths(depth, n)
	out := make([]float64, n)
	for k, xk := range x {
		out[k] = t.Species.Profile(xk)
	}
	return out, nil
}

// ActiveSapwoodDepth is the depth (cm) holding the fraction perc of the
// total relative flux. Flow beyond it is taken as zero.
func ActiveSapwoodDepth(t Tree, perc float64) (float64, error) {
	if err := checkFraction(perc); err != nil {
		return 0, err
	}
	depth, err := SapwoodDepth(t.Radius, t.Allometry)
	if err != nil {
		return 0, err
	}
	rel, err := RelativeFluxDensity(t, profilePoints)
	if err != nil {
		return 0, err
	}
	return activeDepth(rel, depth, perc)
}

func checkFraction(perc float64) error {
	if math.IsNaN(perc) || perc <= 0 || perc >= 1 {
		return fmt.Errorf("%w: got %v", ErrInvalidActiveFraction, perc)
	}
	return nil
}

// activeDepth is the depth of the first profile point whose cumulative share
// of the flux exceeds perc.
func activeDepth(rel []float64, depth, perc float64) (float64, error) {
	if err := checkFraction(perc); err != nil {
		return 0, err
	}
	cum := floats.CumSum(make([]float64, len(rel)), rel)
	total := cum[len(cum)-1]
	for k, c := range cum {
		if c/total > perc {
			return float64(k) / profilePoints * depth, nil
		}
	}
	return 0, fmt.Errorf("%w: no depth holds %v of the flux", ErrInvalidActiveFraction, perc)
}
