package sapflow

import (
	"fmt"
	"math"
)

// BarkThickness after Rössler (2008), in cm, for radius r (cm).
//
// Rössler, G.: Rindenabzug richtig bemessen, Forstzeitung, 4, p. 21, 2008.
func BarkThickness(r float64, a Allometry) (float64, error) {
	switch a {
	case Beech:
		return (2.61029 + 0.28522*2*r) / 10, nil
	case Oak:
		return (9.88855 + 0.56734*2*r) / 10, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedAllometry, a)
}

// woodRadius is the radius without bark.
func woodRadius(r float64, a Allometry) (float64, error) {
	bark, err := BarkThickness(r, a)
	if err != nil {
		return 0, err
	}
	return r - bark/2, nil
}

// SapwoodDepth is the sapwood thickness (cm) from the sapwood area
// regressions of Gebauer et al. (2008).
func SapwoodDepth(r float64, a Allometry) (float64, error) {
	wr, err := woodRadius(r, a)
	if err != nil {
		return 0, err
	}
	var area float64
	switch a {
	case Beech:
		area = 0.778 * math.Pow(2*wr, 1.917)
	case Oak:
		area = 0.065 * math.Pow(2*wr, 2.264)
	}
	return depthFromArea(wr, area), nil
}

func depthFromArea(r, area float64) float64 {
	return r - math.Sqrt((math.Pi*r*r-area)/math.Pi)
}

// SapwoodDepthRacko is the beech sapwood thickness (cm) after Račko et al.
// (2018); hydrated restricts it to the water-conducting part.
func SapwoodDepthRacko(r float64, hydrated bool) float64 {
	if hydrated {
		return 0.34*r - 2.714
	}
	return 0.3748 * r
}

// SapwoodDepthGlavac is the beech sapwood thickness (cm) after Glavac et al.
// (1990).
func SapwoodDepthGlavac(r float64) float64 {
	dbh := 2 * r
	return depthFromArea(r, 0.6546*dbh*dbh+0.5736*dbh-40.069)
}

// RingArea is the cross-section (cm²) between depths outer and inner below
// the cambium.
func RingArea(r, outer, inner float64, a Allometry) (float64, error) {
	wr, err := woodRadius(r, a)
	if err != nil {
		return 0, err
	}
	return math.Pi*(wr-outer)*(wr-outer) - math.Pi*(wr-inner)*(wr-inner), nil
}
