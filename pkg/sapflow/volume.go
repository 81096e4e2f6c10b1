package sapflow

import (
	"fmt"
	"math"

	"github.com/LeonardoBeccarini/rootwater/pkg/timeseries"
)

// Sensor point depths below the cambium, cm.
const (
	outerEdge = 1.1
	midEdge   = 2.4
	midPoint  = 1.8
	innerPt   = 3.0
	// weight of the mid point in the profile scaling
	midWeight = 0.2
	// half ring width around each profile depth, as a share of the sapwood
	ringHalfWidth = 0.01
)

// DefaultActiveFraction bounds the active sapwood at the 95th percentile of
// the flux profile.
const DefaultActiveFraction = 0.95

type profile struct {
	tree  Tree
	depth float64
	x     []float64
	rel   []float64
}

func newProfile(t Tree) (*profile, error) {
	depth, err := SapwoodDepth(t.Radius, t.Allometry)
	if err != nil {
		return nil, err
	}
	rel, err := RelativeFluxDensity(t, profilePoints)
	if err != nil {
		return nil, err
	}
	return &profile{tree: t, depth: depth, x: depths(depth, profilePoints), rel: rel}, nil
}

func (p *profile) at(depth float64) (float64, bool) {
	for k, x := range p.x {
		if x >= depth {
			return p.rel[k], true
		}
	}
	return 0, false
}

// scale fits the profile to the mid and inner readings by weighted least
// squares on the two sensor points.
func (p *profile) scale(mid, inner float64) (float64, error) {
	a, ok := p.at(midPoint)
	if !ok {
		return 0, fmt.Errorf("%w: sapwood %.2f cm", ErrSapwoodTooThin, p.depth)
	}
	b, ok := p.at(innerPt)
	if !ok {
		return 0, fmt.Errorf("%w: sapwood %.2f cm", ErrSapwoodTooThin, p.depth)
	}
	den := midWeight*a*a + b*b
	if den == 0 {
		return math.NaN(), nil
	}
	return (midWeight*a*mid + b*inner) / den, nil
}

// VelocityProfile returns the sap velocity (same unit as mid and inner) at
// each profile depth (cm) across the sapwood.
func VelocityProfile(t Tree, mid, inner float64) (x, v []float64, err error) {
	p, err := newProfile(t)
	if err != nil {
		return nil, nil, err
	}
	s, err := p.scale(mid, inner)
	if err != nil {
		return nil, nil, err
	}
	v = make([]float64, len(p.rel))
	for k, r := range p.rel {
		v[k] = s * r
	}
	return p.x, v, nil
}

// InnerFlow integrates the scaled flux profile over the sapwood between the
// mid sensor ring and the active sapwood depth. mid and inner are the sap
// velocities at 18 and 30 mm (cm/h); the result is in cm³/h.
func InnerFlow(t Tree, mid, inner, perc float64) (float64, error) {
	if err := checkFraction(perc); err != nil {
		return 0, err
	}
	p, err := newProfile(t)
	if err != nil {
		return 0, err
	}
	s, err := p.scale(mid, inner)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(s) {
		return math.NaN(), nil
	}
	active, err := activeDepth(p.rel, p.depth, perc)
	if err != nil {
		return 0, err
	}
	half := ringHalfWidth * p.depth
	var flow float64
	for k, x := range p.x {
		if x <= midEdge || x > active {
			continue
		}
		area, err := RingArea(t.Radius, x-half, x+half, t.Allometry)
		if err != nil {
			return 0, err
		}
		flow += area * s * p.rel[k]
	}
	return flow, nil
}

// Flow is the sap flow of one reading per sensor ring, cm³/h.
type Flow struct {
	Inner, Mid, Outer float64
}

// Total sums the rings; NaN in any ring propagates.
func (f Flow) Total() float64 { return f.Inner + f.Mid + f.Outer }

type rings struct {
	tree       Tree
	mid, outer float64
	perc       float64
}

func newRings(t Tree, perc float64) (*rings, error) {
	if err := checkFraction(perc); err != nil {
		return nil, err
	}
	mid, err := RingArea(t.Radius, outerEdge, midEdge, t.Allometry)
	if err != nil {
		return nil, err
	}
	outer, err := RingArea(t.Radius, 0, outerEdge, t.Allometry)
	if err != nil {
		return nil, err
	}
	return &rings{tree: t, mid: mid, outer: outer, perc: perc}, nil
}

func (r *rings) convert(inner, mid, outer float64) (Flow, error) {
	q, err := InnerFlow(r.tree, mid, inner, r.perc)
	if err != nil {
		return Flow{}, err
	}
	return Flow{Inner: q, Mid: mid * r.mid, Outer: outer * r.outer}, nil
}

// ConvertReading turns the velocities (cm/h) of one reading into sap flow.
func ConvertReading(t Tree, inner, mid, outer, perc float64) (Flow, error) {
	r, err := newRings(t, perc)
	if err != nil {
		return Flow{}, err
	}
	return r.convert(inner, mid, outer)
}

// Convert turns a frame of sap velocities (cm/h) with the columns inner,
// mid and outer, in that order, into sap flow (cm³/h) per sensor ring.
// Columns beyond the third are dropped.
func Convert(f *timeseries.Frame, t Tree, perc float64) (*timeseries.Frame, error) {
	if len(f.Columns) < 3 {
		return nil, fmt.Errorf("%w: got %d", ErrTooFewColumns, len(f.Columns))
	}
	r, err := newRings(t, perc)
	if err != nil {
		return nil, err
	}

	inner, mid, outer := f.Values[0], f.Values[1], f.Values[2]
	out := [][]float64{
		make([]float64, f.Rows()),
		make([]float64, f.Rows()),
		make([]float64, f.Rows()),
	}
	for i := range f.Times {
		q, err := r.convert(inner[i], mid[i], outer[i])
		if err != nil {
			return nil, fmt.Errorf("row %s: %w", f.Times[i].Format("2006-01-02T15:04"), err)
		}
		out[0][i], out[1][i], out[2][i] = q.Inner, q.Mid, q.Outer
	}
	return timeseries.NewFrame(f.Times, f.Columns[:3], out)
}
