// Package vangenuchten converts between soil moisture, relative saturation,
// matric head, hydraulic conductivity and diffusivity with the van Genuchten
// (1980) retention model and the Mualem conductivity model.
//
// Heads are in m, alpha in 1/m, conductivity in m/s.
package vangenuchten

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvalidParams = errors.New("vangenuchten: invalid parameters")

const (
	defaultL = 0.5
	// relative saturation used where the head diverges
	infHeadSat = 0.98
	// derivative helpers clamp relative saturation into this range
	minDerivSat = 0.01
	maxDerivSat = 0.9899
	derivStep   = 0.01
	// head perturbation of the finite-difference diffusivity, m
	headStep = 0.05
)

// Params of one soil. M defaults to 1-1/N and L to 0.5 through WithDefaults.
type Params struct {
	Thr   float64 `yaml:"thr" json:"thr"`     // residual moisture
	Ths   float64 `yaml:"ths" json:"ths"`     // saturated moisture
	Alpha float64 `yaml:"alpha" json:"alpha"` // 1/m
	N     float64 `yaml:"n" json:"n"`
	M     float64 `yaml:"m,omitempty" json:"m,omitempty"`
	Ks    float64 `yaml:"ks" json:"ks"` // m/s
	L     float64 `yaml:"l,omitempty" json:"l,omitempty"`
}

// WithDefaults fills M and L when unset.
func (p Params) WithDefaults() Params {
	if p.M == 0 && p.N != 0 {
		p.M = 1 - 1/p.N
	}
	if p.L == 0 {
		p.L = defaultL
	}
	return p
}

func (p Params) Validate() error {
	switch {
	case p.Ths <= p.Thr:
		return fmt.Errorf("%w: ths %.3f must exceed thr %.3f", ErrInvalidParams, p.Ths, p.Thr)
	case p.Alpha <= 0:
		return fmt.Errorf("%w: alpha must be > 0", ErrInvalidParams)
	case p.N <= 1:
		return fmt.Errorf("%w: n must be > 1", ErrInvalidParams)
	case p.Ks < 0:
		return fmt.Errorf("%w: ks must be >= 0", ErrInvalidParams)
	}
	return nil
}

func (p Params) m() float64 {
	if p.M != 0 {
		return p.M
	}
	return 1 - 1/p.N
}

func (p Params) l() float64 {
	if p.L != 0 {
		return p.L
	}
	return defaultL
}

// RelSat is the relative saturation of moisture theta.
func (p Params) RelSat(theta float64) float64 {
	return (theta - p.Thr) / (p.Ths - p.Thr)
}

// Theta is the moisture at relative saturation thst.
func (p Params) Theta(thst float64) float64 {
	return thst*(p.Ths-p.Thr) + p.Thr
}

// RelSatFromHead is the relative saturation at head psi.
func (p Params) RelSatFromHead(psi float64) float64 {
	return math.Pow(1/(1+math.Pow(math.Abs(psi)*p.Alpha, p.N)), p.m())
}

func (p Params) ThetaFromHead(psi float64) float64 {
	return p.Theta(p.RelSatFromHead(psi))
}

func (p Params) rawHead(thst float64) float64 {
	m := p.m()
	s := math.Pow(thst, 1/m)
	return -1 / p.Alpha * math.Pow((1-s)/s, 1/p.N)
}

// HeadFromRelSat is the (negative) matric head at relative saturation thst.
// A diverging head is replaced by the head at 98 % saturation.
func (p Params) HeadFromRelSat(thst float64) float64 {
	psi := p.rawHead(thst)
	if math.IsInf(psi, 0) {
		return p.rawHead(infHeadSat)
	}
	return psi
}

func (p Params) HeadFromTheta(theta float64) float64 {
	return p.HeadFromRelSat(p.RelSat(theta))
}

// KFromHead is the unsaturated conductivity at head psi.
func (p Params) KFromHead(psi float64) float64 {
	m := p.m()
	v := 1 + math.Pow(p.Alpha*math.Abs(psi), p.N)
	k := 1 - math.Pow(1-1/v, m)
	return p.Ks * math.Pow(v, -m*p.l()) * k * k
}

// KFromRelSat is the unsaturated conductivity at relative saturation thst.
func (p Params) KFromRelSat(thst float64) float64 {
	m := p.m()
	k := 1 - math.Pow(1-math.Pow(thst, 1/m), m)
	return p.Ks * math.Pow(thst, p.l()) * k * k
}

func (p Params) KFromTheta(theta float64) float64 {
	return p.KFromRelSat(p.RelSat(theta))
}

// Capacity is the specific water capacity dθ/dψ at head psi.
func (p Params) Capacity(psi float64) float64 {
	m, n := p.m(), p.N
	a := math.Abs(psi)
	return -(p.Ths - p.Thr) * n * m * math.Pow(p.Alpha, n) * math.Pow(a, n-1) *
		math.Pow(1+math.Pow(p.Alpha*a, n), -m-1)
}

// DiffusivityFromRelSat is the closed-form diffusivity at relative
// saturation thst.
func (p Params) DiffusivityFromRelSat(thst float64) float64 {
	m := p.m()
	s := 1 - math.Pow(thst, 1/m)
	return p.Ks * (1 - m) * math.Pow(thst, 0.5-1/m) / (p.Alpha * m * (p.Ths - p.Thr)) *
		(math.Pow(s, -m) + math.Pow(s, m) - 2)
}

func (p Params) DiffusivityFromTheta(theta float64) float64 {
	return p.DiffusivityFromRelSat(p.RelSat(theta))
}

// DiffusivityFromHead approximates the diffusivity at psi by a finite
// moisture difference over a 5 cm head step.
func (p Params) DiffusivityFromHead(psi float64) float64 {
	dth := p.ThetaFromHead(psi) - p.ThetaFromHead(psi-headStep)
	return p.KFromHead(psi) * 0.1 / dth
}

// DiffusivityKC is the diffusivity as conductivity over capacity, scaled by
// the moisture at thst.
func (p Params) DiffusivityKC(thst float64) float64 {
	c := p.Capacity(p.HeadFromRelSat(thst))
	return -p.KFromRelSat(thst) / (c * p.Theta(thst))
}

func clampSat(thst float64) float64 {
	return math.Min(maxDerivSat, math.Max(minDerivSat, thst))
}

// DHeadDTheta is the slope of the retention curve at relative saturation
// thst by central difference.
func (p Params) DHeadDTheta(thst float64) float64 {
	thst = clampSat(thst)
	lo, hi := thst-derivStep, thst+derivStep
	return (p.HeadFromRelSat(lo) - p.HeadFromRelSat(hi)) / (p.Theta(lo) - p.Theta(hi))
}

// DDiffusivityDTheta is the slope of the diffusivity at relative
// saturation thst by central difference.
func (p Params) DDiffusivityDTheta(thst float64) float64 {
	thst = clampSat(thst)
	lo, hi := thst-derivStep, thst+derivStep
	return (p.DiffusivityFromRelSat(lo) - p.DiffusivityFromRelSat(hi)) / (p.Theta(lo) - p.Theta(hi))
}
