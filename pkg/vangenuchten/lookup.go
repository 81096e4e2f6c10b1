package vangenuchten

import "math"

const lookupRows = 100

// Lookup tabulates one soil at relative saturations 0.01 to 1.00.
type Lookup struct {
	RelSat       []float64
	Head         []float64
	Theta        []float64
	Conductivity []float64
	Diffusivity  []float64
}

// NewLookup builds one table per soil. The diffusivity diverges at
// saturation, so its last row repeats the one before.
func NewLookup(soils ...Params) []Lookup {
	out := make([]Lookup, len(soils))
	for i, p := range soils {
		l := Lookup{
			RelSat:       make([]float64, lookupRows),
			Head:         make([]float64, lookupRows),
			Theta:        make([]float64, lookupRows),
			Conductivity: make([]float64, lookupRows),
			Diffusivity:  make([]float64, lookupRows),
		}
		for k := 0; k < lookupRows; k++ {
			s := 0.01 + float64(k)*0.01
			l.RelSat[k] = s
			l.Head[k] = p.HeadFromRelSat(s)
			l.Theta[k] = p.Theta(s)
			l.Conductivity[k] = p.KFromRelSat(s)
			l.Diffusivity[k] = p.DiffusivityFromRelSat(s)
		}
		l.Diffusivity[lookupRows-1] = l.Diffusivity[lookupRows-2]
		out[i] = l
	}
	return out
}

// Row is the table row nearest to relative saturation thst.
func (l Lookup) Row(thst float64) int {
	k := int(math.Round(thst*lookupRows)) - 1
	return max(0, min(lookupRows-1, k))
}
