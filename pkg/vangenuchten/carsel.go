package vangenuchten

import (
	"errors"
	"fmt"
	"strings"
)

// Texture is a USDA soil texture class with its mean hydraulic parameters.
type Texture struct {
	Code             string
	Silt, Sand, Clay float64 // %
	Params           Params
}

var ErrUnknownTexture = errors.New("vangenuchten: unknown texture")

// per cm to per m, cm/h to m/s
const (
	alphaScale = 100.
	ksScale    = 1. / 360000
)

func carsel(code string, silt, sand, clay, thr, ths, alpha, n, ks float64) Texture {
	return Texture{
		Code: code, Silt: silt, Sand: sand, Clay: clay,
		Params: Params{Thr: thr, Ths: ths, Alpha: alpha * alphaScale, N: n, Ks: ks * ksScale}.WithDefaults(),
	}
}

// Carsel holds the class means of Carsel and Parrish (1988).
var Carsel = []Texture{
	carsel("C", 30, 15, 55, 0.068, 0.38, 0.008, 1.09, 0.200),
	carsel("CL", 37, 30, 33, 0.095, 0.41, 0.019, 1.31, 0.258),
	carsel("L", 40, 40, 20, 0.078, 0.43, 0.036, 1.56, 1.042),
	carsel("LS", 13, 81, 6, 0.057, 0.43, 0.124, 2.28, 14.592),
	carsel("S", 4, 93, 3, 0.045, 0.43, 0.145, 2.68, 29.700),
	carsel("SC", 11, 48, 41, 0.100, 0.38, 0.027, 1.23, 0.121),
	carsel("SCL", 19, 54, 27, 0.100, 0.39, 0.059, 1.48, 1.308),
	carsel("SI", 85, 6, 9, 0.034, 0.46, 0.016, 1.37, 0.250),
	carsel("SIC", 48, 6, 46, 0.070, 0.36, 0.005, 1.09, 0.021),
	carsel("SICL", 59, 8, 33, 0.089, 0.43, 0.010, 1.23, 0.071),
	carsel("SIL", 65, 17, 18, 0.067, 0.45, 0.020, 1.41, 0.450),
	carsel("SL", 26, 63, 11, 0.065, 0.41, 0.075, 1.89, 4.421),
}

// LookupTexture finds a Carsel class by code, case-insensitively.
func LookupTexture(code string) (Texture, error) {
	for _, t := range Carsel {
		if strings.EqualFold(t.Code, code) {
			return t, nil
		}
	}
	return Texture{}, fmt.Errorf("%w: %q", ErrUnknownTexture, code)
}
