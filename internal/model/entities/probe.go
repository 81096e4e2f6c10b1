package entities

import (
	"fmt"
	"math"
	"time"

	"github.com/LeonardoBeccarini/rootwater/pkg/rootwater"
	"github.com/LeonardoBeccarini/rootwater/pkg/vangenuchten"
)

// Probe is a soil-moisture sensor at one depth of a profile.
type Probe struct {
	FieldID   string  `json:"field_id" yaml:"-"`
	ID        string  `json:"id" yaml:"id"` // unique probe identifier
	Longitude float64 `json:"longitude" yaml:"longitude"`
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Elevation float64 `json:"elevation" yaml:"elevation"` // m a.s.l.
	DepthCM   float64 `json:"depth_cm" yaml:"depth_cm"`
	// UTCOffsetHours is the fixed offset of the logger clock, e.g. 1 for CET.
	UTCOffsetHours float64 `json:"utc_offset_h" yaml:"utc_offset_h"`
	// Texture is an optional USDA class code for hydraulic conversions.
	Texture string `json:"texture,omitempty" yaml:"texture,omitempty"`
}

// Observer places the probe for sunrise and sunset.
func (p Probe) Observer() rootwater.Observer {
	return rootwater.Observer{Latitude: p.Latitude, Longitude: p.Longitude, Elevation: p.Elevation}
}

// Location is the fixed zone of the logger clock.
func (p Probe) Location() *time.Location {
	secs := int(p.UTCOffsetHours * 3600)
	return time.FixedZone(fmt.Sprintf("UTC%+.1f", p.UTCOffsetHours), secs)
}

// Soil returns the hydraulic parameters of the probe's texture class.
func (p Probe) Soil() (vangenuchten.Params, bool) {
	if p.Texture == "" {
		return vangenuchten.Params{}, false
	}
	t, err := vangenuchten.LookupTexture(p.Texture)
	if err != nil {
		return vangenuchten.Params{}, false
	}
	return t.Params, true
}

// Head converts a moisture reading (vol.%) into matric head (m) with the
// probe's soil; false when the texture is unknown.
func (p Probe) Head(moisture float64) (float64, bool) {
	soil, ok := p.Soil()
	if !ok || math.IsNaN(moisture) {
		return math.NaN(), false
	}
	return soil.HeadFromTheta(moisture / 100), true
}
