package rootwater

import (
	"errors"
	"fmt"
	"time"
)

// Step control codes. A fully valid day sums every criterion to StepValid.
const (
	StepFitFailed      = 0
	StepPeriodTooShort = 2
	StepNoisy          = 3

	StepNightNotFalling = 10   // night decrease above -0.5 vol.% per 6 h
	StepNightNotRising  = 100  // night increase below 1 vol.% per 6 h
	StepDayFalling      = 1000 // day slope negative
	StepDaySteeper      = 1    // day slope steeper than SlopeDiff times night

	StepValid = StepNightNotFalling + StepNightNotRising + StepDayFalling + StepDaySteeper

	// SafeThreshold is the smallest step control accepted by the safe filter:
	// bounded night change and falling day moisture.
	SafeThreshold = 1100
)

// Params tunes the step detection. Moisture is in vol.%.
type Params struct {
	Observer  Observer      `yaml:"observer" json:"observer"`
	DiffSteps int           `yaml:"diff_steps" json:"diff_steps"`
	SlopeDiff float64       `yaml:"slope_diff" json:"slope_diff"`
	MaxDiff   float64       `yaml:"max_diff" json:"max_diff"`
	MinPeriod time.Duration `yaml:"min_period" json:"min_period"`

	// Location sets the calendar days; nil uses the series' location.
	Location *time.Location `yaml:"-" json:"-"`
	// Sun overrides the astronomical reference; nil uses Observer.
	Sun SunClock `yaml:"-" json:"-"`
}

// DefaultParams are tuned for ~30 min TDR readings in temperate beech stands.
func DefaultParams() Params {
	return Params{
		Observer:  Observer{Latitude: 49.70764, Longitude: 5.897638, Elevation: 200},
		DiffSteps: 3,
		SlopeDiff: 3,
		MaxDiff:   0.25,
		MinPeriod: 3*time.Hour + 30*time.Minute,
	}
}

var ErrInvalidParams = errors.New("rootwater: invalid parameters")

func (p Params) Validate() error {
	switch {
	case p.DiffSteps < 1:
		return fmt.Errorf("%w: diff_steps must be >= 1", ErrInvalidParams)
	case p.MaxDiff <= 0:
		return fmt.Errorf("%w: max_diff must be > 0", ErrInvalidParams)
	case p.MinPeriod < 0:
		return fmt.Errorf("%w: min_period must be >= 0", ErrInvalidParams)
	case p.Observer.Latitude < -90 || p.Observer.Latitude > 90:
		return fmt.Errorf("%w: latitude %f", ErrInvalidParams, p.Observer.Latitude)
	case p.Observer.Longitude < -180 || p.Observer.Longitude > 180:
		return fmt.Errorf("%w: longitude %f", ErrInvalidParams, p.Observer.Longitude)
	}
	return nil
}

func (p Params) sun() SunClock {
	if p.Sun != nil {
		return p.Sun
	}
	return p.Observer
}
