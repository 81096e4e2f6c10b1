package rootwater

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/nathan-osman/go-sunrise"
)

// ErrNoSolarReference is returned for days without sunrise or sunset (polar day/night).
var ErrNoSolarReference = errors.New("rootwater: no sunrise/sunset for day")

const earthRadiusM = 6356900.0

// SunClock gives the astronomical references of a calendar day.
type SunClock interface {
	SunTimes(day time.Time) (rise, set time.Time, err error)
}

// Observer is a site on the ground. Elevation is in metres above mean sea level.
type Observer struct {
	Latitude  float64 `yaml:"latitude" json:"latitude"`
	Longitude float64 `yaml:"longitude" json:"longitude"`
	Elevation float64 `yaml:"elevation" json:"elevation"`
}

// SunTimes returns sunrise and sunset of the calendar day of `day`, in day's location.
// An elevated observer sees the sun over the dipped horizon earlier in the
// morning and later in the evening.
func (o Observer) SunTimes(day time.Time) (time.Time, time.Time, error) {
	rise, set := sunrise.SunriseSunset(o.Latitude, o.Longitude, day.Year(), day.Month(), day.Day())
	if rise.IsZero() || set.IsZero() {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %s", ErrNoSolarReference, day.Format("2006-01-02"))
	}
	shift := o.horizonShift()
	loc := day.Location()
	return rise.Add(-shift).In(loc), set.Add(shift).In(loc), nil
}

// horizonShift converts the horizon dip into time, 4 minutes per degree of
// hour angle scaled by the latitude.
func (o Observer) horizonShift() time.Duration {
	if o.Elevation <= 0 {
		return 0
	}
	dip := math.Acos(earthRadiusM/(earthRadiusM+o.Elevation)) * 180 / math.Pi
	cosLat := math.Cos(o.Latitude * math.Pi / 180)
	if cosLat < 0.05 {
		cosLat = 0.05
	}
	minutes := 4 * dip / cosLat
	return time.Duration(minutes * float64(time.Minute))
}
