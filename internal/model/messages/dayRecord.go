package messages

import (
	"time"

	"github.com/LeonardoBeccarini/rootwater/pkg/rootwater"
)

// DayRecord is the JSON form of a day estimate, with missing values as null.
type DayRecord struct {
	Day          time.Time `json:"day"`
	RWU          Number    `json:"rwu"`
	RWUNoNight   Number    `json:"rwu_nonight"`
	NightSlope   Number    `json:"night_slope"`
	DaySlope     Number    `json:"day_slope"`
	NSE          Number    `json:"nse"`
	StepControl  int       `json:"step_control"`
	StepDetected bool      `json:"step_detected"`
	Safe         bool      `json:"safe"`
	Skipped      bool      `json:"skipped,omitempty"`
	NightStart   time.Time `json:"night_start"`
	DayStart     time.Time `json:"day_start"`
	NextNight    time.Time `json:"next_night"`
}

func NewDayRecord(d rootwater.DayEstimate) DayRecord {
	return DayRecord{
		Day:          d.Day,
		RWU:          Number(d.RWU),
		RWUNoNight:   Number(d.RWUNoNight),
		NightSlope:   Number(d.NightSlope),
		DaySlope:     Number(d.DaySlope),
		NSE:          Number(d.NSE),
		StepControl:  d.StepControl,
		StepDetected: d.StepDetected,
		Safe:         d.Safe(),
		Skipped:      d.Skipped,
		NightStart:   d.NightStart,
		DayStart:     d.DayStart,
		NextNight:    d.NextNight,
	}
}
