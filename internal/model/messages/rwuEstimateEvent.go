package messages

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/LeonardoBeccarini/rootwater/pkg/rootwater"
)

// RWUEstimateEvent is published by the rwu service for every completed day.
type RWUEstimateEvent struct {
	EventID      string    `json:"event_id"`
	FieldID      string    `json:"field_id"`
	ProbeID      string    `json:"probe_id"`
	Day          time.Time `json:"day"`
	RWU          Number    `json:"rwu"`         // vol.%
	RWUNoNight   Number    `json:"rwu_nonight"` // vol.%
	StepControl  int       `json:"step_control"`
	StepDetected bool      `json:"step_detected"`
	NSE          Number    `json:"nse"`
	Safe         bool      `json:"safe"`
	Skipped      bool      `json:"skipped,omitempty"`
	// HeadStart is the matric head (m) at the start of daytime uptake, null
	// when the probe soil is unknown.
	HeadStart    Number    `json:"head_start"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewRWUEstimateEvent wraps a day estimate with a fresh event ID.
func NewRWUEstimateEvent(fieldID, probeID string, d rootwater.DayEstimate, now time.Time) RWUEstimateEvent {
	return RWUEstimateEvent{
		EventID:      uuid.New().String(),
		FieldID:      fieldID,
		ProbeID:      probeID,
		Day:          d.Day,
		RWU:          Number(d.RWU),
		RWUNoNight:   Number(d.RWUNoNight),
		StepControl:  d.StepControl,
		StepDetected: d.StepDetected,
		NSE:          Number(d.NSE),
		Safe:         d.Safe(),
		Skipped:      d.Skipped,
		HeadStart:    Number(math.NaN()),
		Timestamp:    now,
	}
}
