package messages

import (
	"time"
)

// SoilMoistureData is one reading of a probe, in vol.%.
type SoilMoistureData struct {
	FieldID   string    `json:"field_id"`
	ProbeID   string    `json:"probe_id"`
	DepthCM   float64   `json:"depth_cm"`
	Moisture  float64   `json:"moisture"`
	Timestamp time.Time `json:"timestamp"`
}

// SapVelocityData holds the heat-pulse velocities (cm/h) at the inner, mid
// and outer needle points.
type SapVelocityData struct {
	FieldID   string    `json:"field_id"`
	TreeID    string    `json:"tree_id"`
	Inner     float64   `json:"inner"`
	Mid       float64   `json:"mid"`
	Outer     float64   `json:"outer"`
	Timestamp time.Time `json:"timestamp"`
}
