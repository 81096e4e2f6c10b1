package app

import (
	"time"

	"github.com/LeonardoBeccarini/rootwater/internal/model"
)

// LatestRWU is a stored daily uptake as served by the persistence service.
type LatestRWU struct {
	FieldID string       `json:"field_id"`
	ProbeID string       `json:"probe_id"`
	Day     time.Time    `json:"day"`
	RWU     model.Number `json:"rwu"`
	Safe    bool         `json:"safe"`
}

type Stats struct {
	Mean  model.Number `json:"mean"`
	Min   model.Number `json:"min"`
	Max   model.Number `json:"max"`
	Count int          `json:"count"` // safe estimates in the stats
}

type DashboardData struct {
	Probes  []LatestRWU `json:"probes"` // newest day per probe
	Stats   Stats       `json:"stats"`
	Breaker string      `json:"breaker"`
	Stale   bool        `json:"stale"` // served from the last good answer
}
