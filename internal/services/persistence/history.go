package persistence

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/sony/gobreaker"

	"github.com/LeonardoBeccarini/rootwater/internal/config"
	"github.com/LeonardoBeccarini/rootwater/internal/model"
	"github.com/LeonardoBeccarini/rootwater/pkg/timeseries"
)

// RWUPoint is a stored daily uptake.
type RWUPoint struct {
	FieldID string       `json:"field_id"`
	ProbeID string       `json:"probe_id"`
	Day     time.Time    `json:"day"`
	RWU     model.Number `json:"rwu"`
	Safe    bool         `json:"safe"`
}

// History reads stored data back.
type History interface {
	LatestRWU(ctx context.Context, minutes, limit int) ([]RWUPoint, error)
	Moisture(ctx context.Context, fieldID, probeID string, from, to time.Time) (*timeseries.Series, error)
}

// NewBreaker trips after cfg.Failures consecutive failures.
func NewBreaker(name string, cfg config.BreakerConfig) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     name,
		Interval: cfg.Interval,
		Timeout:  cfg.OpenFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= uint32(cfg.Failures)
		},
	})
}

// InfluxHistory runs Flux queries through a circuit breaker.
type InfluxHistory struct {
	query  api.QueryAPI
	bucket string
	cb     *gobreaker.CircuitBreaker
}

func NewInfluxHistory(query api.QueryAPI, bucket string, cb *gobreaker.CircuitBreaker) *InfluxHistory {
	return &InfluxHistory{query: query, bucket: bucket, cb: cb}
}

func buildLatestFlux(bucket string, minutes, limit int) string {
	return fmt.Sprintf(`
from(bucket: %q)
  |> range(start: -%dm)
  |> filter(fn: (r) => r._measurement == %q and r._field == "rwu")
  |> keep(columns: ["_time","_value","field_id","probe_id","safe"])
  |> group()
  |> sort(columns: ["_time"], desc: true)
  |> limit(n:%d)
`, bucket, minutes, MeasurementRWU, limit)
}

func buildMoistureFlux(bucket, fieldID, probeID string, from, to time.Time) string {
	return fmt.Sprintf(`
from(bucket: %q)
  |> range(start: %s, stop: %s)
  |> filter(fn: (r) => r._measurement == %q and r._field == "moisture")
  |> filter(fn: (r) => r.field_id == %q and r.probe_id == %q)
  |> keep(columns: ["_time","_value"])
  |> sort(columns: ["_time"])
`, bucket, from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339), MeasurementMoisture, fieldID, probeID)
}

func toFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}

func tag(v interface{}) string {
	s, _ := v.(string)
	return s
}

func (h *InfluxHistory) LatestRWU(ctx context.Context, minutes, limit int) ([]RWUPoint, error) {
	out, err := h.cb.Execute(func() (interface{}, error) {
		res, err := h.query.Query(ctx, buildLatestFlux(h.bucket, minutes, limit))
		if err != nil {
			return nil, err
		}
		defer res.Close()

		pts := make([]RWUPoint, 0, limit)
		for res.Next() {
			rec := res.Record()
			v, ok := toFloat(rec.Value())
			if !ok {
				continue
			}
			pts = append(pts, RWUPoint{
				FieldID: tag(rec.ValueByKey("field_id")),
				ProbeID: tag(rec.ValueByKey("probe_id")),
				Day:     rec.Time(),
				RWU:     model.Number(v),
				Safe:    tag(rec.ValueByKey("safe")) == "true",
			})
		}
		return pts, res.Err()
	})
	if err != nil {
		return nil, err
	}
	return out.([]RWUPoint), nil
}

func (h *InfluxHistory) Moisture(ctx context.Context, fieldID, probeID string, from, to time.Time) (*timeseries.Series, error) {
	out, err := h.cb.Execute(func() (interface{}, error) {
		res, err := h.query.Query(ctx, buildMoistureFlux(h.bucket, fieldID, probeID, from, to))
		if err != nil {
			return nil, err
		}
		defer res.Close()

		s := &timeseries.Series{Name: fieldID + "/" + probeID}
		for res.Next() {
			rec := res.Record()
			v, ok := toFloat(rec.Value())
			if !ok {
				continue
			}
			// duplicates from overlapping writes are skipped
			_ = s.Append(rec.Time(), v)
		}
		return s, res.Err()
	})
	if err != nil {
		return nil, err
	}
	return out.(*timeseries.Series), nil
}
