package persistence

import (
	"math"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// RecordToPoint normalises a Record into a point. Influx has no NaN, so
// missing values are left out of the fields.
func RecordToPoint(r Record) *write.Point {
	fields := make(map[string]interface{}, len(r.Fields))
	for k, v := range r.Fields {
		if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
			continue
		}
		fields[k] = v
	}
	// a point needs at least one field
	if len(fields) == 0 {
		fields["count"] = int64(1)
	}
	t := r.Timestamp
	if t.IsZero() {
		t = time.Now()
	}
	return influxdb2.NewPoint(r.Measurement, r.Tags, fields, t)
}
