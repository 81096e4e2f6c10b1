package persistence

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/rootwater/internal/config"
	"github.com/LeonardoBeccarini/rootwater/internal/model"
)

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestDecoderSubscriptions(t *testing.T) {
	d := NewDecoder(config.Default().Topics)
	assert.Equal(t, []string{"sensor/data", "sensor/sap", "event/rwu/#", "event/sapflow/#"}, d.Subscriptions())
}

func TestDecodeReadings(t *testing.T) {
	d := NewDecoder(config.Default().Topics)
	ts := time.Date(2019, 6, 1, 12, 0, 0, 0, time.UTC)

	rec, err := d.Decode("sensor/data", mustJSON(t, model.SoilMoistureData{
		FieldID: "f1", ProbeID: "p10", DepthCM: 10, Moisture: 31.5, Timestamp: ts,
	}))
	require.NoError(t, err)
	assert.Equal(t, MeasurementMoisture, rec.Measurement)
	assert.Equal(t, map[string]string{"field_id": "f1", "probe_id": "p10", "depth_cm": "10"}, rec.Tags)
	assert.Equal(t, 31.5, rec.Fields["moisture"])
	assert.True(t, ts.Equal(rec.Timestamp))

	rec, err = d.Decode("sensor/sap", mustJSON(t, model.SapVelocityData{
		FieldID: "f1", TreeID: "t1", Inner: 1, Mid: 2, Outer: 3, Timestamp: ts,
	}))
	require.NoError(t, err)
	assert.Equal(t, MeasurementVelocity, rec.Measurement)
	assert.Equal(t, 2.0, rec.Fields["mid"])

	_, err = d.Decode("sensor/data", mustJSON(t, model.SoilMoistureData{FieldID: "f1"}))
	assert.Error(t, err)
	_, err = d.Decode("sensor/data", []byte("{"))
	assert.Error(t, err)
}

func TestDecodeEvents(t *testing.T) {
	d := NewDecoder(config.Default().Topics)
	day := time.Date(2019, 6, 2, 0, 0, 0, 0, time.UTC)

	// ids come from the topic when the payload lacks them
	rec, err := d.Decode("event/rwu/f1/p10", mustJSON(t, model.RWUEstimateEvent{
		Day: day, RWU: 0.8, RWUNoNight: 0.7, NSE: model.Number(math.NaN()), HeadStart: -1.2,
		StepControl: 1111, Safe: true,
	}))
	require.NoError(t, err)
	assert.Equal(t, MeasurementRWU, rec.Measurement)
	assert.Equal(t, "f1", rec.Tags["field_id"])
	assert.Equal(t, "p10", rec.Tags["probe_id"])
	assert.Equal(t, "true", rec.Tags["safe"])
	assert.Equal(t, int64(1111), rec.Fields["step_control"])
	assert.True(t, math.IsNaN(rec.Fields["nse"].(float64)))
	assert.True(t, day.Equal(rec.Timestamp))

	rec, err = d.Decode("event/sapflow/f1/t1", mustJSON(t, model.SapFlowEvent{
		FieldID: "f1", TreeID: "t1", Inner: 1, Mid: 2, Outer: 3, Total: 6,
	}))
	require.NoError(t, err)
	assert.Equal(t, MeasurementSapFlow, rec.Measurement)
	assert.Equal(t, 6.0, rec.Fields["total"])

	_, err = d.Decode("event/rwu/", mustJSON(t, model.RWUEstimateEvent{}))
	assert.Error(t, err)

	_, err = d.Decode("event/irrigation/f1", []byte("{}"))
	assert.ErrorIs(t, err, ErrUnhandledTopic)
}

func TestRecordToPoint(t *testing.T) {
	ts := time.Date(2019, 6, 1, 12, 0, 0, 0, time.UTC)
	p := RecordToPoint(Record{
		Measurement: MeasurementRWU,
		Tags:        map[string]string{"field_id": "f1"},
		Fields:      map[string]interface{}{"rwu": 0.5, "nse": math.NaN(), "step_control": int64(2)},
		Timestamp:   ts,
	})
	assert.Equal(t, MeasurementRWU, p.Name())
	assert.True(t, ts.Equal(p.Time()))
	keys := map[string]bool{}
	for _, f := range p.FieldList() {
		keys[f.Key] = true
	}
	assert.Equal(t, map[string]bool{"rwu": true, "step_control": true}, keys)

	p = RecordToPoint(Record{Measurement: MeasurementSapFlow, Fields: map[string]interface{}{"total": math.Inf(1)}})
	require.Len(t, p.FieldList(), 1)
	assert.Equal(t, "count", p.FieldList()[0].Key)
	assert.False(t, p.Time().IsZero())
}
