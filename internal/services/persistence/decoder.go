package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/LeonardoBeccarini/rootwater/internal/config"
	"github.com/LeonardoBeccarini/rootwater/internal/model"
)

// Measurements written to Influx.
const (
	MeasurementMoisture = "soil_moisture"
	MeasurementVelocity = "sap_velocity"
	MeasurementRWU      = "rwu_estimate"
	MeasurementSapFlow  = "sap_flow"
)

var ErrUnhandledTopic = errors.New("persistence: unhandled topic")

// Record is a decoded message ready to become an Influx point.
type Record struct {
	Measurement string
	Tags        map[string]string
	Fields      map[string]interface{}
	Timestamp   time.Time
}

// Decoder maps the configured topics to records.
type Decoder struct {
	topics config.Topics
}

func NewDecoder(topics config.Topics) *Decoder { return &Decoder{topics: topics} }

// topicPrefix cuts an event topic template at its first placeholder.
func topicPrefix(tmpl string) string {
	if i := strings.Index(tmpl, "{"); i >= 0 {
		return tmpl[:i]
	}
	return tmpl
}

// Subscriptions lists the topic filters carrying the decoded messages.
func (d *Decoder) Subscriptions() []string {
	return []string{
		d.topics.SensorData,
		d.topics.SapData,
		topicPrefix(d.topics.RWUEvents) + "#",
		topicPrefix(d.topics.SapFlowEvents) + "#",
	}
}

func (d *Decoder) Decode(topic string, payload []byte) (Record, error) {
	switch {
	case topic == d.topics.SensorData:
		return decodeMoisture(payload)
	case topic == d.topics.SapData:
		return decodeVelocity(payload)
	case strings.HasPrefix(topic, topicPrefix(d.topics.RWUEvents)):
		return decodeRWU(topic, topicPrefix(d.topics.RWUEvents), payload)
	case strings.HasPrefix(topic, topicPrefix(d.topics.SapFlowEvents)):
		return decodeSapFlow(topic, topicPrefix(d.topics.SapFlowEvents), payload)
	}
	return Record{}, fmt.Errorf("%w: %s", ErrUnhandledTopic, topic)
}

func decodeMoisture(payload []byte) (Record, error) {
	var m model.SoilMoistureData
	if err := json.Unmarshal(payload, &m); err != nil {
		return Record{}, err
	}
	if m.FieldID == "" || m.ProbeID == "" {
		return Record{}, errors.New("moisture: missing field/probe")
	}
	return Record{
		Measurement: MeasurementMoisture,
		Tags: map[string]string{
			"field_id": m.FieldID,
			"probe_id": m.ProbeID,
			"depth_cm": strconv.FormatFloat(m.DepthCM, 'f', -1, 64),
		},
		Fields:    map[string]interface{}{"moisture": m.Moisture},
		Timestamp: m.Timestamp,
	}, nil
}

func decodeVelocity(payload []byte) (Record, error) {
	var v model.SapVelocityData
	if err := json.Unmarshal(payload, &v); err != nil {
		return Record{}, err
	}
	if v.FieldID == "" || v.TreeID == "" {
		return Record{}, errors.New("velocity: missing field/tree")
	}
	return Record{
		Measurement: MeasurementVelocity,
		Tags:        map[string]string{"field_id": v.FieldID, "tree_id": v.TreeID},
		Fields:      map[string]interface{}{"inner": v.Inner, "mid": v.Mid, "outer": v.Outer},
		Timestamp:   v.Timestamp,
	}, nil
}

func decodeRWU(topic, prefix string, payload []byte) (Record, error) {
	var e model.RWUEstimateEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return Record{}, err
	}
	fieldID, probeID := pickIDs(topic, e.FieldID, e.ProbeID, prefix)
	if fieldID == "" || probeID == "" {
		return Record{}, errors.New("rwu: missing field/probe")
	}
	return Record{
		Measurement: MeasurementRWU,
		Tags: map[string]string{
			"field_id": fieldID,
			"probe_id": probeID,
			"safe":     strconv.FormatBool(e.Safe),
		},
		Fields: map[string]interface{}{
			"rwu":           e.RWU.Float(),
			"rwu_nonight":   e.RWUNoNight.Float(),
			"nse":           e.NSE.Float(),
			"head_start":    e.HeadStart.Float(),
			"step_control":  int64(e.StepControl),
			"step_detected": e.StepDetected,
		},
		// one point per day, so redelivered estimates overwrite
		Timestamp: e.Day,
	}, nil
}

func decodeSapFlow(topic, prefix string, payload []byte) (Record, error) {
	var e model.SapFlowEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return Record{}, err
	}
	fieldID, treeID := pickIDs(topic, e.FieldID, e.TreeID, prefix)
	if fieldID == "" || treeID == "" {
		return Record{}, errors.New("sapflow: missing field/tree")
	}
	return Record{
		Measurement: MeasurementSapFlow,
		Tags:        map[string]string{"field_id": fieldID, "tree_id": treeID},
		Fields: map[string]interface{}{
			"inner": e.Inner.Float(),
			"mid":   e.Mid.Float(),
			"outer": e.Outer.Float(),
			"total": e.Total.Float(),
		},
		Timestamp: e.Timestamp,
	}, nil
}

// pickIDs uses the payload, or the topic "prefix{field}/{id}".
func pickIDs(topic, fieldID, id, prefix string) (string, string) {
	if strings.TrimSpace(fieldID) != "" && strings.TrimSpace(id) != "" {
		return fieldID, id
	}
	parts := strings.Split(strings.TrimPrefix(topic, prefix), "/")
	if len(parts) >= 2 {
		return parts[0], parts[1]
	}
	return fieldID, id
}
