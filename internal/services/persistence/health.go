package persistence

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// ConnChecker reports the broker connection, as mqtt.Client does.
type ConnChecker interface {
	IsConnectionOpen() bool
}

// Pinger checks the time-series database, as influxdb2.Client does.
type Pinger interface {
	Ping(ctx context.Context) (bool, error)
}

func ping(ctx context.Context, p Pinger) bool {
	if p == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	ok, err := p.Ping(ctx)
	return ok && err == nil
}

type healthHandler struct {
	mqtt   ConnChecker
	influx Pinger
	writer *Writer
}

func NewHealthHandler(m ConnChecker, i Pinger, w *Writer) http.Handler {
	return &healthHandler{mqtt: m, influx: i, writer: w}
}

func (h *healthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type status struct {
		Status          string  `json:"status"`
		MQTTConnected   bool    `json:"mqtt_connected"`
		InfluxOK        bool    `json:"influx_ok"`
		LastWriteErrorS float64 `json:"last_write_error_age_sec"`
	}
	st := status{
		MQTTConnected:   h.mqtt != nil && h.mqtt.IsConnectionOpen(),
		InfluxOK:        ping(r.Context(), h.influx),
		LastWriteErrorS: h.writer.LastErrorAge().Seconds(),
	}

	switch {
	case st.MQTTConnected && st.InfluxOK && h.writer.LastErrorAge() > 30*time.Second:
		st.Status = "ok"
	case st.MQTTConnected || st.InfluxOK:
		st.Status = "degraded"
	default:
		st.Status = "down"
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(st)
}

// readyHandler answers 200 only when every dependency is up.
type readyHandler struct {
	mqtt     ConnChecker
	influx   Pinger
	writer   *Writer
	minError time.Duration
}

func NewReadyHandler(m ConnChecker, i Pinger, w *Writer, minOkErrorAge time.Duration) http.Handler {
	return &readyHandler{mqtt: m, influx: i, writer: w, minError: minOkErrorAge}
}

func (h *readyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ready := h.mqtt != nil && h.mqtt.IsConnectionOpen() && ping(r.Context(), h.influx) &&
		h.writer.LastErrorAge() > h.minError
	w.Header().Set("Content-Type", "application/json")
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	type resp struct {
		Ready bool `json:"ready"`
	}
	_ = json.NewEncoder(w).Encode(resp{Ready: ready})
}
