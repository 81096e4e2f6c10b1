package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/rootwater/internal/config"
	"github.com/LeonardoBeccarini/rootwater/internal/metrics"
	"github.com/LeonardoBeccarini/rootwater/internal/model"
	"github.com/LeonardoBeccarini/rootwater/pkg/rabbitmq"
)

// fakeWriteAPI implements the methods the Writer calls.
type fakeWriteAPI struct {
	api.WriteAPI
	mu      sync.Mutex
	points  []*write.Point
	errs    chan error
	flushed int
}

func newFakeWriteAPI() *fakeWriteAPI { return &fakeWriteAPI{errs: make(chan error)} }

func (f *fakeWriteAPI) WritePoint(p *write.Point) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points = append(f.points, p)
}

func (f *fakeWriteAPI) Errors() <-chan error { return f.errs }

func (f *fakeWriteAPI) Flush() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushed++
}

type message struct {
	topic   string
	payload []byte
}

func (m message) Duplicate() bool   { return false }
func (m message) Qos() byte         { return 0 }
func (m message) Retained() bool    { return false }
func (m message) Topic() string     { return m.topic }
func (m message) MessageID() uint16 { return 0 }
func (m message) Payload() []byte   { return m.payload }
func (m message) Ack()              {}

type fakeConsumer struct {
	handler rabbitmq.Handler
	msgs    []message
}

func (c *fakeConsumer) SetHandler(h rabbitmq.Handler) { c.handler = h }

func (c *fakeConsumer) ConsumeMessage(ctx context.Context) {
	for _, m := range c.msgs {
		_ = c.handler("#", m)
	}
	<-ctx.Done()
}

func TestWriterTracksErrors(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFakeWriteAPI()
	m := metrics.New("persistence-test")
	w := NewWriter(f, m, zap.NewNop())
	assert.Greater(t, w.LastErrorAge(), time.Hour)

	w.Write(Record{Measurement: MeasurementMoisture, Fields: map[string]interface{}{"moisture": 30.0}})
	assert.Equal(t, int64(1), w.Count(MeasurementMoisture))
	assert.Len(t, f.points, 1)

	f.errs <- errors.New("write failed")
	require.Eventually(t, func() bool { return w.LastErrorAge() < time.Minute }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Writes.WithLabelValues("queued")))

	close(f.errs)
	<-w.Done()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Writes.WithLabelValues("error")))
}

func TestServiceWritesDecodedMessages(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFakeWriteAPI()
	m := metrics.New("persistence-test")
	w := NewWriter(f, m, zap.NewNop())
	defer func() {
		close(f.errs)
		<-w.Done()
	}()

	evt := mustJSON(t, model.SapFlowEvent{FieldID: "f1", TreeID: "t1", Total: 5})
	c := &fakeConsumer{msgs: []message{
		{topic: "sensor/data", payload: mustJSON(t, model.SoilMoistureData{FieldID: "f1", ProbeID: "p10", Moisture: 30})},
		{topic: "event/sapflow/f1/t1", payload: evt},
		{topic: "event/sapflow/f1/t1", payload: evt}, // redelivered
		{topic: "other/topic", payload: []byte("{}")},
		{topic: "sensor/sap", payload: []byte("nope")},
	}}
	s := NewService(c, NewDecoder(config.Default().Topics), w, m, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Start(ctx)

	assert.Len(t, f.points, 2)
	assert.Equal(t, 1, f.flushed)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Dropped.WithLabelValues("duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Dropped.WithLabelValues("topic")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Dropped.WithLabelValues("invalid")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.Received.WithLabelValues("#")))
}

type conn bool

func (c conn) IsConnectionOpen() bool { return bool(c) }

type pinger struct{ err error }

func (p pinger) Ping(context.Context) (bool, error) { return p.err == nil, p.err }

func TestHealthAndReady(t *testing.T) {
	f := newFakeWriteAPI()
	w := NewWriter(f, metrics.New("persistence-test"), zap.NewNop())
	defer close(f.errs)

	get := func(h http.Handler) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		return rec
	}

	rec := get(NewHealthHandler(conn(true), pinger{}, w))
	var st map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "ok", st["status"])
	assert.Equal(t, true, st["mqtt_connected"])
	assert.Equal(t, true, st["influx_ok"])

	rec = get(NewHealthHandler(conn(false), pinger{err: errors.New("down")}, w))
	assert.Contains(t, rec.Body.String(), `"status":"down"`)
	rec = get(NewHealthHandler(conn(true), pinger{err: errors.New("down")}, w))
	assert.Contains(t, rec.Body.String(), `"status":"degraded"`)

	assert.Equal(t, http.StatusOK, get(NewReadyHandler(conn(true), pinger{}, w, time.Second)).Code)
	rec = get(NewReadyHandler(conn(false), pinger{}, w, time.Second))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"ready":false}`, rec.Body.String())
}
