package sensor_simulator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/rootwater/internal/model"
)

var zone = time.FixedZone("UTC+1.0", 3600)

// fixedSun rises at 06:00 and sets at 20:00.
type fixedSun struct{}

func (fixedSun) SunTimes(day time.Time) (time.Time, time.Time, error) {
	d := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return d.Add(6 * time.Hour), d.Add(20 * time.Hour), nil
}

func testProbe() *model.Probe {
	return &model.Probe{FieldID: "f1", ID: "p10", DepthCM: 10, Latitude: 49.7, Longitude: 5.9, UTCOffsetHours: 1}
}

func TestDataGeneratorDiurnalStep(t *testing.T) {
	g := NewDataGenerator(DiurnalParams{Uptake: 1, Recharge: 0.1}, fixedSun{}, 1)
	p := testProbe()
	t0 := time.Date(2019, 6, 1, 0, 0, 0, 0, zone)
	at := func(h time.Duration) float64 { return g.NextAt(p, t0.Add(h)).Moisture }

	assert.InDelta(t, defaultSeed, at(0), 1e-9)
	assert.InDelta(t, 30.06, at(6*time.Hour), 1e-9)
	assert.InDelta(t, 30.06, at(8*time.Hour), 1e-9)
	assert.InDelta(t, 29.56, at(13*time.Hour+30*time.Minute), 1e-9)
	assert.InDelta(t, 29.06, at(19*time.Hour), 1e-9)
	assert.InDelta(t, 29.06, at(20*time.Hour), 1e-9)
	assert.InDelta(t, 29.16, at(30*time.Hour), 1e-9)

	sd := g.NextAt(p, t0.Add(30*time.Hour))
	assert.Equal(t, "f1", sd.FieldID)
	assert.Equal(t, "p10", sd.ProbeID)
	assert.Equal(t, 10.0, sd.DepthCM)
}

func TestDataGeneratorIgnoresPastReadings(t *testing.T) {
	g := NewDataGenerator(DiurnalParams{Uptake: 1, Recharge: 0.1}, fixedSun{}, 1)
	p := testProbe()
	t0 := time.Date(2019, 6, 1, 12, 0, 0, 0, zone)
	g.Seed(25, t0)
	first := g.NextAt(p, t0.Add(time.Hour)).Moisture
	assert.Equal(t, first, g.NextAt(p, t0).Moisture)
}

func TestSapGeneratorHalfSine(t *testing.T) {
	s := SapGenerator{Peak: 10, Sun: fixedSun{}}
	tree := &model.Tree{FieldID: "f1", ID: "t1"}
	day := time.Date(2019, 6, 1, 0, 0, 0, 0, zone)

	noon := s.At(tree, day.Add(13*time.Hour))
	assert.InDelta(t, 10, noon.Outer, 1e-9)
	assert.InDelta(t, 8, noon.Mid, 1e-9)
	assert.InDelta(t, 5, noon.Inner, 1e-9)
	assert.Equal(t, "t1", noon.TreeID)

	assert.Zero(t, s.At(tree, day.Add(3*time.Hour)).Outer)
	assert.Zero(t, s.At(tree, day.Add(22*time.Hour)).Outer)
}

func TestDepthLabel(t *testing.T) {
	assert.Equal(t, "0-5cm", depthLabel(2))
	assert.Equal(t, "5-15cm", depthLabel(10))
	assert.Equal(t, "30-60cm", depthLabel(50))
	assert.Equal(t, "100-200cm", depthLabel(150))
}

const soilGridsBody = `{"properties":{"layers":[{"name":"wv0033","depths":[{"label":"5-15cm","values":{"mean":345}}]}]}}`

func TestSoilGridsRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "5-15cm", r.URL.Query().Get("depth"))
		_, _ = w.Write([]byte(soilGridsBody))
	}))
	defer srv.Close()

	sg := NewSoilGrids(zap.NewNop())
	sg.BaseURL = srv.URL + "/?lat=%f&lon=%f&depth=%s"
	m, err := sg.Moisture(context.Background(), testProbe())
	require.NoError(t, err)
	assert.InDelta(t, 34.5, m, 1e-9)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSoilGridsFallsBackToDefaultSeed(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	sg := NewSoilGrids(zap.NewNop())
	sg.BaseURL = srv.URL + "/?lat=%f&lon=%f&depth=%s"
	g := NewDataGenerator(DiurnalParams{}, fixedSun{}, 1)
	t0 := time.Date(2019, 6, 1, 0, 0, 0, 0, zone)
	g.SeedFromSoilGrids(context.Background(), sg, testProbe(), t0)

	assert.Equal(t, int32(1), calls.Load())
	assert.InDelta(t, defaultSeed, g.NextAt(testProbe(), t0).Moisture, 1e-12)
}

func TestParseSoilGridsWithoutValue(t *testing.T) {
	_, err := parseSoilGrids([]byte(`{"properties":{"layers":[]}}`))
	assert.ErrorIs(t, err, errNoMoisture)
}

type recordingPublisher struct {
	mu     sync.Mutex
	msgs   []interface{}
	closed bool
}

func (r *recordingPublisher) PublishMessage(m interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
	return nil
}

func (r *recordingPublisher) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

func TestSensorSimulatorTick(t *testing.T) {
	field := &model.Field{
		ID:     "f1",
		Probes: []model.Probe{*testProbe(), {FieldID: "f1", ID: "p30", DepthCM: 30, Latitude: 49.7, Longitude: 5.9, UTCOffsetHours: 1}},
		Trees:  []model.Tree{{FieldID: "f1", ID: "t1", Species: "beech", RadiusCM: 20}},
	}
	moisture, velocity := &recordingPublisher{}, &recordingPublisher{}
	sim := NewSensorSimulator(field, moisture, velocity, DiurnalParams{Uptake: 1}, 10, zap.NewNop())
	sim.now = func() time.Time { return time.Date(2019, 6, 1, 12, 0, 0, 0, time.UTC) }
	sim.Seed(context.Background(), nil)
	sim.Tick()

	require.Len(t, moisture.msgs, 2)
	sd, ok := moisture.msgs[1].(model.SoilMoistureData)
	require.True(t, ok)
	assert.Equal(t, "p30", sd.ProbeID)
	assert.InDelta(t, defaultSeed, sd.Moisture, 1e-12)
	assert.Equal(t, zone.String(), sd.Timestamp.Location().String())

	require.Len(t, velocity.msgs, 1)
	v, ok := velocity.msgs[0].(model.SapVelocityData)
	require.True(t, ok)
	assert.Greater(t, v.Outer, 0.0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sim.Start(ctx, time.Hour)
	assert.True(t, moisture.closed)
	assert.True(t, velocity.closed)
}
