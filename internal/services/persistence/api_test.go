package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/rootwater/internal/archive"
	"github.com/LeonardoBeccarini/rootwater/internal/config"
	"github.com/LeonardoBeccarini/rootwater/internal/model"
	sensorSimulator "github.com/LeonardoBeccarini/rootwater/internal/sensor-simulator"
	"github.com/LeonardoBeccarini/rootwater/pkg/rootwater"
	"github.com/LeonardoBeccarini/rootwater/pkg/timeseries"
)

type fakeHistory struct {
	latest   []RWUPoint
	series   *timeseries.Series
	err      error
	from, to time.Time
}

func (h *fakeHistory) LatestRWU(context.Context, int, int) ([]RWUPoint, error) {
	return h.latest, h.err
}

func (h *fakeHistory) Moisture(_ context.Context, _, _ string, from, to time.Time) (*timeseries.Series, error) {
	h.from, h.to = from, to
	return h.series, h.err
}

func apiConfig() *config.Config {
	cfg := config.Default()
	cfg.Fields = []model.Field{{
		ID: "f1",
		Probes: []model.Probe{{
			FieldID: "f1", ID: "p10", DepthCM: 10,
			Latitude: 49.70764, Longitude: 5.897638, UTCOffsetHours: 1, Texture: "L",
		}},
	}}
	return &cfg
}

// diurnalSeries holds days of 30 min readings from 1 June 2019.
func diurnalSeries(t *testing.T, probe model.Probe, days int) *timeseries.Series {
	t.Helper()
	gen := sensorSimulator.NewDataGenerator(sensorSimulator.DiurnalParams{Uptake: 1, Recharge: 0.1}, probe.Observer(), 1)
	t0 := time.Date(2019, 6, 1, 0, 0, 0, 0, probe.Location())
	s := &timeseries.Series{Name: probe.ID}
	for i := 0; i < days*48; i++ {
		sd := gen.NextAt(&probe, t0.Add(time.Duration(i)*30*time.Minute))
		require.NoError(t, s.Append(sd.Timestamp, sd.Moisture))
	}
	return s
}

func newTestMux(t *testing.T, h History, archive DayLister) (*http.ServeMux, *config.Config) {
	t.Helper()
	cfg := apiConfig()
	a := NewAPI(cfg, h, archive, zap.NewNop())
	loc := cfg.Fields[0].Probes[0].Location()
	a.now = func() time.Time { return time.Date(2019, 6, 5, 0, 30, 0, 0, loc) }
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	return NewHTTPMux(a, ok, ok, ok), cfg
}

func get(mux http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestLatestRWU(t *testing.T) {
	day := time.Date(2019, 6, 2, 0, 0, 0, 0, time.UTC)
	h := &fakeHistory{latest: []RWUPoint{{FieldID: "f1", ProbeID: "p10", Day: day, RWU: 0.9, Safe: true}}}
	mux, _ := newTestMux(t, h, nil)

	rec := get(mux, "/rwu/latest?limit=5")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Error"))
	var pts []RWUPoint
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pts))
	require.Len(t, pts, 1)
	assert.Equal(t, 0.9, pts[0].RWU.Float())

	h.err = gobreaker.ErrOpenState
	rec = get(mux, "/rwu/latest")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "circuit-open", rec.Header().Get("X-Error"))
	assert.JSONEq(t, `[]`, rec.Body.String())

	h.err = errors.New("influx down")
	rec = get(mux, "/rwu/latest")
	assert.Equal(t, "influx-query-error", rec.Header().Get("X-Error"))
}

func TestEstimateRecomputesStoredMoisture(t *testing.T) {
	h := &fakeHistory{}
	mux, cfg := newTestMux(t, h, nil)
	probe := cfg.Fields[0].Probes[0]
	h.series = diurnalSeries(t, probe, 4)

	rec := get(mux, "/rwu/estimate?field=f1&probe=p10&days=4")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, h.from.Equal(time.Date(2019, 6, 1, 0, 0, 0, 0, probe.Location())), h.from)

	var evts []model.RWUEstimateEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &evts))
	require.Len(t, evts, 3)
	for _, e := range evts[1:] {
		assert.Equal(t, "p10", e.ProbeID)
		assert.True(t, e.Safe, e.Day)
		assert.Equal(t, rootwater.StepValid, e.StepControl)
		assert.InDelta(t, 1.0, e.RWUNoNight.Float(), 0.05)
		assert.Less(t, e.HeadStart.Float(), 0.0)
	}

	// one day of data has no completed night
	h.series = diurnalSeries(t, probe, 1)
	rec = get(mux, "/rwu/estimate?field=f1&probe=p10")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestEstimateErrors(t *testing.T) {
	h := &fakeHistory{}
	mux, _ := newTestMux(t, h, nil)

	assert.Equal(t, http.StatusBadRequest, get(mux, "/rwu/estimate?field=f1").Code)
	assert.Equal(t, http.StatusNotFound, get(mux, "/rwu/estimate?field=f1&probe=p99").Code)

	h.err = fmt.Errorf("query: %w", gobreaker.ErrOpenState)
	assert.Equal(t, http.StatusServiceUnavailable, get(mux, "/rwu/estimate?field=f1&probe=p10").Code)
	h.err = errors.New("timeout")
	assert.Equal(t, http.StatusBadGateway, get(mux, "/rwu/estimate?field=f1&probe=p10").Code)
}

func TestHistoryServesArchive(t *testing.T) {
	mux, _ := newTestMux(t, &fakeHistory{}, nil)
	assert.Equal(t, http.StatusNotFound, get(mux, "/rwu/history?field=f1&probe=p10").Code)

	store, err := archive.Open(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	mux, cfg := newTestMux(t, &fakeHistory{}, store)
	loc := cfg.Fields[0].Probes[0].Location()
	var days []rootwater.DayEstimate
	for d := 1; d <= 3; d++ {
		days = append(days, rootwater.DayEstimate{
			Day: time.Date(2019, 6, d, 0, 0, 0, 0, loc), RWU: 0.5 * float64(d), RWUNoNight: math.NaN(),
			NightSlope: 0.01, DaySlope: -0.05, NSE: 0.9, StepControl: rootwater.StepValid, StepDetected: true,
		})
	}
	require.NoError(t, store.Save(context.Background(), "f1", "p10", days...))

	rec := get(mux, "/rwu/history?field=f1&probe=p10&from=2019-06-02")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 2)
	assert.Equal(t, 1.0, out[0]["rwu"])
	assert.Nil(t, out[0]["rwu_nonight"])
	assert.Equal(t, true, out[0]["safe"])

	rec = get(mux, "/rwu/history?field=f1&probe=p10&to=xyz")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// failingQuery fails every Flux query.
type failingQuery struct {
	api.QueryAPI
	calls int
}

func (q *failingQuery) Query(context.Context, string) (*api.QueryTableResult, error) {
	q.calls++
	return nil, errors.New("influx unavailable")
}

func TestInfluxHistoryOpensBreaker(t *testing.T) {
	q := &failingQuery{}
	h := NewInfluxHistory(q, "rootwater", NewBreaker("influx", config.BreakerConfig{
		Failures: 2, OpenFor: time.Minute, Interval: time.Minute,
	}))

	for i := 0; i < 2; i++ {
		_, err := h.LatestRWU(context.Background(), 60, 10)
		require.Error(t, err)
		assert.NotErrorIs(t, err, gobreaker.ErrOpenState)
	}
	_, err := h.Moisture(context.Background(), "f1", "p10", time.Time{}, time.Now())
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, q.calls)
}

func TestFluxQueries(t *testing.T) {
	q := buildLatestFlux("rootwater", 60, 5)
	assert.Contains(t, q, `from(bucket: "rootwater")`)
	assert.Contains(t, q, `range(start: -60m)`)
	assert.Contains(t, q, `r._measurement == "rwu_estimate"`)
	assert.Contains(t, q, `limit(n:5)`)

	from := time.Date(2019, 6, 1, 0, 0, 0, 0, time.FixedZone("", 3600))
	q = buildMoistureFlux("rootwater", "f1", "p10", from, from.Add(24*time.Hour))
	assert.Contains(t, q, "range(start: 2019-05-31T23:00:00Z, stop: 2019-06-01T23:00:00Z)")
	assert.True(t, strings.Contains(q, `r.field_id == "f1" and r.probe_id == "p10"`))
}

func TestToFloat(t *testing.T) {
	for in, want := range map[interface{}]float64{1.5: 1.5, int64(2): 2, " 3.25 ": 3.25} {
		got, ok := toFloat(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got)
	}
	_, ok := toFloat(true)
	assert.False(t, ok)
}
