package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/rootwater/internal/config"
	"github.com/LeonardoBeccarini/rootwater/internal/model"
	"github.com/LeonardoBeccarini/rootwater/pkg/rootwater"
	"github.com/LeonardoBeccarini/rootwater/pkg/timeseries"
)

// DayLister reads archived estimates.
type DayLister interface {
	List(ctx context.Context, fieldID, probeID string, from, to time.Time) ([]rootwater.DayEstimate, error)
}

// API serves stored and recomputed uptake estimates.
type API struct {
	cfg     *config.Config
	history History
	archive DayLister // nil when no archive is configured
	log     *zap.Logger
	now     func() time.Time
}

func NewAPI(cfg *config.Config, history History, archive DayLister, log *zap.Logger) *API {
	return &API{cfg: cfg, history: history, archive: archive, log: log, now: time.Now}
}

// NewHTTPMux registers the API with the health, readiness and metrics handlers.
func NewHTTPMux(a *API, health, ready, metrics http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/healthz", health)
	mux.Handle("/readyz", ready)
	mux.Handle("/metrics", metrics)
	mux.HandleFunc("/rwu/latest", a.latest)
	mux.HandleFunc("/rwu/estimate", a.estimate)
	mux.HandleFunc("/rwu/history", a.archived)
	return mux
}

func intParam(r *http.Request, k string, def, min, max int) int {
	if v := strings.TrimSpace(r.URL.Query().Get(k)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			if n < min {
				return min
			}
			if max > 0 && n > max {
				return max
			}
			return n
		}
	}
	return def
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// upstreamStatus maps history errors, an open breaker becomes 503.
func upstreamStatus(err error) int {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}

// GET /rwu/latest?minutes=10080&limit=20[&timeout_ms=2000]
// Query failures answer an empty list flagged in X-Error.
func (a *API) latest(w http.ResponseWriter, r *http.Request) {
	minutes := intParam(r, "minutes", 7*24*60, 1, 90*24*60)
	limit := intParam(r, "limit", 20, 1, 500)
	timeout := intParam(r, "timeout_ms", 2000, 200, 5000)

	ctx, cancel := context.WithTimeout(r.Context(), time.Duration(timeout)*time.Millisecond)
	defer cancel()

	pts, err := a.history.LatestRWU(ctx, minutes, limit)
	if err != nil {
		a.log.Warn("latest rwu query", zap.Error(err))
		if upstreamStatus(err) == http.StatusServiceUnavailable {
			w.Header().Set("X-Error", "circuit-open")
		} else {
			w.Header().Set("X-Error", "influx-query-error")
		}
		pts = []RWUPoint{}
	}
	writeJSON(w, http.StatusOK, pts)
}

// probeParam resolves ?field=&probe=.
func (a *API) probeParam(w http.ResponseWriter, r *http.Request) (model.Probe, bool) {
	q := r.URL.Query()
	fieldID, probeID := q.Get("field"), q.Get("probe")
	if fieldID == "" || probeID == "" {
		writeError(w, http.StatusBadRequest, "field and probe are required")
		return model.Probe{}, false
	}
	p, ok := a.cfg.Probe(fieldID, probeID)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown probe "+fieldID+"/"+probeID)
		return model.Probe{}, false
	}
	return p, true
}

// GET /rwu/estimate?field=&probe=[&days=7][&safe=true]
// Recomputes the estimates from the stored moisture of the last days.
func (a *API) estimate(w http.ResponseWriter, r *http.Request) {
	probe, ok := a.probeParam(w, r)
	if !ok {
		return
	}
	days := intParam(r, "days", a.cfg.RWU.BufferDays, 2, 60)
	safe := a.cfg.RWU.Safe
	if v := r.URL.Query().Get("safe"); v != "" {
		safe, _ = strconv.ParseBool(v)
	}

	loc := probe.Location()
	to := a.now().In(loc)
	from := timeseries.Midnight(to, loc).AddDate(0, 0, -days)
	series, err := a.history.Moisture(r.Context(), probe.FieldID, probe.ID, from, to)
	if err != nil {
		a.log.Warn("moisture query", zap.String("probe_id", probe.ID), zap.Error(err))
		writeError(w, upstreamStatus(err), err.Error())
		return
	}

	est, err := rootwater.Estimate(r.Context(), series, a.cfg.ProbeParams(probe))
	if errors.Is(err, rootwater.ErrEmptySeries) {
		writeJSON(w, http.StatusOK, []model.RWUEstimateEvent{})
		return
	}
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	out := make([]model.RWUEstimateEvent, 0, len(est))
	now := a.now().UTC()
	for _, d := range est {
		if safe {
			d = d.Filtered()
		}
		evt := model.NewRWUEstimateEvent(probe.FieldID, probe.ID, d, now)
		if m, ok := series.At(d.DayStart); ok {
			if h, ok := probe.Head(m); ok {
				evt.HeadStart = model.Number(h)
			}
		}
		out = append(out, evt)
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /rwu/history?field=&probe=[&from=][&to=]
// Serves the archived estimates; dates accept any common layout.
func (a *API) archived(w http.ResponseWriter, r *http.Request) {
	if a.archive == nil {
		writeError(w, http.StatusNotFound, "archive disabled")
		return
	}
	probe, ok := a.probeParam(w, r)
	if !ok {
		return
	}
	var from, to time.Time
	for k, dst := range map[string]*time.Time{"from": &from, "to": &to} {
		v := strings.TrimSpace(r.URL.Query().Get(k))
		if v == "" {
			continue
		}
		t, err := dateparse.ParseIn(v, probe.Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad "+k+": "+err.Error())
			return
		}
		*dst = t
	}

	days, err := a.archive.List(r.Context(), probe.FieldID, probe.ID, from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]model.DayRecord, 0, len(days))
	for _, d := range days {
		out = append(out, model.NewDayRecord(d))
	}
	writeJSON(w, http.StatusOK, out)
}
