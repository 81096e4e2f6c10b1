package app

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"sort"

	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/rootwater/internal/model"
)

func (g *Gateway) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), g.cfg.HTTPTimeout)
	defer cancel()

	data := DashboardData{Probes: []LatestRWU{}}
	var latest []LatestRWU
	if err := g.persistence.GetJSON(ctx, &latest); err != nil {
		g.cfg.Logger.Warn("latest rwu", zap.Error(err))
		g.mu.Lock()
		latest = g.lastGood
		g.mu.Unlock()
		data.Stale = true
	} else {
		g.mu.Lock()
		g.lastGood = latest
		g.mu.Unlock()
	}

	data.Probes = newestPerProbe(latest)
	data.Stats = stats(data.Probes)
	data.Breaker = g.persistence.State().String()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func newestPerProbe(pts []LatestRWU) []LatestRWU {
	byProbe := make(map[string]LatestRWU, len(pts))
	for _, p := range pts {
		key := p.FieldID + "/" + p.ProbeID
		if cur, ok := byProbe[key]; !ok || p.Day.After(cur.Day) {
			byProbe[key] = p
		}
	}
	out := make([]LatestRWU, 0, len(byProbe))
	for _, p := range byProbe {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FieldID != out[j].FieldID {
			return out[i].FieldID < out[j].FieldID
		}
		return out[i].ProbeID < out[j].ProbeID
	})
	return out
}

// stats summarises the safe, non-missing estimates.
func stats(pts []LatestRWU) Stats {
	nan := model.Number(math.NaN())
	s := Stats{Mean: nan, Min: nan, Max: nan}
	var sum float64
	minv, maxv := math.Inf(1), math.Inf(-1)
	for _, p := range pts {
		v := p.RWU.Float()
		if !p.Safe || math.IsNaN(v) {
			continue
		}
		s.Count++
		sum += v
		minv = math.Min(minv, v)
		maxv = math.Max(maxv, v)
	}
	if s.Count > 0 {
		s.Mean = model.Number(sum / float64(s.Count))
		s.Min = model.Number(minv)
		s.Max = model.Number(maxv)
	}
	return s
}
