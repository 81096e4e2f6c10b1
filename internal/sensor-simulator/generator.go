package sensor_simulator

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/LeonardoBeccarini/rootwater/internal/model"
	"github.com/LeonardoBeccarini/rootwater/pkg/rootwater"
)

// ====== Tunables ======
const (
	// defaultSeed is the starting moisture when SoilGrids is not used, vol.%.
	defaultSeed = 30.0

	// uptake runs from this long after sunrise to this long before sunset
	uptakeDelay = 2 * time.Hour
	uptakeStop  = time.Hour

	// integration step of the moisture state
	substep = time.Minute
)

// DiurnalParams shape the synthetic moisture of a probe.
type DiurnalParams struct {
	Uptake   float64 // vol.% removed per day by roots
	Recharge float64 // vol.% redistributed into the layer per night
	Noise    float64 // std. dev. of the reading noise, vol.%
}

// DataGenerator integrates a step-shaped moisture signal: linear depletion
// in daylight, slow recharge at night.
type DataGenerator struct {
	mu       sync.Mutex
	params   DiurnalParams
	sun      rootwater.SunClock
	seeded   bool
	last     time.Time
	moisture float64
	rng      *rand.Rand

	// sun times of the day being integrated
	sunDay    time.Time
	rise, set time.Time
	sunErr    error
}

// NewDataGenerator creates a generator driven by sun. seed fixes the noise.
func NewDataGenerator(p DiurnalParams, sun rootwater.SunClock, seed int64) *DataGenerator {
	return &DataGenerator{
		params: p,
		sun:    sun,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Seed sets the starting moisture (vol.%) at t.
func (g *DataGenerator) Seed(moisture float64, t time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.moisture = moisture
	g.last = t
	g.seeded = true
}

func (g *DataGenerator) sunTimes(t time.Time) (time.Time, time.Time, error) {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	if !day.Equal(g.sunDay) {
		g.sunDay = day
		g.rise, g.set, g.sunErr = g.sun.SunTimes(day)
	}
	return g.rise, g.set, g.sunErr
}

// rate is the moisture change per substep at t.
func (g *DataGenerator) rate(t time.Time) float64 {
	rise, set, err := g.sunTimes(t)
	if err != nil {
		return 0
	}
	from, to := rise.Add(uptakeDelay), set.Add(-uptakeStop)
	switch {
	case !t.Before(from) && t.Before(to):
		return -g.params.Uptake * float64(substep) / float64(to.Sub(from))
	case !t.Before(set):
		nextRise, _, err := g.sun.SunTimes(g.sunDay.AddDate(0, 0, 1))
		if err != nil {
			return 0
		}
		return g.params.Recharge * float64(substep) / float64(nextRise.Sub(set))
	case t.Before(rise):
		_, prevSet, err := g.sun.SunTimes(g.sunDay.AddDate(0, 0, -1))
		if err != nil {
			return 0
		}
		return g.params.Recharge * float64(substep) / float64(rise.Sub(prevSet))
	}
	return 0
}

// NextAt advances the state to t and returns the reading of probe.
func (g *DataGenerator) NextAt(probe *model.Probe, t time.Time) model.SoilMoistureData {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.seeded {
		g.moisture = defaultSeed
		g.last = t
		g.seeded = true
	}
	for s := g.last; s.Before(t); s = s.Add(substep) {
		g.moisture += g.rate(s)
	}
	if t.After(g.last) {
		g.last = t
	}

	v := g.moisture
	if g.params.Noise > 0 {
		v += g.rng.NormFloat64() * g.params.Noise
	}
	return model.SoilMoistureData{
		FieldID:   probe.FieldID,
		ProbeID:   probe.ID,
		DepthCM:   probe.DepthCM,
		Moisture:  math.Max(0, v),
		Timestamp: t,
	}
}

// Next is NextAt for the current time in the probe's zone.
func (g *DataGenerator) Next(probe *model.Probe) model.SoilMoistureData {
	return g.NextAt(probe, time.Now().In(probe.Location()))
}

// SapGenerator produces a half-sine sap velocity between sunrise and
// sunset, damped towards the heartwood.
type SapGenerator struct {
	Peak float64 // outer velocity at solar noon, cm/h
	Sun  rootwater.SunClock
}

// At returns the velocities of tree at t.
func (s SapGenerator) At(tree *model.Tree, t time.Time) model.SapVelocityData {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	v := 0.0
	if rise, set, err := s.Sun.SunTimes(day); err == nil && t.After(rise) && t.Before(set) {
		v = s.Peak * math.Sin(math.Pi*float64(t.Sub(rise))/float64(set.Sub(rise)))
	}
	return model.SapVelocityData{
		FieldID:   tree.FieldID,
		TreeID:    tree.ID,
		Outer:     v,
		Mid:       0.8 * v,
		Inner:     0.5 * v,
		Timestamp: t,
	}
}
