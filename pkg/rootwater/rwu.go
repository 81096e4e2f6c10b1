// Package rootwater estimates daily root water uptake (RWU) from the
// step-shaped diurnal dynamics of rhizosphere soil moisture: roots deplete
// the soil during daylight while moisture stagnates or is redistributed at
// night. A night-time trend is extrapolated over the day and the gap to the
// observed moisture at the next night is the day's uptake.
//
// Jackisch, C., Knoblauch, S., Blume, T., Zehe, E. and Hassler, S.K.:
// Estimates of tree root water uptake from soil moisture profile dynamics.
package rootwater

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/LeonardoBeccarini/rootwater/pkg/timeseries"
)

var (
	ErrEmptySeries     = errors.New("rootwater: series needs readings on at least two days")
	ErrIrregularSeries = errors.New("rootwater: no sampling interval covers half of the series")
)

const (
	// a smoothed change at or below this marks the onset of daytime depletion
	uptakeOnset = -0.02
	// resolution of the idealised step
	idealStep = 30 * time.Minute
	// rise of the idealised step over the night, vol.%
	idealNightRise = 0.01
)

// DayEstimate is the RWU estimate of one calendar day, in vol.% of the probe.
type DayEstimate struct {
	Day         time.Time `json:"day"`
	RWU         float64   `json:"rwu"`          // with the night trend extrapolated
	RWUNoNight  float64   `json:"rwu_nonight"`  // plain day decrease
	NightSlope  float64   `json:"night_slope"`  // per sample
	DaySlope    float64   `json:"day_slope"`    // per sample
	StepControl int       `json:"step_control"` // StepValid when every criterion holds
	// StepDetected is false when the moisture kept falling without a step and
	// the period bounds fell back to sunset/sunrise references.
	StepDetected bool      `json:"step_detected"`
	NSE          float64   `json:"nse"` // bounded NSE against the idealised step
	NightStart   time.Time `json:"night_start"`
	DayStart     time.Time `json:"day_start"`
	NextNight    time.Time `json:"next_night"`
	Skipped      bool      `json:"skipped,omitempty"` // no solar reference
}

// Safe reports whether the estimate passes the quality filter.
func (d DayEstimate) Safe() bool {
	return d.StepControl >= SafeThreshold && !math.IsNaN(d.RWU) && d.RWU >= 0
}

func nanDay(day time.Time) DayEstimate {
	return DayEstimate{
		Day:        day,
		RWU:        math.NaN(),
		RWUNoNight: math.NaN(),
		NightSlope: math.NaN(),
		DaySlope:   math.NaN(),
		NSE:        math.NaN(),
	}
}

type estimator struct {
	p    Params
	sun  SunClock
	ts   *timeseries.Series
	dif  *timeseries.Series
	step time.Duration
}

// Estimate computes one DayEstimate for every calendar day of ts except the
// last, which lacks the following night.
func Estimate(ctx context.Context, ts *timeseries.Series, p Params) ([]DayEstimate, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if ts.Len() < 2 {
		return nil, ErrEmptySeries
	}
	step, err := ts.Step()
	if err != nil {
		return nil, err
	}
	if !regular(ts, step) {
		return nil, fmt.Errorf("%w: modal step %s", ErrIrregularSeries, step)
	}

	loc := p.Location
	if loc == nil {
		loc = ts.Times[0].Location()
	}
	ts = ts.In(loc)

	diff := ts.Diff(p.DiffSteps)
	diff.Values = timeseries.GaussianFilter1D(diff.Values, 1)

	e := &estimator{p: p, sun: p.sun(), ts: ts, dif: diff, step: step}

	days := ts.Days(loc)
	if len(days) < 2 {
		return nil, ErrEmptySeries
	}
	out := make([]DayEstimate, 0, len(days)-1)
	for _, day := range days[:len(days)-1] {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		d, err := e.day(day)
		if errors.Is(err, ErrNoSolarReference) {
			d = nanDay(day)
			d.Skipped = true
		} else if err != nil {
			return out, fmt.Errorf("day %s: %w", day.Format("2006-01-02"), err)
		}
		out = append(out, d)
	}
	return out, nil
}

// regular reports whether step separates at least half of the consecutive
// labels. Windows counted in samples assume it does.
func regular(ts *timeseries.Series, step time.Duration) bool {
	n := 0
	for i := 1; i < ts.Len(); i++ {
		if ts.Times[i].Sub(ts.Times[i-1]) == step {
			n++
		}
	}
	return 2*n >= ts.Len()-1
}

type references struct {
	prevSet, rise, set time.Time
}

func (e *estimator) refs(day time.Time) (references, error) {
	_, prevSet, err := e.sun.SunTimes(day.AddDate(0, 0, -1))
	if err != nil {
		return references{}, err
	}
	rise, set, err := e.sun.SunTimes(day)
	if err != nil {
		return references{}, err
	}
	return references{prevSet: prevSet, rise: rise, set: set}, nil
}

func (e *estimator) nearest(t time.Time) time.Time {
	n, _ := e.ts.NearestTime(t)
	return n
}

// bounds finds the start of the night (first non-falling step after the
// previous sunset), the start of daytime depletion and the start of the
// next night from the smoothed moisture change.
func (e *estimator) bounds(r references) (tin, tout, tix time.Time, detected bool) {
	lo, hi := e.dif.Bounds(r.prevSet.Add(-5*time.Hour), r.set.Add(2*time.Hour))
	v := e.dif.Values[lo:hi]

	stop := firstIndex(v, 0, func(x float64) bool { return x >= 0 })
	if stop >= 0 {
		onset := firstIndex(v, stop+1, func(x float64) bool { return x <= uptakeOnset })
		if onset >= 0 {
			next := firstIndex(v, onset+1, func(x float64) bool { return x > 0 })
			if next >= 0 {
				return e.dif.Times[lo+stop], e.dif.Times[lo+onset-1], e.dif.Times[lo+next], true
			}
		}
	}
	return e.nearest(r.prevSet.Add(time.Hour)), e.nearest(r.rise.Add(time.Hour)), e.nearest(r.set.Add(time.Hour)), false
}

func firstIndex(v []float64, from int, pred func(float64) bool) int {
	for i := from; i < len(v); i++ {
		if pred(v[i]) {
			return i
		}
	}
	return -1
}

func (e *estimator) day(day time.Time) (DayEstimate, error) {
	r, err := e.refs(day)
	if err != nil {
		return DayEstimate{}, err
	}
	d := nanDay(day)
	tin, tout, tix, detected := e.bounds(r)
	d.NightStart, d.DayStart, d.NextNight, d.StepDetected = tin, tout, tix, detected
	d.NSE = e.stepNSE(r, tin, tix)

	night, dayLen := tout.Sub(tin), tix.Sub(tout)
	if night < e.p.MinPeriod || dayLen < e.p.MinPeriod {
		d.StepControl = StepPeriodTooShort
		return d, nil
	}
	lo, hi := e.dif.Bounds(tin, tix)
	for _, x := range e.dif.Values[lo:hi] {
		if x > e.p.MaxDiff {
			d.StepControl = StepNoisy
			return d, nil
		}
	}

	nightIntercept, nightSlope, err := timeseries.FitIndex(e.ts.Slice(tin, tout.Add(-time.Hour)).Values)
	if err != nil {
		d.StepControl = StepFitFailed
		return d, nil
	}
	d.NightSlope = nightSlope
	_, daySlope, err := timeseries.FitIndex(e.ts.Slice(tout, tix).Values)
	if err != nil {
		d.StepControl = StepFitFailed
		return d, nil
	}
	d.DaySlope = daySlope

	d.StepControl = stepControl(nightSlope, daySlope, e.step, e.p.SlopeDiff)

	obsTix, _ := e.ts.At(tix)
	obsTout, _ := e.ts.At(tout)
	k := float64(tix.Sub(tin) / e.step)
	d.RWU = nightIntercept + nightSlope*k - obsTix
	d.RWUNoNight = obsTout - obsTix
	return d, nil
}

func stepControl(nightSlope, daySlope float64, step time.Duration, slopeDiff float64) int {
	per6h := float64(6*time.Hour) / float64(step)
	code := 0
	if nightSlope/per6h > -0.5/6 {
		code += StepNightNotFalling
	}
	if nightSlope/per6h < 1.0/6 {
		code += StepNightNotRising
	}
	if daySlope < 0 {
		code += StepDayFalling
	}
	if daySlope < slopeDiff*nightSlope {
		code += StepDaySteeper
	}
	return code
}

type anchor struct {
	t time.Time
	v float64
}

// stepNSE compares the observed moisture with an idealised step: flat over
// the night, falling linearly from two hours after sunrise, reaching the
// evening level 2.5 h before the idealised next night.
func (e *estimator) stepNSE(r references, tin, tix time.Time) float64 {
	dtin := e.nearest(r.prevSet.Add(-90 * time.Minute))
	dtout := e.nearest(r.rise.Add(2 * time.Hour))
	dtix := e.nearest(r.set.Add(-30 * time.Minute))
	if !dtix.After(dtin) {
		return math.NaN()
	}
	v0, _ := e.ts.At(dtin)
	vEnd, _ := e.ts.At(dtix)
	anchors := []anchor{
		{dtin, v0},
		{dtout.Add(time.Hour), v0 + idealNightRise},
		{dtix.Add(-150 * time.Minute), vEnd},
	}
	sortAnchors(anchors)

	labels := make([]time.Time, 0, int(dtix.Sub(dtin)/idealStep)+len(anchors)+1)
	for t := dtin; !t.After(dtix); t = t.Add(idealStep) {
		labels = append(labels, t)
	}
	for _, a := range anchors {
		labels = insertLabel(labels, a.t)
	}

	from, to := tin.Add(-30*time.Minute), tix.Add(30*time.Minute)
	var ideal, obs []float64
	for _, t := range labels {
		if t.Before(from) || t.After(to) {
			continue
		}
		o, ok := e.ts.At(t)
		if !ok || math.IsNaN(o) {
			continue
		}
		iv := interpolate(anchors, t)
		if math.IsNaN(iv) {
			continue
		}
		ideal = append(ideal, iv)
		obs = append(obs, o)
	}
	if len(obs) == 0 {
		return math.NaN()
	}
	return timeseries.NSEC2M(obs, ideal)
}

func sortAnchors(a []anchor) {
	sort.SliceStable(a, func(i, j int) bool { return a[i].t.Before(a[j].t) })
}

func insertLabel(labels []time.Time, t time.Time) []time.Time {
	for i, l := range labels {
		if l.Equal(t) {
			return labels
		}
		if l.After(t) {
			labels = append(labels, time.Time{})
			copy(labels[i+1:], labels[i:])
			labels[i] = t
			return labels
		}
	}
	return append(labels, t)
}

// interpolate is linear in time between anchors and holds the last value.
func interpolate(a []anchor, t time.Time) float64 {
	if len(a) == 0 || t.Before(a[0].t) {
		return math.NaN()
	}
	for i := 1; i < len(a); i++ {
		if !t.After(a[i].t) {
			span := a[i].t.Sub(a[i-1].t)
			if span <= 0 {
				return a[i].v
			}
			w := float64(t.Sub(a[i-1].t)) / float64(span)
			return a[i-1].v + w*(a[i].v-a[i-1].v)
		}
	}
	return a[len(a)-1].v
}
