package rootwater

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/rootwater/pkg/timeseries"
)

var site = time.FixedZone("Etc/GMT-1", 3600)

// fixedSun rises at 06:00 and sets at 20:00 every day.
type fixedSun struct{}

func (fixedSun) SunTimes(day time.Time) (time.Time, time.Time, error) {
	d := timeseries.Midnight(day, day.Location())
	return d.Add(6 * time.Hour), d.Add(20 * time.Hour), nil
}

// stepProfile builds a 30 min series over `days` days: flat moisture in the
// evening, a slow redistribution rise between 20:00 and 06:00 and a linear
// uptake decline between 08:00 and 18:00.
func stepProfile(days int, start, uptake, recharge float64) *timeseries.Series {
	t0 := time.Date(2019, 6, 1, 0, 0, 0, 0, site)
	n := days * 48
	times := make([]time.Time, n)
	values := make([]float64, n)
	for i := 0; i < n; i++ {
		t := t0.Add(time.Duration(i) * 30 * time.Minute)
		h := float64(t.Hour()) + float64(t.Minute())/60
		day := float64(i / 48)

		dayFrac := clamp((h-8)/10, 0, 1)
		// the night from 20:00 belongs to the next morning
		nightFrac := clamp((h-20)/10, 0, 1)
		nights := day
		if h < 6 {
			nightFrac = clamp((h+4)/10, 0, 1)
			nights = day - 1
		}
		if h >= 6 && h < 20 {
			nightFrac = 1
			nights = day - 1
		}
		values[i] = start - uptake*(day+dayFrac) + recharge*(nights+nightFrac)
		times[i] = t
	}
	s, err := timeseries.New("probe", times, values)
	if err != nil {
		panic(err)
	}
	return s
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

func testParams() Params {
	p := DefaultParams()
	p.Sun = fixedSun{}
	return p
}

func TestEstimateDetectsDiurnalStep(t *testing.T) {
	ts := stepProfile(4, 30, 1.0, 0.1)
	days, err := Estimate(context.Background(), ts, testParams())
	require.NoError(t, err)
	require.Len(t, days, 3)

	for _, d := range days[1:] {
		assert.True(t, d.StepDetected, d.Day)
		assert.Equal(t, StepValid, d.StepControl, d.Day)
		assert.Equal(t, 8, d.DayStart.Hour())
		assert.Equal(t, 20, d.NextNight.Hour())
		assert.Equal(t, 30, d.NextNight.Minute())
		assert.Equal(t, d.Day.Add(-3*time.Hour-30*time.Minute), d.NightStart)

		// observed decrease from 08:00 to 20:30
		assert.InDelta(t, 0.995, d.RWUNoNight, 1e-9)
		// the rising night trend adds to the uptake
		assert.Greater(t, d.RWU, d.RWUNoNight)
		assert.Greater(t, d.NightSlope, 0.0)
		assert.Less(t, d.DaySlope, 0.0)
		assert.False(t, math.IsNaN(d.NSE))
		assert.LessOrEqual(t, d.NSE, 1.0)
		assert.True(t, d.Safe())
	}
}

func TestEstimateFallsBackWithoutStep(t *testing.T) {
	t0 := time.Date(2019, 6, 1, 0, 0, 0, 0, site)
	n := 3 * 48
	times := make([]time.Time, n)
	values := make([]float64, n)
	for i := range values {
		times[i] = t0.Add(time.Duration(i) * 30 * time.Minute)
		values[i] = 30 - 0.02*float64(i)
	}
	ts, err := timeseries.New("falling", times, values)
	require.NoError(t, err)

	days, err := Estimate(context.Background(), ts, testParams())
	require.NoError(t, err)
	require.Len(t, days, 2)
	d := days[1]
	assert.False(t, d.StepDetected)
	assert.Equal(t, d.Day.Add(-3*time.Hour), d.NightStart)
	assert.Equal(t, d.Day.Add(7*time.Hour), d.DayStart)
	assert.Equal(t, d.Day.Add(21*time.Hour), d.NextNight)
	// day slope equals the night slope, so it is not three times steeper
	assert.Equal(t, StepNightNotFalling+StepNightNotRising+StepDayFalling, d.StepControl)
	// extrapolated night trend meets the observation
	assert.InDelta(t, 0, d.RWU, 1e-9)
}

func TestEstimateSkipsPolarDays(t *testing.T) {
	p := DefaultParams()
	p.Observer = Observer{Latitude: 78, Longitude: 15}
	days, err := Estimate(context.Background(), stepProfile(4, 30, 1, 0.1), p)
	require.NoError(t, err)
	require.Len(t, days, 3)
	for _, d := range days {
		assert.True(t, d.Skipped, d.Day)
		assert.True(t, math.IsNaN(d.RWU))
		assert.True(t, math.IsNaN(d.RWUNoNight))
		assert.False(t, d.Safe())
	}

	_, _, err = p.Observer.SunTimes(time.Date(2019, 6, 21, 0, 0, 0, 0, site))
	assert.ErrorIs(t, err, ErrNoSolarReference)
}

func TestEstimateRejectsShortPeriods(t *testing.T) {
	p := testParams()
	p.MinPeriod = 20 * time.Hour
	days, err := Estimate(context.Background(), stepProfile(3, 30, 1, 0.1), p)
	require.NoError(t, err)
	for _, d := range days {
		assert.Equal(t, StepPeriodTooShort, d.StepControl)
		assert.True(t, math.IsNaN(d.RWU))
	}
}

func TestEstimateFlagsNoisyChange(t *testing.T) {
	p := testParams()
	p.MaxDiff = 0.001
	days, err := Estimate(context.Background(), stepProfile(3, 30, 1, 0.1), p)
	require.NoError(t, err)
	assert.Equal(t, StepNoisy, days[1].StepControl)
	assert.True(t, math.IsNaN(days[1].RWUNoNight))
}

func TestEstimateValidatesInput(t *testing.T) {
	_, err := Estimate(context.Background(), &timeseries.Series{}, testParams())
	assert.ErrorIs(t, err, ErrEmptySeries)

	p := testParams()
	p.DiffSteps = 0
	_, err = Estimate(context.Background(), stepProfile(2, 30, 1, 0), p)
	assert.ErrorIs(t, err, ErrInvalidParams)

	oneDay := stepProfile(1, 30, 1, 0)
	_, err = Estimate(context.Background(), oneDay, testParams())
	assert.ErrorIs(t, err, ErrEmptySeries)
}

func TestEstimateRejectsIrregularSampling(t *testing.T) {
	t0 := time.Date(2019, 6, 1, 0, 0, 0, 0, site)
	intervals := []time.Duration{10 * time.Minute, 20 * time.Minute, 30 * time.Minute}
	var times []time.Time
	var values []float64
	for i, at := 0, t0; at.Before(t0.Add(72 * time.Hour)); i++ {
		times = append(times, at)
		values = append(values, 30)
		at = at.Add(intervals[i%3])
	}
	ts, err := timeseries.New("irregular", times, values)
	require.NoError(t, err)
	_, err = Estimate(context.Background(), ts, testParams())
	assert.ErrorIs(t, err, ErrIrregularSeries)

	// a few dropped readings keep the series usable
	regularish := stepProfile(3, 30, 1, 0.1)
	gappy, err := timeseries.New("gappy",
		append(append([]time.Time{}, regularish.Times[:40]...), regularish.Times[45:]...),
		append(append([]float64{}, regularish.Values[:40]...), regularish.Values[45:]...))
	require.NoError(t, err)
	_, err = Estimate(context.Background(), gappy, testParams())
	assert.NoError(t, err)
}

func TestEstimateHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Estimate(ctx, stepProfile(3, 30, 1, 0.1), testParams())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStepControlCodes(t *testing.T) {
	step := 30 * time.Minute
	assert.Equal(t, StepValid, stepControl(0.001, -0.05, step, 3))
	// strong night decrease fails the night criterion and the steepness test
	assert.Equal(t, StepNightNotRising+StepDayFalling, stepControl(-2, -0.05, step, 3))
	// strong night increase, day rising
	assert.Equal(t, StepNightNotFalling+StepDaySteeper, stepControl(3, 0.1, step, 3))
}

func TestInterpolateHoldsLastAnchor(t *testing.T) {
	t0 := time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC)
	a := []anchor{{t0, 0}, {t0.Add(time.Hour), 1}}
	assert.InDelta(t, 0.5, interpolate(a, t0.Add(30*time.Minute)), 1e-12)
	assert.Equal(t, 1.0, interpolate(a, t0.Add(5*time.Hour)))
	assert.True(t, math.IsNaN(interpolate(a, t0.Add(-time.Minute))))
}

func TestObserverHorizonShift(t *testing.T) {
	o := DefaultParams().Observer
	assert.InDelta(t, 2.81, o.horizonShift().Minutes(), 0.05)
	assert.Zero(t, Observer{Latitude: 50}.horizonShift())
}

func TestObserverSunTimes(t *testing.T) {
	day := time.Date(2019, 6, 21, 0, 0, 0, 0, site)
	flat := Observer{Latitude: 49.70764, Longitude: 5.897638}
	hill := flat
	hill.Elevation = 200

	rise, set, err := flat.SunTimes(day)
	require.NoError(t, err)
	assert.True(t, rise.Before(set))
	assert.Equal(t, site, rise.Location())
	assert.Equal(t, 21, rise.Day())

	hillRise, hillSet, err := hill.SunTimes(day)
	require.NoError(t, err)
	assert.True(t, hillRise.Before(rise))
	assert.True(t, hillSet.After(set))
}
