package sapflow

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/rootwater/pkg/timeseries"
)

func beech(t *testing.T, r float64) Tree {
	t.Helper()
	tree, err := NewTree(r, "beech")
	require.NoError(t, err)
	return tree
}

func TestLookupSpecies(t *testing.T) {
	s, err := LookupSpecies("ash")
	require.NoError(t, err)
	assert.Equal(t, "Fraxinus excelsior", s.Name)

	_, err = LookupSpecies("oak")
	assert.ErrorIs(t, err, ErrUnknownSpecies)
	assert.Len(t, SpeciesKeys(), 7)
	assert.Equal(t, "ash", SpeciesKeys()[0])
}

func TestAllometry(t *testing.T) {
	bark, err := BarkThickness(20, Beech)
	require.NoError(t, err)
	assert.InDelta(t, 1.401909, bark, 1e-9)

	bark, err = BarkThickness(20, Oak)
	require.NoError(t, err)
	assert.InDelta(t, 3.258215, bark, 1e-9)

	_, err = BarkThickness(20, "pine")
	assert.ErrorIs(t, err, ErrUnsupportedAllometry)

	d, err := SapwoodDepth(20, Beech)
	require.NoError(t, err)
	assert.InDelta(t, 9.29856143563377, d, 1e-9)
	d, err = SapwoodDepth(20, Oak)
	require.NoError(t, err)
	assert.InDelta(t, 2.0870032494764956, d, 1e-9)

	assert.InDelta(t, 4.086, SapwoodDepthRacko(20, true), 1e-12)
	assert.InDelta(t, 7.496, SapwoodDepthRacko(20, false), 1e-12)
	assert.InDelta(t, 11.510829580728018, SapwoodDepthGlavac(20), 1e-9)
}

func TestRingArea(t *testing.T) {
	outer, err := RingArea(20, 0, 1.1, Beech)
	require.NoError(t, err)
	assert.InDelta(t, 129.58409993016585, outer, 1e-9)
	mid, err := RingArea(20, 1.1, 2.4, Beech)
	require.NoError(t, err)
	assert.InDelta(t, 143.3430762928134, mid, 1e-9)
}

func TestWeibull(t *testing.T) {
	// with c = 1 the profile decays exponentially from d
	assert.InDelta(t, 2.69*math.Exp(2.44/3.42), Weibull(0, 2.69, 3.42, 1, 2.44), 1e-12)
	assert.InDelta(t, 0.9454033606745964, Weibull(1, 1.37, 5.88, 2.43, 2.79), 1e-9)
	assert.InDelta(t, 0.6425640596775517, Weibull(5, 1.37, 5.88, 2.43, 2.79), 1e-9)
}

func TestRelativeFluxAndActiveDepth(t *testing.T) {
	tree := beech(t, 20)
	rel, err := RelativeFluxDensity(tree, 50)
	require.NoError(t, err)
	require.Len(t, rel, 50)
	assert.InDelta(t, 5.4903471463649325, rel[0], 1e-9)
	for k := 1; k < len(rel); k++ {
		assert.Less(t, rel[k], rel[k-1])
	}

	active, err := ActiveSapwoodDepth(tree, DefaultActiveFraction)
	require.NoError(t, err)
	assert.InDelta(t, 7.438849148507017, active, 1e-9)

	_, err = ActiveSapwoodDepth(Tree{Radius: 20, Allometry: "pine", Species: tree.Species}, 0.95)
	assert.ErrorIs(t, err, ErrUnsupportedAllometry)
}

func TestInnerFlow(t *testing.T) {
	tree := beech(t, 20)
	q, err := InnerFlow(tree, 10, 8, DefaultActiveFraction)
	require.NoError(t, err)
	assert.InDelta(t, 2463.2810760840916, q, 1e-6)

	x, v, err := VelocityProfile(tree, 10, 8)
	require.NoError(t, err)
	require.Len(t, x, 50)
	assert.InDelta(t, 3.512031422844232*5.4903471463649325, v[0], 1e-9)

	q, err = InnerFlow(tree, math.NaN(), 8, DefaultActiveFraction)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(q))

	_, err = InnerFlow(beech(t, 5), 10, 8, DefaultActiveFraction)
	assert.ErrorIs(t, err, ErrSapwoodTooThin)
}

func TestConvert(t *testing.T) {
	t0 := time.Date(2019, 6, 1, 12, 0, 0, 0, time.UTC)
	times := []time.Time{t0, t0.Add(time.Hour)}
	f, err := timeseries.NewFrame(times, []string{"inner", "mid", "outer", "temp"}, [][]float64{
		{8, 0},
		{10, 0},
		{12, 2},
		{20, 21},
	})
	require.NoError(t, err)

	out, err := Convert(f, beech(t, 20), DefaultActiveFraction)
	require.NoError(t, err)
	assert.Equal(t, []string{"inner", "mid", "outer"}, out.Columns)
	assert.InDelta(t, 2463.2810760840916, out.Values[0][0], 1e-6)
	assert.InDelta(t, 1433.430762928134, out.Values[1][0], 1e-8)
	assert.InDelta(t, 12*129.58409993016585, out.Values[2][0], 1e-8)
	assert.InDelta(t, 0, out.Values[0][1], 1e-12)
	assert.InDelta(t, 2*129.58409993016585, out.Values[2][1], 1e-8)

	_, err = Convert(&timeseries.Frame{Columns: []string{"a"}, Values: [][]float64{{}}}, beech(t, 20), 0.95)
	assert.ErrorIs(t, err, ErrTooFewColumns)
}

func TestConvertReading(t *testing.T) {
	q, err := ConvertReading(beech(t, 20), 8, 10, 12, DefaultActiveFraction)
	require.NoError(t, err)
	assert.InDelta(t, 2463.2810760840916, q.Inner, 1e-6)
	assert.InDelta(t, 1433.430762928134, q.Mid, 1e-8)
	assert.InDelta(t, 12*129.58409993016585, q.Outer, 1e-8)
	assert.InDelta(t, 2463.2810760840916+1433.430762928134+12*129.58409993016585, q.Total(), 1e-6)

	_, err = ConvertReading(beech(t, 5), 8, 10, 12, DefaultActiveFraction)
	assert.ErrorIs(t, err, ErrSapwoodTooThin)
}

func TestActiveFractionBounds(t *testing.T) {
	tree := beech(t, 32)
	for _, perc := range []float64{0, -0.1, 1, 1.5, math.NaN()} {
		_, err := ActiveSapwoodDepth(tree, perc)
		assert.ErrorIs(t, err, ErrInvalidActiveFraction, perc)
		_, err = InnerFlow(tree, 8, 5, perc)
		assert.ErrorIs(t, err, ErrInvalidActiveFraction, perc)
		_, err = ConvertReading(tree, 5, 8, 10, perc)
		assert.ErrorIs(t, err, ErrInvalidActiveFraction, perc)
	}

	f, err := timeseries.NewFrame([]time.Time{time.Date(2019, 6, 1, 12, 0, 0, 0, time.UTC)},
		[]string{"inner", "mid", "outer"}, [][]float64{{5}, {8}, {10}})
	require.NoError(t, err)
	_, err = Convert(f, tree, 1.5)
	assert.ErrorIs(t, err, ErrInvalidActiveFraction)

	_, err = activeDepth([]float64{1, 1}, 10, 0.999999)
	require.NoError(t, err)
}
