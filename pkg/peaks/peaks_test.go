package peaks

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// extend builds the cyclically extended form of a measured line profile
func extend(profile []float64) []float64 {
	n := len(profile)
	half := n / 2
	out := make([]float64, 0, n+2*half)
	out = append(out, profile[n-half:]...)
	out = append(out, profile...)
	out = append(out, profile[:half]...)
	return out
}

// cosineProfile samples 1+cos(k*theta) at n equally spaced angles
func cosineProfile(n int, k float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		theta := float64(i) * 2 * math.Pi / float64(n)
		out[i] = 1 + math.Cos(k*theta)
	}
	return out
}

func TestMeasurements(t *testing.T) {
	assert.Equal(t, 24, Measurements(len(extend(make([]float64, 24)))))
	assert.Equal(t, 5, Measurements(len(extend(make([]float64, 5)))))
}

func TestLocalMaximaPlateau(t *testing.T) {
	x := []float64{0, 1, 3, 3, 3, 1, 0, 2, 0, 4, 4}
	// the trailing plateau touches the edge and is not a maximum
	assert.Equal(t, []int{3, 7}, localMaxima(x))
}

func TestDetectCentralPeriod(t *testing.T) {
	p := extend(cosineProfile(24, 2))
	raw := Default{}.Detect(p)

	// peaks at 0 and 180 degrees; the copy of 0 degrees at the end of the
	// extension is excluded
	assert.Equal(t, []int{12, 24}, raw)
}

func TestDetectShortProfile(t *testing.T) {
	assert.Nil(t, Default{}.Detect([]float64{1, 2}))
	assert.Empty(t, Default{}.Detect(make([]float64, 48)))
}

func TestRefineProminenceFilter(t *testing.T) {
	// one strong peak and one small bump
	orig := []float64{0, 0, 0, 10, 0, 0, 0, 0, 0.5, 0.2, 0, 0, 0, 0, 0, 0}
	p := extend(orig)
	raw := Default{}.Detect(p)
	require.Len(t, raw, 2)

	low := Default{}.Refine(p, raw, RefineOptions{})
	assert.Len(t, low, 2)

	high := Default{}.Refine(p, raw, RefineOptions{MinProminence: DefaultProminence})
	assert.Equal(t, []float64{float64(raw[0])}, high)

	none := Default{}.Refine(p, raw, RefineOptions{MinHeight: 1.5})
	assert.Empty(t, none)
}

func TestRefineCentroidSymmetric(t *testing.T) {
	p := extend(cosineProfile(24, 2))
	raw := Default{}.Detect(p)

	pos := Default{}.Refine(p, raw, RefineOptions{Centroid: true})
	require.Len(t, pos, 2)
	assert.InDelta(t, 12, pos[0], 1e-9)
	assert.InDelta(t, 24, pos[1], 1e-9)
}

func TestRefineCentroidShiftsTowardsShoulder(t *testing.T) {
	orig := []float64{0, 0, 10, 9.8, 0, 0, 0, 0}
	p := extend(orig)
	raw := Default{}.Detect(p)
	require.Equal(t, []int{6}, raw)

	pos := Default{}.Refine(p, raw, RefineOptions{Centroid: true, TargetHeight: DefaultTargetPeakHeight})
	require.Len(t, pos, 1)
	assert.Greater(t, pos[0], 6.0)
	assert.LessOrEqual(t, pos[0], 7.0)
}

func TestCentroidWindowStopsAtNearestMinimum(t *testing.T) {
	// sample 5 is the nearest minimum right of the peak in both profiles;
	// only near has a second minimum at sample 6
	near := []float64{0, 0, 0, 5, 10, 6, 6, 7, 0, 0, 0, 0}
	far := []float64{0, 0, 0, 5, 10, 6, 8, 9, 0, 0, 0, 0}
	require.True(t, isLocalMin(near, 6))
	require.False(t, isLocalMin(far, 6))

	c := centroidOffset(near, 4, 0.1)
	assert.Equal(t, centroidOffset(far, 4, 0.1), c)
	assert.Less(t, c, 0.0)
}

func TestWidthAndProminence(t *testing.T) {
	orig := []float64{0, 0, 0, 0, 0, 0, 1, 2, 3, 2, 1, 0, 0, 0, 0, 0}
	p := extend(orig)
	raw := Default{}.Detect(p)
	require.Equal(t, []int{16}, raw)

	positions := []float64{16}
	assert.InDelta(t, 3*360.0/16, Default{}.Width(p, positions, 16), 1e-9)
	assert.InDelta(t, 1.0, Default{}.Prominence(p, positions), 1e-9)

	assert.Zero(t, Default{}.Width(p, nil, 16))
	assert.Zero(t, Default{}.Prominence(p, nil))
}

func TestDistanceSentinel(t *testing.T) {
	tests := []struct {
		name      string
		positions []float64
		expected  float64
	}{
		{"no peaks", nil, Background},
		{"one peak", []float64{12}, Background},
		{"two peaks", []float64{12, 24}, 180},
		{"three peaks", []float64{12, 18, 24}, Background},
		{"four peaks", []float64{12, 18, 24, 30}, Background},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Default{}.Distance(tt.positions, 24)
			assert.Equal(t, tt.expected, d)
			assert.False(t, math.IsNaN(d) || math.IsInf(d, 0))
		})
	}
}

func TestDirection(t *testing.T) {
	// angle = (p - 12) * 15
	assert.InDelta(t, 0, Default{}.Direction([]float64{12, 24}, 24), 1e-9)
	assert.InDelta(t, 90, Default{}.Direction([]float64{18, 30}, 24), 1e-9)
	assert.InDelta(t, 90, Default{}.Direction([]float64{24}, 24), 1e-9)
	assert.Equal(t, Background, Default{}.Direction(nil, 24))
	assert.Equal(t, Background, Default{}.Direction([]float64{12, 18, 24}, 24))
}

func TestCrossingDirection(t *testing.T) {
	tests := []struct {
		name      string
		positions []float64
		expected  [3]float64
	}{
		{"no peaks", nil, [3]float64{Background, Background, Background}},
		{"one peak", []float64{24}, [3]float64{90, Background, Background}},
		{"two peaks", []float64{12, 24}, [3]float64{0, Background, Background}},
		{"three peaks", []float64{12, 18, 24}, [3]float64{Background, Background, Background}},
		{"two crossing fibers", []float64{12, 18, 24, 30}, [3]float64{0, 90, Background}},
		{"one pair rejected", []float64{12, 16, 20, 30}, [3]float64{Background, 105, Background}},
		{"three crossing fibers", []float64{12, 16, 20, 24, 28, 32}, [3]float64{0, 120, 60}},
		{"eight peaks", []float64{12, 13, 14, 15, 16, 17, 18, 19}, [3]float64{Background, Background, Background}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Default{}.CrossingDirection(tt.positions, 24)
			for i := range got {
				assert.InDelta(t, tt.expected[i], got[i], 1e-9, "direction %d", i)
			}
		})
	}
}
