package generation

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"slimaps/internal/models"
	"slimaps/pkg/features"
	"slimaps/pkg/peaks"
	"slimaps/pkg/progress"
)

const measurements = 24

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

// fiberProfile samples a profile with k equally spaced peaks rotated by phase
func fiberProfile(k int, phase, amplitude float64) []float64 {
	out := make([]float64, measurements)
	for i := range out {
		theta := float64(i)*2*math.Pi/measurements + phase
		out[i] = 100 + amplitude*math.Cos(float64(k)*theta)
	}
	return extend(out)
}

// syntheticROISet creates n deterministic, mutually different profiles
func syntheticROISet(n int) models.ROISet {
	profiles := make([][]float64, n)
	for i := range profiles {
		k := 1 + i%4
		phase := float64(i) * 0.07
		profiles[i] = fiberProfile(k, phase, 10+float64(i))
	}
	return models.ROISet{
		Profiles: profiles,
		Shape:    models.ImageShape{Width: n, Height: 1},
		ROISize:  1,
	}
}

// quietParams returns default parameters with a muted logger
func quietParams(workers int) Params {
	logger, _ := test.NewNullLogger()
	p := DefaultParams()
	p.NumWorkers = workers
	p.Logger = logger
	return p
}

func TestPartition(t *testing.T) {
	tests := []struct {
		n, workers int
		expected   []span
	}{
		{8, 1, []span{{0, 8}}},
		{8, 4, []span{{0, 2}, {2, 4}, {4, 6}, {6, 8}}},
		{5, 4, []span{{0, 2}, {2, 4}, {4, 5}}},
		{3, 8, []span{{0, 1}, {1, 2}, {2, 3}}},
		{10, 3, []span{{0, 4}, {4, 8}, {8, 10}}},
	}

	for _, tt := range tests {
		got := partition(tt.n, tt.workers)
		assert.Equal(t, tt.expected, got, "n=%d workers=%d", tt.n, tt.workers)

		// spans cover [0, n) exactly once
		next := 0
		for _, s := range got {
			assert.Equal(t, next, s.start)
			assert.Less(t, s.start, s.end)
			next = s.end
		}
		assert.Equal(t, tt.n, next)
	}
}

func TestPreconditions(t *testing.T) {
	roi := syntheticROISet(4)

	_, err := Generate(roi, features.Selection{}, quietParams(2))
	assert.ErrorIs(t, err, ErrNoFeatures)

	_, err = Generate(roi, features.All(), quietParams(0))
	assert.ErrorIs(t, err, ErrWorkers)

	_, err = Generate(models.ROISet{}, features.All(), quietParams(2))
	assert.ErrorIs(t, err, ErrEmptyROISet)

	ragged := syntheticROISet(4)
	ragged.Profiles[2] = ragged.Profiles[2][:10]
	_, err = Generate(ragged, features.All(), quietParams(2))
	assert.ErrorIs(t, err, ErrProfileLength)

	short := models.ROISet{Profiles: [][]float64{{1, 2}, {2, 1}}}
	_, err = Generate(short, features.All(), quietParams(2))
	assert.ErrorIs(t, err, ErrProfileLength)
}

// TestColumnsWrittenMatchSelection runs every selection vector and checks the
// number of written columns against the selector's prediction.
func TestColumnsWrittenMatchSelection(t *testing.T) {
	roi := syntheticROISet(3)
	row := make([]float64, 16)

	for mask := 1; mask < 1<<int(features.Count); mask++ {
		var sel features.Selection
		for f := 0; f < int(features.Count); f++ {
			sel[f] = mask&(1<<f) != 0
		}

		g, err := NewGenerator(sel, quietParams(1))
		require.NoError(t, err)
		for _, p := range roi.Profiles {
			require.Equal(t, sel.Columns(), g.analyze(p, row), "mask %b", mask)
		}
	}

	res, err := Generate(roi, features.All(), quietParams(2))
	require.NoError(t, err)
	_, cols := res.Matrix.Dims()
	assert.Equal(t, features.All().Columns(), cols)
}

// markerProvider derives every peak measure from the first sample of the
// profile, so that each output value identifies its pixel.
type markerProvider struct{}

func (markerProvider) Detect(profile []float64) []int {
	return []int{int(profile[0])}
}

func (markerProvider) Refine(profile []float64, raw []int, opts peaks.RefineOptions) []float64 {
	out := []float64{float64(raw[0])}
	if opts.Centroid {
		out = append(out, float64(raw[0]))
	}
	return out
}

func (markerProvider) Width(profile []float64, positions []float64, _ int) float64 {
	return positions[0] + 0.1
}

func (markerProvider) Prominence(profile []float64, positions []float64) float64 {
	return positions[0] + 0.2
}

func (markerProvider) Distance(positions []float64, _ int) float64 {
	return positions[0] + 0.3
}

func (markerProvider) Direction(positions []float64, _ int) float64 {
	return positions[1] + 0.4
}

func (markerProvider) CrossingDirection(positions []float64, _ int) [3]float64 {
	return [3]float64{positions[0] + 0.5, positions[0] + 0.6, positions[0] + 0.7}
}

// TestRowOrderIsPixelOrder feeds constant marker profiles and checks that row
// k only contains values derived from pixel k.
func TestRowOrderIsPixelOrder(t *testing.T) {
	const n = 37
	profiles := make([][]float64, n)
	for k := range profiles {
		p := make([]float64, 2*measurements)
		for i := range p {
			p[i] = float64(k)
		}
		profiles[k] = p
	}
	roi := models.ROISet{Profiles: profiles, Shape: models.ImageShape{Width: n, Height: 1}, ROISize: 1}

	params := quietParams(4)
	params.Provider = markerProvider{}
	res, err := Generate(roi, features.All(), params)
	require.NoError(t, err)

	for k := 0; k < n; k++ {
		m := float64(k)
		expected := []float64{
			m, m, m, // min, max, avg
			1, 1, // low and high prominence counts
			m + 0.1, m + 0.2, m + 0.3, m + 0.4,
			m + 0.5, m + 0.6, m + 0.7,
		}
		assert.Equal(t, expected, mat.Row(nil, k, res.Matrix), "row %d", k)
	}
}

// countingProvider wraps peaks.Default and counts calls per profile and kind
type countingProvider struct {
	peaks.Default

	mu    sync.Mutex
	calls map[string]map[*float64]int
}

func newCountingProvider() *countingProvider {
	return &countingProvider{calls: map[string]map[*float64]int{}}
}

func (c *countingProvider) record(kind string, profile []float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls[kind] == nil {
		c.calls[kind] = map[*float64]int{}
	}
	c.calls[kind][&profile[0]]++
}

func (c *countingProvider) Detect(profile []float64) []int {
	c.record("detect", profile)
	return c.Default.Detect(profile)
}

func (c *countingProvider) Refine(profile []float64, raw []int, opts peaks.RefineOptions) []float64 {
	switch {
	case opts.Centroid:
		c.record("centroid", profile)
	case opts.MinProminence == 0:
		c.record("low", profile)
	default:
		c.record("high", profile)
	}
	return c.Default.Refine(profile, raw, opts)
}

func TestLazyComputationCallCounts(t *testing.T) {
	roi := syntheticROISet(12)

	tests := []struct {
		name     string
		sel      features.Selection
		expected []string
	}{
		{"statistics only", features.Of(features.Min, features.Max, features.Average), nil},
		{"low count", features.Of(features.LowProminencePeaks), []string{"detect", "low"}},
		{"width and prominence", features.Of(features.PeakWidth, features.PeakProminence, features.HighProminencePeaks),
			[]string{"detect", "high"}},
		{"directions", features.Of(features.PeakDistance, features.Direction, features.CrossingDirection),
			[]string{"detect", "centroid"}},
		{"all", features.All(), []string{"detect", "low", "high", "centroid"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := newCountingProvider()
			params := quietParams(3)
			params.Provider = provider

			_, err := Generate(roi, tt.sel, params)
			require.NoError(t, err)

			kinds := make([]string, 0, len(provider.calls))
			for _, kind := range []string{"detect", "low", "high", "centroid"} {
				if perPixel, ok := provider.calls[kind]; ok {
					kinds = append(kinds, kind)
					require.Len(t, perPixel, roi.Len(), kind)
					for _, count := range perPixel {
						assert.Equal(t, 1, count, kind)
					}
				}
			}
			if tt.expected == nil {
				assert.Empty(t, kinds)
			} else {
				assert.Equal(t, tt.expected, kinds)
			}
		})
	}
}

func TestPeakDistanceSentinel(t *testing.T) {
	flat := make([]float64, 2*measurements)
	for i := range flat {
		flat[i] = 100
	}
	roi := models.ROISet{
		Profiles: [][]float64{
			flat,
			fiberProfile(1, 0, 10),
			fiberProfile(2, 0, 10),
			fiberProfile(3, 0, 10),
			fiberProfile(4, 0, 10),
		},
		Shape:   models.ImageShape{Width: 5, Height: 1},
		ROISize: 1,
	}

	res, err := Generate(roi, features.Of(features.HighProminencePeaks, features.PeakDistance), quietParams(2))
	require.NoError(t, err)

	for k, expectedPeaks := range []float64{0, 1, 2, 3, 4} {
		assert.Equal(t, expectedPeaks, res.Matrix.At(k, 0), "peak count of pixel %d", k)
		distance := res.Matrix.At(k, 1)
		if expectedPeaks == 2 {
			assert.InDelta(t, 180, distance, 1e-6)
		} else {
			assert.Equal(t, peaks.Background, distance, "pixel %d", k)
		}
	}
}

// TestWorkerCountDoesNotChangeResults compares one worker with four workers
// on eight pixels row for row.
func TestWorkerCountDoesNotChangeResults(t *testing.T) {
	roi := syntheticROISet(8)

	single, err := Generate(roi, features.All(), quietParams(1))
	require.NoError(t, err)
	parallel, err := Generate(roi, features.All(), quietParams(4))
	require.NoError(t, err)

	assert.Equal(t, 1, single.Workers)
	assert.Equal(t, 4, parallel.Workers)
	for k := 0; k < roi.Len(); k++ {
		a := mat.Row(nil, k, single.Matrix)
		b := mat.Row(nil, k, parallel.Matrix)
		if diff := cmp.Diff(a, b); diff != "" {
			t.Errorf("row %d differs (-1 worker +4 workers):\n%s", k, diff)
		}
	}
}

func TestIdempotence(t *testing.T) {
	roi := syntheticROISet(20)
	g, err := NewGenerator(features.All(), quietParams(3))
	require.NoError(t, err)

	first, err := g.Generate(roi)
	require.NoError(t, err)
	second, err := g.Generate(roi)
	require.NoError(t, err)

	assert.True(t, mat.Equal(first.Matrix, second.Matrix))
}

func TestProgressReachesTotal(t *testing.T) {
	const n = 5000
	profiles := make([][]float64, n)
	for i := range profiles {
		profiles[i] = []float64{float64(i), float64(i + 1), float64(i)}
	}
	roi := models.ROISet{Profiles: profiles, Shape: models.ImageShape{Width: 100, Height: 50}, ROISize: 1}

	counter := &progress.Counter{}
	params := quietParams(4)
	params.Display = counter

	res, err := Generate(roi, features.Of(features.Max, features.Average), params)
	require.NoError(t, err)

	assert.Equal(t, int64(n), res.Processed)
	assert.Equal(t, int64(n), counter.Total)
	assert.Equal(t, 1, counter.Closed)
}

// panicProvider fails on one specific profile
type panicProvider struct {
	peaks.Default
	bad *float64
}

func (p panicProvider) Detect(profile []float64) []int {
	if &profile[0] == p.bad {
		panic("corrupt profile")
	}
	return p.Default.Detect(profile)
}

func TestWorkerFailureFailsRun(t *testing.T) {
	roi := syntheticROISet(16)
	params := quietParams(4)
	params.Provider = panicProvider{bad: &roi.Profiles[9][0]}
	counter := &progress.Counter{}
	params.Display = counter

	res, err := Generate(roi, features.All(), params)
	require.Error(t, err)
	assert.Nil(t, res)

	var werr *WorkerError
	require.True(t, errors.As(err, &werr))
	assert.Equal(t, 9, werr.Pixel)
	assert.Equal(t, 2, werr.Worker)
	assert.Contains(t, err.Error(), "corrupt profile")
	assert.Equal(t, 1, counter.Closed)
}

func TestNonFiniteSampleRejected(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		roi := syntheticROISet(4)
		roi.Profiles[1][5] = v
		params := quietParams(2)
		counter := &progress.Counter{}
		params.Display = counter

		res, err := Generate(roi, features.Of(features.Average), params)
		assert.Nil(t, res)
		assert.ErrorIs(t, err, ErrNonFinite, "value %v", v)

		var werr *WorkerError
		assert.False(t, errors.As(err, &werr), "value %v", v)
		// no worker started
		assert.Zero(t, counter.Closed)
	}
}

// nanWidthProvider reports a NaN peak width for every pixel
type nanWidthProvider struct {
	peaks.Default
}

func (nanWidthProvider) Width(profile []float64, positions []float64, measurements int) float64 {
	return math.NaN()
}

func TestNonFiniteFeatureFailsRun(t *testing.T) {
	roi := syntheticROISet(4)
	params := quietParams(1)
	params.Provider = nanWidthProvider{}

	res, err := Generate(roi, features.Of(features.PeakWidth), params)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrNonFinite)

	var werr *WorkerError
	require.True(t, errors.As(err, &werr))
	assert.Equal(t, 0, werr.Pixel)
	assert.Contains(t, err.Error(), "column 0")
}

func TestGenerateLogsSteps(t *testing.T) {
	logger, hook := test.NewNullLogger()
	params := DefaultParams()
	params.NumWorkers = 2
	params.Logger = logger

	_, err := Generate(syntheticROISet(6), features.Of(features.Direction), params)
	require.NoError(t, err)

	entries := hook.AllEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, logrus.InfoLevel, entries[0].Level)
	assert.Equal(t, 6, entries[0].Data["pixels"])
	assert.Equal(t, []string{"direction"}, entries[0].Data["features"])
}
