// Package generation computes SLI feature maps from a prepared ROI set.
//
// The pixel range is split into contiguous slices, one per worker. Each worker
// receives a view of its own rows of the shared feature matrix and writes
// nothing else, so the matrix needs no locking. Progress is tracked with one
// counter per worker and folded into a display by a separate aggregator.
package generation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"slimaps/internal/models"
	"slimaps/pkg/features"
	"slimaps/pkg/peaks"
	"slimaps/pkg/progress"
)

// Precondition errors. They are returned before any worker starts.
var (
	ErrEmptyROISet    = errors.New("roi set is empty")
	ErrProfileLength  = errors.New("invalid line profile length")
	ErrNoFeatures     = errors.New("no features selected")
	ErrWorkers        = errors.New("number of workers must be positive")
	ErrColumnMismatch = errors.New("written columns do not match the selection")

	// ErrNonFinite is a precondition error for NaN or infinite profile
	// samples. A worker reports it wrapped in a WorkerError when a provider
	// produces a non-finite feature value.
	ErrNonFinite = errors.New("value is not finite")
)

// leader is the worker that nudges the progress aggregator
const leader = 0

// Params holds the configuration of one feature generation run
type Params struct {
	// NumWorkers is the number of parallel workers. It is capped at the
	// number of pixels.
	NumWorkers int

	// Prominence is the normalized prominence threshold of high prominence
	// peaks
	Prominence float64

	// TargetPeakHeight is the relative height used by the centroid correction
	TargetPeakHeight float64

	// MinPeakHeight drops peaks below this normalized height. Zero disables it.
	MinPeakHeight float64

	// Provider supplies the peak primitives. Nil means peaks.Default.
	Provider peaks.Provider

	// Display receives progress updates. Nil discards them.
	Display progress.Display

	// ProgressInterval is the sampling period of the progress aggregator
	ProgressInterval time.Duration

	// Logger receives step messages. Nil means the logrus standard logger.
	Logger logrus.FieldLogger
}

// DefaultParams returns the parameters used by the command line tool
func DefaultParams() Params {
	return Params{
		NumWorkers:       max(1, runtime.NumCPU()/2),
		Prominence:       peaks.DefaultProminence,
		TargetPeakHeight: peaks.DefaultTargetPeakHeight,
		ProgressInterval: progress.DefaultInterval,
	}
}

// Result is the output of a feature generation run
type Result struct {
	// Matrix has one row per pixel in ROI order and one column per output
	// column of the selection
	Matrix *mat.Dense

	// Layout maps features to matrix columns
	Layout []features.Column

	// Workers is the number of workers that actually ran
	Workers int

	// Processed is the final progress total
	Processed int64

	// Elapsed is the wall time of the run
	Elapsed time.Duration
}

// WorkerError reports the failure of one worker. A failed worker fails the
// whole run.
type WorkerError struct {
	Worker int
	Pixel  int
	Err    error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("worker %d failed at pixel %d: %v", e.Worker, e.Pixel, e.Err)
}

func (e *WorkerError) Unwrap() error {
	return e.Err
}

// Generator runs feature generation for a fixed selection and configuration.
// A Generator holds no state between runs and may be reused.
type Generator struct {
	params Params
	plan   features.Plan

	lowOpts      peaks.RefineOptions
	highOpts     peaks.RefineOptions
	centroidOpts peaks.RefineOptions
}

// NewGenerator validates the configuration and derives the per-pixel
// computation plan.
func NewGenerator(sel features.Selection, params Params) (*Generator, error) {
	if sel.Empty() {
		return nil, ErrNoFeatures
	}
	if params.NumWorkers < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrWorkers, params.NumWorkers)
	}
	if params.Provider == nil {
		params.Provider = peaks.Default{}
	}
	if params.Display == nil {
		params.Display = progress.Discard{}
	}
	if params.Logger == nil {
		params.Logger = logrus.StandardLogger()
	}

	plan := features.NewPlan(sel)
	if plan.Columns != sel.Columns() {
		return nil, fmt.Errorf("%w: plan has %d columns, selection %d", ErrColumnMismatch, plan.Columns, sel.Columns())
	}

	return &Generator{
		params: params,
		plan:   plan,
		lowOpts: peaks.RefineOptions{
			MinProminence: 0,
		},
		highOpts: peaks.RefineOptions{
			MinProminence: params.Prominence,
			MinHeight:     params.MinPeakHeight,
		},
		centroidOpts: peaks.RefineOptions{
			MinProminence: params.Prominence,
			MinHeight:     params.MinPeakHeight,
			Centroid:      true,
			TargetHeight:  params.TargetPeakHeight,
		},
	}, nil
}

// Plan returns the computation plan of the generator
func (g *Generator) Plan() features.Plan {
	return g.plan
}

// Generate is a shorthand for NewGenerator followed by Generator.Generate
func Generate(roi models.ROISet, sel features.Selection, params Params) (*Result, error) {
	g, err := NewGenerator(sel, params)
	if err != nil {
		return nil, err
	}
	return g.Generate(roi)
}

// Generate computes the feature matrix of roi. Either the complete matrix is
// returned or an error; partial results are never exposed. Profiles holding
// NaN or infinite samples are rejected with ErrNonFinite.
func (g *Generator) Generate(roi models.ROISet) (*Result, error) {
	n := roi.Len()
	if n == 0 {
		return nil, ErrEmptyROISet
	}
	length, err := roi.ProfileLength()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfileLength, err)
	}
	if length < 3 {
		return nil, fmt.Errorf("%w: need at least 3 samples, got %d", ErrProfileLength, length)
	}
	for i, profile := range roi.Profiles {
		for k, v := range profile {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: pixel %d sample %d is %v", ErrNonFinite, i, k, v)
			}
		}
	}

	log := g.params.Logger
	startTime := time.Now()

	ranges := partition(n, g.params.NumWorkers)
	matrix := mat.NewDense(n, g.plan.Columns, nil)

	log.WithFields(logrus.Fields{
		"pixels":   n,
		"samples":  length,
		"columns":  g.plan.Columns,
		"workers":  len(ranges),
		"features": g.plan.Selection.Names(),
	}).Info("generating feature maps")

	tracker := progress.NewTracker(len(ranges))
	aggregator := progress.NewAggregator(tracker, g.params.Display, g.params.ProgressInterval)
	aggregator.Start()

	group, ctx := errgroup.WithContext(context.Background())
	for w, r := range ranges {
		// Each worker gets a view of exactly its own rows
		rows := matrix.Slice(r.start, r.end, 0, g.plan.Columns).(*mat.Dense)
		profiles := roi.Profiles[r.start:r.end]
		worker, start := w, r.start

		group.Go(func() error {
			return g.work(ctx, worker, start, profiles, rows, tracker, aggregator)
		})
	}

	// Barrier: all workers have returned and cleared their liveness flags
	err = group.Wait()
	processed := aggregator.Stop()
	if err != nil {
		return nil, fmt.Errorf("feature generation failed: %w", err)
	}

	elapsed := time.Since(startTime)
	log.WithFields(logrus.Fields{
		"pixels":  processed,
		"elapsed": elapsed.Round(time.Millisecond),
	}).Info("feature maps generated")

	return &Result{
		Matrix:    matrix,
		Layout:    g.plan.Layout,
		Workers:   len(ranges),
		Processed: processed,
		Elapsed:   elapsed,
	}, nil
}

// span is a contiguous, half-open range of pixel indices
type span struct {
	start, end int
}

// partition splits [0, n) into contiguous spans for at most workers workers.
// Empty trailing spans are dropped.
func partition(n, workers int) []span {
	workers = min(workers, n)
	chunk := (n + workers - 1) / workers

	spans := make([]span, 0, workers)
	for start := 0; start < n; start += chunk {
		spans = append(spans, span{start: start, end: min(start+chunk, n)})
	}
	return spans
}

// work processes the pixels of one span. start is the global index of the
// first pixel and only used for error reports.
func (g *Generator) work(ctx context.Context, worker, start int, profiles [][]float64, rows *mat.Dense,
	tracker *progress.Tracker, aggregator *progress.Aggregator) (err error) {
	defer tracker.Finish(worker)

	i := 0
	defer func() {
		if r := recover(); r != nil {
			err = &WorkerError{Worker: worker, Pixel: start + i, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	row := make([]float64, g.plan.Columns)
	for ; i < len(profiles); i++ {
		// another worker failed; the run is lost anyway
		if ctx.Err() != nil {
			return ctx.Err()
		}

		written := g.analyze(profiles[i], row)
		if written != g.plan.Columns {
			return &WorkerError{Worker: worker, Pixel: start + i,
				Err: fmt.Errorf("%w: wrote %d of %d", ErrColumnMismatch, written, g.plan.Columns)}
		}
		for c, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return &WorkerError{Worker: worker, Pixel: start + i,
					Err: fmt.Errorf("%w: column %d is %v", ErrNonFinite, c, v)}
			}
		}
		rows.SetRow(i, row)

		if tracker.Done(worker)%progress.LeaderStride == 0 && worker == leader {
			aggregator.Nudge()
		}
	}
	return nil
}

// analyze computes the selected features of one line profile into row and
// returns the number of columns written. Every intermediate peak set is
// computed at most once.
func (g *Generator) analyze(profile []float64, row []float64) int {
	plan := &g.plan
	provider := g.params.Provider
	measurements := peaks.Measurements(len(profile))

	var raw []int
	var low, high, centroid []float64

	// Step 1: raw peaks, shared by every peak based feature
	if plan.NeedRawPeaks {
		raw = provider.Detect(profile)
	}

	// Step 2: non-centroid positions for the counts, width and prominence
	if plan.NeedLowPeaks {
		low = provider.Refine(profile, raw, g.lowOpts)
	}
	if plan.NeedHighPeaks {
		high = provider.Refine(profile, raw, g.highOpts)
	}

	// Step 3: centroid refined positions for distance and directions
	if plan.NeedCentroidPeaks {
		centroid = provider.Refine(profile, raw, g.centroidOpts)
	}

	// Step 4: write the selected columns in fixed feature order
	col := 0
	for _, c := range plan.Layout {
		switch c.Feature {
		case features.Min:
			row[col] = floats.Min(profile)
		case features.Max:
			row[col] = floats.Max(profile)
		case features.Average:
			row[col] = stat.Mean(profile, nil)
		case features.LowProminencePeaks:
			row[col] = float64(len(low))
		case features.HighProminencePeaks:
			row[col] = float64(len(high))
		case features.PeakWidth:
			row[col] = provider.Width(profile, high, measurements)
		case features.PeakProminence:
			row[col] = provider.Prominence(profile, high)
		case features.PeakDistance:
			row[col] = provider.Distance(centroid, measurements)
		case features.Direction:
			row[col] = provider.Direction(centroid, measurements)
		case features.CrossingDirection:
			dirs := provider.CrossingDirection(centroid, measurements)
			copy(row[col:col+len(dirs)], dirs[:])
			col += len(dirs)
			continue
		}
		col++
	}
	return col
}
