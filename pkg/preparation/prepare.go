// Package preparation turns a measurement stack into the ROI set consumed by
// feature generation: block averaging, background masking, optional smoothing
// and the cyclic extension of every line profile.
package preparation

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"slimaps/internal/models"
)

// DefaultMaskThreshold is the intensity below which a whole profile counts as
// background
const DefaultMaskThreshold = 10.0

// ErrInvalidStack is returned for stacks that cannot be prepared
var ErrInvalidStack = errors.New("invalid measurement stack")

// Options configures the preparation of a stack
type Options struct {
	// ROISize is the edge length of the averaged pixel blocks. Values below
	// one are treated as one.
	ROISize int

	// Smoothing selects the profile filter
	Smoothing        SmoothingKind
	SavGolWindow     int
	SavGolOrder      int
	FourierThreshold float64
	FourierSmoothing float64

	// MaskBackground zeroes profiles whose samples are all below MaskThreshold
	MaskBackground bool
	MaskThreshold  float64

	// NumWorkers is the number of goroutines used
	NumWorkers int

	// Logger receives step messages. Nil means the logrus standard logger.
	Logger logrus.FieldLogger
}

// DefaultOptions returns the options used by the command line tool
func DefaultOptions() Options {
	return Options{
		ROISize:          1,
		Smoothing:        SmoothingNone,
		SavGolWindow:     DefaultSavGolWindow,
		SavGolOrder:      DefaultSavGolOrder,
		FourierThreshold: DefaultFourierThreshold,
		FourierSmoothing: DefaultFourierSmoothing,
		MaskThreshold:    DefaultMaskThreshold,
		NumWorkers:       max(1, runtime.NumCPU()/2),
	}
}

// Prepare builds the ROI set of a stack. Profiles are returned in row-major
// order of the downsampled image and are already cyclically extended.
func Prepare(stack *models.Stack, opts Options) (models.ROISet, error) {
	if stack == nil || stack.Measurements < 1 || stack.Shape.Pixels() == 0 {
		return models.ROISet{}, fmt.Errorf("%w: empty stack", ErrInvalidStack)
	}
	if len(stack.Data) != stack.Shape.Pixels()*stack.Measurements {
		return models.ROISet{}, fmt.Errorf("%w: %d values for %dx%d pixels with %d measurements",
			ErrInvalidStack, len(stack.Data), stack.Shape.Width, stack.Shape.Height, stack.Measurements)
	}

	roiSize := max(1, opts.ROISize)
	smoother, err := NewSmoother(opts.Smoothing, opts, stack.Measurements)
	if err != nil {
		return models.ROISet{}, err
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	startTime := time.Now()
	grid := stack.Shape.Downsampled(roiSize)
	n := grid.Pixels()
	profiles := make([][]float64, n)
	masked := make([]bool, n)

	workers := min(max(1, opts.NumWorkers), n)
	chunk := (n + workers - 1) / workers

	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				profile := blockAverage(stack, grid, roiSize, i)
				if opts.MaskBackground && IsBackground(profile, opts.MaskThreshold) {
					for k := range profile {
						profile[k] = 0
					}
					masked[i] = true
				} else if smoother != nil {
					profile = smoother.Smooth(profile)
				}
				profiles[i] = Extend(profile)
			}
		}(start, end)
	}
	wg.Wait()

	background := 0
	for _, m := range masked {
		if m {
			background++
		}
	}

	log.WithFields(logrus.Fields{
		"pixels":     n,
		"roiSize":    roiSize,
		"smoothing":  opts.Smoothing,
		"background": background,
		"elapsed":    time.Since(startTime).Round(time.Millisecond),
	}).Info("prepared line profiles")

	return models.ROISet{
		Profiles: profiles,
		Shape:    stack.Shape,
		ROISize:  roiSize,
	}, nil
}

// Downsample averages blocks of roiSize x roiSize pixels. Blocks at the right
// and bottom edge may be smaller. Profiles are not extended.
func Downsample(stack *models.Stack, roiSize int) [][]float64 {
	roiSize = max(1, roiSize)
	grid := stack.Shape.Downsampled(roiSize)
	profiles := make([][]float64, grid.Pixels())
	for i := range profiles {
		profiles[i] = blockAverage(stack, grid, roiSize, i)
	}
	return profiles
}

// blockAverage returns a fresh profile for pixel i of the downsampled grid
func blockAverage(stack *models.Stack, grid models.ImageShape, roiSize, i int) []float64 {
	gx, gy := i%grid.Width, i/grid.Width
	x0, y0 := gx*roiSize, gy*roiSize
	x1 := min(x0+roiSize, stack.Shape.Width)
	y1 := min(y0+roiSize, stack.Shape.Height)

	out := make([]float64, stack.Measurements)
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			floats.Add(out, stack.Profile(x, y))
		}
	}
	floats.Scale(1/float64((x1-x0)*(y1-y0)), out)
	return out
}

// IsBackground reports whether every sample of profile is below threshold
func IsBackground(profile []float64, threshold float64) bool {
	return len(profile) > 0 && floats.Max(profile) < threshold
}

// BackgroundMask returns one flag per native pixel in row-major order, set for
// background pixels.
func BackgroundMask(stack *models.Stack, threshold float64) []bool {
	mask := make([]bool, stack.Shape.Pixels())
	for y := 0; y < stack.Shape.Height; y++ {
		for x := 0; x < stack.Shape.Width; x++ {
			mask[y*stack.Shape.Width+x] = IsBackground(stack.Profile(x, y), threshold)
		}
	}
	return mask
}

// Extend prepends the last N/2 samples and appends the first N/2 samples of a
// profile with N samples, so that peaks at the ends of the measured period can
// be detected. Both sides get the same number of samples, so an odd N yields
// 2N-1 samples; peaks.Measurements maps either length back to N.
func Extend(profile []float64) []float64 {
	n := len(profile)
	half := n / 2
	out := make([]float64, 0, n+2*half)
	out = append(out, profile[n-half:]...)
	out = append(out, profile...)
	out = append(out, profile[:half]...)
	return out
}
