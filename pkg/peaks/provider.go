// Package peaks implements the peak primitives used to turn an SLI line
// profile into features: raw peak detection, prominence and height filtering,
// centroid correction, and the width, prominence, distance and direction
// measures derived from a set of peak positions.
//
// Line profiles are expected in their cyclically extended form: the last
// half of the measurement is prepended and the first half appended, so that
// peaks near the start or end of the rotation are not cut off. Measurements
// recovers the number of rotation angles from the extended length and is the
// reference every angular measure is scaled by.
package peaks

// Background is the sentinel written for features that cannot be resolved for
// a pixel, e.g. a peak distance when the pixel does not have exactly two peaks.
const Background = -1.0

const (
	// DefaultProminence is the normalized prominence a peak needs to count as
	// a high prominence peak
	DefaultProminence = 0.08

	// DefaultTargetPeakHeight is the fraction of the peak height above which
	// samples contribute to the centroid correction
	DefaultTargetPeakHeight = 0.94

	// CentroidMaxDistance bounds the centroid window on each side of a peak
	CentroidMaxDistance = 3

	// CentroidSamples is the number of linear interpolation steps between two
	// neighbouring samples during centroid correction
	CentroidSamples = 100

	// CrossingTolerance is the maximum deviation from 180 degrees for two
	// peaks to be paired into one fiber direction
	CrossingTolerance = 35.0
)

// RefineOptions controls how raw peaks are filtered and refined
type RefineOptions struct {
	// MinProminence drops peaks whose normalized prominence is lower
	MinProminence float64

	// MinHeight drops peaks whose normalized height is lower. Zero disables it.
	MinHeight float64

	// Centroid enables sub-sample centroid correction of the positions
	Centroid bool

	// TargetHeight is the relative height used by the centroid correction.
	// Zero means DefaultTargetPeakHeight.
	TargetHeight float64
}

// Provider is the set of peak primitives the feature engine depends on.
// Every method is a pure function of its arguments and safe to call
// concurrently on independent inputs.
type Provider interface {
	// Detect returns the indices of all local maxima within one period of the
	// extended line profile, in ascending order.
	Detect(profile []float64) []int

	// Refine filters raw peaks and returns their (optionally centroid
	// corrected) positions in ascending order.
	Refine(profile []float64, raw []int, opts RefineOptions) []float64

	// Width returns the mean width of the peaks at half prominence in degrees.
	Width(profile []float64, positions []float64, measurements int) float64

	// Prominence returns the mean normalized prominence of the peaks.
	Prominence(profile []float64, positions []float64) float64

	// Distance returns the angular distance of a peak pair in degrees.
	Distance(positions []float64, measurements int) float64

	// Direction returns the in-plane fiber direction of a non-crossing pixel.
	Direction(positions []float64, measurements int) float64

	// CrossingDirection returns up to three fiber directions.
	CrossingDirection(positions []float64, measurements int) [3]float64
}

// Measurements returns the number of rotation angles of an extended line
// profile of the given length.
func Measurements(length int) int {
	return (length + 1) / 2
}
