package peaks

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Default is the standard Provider implementation
type Default struct{}

var _ Provider = Default{}

// normalize scales a profile to [0, 1]. A flat profile maps to all zeros.
func normalize(profile []float64) []float64 {
	out := make([]float64, len(profile))
	if len(profile) == 0 {
		return out
	}
	lo, hi := floats.Min(profile), floats.Max(profile)
	if hi <= lo {
		return out
	}
	scale := 1 / (hi - lo)
	for i, v := range profile {
		out[i] = (v - lo) * scale
	}
	return out
}

// localMaxima finds all local maxima of x. Flat tops count once, at their
// middle sample. The first and last samples are never maxima.
func localMaxima(x []float64) []int {
	var peaks []int
	i := 1
	last := len(x) - 1
	for i < last {
		if x[i-1] < x[i] {
			ahead := i + 1
			for ahead < last && x[ahead] == x[i] {
				ahead++
			}
			if x[ahead] < x[i] {
				peaks = append(peaks, (i+ahead-1)/2)
			}
			i = ahead
			continue
		}
		i++
	}
	return peaks
}

// Detect returns the local maxima that fall into the central period of the
// extended profile. The half-open range keeps a peak sitting exactly on the
// period boundary from being reported twice.
func (Default) Detect(profile []float64) []int {
	if len(profile) < 3 {
		return nil
	}
	n := Measurements(len(profile))
	lo, hi := n/2, len(profile)-n/2

	all := localMaxima(profile)
	out := all[:0]
	for _, p := range all {
		if p >= lo && p < hi {
			out = append(out, p)
		}
	}
	return out
}

// prominence computes the prominence of the peak at pos together with the
// positions of its left and right bases. Each side is scanned until a higher
// sample or the profile edge.
func prominence(x []float64, pos int) (prom float64, leftBase, rightBase int) {
	height := x[pos]

	leftMin := height
	leftBase = pos
	for i := pos; i >= 0 && x[i] <= height; i-- {
		if x[i] < leftMin {
			leftMin = x[i]
			leftBase = i
		}
	}

	rightMin := height
	rightBase = pos
	for i := pos; i < len(x) && x[i] <= height; i++ {
		if x[i] < rightMin {
			rightMin = x[i]
			rightBase = i
		}
	}

	return height - math.Max(leftMin, rightMin), leftBase, rightBase
}

// width measures the peak at pos at relHeight of its prominence, with linear
// interpolation between samples. The result is in samples.
func width(x []float64, pos int, relHeight float64) float64 {
	prom, leftBase, rightBase := prominence(x, pos)
	height := x[pos] - prom*relHeight

	i := pos
	for leftBase < i && height < x[i] {
		i--
	}
	leftIP := float64(i)
	if x[i] < height {
		leftIP += (height - x[i]) / (x[i+1] - x[i])
	}

	i = pos
	for i < rightBase && height < x[i] {
		i++
	}
	rightIP := float64(i)
	if x[i] < height {
		rightIP -= (height - x[i]) / (x[i-1] - x[i])
	}

	return rightIP - leftIP
}
