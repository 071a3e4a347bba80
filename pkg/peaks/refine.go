package peaks

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Refine keeps the raw peaks that pass the prominence and height filters and
// optionally shifts each position by its centroid offset.
func (Default) Refine(profile []float64, raw []int, opts RefineOptions) []float64 {
	if len(raw) == 0 {
		return nil
	}
	x := normalize(profile)

	target := opts.TargetHeight
	if target == 0 {
		target = DefaultTargetPeakHeight
	}

	positions := make([]float64, 0, len(raw))
	for _, p := range raw {
		prom, _, _ := prominence(x, p)
		if prom < opts.MinProminence || x[p] < opts.MinHeight {
			continue
		}
		pos := float64(p)
		if opts.Centroid {
			pos += centroidOffset(x, p, target)
		}
		positions = append(positions, pos)
	}
	return positions
}

// wrap maps i into [0, n)
func wrap(i, n int) int {
	i %= n
	if i < 0 {
		i += n
	}
	return i
}

// isLocalMin reports whether sample i is a (possibly flat) local minimum
func isLocalMin(x []float64, i int) bool {
	n := len(x)
	prev, cur, next := x[wrap(i-1, n)], x[wrap(i, n)], x[wrap(i+1, n)]
	return (cur < prev && cur <= next) || (cur <= prev && cur < next)
}

// centroidOffset estimates the sub-sample offset of the peak at pos from the
// centroid of the linearly interpolated profile above the target level. The
// window ends at the nearest minimum within CentroidMaxDistance samples or at
// the first sample below the target level, whichever comes first. Minima
// farther out never widen the window. The result is clamped to [-1, 1].
func centroidOffset(x []float64, pos int, targetHeight float64) float64 {
	n := len(x)
	level := math.Max(0, x[pos]-floats.Max(x)*(1-targetHeight))

	left, right := CentroidMaxDistance, CentroidMaxDistance
	for off := 1; off < CentroidMaxDistance; off++ {
		if isLocalMin(x, pos-off) {
			left = off
			break
		}
	}
	for off := 1; off < CentroidMaxDistance; off++ {
		if isLocalMin(x, pos+off) {
			right = off
			break
		}
	}

	for off := 0; off < left; off++ {
		if x[wrap(pos-off, n)] < level {
			left = off
			break
		}
	}
	for off := 0; off < right; off++ {
		if x[wrap(pos+off, n)] < level {
			right = off
			break
		}
	}

	var top, bottom float64
	for dx := -left; dx < right; dx++ {
		a := x[wrap(pos+dx, n)]
		b := x[wrap(pos+dx+1, n)]
		for s := 0; s <= CentroidSamples; s++ {
			step := float64(s) / CentroidSamples
			v := a + (b-a)*step
			if v > level {
				top += (float64(dx) + step) * v
				bottom += v
			}
		}
	}
	if bottom == 0 {
		return 0
	}

	c := top / bottom
	return math.Max(-1, math.Min(1, c))
}
