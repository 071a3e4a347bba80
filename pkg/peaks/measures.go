package peaks

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// integral converts refined positions back to sample indices
func integral(positions []float64) []int {
	out := make([]int, len(positions))
	for i, p := range positions {
		out[i] = int(math.Round(p))
	}
	return out
}

// Width returns the mean full width at half prominence in degrees, or 0 when
// there are no peaks.
func (Default) Width(profile []float64, positions []float64, measurements int) float64 {
	if len(positions) == 0 || measurements <= 0 {
		return 0
	}
	x := normalize(profile)
	widths := make([]float64, len(positions))
	for i, p := range integral(positions) {
		widths[i] = width(x, p, 0.5)
	}
	return stat.Mean(widths, nil) * 360.0 / float64(measurements)
}

// Prominence returns the mean prominence on the min-max normalized profile,
// or 0 when there are no peaks.
func (Default) Prominence(profile []float64, positions []float64) float64 {
	if len(positions) == 0 {
		return 0
	}
	x := normalize(profile)
	proms := make([]float64, len(positions))
	for i, p := range integral(positions) {
		proms[i], _, _ = prominence(x, p)
	}
	return stat.Mean(proms, nil)
}

// Distance returns the angular distance between the two peaks of a pixel.
// Any other peak count yields Background.
func (Default) Distance(positions []float64, measurements int) float64 {
	if len(positions) != 2 || measurements <= 0 {
		return Background
	}
	return math.Abs(positions[1]-positions[0]) * 360.0 / float64(measurements)
}

// angles converts extended-profile positions to degrees within the
// measurement, with the first measured angle at zero.
func angles(positions []float64, measurements int) []float64 {
	offset := float64(measurements / 2)
	scale := 360.0 / float64(measurements)
	out := make([]float64, len(positions))
	for i, p := range positions {
		out[i] = (p - offset) * scale
	}
	return out
}

// orientation maps a mean peak angle to a fiber direction in [0, 180)
func orientation(angle float64) float64 {
	d := math.Mod(270.0-angle, 180)
	if d < 0 {
		d += 180
	}
	return d
}

// Direction resolves the fiber direction for pixels with one or two peaks and
// returns Background otherwise.
func (Default) Direction(positions []float64, measurements int) float64 {
	if measurements <= 0 {
		return Background
	}
	a := angles(positions, measurements)
	switch len(a) {
	case 1:
		return orientation(a[0])
	case 2:
		return orientation((a[0] + a[1]) / 2)
	default:
		return Background
	}
}

// CrossingDirection resolves up to three fiber directions. Peaks are paired
// with the peak half a turn of the list later; for more than two peaks a pair
// is only accepted when the peaks lie roughly opposite each other.
func (Default) CrossingDirection(positions []float64, measurements int) [3]float64 {
	res := [3]float64{Background, Background, Background}
	if measurements <= 0 {
		return res
	}
	a := angles(positions, measurements)
	k := len(a)

	if k == 1 {
		res[0] = orientation(a[0])
		return res
	}
	if k%2 != 0 || k > 2*len(res) {
		return res
	}

	half := k / 2
	for j := 0; j < half; j++ {
		if k > 2 && math.Abs((a[j+half]-a[j])-180) > CrossingTolerance {
			continue
		}
		res[j] = orientation((a[j] + a[j+half]) / 2)
	}
	return res
}
