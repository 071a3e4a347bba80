package preparation

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/mat"
)

// Smoothing filter defaults
const (
	DefaultSavGolWindow     = 45
	DefaultSavGolOrder      = 2
	DefaultFourierThreshold = 0.25
	DefaultFourierSmoothing = 0.025
)

// SmoothingKind selects the filter applied to each line profile
type SmoothingKind string

const (
	SmoothingNone    SmoothingKind = "none"
	SmoothingSavGol  SmoothingKind = "savgol"
	SmoothingFourier SmoothingKind = "fourier"
)

// ErrSmoothing is returned for invalid filter parameters
var ErrSmoothing = errors.New("invalid smoothing parameters")

// ParseSmoothing converts a name into a SmoothingKind. The empty string means
// no smoothing.
func ParseSmoothing(name string) (SmoothingKind, error) {
	switch k := SmoothingKind(strings.ToLower(strings.TrimSpace(name))); k {
	case "", SmoothingNone:
		return SmoothingNone, nil
	case SmoothingSavGol, SmoothingFourier:
		return k, nil
	default:
		return "", fmt.Errorf("%w: unknown smoothing %q", ErrSmoothing, name)
	}
}

// Smoother filters a periodic line profile. Implementations must be safe for
// concurrent use.
type Smoother interface {
	Smooth(profile []float64) []float64
}

// SavitzkyGolay is a least-squares polynomial smoothing filter. The profile is
// treated as periodic, so samples near the ends use the wrapped neighbours.
type SavitzkyGolay struct {
	coeffs []float64
}

// NewSavitzkyGolay computes the filter coefficients for a window of the given
// length and polynomial order. An even window is shrunk by one sample; a window
// longer than samples is clamped to the longest odd window that fits.
func NewSavitzkyGolay(window, order, samples int) (*SavitzkyGolay, error) {
	if window > samples {
		window = samples
	}
	if window%2 == 0 {
		window--
	}
	if order < 0 || window <= order {
		return nil, fmt.Errorf("%w: window %d must exceed polynomial order %d", ErrSmoothing, window, order)
	}

	half := window / 2

	// Vandermonde matrix of the window offsets
	a := mat.NewDense(window, order+1, nil)
	for i := 0; i < window; i++ {
		x := float64(i - half)
		v := 1.0
		for k := 0; k <= order; k++ {
			a.Set(i, k, v)
			v *= x
		}
	}

	// The least squares solution of A*C = I is the pseudo-inverse of A; its
	// first row evaluates the fitted polynomial at the window centre.
	var qr mat.QR
	qr.Factorize(a)
	identity := mat.NewDiagDense(window, nil)
	for i := 0; i < window; i++ {
		identity.SetDiag(i, 1)
	}
	var pinv mat.Dense
	if err := qr.SolveTo(&pinv, false, identity); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSmoothing, err)
	}

	return &SavitzkyGolay{coeffs: mat.Row(nil, 0, &pinv)}, nil
}

// Coefficients returns a copy of the convolution coefficients
func (s *SavitzkyGolay) Coefficients() []float64 {
	return append([]float64(nil), s.coeffs...)
}

func (s *SavitzkyGolay) Smooth(profile []float64) []float64 {
	n := len(profile)
	half := len(s.coeffs) / 2
	out := make([]float64, n)
	for i := range out {
		sum := 0.0
		for j, c := range s.coeffs {
			idx := ((i+j-half)%n + n) % n
			sum += c * profile[idx]
		}
		out[i] = sum
	}
	return out
}

// FourierLowPass damps high frequencies with a logistic window in the
// frequency domain. Frequencies are normalized so that 1 is the Nyquist
// frequency; the window has unit gain at zero frequency.
type FourierLowPass struct {
	Threshold float64
	Smoothing float64
}

// NewFourierLowPass validates the window parameters
func NewFourierLowPass(threshold, smoothing float64) (*FourierLowPass, error) {
	if threshold <= 0 || threshold > 1 {
		return nil, fmt.Errorf("%w: fourier threshold %v outside (0, 1]", ErrSmoothing, threshold)
	}
	if smoothing <= 0 {
		return nil, fmt.Errorf("%w: fourier smoothing %v must be positive", ErrSmoothing, smoothing)
	}
	return &FourierLowPass{Threshold: threshold, Smoothing: smoothing}, nil
}

// weight returns the window value at normalized frequency f
func (l *FourierLowPass) weight(f float64) float64 {
	return (1 + math.Exp(-l.Threshold/l.Smoothing)) / (1 + math.Exp((f-l.Threshold)/l.Smoothing))
}

func (l *FourierLowPass) Smooth(profile []float64) []float64 {
	n := len(profile)
	if n < 2 {
		return append([]float64(nil), profile...)
	}

	// gonum FFT values hold scratch space and cannot be shared between workers
	fft := fourier.NewFFT(n)
	coeffs := fft.Coefficients(nil, profile)

	nyquist := float64(n / 2)
	for k := range coeffs {
		coeffs[k] *= complex(l.weight(float64(k)/nyquist), 0)
	}

	// Sequence is unnormalized
	out := fft.Sequence(nil, coeffs)
	for i := range out {
		out[i] /= float64(n)
	}
	return out
}

// NewSmoother builds the filter for profiles with the given number of samples.
// SmoothingNone returns a nil Smoother.
func NewSmoother(kind SmoothingKind, opts Options, samples int) (Smoother, error) {
	switch kind {
	case "", SmoothingNone:
		return nil, nil
	case SmoothingSavGol:
		return NewSavitzkyGolay(opts.SavGolWindow, opts.SavGolOrder, samples)
	case SmoothingFourier:
		return NewFourierLowPass(opts.FourierThreshold, opts.FourierSmoothing)
	default:
		return nil, fmt.Errorf("%w: unknown smoothing %q", ErrSmoothing, kind)
	}
}
