package imageio

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/kshedden/gonpy"
	"golang.org/x/image/tiff"

	"slimaps/internal/models"
)

// Output formats
const (
	FormatNPY  = "npy"
	FormatTIFF = "tiff"
	FormatBoth = "both"
)

// WriteNPY writes a map as a float64 array of shape [height, width]
func WriteNPY(path string, m *models.FeatureMap) error {
	if err := checkMap(m); err != nil {
		return err
	}
	w, err := gonpy.NewFileWriter(path)
	if err != nil {
		return fmt.Errorf("cannot create npy file %s: %w", path, err)
	}
	w.Shape = []int{m.Shape.Height, m.Shape.Width}
	if err := w.WriteFloat64(m.Data); err != nil {
		return fmt.Errorf("failed to write npy file %s: %w", path, err)
	}
	return nil
}

// ToGray16 scales a map linearly from its value range to 0..65535. A constant
// map becomes black.
func ToGray16(m *models.FeatureMap) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, m.Shape.Width, m.Shape.Height))
	lo, hi := m.Range()
	scale := 0.0
	if hi > lo {
		scale = 65535 / (hi - lo)
	}

	for y := 0; y < m.Shape.Height; y++ {
		for x := 0; x < m.Shape.Width; x++ {
			value := math.Max(0, math.Min(65535, (m.At(x, y)-lo)*scale))
			img.SetGray16(x, y, color.Gray16{Y: uint16(math.Round(value))})
		}
	}
	return img
}

// WriteTIFF writes a map as a deflate compressed 16-bit grayscale TIFF
func WriteTIFF(path string, m *models.FeatureMap) error {
	if err := checkMap(m); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := tiff.Encode(file, ToGray16(m), &tiff.Options{Compression: tiff.Deflate}); err != nil {
		file.Close()
		return fmt.Errorf("failed to encode tiff %s: %w", path, err)
	}
	return file.Close()
}

// WriteMaps writes every map into dir as <prefix><name>.<ext> in the given
// format and returns the paths written.
func WriteMaps(dir, prefix, format string, maps []models.FeatureMap) ([]string, error) {
	writers := map[string]func(string, *models.FeatureMap) error{}
	switch format {
	case FormatNPY:
		writers[".npy"] = WriteNPY
	case FormatTIFF:
		writers[".tiff"] = WriteTIFF
	case FormatBoth:
		writers[".npy"] = WriteNPY
		writers[".tiff"] = WriteTIFF
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	var written []string
	for i := range maps {
		for _, ext := range []string{".npy", ".tiff"} {
			write, ok := writers[ext]
			if !ok {
				continue
			}
			path := filepath.Join(dir, prefix+maps[i].Name+ext)
			if err := write(path, &maps[i]); err != nil {
				return written, err
			}
			written = append(written, path)
		}
	}
	return written, nil
}

func checkMap(m *models.FeatureMap) error {
	if m.Shape.Pixels() == 0 || len(m.Data) != m.Shape.Pixels() {
		return fmt.Errorf("%w: map %q has %d values for %dx%d pixels",
			ErrShape, m.Name, len(m.Data), m.Shape.Width, m.Shape.Height)
	}
	return nil
}
