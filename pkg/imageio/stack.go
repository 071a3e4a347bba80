// Package imageio reads SLI measurement stacks and writes parameter maps.
//
// A stack is either a directory holding one image per rotation angle or a
// single NumPy array of shape [height, width, measurements]. Maps are written
// as NumPy arrays or 16-bit grayscale TIFF images.
package imageio

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/kshedden/gonpy"
	_ "golang.org/x/image/tiff"

	"slimaps/internal/models"
)

// ErrNoImages is returned when a stack directory holds no supported images
var ErrNoImages = errors.New("no supported images found")

// ErrShape is returned when images or arrays do not form a valid stack
var ErrShape = errors.New("invalid stack shape")

// SupportedFormats returns the image extensions accepted in stack directories
func SupportedFormats() []string {
	return []string{".tiff", ".tif", ".png", ".jpg", ".jpeg"}
}

// IsSupportedFormat checks if the given path has a supported image extension
func IsSupportedFormat(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, f := range SupportedFormats() {
		if ext == f {
			return true
		}
	}
	return false
}

// LoadStack loads a measurement stack from a directory of images or a .npy
// file.
func LoadStack(path string) (*models.Stack, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return loadImageStack(path)
	}
	if strings.EqualFold(filepath.Ext(path), ".npy") {
		return loadNPYStack(path)
	}
	return nil, fmt.Errorf("unsupported stack input %s: expected a directory or a .npy file", path)
}

// loadImageStack reads every supported image of dir. The images are ordered by
// the number in their file name, which is the rotation angle index.
func loadImageStack(dir string) (*models.Stack, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var imageFiles []string
	for _, entry := range entries {
		if !entry.IsDir() && IsSupportedFormat(entry.Name()) {
			imageFiles = append(imageFiles, entry.Name())
		}
	}
	if len(imageFiles) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoImages, dir)
	}

	sort.SliceStable(imageFiles, func(i, j int) bool {
		numI, numJ := extractNumber(imageFiles[i]), extractNumber(imageFiles[j])
		if numI != numJ {
			return numI < numJ
		}
		return imageFiles[i] < imageFiles[j]
	})

	var stack *models.Stack
	for k, filename := range imageFiles {
		img, err := loadImage(filepath.Join(dir, filename))
		if err != nil {
			return nil, fmt.Errorf("failed to load image %s: %w", filename, err)
		}

		bounds := img.Bounds()
		shape := models.ImageShape{Width: bounds.Dx(), Height: bounds.Dy()}
		if stack == nil {
			stack = models.NewStack(shape, len(imageFiles))
		} else if shape != stack.Shape {
			return nil, fmt.Errorf("%w: %s is %dx%d, expected %dx%d", ErrShape, filename,
				shape.Width, shape.Height, stack.Shape.Width, stack.Shape.Height)
		}

		intensity := intensityFunc(img)
		for y := 0; y < shape.Height; y++ {
			for x := 0; x < shape.Width; x++ {
				stack.Profile(x, y)[k] = intensity(bounds.Min.X+x, bounds.Min.Y+y)
			}
		}
	}

	return stack, nil
}

// extractNumber extracts the digits of a file name as one number. Names
// without digits sort first.
func extractNumber(filename string) int {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	var digits strings.Builder
	for _, c := range base {
		if c >= '0' && c <= '9' {
			digits.WriteRune(c)
		}
	}

	if digits.Len() > 0 {
		if num, err := strconv.Atoi(digits.String()); err == nil {
			return num
		}
	}
	return -1
}

// loadImage decodes an image with any registered decoder
func loadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, err
	}
	return img, nil
}

// intensityFunc returns an accessor for the gray value of img. 8-bit images
// keep their 0..255 range and 16-bit images their 0..65535 range; colour
// images are converted to 8-bit luminance.
func intensityFunc(img image.Image) func(x, y int) float64 {
	switch m := img.(type) {
	case *image.Gray:
		return func(x, y int) float64 { return float64(m.GrayAt(x, y).Y) }
	case *image.Gray16:
		return func(x, y int) float64 { return float64(m.Gray16At(x, y).Y) }
	default:
		return func(x, y int) float64 {
			return float64(color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y)
		}
	}
}

// loadNPYStack reads a [height, width, measurements] array
func loadNPYStack(path string) (*models.Stack, error) {
	r, err := gonpy.NewFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open npy file %s: %w", path, err)
	}
	if len(r.Shape) != 3 {
		return nil, fmt.Errorf("%w: npy array has %d dimensions, expected 3", ErrShape, len(r.Shape))
	}

	data, err := readNPYFloat64(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read npy file %s: %w", path, err)
	}

	height, width, n := r.Shape[0], r.Shape[1], r.Shape[2]
	if len(data) != height*width*n {
		return nil, fmt.Errorf("%w: %d values for shape %v", ErrShape, len(data), r.Shape)
	}

	stack := models.NewStack(models.ImageShape{Width: width, Height: height}, n)
	if !r.ColumnMajor {
		// C order already matches the pixel-major stack layout
		copy(stack.Data, data)
		return stack, nil
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			profile := stack.Profile(x, y)
			for k := range profile {
				profile[k] = data[y+height*(x+width*k)]
			}
		}
	}
	return stack, nil
}

// readNPYFloat64 converts the array elements of the common SLI dtypes
func readNPYFloat64(r *gonpy.NpyReader) ([]float64, error) {
	switch r.Dtype {
	case "f8":
		return r.GetFloat64()
	case "f4":
		v, err := r.GetFloat32()
		return widen(v, err)
	case "u2":
		v, err := r.GetUint16()
		return widen(v, err)
	case "u1":
		v, err := r.GetUint8()
		return widen(v, err)
	case "i4":
		v, err := r.GetInt32()
		return widen(v, err)
	default:
		return nil, fmt.Errorf("unsupported npy dtype %q", r.Dtype)
	}
}

func widen[T float32 | uint16 | uint8 | int32](v []T, err error) ([]float64, error) {
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out, nil
}
