package imaging

import (
	"fmt"
	"image"
	"image/color"

	"github.com/anthonynsimon/bild/effect"
)

// Region represents a rectangular region within an image.
//
// Coordinates follow the standard image convention:
//   - (X1, Y1) is the top-left corner (inclusive)
//   - (X2, Y2) is the bottom-right corner (exclusive)
//   - Width = X2 - X1, Height = Y2 - Y1
type Region struct {
	X1 int // Left edge X coordinate (inclusive)
	Y1 int // Top edge Y coordinate (inclusive)
	X2 int // Right edge X coordinate (exclusive)
	Y2 int // Bottom edge Y coordinate (exclusive)
}

// Rect converts the region to a standard image.Rectangle.
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X1, r.Y1, r.X2, r.Y2)
}

// Grayscale converts an image to 8-bit grayscale.
//
// Images that are already *image.Gray are returned unchanged. Everything
// else goes through a luminance conversion; after it, a pixel's gray value
// equals the red channel of the luminance image, which is what the
// extraction below reads.
func Grayscale(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}

	lum := effect.Grayscale(img)
	bounds := lum.Bounds()
	gray := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			gray.SetGray(x, y, color.Gray{Y: lum.RGBAAt(x, y).R})
		}
	}
	return gray
}

// MeanIntensity returns the mean gray value of the pixels inside a region.
//
// The region is clamped to the image bounds before sampling; a region that
// merely overhangs an edge is measured over its visible part. An error is
// returned only when the clamped region is empty, i.e. the region lies fully
// outside the image or has non-positive extent.
//
// The result is in [0, 255]: 0 for solid ink, 255 for blank paper.
func MeanIntensity(img *image.Gray, r Region) (float64, error) {
	bounds := img.Bounds()
	x1 := clamp(r.X1, bounds.Min.X, bounds.Max.X)
	y1 := clamp(r.Y1, bounds.Min.Y, bounds.Max.Y)
	x2 := clamp(r.X2, bounds.Min.X, bounds.Max.X)
	y2 := clamp(r.Y2, bounds.Min.Y, bounds.Max.Y)

	if x1 >= x2 || y1 >= y2 {
		return 0, fmt.Errorf("region (%d,%d)-(%d,%d) outside image bounds (%d,%d)-(%d,%d)",
			r.X1, r.Y1, r.X2, r.Y2, bounds.Min.X, bounds.Min.Y, bounds.Max.X, bounds.Max.Y)
	}

	var sum uint64
	for y := y1; y < y2; y++ {
		for x := x1; x < x2; x++ {
			sum += uint64(img.GrayAt(x, y).Y)
		}
	}

	count := (x2 - x1) * (y2 - y1)
	return float64(sum) / float64(count), nil
}

// clamp constrains an integer value to the range [min, max].
func clamp(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
