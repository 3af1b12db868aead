package imaging

import (
	"image"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/histogram"
	"github.com/disintegration/imaging"
)

// PrepareOptions controls how a raw scan is turned into the working
// grayscale page.
type PrepareOptions struct {
	// PageWidth and PageHeight are the template's page dimensions. When both
	// are positive the scan is resized to exactly this size so that bubble
	// coordinates from the template line up with pixels. Zero disables the
	// resize.
	PageWidth  int
	PageHeight int

	// Gamma applies gamma correction before grayscale conversion. Values
	// below 1 darken mid-tones, which lifts faint pencil marks out of the
	// paper background on under-exposed scans. 0 or 1 disables the step.
	Gamma float64

	// Normalize stretches the gray histogram to the full 0..255 range after
	// conversion, so that lighting differences between scanner batches do
	// not shift the absolute intensity scale the thresholds operate on.
	Normalize bool
}

// Prepare converts a raw scan into the grayscale page that bubble
// measurement runs on: resize to the template's dimensions, optional gamma
// correction, grayscale conversion, optional min-max normalization.
func Prepare(img image.Image, opts PrepareOptions) *image.Gray {
	work := img
	if opts.PageWidth > 0 && opts.PageHeight > 0 {
		work = imaging.Resize(work, opts.PageWidth, opts.PageHeight, imaging.Lanczos)
	}
	if opts.Gamma > 0 && opts.Gamma != 1 {
		work = adjust.Gamma(work, opts.Gamma)
	}

	gray := Grayscale(work)
	if opts.Normalize {
		gray = Normalize(gray)
	}
	return gray
}

// Normalize linearly stretches the gray histogram so the darkest pixel maps
// to 0 and the brightest to 255.
//
// A flat image (single gray value) is returned as an unmodified copy, since
// there is no range to stretch.
func Normalize(img *image.Gray) *image.Gray {
	hist := histogram.NewRGBAHistogram(img).R

	lo, hi := -1, 0
	for v, count := range hist.Bins {
		if count == 0 {
			continue
		}
		if lo < 0 {
			lo = v
		}
		hi = v
	}

	bounds := img.Bounds()
	out := image.NewGray(bounds)
	if lo < 0 || hi == lo {
		copyGray(out, img)
		return out
	}

	scale := 255.0 / float64(hi-lo)
	var lut [256]uint8
	for v := 0; v < 256; v++ {
		stretched := (float64(v) - float64(lo)) * scale
		if stretched < 0 {
			stretched = 0
		} else if stretched > 255 {
			stretched = 255
		}
		lut[v] = uint8(stretched + 0.5)
	}

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			out.Pix[out.PixOffset(x, y)] = lut[img.GrayAt(x, y).Y]
		}
	}
	return out
}

// GaussianBlur smooths a grayscale page with the given radius in pixels.
//
// Templates for noisy scanner hardware enable this as a preprocessing step
// to keep paper grain from inflating per-bubble standard deviations. A
// non-positive radius returns the input unchanged.
func GaussianBlur(img *image.Gray, radius float64) *image.Gray {
	if radius <= 0 {
		return img
	}
	return Grayscale(blur.Gaussian(img, radius))
}

func copyGray(dst, src *image.Gray) {
	bounds := src.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			dst.Pix[dst.PixOffset(x, y)] = src.GrayAt(x, y).Y
		}
	}
}
