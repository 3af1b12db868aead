package imaging

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Crop extracts a rectangular region from an image.
//
// Unlike MeanIntensity, Crop rejects regions that are not fully inside the
// image: a crop is always a deliberate template coordinate, and a partial
// crop would silently feed truncated content to OCR or the review output.
//
// A scale other than 1.0 resamples the cropped region with a Lanczos
// filter. OCR readers pass scale > 1 to upsample small scan zones, which
// measurably improves character recognition on low-resolution scans.
func Crop(img image.Image, r Region, scale float64) (image.Image, error) {
	bounds := img.Bounds()

	if r.X1 < bounds.Min.X || r.Y1 < bounds.Min.Y || r.X2 > bounds.Max.X || r.Y2 > bounds.Max.Y {
		return nil, fmt.Errorf("crop region (%d,%d)-(%d,%d) outside image bounds (%d,%d)-(%d,%d)",
			r.X1, r.Y1, r.X2, r.Y2, bounds.Min.X, bounds.Min.Y, bounds.Max.X, bounds.Max.Y)
	}
	if r.X1 >= r.X2 || r.Y1 >= r.Y2 {
		return nil, fmt.Errorf("invalid crop region: x1 must be < x2, y1 must be < y2")
	}

	cropped := imaging.Crop(img, r.Rect())

	if scale != 1.0 && scale > 0 {
		newWidth := int(float64(cropped.Bounds().Dx()) * scale)
		newHeight := int(float64(cropped.Bounds().Dy()) * scale)
		return imaging.Resize(cropped, newWidth, newHeight, imaging.Lanczos), nil
	}

	return cropped, nil
}

// Save writes an image to disk, inferring the format from the file
// extension. Annotated review copies and OCR scratch crops are written as
// PNG to avoid recompression artifacts.
func Save(img image.Image, path string) error {
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("failed to save image: %w", err)
	}
	return nil
}
