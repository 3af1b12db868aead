package ocr

import (
	"fmt"
	"image"
	"os"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/sheetscan/omr-engine/internal/imaging"
)

// digitWhitelist restricts recognition to the characters a written roll
// number can contain.
const digitWhitelist = "0123456789"

// defaultUpscale is the resampling factor applied to scan zones before
// recognition. Sheet templates are laid out at bubble-measurement
// resolution, which is coarser than Tesseract likes.
const defaultUpscale = 2.0

// Reading is the recognized content of a single scan zone.
type Reading struct {
	// Text is the recognized content collapsed to one trimmed line.
	Text string `json:"text"`

	// Confidence is the mean word confidence (0.0 to 1.0), or zero when
	// the engine could not report per-word confidences.
	Confidence float64 `json:"confidence"`
}

// Options tune how a scan zone is recognized.
type Options struct {
	// DigitsOnly restricts the engine to 0-9, for roll number fields.
	DigitsOnly bool

	// Language is the Tesseract language code. Empty means "eng".
	Language string

	// Upscale resamples the cropped zone by this factor before
	// recognition. Zero or negative means the default factor.
	Upscale float64
}

// ReadRegion recognizes the text inside one scan zone of a sheet.
//
// The zone is cropped out of the sheet, upsampled, written to a
// temporary PNG (Tesseract reads files, not memory), and recognized
// with a fresh client. The temporary file is removed before returning.
//
// Errors cover cropping, temp file I/O, and engine failures such as
// missing language data. A failed read leaves the rest of the sheet
// untouched; callers record the field as unread and continue.
func ReadRegion(img image.Image, region imaging.Region, opts Options) (*Reading, error) {
	scale := opts.Upscale
	if scale <= 0 {
		scale = defaultUpscale
	}
	cropped, err := imaging.Crop(img, region, scale)
	if err != nil {
		return nil, fmt.Errorf("failed to crop scan zone: %w", err)
	}

	tmpFile, err := os.CreateTemp("", "omr-ocr-*.png")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	if err := imaging.Save(cropped, tmpPath); err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	lang := opts.Language
	if lang == "" {
		lang = "eng"
	}
	if err := client.SetLanguage(lang); err != nil {
		return nil, fmt.Errorf("failed to set language: %w", err)
	}
	if opts.DigitsOnly {
		if err := client.SetWhitelist(digitWhitelist); err != nil {
			return nil, fmt.Errorf("failed to set whitelist: %w", err)
		}
	}
	if err := client.SetImage(tmpPath); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("OCR failed: %w", err)
	}

	reading := &Reading{Text: normalize(text)}

	// Word confidences are diagnostic; keep the text even if the engine
	// cannot produce them.
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return reading, nil
	}
	sum := 0.0
	count := 0
	for _, box := range boxes {
		if box.Word == "" {
			continue
		}
		sum += float64(box.Confidence)
		count++
	}
	if count > 0 {
		reading.Confidence = sum / float64(count) / 100.0
	}
	return reading, nil
}

// normalize collapses line breaks and runs of whitespace into single
// spaces. A scan zone holds one field value, so internal layout from
// the engine is noise.
func normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
