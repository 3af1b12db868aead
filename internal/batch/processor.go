package batch

import (
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/sheetscan/omr-engine/internal/align"
	"github.com/sheetscan/omr-engine/internal/evaluation"
	"github.com/sheetscan/omr-engine/internal/imaging"
	"github.com/sheetscan/omr-engine/internal/ocr"
	"github.com/sheetscan/omr-engine/internal/omr"
	"github.com/sheetscan/omr-engine/internal/template"
)

// defaultGamma is the Levels correction for underexposed scans when
// neither the template nor the configuration names one.
const defaultGamma = 0.7

// defaultMarkerRatio scales the expected reference-marker edge off the
// scan width when a CropOnMarkers step gives no explicit size.
const defaultMarkerRatio = 17.0

// ImageAccessor is the imaging collaborator boundary: loading sheets
// and measuring bubble regions on them.
type ImageAccessor interface {
	Load(path string) (image.Image, error)

	// MeanIntensity averages the pixels of one region on the 0-255
	// grayscale.
	MeanIntensity(img *image.Gray, region imaging.Region) (float64, error)

	// Evict releases any cached copy of a finished sheet, keeping batch
	// memory proportional to the worker count rather than the batch.
	Evict(path string)
}

// CacheAccessor is the production ImageAccessor, backed by the image
// cache and grayscale region measurement.
type CacheAccessor struct {
	Cache *imaging.ImageCache
}

func (c CacheAccessor) Load(path string) (image.Image, error) {
	return c.Cache.Load(path)
}

func (c CacheAccessor) MeanIntensity(img *image.Gray, region imaging.Region) (float64, error) {
	return imaging.MeanIntensity(img, region)
}

func (c CacheAccessor) Evict(path string) {
	c.Cache.Evict(path)
}

// TextReader recognizes one text scan zone. The default is
// ocr.ReadRegion; tests substitute their own to run without a
// recognition engine installed.
type TextReader func(img image.Image, region imaging.Region, opts ocr.Options) (*ocr.Reading, error)

// AnnotateOptions make the processor write a review copy per sheet.
type AnnotateOptions struct {
	// Dir receives one annotated PNG per processed sheet.
	Dir string

	// Palette colors the outlines. The zero value means the default
	// review palette.
	Palette imaging.Palette
}

// Processor runs the full per-sheet pipeline. One Processor is shared
// by all workers of a batch; per-sheet state lives in locals and a
// fresh aggregate per call, so concurrent Process calls never touch the
// same mutable data.
type Processor struct {
	Template *template.Template
	Accessor ImageAccessor

	// FieldConfig tunes per-field thresholding. PageConfig tunes the
	// file-wide fallback derivation, whose default threshold sits at
	// page level rather than mid-scale.
	FieldConfig omr.ThresholdConfig
	PageConfig  omr.ThresholdConfig

	// ConfidenceMetrics enables the per-bubble local-versus-global
	// disparity accounting on every field.
	ConfidenceMetrics bool

	// Counters receives the success-side batch counters. Required.
	Counters *omr.BatchAggregate

	// Gamma overrides the Levels default correction. Zero keeps it.
	Gamma float64

	// Key, when present, scores each sheet's responses.
	Key *evaluation.Key

	// ReadText recognizes text fields. Nil means ocr.ReadRegion.
	ReadText TextReader

	// Annotate, when set, writes review copies next to the results.
	Annotate *AnnotateOptions

	Logger *slog.Logger
}

// Validate reports contract violations that must stop a batch before
// any file is dispatched.
func (p *Processor) Validate() error {
	if p.Template == nil {
		return fmt.Errorf("processor needs a template")
	}
	if p.Accessor == nil {
		return fmt.Errorf("processor needs an image accessor")
	}
	if p.Counters == nil {
		return fmt.Errorf("processor needs a batch counter store")
	}
	return nil
}

// Process runs one sheet through the pipeline. The returned error means
// the sheet could not be read at all; every downstream degradation,
// from blank fields to failed text reads, still produces a usable
// FileResult.
func (p *Processor) Process(path string, index int) (*FileResult, error) {
	log := p.logger().With("file", filepath.Base(path), "index", index)

	img, err := p.Accessor.Load(path)
	if err != nil {
		return nil, &FileError{Path: path, Index: index, Reason: err.Error()}
	}
	defer p.Accessor.Evict(path)

	gray := p.prepare(img, log)

	agg := omr.NewFileAggregate(p.PageConfig)
	bw, bh := p.Template.BubbleSize()
	var textFields []template.Field

	for _, field := range p.Template.Fields() {
		if field.DetectionType == template.DetectOCR {
			textFields = append(textFields, field)
			continue
		}
		agg.Record(field.Label, p.measure(gray, field, bw, bh, log))
	}

	fallback := agg.GlobalThreshold()
	interpreter := &omr.FieldInterpreter{
		Config:            p.FieldConfig,
		ConfidenceMetrics: p.ConfidenceMetrics,
		Logger:            log,
	}

	result := &FileResult{
		InputIndex:      index,
		FilePath:        path,
		Response:        make(map[string]string),
		GlobalThreshold: fallback,
	}

	for _, detection := range agg.Fields() {
		fi := interpreter.Interpret(detection.FieldID, detection.Samples, fallback.Value)
		agg.SetInterpretation(detection.FieldID, fi)
		result.Response[detection.FieldID] = fi.Response(p.Template.EmptyValue)
		result.Quality.Tally(fi.Quality)
		if fi.IsMultiMarked {
			result.MultiMarked = true
		}
	}
	result.Fields = agg.Interpretations()

	for custom, parts := range p.Template.CustomLabels {
		var joined strings.Builder
		for _, part := range parts {
			joined.WriteString(result.Response[part])
		}
		result.Response[custom] = joined.String()
	}

	p.readTextFields(gray, textFields, result, log)

	if p.Key != nil {
		result.Score = p.Key.Evaluate(result.Response)
	}

	p.Counters.Increment(omr.CounterProcessed)
	if result.MultiMarked {
		p.Counters.Increment(omr.CounterMultiMarked)
	}
	p.tallyQuality(result.Quality)

	if p.Annotate != nil {
		p.writeReviewCopy(gray, agg, result, log)
	}

	return result, nil
}

// prepare runs the template's preprocessor chain at scan resolution,
// then resizes onto the template page. Geometric steps are best-effort:
// a correction that cannot find its structure logs and leaves the image
// as it was.
func (p *Processor) prepare(img image.Image, log *slog.Logger) *image.Gray {
	pageW, pageH := p.Template.PageSize()
	opts := imaging.PrepareOptions{PageWidth: pageW, PageHeight: pageH}

	working := img
	for _, step := range p.Template.PreProcessors {
		switch step.Name {
		case "CropPage":
			cropped, crop, ok := align.CropPage(imaging.Grayscale(working))
			if !ok {
				log.Warn("page crop found no printed area")
				continue
			}
			log.Debug("page cropped", "bounds", crop.Bounds, "ink_fraction", crop.InkFraction)
			working = cropped
		case "CropOnMarkers":
			gray := imaging.Grayscale(working)
			size := markerSize(step.Options, gray.Bounds().Dx())
			markers, ok := align.FindMarkers(gray, size)
			if !ok {
				log.Warn("reference markers not found", "expected_size", size)
				continue
			}
			working = align.CropToMarkers(gray, markers)
		case "GaussianBlur":
			working = imaging.GaussianBlur(imaging.Grayscale(working), optFloat(step.Options, "radius", 1))
		case "Levels":
			opts.Gamma = optFloat(step.Options, "gamma", p.gammaDefault())
			opts.Normalize = true
		case "Deskew":
			gray := imaging.Grayscale(working)
			if angle := align.DetectSkew(gray); angle != 0 {
				log.Debug("skew detected", "degrees", angle)
				working = align.Deskew(working, angle)
			}
		default:
			log.Warn("unknown preprocessor", "name", step.Name)
		}
	}

	return imaging.Prepare(working, opts)
}

// measure samples every bubble region of one field. A region the
// accessor rejects is logged and dropped rather than failing the sheet,
// so a field with no measurable bubbles degenerates to a blank reading.
func (p *Processor) measure(gray *image.Gray, field template.Field, bw, bh int, log *slog.Logger) []omr.BubbleSample {
	samples := make([]omr.BubbleSample, 0, len(field.Bubbles))
	for _, b := range field.Bubbles {
		region := imaging.Region{X1: b.X, Y1: b.Y, X2: b.X + bw, Y2: b.Y + bh}
		mean, err := p.Accessor.MeanIntensity(gray, region)
		if err != nil {
			log.Warn("bubble region not measurable",
				"field", field.Label, "bubble", b.Value, "error", err)
			continue
		}
		samples = append(samples, omr.BubbleSample{
			MeanIntensity: mean,
			Bubble:        omr.BubbleRef{Value: b.Value, X: b.X, Y: b.Y},
		})
	}
	return samples
}

// readTextFields fills the response entries for OCR scan zones. A zone
// that cannot be read degrades to an empty reading; the sheet stands.
func (p *Processor) readTextFields(gray *image.Gray, fields []template.Field, result *FileResult, log *slog.Logger) {
	if len(fields) == 0 {
		return
	}
	read := p.ReadText
	if read == nil {
		read = ocr.ReadRegion
	}

	for _, field := range fields {
		x, y, w, h := field.Scan[0], field.Scan[1], field.Scan[2], field.Scan[3]
		region := imaging.Region{X1: x, Y1: y, X2: x + w, Y2: y + h}
		opts := ocr.Options{
			DigitsOnly: template.DigitsFieldType(p.Template.FieldBlocks[field.Block].FieldType),
		}

		reading, err := read(gray, region, opts)
		if err != nil {
			log.Warn("text field not readable", "field", field.Label, "error", err)
			result.Response[field.Label] = ""
			continue
		}
		result.Response[field.Label] = reading.Text
	}
}

// writeReviewCopy renders the annotated sheet: every bubble outlined by
// its state, doubtful bubbles flagged, verdict colors when a score
// exists, and a header stamp. Review output is best-effort; a write
// failure logs and the result stands.
func (p *Processor) writeReviewCopy(gray *image.Gray, agg *omr.FileAggregate, result *FileResult, log *slog.Logger) {
	bw, bh := p.Template.BubbleSize()

	verdicts := make(map[string]string)
	if result.Score != nil {
		for _, q := range result.Score.Questions {
			verdicts[q.Label] = q.Verdict
		}
	}
	detections := make(map[string][]omr.BubbleSample)
	for _, d := range agg.Fields() {
		detections[d.FieldID] = d.Samples
	}

	var marks []imaging.BubbleMark
	for _, field := range p.Template.Fields() {
		if field.DetectionType != template.DetectBubbles {
			continue
		}
		fi, ok := agg.Interpretation(field.Label)
		if !ok {
			continue
		}
		markedSet := make(map[string]bool, len(fi.MarkedLabels))
		for _, v := range fi.MarkedLabels {
			markedSet[v] = true
		}
		verdictColor := evaluation.VerdictColor(verdicts[field.Label])

		for _, b := range field.Bubbles {
			mark := imaging.BubbleMark{
				Region: imaging.Region{X1: b.X, Y1: b.Y, X2: b.X + bw, Y2: b.Y + bh},
				Marked: markedSet[b.Value],
			}
			if mark.Marked {
				mark.Label = b.Value
			}
			if p.ConfidenceMetrics {
				mark.InDoubt = p.bubbleInDoubt(detections[field.Label], b, fi.Threshold.Value, result.GlobalThreshold.Value)
			}
			if verdictColor != "" && mark.Marked && !mark.InDoubt {
				mark.Color = verdictColor
			}
			marks = append(marks, mark)
		}
	}

	stamp := filepath.Base(result.FilePath)
	if result.Score != nil {
		stamp = fmt.Sprintf("%s  %s  %s", stamp, result.Score, result.Score.Summary())
	} else {
		stamp = fmt.Sprintf("%s  global=%.1f", stamp, result.GlobalThreshold.Value)
	}

	pal := p.Annotate.Palette
	if pal == (imaging.Palette{}) {
		pal = imaging.DefaultPalette()
	}

	annotated, err := imaging.Annotate(gray, marks, stamp, pal)
	if err != nil {
		log.Warn("annotation failed", "error", err)
		return
	}
	out := annotatedPath(p.Annotate.Dir, result.FilePath)
	if err := imaging.Save(annotated, out); err != nil {
		log.Warn("failed to save review copy", "path", out, "error", err)
		return
	}
	result.AnnotatedPath = out
	log.Debug("review copy written", "path", out)
}

// bubbleInDoubt reports whether one bubble's verdict flips between the
// field's local threshold and the file-wide fallback.
func (p *Processor) bubbleInDoubt(samples []omr.BubbleSample, b template.Bubble, local, global float64) bool {
	for _, s := range samples {
		if s.Bubble.Value == b.Value && s.Bubble.X == b.X && s.Bubble.Y == b.Y {
			return (s.MeanIntensity < local) != (s.MeanIntensity < global)
		}
	}
	return false
}

func (p *Processor) tallyQuality(q QualitySummary) {
	p.Counters.Add(omr.QualityCounter(omr.QualityExcellent), q.Excellent)
	p.Counters.Add(omr.QualityCounter(omr.QualityGood), q.Good)
	p.Counters.Add(omr.QualityCounter(omr.QualityAcceptable), q.Acceptable)
	p.Counters.Add(omr.QualityCounter(omr.QualityPoor), q.Poor)
}

func (p *Processor) gammaDefault() float64 {
	if p.Gamma > 0 {
		return p.Gamma
	}
	return defaultGamma
}

func (p *Processor) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// annotatedPath maps an input sheet to its review copy: same base name,
// always PNG.
func annotatedPath(dir, input string) string {
	base := filepath.Base(input)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, base+".png")
}

// markerSize resolves the expected marker edge length: an explicit
// markerSize option wins, otherwise the sheet-to-marker width ratio
// scales it off the scan width.
func markerSize(opts map[string]any, width int) int {
	if v := optFloat(opts, "markerSize", 0); v > 0 {
		return int(v)
	}
	ratio := optFloat(opts, "sheetToMarkerWidthRatio", defaultMarkerRatio)
	if ratio <= 0 {
		ratio = defaultMarkerRatio
	}
	return int(float64(width) / ratio)
}

// optFloat reads a numeric preprocessor option. JSON numbers decode as
// float64; ints cover values built in code.
func optFloat(opts map[string]any, key string, def float64) float64 {
	if v, ok := opts[key]; ok {
		switch n := v.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		}
	}
	return def
}
