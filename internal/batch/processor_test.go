package batch

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/sheetscan/omr-engine/internal/evaluation"
	"github.com/sheetscan/omr-engine/internal/imaging"
	"github.com/sheetscan/omr-engine/internal/ocr"
	"github.com/sheetscan/omr-engine/internal/omr"
	"github.com/sheetscan/omr-engine/internal/template"
)

// sheetLayout is a two-question MCQ sheet. Bubbles sit at
// q1: A(20,20) B(40,20) C(60,20) D(80,20) and the same columns on
// y=50 for q2.
const sheetLayout = `{
	"pageDimensions": [300, 200],
	"bubbleDimensions": [10, 10],
	"emptyValue": "-",
	"fieldBlocks": {
		"Block1": {
			"origin": [20, 20],
			"bubblesGap": 20,
			"labelsGap": 30,
			"fieldLabels": ["q1..q2"],
			"fieldType": "QTYPE_MCQ4"
		}
	}
}`

func mustTemplate(t *testing.T, src string) *template.Template {
	t.Helper()
	tpl, err := template.Parse([]byte(src))
	if err != nil {
		t.Fatalf("template fixture invalid: %v", err)
	}
	return tpl
}

// stubAccessor serves a fixed sheet and scripted region intensities, so
// pipeline tests control exactly what every bubble reads as.
type stubAccessor struct {
	img         image.Image
	loadErr     error
	means       map[string]float64
	failRegions map[string]bool
	evicted     []string
}

func newStubAccessor(means map[string]float64) *stubAccessor {
	return &stubAccessor{img: whiteSheet(300, 200), means: means}
}

func regionKey(r imaging.Region) string {
	return fmt.Sprintf("%d,%d", r.X1, r.Y1)
}

func (a *stubAccessor) Load(path string) (image.Image, error) {
	if a.loadErr != nil {
		return nil, a.loadErr
	}
	return a.img, nil
}

func (a *stubAccessor) MeanIntensity(img *image.Gray, r imaging.Region) (float64, error) {
	key := regionKey(r)
	if a.failRegions[key] {
		return 0, fmt.Errorf("region %s lies outside the image", key)
	}
	if v, ok := a.means[key]; ok {
		return v, nil
	}
	return 230, nil
}

func (a *stubAccessor) Evict(path string) {
	a.evicted = append(a.evicted, path)
}

func whiteSheet(w, h int) image.Image {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	return img
}

func newTestProcessor(t *testing.T, layout string, acc *stubAccessor) *Processor {
	t.Helper()
	pageCfg := omr.DefaultThresholdConfig()
	pageCfg.DefaultThreshold = 200
	return &Processor{
		Template:    mustTemplate(t, layout),
		Accessor:    acc,
		FieldConfig: omr.DefaultThresholdConfig(),
		PageConfig:  pageCfg,
		Counters:    omr.NewBatchAggregate(),
		Logger:      quietLogger(),
	}
}

func TestProcessReadsMarkedBubbles(t *testing.T) {
	acc := newStubAccessor(map[string]float64{"20,20": 40})
	p := newTestProcessor(t, sheetLayout, acc)

	result, err := p.Process("scans/sheet_01.png", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]string{"q1": "A", "q2": "-"}
	if !reflect.DeepEqual(result.Response, want) {
		t.Errorf("expected response %v, got %v", want, result.Response)
	}
	if result.MultiMarked {
		t.Error("unexpected multi-mark flag")
	}
	if got := result.Fields["q1"].MarkedLabels; !reflect.DeepEqual(got, []string{"A"}) {
		t.Errorf("expected q1 marked [A], got %v", got)
	}
	if result.Fields["q2"].Quality != omr.QualityPoor {
		t.Errorf("flat field should grade poor, got %q", result.Fields["q2"].Quality)
	}
	if result.Quality != (QualitySummary{Excellent: 1, Poor: 1}) {
		t.Errorf("unexpected quality summary: %+v", result.Quality)
	}
	if v := result.GlobalThreshold.Value; v <= 40 || v >= 230 {
		t.Errorf("global threshold should separate the populations, got %v", v)
	}
	if !reflect.DeepEqual(acc.evicted, []string{"scans/sheet_01.png"}) {
		t.Errorf("sheet not evicted after processing: %v", acc.evicted)
	}

	counts := p.Counters.Snapshot()
	if counts[omr.CounterProcessed] != 1 {
		t.Errorf("expected one processed file, got %d", counts[omr.CounterProcessed])
	}
	if counts[omr.CounterMultiMarked] != 0 {
		t.Errorf("expected no multi-marked files, got %d", counts[omr.CounterMultiMarked])
	}
	if counts[omr.QualityCounter(omr.QualityExcellent)] != 1 ||
		counts[omr.QualityCounter(omr.QualityPoor)] != 1 {
		t.Errorf("unexpected quality counters: %v", counts)
	}
}

func TestProcessUnreadableFile(t *testing.T) {
	acc := &stubAccessor{loadErr: errors.New("unsupported image format")}
	p := newTestProcessor(t, sheetLayout, acc)

	result, err := p.Process("bad.bin", 7)
	if err == nil {
		t.Fatal("expected an error for an unreadable file")
	}
	if result != nil {
		t.Errorf("expected no result, got %+v", result)
	}

	var fe *FileError
	if !errors.As(err, &fe) {
		t.Fatalf("expected a FileError, got %T", err)
	}
	if fe.Path != "bad.bin" || fe.Index != 7 {
		t.Errorf("failure lost its origin: %+v", fe)
	}
	if !strings.Contains(fe.Reason, "unsupported") {
		t.Errorf("expected the cause in the reason, got %q", fe.Reason)
	}

	if got := p.Counters.Snapshot(); len(got) != 0 {
		t.Errorf("failed load must not touch counters, got %v", got)
	}
	if len(acc.evicted) != 0 {
		t.Errorf("nothing was cached, nothing to evict: %v", acc.evicted)
	}
}

func TestProcessFieldWithoutMeasurableBubbles(t *testing.T) {
	acc := newStubAccessor(map[string]float64{"20,20": 40})
	acc.failRegions = map[string]bool{
		"20,50": true, "40,50": true, "60,50": true, "80,50": true,
	}
	p := newTestProcessor(t, sheetLayout, acc)

	result, err := p.Process("sheet.png", 0)
	if err != nil {
		t.Fatalf("a degraded field must not fail the sheet: %v", err)
	}
	if got := result.Response["q2"]; got != "-" {
		t.Errorf("expected q2 to read blank, got %q", got)
	}
	fi := result.Fields["q2"]
	if fi.BubbleCount != 0 {
		t.Errorf("expected no measured bubbles, got %d", fi.BubbleCount)
	}
	if fi.Quality != omr.QualityPoor {
		t.Errorf("unmeasurable field should grade poor, got %q", fi.Quality)
	}
	if result.Quality.Poor != 1 {
		t.Errorf("unexpected quality summary: %+v", result.Quality)
	}
}

func TestProcessMultiMarked(t *testing.T) {
	acc := newStubAccessor(map[string]float64{"20,20": 40, "40,20": 45})
	p := newTestProcessor(t, sheetLayout, acc)

	result, err := p.Process("sheet.png", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := result.Response["q1"]; got != "AB" {
		t.Errorf("expected q1 to read AB, got %q", got)
	}
	if !result.MultiMarked {
		t.Error("expected the multi-mark flag")
	}
	if got := p.Counters.Snapshot()[omr.CounterMultiMarked]; got != 1 {
		t.Errorf("expected one multi-marked file, got %d", got)
	}
}

func TestProcessCustomLabels(t *testing.T) {
	const layout = `{
		"pageDimensions": [300, 200],
		"bubbleDimensions": [10, 10],
		"customLabels": {"code": ["q1", "q2"]},
		"fieldBlocks": {
			"Block1": {
				"origin": [20, 20],
				"bubblesGap": 20,
				"labelsGap": 30,
				"fieldLabels": ["q1..q2"],
				"fieldType": "QTYPE_MCQ4"
			}
		}
	}`

	acc := newStubAccessor(map[string]float64{"20,20": 40, "40,50": 40})
	p := newTestProcessor(t, layout, acc)

	result, err := p.Process("sheet.png", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := result.Response["code"]; got != "AB" {
		t.Errorf("expected combined code AB, got %q", got)
	}
}

func TestProcessTextFields(t *testing.T) {
	const layout = `{
		"pageDimensions": [300, 200],
		"bubbleDimensions": [10, 10],
		"emptyValue": "-",
		"fieldBlocks": {
			"Answers": {
				"origin": [20, 20],
				"bubblesGap": 20,
				"labelsGap": 30,
				"fieldLabels": ["q1..q2"],
				"fieldType": "QTYPE_MCQ4"
			},
			"Roll": {
				"origin": [150, 100],
				"fieldLabels": ["roll"],
				"fieldType": "QTYPE_INT",
				"detectionType": "OCR",
				"scanDimensions": [100, 40]
			}
		}
	}`

	t.Run("reads the scan zone", func(t *testing.T) {
		acc := newStubAccessor(map[string]float64{"20,20": 40})
		p := newTestProcessor(t, layout, acc)

		var gotRegion imaging.Region
		var gotOpts ocr.Options
		p.ReadText = func(img image.Image, region imaging.Region, opts ocr.Options) (*ocr.Reading, error) {
			gotRegion, gotOpts = region, opts
			return &ocr.Reading{Text: "4271", Confidence: 0.92}, nil
		}

		result, err := p.Process("sheet.png", 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := result.Response["roll"]; got != "4271" {
			t.Errorf("expected roll 4271, got %q", got)
		}
		if want := (imaging.Region{X1: 150, Y1: 100, X2: 250, Y2: 140}); gotRegion != want {
			t.Errorf("expected scan region %+v, got %+v", want, gotRegion)
		}
		if !gotOpts.DigitsOnly {
			t.Error("digit field type should restrict recognition to digits")
		}
	})

	t.Run("degrades on read failure", func(t *testing.T) {
		acc := newStubAccessor(map[string]float64{"20,20": 40})
		p := newTestProcessor(t, layout, acc)
		p.ReadText = func(img image.Image, region imaging.Region, opts ocr.Options) (*ocr.Reading, error) {
			return nil, errors.New("tesseract not installed")
		}

		result, err := p.Process("sheet.png", 0)
		if err != nil {
			t.Fatalf("a failed text read must not fail the sheet: %v", err)
		}
		if got, ok := result.Response["roll"]; !ok || got != "" {
			t.Errorf("expected an empty roll reading, got %q (present %v)", got, ok)
		}
		if got := result.Response["q1"]; got != "A" {
			t.Errorf("bubble fields should be unaffected, got q1 %q", got)
		}
	})
}

// scoredLayout keeps the default empty value so unmarked fields read as
// empty strings, which is what the answer key treats as unmarked.
const scoredLayout = `{
	"pageDimensions": [300, 200],
	"bubbleDimensions": [10, 10],
	"fieldBlocks": {
		"Block1": {
			"origin": [20, 20],
			"bubblesGap": 20,
			"labelsGap": 30,
			"fieldLabels": ["q1..q2"],
			"fieldType": "QTYPE_MCQ4"
		}
	}
}`

func scoringKey(t *testing.T) *evaluation.Key {
	t.Helper()
	k, err := evaluation.Parse([]byte(`{
		"options": {
			"questions_in_order": ["q1", "q2"],
			"answers_in_order": ["A", "B"]
		},
		"marking_schemes": {
			"DEFAULT": {"correct": 3, "incorrect": -1, "unmarked": 0}
		}
	}`))
	if err != nil {
		t.Fatalf("answer key fixture invalid: %v", err)
	}
	return k
}

func TestProcessScoresAgainstKey(t *testing.T) {
	acc := newStubAccessor(map[string]float64{"20,20": 40})
	p := newTestProcessor(t, scoredLayout, acc)
	p.Key = scoringKey(t)

	result, err := p.Process("sheet.png", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Score == nil {
		t.Fatal("expected a score with a key configured")
	}
	if result.Score.Total != 3 {
		t.Errorf("expected total 3, got %v", result.Score.Total)
	}
	if result.Score.Correct != 1 || result.Score.Unmarked != 1 {
		t.Errorf("unexpected verdict counts: %+v", result.Score)
	}
	if got := result.Score.Questions[0].Verdict; got != evaluation.VerdictCorrect {
		t.Errorf("expected q1 correct, got %q", got)
	}
}

func TestProcessWritesReviewCopy(t *testing.T) {
	// q1 reads B against answer A, q2 reads B against answer B. With a
	// blue marked palette the verdict colors are unambiguous: red on the
	// wrong answer, green on the right one, gray on untouched bubbles.
	acc := newStubAccessor(map[string]float64{"40,20": 40, "40,50": 40})
	p := newTestProcessor(t, scoredLayout, acc)
	p.Key = scoringKey(t)

	dir := t.TempDir()
	p.Annotate = &AnnotateOptions{
		Dir: dir,
		Palette: imaging.Palette{
			Marked:   "#0000ff",
			Unmarked: "#c8c8c8",
			InDoubt:  "#ffaa00",
			Text:     "#1a1a1a",
		},
	}

	result, err := p.Process("scans/sheet_01.png", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := filepath.Join(dir, "sheet_01.png")
	if result.AnnotatedPath != out {
		t.Errorf("expected annotated path %q, got %q", out, result.AnnotatedPath)
	}
	if r, g, b := pngPixel(t, out, 40, 20); r != 255 || g != 0 || b != 0 {
		t.Errorf("wrong answer should outline red, got #%02x%02x%02x", r, g, b)
	}
	if r, g, b := pngPixel(t, out, 40, 50); r != 0 || g != 255 || b != 0 {
		t.Errorf("right answer should outline green, got #%02x%02x%02x", r, g, b)
	}
	if r, g, b := pngPixel(t, out, 20, 20); r != 200 || g != 200 || b != 200 {
		t.Errorf("untouched bubble should outline gray, got #%02x%02x%02x", r, g, b)
	}
}

func pngPixel(t *testing.T, path string, x, y int) (r, g, b uint8) {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("review copy missing: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("review copy unreadable: %v", err)
	}
	pr, pg, pb, _ := img.At(x, y).RGBA()
	return uint8(pr >> 8), uint8(pg >> 8), uint8(pb >> 8)
}

func TestProcessRunsPreprocessorChain(t *testing.T) {
	// A blank sheet gives the geometric steps nothing to find; they must
	// log and pass the image through. The unknown name must be skipped.
	const layout = `{
		"pageDimensions": [300, 200],
		"bubbleDimensions": [10, 10],
		"emptyValue": "-",
		"preProcessors": [
			{"name": "CropPage"},
			{"name": "CropOnMarkers"},
			{"name": "GaussianBlur", "options": {"radius": 1}},
			{"name": "Levels", "options": {"gamma": 0.8}},
			{"name": "Deskew"},
			{"name": "Contrast"}
		],
		"fieldBlocks": {
			"Block1": {
				"origin": [20, 20],
				"bubblesGap": 20,
				"labelsGap": 30,
				"fieldLabels": ["q1..q2"],
				"fieldType": "QTYPE_MCQ4"
			}
		}
	}`

	acc := newStubAccessor(map[string]float64{"20,20": 40})
	p := newTestProcessor(t, layout, acc)

	result, err := p.Process("sheet.png", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := result.Response["q1"]; got != "A" {
		t.Errorf("expected q1 to read A, got %q", got)
	}
}

func TestAnnotatedPath(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"scans/sheet_01.png", "sheet_01.png"},
		{"batch/page.pdf", "page.png"},
		{"plain", "plain.png"},
	}
	for _, tt := range tests {
		if got := annotatedPath("out", tt.input); got != filepath.Join("out", tt.want) {
			t.Errorf("annotatedPath(out, %q) = %q, want %q", tt.input, got, filepath.Join("out", tt.want))
		}
	}
}

func TestMarkerSize(t *testing.T) {
	tests := []struct {
		name  string
		opts  map[string]any
		width int
		want  int
	}{
		{"explicit int size", map[string]any{"markerSize": 40}, 600, 40},
		{"explicit float size", map[string]any{"markerSize": 40.0}, 600, 40},
		{"width ratio", map[string]any{"sheetToMarkerWidthRatio": 10.0}, 600, 60},
		{"default ratio", nil, 680, 40},
		{"bad ratio falls back", map[string]any{"sheetToMarkerWidthRatio": -1.0}, 340, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := markerSize(tt.opts, tt.width); got != tt.want {
				t.Errorf("markerSize(%v, %d) = %d, want %d", tt.opts, tt.width, got, tt.want)
			}
		})
	}
}
