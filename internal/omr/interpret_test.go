package omr

import (
	"io"
	"log/slog"
	"math"
	"reflect"
	"testing"
)

func quietInterpreter() *FieldInterpreter {
	return &FieldInterpreter{
		Config: DefaultThresholdConfig(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func mcqSamples(means ...float64) []BubbleSample {
	labels := []string{"A", "B", "C", "D", "E"}
	samples := make([]BubbleSample, len(means))
	for i, m := range means {
		samples[i] = BubbleSample{
			MeanIntensity: m,
			Bubble:        BubbleRef{Value: labels[i], X: i * 30, Y: 0},
		}
	}
	return samples
}

func TestInterpretMultiMarking(t *testing.T) {
	it := quietInterpreter()

	tests := []struct {
		name       string
		means      []float64
		wantMarked []string
		wantMulti  bool
	}{
		{"two dark bubbles", []float64{50, 55, 200}, []string{"A", "B"}, true},
		{"one dark bubble", []float64{50, 200, 205}, []string{"A"}, false},
		{"no dark bubbles", []float64{210, 215, 220}, []string{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fi := it.Interpret("q1", mcqSamples(tt.means...), 150)
			if !reflect.DeepEqual(fi.MarkedLabels, tt.wantMarked) {
				t.Errorf("expected marked labels %v, got %v", tt.wantMarked, fi.MarkedLabels)
			}
			if fi.IsMultiMarked != tt.wantMulti {
				t.Errorf("expected multi-marked %v, got %v", tt.wantMulti, fi.IsMultiMarked)
			}
			if fi.IsMultiMarked != (len(fi.MarkedLabels) > 1) {
				t.Error("multi-marked flag disagrees with marked label count")
			}
		})
	}
}

func TestInterpretSingleMark(t *testing.T) {
	it := quietInterpreter()

	fi := it.Interpret("q7", mcqSamples(40, 210, 215, 220), 150)

	if math.Abs(fi.Threshold.Value-127.5) > 0.001 {
		t.Errorf("expected threshold 127.5, got %v", fi.Threshold.Value)
	}
	if !reflect.DeepEqual(fi.MarkedLabels, []string{"A"}) {
		t.Errorf("expected marked labels [A], got %v", fi.MarkedLabels)
	}
	if fi.IsMultiMarked {
		t.Error("unexpected multi-marked flag")
	}
	if fi.Quality != QualityExcellent {
		t.Errorf("expected excellent quality, got %q", fi.Quality)
	}
	if fi.BubbleCount != 4 {
		t.Errorf("expected bubble count 4, got %d", fi.BubbleCount)
	}
}

func TestInterpretNarrowFieldFallsBack(t *testing.T) {
	it := quietInterpreter()

	// Two near-identical samples must not split at their midpoint; the
	// file-wide threshold decides instead. At 150, both bubbles read as
	// marked is wrong either way, so verify the threshold source.
	fi := it.Interpret("q3", mcqSamples(118, 122), 150)

	if !fi.Threshold.FallbackUsed {
		t.Error("expected fallback to the file-wide threshold")
	}
	if fi.Threshold.Value != 150 {
		t.Errorf("expected threshold 150, got %v", fi.Threshold.Value)
	}
	if fi.Threshold.Method != MethodLocalFallbackToGlobal {
		t.Errorf("expected method %q, got %q", MethodLocalFallbackToGlobal, fi.Threshold.Method)
	}
}

func TestInterpretIdempotent(t *testing.T) {
	it := quietInterpreter()
	samples := mcqSamples(50, 55, 200, 210)

	first := it.Interpret("q2", samples, 140)
	second := it.Interpret("q2", samples, 140)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("interpretation changed between identical runs:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestInterpretEmptyField(t *testing.T) {
	it := quietInterpreter()

	fi := it.Interpret("q9", nil, 150)

	if len(fi.MarkedLabels) != 0 {
		t.Errorf("expected no marked labels, got %v", fi.MarkedLabels)
	}
	if fi.Quality != QualityPoor {
		t.Errorf("expected poor quality, got %q", fi.Quality)
	}
	if !fi.Threshold.FallbackUsed {
		t.Error("expected fallback threshold for an empty field")
	}
	if fi.IsMultiMarked {
		t.Error("unexpected multi-marked flag on an empty field")
	}
}

func TestInterpretBubblesInDoubt(t *testing.T) {
	it := quietInterpreter()
	it.ConfidenceMetrics = true

	// Local threshold lands at 127.5; bubble B at 180 flips verdict
	// against a file-wide threshold of 200.
	fi := it.Interpret("q4", mcqSamples(40, 180, 215, 220), 200)

	if math.Abs(fi.Threshold.Value-127.5) > 0.5 {
		t.Fatalf("unexpected threshold %v", fi.Threshold.Value)
	}
	if fi.BubblesInDoubt != 1 {
		t.Errorf("expected 1 bubble in doubt, got %d", fi.BubblesInDoubt)
	}

	it.ConfidenceMetrics = false
	fi = it.Interpret("q4", mcqSamples(40, 180, 215, 220), 200)
	if fi.BubblesInDoubt != 0 {
		t.Errorf("expected metrics to be skipped, got %d bubbles in doubt", fi.BubblesInDoubt)
	}
}

func TestResponse(t *testing.T) {
	tests := []struct {
		name     string
		fi       FieldInterpretation
		empty    string
		expected string
	}{
		{"single mark", FieldInterpretation{MarkedLabels: []string{"B"}, BubbleCount: 4}, "", "B"},
		{"multi mark concatenates", FieldInterpretation{MarkedLabels: []string{"A", "C"}, BubbleCount: 4}, "", "AC"},
		{"no marks", FieldInterpretation{MarkedLabels: []string{}, BubbleCount: 4}, "-", "-"},
		{"every bubble marked", FieldInterpretation{MarkedLabels: []string{"A", "B", "C", "D"}, BubbleCount: 4}, "-", "-"},
		{"digit field", FieldInterpretation{MarkedLabels: []string{"7"}, BubbleCount: 10}, "", "7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fi.Response(tt.empty); got != tt.expected {
				t.Errorf("expected response %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestIsConfident(t *testing.T) {
	fi := FieldInterpretation{Threshold: ThresholdResult{Confidence: 0.71}}
	if !fi.IsConfident() {
		t.Error("expected confidence above 0.7 to be confident")
	}
	fi.Threshold.Confidence = 0.7
	if fi.IsConfident() {
		t.Error("expected confidence of exactly 0.7 to not be confident")
	}
}
