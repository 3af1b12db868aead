package omr

import (
	"math"
	"testing"
)

func TestQualityForStdDev(t *testing.T) {
	tests := []struct {
		name     string
		std      float64
		expected ScanQuality
	}{
		{"wide spread", 80, QualityExcellent},
		{"just above excellent bar", 50.1, QualityExcellent},
		{"good spread", 45, QualityGood},
		{"acceptable spread", 20, QualityAcceptable},
		{"narrow spread", 10, QualityPoor},
		{"zero spread", 0, QualityPoor},
		{"excellent bar is exclusive", 50, QualityGood},
		{"acceptable bar is exclusive", 15, QualityPoor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := QualityForStdDev(tt.std); got != tt.expected {
				t.Errorf("expected quality %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestFieldDetectionDerived(t *testing.T) {
	d := FieldDetection{
		FieldID: "q1",
		Samples: []BubbleSample{
			{MeanIntensity: 40, Bubble: BubbleRef{Value: "A"}},
			{MeanIntensity: 210, Bubble: BubbleRef{Value: "B"}},
			{MeanIntensity: 215, Bubble: BubbleRef{Value: "C"}},
			{MeanIntensity: 220, Bubble: BubbleRef{Value: "D"}},
		},
	}

	values := d.Values()
	if len(values) != 4 || values[0] != 40 || values[3] != 220 {
		t.Errorf("unexpected values %v", values)
	}

	if got := d.MinMean(); got != 40 {
		t.Errorf("expected min mean 40, got %v", got)
	}
	if got := d.MaxMean(); got != 220 {
		t.Errorf("expected max mean 220, got %v", got)
	}

	// Population std of {40, 210, 215, 220}: mean 171.25.
	want := math.Sqrt((131.25*131.25 + 38.75*38.75 + 43.75*43.75 + 48.75*48.75) / 4)
	if got := d.StdDeviation(); math.Abs(got-want) > 0.001 {
		t.Errorf("expected std %v, got %v", want, got)
	}
	if got := d.Quality(); got != QualityExcellent {
		t.Errorf("expected excellent quality, got %q", got)
	}
}

func TestFieldDetectionEmpty(t *testing.T) {
	var d FieldDetection

	if got := d.StdDeviation(); got != 0 {
		t.Errorf("expected zero std for empty field, got %v", got)
	}
	if got := d.Quality(); got != QualityPoor {
		t.Errorf("expected poor quality for empty field, got %q", got)
	}
	if got := d.MinMean(); got != 0 {
		t.Errorf("expected min mean 0, got %v", got)
	}
	if got := d.MaxMean(); got != 255 {
		t.Errorf("expected max mean 255, got %v", got)
	}
}

func TestSampleValuesPreservesOrder(t *testing.T) {
	samples := []BubbleSample{
		{MeanIntensity: 200, Bubble: BubbleRef{Value: "A"}},
		{MeanIntensity: 40, Bubble: BubbleRef{Value: "B"}},
		{MeanIntensity: 120, Bubble: BubbleRef{Value: "C"}},
	}

	values := SampleValues(samples)
	for i, want := range []float64{200, 40, 120} {
		if values[i] != want {
			t.Errorf("values[%d] = %v, want %v", i, values[i], want)
		}
	}
}
