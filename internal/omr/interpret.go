package omr

import (
	"log/slog"
	"strings"
)

// FieldInterpretation is the outcome of interpreting one field: which
// bubbles were read as marked and how much the reading can be trusted.
type FieldInterpretation struct {
	FieldID        string          `json:"field_id"`
	MarkedLabels   []string        `json:"marked_labels"`
	IsMultiMarked  bool            `json:"is_multi_marked"`
	Threshold      ThresholdResult `json:"threshold"`
	StdDeviation   float64         `json:"std_deviation"`
	Quality        ScanQuality     `json:"quality"`
	BubbleCount    int             `json:"bubble_count"`
	BubblesInDoubt int             `json:"bubbles_in_doubt,omitempty"`
}

// Response returns the answer string for the field: the marked labels
// concatenated in position order. No marks reads as the empty value, and
// so does every bubble marked at once, which on a real sheet is a
// scanner artifact rather than an answer.
func (fi FieldInterpretation) Response(emptyValue string) string {
	if len(fi.MarkedLabels) == 0 {
		return emptyValue
	}
	if fi.BubbleCount > 0 && len(fi.MarkedLabels) == fi.BubbleCount {
		return emptyValue
	}
	return strings.Join(fi.MarkedLabels, "")
}

// IsConfident reports whether the field's threshold separation is strong
// enough to stand without review.
func (fi FieldInterpretation) IsConfident() bool {
	return fi.Threshold.Confidence > 0.7
}

// FieldInterpreter turns measured samples into marked-answer decisions
// using the local threshold strategy seeded with a file-wide fallback.
type FieldInterpreter struct {
	Config ThresholdConfig

	// ConfidenceMetrics enables the bubbles-in-doubt comparison between
	// the local and global verdicts for every bubble.
	ConfidenceMetrics bool

	// Logger receives multi-mark and disparity warnings. Nil uses the
	// default logger.
	Logger *slog.Logger
}

// Interpret decides which bubbles of a field are marked. A sample is
// marked iff its mean intensity falls below the computed threshold.
// MarkedLabels preserves the field's bubble position order. The result
// depends only on the inputs, so interpreting the same samples twice
// yields identical results.
func (it *FieldInterpreter) Interpret(fieldID string, samples []BubbleSample, globalFallback float64) FieldInterpretation {
	values := SampleValues(samples)
	std := popStdDev(values)

	strategy := LocalThresholdStrategy{
		GlobalFallback: globalFallback,
		NoOutliers:     std < it.Config.OutlierDeviationThreshold,
	}
	threshold := strategy.Calculate(values, it.Config)

	if confident := it.Config.MinJump + it.Config.MinJumpSurplus; threshold.Method == MethodLocal && threshold.MaxJump < confident {
		it.logger().Debug("keeping weak local threshold",
			"field", fieldID,
			"threshold", threshold.Value,
			"max_jump", threshold.MaxJump)
	}

	marked := make([]string, 0, len(samples))
	for _, s := range samples {
		if s.MeanIntensity < threshold.Value {
			marked = append(marked, s.Bubble.Value)
		}
	}

	fi := FieldInterpretation{
		FieldID:       fieldID,
		MarkedLabels:  marked,
		IsMultiMarked: len(marked) > 1,
		Threshold:     threshold,
		StdDeviation:  std,
		Quality:       QualityForStdDev(std),
		BubbleCount:   len(samples),
	}

	if fi.IsMultiMarked {
		it.logger().Warn("multi-marking detected",
			"field", fieldID,
			"marked_bubbles", len(marked))
	}

	if it.ConfidenceMetrics {
		fi.BubblesInDoubt = countDisputed(samples, threshold.Value, globalFallback)
		if fi.BubblesInDoubt > 0 {
			it.logger().Warn("local and global thresholds disagree",
				"field", fieldID,
				"bubbles_in_doubt", fi.BubblesInDoubt,
				"local", threshold.Value,
				"global", globalFallback)
		}
	}

	return fi
}

func (it *FieldInterpreter) logger() *slog.Logger {
	if it.Logger != nil {
		return it.Logger
	}
	return slog.Default()
}

// countDisputed counts bubbles whose marked verdict flips between the
// local and global thresholds.
func countDisputed(samples []BubbleSample, local, global float64) int {
	n := 0
	for _, s := range samples {
		if (s.MeanIntensity < local) != (s.MeanIntensity < global) {
			n++
		}
	}
	return n
}
