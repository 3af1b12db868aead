package omr

import (
	"fmt"
	"math"
	"sort"
)

// maxIntensity is the top of the grayscale. A local threshold that never
// finds a qualifying jump would land here, separating nothing.
const maxIntensity = 255.0

// ThresholdMethod identifies which strategy path produced a threshold.
type ThresholdMethod string

const (
	MethodGlobal                ThresholdMethod = "global"
	MethodLocal                 ThresholdMethod = "local"
	MethodLocalFallbackToGlobal ThresholdMethod = "local_fallback_to_global"
	MethodAdaptive              ThresholdMethod = "adaptive"
)

// ThresholdConfig carries the tunables shared by all threshold
// strategies.
type ThresholdConfig struct {
	// MinJump is the smallest intensity gap treated as a real separation
	// between marked and unmarked bubbles.
	MinJump float64

	// MinGapTwoBubbles is the minimum spread required before a
	// two-sample field may split at its own midpoint.
	MinGapTwoBubbles float64

	// MinJumpSurplus is added to MinJump to form the bar a local
	// separation must clear to stand on its own.
	MinJumpSurplus float64

	// OutlierDeviationThreshold is the field standard deviation above
	// which a weak local jump is kept instead of discarded.
	OutlierDeviationThreshold float64

	// DefaultThreshold is used when there are too few samples to derive
	// anything at all.
	DefaultThreshold float64
}

// DefaultThresholdConfig returns the tunables used when no configuration
// overrides them.
func DefaultThresholdConfig() ThresholdConfig {
	return ThresholdConfig{
		MinJump:                   25,
		MinGapTwoBubbles:          30,
		MinJumpSurplus:            5,
		OutlierDeviationThreshold: 5,
		DefaultThreshold:          127.5,
	}
}

// ThresholdResult describes a computed decision threshold. Intensities
// below Value are read as marked.
type ThresholdResult struct {
	Value        float64         `json:"value"`
	Confidence   float64         `json:"confidence"`
	MaxJump      float64         `json:"max_jump"`
	Method       ThresholdMethod `json:"method"`
	FallbackUsed bool            `json:"fallback_used"`
}

// ThresholdStrategy computes a decision threshold from a set of mean
// intensities. Implementations must not mutate the input slice.
type ThresholdStrategy interface {
	Calculate(values []float64, cfg ThresholdConfig) ThresholdResult
}

// widestJump scans sorted values and returns the largest spread between
// v[i+window] and v[i-window] along with the midpoint of the pair that
// produced it. The window shrinks until at least one center fits, so two
// samples still yield their midpoint.
func widestJump(sorted []float64, window int) (jump, midpoint float64) {
	if window < 1 {
		window = 1
	}
	for window > 1 && len(sorted) <= 2*window {
		window--
	}
	jump = -1
	if len(sorted) <= 2*window {
		for i := 0; i+1 < len(sorted); i++ {
			if j := sorted[i+1] - sorted[i]; j > jump {
				jump = j
				midpoint = sorted[i] + j/2
			}
		}
		return jump, midpoint
	}
	for i := window; i+window < len(sorted); i++ {
		if j := sorted[i+window] - sorted[i-window]; j > jump {
			jump = j
			midpoint = sorted[i-window] + j/2
		}
	}
	return jump, midpoint
}

// GlobalThresholdStrategy finds the single largest intensity jump across
// a whole population of samples and places the threshold at its
// midpoint. Marked bubbles cluster dark and unmarked cluster light, so
// the widest gap in the sorted intensities is the most likely separator
// between the two clusters.
type GlobalThresholdStrategy struct {
	// Window is the half-width of the jump window used to ride over
	// single noisy samples. Zero means 1.
	Window int
}

// Calculate derives the file-wide threshold. With fewer than two samples
// it returns the configured default; otherwise the value always lies
// inside the sample range, even for a flat population.
func (s GlobalThresholdStrategy) Calculate(values []float64, cfg ThresholdConfig) ThresholdResult {
	if len(values) < 2 {
		return ThresholdResult{
			Value:        cfg.DefaultThreshold,
			Method:       MethodGlobal,
			FallbackUsed: true,
		}
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	jump, midpoint := widestJump(sorted, s.Window)
	return ThresholdResult{
		Value:        midpoint,
		Confidence:   math.Min(1, jump/(cfg.MinJump*3)),
		MaxJump:      jump,
		Method:       MethodGlobal,
		FallbackUsed: jump < cfg.MinJump,
	}
}

// LocalThresholdStrategy derives a threshold from a single field's
// samples, falling back to a file-wide value whenever the field alone
// cannot be trusted.
type LocalThresholdStrategy struct {
	// GlobalFallback is the file-wide threshold used when the field's
	// own separation is too weak. Zero means use the configured default.
	GlobalFallback float64

	// NoOutliers reports that the field's spread sits below the file's
	// outlier deviation threshold. Without outliers a weak local jump
	// carries no extra information and the fallback wins; with them the
	// local value is kept at reduced confidence.
	NoOutliers bool
}

// Calculate derives the field threshold.
func (s LocalThresholdStrategy) Calculate(values []float64, cfg ThresholdConfig) ThresholdResult {
	fallback := s.GlobalFallback
	if fallback == 0 {
		fallback = cfg.DefaultThreshold
	}

	if len(values) < 2 {
		return ThresholdResult{
			Value:        fallback,
			Method:       MethodLocalFallbackToGlobal,
			FallbackUsed: true,
		}
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	if len(sorted) == 2 {
		gap := sorted[1] - sorted[0]
		if gap < cfg.MinGapTwoBubbles {
			// Two values this close mean neither bubble is confidently
			// marked or unmarked.
			return ThresholdResult{
				Value:        fallback,
				Confidence:   0.3,
				MaxJump:      gap,
				Method:       MethodLocalFallbackToGlobal,
				FallbackUsed: true,
			}
		}
		return ThresholdResult{
			Value:        (sorted[0] + sorted[1]) / 2,
			Confidence:   0.7,
			MaxJump:      gap,
			Method:       MethodLocal,
			FallbackUsed: false,
		}
	}

	jump, midpoint := widestJump(sorted, 1)
	confidentJump := cfg.MinJump + cfg.MinJumpSurplus

	// A jump that never clears MinJump would leave the local threshold
	// at the top of the scale. That separates nothing, so the fallback
	// always wins here.
	if jump <= cfg.MinJump {
		return ThresholdResult{
			Value:        fallback,
			Confidence:   0.3,
			MaxJump:      jump,
			Method:       MethodLocalFallbackToGlobal,
			FallbackUsed: true,
		}
	}

	if jump < confidentJump && s.NoOutliers {
		return ThresholdResult{
			Value:        fallback,
			Confidence:   0.4,
			MaxJump:      jump,
			Method:       MethodLocalFallbackToGlobal,
			FallbackUsed: true,
		}
	}

	return ThresholdResult{
		Value:        midpoint,
		Confidence:   math.Min(1, jump/(confidentJump*2)),
		MaxJump:      jump,
		Method:       MethodLocal,
		FallbackUsed: false,
	}
}

// AdaptiveThresholdStrategy blends the results of several strategies,
// weighting each by its own confidence times a fixed strategy weight.
type AdaptiveThresholdStrategy struct {
	strategies []ThresholdStrategy
	weights    []float64
}

// NewAdaptiveThresholdStrategy combines strategies with the given
// weights. Nil weights means equal weighting.
func NewAdaptiveThresholdStrategy(strategies []ThresholdStrategy, weights []float64) (*AdaptiveThresholdStrategy, error) {
	if len(strategies) == 0 {
		return nil, fmt.Errorf("adaptive strategy requires at least one strategy")
	}
	if weights == nil {
		weights = make([]float64, len(strategies))
		for i := range weights {
			weights[i] = 1
		}
	}
	if len(strategies) != len(weights) {
		return nil, fmt.Errorf("strategy count %d does not match weight count %d", len(strategies), len(weights))
	}
	return &AdaptiveThresholdStrategy{strategies: strategies, weights: weights}, nil
}

// NewDefaultThresholdCalculator returns the standard blend: the global
// strategy at weight 0.4 and the local strategy, seeded with the
// file-wide fallback, at weight 0.6.
func NewDefaultThresholdCalculator(globalFallback float64) *AdaptiveThresholdStrategy {
	s, _ := NewAdaptiveThresholdStrategy(
		[]ThresholdStrategy{
			GlobalThresholdStrategy{},
			LocalThresholdStrategy{GlobalFallback: globalFallback},
		},
		[]float64{0.4, 0.6},
	)
	return s
}

// Calculate runs every strategy and returns the confidence-weighted
// average of their values. Confidence and MaxJump report the best any
// single strategy achieved; FallbackUsed reports whether any fell back.
func (s *AdaptiveThresholdStrategy) Calculate(values []float64, cfg ThresholdConfig) ThresholdResult {
	results := make([]ThresholdResult, len(s.strategies))
	totalWeight := 0.0
	for i, strategy := range s.strategies {
		results[i] = strategy.Calculate(values, cfg)
		totalWeight += results[i].Confidence * s.weights[i]
	}

	if totalWeight == 0 {
		return ThresholdResult{
			Value:        cfg.DefaultThreshold,
			Method:       MethodAdaptive,
			FallbackUsed: true,
		}
	}

	value := 0.0
	confidence := 0.0
	jump := 0.0
	fellBack := false
	for i, r := range results {
		value += r.Value * r.Confidence * s.weights[i]
		confidence = math.Max(confidence, r.Confidence)
		jump = math.Max(jump, r.MaxJump)
		fellBack = fellBack || r.FallbackUsed
	}

	return ThresholdResult{
		Value:        value / totalWeight,
		Confidence:   confidence,
		MaxJump:      jump,
		Method:       MethodAdaptive,
		FallbackUsed: fellBack,
	}
}
