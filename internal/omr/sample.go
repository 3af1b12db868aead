package omr

import (
	"gonum.org/v1/gonum/stat"
)

// BubbleRef identifies a single bubble on the sheet: the value it encodes
// and the top-left corner of its region on the processed image.
type BubbleRef struct {
	Value string `json:"value"`
	X     int    `json:"x"`
	Y     int    `json:"y"`
}

// BubbleSample pairs a bubble with its measured mean intensity on the
// 0-255 grayscale, where lower means darker.
type BubbleSample struct {
	MeanIntensity float64   `json:"mean_intensity"`
	Bubble        BubbleRef `json:"bubble"`
}

// SampleValues extracts the mean intensities in sample order.
func SampleValues(samples []BubbleSample) []float64 {
	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.MeanIntensity
	}
	return values
}

// ScanQuality grades how cleanly a field separates marked from unmarked
// bubbles. A wide intensity spread means the two clusters sit far apart.
type ScanQuality string

const (
	QualityExcellent  ScanQuality = "excellent"
	QualityGood       ScanQuality = "good"
	QualityAcceptable ScanQuality = "acceptable"
	QualityPoor       ScanQuality = "poor"
)

// QualityForStdDev grades a field by the population standard deviation of
// its sample intensities.
func QualityForStdDev(std float64) ScanQuality {
	switch {
	case std > 50:
		return QualityExcellent
	case std > 30:
		return QualityGood
	case std > 15:
		return QualityAcceptable
	default:
		return QualityPoor
	}
}

// FieldDetection holds the raw samples measured for one field label.
type FieldDetection struct {
	FieldID string         `json:"field_id"`
	Samples []BubbleSample `json:"samples"`
}

// Values returns the mean intensities in bubble position order.
func (d FieldDetection) Values() []float64 {
	return SampleValues(d.Samples)
}

// StdDeviation returns the population standard deviation of the field's
// intensities, or 0 for an empty field.
func (d FieldDetection) StdDeviation() float64 {
	return popStdDev(d.Values())
}

// Quality grades the field by its intensity spread.
func (d FieldDetection) Quality() ScanQuality {
	return QualityForStdDev(d.StdDeviation())
}

// MinMean returns the darkest sample, or 0 for an empty field.
func (d FieldDetection) MinMean() float64 {
	min := 0.0
	for i, s := range d.Samples {
		if i == 0 || s.MeanIntensity < min {
			min = s.MeanIntensity
		}
	}
	return min
}

// MaxMean returns the lightest sample, or 255 for an empty field.
func (d FieldDetection) MaxMean() float64 {
	if len(d.Samples) == 0 {
		return maxIntensity
	}
	max := d.Samples[0].MeanIntensity
	for _, s := range d.Samples[1:] {
		if s.MeanIntensity > max {
			max = s.MeanIntensity
		}
	}
	return max
}

func popStdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.PopStdDev(values, nil)
}
