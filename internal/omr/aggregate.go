package omr

import "sync"

// FileAggregate owns every sample measured for one file and derives the
// file-wide fallback threshold from them. An instance belongs to exactly
// one file-processing task and must not be shared between goroutines.
type FileAggregate struct {
	cfg     ThresholdConfig
	fields  []FieldDetection
	interps map[string]FieldInterpretation
	global  *ThresholdResult
}

// NewFileAggregate returns an empty aggregate using the given tunables
// for the file-wide threshold.
func NewFileAggregate(cfg ThresholdConfig) *FileAggregate {
	return &FileAggregate{
		cfg:     cfg,
		interps: make(map[string]FieldInterpretation),
	}
}

// Record stores the samples detected for one field label.
func (a *FileAggregate) Record(fieldID string, samples []BubbleSample) {
	a.fields = append(a.fields, FieldDetection{FieldID: fieldID, Samples: samples})
}

// Fields returns the recorded detections in record order.
func (a *FileAggregate) Fields() []FieldDetection {
	return a.fields
}

// AllSamples returns every recorded mean intensity across all fields.
func (a *FileAggregate) AllSamples() []float64 {
	total := 0
	for _, d := range a.fields {
		total += len(d.Samples)
	}
	values := make([]float64, 0, total)
	for _, d := range a.fields {
		for _, s := range d.Samples {
			values = append(values, s.MeanIntensity)
		}
	}
	return values
}

// GlobalThreshold derives the file-wide threshold from all recorded
// samples. The first call computes and memoizes the result, so every
// field must be recorded before asking.
func (a *FileAggregate) GlobalThreshold() ThresholdResult {
	if a.global == nil {
		res := GlobalThresholdStrategy{}.Calculate(a.AllSamples(), a.cfg)
		a.global = &res
	}
	return *a.global
}

// SetInterpretation stores the interpretation decided for a field.
func (a *FileAggregate) SetInterpretation(fieldID string, fi FieldInterpretation) {
	a.interps[fieldID] = fi
}

// Interpretation returns the stored interpretation for a field.
func (a *FileAggregate) Interpretation(fieldID string) (FieldInterpretation, bool) {
	fi, ok := a.interps[fieldID]
	return fi, ok
}

// Interpretations returns the per-field interpretation map.
func (a *FileAggregate) Interpretations() map[string]FieldInterpretation {
	return a.interps
}

// Batch counter keys.
const (
	CounterProcessed   = "files_processed"
	CounterFailed      = "files_failed"
	CounterMultiMarked = "files_multi_marked"
)

// QualityCounter returns the batch counter key for a scan quality grade.
func QualityCounter(q ScanQuality) string {
	return "fields_" + string(q)
}

// BatchAggregate tracks counters across a whole batch. Memory use is
// fixed by the number of distinct keys, not by batch size. Safe for
// concurrent use.
type BatchAggregate struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewBatchAggregate returns an empty counter set.
func NewBatchAggregate() *BatchAggregate {
	return &BatchAggregate{counts: make(map[string]int)}
}

// Increment adds one to the named counter.
func (b *BatchAggregate) Increment(key string) {
	b.Add(key, 1)
}

// Add adds n to the named counter.
func (b *BatchAggregate) Add(key string, n int) {
	b.mu.Lock()
	b.counts[key] += n
	b.mu.Unlock()
}

// Snapshot returns a copy of the current counts.
func (b *BatchAggregate) Snapshot() map[string]int {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]int, len(b.counts))
	for k, v := range b.counts {
		out[k] = v
	}
	return out
}
