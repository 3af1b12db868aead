package omr

import (
	"sync"
	"testing"
)

func TestFileAggregateAllSamples(t *testing.T) {
	agg := NewFileAggregate(DefaultThresholdConfig())
	agg.Record("q1", mcqSamples(40, 210))
	agg.Record("q2", mcqSamples(215, 220, 45))

	values := agg.AllSamples()
	want := []float64{40, 210, 215, 220, 45}
	if len(values) != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), len(values))
	}
	for i, v := range want {
		if values[i] != v {
			t.Errorf("values[%d] = %v, want %v", i, values[i], v)
		}
	}

	fields := agg.Fields()
	if len(fields) != 2 || fields[0].FieldID != "q1" || fields[1].FieldID != "q2" {
		t.Errorf("unexpected field order %+v", fields)
	}
}

func TestFileAggregateGlobalThresholdMemoized(t *testing.T) {
	agg := NewFileAggregate(DefaultThresholdConfig())
	agg.Record("q1", mcqSamples(50, 200))

	first := agg.GlobalThreshold()
	if first.Value != 125 {
		t.Errorf("expected threshold 125, got %v", first.Value)
	}

	// Late records must not shift the already-derived threshold.
	agg.Record("q2", mcqSamples(10, 240))
	second := agg.GlobalThreshold()
	if second != first {
		t.Errorf("memoized threshold changed: first %+v, second %+v", first, second)
	}
}

func TestFileAggregateEmpty(t *testing.T) {
	cfg := DefaultThresholdConfig()
	agg := NewFileAggregate(cfg)

	res := agg.GlobalThreshold()
	if res.Value != cfg.DefaultThreshold {
		t.Errorf("expected default threshold %v, got %v", cfg.DefaultThreshold, res.Value)
	}
	if !res.FallbackUsed {
		t.Error("expected fallback for an empty file")
	}
}

func TestFileAggregateInterpretations(t *testing.T) {
	agg := NewFileAggregate(DefaultThresholdConfig())

	if _, ok := agg.Interpretation("q1"); ok {
		t.Error("expected no interpretation before storing one")
	}

	fi := FieldInterpretation{FieldID: "q1", MarkedLabels: []string{"A"}}
	agg.SetInterpretation("q1", fi)

	got, ok := agg.Interpretation("q1")
	if !ok {
		t.Fatal("expected stored interpretation")
	}
	if got.FieldID != "q1" || len(got.MarkedLabels) != 1 {
		t.Errorf("unexpected interpretation %+v", got)
	}
	if len(agg.Interpretations()) != 1 {
		t.Errorf("expected 1 interpretation, got %d", len(agg.Interpretations()))
	}
}

func TestBatchAggregateCounters(t *testing.T) {
	b := NewBatchAggregate()
	b.Increment(CounterProcessed)
	b.Increment(CounterProcessed)
	b.Add(QualityCounter(QualityGood), 3)

	counts := b.Snapshot()
	if counts[CounterProcessed] != 2 {
		t.Errorf("expected 2 processed, got %d", counts[CounterProcessed])
	}
	if counts["fields_good"] != 3 {
		t.Errorf("expected 3 good fields, got %d", counts["fields_good"])
	}

	// Snapshot is a copy; mutating it must not touch the aggregate.
	counts[CounterProcessed] = 99
	if b.Snapshot()[CounterProcessed] != 2 {
		t.Error("snapshot mutation leaked into the aggregate")
	}
}

func TestBatchAggregateConcurrent(t *testing.T) {
	b := NewBatchAggregate()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 250; j++ {
				b.Increment(CounterProcessed)
			}
		}()
	}
	wg.Wait()

	if got := b.Snapshot()[CounterProcessed]; got != 2000 {
		t.Errorf("expected 2000 increments, got %d", got)
	}
}
