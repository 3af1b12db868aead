package evaluation

import (
	"math"
	"testing"
)

func findQuestion(t *testing.T, s *Score, label string) Question {
	t.Helper()
	for _, q := range s.Questions {
		if q.Label == label {
			return q
		}
	}
	t.Fatalf("question %q missing from score", label)
	return Question{}
}

func TestEvaluate(t *testing.T) {
	k := sampleKey(t)

	score := k.Evaluate(map[string]string{
		"q1": "A",  // correct, +3
		"q2": "C",  // correct via alternative, +3
		"q3": "B",  // correct with weighted points, +1
		"q5": "B",  // incorrect under PART_B, -0.5
		"q6": "AB", // correct under PART_B, +2
	})

	// q4 is bonus (+3), q1..q3 score under DEFAULT.
	if want := 11.5; math.Abs(score.Total-want) > 1e-9 {
		t.Errorf("total: got %v, want %v", score.Total, want)
	}
	if score.Correct != 4 || score.Incorrect != 1 || score.Unmarked != 0 || score.Bonus != 1 {
		t.Errorf("counts: got correct=%d incorrect=%d unmarked=%d bonus=%d",
			score.Correct, score.Incorrect, score.Unmarked, score.Bonus)
	}

	q3 := findQuestion(t, score, "q3")
	if q3.Verdict != VerdictCorrect || q3.Delta != 1 {
		t.Errorf("q3: got verdict=%q delta=%v, want correct delta=1", q3.Verdict, q3.Delta)
	}
	q5 := findQuestion(t, score, "q5")
	if q5.Scheme != "PART_B" {
		t.Errorf("q5 scheme: got %q, want PART_B", q5.Scheme)
	}
	q1 := findQuestion(t, score, "q1")
	if q1.Scheme != "DEFAULT" {
		t.Errorf("q1 scheme: got %q, want DEFAULT", q1.Scheme)
	}
}

func TestEvaluate_Verdicts(t *testing.T) {
	k := sampleKey(t)

	tests := []struct {
		name        string
		label       string
		marked      string
		wantVerdict string
		wantDelta   float64
	}{
		{"exact match", "q1", "A", VerdictCorrect, 3},
		{"alternative match", "q2", "C", VerdictCorrect, 3},
		{"weighted full credit", "q3", "A", VerdictCorrect, 4},
		{"weighted partial credit", "q3", "B", VerdictCorrect, 1},
		{"weighted miss", "q3", "C", VerdictIncorrect, -1},
		{"wrong answer", "q1", "B", VerdictIncorrect, -1},
		{"multi-marked is not a match", "q1", "AB", VerdictIncorrect, -1},
		{"section correct", "q5", "D", VerdictCorrect, 2},
		{"section incorrect", "q5", "A", VerdictIncorrect, -0.5},
		{"expected multi-bubble", "q6", "AB", VerdictCorrect, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := k.Evaluate(map[string]string{tt.label: tt.marked})
			q := findQuestion(t, score, tt.label)
			if q.Verdict != tt.wantVerdict {
				t.Errorf("verdict: got %q, want %q", q.Verdict, tt.wantVerdict)
			}
			if math.Abs(q.Delta-tt.wantDelta) > 1e-9 {
				t.Errorf("delta: got %v, want %v", q.Delta, tt.wantDelta)
			}
		})
	}
}

func TestEvaluate_EmptyResponse(t *testing.T) {
	k := sampleKey(t)

	score := k.Evaluate(map[string]string{})

	// Every question is unmarked except the bonus, which still pays out.
	if score.Unmarked != 5 || score.Bonus != 1 {
		t.Errorf("counts: got unmarked=%d bonus=%d, want 5 and 1", score.Unmarked, score.Bonus)
	}
	if want := 3.0; math.Abs(score.Total-want) > 1e-9 {
		t.Errorf("total: got %v, want %v", score.Total, want)
	}

	q4 := findQuestion(t, score, "q4")
	if q4.Verdict != VerdictBonus {
		t.Errorf("q4 verdict: got %q, want bonus", q4.Verdict)
	}
}

func TestEvaluate_KeyOrderPreserved(t *testing.T) {
	k := sampleKey(t)

	score := k.Evaluate(map[string]string{"q6": "AB", "q1": "A"})
	for i, label := range k.Questions {
		if score.Questions[i].Label != label {
			t.Fatalf("question %d: got %q, want %q", i, score.Questions[i].Label, label)
		}
	}
}

func TestEvaluate_IgnoresUnknownFields(t *testing.T) {
	k := sampleKey(t)

	base := k.Evaluate(map[string]string{"q1": "A"})
	noisy := k.Evaluate(map[string]string{"q1": "A", "roll": "4271", "name": "JANE DOE"})

	if base.Total != noisy.Total {
		t.Errorf("identity fields changed the total: %v vs %v", base.Total, noisy.Total)
	}
	if len(noisy.Questions) != len(k.Questions) {
		t.Errorf("got %d scored questions, want %d", len(noisy.Questions), len(k.Questions))
	}
}

func TestScore_Summary(t *testing.T) {
	s := &Score{Total: 12.5, Correct: 10, Incorrect: 3, Unmarked: 2}

	if got, want := s.Summary(), "Correct: 10 Incorrect: 3 Unmarked: 2"; got != want {
		t.Errorf("Summary: got %q, want %q", got, want)
	}
	if got, want := s.String(), "Score: 12.50"; got != want {
		t.Errorf("String: got %q, want %q", got, want)
	}
}

func TestVerdictColor(t *testing.T) {
	tests := []struct {
		verdict string
		want    string
	}{
		{VerdictCorrect, "#00ff00"},
		{VerdictIncorrect, "#ff0000"},
		{VerdictBonus, "#00dddd"},
		{VerdictUnmarked, ""},
		{"neutral", ""},
	}

	for _, tt := range tests {
		if got := VerdictColor(tt.verdict); got != tt.want {
			t.Errorf("VerdictColor(%q) = %q, want %q", tt.verdict, got, tt.want)
		}
	}
}
