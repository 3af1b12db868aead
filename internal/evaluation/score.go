package evaluation

import "fmt"

// Question is the scored outcome of a single question.
type Question struct {
	Label   string  `json:"label"`
	Marked  string  `json:"marked"`
	Answer  string  `json:"answer"`
	Verdict string  `json:"verdict"`
	Delta   float64 `json:"delta"`
	Scheme  string  `json:"scheme"`
}

// Score is the evaluated outcome of one sheet.
type Score struct {
	Total     float64    `json:"total"`
	Correct   int        `json:"correct"`
	Incorrect int        `json:"incorrect"`
	Unmarked  int        `json:"unmarked"`
	Bonus     int        `json:"bonus"`
	Questions []Question `json:"questions"`
}

// Evaluate scores a sheet's detected responses against the key.
//
// Responses are looked up by question label, so both plain fields and
// concatenated custom labels work as long as the key uses the same
// names. A missing or empty entry counts as unmarked. Response fields
// the key does not ask about are ignored.
func (k *Key) Evaluate(response map[string]string) *Score {
	score := &Score{Questions: make([]Question, 0, len(k.Questions))}

	for _, label := range k.Questions {
		marked := response[label]
		answer := k.Answers[label]
		marking, schemeName := k.schemeFor(label)

		q := Question{
			Label:  label,
			Marked: marked,
			Answer: answer.String(),
			Scheme: schemeName,
		}

		switch {
		case answer.IsBonus():
			q.Verdict = VerdictBonus
			q.Delta = float64(marking.Correct)
			score.Bonus++
		case marked == "":
			q.Verdict = VerdictUnmarked
			q.Delta = float64(marking.Unmarked)
			score.Unmarked++
		default:
			if acc, ok := answer.match(marked); ok {
				q.Verdict = VerdictCorrect
				if acc.Points != nil {
					q.Delta = *acc.Points
				} else {
					q.Delta = float64(marking.Correct)
				}
				score.Correct++
			} else {
				q.Verdict = VerdictIncorrect
				q.Delta = float64(marking.Incorrect)
				score.Incorrect++
			}
		}

		score.Total += q.Delta
		score.Questions = append(score.Questions, q)
	}

	return score
}

// Summary renders the counts line drawn on review sheets.
func (s *Score) Summary() string {
	return fmt.Sprintf("Correct: %d Incorrect: %d Unmarked: %d", s.Correct, s.Incorrect, s.Unmarked)
}

func (s *Score) String() string {
	return fmt.Sprintf("Score: %.2f", s.Total)
}

// VerdictColor is the review overlay color for a verdict, or empty for
// verdicts that draw no overlay.
func VerdictColor(verdict string) string {
	switch verdict {
	case VerdictCorrect:
		return "#00ff00"
	case VerdictIncorrect:
		return "#ff0000"
	case VerdictBonus:
		return "#00dddd"
	}
	return ""
}
