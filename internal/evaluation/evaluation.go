// Package evaluation scores detected sheet responses against an answer
// key: per-question verdicts, marking schemes with section overrides,
// and batch-comparable totals.
package evaluation

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sheetscan/omr-engine/internal/template"
)

// Verdicts a question can receive.
const (
	VerdictCorrect   = "correct"
	VerdictIncorrect = "incorrect"
	VerdictUnmarked  = "unmarked"
	VerdictBonus     = "bonus"
)

// BonusAnswer accepts any response, including none, as correct.
const BonusAnswer = "*"

// defaultScheme is the marking scheme applied to questions no section
// claims. Keys must define it.
const defaultScheme = "DEFAULT"

// Points is a signed mark delta. JSON accepts a number, a numeric
// string, or a fraction string such as "-1/3" for negative marking that
// divides evenly across distractors.
type Points float64

func (p *Points) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*p = Points(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("points must be a number or numeric string, got %s", data)
	}
	v, err := parsePoints(s)
	if err != nil {
		return err
	}
	*p = Points(v)
	return nil
}

func parsePoints(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if num, den, ok := strings.Cut(s, "/"); ok {
		a, errA := strconv.ParseFloat(strings.TrimSpace(num), 64)
		b, errB := strconv.ParseFloat(strings.TrimSpace(den), 64)
		if errA != nil || errB != nil || b == 0 {
			return 0, fmt.Errorf("malformed fraction %q", s)
		}
		return a / b, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed points value %q", s)
	}
	return v, nil
}

// Marking is the point delta per verdict under one scheme.
type Marking struct {
	Correct   Points `json:"correct"`
	Incorrect Points `json:"incorrect"`
	Unmarked  Points `json:"unmarked"`
}

// AcceptedAnswer is one response string an answer treats as correct.
// Points overrides the scheme's correct delta when set, which is how
// weighted keys award partial credit to weaker alternatives.
type AcceptedAnswer struct {
	Value  string
	Points *float64
}

// Answer is the expected response for one question.
//
// Three JSON shapes are accepted, matching hand-written keys in the
// wild: "A" for a single expected response, ["A", "B"] when several
// responses score as correct, and [["A", 2], ["B", 1]] when the
// alternatives carry their own points. The bonus answer "*" marks the
// question correct whatever the sheet says.
type Answer struct {
	Accepted []AcceptedAnswer
}

func (a *Answer) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		a.Accepted = []AcceptedAnswer{{Value: s}}
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("answer must be a string or an array, got %s", data)
	}
	if len(items) == 0 {
		return fmt.Errorf("answer array is empty")
	}

	accepted := make([]AcceptedAnswer, 0, len(items))
	for _, item := range items {
		var value string
		if err := json.Unmarshal(item, &value); err == nil {
			accepted = append(accepted, AcceptedAnswer{Value: value})
			continue
		}

		var pair []json.RawMessage
		if err := json.Unmarshal(item, &pair); err != nil || len(pair) != 2 {
			return fmt.Errorf("answer alternative must be a string or an [answer, points] pair, got %s", item)
		}
		if err := json.Unmarshal(pair[0], &value); err != nil {
			return fmt.Errorf("weighted answer value must be a string, got %s", pair[0])
		}
		var pts Points
		if err := json.Unmarshal(pair[1], &pts); err != nil {
			return fmt.Errorf("weighted answer %q: %w", value, err)
		}
		p := float64(pts)
		accepted = append(accepted, AcceptedAnswer{Value: value, Points: &p})
	}
	a.Accepted = accepted
	return nil
}

// IsBonus reports whether any accepted value is the bonus answer.
func (a Answer) IsBonus() bool {
	for _, acc := range a.Accepted {
		if acc.Value == BonusAnswer {
			return true
		}
	}
	return false
}

// String renders the accepted values for summaries, joined when the
// question admits alternatives.
func (a Answer) String() string {
	values := make([]string, len(a.Accepted))
	for i, acc := range a.Accepted {
		values[i] = acc.Value
	}
	return strings.Join(values, "/")
}

// match returns the accepted alternative equal to the response, if any.
func (a Answer) match(response string) (AcceptedAnswer, bool) {
	for _, acc := range a.Accepted {
		if acc.Value == response {
			return acc, true
		}
	}
	return AcceptedAnswer{}, false
}

// Section is a named group of questions marked under its own scheme.
type Section struct {
	Name      string
	Questions []string
	Marking   Marking
}

// Key is a loaded, validated answer key.
type Key struct {
	// Questions lists the question labels in key order, ranges already
	// expanded.
	Questions []string

	// Answers maps each question label to its expected answer.
	Answers map[string]Answer

	// Default is the marking scheme for questions outside any section.
	Default Marking

	// Sections are scheme overrides in name order.
	Sections []Section

	schemeByQuestion map[string]*Section
}

// schemeFor resolves the marking scheme and its name for a question.
func (k *Key) schemeFor(label string) (Marking, string) {
	if sec, ok := k.schemeByQuestion[label]; ok {
		return sec.Marking, sec.Name
	}
	return k.Default, defaultScheme
}

// schemeSpec is one marking_schemes entry. DEFAULT is a bare marking
// object; named sections wrap theirs alongside the questions they claim.
type schemeSpec struct {
	Questions []string `json:"questions"`
	Marking   *Marking `json:"marking"`

	bare Marking
}

func (s *schemeSpec) UnmarshalJSON(data []byte) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("marking scheme must be an object, got %s", data)
	}
	if _, sectioned := probe["marking"]; sectioned {
		type plain schemeSpec
		var p plain
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		*s = schemeSpec(p)
		return nil
	}
	return json.Unmarshal(data, &s.bare)
}

// keyFile is the on-disk shape of evaluation.json.
type keyFile struct {
	Options struct {
		QuestionsInOrder []string `json:"questions_in_order"`
		AnswersInOrder   []Answer `json:"answers_in_order"`
	} `json:"options"`
	MarkingSchemes map[string]schemeSpec `json:"marking_schemes"`
}

// build expands ranges and assembles the validated Key.
func (f *keyFile) build() (*Key, error) {
	questions := make([]string, 0, len(f.Options.QuestionsInOrder))
	for _, raw := range f.Options.QuestionsInOrder {
		labels, err := template.ExpandLabelRange(raw)
		if err != nil {
			return nil, fmt.Errorf("questions_in_order: %w", err)
		}
		questions = append(questions, labels...)
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("key lists no questions")
	}
	if len(questions) != len(f.Options.AnswersInOrder) {
		return nil, fmt.Errorf("key has %d questions but %d answers", len(questions), len(f.Options.AnswersInOrder))
	}

	answers := make(map[string]Answer, len(questions))
	for i, label := range questions {
		if _, dup := answers[label]; dup {
			return nil, fmt.Errorf("question %q appears twice in the key", label)
		}
		answers[label] = f.Options.AnswersInOrder[i]
	}

	defaultSpec, ok := f.MarkingSchemes[defaultScheme]
	if !ok {
		return nil, fmt.Errorf("marking_schemes must define %s", defaultScheme)
	}
	if defaultSpec.Marking != nil {
		return nil, fmt.Errorf("%s must be a bare marking object, not a section", defaultScheme)
	}

	key := &Key{
		Questions:        questions,
		Answers:          answers,
		Default:          defaultSpec.bare,
		schemeByQuestion: make(map[string]*Section),
	}

	names := make([]string, 0, len(f.MarkingSchemes))
	for name := range f.MarkingSchemes {
		if name != defaultScheme {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		spec := f.MarkingSchemes[name]
		if spec.Marking == nil {
			return nil, fmt.Errorf("scheme %q needs a marking object and a questions list", name)
		}
		sec := Section{Name: name, Marking: *spec.Marking}
		for _, raw := range spec.Questions {
			labels, err := template.ExpandLabelRange(raw)
			if err != nil {
				return nil, fmt.Errorf("scheme %q: %w", name, err)
			}
			sec.Questions = append(sec.Questions, labels...)
		}
		if len(sec.Questions) == 0 {
			return nil, fmt.Errorf("scheme %q claims no questions", name)
		}
		key.Sections = append(key.Sections, sec)
	}

	for i := range key.Sections {
		sec := &key.Sections[i]
		for _, label := range sec.Questions {
			if _, known := answers[label]; !known {
				return nil, fmt.Errorf("scheme %q claims unknown question %q", sec.Name, label)
			}
			if prev, claimed := key.schemeByQuestion[label]; claimed {
				return nil, fmt.Errorf("question %q claimed by schemes %q and %q", label, prev.Name, sec.Name)
			}
			key.schemeByQuestion[label] = sec
		}
	}

	return key, nil
}
