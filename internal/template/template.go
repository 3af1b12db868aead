// Package template models the layout definition of an OMR sheet: field
// blocks, their bubbles, and how detected answers map to output columns.
package template

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Detection types a field block can declare.
const (
	DetectBubbles = "BUBBLES_THRESHOLD"
	DetectOCR     = "OCR"
)

// Block directions.
const (
	DirectionVertical   = "vertical"
	DirectionHorizontal = "horizontal"
)

// Template describes the layout of one sheet design. All coordinates
// refer to the processed image, whose size is PageDimensions.
type Template struct {
	// PageDimensions is the width and height the sheet is resized to
	// before measuring.
	PageDimensions []int `json:"pageDimensions"`

	// BubbleDimensions is the width and height of one bubble region.
	BubbleDimensions []int `json:"bubbleDimensions"`

	FieldBlocks map[string]FieldBlock `json:"fieldBlocks"`

	// CustomLabels combine several field labels into one output column,
	// concatenated in the order given here.
	CustomLabels map[string][]string `json:"customLabels,omitempty"`

	// OutputColumns fixes the column order of exported results. Empty
	// means custom labels first, then remaining fields in block order.
	OutputColumns []string `json:"outputColumns,omitempty"`

	// EmptyValue is written for fields with no marked bubble.
	EmptyValue string `json:"emptyValue,omitempty"`

	// FieldBlocksOffset shifts every block origin, useful when a batch
	// of sheets was printed with a uniform displacement.
	FieldBlocksOffset []int `json:"fieldBlocksOffset,omitempty"`

	PreProcessors []PreProcessor `json:"preProcessors,omitempty"`

	Alignment *Alignment `json:"alignment,omitempty"`
}

// FieldBlock is a rectangular group of fields sharing one layout: a grid
// of bubbles walked gap by gap from the block origin.
type FieldBlock struct {
	// Origin is the top-left corner of the block's first bubble.
	Origin []int `json:"origin"`

	// BubblesGap is the distance between consecutive bubbles of one
	// field, along the block direction.
	BubblesGap float64 `json:"bubblesGap"`

	// LabelsGap is the distance between consecutive fields, across the
	// block direction.
	LabelsGap float64 `json:"labelsGap"`

	// FieldLabels name the block's fields. A label may be a range like
	// "q1..q10".
	FieldLabels []string `json:"fieldLabels"`

	// FieldType selects a built-in bubble set (QTYPE_MCQ4, QTYPE_INT,
	// ...) or CUSTOM combined with BubbleValues.
	FieldType string `json:"fieldType"`

	// BubbleValues are the per-bubble answers for CUSTOM blocks.
	BubbleValues []string `json:"bubbleValues,omitempty"`

	// Direction is the axis bubbles advance along. Defaults to the
	// field type's natural direction.
	Direction string `json:"direction,omitempty"`

	// DetectionType selects how fields are read. Defaults to bubble
	// thresholding; OCR blocks are read by text recognition instead.
	DetectionType string `json:"detectionType,omitempty"`

	// ScanDimensions is the width and height of the region read per
	// field in an OCR block.
	ScanDimensions []int `json:"scanDimensions,omitempty"`
}

// PreProcessor names an image preparation step applied before
// measurement, with its step-specific options left raw for the consumer.
type PreProcessor struct {
	Name    string         `json:"name"`
	Options map[string]any `json:"options,omitempty"`
}

// Alignment tunes how far the sheet may be shifted while still matching
// the layout.
type Alignment struct {
	MaxDisplacement int     `json:"maxDisplacement,omitempty"`
	Margins         Margins `json:"margins,omitempty"`
}

// Margins are page margins excluded from alignment search.
type Margins struct {
	Top    int `json:"top,omitempty"`
	Bottom int `json:"bottom,omitempty"`
	Left   int `json:"left,omitempty"`
	Right  int `json:"right,omitempty"`
}

// Bubble is one selectable option of a field, placed on the page.
type Bubble struct {
	Value string
	X     int
	Y     int
}

// Field is a single question expanded to concrete bubbles in position
// order.
type Field struct {
	Label         string
	Block         string
	DetectionType string
	Bubbles       []Bubble

	// Scan is the region read for OCR fields, as x, y, width, height.
	Scan [4]int
}

var rangePattern = regexp.MustCompile(`^(.*?)(\d+)\.\.(.*?)(\d+)$`)

// ExpandLabelRange expands a "q1..q10" style range into q1 through q10.
// A label without ".." is returned as-is.
func ExpandLabelRange(label string) ([]string, error) {
	if !strings.Contains(label, "..") {
		return []string{label}, nil
	}
	m := rangePattern.FindStringSubmatch(label)
	if m == nil {
		return nil, fmt.Errorf("malformed label range %q", label)
	}
	if m[1] != m[3] {
		return nil, fmt.Errorf("label range %q mixes prefixes %q and %q", label, m[1], m[3])
	}
	start, err := strconv.Atoi(m[2])
	if err != nil {
		return nil, fmt.Errorf("malformed label range %q: %w", label, err)
	}
	end, err := strconv.Atoi(m[4])
	if err != nil {
		return nil, fmt.Errorf("malformed label range %q: %w", label, err)
	}
	if start > end {
		return nil, fmt.Errorf("label range %q runs backwards", label)
	}
	labels := make([]string, 0, end-start+1)
	for i := start; i <= end; i++ {
		labels = append(labels, m[1]+strconv.Itoa(i))
	}
	return labels, nil
}

// BlockNames returns the field block names in sorted order, which is the
// iteration order used everywhere blocks are walked.
func (t *Template) BlockNames() []string {
	names := make([]string, 0, len(t.FieldBlocks))
	for name := range t.FieldBlocks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Fields expands every block into concrete fields with positioned
// bubbles. Blocks are walked in sorted name order; a block's fields keep
// their declared order with ranges expanded in place.
func (t *Template) Fields() []Field {
	offsetX, offsetY := 0, 0
	if len(t.FieldBlocksOffset) == 2 {
		offsetX, offsetY = t.FieldBlocksOffset[0], t.FieldBlocksOffset[1]
	}

	var fields []Field
	for _, name := range t.BlockNames() {
		block := t.FieldBlocks[name]
		labels := block.expandedLabels()

		if block.detectionType() == DetectOCR {
			w, h := 0, 0
			if len(block.ScanDimensions) == 2 {
				w, h = block.ScanDimensions[0], block.ScanDimensions[1]
			}
			for i, label := range labels {
				x := block.Origin[0] + offsetX
				y := block.Origin[1] + offsetY + int(float64(i)*block.LabelsGap)
				fields = append(fields, Field{
					Label:         label,
					Block:         name,
					DetectionType: DetectOCR,
					Scan:          [4]int{x, y, w, h},
				})
			}
			continue
		}

		values, direction := block.bubbleSet()
		for i, label := range labels {
			field := Field{
				Label:         label,
				Block:         name,
				DetectionType: DetectBubbles,
				Bubbles:       make([]Bubble, 0, len(values)),
			}
			for j, value := range values {
				x := float64(block.Origin[0] + offsetX)
				y := float64(block.Origin[1] + offsetY)
				if direction == DirectionVertical {
					x += float64(i) * block.LabelsGap
					y += float64(j) * block.BubblesGap
				} else {
					x += float64(j) * block.BubblesGap
					y += float64(i) * block.LabelsGap
				}
				field.Bubbles = append(field.Bubbles, Bubble{Value: value, X: int(x), Y: int(y)})
			}
			fields = append(fields, field)
		}
	}
	return fields
}

// Labels returns every concrete field label in block iteration order.
func (t *Template) Labels() []string {
	var labels []string
	for _, name := range t.BlockNames() {
		labels = append(labels, t.FieldBlocks[name].expandedLabels()...)
	}
	return labels
}

// Columns returns the output column order. An explicit OutputColumns
// wins; otherwise custom labels come first in sorted order, followed by
// field labels not consumed by any custom label.
func (t *Template) Columns() []string {
	if len(t.OutputColumns) > 0 {
		return t.OutputColumns
	}

	consumed := make(map[string]bool)
	customs := make([]string, 0, len(t.CustomLabels))
	for name, parts := range t.CustomLabels {
		customs = append(customs, name)
		for _, p := range parts {
			consumed[p] = true
		}
	}
	sort.Strings(customs)

	columns := customs
	for _, label := range t.Labels() {
		if !consumed[label] {
			columns = append(columns, label)
		}
	}
	return columns
}

// BubbleSize returns the width and height of one bubble region.
func (t *Template) BubbleSize() (w, h int) {
	return t.BubbleDimensions[0], t.BubbleDimensions[1]
}

// PageSize returns the processed page width and height.
func (t *Template) PageSize() (w, h int) {
	return t.PageDimensions[0], t.PageDimensions[1]
}

func (b FieldBlock) detectionType() string {
	if b.DetectionType == "" {
		return DetectBubbles
	}
	return b.DetectionType
}

func (b FieldBlock) expandedLabels() []string {
	var labels []string
	for _, raw := range b.FieldLabels {
		expanded, err := ExpandLabelRange(raw)
		if err != nil {
			// Validate reports this; expansion keeps the raw label so
			// positions stay stable.
			labels = append(labels, raw)
			continue
		}
		labels = append(labels, expanded...)
	}
	return labels
}

// bubbleSet resolves the block's bubble values and direction, applying
// the field type's defaults.
func (b FieldBlock) bubbleSet() (values []string, direction string) {
	values = b.BubbleValues
	direction = b.Direction
	if ft, ok := builtinFieldTypes[b.FieldType]; ok {
		if len(values) == 0 {
			values = ft.BubbleValues
		}
		if direction == "" {
			direction = ft.Direction
		}
	}
	if direction == "" {
		direction = DirectionVertical
	}
	return values, direction
}
