package template

import (
	"encoding/json"
	"fmt"
	"os"
)

// Load reads and validates a template definition from a JSON file.
func Load(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template: %w", err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", path, err)
	}
	return t, nil
}

// Parse decodes and validates a template definition.
func Parse(data []byte) (*Template, error) {
	var t Template
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid template: %w", err)
	}
	return &t, nil
}

// Validate checks the template for structural problems. It fails on the
// first problem found so a malformed layout never reaches processing.
func (t *Template) Validate() error {
	if err := checkDims("pageDimensions", t.PageDimensions); err != nil {
		return err
	}
	if err := checkDims("bubbleDimensions", t.BubbleDimensions); err != nil {
		return err
	}
	if len(t.FieldBlocksOffset) != 0 && len(t.FieldBlocksOffset) != 2 {
		return fmt.Errorf("fieldBlocksOffset must be [x, y], got %v", t.FieldBlocksOffset)
	}
	if len(t.FieldBlocks) == 0 {
		return fmt.Errorf("template defines no field blocks")
	}

	seen := make(map[string]string)
	for _, name := range t.BlockNames() {
		block := t.FieldBlocks[name]
		if err := block.validate(name); err != nil {
			return err
		}
		for _, raw := range block.FieldLabels {
			labels, err := ExpandLabelRange(raw)
			if err != nil {
				return fmt.Errorf("block %q: %w", name, err)
			}
			for _, label := range labels {
				if prev, ok := seen[label]; ok {
					return fmt.Errorf("field label %q appears in blocks %q and %q", label, prev, name)
				}
				seen[label] = name
			}
		}
	}

	for custom, parts := range t.CustomLabels {
		if _, clash := seen[custom]; clash {
			return fmt.Errorf("custom label %q collides with a field label", custom)
		}
		if len(parts) == 0 {
			return fmt.Errorf("custom label %q has no component fields", custom)
		}
		for _, part := range parts {
			if _, ok := seen[part]; !ok {
				return fmt.Errorf("custom label %q references unknown field %q", custom, part)
			}
		}
	}

	for _, column := range t.OutputColumns {
		_, isField := seen[column]
		_, isCustom := t.CustomLabels[column]
		if !isField && !isCustom {
			return fmt.Errorf("output column %q is neither a field nor a custom label", column)
		}
	}

	return t.validateBounds()
}

// validateBounds checks that every bubble and scan region fits on the
// page. Runs after structural validation so field expansion is safe.
func (t *Template) validateBounds() error {
	pageW, pageH := t.PageSize()
	bubbleW, bubbleH := t.BubbleSize()

	for _, field := range t.Fields() {
		if field.DetectionType == DetectOCR {
			x, y, w, h := field.Scan[0], field.Scan[1], field.Scan[2], field.Scan[3]
			if x < 0 || y < 0 || x+w > pageW || y+h > pageH {
				return fmt.Errorf("field %q scan region [%d,%d %dx%d] exceeds page %dx%d",
					field.Label, x, y, w, h, pageW, pageH)
			}
			continue
		}
		for _, bubble := range field.Bubbles {
			if bubble.X < 0 || bubble.Y < 0 || bubble.X+bubbleW > pageW || bubble.Y+bubbleH > pageH {
				return fmt.Errorf("field %q bubble %q at (%d,%d) exceeds page %dx%d",
					field.Label, bubble.Value, bubble.X, bubble.Y, pageW, pageH)
			}
		}
	}
	return nil
}

func (b FieldBlock) validate(name string) error {
	if len(b.Origin) != 2 {
		return fmt.Errorf("block %q origin must be [x, y], got %v", name, b.Origin)
	}
	if b.Origin[0] < 0 || b.Origin[1] < 0 {
		return fmt.Errorf("block %q origin must be non-negative, got %v", name, b.Origin)
	}
	if len(b.FieldLabels) == 0 {
		return fmt.Errorf("block %q has no field labels", name)
	}

	switch b.detectionType() {
	case DetectBubbles:
		if !KnownFieldType(b.FieldType) {
			return fmt.Errorf("block %q has unknown field type %q", name, b.FieldType)
		}
		if b.FieldType == FieldTypeCustom && len(b.BubbleValues) == 0 {
			return fmt.Errorf("block %q is CUSTOM but lists no bubble values", name)
		}
		if b.BubblesGap <= 0 {
			return fmt.Errorf("block %q needs a positive bubblesGap", name)
		}
	case DetectOCR:
		if len(b.ScanDimensions) != 2 || b.ScanDimensions[0] <= 0 || b.ScanDimensions[1] <= 0 {
			return fmt.Errorf("block %q needs scanDimensions [width, height], got %v", name, b.ScanDimensions)
		}
	default:
		return fmt.Errorf("block %q has unknown detection type %q", name, b.DetectionType)
	}

	if len(b.expandedLabels()) > 1 && b.LabelsGap <= 0 {
		return fmt.Errorf("block %q needs a positive labelsGap for %d fields", name, len(b.expandedLabels()))
	}

	switch b.Direction {
	case "", DirectionVertical, DirectionHorizontal:
	default:
		return fmt.Errorf("block %q has unknown direction %q", name, b.Direction)
	}

	return nil
}

func checkDims(name string, d []int) error {
	if len(d) != 2 {
		return fmt.Errorf("%s must be [width, height], got %v", name, d)
	}
	if d[0] <= 0 || d[1] <= 0 {
		return fmt.Errorf("%s must be positive, got %v", name, d)
	}
	return nil
}
