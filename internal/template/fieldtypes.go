package template

// FieldTypeCustom marks a block that supplies its own bubble values.
const FieldTypeCustom = "CUSTOM"

// FieldType is a built-in bubble layout.
type FieldType struct {
	BubbleValues []string
	Direction    string
}

var builtinFieldTypes = map[string]FieldType{
	"QTYPE_INT": {
		BubbleValues: []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9"},
		Direction:    DirectionVertical,
	},
	"QTYPE_INT_FROM_1": {
		BubbleValues: []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "0"},
		Direction:    DirectionVertical,
	},
	"QTYPE_MCQ4": {
		BubbleValues: []string{"A", "B", "C", "D"},
		Direction:    DirectionHorizontal,
	},
	"QTYPE_MCQ5": {
		BubbleValues: []string{"A", "B", "C", "D", "E"},
		Direction:    DirectionHorizontal,
	},
	"QTYPE_BOOL": {
		BubbleValues: []string{"T", "F"},
		Direction:    DirectionHorizontal,
	},
}

// KnownFieldType reports whether name is a built-in type or CUSTOM.
func KnownFieldType(name string) bool {
	if name == FieldTypeCustom {
		return true
	}
	_, ok := builtinFieldTypes[name]
	return ok
}

// DigitsFieldType reports whether a built-in type's values are all
// digits. OCR blocks declared with such a type are read digits-only.
func DigitsFieldType(name string) bool {
	ft, ok := builtinFieldTypes[name]
	if !ok {
		return false
	}
	for _, v := range ft.BubbleValues {
		if len(v) != 1 || v[0] < '0' || v[0] > '9' {
			return false
		}
	}
	return true
}
