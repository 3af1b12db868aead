package evaluation

import (
	"encoding/json"
	"fmt"
	"os"
)

// Load reads and validates an answer key from an evaluation.json file.
func Load(path string) (*Key, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read answer key: %w", err)
	}
	k, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("answer key %s: %w", path, err)
	}
	return k, nil
}

// Parse decodes and validates an answer key.
func Parse(data []byte) (*Key, error) {
	var f keyFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse answer key: %w", err)
	}
	k, err := f.build()
	if err != nil {
		return nil, fmt.Errorf("invalid answer key: %w", err)
	}
	return k, nil
}
