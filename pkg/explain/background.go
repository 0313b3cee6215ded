package explain

import (
	"encoding/json"
	"fmt"
	"os"
)

// BackgroundArtifact is the serialized reference sample, already encoded.
type BackgroundArtifact struct {
	Version string      `json:"version"`
	Rows    [][]float64 `json:"rows"`
}

// LoadBackground reads a background artifact and checks every row against
// the expected encoded width.
func LoadBackground(path string, width int) ([][]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var a BackgroundArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", path, err)
	}
	if len(a.Rows) == 0 {
		return nil, fmt.Errorf("load %s: no rows", path)
	}
	for i, row := range a.Rows {
		if len(row) != width {
			return nil, fmt.Errorf("load %s: row %d has %d columns, want %d", path, i, len(row), width)
		}
	}
	return a.Rows, nil
}
