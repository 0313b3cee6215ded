package codec

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadParams reads a fitted-parameter artifact from a YAML file and builds a
// Codec from it.
func LoadParams(path string) (*Codec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var params Params
	if err := yaml.Unmarshal(data, &params); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", path, err)
	}
	c, err := New(params)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return c, nil
}
