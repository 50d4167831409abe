package shard

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk shard list applied at startup.
type File struct {
	Levels []Descriptor `yaml:"levels"`
}

// LoadFile reads and validates a YAML shard list.
//
// Precondition: path must name a readable YAML file.
// Postcondition: Returns the validated descriptors or a non-nil error.
func LoadFile(path string) ([]Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading shard file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML shard list.
func Parse(data []byte) ([]Descriptor, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing shard file: %w", err)
	}
	seen := make(map[string]bool, len(f.Levels))
	for _, d := range f.Levels {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if seen[d.Level] {
			return nil, fmt.Errorf("duplicate shard level %q", d.Level)
		}
		seen[d.Level] = true
	}
	return f.Levels, nil
}
