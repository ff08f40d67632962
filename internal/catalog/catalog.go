// Package catalog loads the challenge catalog — the peripheral
// title/description/scoring_description metadata — from a YAML file at
// boot.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/agent-arena/compression-arena/internal/challenge"
)

// Entry is one challenge's catalog metadata.
type Entry struct {
	ID                 string `yaml:"id"`
	Title              string `yaml:"title"`
	Description        string `yaml:"description"`
	ScoringDescription string `yaml:"scoring_description"`
}

type document struct {
	Challenges []Entry `yaml:"challenges"`
}

// Load parses path into a slice of Entry, in file order.
func Load(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	if len(doc.Challenges) == 0 {
		return nil, fmt.Errorf("catalog %s defines no challenges", path)
	}
	return doc.Challenges, nil
}

// BuildSpecs turns catalog entries into challenge.Spec instances, each
// backed by its own reference-input file under challengesDir.
func BuildSpecs(entries []Entry, challengesDir string) map[string]*challenge.Spec {
	specs := make(map[string]*challenge.Spec, len(entries))
	for _, e := range entries {
		inputPath := filepath.Join(challengesDir, e.ID, "input.bin")
		specs[e.ID] = challenge.New(e.ID, e.Title, e.Description, e.ScoringDescription, inputPath)
	}
	return specs
}
