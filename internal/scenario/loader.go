package scenario

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// File is the top-level structure of a scenario YAML file. A file may define
// one scenario or several.
//
// Example:
//
//	scenarios:
//	  - id: ordering-food
//	    title: "Ordering Food"
//	    difficulty: beginner
//	    objective: "Order a bowl of noodles and pay."
//	    persona: "A friendly noodle shop owner in Chengdu."
//	    openingLine: "欢迎光临！想吃点什么？"
type File struct {
	Scenarios []Scenario `yaml:"scenarios"`
}

// LoadFile reads and parses a scenario YAML file from disk.
// Returns a descriptive error if the file cannot be opened or parsed.
func LoadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: open file %q: %w", path, err)
	}
	defer f.Close()

	sf, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("scenario: parse file %q: %w", path, err)
	}
	return sf, nil
}

// LoadFromReader parses scenario YAML from an [io.Reader].
// The reader is consumed entirely; the caller is responsible for closing it.
func LoadFromReader(r io.Reader) (*File, error) {
	var sf File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true) // reject unknown keys to catch typos
	if err := dec.Decode(&sf); err != nil {
		return nil, fmt.Errorf("scenario: decode yaml: %w", err)
	}

	for i, s := range sf.Scenarios {
		if err := Validate(s); err != nil {
			return nil, fmt.Errorf("scenario: scenarios[%d] (%q): %w", i, s.ID, err)
		}
	}
	return &sf, nil
}

// LoadDir loads every .yaml/.yml file under dir (non-recursive) into a
// [Registry]. Duplicate scenario ids across files are an error.
func LoadDir(dir string) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scenario: read dir %q: %w", dir, err)
	}

	reg := NewRegistry()
	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry) {
			continue
		}
		sf, err := LoadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		for _, s := range sf.Scenarios {
			if err := reg.Add(s); err != nil {
				return nil, fmt.Errorf("scenario: file %q: %w", entry.Name(), err)
			}
		}
	}
	return reg, nil
}

func isYAML(entry fs.DirEntry) bool {
	ext := strings.ToLower(filepath.Ext(entry.Name()))
	return ext == ".yaml" || ext == ".yml"
}
