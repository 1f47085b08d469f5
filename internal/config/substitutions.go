package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Substitution rewrites From to To inside incoming grid cells, for names the
// spreadsheet spells differently from the tracked tree.
type Substitution struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

type Substitutions []Substitution

type substitutionsFile struct {
	Substitutions Substitutions `yaml:"substitutions"`
}

func LoadSubstitutions(path string) (Substitutions, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(expandPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var file substitutionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse substitutions %s: %w", path, err)
	}
	out := make(Substitutions, 0, len(file.Substitutions))
	for i, sub := range file.Substitutions {
		if sub.From == "" {
			return nil, fmt.Errorf("substitution %d has empty from", i)
		}
		out = append(out, sub)
	}
	return out, nil
}

func SaveSubstitutions(path string, subs Substitutions) error {
	path = expandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(substitutionsFile{Substitutions: subs})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Apply runs the substitutions last to first, so later entries see the text
// before earlier ones rewrite it.
func (s Substitutions) Apply(cell string) string {
	for i := len(s) - 1; i >= 0; i-- {
		cell = strings.ReplaceAll(cell, s[i].From, s[i].To)
	}
	return cell
}
