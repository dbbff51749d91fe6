// Package manifest reads the YAML unit manifest consumed by the CLI
// harness: where the script unit lives and which capabilities the host
// declares for it.
package manifest

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/modforge/scriptrt/errors"
)

// Manifest describes one script unit.
type Manifest struct {
	// Source is the unit path, relative to the manifest file.
	Source string `yaml:"source"`
	// Capabilities are declared capability tags, "name" or "name:1.2.3".
	Capabilities []string `yaml:"capabilities"`
	// Watch enables hot reload in the harness.
	Watch bool `yaml:"watch"`

	dir string
}

// Load reads and validates a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Load("read manifest", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.Load("parse manifest", err)
	}
	if m.Source == "" {
		return nil, errors.InvalidInput(errors.PhaseLoad, "manifest has no source")
	}
	m.dir = filepath.Dir(path)
	return &m, nil
}

// SourcePath returns the unit path resolved against the manifest location.
func (m *Manifest) SourcePath() string {
	if filepath.IsAbs(m.Source) {
		return m.Source
	}
	return filepath.Join(m.dir, m.Source)
}

// ReadSource returns the unit bytes.
func (m *Manifest) ReadSource() ([]byte, error) {
	data, err := os.ReadFile(m.SourcePath())
	if err != nil {
		return nil, errors.Load("read script unit", err)
	}
	return data, nil
}
