// Package preset ships the built-in report templates. Presets are
// compiled into the binary and loaded once at startup; they are
// read-only and carry no persistence.
package preset

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/civiclab/reportd/internal/model"
)

//go:embed presets.yaml
var presetsYAML []byte

type presetFile struct {
	Presets []model.TemplatePreset `yaml:"presets"`
}

// Library serves the built-in presets by name.
type Library struct {
	presets []model.TemplatePreset
	byName  map[string]model.TemplatePreset
}

// Load parses the embedded preset file. A malformed embedded file is a
// build defect, not a runtime condition, so the error is fatal to
// startup.
func Load() (*Library, error) {
	return load(presetsYAML)
}

func load(raw []byte) (*Library, error) {
	var file presetFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse presets: %w", err)
	}

	lib := &Library{
		presets: file.Presets,
		byName:  make(map[string]model.TemplatePreset, len(file.Presets)),
	}
	for _, p := range file.Presets {
		if p.Name == "" {
			return nil, fmt.Errorf("preset with empty name")
		}
		if _, dup := lib.byName[p.Name]; dup {
			return nil, fmt.Errorf("duplicate preset name %q", p.Name)
		}
		lib.byName[p.Name] = p
	}
	return lib, nil
}

// All returns every preset in file order.
func (l *Library) All() []model.TemplatePreset {
	return l.presets
}

// Get returns the preset with the given name.
func (l *Library) Get(name string) (model.TemplatePreset, bool) {
	p, ok := l.byName[name]
	return p, ok
}
