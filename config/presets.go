package config

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-version"
	"gopkg.in/yaml.v3"
)

// SupportedPresetsSchema is the version constraint this build accepts
// for a presets file's schema_version key, rejecting files written for
// an incompatible future format.
const SupportedPresetsSchema = ">= 1.0, < 2.0"

// Preset is a named bundle of channel defaults, applied on channel
// creation or by a PRESET command, stored as a YAML sibling to the
// INI config (a different on-disk format, unlike the INI file, since
// this one is meant to be hand-curated and diffed).
type Preset struct {
	Name         string  `yaml:"-"`
	Mode         string  `yaml:"mode"`
	Low          float64 `yaml:"low,omitempty"`
	High         float64 `yaml:"high,omitempty"`
	KaiserBeta   float64 `yaml:"kaiser_beta,omitempty"`
	SquelchOpen  float64 `yaml:"squelch_open,omitempty"`
	SquelchClose float64 `yaml:"squelch_close,omitempty"`
	AGC          bool    `yaml:"agc,omitempty"`
	Headroom     float64 `yaml:"headroom,omitempty"`
	DeemphTC     float64 `yaml:"deemph_tc,omitempty"`
	Encoding     string  `yaml:"encoding,omitempty"`
}

// PresetsFile is the on-disk YAML document: a schema version plus the
// named preset bundle.
type PresetsFile struct {
	SchemaVersion string            `yaml:"schema_version"`
	Presets       map[string]Preset `yaml:"presets"`
}

// LoadPresets reads and validates a presets file from path, rejecting
// one whose schema_version doesn't satisfy SupportedPresetsSchema.
func LoadPresets(path string) (map[string]Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: presets: %w", err)
	}

	var doc PresetsFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: presets: parse: %w", err)
	}

	if err := checkSchemaVersion("presets", doc.SchemaVersion, SupportedPresetsSchema); err != nil {
		return nil, err
	}

	for name, p := range doc.Presets {
		p.Name = name
		doc.Presets[name] = p
	}
	return doc.Presets, nil
}

// checkSchemaVersion rejects a file whose declared schema_version
// doesn't satisfy constraint, via hashicorp/go-version's semver
// comparison rather than a bespoke string compare.
func checkSchemaVersion(what, declared, constraint string) error {
	if declared == "" {
		return fmt.Errorf("config: %s: missing schema_version", what)
	}
	v, err := version.NewVersion(declared)
	if err != nil {
		return fmt.Errorf("config: %s: invalid schema_version %q: %w", what, declared, err)
	}
	c, err := version.NewConstraint(constraint)
	if err != nil {
		return fmt.Errorf("config: %s: internal constraint error: %w", what, err)
	}
	if !c.Check(v) {
		return fmt.Errorf("config: %s: schema_version %s does not satisfy %s", what, declared, constraint)
	}
	return nil
}
