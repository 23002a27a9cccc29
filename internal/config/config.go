// SPDX-License-Identifier: Apache-2.0

// Package config loads the extractor configuration from YAML, environment
// variables and command-line overrides.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/goccy/go-yaml"

	"github.com/neuroarchive/adnimeta/internal/scan"
	"github.com/neuroarchive/adnimeta/internal/schema"
	"github.com/neuroarchive/adnimeta/internal/sink"
)

//go:embed config.cue
var schemaSource string

// Environment variables that override file settings.
const (
	EnvBasePath = "ADNIMETA_BASE_PATH"
	EnvOutput   = "ADNIMETA_OUTPUT"
	EnvWorkers  = "ADNIMETA_WORKERS"
	EnvMaxFiles = "ADNIMETA_MAX_FILES"
	EnvLogLevel = "ADNIMETA_LOG_LEVEL"
)

// ScanType declares an additional scan type: the classification rule that
// selects it and the locators of its schema.
type ScanType struct {
	Tag     string   `yaml:"tag" json:"tag"`
	Match   []string `yaml:"match,omitempty" json:"match,omitempty"`
	Require []string `yaml:"require,omitempty" json:"require,omitempty"`
	Exclude []string `yaml:"exclude,omitempty" json:"exclude,omitempty"`
	// Extends names a registered tag whose schema is copied before
	// Locators are applied.
	Extends  string              `yaml:"extends,omitempty" json:"extends,omitempty"`
	Locators []scan.FieldLocator `yaml:"locators,omitempty" json:"locators,omitempty"`
}

// Config holds the settings of an extraction run.
type Config struct {
	BasePath  string     `yaml:"base_path" json:"base_path,omitempty"`
	Output    string     `yaml:"output" json:"output,omitempty"`
	Format    string     `yaml:"format" json:"format,omitempty"`
	Folders   []string   `yaml:"folders" json:"folders,omitempty"`
	MaxFiles  int        `yaml:"max_files" json:"max_files,omitempty"`
	Workers   int        `yaml:"workers" json:"workers,omitempty"`
	LogLevel  string     `yaml:"log_level" json:"log_level,omitempty"`
	ScanTypes []ScanType `yaml:"scan_types" json:"scan_types,omitempty"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		BasePath: ".",
		LogLevel: "info",
	}
}

// Load reads the YAML file at path from fs over the defaults, applies
// environment overrides and validates the result. An empty path skips the
// file.
func Load(fs billy.Filesystem, path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := util.ReadFile(fs, path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides settings from environment variables read via lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvBasePath); ok && v != "" {
		c.BasePath = v
	}
	if v, ok := lookup(EnvOutput); ok && v != "" {
		c.Output = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.LogLevel = strings.ToLower(v)
	}
	for name, dst := range map[string]*int{EnvWorkers: &c.Workers, EnvMaxFiles: &c.MaxFiles} {
		v, ok := lookup(name)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: %s: %q is not an integer", name, v)
		}
		*dst = n
	}
	return nil
}

// Validate checks the configuration against the embedded CUE schema and
// the cross-field rules the schema cannot express.
func (c *Config) Validate() error {
	ctx := cuecontext.New()
	def := ctx.CompileString(schemaSource, cue.Filename("config.cue")).LookupPath(cue.ParsePath("#Config"))
	if err := def.Err(); err != nil {
		return fmt.Errorf("config: schema: %w", err)
	}
	if err := def.Unify(ctx.Encode(c)).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("config: %s", strings.TrimSpace(cueerrors.Details(err, nil)))
	}

	// Sheet names are case-insensitive.
	builtin := make(map[string]scan.Tag)
	for _, tag := range scan.NewClassifier().Tags() {
		builtin[strings.ToLower(string(tag))] = tag
	}
	seen := make(map[string]bool, len(c.ScanTypes))
	for _, st := range c.ScanTypes {
		key := strings.ToLower(st.Tag)
		switch {
		case key == sink.SummarySheet || key == sink.DiagnosticsSheet:
			return fmt.Errorf("config: scan type %q collides with the %s sheet", st.Tag, key)
		case seen[key]:
			return fmt.Errorf("config: scan type %q declared twice", st.Tag)
		case builtin[key] != "" && string(builtin[key]) != st.Tag:
			return fmt.Errorf("config: scan type %q collides with built-in type %s", st.Tag, builtin[key])
		}
		seen[key] = true
		if len(st.Match) == 0 && len(st.Require) == 0 {
			return fmt.Errorf("config: scan type %q needs match or require keywords", st.Tag)
		}
	}
	return nil
}

// Rules returns the classification rules of the configured scan types in
// declaration order.
func (c *Config) Rules() []scan.Rule {
	rules := make([]scan.Rule, 0, len(c.ScanTypes))
	for _, st := range c.ScanTypes {
		rules = append(rules, scan.Rule{
			Tag:     scan.Tag(st.Tag),
			Match:   st.Match,
			Require: st.Require,
			Exclude: st.Exclude,
		})
	}
	return rules
}

// Register adds the schemas of the configured scan types to reg. A scan
// type without locators or a base keeps the generic schema.
func (c *Config) Register(reg *schema.Registry) error {
	for _, st := range c.ScanTypes {
		tag := scan.Tag(st.Tag)
		switch {
		case st.Extends != "":
			base := scan.Tag(st.Extends)
			if !reg.Has(base) {
				return fmt.Errorf("config: scan type %q extends unknown type %q", st.Tag, st.Extends)
			}
			if err := reg.Extend(tag, base, st.Locators); err != nil {
				return fmt.Errorf("config: %w", err)
			}
		case len(st.Locators) > 0:
			if err := reg.Register(tag, st.Locators); err != nil {
				return fmt.Errorf("config: %w", err)
			}
		}
	}
	return nil
}
