// Package config loads and validates the pipeline configuration file.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"decksage/internal/annotation"
	"decksage/internal/uncertainty"
)

const (
	defaultMinIAA                = 0.6
	defaultEscalationAlpha       = 0.4
	defaultEscalationUncertainty = 0.7
)

// Config is the full pipeline configuration.
type Config struct {
	Workspace  string              `yaml:"workspace"`
	Domain     string              `yaml:"domain"`
	Annotators []annotation.Config `yaml:"annotators"`
	Thresholds Thresholds          `yaml:"thresholds"`
	Selection  Selection           `yaml:"selection"`
	Notify     bool                `yaml:"notify"`
}

// Thresholds gate consensus acceptance and escalation. Unset values
// fall back to defaults.
type Thresholds struct {
	MinIAA                *float64 `yaml:"min_iaa"`
	EscalationAlpha       *float64 `yaml:"escalation_alpha"`
	EscalationUncertainty *float64 `yaml:"escalation_uncertainty"`
}

// Selection configures the uncertainty selector.
type Selection struct {
	TopK           *int     `yaml:"top_k"`
	MinUncertainty *float64 `yaml:"min_uncertainty"`
	UseDiversity   *bool    `yaml:"use_diversity"`
}

// ValidationError captures a single field-specific validation issue.
type ValidationError struct {
	File    string
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.File, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.File, e.Field, e.Message)
}

// ValidationErrors aggregates multiple validation problems.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.Error())
	}
	return strings.Join(parts, "\n")
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Workspace:  ".",
		Domain:     "mtg",
		Annotators: annotation.DefaultConfigs(),
	}
}

// Load reads and validates a config file. Missing annotators fall back
// to the default annotator set.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data, path)
}

// Parse unmarshals and validates config data. source names the file in
// validation messages.
func Parse(data []byte, source string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, ValidationErrors{{File: source, Field: "yaml", Message: err.Error()}}
	}

	if cfg.Workspace == "" {
		cfg.Workspace = "."
	}
	if cfg.Domain == "" {
		cfg.Domain = "mtg"
	}
	if len(cfg.Annotators) == 0 {
		cfg.Annotators = annotation.DefaultConfigs()
	}

	if errs := cfg.validate(source); len(errs) > 0 {
		return nil, errs
	}
	return &cfg, nil
}

func (c *Config) validate(source string) ValidationErrors {
	var errs ValidationErrors

	if len(c.Annotators) < 2 {
		errs = append(errs, ValidationError{
			File:    source,
			Field:   "annotators",
			Message: fmt.Sprintf("at least 2 annotators required, got %d", len(c.Annotators)),
		})
	}
	seen := make(map[string]struct{}, len(c.Annotators))
	for i, a := range c.Annotators {
		field := fmt.Sprintf("annotators[%d]", i)
		if a.Name == "" {
			errs = append(errs, ValidationError{File: source, Field: field + ".name", Message: "name is required"})
		} else if _, dup := seen[a.Name]; dup {
			errs = append(errs, ValidationError{File: source, Field: field + ".name", Message: fmt.Sprintf("duplicate annotator name %q", a.Name)})
		} else {
			seen[a.Name] = struct{}{}
		}
		if a.Backend == "" {
			errs = append(errs, ValidationError{File: source, Field: field + ".backend", Message: "backend is required"})
		}
		if a.Temperature < 0 || a.Temperature > 2 {
			errs = append(errs, ValidationError{File: source, Field: field + ".temperature", Message: "temperature must be in [0, 2]"})
		}
	}

	checkUnit := func(field string, v *float64) {
		if v != nil && (*v < 0 || *v > 1) {
			errs = append(errs, ValidationError{File: source, Field: field, Message: "must be in [0, 1]"})
		}
	}
	checkUnit("thresholds.min_iaa", c.Thresholds.MinIAA)
	checkUnit("thresholds.escalation_alpha", c.Thresholds.EscalationAlpha)
	checkUnit("thresholds.escalation_uncertainty", c.Thresholds.EscalationUncertainty)
	checkUnit("selection.min_uncertainty", c.Selection.MinUncertainty)
	if c.Selection.TopK != nil && *c.Selection.TopK <= 0 {
		errs = append(errs, ValidationError{File: source, Field: "selection.top_k", Message: "must be positive"})
	}

	return errs
}

// MinIAA is the minimum overall alpha for medium agreement.
func (c *Config) MinIAA() float64 {
	if c.Thresholds.MinIAA != nil {
		return *c.Thresholds.MinIAA
	}
	return defaultMinIAA
}

// EscalationAlpha is the alpha below which results go to human review.
func (c *Config) EscalationAlpha() float64 {
	if c.Thresholds.EscalationAlpha != nil {
		return *c.Thresholds.EscalationAlpha
	}
	return defaultEscalationAlpha
}

// EscalationUncertainty is the combined score at which uncertain pairs
// go to human review.
func (c *Config) EscalationUncertainty() float64 {
	if c.Thresholds.EscalationUncertainty != nil {
		return *c.Thresholds.EscalationUncertainty
	}
	return defaultEscalationUncertainty
}

// TopK is the maximum number of pairs the selector returns.
func (c *Config) TopK() int {
	if c.Selection.TopK != nil {
		return *c.Selection.TopK
	}
	return uncertainty.DefaultTopK
}

// MinUncertainty is the selector's combined-score floor.
func (c *Config) MinUncertainty() float64 {
	if c.Selection.MinUncertainty != nil {
		return *c.Selection.MinUncertainty
	}
	return uncertainty.DefaultMinUncertainty
}

// UseDiversity reports whether selection applies the diversity re-blend.
func (c *Config) UseDiversity() bool {
	if c.Selection.UseDiversity != nil {
		return *c.Selection.UseDiversity
	}
	return true
}
