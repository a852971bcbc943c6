package kida

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds engine configuration. The zero value plus applyDefaults
// gives the recommended settings; boolean options defaulting to true
// use pointers so an explicit false survives defaulting.
type Config struct {
	// MaxTokens caps the lexer token count per template
	// (default: 1,000,000). Protects against pathological input.
	MaxTokens int `yaml:"max_tokens"`

	// MaxIncludeDepth bounds nested include/embed/extends resolution
	// (default: 16).
	MaxIncludeDepth int `yaml:"max_include_depth"`

	// FilterInlining enables the filter-inlining optimizer pass
	// (default: true). Inlining is disabled per name for any builtin
	// filter a user registration shadows.
	FilterInlining *bool `yaml:"filter_inlining"`

	// BufferPreallocationThreshold is the minimum static size estimate,
	// in bytes, at which render output buffers are pre-grown
	// (default: 4096).
	BufferPreallocationThreshold int `yaml:"buffer_preallocation_threshold"`

	// AutoEscape HTML-escapes expression output (default: true).
	// Safe-marked values always pass through unescaped.
	AutoEscape *bool `yaml:"auto_escape"`

	// StrictUndefined makes access to undefined variables a render
	// error instead of rendering empty.
	StrictUndefined bool `yaml:"strict_undefined"`

	// StrictFilters makes unknown filters and filter failures render
	// errors. When false an unknown filter passes its input through
	// and a failing filter yields none.
	StrictFilters bool `yaml:"strict_filters"`
}

// applyDefaults fills in default values for unset Config fields.
func (c *Config) applyDefaults() {
	if c.MaxTokens <= 0 {
		c.MaxTokens = 1_000_000
	}
	if c.MaxIncludeDepth <= 0 {
		c.MaxIncludeDepth = 16
	}
	if c.FilterInlining == nil {
		t := true
		c.FilterInlining = &t
	}
	if c.BufferPreallocationThreshold <= 0 {
		c.BufferPreallocationThreshold = 4096
	}
	if c.AutoEscape == nil {
		t := true
		c.AutoEscape = &t
	}
}

// LoadConfig reads a YAML configuration file. Missing keys get the
// standard defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}
