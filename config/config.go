// Package config provides configuration loading for rdf-models.
package config

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/geoknoesis/rdf-models/modelset"
	"github.com/geoknoesis/rdf-models/rdf"
	"github.com/geoknoesis/rdf-models/uri"
	"gopkg.in/yaml.v3"
)

// Store kinds.
const (
	StoreMemory = "memory"
	StorePebble = "pebble"
)

// Config represents the complete rdf-models configuration.
type Config struct {
	Store  StoreConfig `yaml:"store" mapstructure:"store"`
	URIMap []uri.Rule  `yaml:"uri_map" mapstructure:"uri_map"`
	HTTP   HTTPConfig  `yaml:"http" mapstructure:"http"`
	NATS   NATSConfig  `yaml:"nats" mapstructure:"nats"`
	Load   LoadConfig  `yaml:"load" mapstructure:"load"`
	Log    LogConfig   `yaml:"log" mapstructure:"log"`
}

// StoreConfig selects the quad store.
type StoreConfig struct {
	// Kind is "memory" or "pebble".
	Kind string `yaml:"kind" mapstructure:"kind"`
	// Dir is the pebble data directory.
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// HTTPConfig configures the http: and https: URI handler.
type HTTPConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// Timeout is the soft connect and read timeout.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
	// HardTimeoutMargin is added to Timeout for the hard limit.
	HardTimeoutMargin time.Duration `yaml:"hard_timeout_margin" mapstructure:"hard_timeout_margin"`
}

// NATSConfig configures the nats-kv: URI handler.
type NATSConfig struct {
	// URL is the NATS server URL (empty = handler disabled).
	URL string `yaml:"url" mapstructure:"url"`
}

// LoadConfig holds the model set's load options.
type LoadConfig struct {
	DemandLoadImports bool `yaml:"demand_load_imports" mapstructure:"demand_load_imports"`
	// SaveStrategy is "memory" or "tempfile".
	SaveStrategy string `yaml:"save_strategy" mapstructure:"save_strategy"`
	// SaveFormat overrides the format models are saved in (turtle, ntriples).
	SaveFormat string `yaml:"save_format,omitempty" mapstructure:"save_format"`
	// Namespaces are bound for every model of the set.
	Namespaces map[string]string `yaml:"namespaces,omitempty" mapstructure:"namespaces"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level" mapstructure:"level"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{Kind: StoreMemory},
		HTTP: HTTPConfig{
			Enabled:           true,
			Timeout:           uri.DefaultHTTPTimeout,
			HardTimeoutMargin: uri.DefaultHardTimeoutMargin,
		},
		Load: LoadConfig{
			DemandLoadImports: true,
			SaveStrategy:      modelset.SaveInMemory.String(),
		},
		Log: LogConfig{Level: "info"},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	switch c.Store.Kind {
	case StoreMemory:
	case StorePebble:
		if c.Store.Dir == "" {
			return errors.New("config: store.dir is required for the pebble store")
		}
	default:
		return errors.Newf("config: unknown store.kind %q", c.Store.Kind)
	}
	if _, err := uri.NewMapper(c.URIMap...); err != nil {
		return errors.Wrap(err, "config: uri_map")
	}
	if c.HTTP.Timeout < 0 || c.HTTP.HardTimeoutMargin < 0 {
		return errors.New("config: http timeouts must not be negative")
	}
	if _, err := modelset.ParseSaveStrategy(c.Load.SaveStrategy); err != nil {
		return errors.Wrap(err, "config: load.save_strategy")
	}
	if _, err := c.SaveFormat(); err != nil {
		return err
	}
	for prefix, ns := range c.Load.Namespaces {
		if err := rdf.ValidateIRI(ns); err != nil {
			return errors.Wrapf(err, "config: load.namespaces.%s", prefix)
		}
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return errors.Newf("config: unknown log.level %q", c.Log.Level)
	}
	return nil
}

// SaveFormat returns the configured save format, or "" when models keep
// their own format.
func (c *Config) SaveFormat() (rdf.Format, error) {
	switch strings.ToLower(c.Load.SaveFormat) {
	case "":
		return "", nil
	case "turtle", "ttl":
		return rdf.FormatTurtle, nil
	case "ntriples", "n-triples", "nt":
		return rdf.FormatNTriples, nil
	default:
		return "", errors.Newf("config: unknown load.save_format %q", c.Load.SaveFormat)
	}
}

// BaseNamespaces returns the configured namespaces sorted by prefix.
func (c *Config) BaseNamespaces() []rdf.Namespace {
	out := make([]rdf.Namespace, 0, len(c.Load.Namespaces))
	for prefix, ns := range c.Load.Namespaces {
		out = append(out, rdf.Namespace{Prefix: prefix, IRI: ns})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Prefix < out[j].Prefix })
	return out
}

// Options converts the load section into model set options.
func (c *Config) Options() (*modelset.Options, error) {
	strategy, err := modelset.ParseSaveStrategy(c.Load.SaveStrategy)
	if err != nil {
		return nil, errors.Wrap(err, "config: load.save_strategy")
	}
	format, err := c.SaveFormat()
	if err != nil {
		return nil, err
	}
	opts := modelset.NewOptions()
	opts.Set(modelset.OptionDemandLoadImports, c.Load.DemandLoadImports)
	opts.Set(modelset.OptionSaveStrategy, strategy)
	if format != "" {
		opts.Set(modelset.OptionSaveFormat, format)
	}
	return opts, nil
}

// LoadFromFile loads configuration from a YAML file over the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "config: read file")
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, errors.Wrap(err, "config: parse file")
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "config: create directory")
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "config: marshal")
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "config: write file")
	}

	return nil
}

// Merge merges another config into this one. Non-zero values of other win;
// mapping rules and namespaces are appended. Booleans are left alone since
// false cannot be told apart from unset.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Store
	if other.Store.Kind != "" {
		c.Store.Kind = other.Store.Kind
	}
	if other.Store.Dir != "" {
		c.Store.Dir = other.Store.Dir
	}

	c.URIMap = append(c.URIMap, other.URIMap...)

	// HTTP
	if other.HTTP.Timeout != 0 {
		c.HTTP.Timeout = other.HTTP.Timeout
	}
	if other.HTTP.HardTimeoutMargin != 0 {
		c.HTTP.HardTimeoutMargin = other.HTTP.HardTimeoutMargin
	}

	// NATS
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}

	// Load
	if other.Load.SaveStrategy != "" {
		c.Load.SaveStrategy = other.Load.SaveStrategy
	}
	if other.Load.SaveFormat != "" {
		c.Load.SaveFormat = other.Load.SaveFormat
	}
	if len(other.Load.Namespaces) > 0 {
		if c.Load.Namespaces == nil {
			c.Load.Namespaces = map[string]string{}
		}
		for prefix, ns := range other.Load.Namespaces {
			c.Load.Namespaces[prefix] = ns
		}
	}

	// Log
	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
}
