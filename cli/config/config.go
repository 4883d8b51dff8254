// Package config handles YAML config file loading for gleaner.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents a gleaner.yaml configuration file.
// All values are optional and act as defaults for harvest flags.
// CLI flags always override config values; unknown keys are ignored.
type Config struct {
	URL             string     `yaml:"url"`
	HTTPUser        string     `yaml:"httpUser"`
	HTTPPass        string     `yaml:"httpPass"`
	MetadataPrefix  string     `yaml:"metadataPrefix"`
	Set             StringList `yaml:"set"`
	From            string     `yaml:"from"`
	Until           string     `yaml:"until"`
	DateGranularity string     `yaml:"dateGranularity"`
	Verbose         bool       `yaml:"verbose"`
	SkipIdentify    bool       `yaml:"skipIdentify"`
	Timeout         Duration   `yaml:"timeout"`

	State   StateConfig   `yaml:"state"`
	Storage StorageConfig `yaml:"storage"`
}

// Load parses the config file at path: the raw bytes go through ExpandEnv
// before YAML unmarshalling, so secrets can stay in the environment. A
// missing file is an error; the caller decides beforehand whether a config
// file is optional.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("cannot read config file %q: %w", path, err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(ExpandEnv(string(raw))), cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}
	return cfg, nil
}

// StateConfig selects where checkpoint and marker state lives.
type StateConfig struct {
	// Backend is "file" (default) or "redis".
	Backend string `yaml:"backend"`
	// Dir is the state directory for the file backend. Empty uses
	// ~/.gleaner.
	Dir string `yaml:"dir"`
	// RedisURL is the connection URL for the redis backend.
	RedisURL string `yaml:"redisUrl"`
}

// StorageConfig selects where harvested records land.
type StorageConfig struct {
	// Backend is "file" (default) or "s3".
	Backend string `yaml:"backend"`
	// Dir is the output root for the file backend.
	Dir string `yaml:"dir"`
	// Compress gzips record files (file backend).
	Compress bool `yaml:"compress"`
	// Path is "bucket" or "bucket/prefix" for the s3 backend.
	Path string `yaml:"path"`
	// Region is the AWS region (optional, default chain).
	Region string `yaml:"region"`
	// Endpoint is a custom S3 endpoint for S3-compatible providers.
	Endpoint string `yaml:"endpoint"`
	// S3PathStyle forces path-style addressing.
	S3PathStyle bool `yaml:"s3_path_style"`
}

// StringList accepts either a single scalar or a sequence in YAML, so
//
//	set: math
//
// and
//
//	set: [math, physics]
//
// both parse. Order is preserved.
type StringList []string

// UnmarshalYAML implements scalar-or-sequence parsing.
func (l *StringList) UnmarshalYAML(unmarshal func(any) error) error {
	var single string
	if err := unmarshal(&single); err == nil {
		if single != "" {
			*l = StringList{single}
		}
		return nil
	}
	var many []string
	if err := unmarshal(&many); err != nil {
		return fmt.Errorf("set must be a string or a list of strings: %w", err)
	}
	*l = StringList(many)
	return nil
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}
