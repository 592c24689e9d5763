// Package config loads the hashdiff run configuration: a strict YAML
// document, overlaid by HASHDIFF_* environment variables and then by
// command-line flags.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v2"

	"github.com/lattice-substrate/hashdiff/invocation"
	"github.com/lattice-substrate/hashdiff/logger"
)

type (
	// File is the run configuration.
	File struct {
		Subject      string            `yaml:"subject" env:"HASHDIFF_SUBJECT"`
		Reference    Reference         `yaml:"reference"`
		Algorithms   []string          `yaml:"algorithms" env:"HASHDIFF_ALGORITHMS"`
		DisplayNames map[string]string `yaml:"display_names"`

		Trials     int    `yaml:"trials" env:"HASHDIFF_TRIALS"`
		MaxOptions int    `yaml:"max_options" env:"HASHDIFF_MAX_OPTIONS"`
		MaxFiles   int    `yaml:"max_files" env:"HASHDIFF_MAX_FILES"`
		MaxPayload int    `yaml:"max_payload" env:"HASHDIFF_MAX_PAYLOAD"`
		MaxLiteral int    `yaml:"max_literal" env:"HASHDIFF_MAX_LITERAL"`
		Timeout    string `yaml:"timeout" env:"HASHDIFF_TIMEOUT"`
		Seed       uint64 `yaml:"seed" env:"HASHDIFF_SEED"`

		// WorkDir holds every generated file. It has no default.
		WorkDir     string `yaml:"work_dir" env:"HASHDIFF_WORK_DIR"`
		LogLevel    string `yaml:"log_level" env:"HASHDIFF_LOG_LEVEL"`
		MetricsFile string `yaml:"metrics_file" env:"HASHDIFF_METRICS_FILE"`
		ReportFile  string `yaml:"report_file" env:"HASHDIFF_REPORT_FILE"`
	}

	// Reference is the oracle command: Path Args... <algorithm> [file].
	Reference struct {
		Path string   `yaml:"path" env:"HASHDIFF_REFERENCE"`
		Args []string `yaml:"args" env:"HASHDIFF_REFERENCE_ARGS"`
	}
)

// Default returns the configuration used for keys a document leaves out.
func Default() *File {
	return &File{
		Reference:  Reference{Path: "openssl"},
		Algorithms: []string{"md5", "sha256"},
		DisplayNames: map[string]string{
			"md5":    "MD5",
			"sha256": "SHA2-256",
		},
		Trials:     100,
		MaxOptions: 4,
		MaxFiles:   3,
		MaxPayload: 1024,
		MaxLiteral: 20,
		Timeout:    "2s",
		LogLevel:   logger.LevelInfo,
	}
}

// Load decodes the YAML document at path over the defaults. Unknown keys
// are errors. The result is not validated; overlays come first.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML document over the defaults.
func Parse(data []byte) (*File, error) {
	cfg := Default()
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("decode config yaml: %w", err)
	}
	return cfg, nil
}

// Validate checks ranges and required fields.
func (c *File) Validate() error {
	if strings.TrimSpace(c.Subject) == "" {
		return fmt.Errorf("subject is required")
	}
	if strings.TrimSpace(c.Reference.Path) == "" {
		return fmt.Errorf("reference.path is required")
	}
	if strings.TrimSpace(c.WorkDir) == "" {
		return fmt.Errorf("work_dir is required")
	}
	if len(c.Algorithms) == 0 {
		return fmt.Errorf("algorithms must not be empty")
	}
	seen := make(map[string]struct{}, len(c.Algorithms))
	for i, alg := range c.Algorithms {
		if strings.TrimSpace(alg) == "" {
			return fmt.Errorf("algorithms[%d] is empty", i)
		}
		if _, dup := seen[alg]; dup {
			return fmt.Errorf("algorithm %q listed twice", alg)
		}
		seen[alg] = struct{}{}
	}
	if c.Trials < 1 {
		return fmt.Errorf("trials must be >= 1")
	}
	if c.MaxOptions < 0 || c.MaxOptions > len(invocation.Legal) {
		return fmt.Errorf("max_options must be between 0 and %d", len(invocation.Legal))
	}
	if c.MaxFiles < 1 {
		return fmt.Errorf("max_files must be >= 1")
	}
	if c.MaxPayload < 0 {
		return fmt.Errorf("max_payload must be >= 0")
	}
	if c.MaxLiteral < 0 {
		return fmt.Errorf("max_literal must be >= 0")
	}
	if _, err := c.TimeoutDuration(); err != nil {
		return err
	}
	if !logger.ValidateLogLevel(c.LogLevel) {
		return fmt.Errorf("log_level %q must be one of DEBUG, INFO, WARN, ERROR", c.LogLevel)
	}
	return nil
}

// TimeoutDuration parses Timeout.
func (c *File) TimeoutDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("timeout: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("timeout must be positive")
	}
	return d, nil
}

// ApplyEnv overlays every field tagged env with its value in environ. List
// fields are comma separated. A nil environ overlays nothing.
func (c *File) ApplyEnv(environ map[string]string) error {
	if environ == nil {
		environ = map[string]string{}
	}
	if err := env.ParseWithOptions(c, env.Options{Environment: environ}); err != nil {
		return fmt.Errorf("environment overlay: %w", err)
	}
	c.Algorithms = trimList(c.Algorithms)
	c.Reference.Args = trimList(c.Reference.Args)
	return nil
}

// Environ returns the process environment in the form ApplyEnv takes.
func Environ() map[string]string {
	return env.ToMap(os.Environ())
}

func trimList(items []string) []string {
	if items == nil {
		return nil
	}
	out := items[:0]
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
