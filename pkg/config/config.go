// Package config loads browserbox run configuration from YAML.
//
// A configuration file holds defaults and a list of scenarios. Each scenario
// names one container image to launch, the endpoint to poll once it is up,
// and the page to visit. Built-in scenarios reproduce the Playwright server,
// browserless CDP and Selenium standalone setups; a file may override them by
// name or add new ones.
//
//	defaults:
//	  launcher: cli
//	  retry:
//	    max_attempts: 15
//	    delay: 1s
//	scenarios:
//	  - name: browserless-cdp
//	    image: ghcr.io/browserless/chromium
//	    ports: ["3000:3000"]
//	    protocol: cdp
//	    endpoint: http://localhost:3000
//	    url: https://example.com
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"

	"github.com/entrhq/browserbox/pkg/logging"
)

// Launcher names
const (
	LauncherCLI    = "cli"
	LauncherEngine = "engine"
)

// Config represents the configuration for a browserbox invocation
type Config struct {
	Defaults  Defaults   `yaml:"defaults"`
	Scenarios []Scenario `yaml:"scenarios"`

	// ConfigFilePath is the file this configuration was loaded from, if any
	ConfigFilePath string `yaml:"-"`
}

// Defaults apply to every scenario that does not override them
type Defaults struct {
	// Launcher selects how containers are started: cli or engine
	Launcher string `yaml:"launcher"`

	// DockerBinary is the docker-compatible CLI used by the cli launcher
	DockerBinary string `yaml:"docker_binary"`

	// Verbosity controls logging level: quiet, normal, verbose, debug
	Verbosity string `yaml:"verbosity"`

	// LogDir mirrors logs to a session file in this directory when set
	LogDir string `yaml:"log_dir"`

	// StopTimeout bounds container teardown
	StopTimeout time.Duration `yaml:"stop_timeout"`

	// Retry is the readiness polling policy
	Retry RetryConfig `yaml:"retry"`
}

// RetryConfig is the YAML form of a readiness policy
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Delay       time.Duration `yaml:"delay"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Defaults: Defaults{
			Launcher:     LauncherCLI,
			DockerBinary: "docker",
			Verbosity:    "normal",
			StopTimeout:  30 * time.Second,
			Retry: RetryConfig{
				MaxAttempts: 15,
				Delay:       time.Second,
			},
		},
		Scenarios: BuiltinScenarios(),
	}
}

// Load reads a YAML file and merges it over DefaultConfig. Scenarios in the
// file replace built-in scenarios of the same name; others are appended.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.ConfigFilePath = path
	return cfg, nil
}

// Parse merges YAML data over DefaultConfig.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()

	var file struct {
		Defaults  yaml.Node  `yaml:"defaults"`
		Scenarios []Scenario `yaml:"scenarios"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Decoding into the populated struct keeps defaults for omitted keys.
	if !file.Defaults.IsZero() {
		if err := file.Defaults.Decode(&cfg.Defaults); err != nil {
			return nil, fmt.Errorf("failed to parse defaults: %w", err)
		}
	}

	for _, s := range file.Scenarios {
		cfg.upsert(s)
	}
	return cfg, nil
}

func (c *Config) upsert(s Scenario) {
	for i := range c.Scenarios {
		if c.Scenarios[i].Name == s.Name {
			c.Scenarios[i] = s
			return
		}
	}
	c.Scenarios = append(c.Scenarios, s)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Defaults.Launcher {
	case LauncherCLI, LauncherEngine:
	default:
		return fmt.Errorf("invalid launcher: %s (must be 'cli' or 'engine')", c.Defaults.Launcher)
	}

	if c.Defaults.Launcher == LauncherCLI && c.Defaults.DockerBinary == "" {
		return fmt.Errorf("docker_binary is required for the cli launcher")
	}

	if _, err := logging.ParseLevel(c.Defaults.Verbosity); err != nil {
		return err
	}

	if c.Defaults.StopTimeout < 0 {
		return fmt.Errorf("stop_timeout must not be negative")
	}

	if err := c.Defaults.Retry.validate(); err != nil {
		return fmt.Errorf("defaults: %w", err)
	}

	seen := make(map[string]bool, len(c.Scenarios))
	for _, s := range c.Scenarios {
		if seen[s.Name] {
			return fmt.Errorf("duplicate scenario name: %s", s.Name)
		}
		seen[s.Name] = true

		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (r RetryConfig) validate() error {
	if r.MaxAttempts < 1 {
		return fmt.Errorf("retry max_attempts must be at least 1, got %d", r.MaxAttempts)
	}
	if r.Delay < 0 {
		return fmt.Errorf("retry delay must not be negative")
	}
	return nil
}

// Scenario returns the scenario with the given name.
func (c *Config) Scenario(name string) (Scenario, bool) {
	for _, s := range c.Scenarios {
		if s.Name == name {
			return s, true
		}
	}
	return Scenario{}, false
}

// Match returns the scenarios whose names match a glob pattern, in
// configuration order. An empty pattern matches everything.
func (c *Config) Match(pattern string) ([]Scenario, error) {
	if pattern == "" {
		return append([]Scenario(nil), c.Scenarios...), nil
	}

	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid scenario pattern %q: %w", pattern, err)
	}

	var matched []Scenario
	for _, s := range c.Scenarios {
		if g.Match(s.Name) {
			matched = append(matched, s)
		}
	}
	if len(matched) == 0 {
		return nil, fmt.Errorf("no scenario matches %q", pattern)
	}
	return matched, nil
}

// OverrideRetry replaces the retry policy of the defaults and every scenario.
// Zero values leave the corresponding setting unchanged.
func (c *Config) OverrideRetry(maxAttempts int, delay time.Duration) {
	apply := func(r *RetryConfig) {
		if maxAttempts > 0 {
			r.MaxAttempts = maxAttempts
		}
		if delay > 0 {
			r.Delay = delay
		}
	}

	apply(&c.Defaults.Retry)
	for i := range c.Scenarios {
		if c.Scenarios[i].Retry != nil {
			apply(c.Scenarios[i].Retry)
		}
	}
}
