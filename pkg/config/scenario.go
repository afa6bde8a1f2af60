package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/entrhq/browserbox/pkg/browser"
	"github.com/entrhq/browserbox/pkg/container"
	"github.com/entrhq/browserbox/pkg/readiness"
)

// DefaultURL is the page visited by the built-in scenarios
const DefaultURL = "https://www.twoup.agency"

// Scenario describes one run: the container to launch, the endpoint to poll,
// and what to do with the browser once connected.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Container settings
	Image         string            `yaml:"image"`
	ContainerName string            `yaml:"container_name"`
	Ports         []string          `yaml:"ports"` // host:container
	Args          []string          `yaml:"args"`
	Env           map[string]string `yaml:"env"`
	AutoRemove    *bool             `yaml:"auto_remove"` // default true

	// Connection settings
	Protocol       string        `yaml:"protocol"`
	Browser        string        `yaml:"browser"`
	Endpoint       string        `yaml:"endpoint"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	BrowserArgs    []string      `yaml:"browser_args"`
	Retry          *RetryConfig  `yaml:"retry"` // overrides defaults.retry

	// Automation settings
	URL            string `yaml:"url"`
	ScreenshotPath string `yaml:"screenshot"`
	TraceDir       string `yaml:"trace_dir"`
}

// BuiltinScenarios returns the scenarios available without a config file.
func BuiltinScenarios() []Scenario {
	return []Scenario{
		{
			Name:        "playwright-server",
			Description: "Playwright run-server in the official Playwright image, connected over WebSocket",
			Image:       "mcr.microsoft.com/playwright:v1.56.1-jammy",
			Ports:       []string{"3000:3000"},
			Args: []string{
				"npx", "-y", "playwright@1.56.1", "run-server",
				"--port", "3000", "--path", "/playwright",
			},
			Protocol: string(browser.ProtocolPlaywright),
			Endpoint: "ws://localhost:3000/playwright",
			URL:      DefaultURL,
		},
		{
			Name:           "browserless-cdp",
			Description:    "browserless Chromium connected over the DevTools protocol",
			Image:          "ghcr.io/browserless/chromium",
			Ports:          []string{"3000:3000"},
			Protocol:       string(browser.ProtocolCDP),
			Endpoint:       "http://localhost:3000",
			ConnectTimeout: 10 * time.Second,
			URL:            DefaultURL,
		},
		{
			Name:           "browserless-trace",
			Description:    "browserless Chromium over CDP, recording a Playwright trace and a screenshot",
			Image:          "ghcr.io/browserless/chromium",
			Ports:          []string{"3000:3000"},
			Protocol:       string(browser.ProtocolCDP),
			Endpoint:       "http://localhost:3000",
			ConnectTimeout: 10 * time.Second,
			URL:            DefaultURL,
			TraceDir:       "trace-output",
			ScreenshotPath: "trace-output/screenshot.png",
		},
		{
			Name:        "selenium",
			Description: "Selenium standalone Chromium driven over WebDriver",
			Image:       "seleniarm/standalone-chromium:latest",
			Ports:       []string{"4444:4444"},
			Protocol:    string(browser.ProtocolWebDriver),
			Endpoint:    "http://localhost:4444",
			URL:         DefaultURL,
		},
	}
}

// Validate checks a single scenario.
func (s Scenario) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("scenario name is required")
	}
	if _, err := s.ContainerSpec(); err != nil {
		return fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	if _, err := s.Target(); err != nil {
		return fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	if s.Retry != nil {
		if err := s.Retry.validate(); err != nil {
			return fmt.Errorf("scenario %s: %w", s.Name, err)
		}
	}
	if s.URL == "" {
		return fmt.Errorf("scenario %s: url is required", s.Name)
	}
	return nil
}

// ContainerSpec converts the container settings into a container.Spec.
func (s Scenario) ContainerSpec() (container.Spec, error) {
	spec := container.Spec{
		Image:      s.Image,
		Name:       s.ContainerName,
		Args:       s.Args,
		Env:        s.Env,
		AutoRemove: s.AutoRemove == nil || *s.AutoRemove,
	}

	for _, p := range s.Ports {
		binding, err := container.ParsePortBinding(p)
		if err != nil {
			return container.Spec{}, err
		}
		spec.Ports = append(spec.Ports, binding)
	}

	if err := spec.Validate(); err != nil {
		return container.Spec{}, err
	}
	return spec, nil
}

// Target converts the connection settings into a browser.Target.
func (s Scenario) Target() (browser.Target, error) {
	protocol, err := browser.ParseProtocol(s.Protocol)
	if err != nil {
		return browser.Target{}, err
	}

	t := browser.Target{
		Protocol: protocol,
		Endpoint: s.Endpoint,
		Browser:  s.Browser,
		Timeout:  s.ConnectTimeout,
		TraceDir: s.TraceDir,
		Args:     s.BrowserArgs,
	}
	if err := t.Validate(); err != nil {
		return browser.Target{}, err
	}
	return t, nil
}

// Policy returns the scenario's readiness policy, falling back to def.
func (s Scenario) Policy(def RetryConfig) (readiness.Policy, error) {
	r := def
	if s.Retry != nil {
		r = *s.Retry
	}
	return readiness.NewPolicy(r.MaxAttempts, r.Delay)
}
