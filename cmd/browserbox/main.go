// Package main provides browserbox, a command that starts a browser inside a
// throwaway Docker container, waits for its automation endpoint to come up,
// loads a page and tears the container down again.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/entrhq/browserbox/pkg/browser"
	"github.com/entrhq/browserbox/pkg/config"
	"github.com/entrhq/browserbox/pkg/container"
	"github.com/entrhq/browserbox/pkg/logging"
	"github.com/entrhq/browserbox/pkg/runner"
)

const version = "0.1.0"

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigFile   string
	Pattern      string
	List         bool
	Launcher     string
	DockerBinary string
	Attempts     int
	Delay        time.Duration
	Verbosity    string
	LogDir       string
	Install      bool
	ShowVersion  bool
}

func main() {
	cliConfig := parseFlags()

	if cliConfig.ShowVersion {
		fmt.Printf("browserbox v%s\n", version)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Cancelling stops polling; containers are still torn down.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\n\nShutting down gracefully...")
		cancel()
	}()

	if err := run(ctx, cliConfig, os.Stdout); err != nil {
		cancel()
		log.Printf("Execution failed: %v", err)
		os.Exit(1)
	}
	cancel()
}

// parseFlags parses command line flags
func parseFlags() *CLIConfig {
	c := &CLIConfig{}

	flag.StringVar(&c.ConfigFile, "config", "", "Path to configuration file (YAML)")
	flag.StringVar(&c.Pattern, "run", "", "Glob selecting scenarios to run (default: all)")
	flag.BoolVar(&c.List, "list", false, "List scenarios and exit")
	flag.StringVar(&c.Launcher, "launcher", "", "Container launcher: cli or engine")
	flag.StringVar(&c.DockerBinary, "docker", "", "Docker-compatible CLI used by the cli launcher")
	flag.IntVar(&c.Attempts, "attempts", 0, "Maximum connection attempts per scenario")
	flag.DurationVar(&c.Delay, "delay", 0, "Wait between connection attempts")
	flag.StringVar(&c.Verbosity, "verbosity", "", "Log level: quiet, normal, verbose or debug")
	flag.StringVar(&c.LogDir, "log-dir", "", "Directory to mirror logs into")
	flag.BoolVar(&c.Install, "install", false, "Download the Playwright driver before connecting")
	flag.BoolVar(&c.ShowVersion, "version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "browserbox - ephemeral browsers in Docker\n\n")
		fmt.Fprintf(os.Stderr, "Usage: browserbox [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Run every built-in scenario\n")
		fmt.Fprintf(os.Stderr, "  browserbox\n\n")
		fmt.Fprintf(os.Stderr, "  # Run the browserless scenarios through the Docker Engine API\n")
		fmt.Fprintf(os.Stderr, "  browserbox -run 'browserless-*' -launcher engine\n\n")
		fmt.Fprintf(os.Stderr, "  # Wait longer for a slow image\n")
		fmt.Fprintf(os.Stderr, "  browserbox -run selenium -attempts 30 -delay 2s\n\n")
	}

	flag.Parse()
	return c
}

// run executes the selected scenarios
func run(ctx context.Context, cliConfig *CLIConfig, stdout io.Writer) error {
	cfg, err := loadConfig(cliConfig)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if validationErr := cfg.Validate(); validationErr != nil {
		return fmt.Errorf("invalid configuration: %w", validationErr)
	}

	scenarios, err := cfg.Match(cliConfig.Pattern)
	if err != nil {
		return err
	}

	if cliConfig.List {
		return listScenarios(stdout, scenarios)
	}

	level, err := logging.ParseLevel(cfg.Defaults.Verbosity)
	if err != nil {
		return err
	}
	logOpts := []logging.Option{logging.WithLevel(level)}
	if cfg.Defaults.LogDir != "" {
		logOpts = append(logOpts, logging.WithFile(cfg.Defaults.LogDir))
	}
	logger, err := logging.New("browserbox", logOpts...)
	if err != nil {
		logger.Warnf("Continuing without log file: %v", err)
	}
	defer logger.Close()

	if path := logger.LogPath(); path != "" {
		logger.Verbosef("Session %s, logging to %s", logger.SessionID(), path)
	}

	launcher, err := newLauncher(cfg.Defaults)
	if err != nil {
		return err
	}

	dialer, shutdown := newDialer(cliConfig.Install)
	defer func() {
		if err := shutdown(); err != nil {
			logger.Warnf("%v", err)
		}
	}()

	r := runner.New(launcher, dialer,
		runner.WithLogger(logger),
		runner.WithDefaultRetry(cfg.Defaults.Retry),
		runner.WithStopTimeout(cfg.Defaults.StopTimeout),
	)

	reports, err := r.ExecuteAll(ctx, scenarios)
	for _, report := range reports {
		if report.Title != "" {
			fmt.Fprintln(stdout, report)
		}
	}
	return err
}

// loadConfig loads the configuration file, if any, and applies flag overrides
func loadConfig(cliConfig *CLIConfig) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if cliConfig.ConfigFile != "" {
		var err error
		if cfg, err = config.Load(cliConfig.ConfigFile); err != nil {
			return nil, err
		}
	}

	if cliConfig.Launcher != "" {
		cfg.Defaults.Launcher = cliConfig.Launcher
	}
	if cliConfig.DockerBinary != "" {
		cfg.Defaults.DockerBinary = cliConfig.DockerBinary
	}
	if cliConfig.Verbosity != "" {
		cfg.Defaults.Verbosity = cliConfig.Verbosity
	}
	if cliConfig.LogDir != "" {
		cfg.Defaults.LogDir = cliConfig.LogDir
	}
	cfg.OverrideRetry(cliConfig.Attempts, cliConfig.Delay)

	return cfg, nil
}

func newLauncher(d config.Defaults) (container.Launcher, error) {
	switch d.Launcher {
	case config.LauncherEngine:
		l, err := container.NewEngineLauncher()
		if err != nil {
			return nil, fmt.Errorf("failed to connect to docker engine: %w", err)
		}
		return l, nil
	case config.LauncherCLI:
		return container.NewCLILauncher(container.WithBinary(d.DockerBinary)), nil
	default:
		return nil, fmt.Errorf("invalid launcher: %s", d.Launcher)
	}
}

// newDialer routes playwright and cdp targets through one Playwright driver
// and webdriver targets through Selenium.
func newDialer(install bool) (browser.Dialer, func() error) {
	var opts []browser.PlaywrightOption
	if install {
		opts = append(opts, browser.WithDriverInstall())
	}
	pw := browser.NewPlaywrightDialer(opts...)

	dialer := browser.MultiDialer{
		browser.ProtocolPlaywright: pw,
		browser.ProtocolCDP:        pw,
		browser.ProtocolWebDriver:  browser.NewWebDriverDialer(),
	}
	return dialer, pw.Shutdown
}

func listScenarios(w io.Writer, scenarios []config.Scenario) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPROTOCOL\tIMAGE\tDESCRIPTION")
	for _, s := range scenarios {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Name, s.Protocol, s.Image, s.Description)
	}
	return tw.Flush()
}
