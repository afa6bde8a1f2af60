package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/playwright-community/playwright-go"
)

// PlaywrightDialer connects to remote browsers through a local Playwright
// driver. The driver is started on the first Dial and stopped by Shutdown.
type PlaywrightDialer struct {
	mu          sync.Mutex
	playwright  *playwright.Playwright
	install     bool
	initialized bool
	runOptions  *playwright.RunOptions
}

// PlaywrightOption configures a PlaywrightDialer.
type PlaywrightOption func(*PlaywrightDialer)

// WithDriverInstall downloads the Playwright driver before first use.
// Browsers are never installed locally; they run in the container.
func WithDriverInstall() PlaywrightOption {
	return func(d *PlaywrightDialer) { d.install = true }
}

// NewPlaywrightDialer creates a dialer. Driver output is discarded.
func NewPlaywrightDialer(opts ...PlaywrightOption) *PlaywrightDialer {
	d := &PlaywrightDialer{
		runOptions: &playwright.RunOptions{
			Verbose:             false,
			SkipInstallBrowsers: true,
			Stdout:              io.Discard,
			Stderr:              io.Discard,
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// driver starts the Playwright driver once.
func (d *PlaywrightDialer) driver() (*playwright.Playwright, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.initialized {
		return d.playwright, nil
	}

	if d.install {
		if err := playwright.Install(d.runOptions); err != nil {
			return nil, fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(d.runOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	d.playwright = pw
	d.initialized = true
	return pw, nil
}

func (d *PlaywrightDialer) browserType(pw *playwright.Playwright, name string) (playwright.BrowserType, error) {
	switch name {
	case "", "chromium", "chrome":
		return pw.Chromium, nil
	case "firefox":
		return pw.Firefox, nil
	case "webkit":
		return pw.WebKit, nil
	default:
		return nil, fmt.Errorf("unsupported playwright browser: %q", name)
	}
}

// Dial makes one connection attempt. Playwright targets use Connect, CDP
// targets use ConnectOverCDP.
func (d *PlaywrightDialer) Dial(ctx context.Context, target Target) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if target.Protocol != ProtocolPlaywright && target.Protocol != ProtocolCDP {
		return nil, fmt.Errorf("playwright dialer cannot handle protocol %q", target.Protocol)
	}

	pw, err := d.driver()
	if err != nil {
		return nil, err
	}

	var timeout *float64
	if target.Timeout > 0 {
		timeout = playwright.Float(float64(target.Timeout.Milliseconds()))
	}

	var browser playwright.Browser
	switch target.Protocol {
	case ProtocolPlaywright:
		bt, btErr := d.browserType(pw, target.Browser)
		if btErr != nil {
			return nil, btErr
		}
		browser, err = bt.Connect(target.Endpoint, playwright.BrowserTypeConnectOptions{Timeout: timeout})
	case ProtocolCDP:
		// Only Chromium speaks CDP.
		browser, err = pw.Chromium.ConnectOverCDP(target.Endpoint, playwright.BrowserTypeConnectOverCDPOptions{Timeout: timeout})
	}
	if err != nil {
		return nil, err
	}

	session, err := newPlaywrightSession(browser, target.TraceDir)
	if err != nil {
		browser.Close() // Ignore errors, the attempt already failed
		return nil, err
	}
	return session, nil
}

// Shutdown stops the Playwright driver.
func (d *PlaywrightDialer) Shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.initialized && d.playwright != nil {
		if err := d.playwright.Stop(); err != nil {
			return fmt.Errorf("failed to stop playwright: %w", err)
		}
		d.initialized = false
		d.playwright = nil
	}
	return nil
}

// playwrightSession wraps one browser, context and page.
type playwrightSession struct {
	browser   playwright.Browser
	context   playwright.BrowserContext
	page      playwright.Page
	tracePath string
	closeOnce sync.Once
	closeErr  error
}

func newPlaywrightSession(browser playwright.Browser, traceDir string) (*playwrightSession, error) {
	bctx, err := browser.NewContext()
	if err != nil {
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	s := &playwrightSession{browser: browser, context: bctx}

	if traceDir != "" {
		if err := os.MkdirAll(traceDir, 0750); err != nil {
			bctx.Close()
			return nil, fmt.Errorf("failed to create trace directory: %w", err)
		}
		err := bctx.Tracing().Start(playwright.TracingStartOptions{
			Screenshots: playwright.Bool(true),
			Snapshots:   playwright.Bool(true),
		})
		if err != nil {
			bctx.Close()
			return nil, fmt.Errorf("failed to start tracing: %w", err)
		}
		s.tracePath = filepath.Join(traceDir, "trace.zip")
	}

	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	s.page = page
	return s, nil
}

func (s *playwrightSession) Navigate(url string) error {
	if _, err := s.page.Goto(url); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

func (s *playwrightSession) Title() (string, error) {
	title, err := s.page.Title()
	if err != nil {
		return "", fmt.Errorf("failed to read title: %w", err)
	}
	return title, nil
}

func (s *playwrightSession) Screenshot(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create screenshot directory: %w", err)
		}
	}
	if _, err := s.page.Screenshot(playwright.PageScreenshotOptions{Path: playwright.String(path)}); err != nil {
		return fmt.Errorf("screenshot failed: %w", err)
	}
	return nil
}

func (s *playwrightSession) Version() string {
	return s.browser.Version()
}

func (s *playwrightSession) TracePath() string {
	return s.tracePath
}

// Close stops tracing, then closes the context and the browser connection.
// Every step runs even if an earlier one fails.
func (s *playwrightSession) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if s.tracePath != "" {
			if err := s.context.Tracing().Stop(s.tracePath); err != nil {
				errs = append(errs, fmt.Errorf("failed to save trace: %w", err))
			}
		}
		if err := s.context.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := s.browser.Close(); err != nil {
			errs = append(errs, err)
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}
