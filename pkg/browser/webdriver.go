package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tebeka/selenium"
	"github.com/tebeka/selenium/chrome"
)

// RemoteFunc opens a WebDriver session. It matches selenium.NewRemote.
type RemoteFunc func(caps selenium.Capabilities, urlPrefix string) (selenium.WebDriver, error)

// WebDriverDialer connects to a Selenium standalone server.
type WebDriverDialer struct {
	newRemote RemoteFunc
}

// NewWebDriverDialer creates a dialer backed by selenium.NewRemote.
func NewWebDriverDialer() *WebDriverDialer {
	return &WebDriverDialer{newRemote: selenium.NewRemote}
}

// NewWebDriverDialerWithRemote creates a dialer with a custom session opener.
func NewWebDriverDialerWithRemote(fn RemoteFunc) *WebDriverDialer {
	return &WebDriverDialer{newRemote: fn}
}

// Capabilities builds the capabilities requested for target.
func Capabilities(target Target) selenium.Capabilities {
	name := target.Browser
	if name == "" || name == "chromium" {
		name = "chrome"
	}

	caps := selenium.Capabilities{"browserName": name}
	if name == "chrome" && len(target.Args) > 0 {
		caps.AddChrome(chrome.Capabilities{Args: target.Args})
	}
	return caps
}

// Dial opens one WebDriver session.
func (d *WebDriverDialer) Dial(ctx context.Context, target Target) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if target.Protocol != ProtocolWebDriver {
		return nil, fmt.Errorf("webdriver dialer cannot handle protocol %q", target.Protocol)
	}

	if target.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, target.Timeout)
		defer cancel()
	}

	type result struct {
		wd  selenium.WebDriver
		err error
	}
	done := make(chan result, 1)

	// selenium.NewRemote takes no context, so the attempt is bounded here.
	go func() {
		wd, err := d.newRemote(Capabilities(target), target.Endpoint)
		done <- result{wd, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		return &webDriverSession{wd: r.wd}, nil
	case <-ctx.Done():
		// Quit a session that arrives after the attempt was abandoned.
		go func() {
			if r := <-done; r.err == nil {
				r.wd.Quit() // Ignore errors, nobody is waiting for this session
			}
		}()
		return nil, fmt.Errorf("webdriver session at %s: %w", target.Endpoint, ctx.Err())
	}
}

type webDriverSession struct {
	wd        selenium.WebDriver
	closeOnce sync.Once
	closeErr  error
}

func (s *webDriverSession) Navigate(url string) error {
	if err := s.wd.Get(url); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

func (s *webDriverSession) Title() (string, error) {
	title, err := s.wd.Title()
	if err != nil {
		return "", fmt.Errorf("failed to read title: %w", err)
	}
	return title, nil
}

func (s *webDriverSession) Screenshot(path string) error {
	data, err := s.wd.Screenshot()
	if err != nil {
		return fmt.Errorf("screenshot failed: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create screenshot directory: %w", err)
		}
	}
	return os.WriteFile(path, data, 0600)
}

func (s *webDriverSession) Version() string {
	caps, err := s.wd.Capabilities()
	if err != nil {
		return ""
	}
	for _, key := range []string{"browserVersion", "version"} {
		if v, ok := caps[key].(string); ok {
			return v
		}
	}
	return ""
}

func (s *webDriverSession) TracePath() string {
	return ""
}

// Close ends the WebDriver session (quit).
func (s *webDriverSession) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.wd.Quit()
	})
	return s.closeErr
}
