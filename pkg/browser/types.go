package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/entrhq/browserbox/pkg/readiness"
)

// Protocol identifies how a Dialer talks to the browser server.
type Protocol string

const (
	// ProtocolPlaywright connects to a Playwright run-server over WebSocket
	ProtocolPlaywright Protocol = "playwright"

	// ProtocolCDP connects over the Chrome DevTools Protocol
	ProtocolCDP Protocol = "cdp"

	// ProtocolWebDriver connects to a W3C WebDriver (Selenium) server
	ProtocolWebDriver Protocol = "webdriver"
)

// ParseProtocol converts a protocol name into a Protocol.
func ParseProtocol(s string) (Protocol, error) {
	switch p := Protocol(strings.ToLower(strings.TrimSpace(s))); p {
	case ProtocolPlaywright, ProtocolCDP, ProtocolWebDriver:
		return p, nil
	default:
		return "", fmt.Errorf("unknown protocol: %q (must be playwright, cdp or webdriver)", s)
	}
}

// Target describes the endpoint to connect to.
type Target struct {
	Protocol Protocol

	// Endpoint is the URL of the automation server
	Endpoint string

	// Browser selects the engine: chromium, firefox or webkit for playwright,
	// a W3C browserName for webdriver. Empty means chromium/chrome.
	Browser string

	// Timeout bounds a single connection attempt (0 means the library default)
	Timeout time.Duration

	// TraceDir, when set, records a Playwright trace to TraceDir/trace.zip
	TraceDir string

	// Args are extra browser arguments sent with webdriver capabilities
	Args []string
}

// Validate checks that the target can be dialed.
func (t Target) Validate() error {
	if _, err := ParseProtocol(string(t.Protocol)); err != nil {
		return err
	}
	if strings.TrimSpace(t.Endpoint) == "" {
		return fmt.Errorf("endpoint is required")
	}
	if t.TraceDir != "" && t.Protocol == ProtocolWebDriver {
		return fmt.Errorf("tracing is only supported for playwright and cdp targets")
	}
	return nil
}

func (t Target) String() string {
	return fmt.Sprintf("%s %s", t.Protocol, t.Endpoint)
}

// Session is an established browser connection with one open page.
// Closing it is the caller's responsibility.
type Session interface {
	// Navigate loads url in the session's page
	Navigate(url string) error

	// Title returns the current page title
	Title() (string, error)

	// Screenshot writes a PNG of the current page to path
	Screenshot(path string) error

	// Version returns the browser version, if the server reports one
	Version() string

	// TracePath returns where the trace is written on Close, or ""
	TracePath() string

	// Close releases the page, context and connection
	Close() error
}

// Dialer makes a single connection attempt to a target.
type Dialer interface {
	Dial(ctx context.Context, target Target) (Session, error)
}

// Attempt binds a dialer and a target into a readiness attempt function.
func Attempt(d Dialer, target Target) readiness.AttemptFunc[Session] {
	return func(ctx context.Context) (Session, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return d.Dial(ctx, target)
	}
}

// MultiDialer routes each target to the dialer registered for its protocol.
type MultiDialer map[Protocol]Dialer

// Dial implements Dialer.
func (m MultiDialer) Dial(ctx context.Context, target Target) (Session, error) {
	d, ok := m[target.Protocol]
	if !ok {
		return nil, fmt.Errorf("no dialer for protocol %q", target.Protocol)
	}
	return d.Dial(ctx, target)
}
