// Package browser dials browser automation servers running inside a
// container and wraps the resulting connection as a Session.
//
// Three protocols are supported:
//
//   - playwright: a Playwright run-server reached over WebSocket
//     (ws://localhost:3000/playwright)
//   - cdp: a Chromium exposing the DevTools protocol, e.g. browserless
//     (http://localhost:3000)
//   - webdriver: a Selenium standalone server (http://localhost:4444)
//
// A Dialer makes exactly one connection attempt per Dial call, which makes it
// suitable as a readiness attempt function:
//
//	dialer := browser.NewPlaywrightDialer()
//	defer dialer.Shutdown()
//
//	session, err := readiness.Connect(ctx, target.Endpoint, browser.Attempt(dialer, target), policy)
//	if err != nil {
//	    return err
//	}
//	defer session.Close()
//
// A failed Dial never leaves a browser connection open.
package browser
