// File: internal/browser/driver.go
package browser

import (
	"context"
	"time"
)

// Element describes the interactability of a located DOM element.
type Element struct {
	Visible bool
	Enabled bool
}

// Actionable reports whether the element can be used for an automation step.
func (e Element) Actionable() bool {
	return e.Visible && e.Enabled
}

// Driver is the capability set the automation core requires from a browser
// session. The core is polymorphic over any implementation; it must not
// depend on engine-specific behavior beyond these primitives.
//
// Selectors may be CSS or XPath (XPath selectors start with "//" or "(").
// Lookup methods treat absence as a normal value, not an error: an element
// that is not present yields found=false with a nil error.
type Driver interface {
	// Navigate loads the URL and waits for the document to be ready.
	Navigate(ctx context.Context, url string) error

	// CurrentURL returns the top frame's current location.
	CurrentURL(ctx context.Context) (string, error)

	// PageText returns the rendered text content of the page body.
	PageText(ctx context.Context) (string, error)

	// Query locates the first element matching the selector and reports its
	// visibility and enabled state.
	Query(ctx context.Context, selector string) (Element, bool, error)

	// ReadText returns the trimmed text (or input value) of the first
	// element matching the selector.
	ReadText(ctx context.Context, selector string) (string, bool, error)

	// Fill clears the element's current value and types the given one.
	Fill(ctx context.Context, selector, value string) error

	// Click dispatches a click on the first element matching the selector.
	Click(ctx context.Context, selector string) error

	// WaitVisible blocks until the selector resolves to a visible element or
	// the timeout elapses.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error

	// SendEnter dispatches an Enter keypress to the focused element. Used as
	// the keyboard fallback when no proceed control resolves.
	SendEnter(ctx context.Context) error

	// Sleep pauses for the duration, respecting context cancellation.
	Sleep(ctx context.Context, d time.Duration) error

	// Close tears down the browser session. Safe to call more than once.
	Close() error
}
