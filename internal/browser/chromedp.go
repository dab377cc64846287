// File: internal/browser/chromedp.go
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tokensmith/internal/config"
)

// ChromeDriver implements Driver on top of a dedicated headless Chrome
// instance controlled via the DevTools protocol. One ChromeDriver owns one
// browser process; instances are never shared between sessions.
type ChromeDriver struct {
	logger *zap.Logger

	taskCtx     context.Context
	cancelTask  context.CancelFunc
	cancelAlloc context.CancelFunc
	closeOnce   sync.Once
	closeErr    error
}

var _ Driver = (*ChromeDriver)(nil)

// Launch starts a new browser process with the configured hardening flags
// and applies the persona overrides. The returned driver must be closed by
// the caller on every exit path.
func Launch(ctx context.Context, cfg config.BrowserConfig, persona Persona, logger *zap.Logger) (*ChromeDriver, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, execOptions(cfg, persona)...)
	taskCtx, cancelTask := chromedp.NewContext(allocCtx)

	d := &ChromeDriver{
		logger:      logger.Named("browser"),
		taskCtx:     taskCtx,
		cancelTask:  cancelTask,
		cancelAlloc: cancelAlloc,
	}

	launchTimeout := cfg.LaunchTimeout
	if launchTimeout <= 0 {
		launchTimeout = 30 * time.Second
	}
	launchCtx, cancel := context.WithTimeout(taskCtx, launchTimeout)
	defer cancel()

	// The first Run starts the browser process; applying the persona here
	// guarantees the overrides are in place before any navigation.
	if err := chromedp.Run(launchCtx, Apply(persona, d.logger)); err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	d.logger.Debug("Browser launched.", zap.Bool("headless", cfg.Headless))
	return d, nil
}

// execOptions builds the allocator flag set: chromedp defaults plus the
// container-stability and fingerprint-hardening flags the login flow needs.
func execOptions(cfg config.BrowserConfig, persona Persona) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-features", "VizDisplayCompositor"),
		// Without this Chrome advertises itself to page scripts.
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("lang", persona.Locale),
		chromedp.UserAgent(persona.UserAgent),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
	)
	if cfg.IgnoreTLSErrors {
		opts = append(opts, chromedp.Flag("ignore-certificate-errors", true))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	for _, arg := range cfg.Args {
		name, value, found := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if found {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}
	return opts
}

// run executes chromedp actions under a context bounded by both the driver
// lifetime and the caller's context.
func (d *ChromeDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	opCtx, cancel := combineContext(d.taskCtx, ctx)
	defer cancel()
	return chromedp.Run(opCtx, actions...)
}

// Navigate loads the URL and waits for the document body to be ready.
func (d *ChromeDriver) Navigate(ctx context.Context, url string) error {
	d.logger.Debug("Navigating.", zap.String("url", url))
	if err := d.run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return fmt.Errorf("navigation to '%s' failed: %w", url, err)
	}
	return nil
}

// CurrentURL returns the top frame's current location.
func (d *ChromeDriver) CurrentURL(ctx context.Context) (string, error) {
	var urlstr string
	if err := d.run(ctx, chromedp.Location(&urlstr)); err != nil {
		return "", fmt.Errorf("failed to read current URL: %w", err)
	}
	return urlstr, nil
}

// PageText returns the rendered text of the page body.
func (d *ChromeDriver) PageText(ctx context.Context) (string, error) {
	var text string
	if err := d.run(ctx, chromedp.Text("body", &text, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to read page text: %w", err)
	}
	return text, nil
}

// elementProbe is the wire shape returned by the in-page lookup script.
type elementProbe struct {
	Visible bool   `json:"visible"`
	Enabled bool   `json:"enabled"`
	Text    string `json:"text"`
}

// probe locates the selector in-page and reports its state. Absence is a
// normal value: (zero, false, nil).
func (d *ChromeDriver) probe(ctx context.Context, selector string) (elementProbe, bool, error) {
	script := fmt.Sprintf(`
		(function(sel, isXPath) {
			let node = null;
			try {
				if (isXPath) {
					node = document.evaluate(sel, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
				} else {
					node = document.querySelector(sel);
				}
			} catch (e) {
				return null;
			}
			if (!node) return null;
			const rect = node.getBoundingClientRect();
			const style = window.getComputedStyle(node);
			const visible = rect.width > 0 && rect.height > 0 &&
				style.display !== 'none' && style.visibility !== 'hidden' && style.opacity !== '0';
			const enabled = !node.disabled && node.getAttribute('aria-disabled') !== 'true';
			return { visible: visible, enabled: enabled, text: (node.innerText || node.value || '').trim() };
		})(%s, %t)`, jsonEncode(selector), isXPath(selector))

	var res json.RawMessage
	err := d.run(ctx, chromedp.Evaluate(script, &res, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithReturnByValue(true).WithSilent(true)
	}))
	if err != nil {
		return elementProbe{}, false, fmt.Errorf("element probe for '%s' failed: %w", selector, err)
	}
	if len(res) == 0 || string(res) == "null" {
		return elementProbe{}, false, nil
	}

	var p elementProbe
	if err := json.Unmarshal(res, &p); err != nil {
		return elementProbe{}, false, fmt.Errorf("failed to unmarshal probe for '%s': %w", selector, err)
	}
	return p, true, nil
}

// Query locates the first element matching the selector.
func (d *ChromeDriver) Query(ctx context.Context, selector string) (Element, bool, error) {
	p, found, err := d.probe(ctx, selector)
	if err != nil || !found {
		return Element{}, false, err
	}
	return Element{Visible: p.Visible, Enabled: p.Enabled}, true, nil
}

// ReadText returns the trimmed text (or value) of the first match.
func (d *ChromeDriver) ReadText(ctx context.Context, selector string) (string, bool, error) {
	p, found, err := d.probe(ctx, selector)
	if err != nil || !found {
		return "", false, err
	}
	return p.Text, true, nil
}

// Fill clears the element's value and types the replacement into it.
func (d *ChromeDriver) Fill(ctx context.Context, selector, value string) error {
	opt := queryOption(selector)
	err := d.run(ctx,
		chromedp.SetValue(selector, "", opt),
		chromedp.SendKeys(selector, value, opt),
	)
	if err != nil {
		return fmt.Errorf("failed to fill '%s': %w", selector, err)
	}
	return nil
}

// Click dispatches a click on the first element matching the selector.
func (d *ChromeDriver) Click(ctx context.Context, selector string) error {
	if err := d.run(ctx, chromedp.Click(selector, queryOption(selector))); err != nil {
		return fmt.Errorf("failed to click '%s': %w", selector, err)
	}
	return nil
}

// WaitVisible blocks until the selector is visible or the timeout elapses.
func (d *ChromeDriver) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := d.run(waitCtx, chromedp.WaitVisible(selector, queryOption(selector))); err != nil {
		return fmt.Errorf("wait for '%s' failed: %w", selector, err)
	}
	return nil
}

// SendEnter dispatches an Enter keypress to the focused element.
func (d *ChromeDriver) SendEnter(ctx context.Context) error {
	if err := d.run(ctx, chromedp.KeyEvent(kb.Enter)); err != nil {
		return fmt.Errorf("failed to send Enter: %w", err)
	}
	return nil
}

// Sleep pauses for the duration, respecting context cancellation.
func (d *ChromeDriver) Sleep(ctx context.Context, duration time.Duration) error {
	select {
	case <-time.After(duration):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close tears down the browser process. Safe to call more than once; always
// releases the allocator even if the graceful shutdown fails.
func (d *ChromeDriver) Close() error {
	d.closeOnce.Do(func() {
		d.logger.Debug("Closing browser.")
		// chromedp.Cancel waits for the browser process to exit gracefully.
		if err := chromedp.Cancel(d.taskCtx); err != nil && err != context.Canceled {
			d.closeErr = fmt.Errorf("browser shutdown: %w", err)
		}
		d.cancelTask()
		d.cancelAlloc()
	})
	return d.closeErr
}

// isXPath reports whether the selector should be evaluated as XPath.
func isXPath(selector string) bool {
	return strings.HasPrefix(selector, "//") || strings.HasPrefix(selector, "(")
}

// queryOption maps a selector to the matching chromedp query strategy.
func queryOption(selector string) chromedp.QueryOption {
	if isXPath(selector) {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

// jsonEncode safely encodes a value (especially strings) for JS injection.
func jsonEncode(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `""`
	}
	return string(b)
}

// combineContext creates a context canceled when either parent is canceled.
// Driver operations must respect both the browser lifetime and the caller's
// per-step deadline.
func combineContext(parentCtx, secondaryCtx context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(parentCtx)

	go func() {
		select {
		case <-secondaryCtx.Done():
			cancel()
		case <-combinedCtx.Done():
		}
	}()

	return combinedCtx, cancel
}
