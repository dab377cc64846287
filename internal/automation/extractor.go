// File: internal/automation/extractor.go
package automation

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/tokensmith/internal/browser"
	"github.com/xkilldash9x/tokensmith/internal/config"
)

// codePattern is the permissive fallback for redirect URLs that do not parse
// as clean query strings: everything after code= up to the next delimiter.
var codePattern = regexp.MustCompile(`code=([^&]+)`)

// transientRetryDelay is the backoff after a momentary driver fault while
// polling, longer than the normal interval so a flapping page is not hammered.
const transientRetryDelay = time.Second

// Extractor polls the browser location until the provider redirects back
// with an authorization code.
type Extractor struct {
	driver browser.Driver
	cfg    config.AutomationConfig
	logger *zap.Logger
}

// NewExtractor creates an extractor bound to one browser session.
func NewExtractor(driver browser.Driver, cfg config.AutomationConfig, logger *zap.Logger) *Extractor {
	return &Extractor{driver: driver, cfg: cfg, logger: logger.Named("extractor")}
}

// Extract polls the current URL until it reaches the redirect path with a
// code parameter or the overall timeout elapses. Transient faults during
// polling are swallowed and retried; only the overall timeout is terminal.
// After timeout, one final permissive pattern match is attempted before
// giving up with AUTH_CODE_MISSING.
func (e *Extractor) Extract(ctx context.Context, redirectPath string) (string, *FlowError) {
	e.logger.Info("Starting authorization code extraction.")
	deadline := time.Now().Add(e.cfg.ExtractTimeout)

	for time.Now().Before(deadline) {
		currentURL, err := e.driver.CurrentURL(ctx)
		if err != nil {
			e.logger.Debug("Poll could not read URL, retrying.", zap.Error(err))
			if err := e.driver.Sleep(ctx, transientRetryDelay); err != nil {
				break
			}
			continue
		}

		if code, ok := parseCode(currentURL, redirectPath); ok {
			e.logger.Info("Authorization code extracted.",
				zap.String("url_path", redirectPath))
			return code, nil
		}

		if err := e.driver.Sleep(ctx, e.cfg.ExtractInterval); err != nil {
			break
		}
	}

	// Last attempt: the redirect may have landed on a URL whose query string
	// does not parse cleanly.
	finalURL, err := e.driver.CurrentURL(ctx)
	if err == nil && strings.Contains(finalURL, redirectPath) {
		if m := codePattern.FindStringSubmatch(finalURL); m != nil {
			e.logger.Info("Authorization code extracted via pattern fallback.")
			return m[1], nil
		}
	}

	e.logger.Error("Authorization code never appeared.",
		zap.Duration("timeout", e.cfg.ExtractTimeout))
	return "", &FlowError{
		Kind:    KindAuthCodeMissing,
		Message: "Unable to obtain authorization code.",
	}
}

// parseCode returns the code parameter when the URL is on the redirect path
// and carries one. URLs off the redirect path never yield a code, whatever
// their query string contains.
func parseCode(rawURL, redirectPath string) (string, bool) {
	if !strings.Contains(rawURL, redirectPath) || !strings.Contains(rawURL, "code=") {
		return "", false
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	code := parsed.Query().Get("code")
	return code, code != ""
}
