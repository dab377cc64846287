// File: internal/automation/classifier.go
package automation

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/tokensmith/internal/browser"
	"github.com/xkilldash9x/tokensmith/internal/config"
)

// Outcome is the closed set of authentication results the classifier can
// produce from post-submission page signals.
type Outcome string

const (
	OutcomeOK                 Outcome = "OK"
	OutcomeInvalidCredentials Outcome = "INVALID_CREDENTIALS"
	OutcomeAccountLocked      Outcome = "ACCOUNT_LOCKED"
	OutcomeAccountNotFound    Outcome = "ACCOUNT_NOT_FOUND"
)

// Classification pairs an outcome with the raw signal that produced it.
type Classification struct {
	Outcome  Outcome
	Evidence string
}

func ok() Classification { return Classification{Outcome: OutcomeOK} }

// Succeeded reports whether the classification allows the flow to proceed.
func (c Classification) Succeeded() bool { return c.Outcome == OutcomeOK }

// validationMessageSelectors locate inline field-validation elements. The
// first two are the provider's current Fluent UI markup; the rest are
// progressively broader fallbacks for older page versions.
var validationMessageSelectors = []string{
	`#field-8__validationMessage`,
	`.fui-Field__validationMessage`,
	`[id*="validationMessage"]`,
	`[class*="validationMessage"]`,
	`[class*="error"]`,
	`.alert-error`,
	`.error-message`,
}

// inlinePasswordPhrases mark an inline validation message as a credential
// failure. Matched case-insensitively as substrings.
var inlinePasswordPhrases = []string{
	"password is incorrect",
	"that password is incorrect",
	"incorrect password",
	"wrong password",
	"invalid password",
}

// pageTextIndicators is the ordered (phrase, outcome) table scanned against
// the full page body. The first matching row wins, so order encodes priority
// among overlapping phrases and must not be rearranged.
var pageTextIndicators = []struct {
	phrase  string
	outcome Outcome
}{
	{"account has been locked", OutcomeAccountLocked},
	{"account is locked", OutcomeAccountLocked},
	{"temporarily locked", OutcomeAccountLocked},
	{"incorrect username or password", OutcomeInvalidCredentials},
	{"sign-in name or password is incorrect", OutcomeInvalidCredentials},
	{"that password is incorrect", OutcomeInvalidCredentials},
	{"password is incorrect", OutcomeInvalidCredentials},
	{"we couldn't find an account", OutcomeAccountNotFound},
	{"account doesn't exist", OutcomeAccountNotFound},
	{"invalid username or password", OutcomeInvalidCredentials},
}

// ClassifyInlineText checks one inline validation message against the known
// credential-failure phrases.
func ClassifyInlineText(text string) (Classification, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ok(), false
	}
	lower := strings.ToLower(trimmed)
	for _, phrase := range inlinePasswordPhrases {
		if strings.Contains(lower, phrase) {
			return Classification{Outcome: OutcomeInvalidCredentials, Evidence: phrase}, true
		}
	}
	return ok(), false
}

// ClassifyPageText scans the page body against the indicator table in order.
func ClassifyPageText(text string) (Classification, bool) {
	lower := strings.ToLower(text)
	for _, row := range pageTextIndicators {
		if strings.Contains(lower, row.phrase) {
			return Classification{Outcome: row.outcome, Evidence: row.phrase}, true
		}
	}
	return ok(), false
}

// ClassifyURL maps error signals carried in the post-submission URL.
func ClassifyURL(rawURL string) (Classification, bool) {
	lower := strings.ToLower(rawURL)
	if !strings.Contains(lower, "error") {
		return ok(), false
	}
	if strings.Contains(lower, "invalid_grant") {
		return Classification{Outcome: OutcomeInvalidCredentials, Evidence: "invalid_grant"}, true
	}
	return ok(), false
}

// isStuckLoginPage reports whether the URL is still the provider's generic
// credential-post endpoint, meaning no navigation happened after submission.
func isStuckLoginPage(rawURL string) bool {
	return strings.Contains(rawURL, "login.live.com") && strings.Contains(rawURL, "post.srf")
}

// StatusChecker inspects the page once, immediately after password
// submission, and classifies the account status.
type StatusChecker struct {
	driver browser.Driver
	cfg    config.AutomationConfig
	logger *zap.Logger
}

// NewStatusChecker creates a checker bound to one browser session.
func NewStatusChecker(driver browser.Driver, cfg config.AutomationConfig, logger *zap.Logger) *StatusChecker {
	return &StatusChecker{driver: driver, cfg: cfg, logger: logger.Named("classifier")}
}

// Check evaluates inline validation text, the full page body, and the URL,
// in that order, returning on the first match. A stuck login-post page after
// submission is presumptive credential failure. Internal faults are never
// fatal and classify as OK: a classification bug must not block a login that
// actually succeeded.
func (s *StatusChecker) Check(ctx context.Context) Classification {
	// Error messages render asynchronously after the post.
	if err := s.driver.Sleep(ctx, s.cfg.StatusSettleDelay); err != nil {
		return ok()
	}

	for _, selector := range validationMessageSelectors {
		text, found, err := s.driver.ReadText(ctx, selector)
		if err != nil {
			s.logger.Debug("Validation message lookup failed.",
				zap.String("selector", selector), zap.Error(err))
			continue
		}
		if !found {
			continue
		}
		if c, matched := ClassifyInlineText(text); matched {
			s.logger.Warn("Inline validation message matched.",
				zap.String("outcome", string(c.Outcome)),
				zap.String("evidence", c.Evidence))
			return c
		}
	}

	pageText, err := s.driver.PageText(ctx)
	if err != nil {
		s.logger.Warn("Account status check could not read page text.", zap.Error(err))
		return ok()
	}
	if c, matched := ClassifyPageText(pageText); matched {
		s.logger.Warn("Page text matched failure indicator.",
			zap.String("outcome", string(c.Outcome)),
			zap.String("evidence", c.Evidence))
		return c
	}

	currentURL, err := s.driver.CurrentURL(ctx)
	if err != nil {
		s.logger.Warn("Account status check could not read URL.", zap.Error(err))
		return ok()
	}
	if c, matched := ClassifyURL(currentURL); matched {
		s.logger.Warn("URL carried an error signal.", zap.String("url", currentURL))
		return c
	}

	if isStuckLoginPage(currentURL) {
		// Give a slow redirect one more chance before concluding failure.
		if err := s.driver.Sleep(ctx, s.cfg.StatusSettleDelay); err != nil {
			return ok()
		}
		finalURL, err := s.driver.CurrentURL(ctx)
		if err != nil {
			s.logger.Warn("Stuck-page recheck could not read URL.", zap.Error(err))
			return ok()
		}
		if isStuckLoginPage(finalURL) {
			s.logger.Warn("Still on credential-post page after submission.",
				zap.String("url", finalURL))
			if finalText, err := s.driver.PageText(ctx); err == nil {
				if c, matched := ClassifyPageText(finalText); matched {
					return c
				}
			}
			// No navigation and no explicit signal: a silent rejection is far
			// more likely than a slow success at this point.
			return Classification{
				Outcome:  OutcomeInvalidCredentials,
				Evidence: "stuck on credential-post page",
			}
		}
	}

	s.logger.Debug("Account status OK.")
	return ok()
}
