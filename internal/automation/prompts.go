// File: internal/automation/prompts.go
package automation

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/tokensmith/internal/browser"
	"github.com/xkilldash9x/tokensmith/internal/config"
)

// consentKeywords identify the permissions/consent interstitial.
var consentKeywords = []string{
	"permissions requested",
	"consent",
	"accept",
	"allow",
	"wants to access",
	"autorizzazioni",
	"consenso",
}

// staySignedInKeywords identify the "keep me signed in" interstitial.
var staySignedInKeywords = []string{
	"stay signed in",
	"rimani connesso",
	"stay signed",
}

// PromptHandler dismisses the known post-authentication interstitials. The
// provider may show zero, one, or both of them, in any order; absence is the
// common case, not an error.
type PromptHandler struct {
	driver   browser.Driver
	resolver *Resolver
	cfg      config.AutomationConfig
	logger   *zap.Logger
}

// NewPromptHandler creates a handler bound to one browser session.
func NewPromptHandler(driver browser.Driver, resolver *Resolver, cfg config.AutomationConfig, logger *zap.Logger) *PromptHandler {
	return &PromptHandler{
		driver:   driver,
		resolver: resolver,
		cfg:      cfg,
		logger:   logger.Named("prompts"),
	}
}

// Resolve loops up to the configured attempt budget, dismissing one prompt
// per iteration. It returns without error in every case: an unrecognized
// page means there is nothing left to dismiss, and an exhausted budget just
// hands control to code extraction, since the redirect may already have
// happened.
func (h *PromptHandler) Resolve(ctx context.Context, redirectPath string) {
	if err := h.driver.Sleep(ctx, h.cfg.SettleDelay); err != nil {
		return
	}

	for attempt := 0; attempt < h.cfg.MaxPromptAttempts; attempt++ {
		currentURL, err := h.driver.CurrentURL(ctx)
		if err != nil {
			h.logger.Warn("Prompt handling could not read URL.", zap.Error(err))
			return
		}
		if strings.Contains(currentURL, redirectPath) {
			h.logger.Debug("Already at redirect target, no prompts to handle.")
			return
		}

		pageText, err := h.driver.PageText(ctx)
		if err != nil {
			h.logger.Warn("Prompt handling could not read page text.", zap.Error(err))
			return
		}
		lower := strings.ToLower(pageText)

		switch {
		case containsAny(lower, consentKeywords):
			h.logger.Info("Consent prompt detected.")
			if !h.dismiss(ctx, RoleConsentAccept) {
				return
			}
		case containsAny(lower, staySignedInKeywords):
			h.logger.Info("Stay-signed-in prompt detected.")
			if !h.dismiss(ctx, RoleStaySignedIn) {
				return
			}
		default:
			h.logger.Debug("No recognized prompt on page.")
			return
		}
	}

	h.logger.Debug("Prompt attempt budget exhausted.")
}

// dismiss clicks the prompt's confirm control and waits for the page to
// settle. Returns false when the control could not be actuated; the caller
// stops looping rather than spinning on the same prompt.
func (h *PromptHandler) dismiss(ctx context.Context, role Role) bool {
	selector, err := h.resolver.Resolve(ctx, role, 0)
	if err != nil {
		h.logger.Warn("Prompt confirm control did not resolve.",
			zap.String("role", string(role)), zap.Error(err))
		return false
	}
	if err := h.driver.Click(ctx, selector); err != nil {
		h.logger.Warn("Prompt confirm click failed.",
			zap.String("selector", selector), zap.Error(err))
		return false
	}
	if err := h.driver.Sleep(ctx, h.cfg.StatusSettleDelay); err != nil {
		return false
	}
	return true
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
